// Package checkin issues and parses studio check-in codes.
//
// Two wire forms are accepted: the minimal "CLASE:<classId>" string printed
// on the studio QR poster, and the JSON token {"class_id", "exp"} issued per
// class. The exp claim is carried through parsing but is not compared to the
// clock anywhere; door scanners treat possession of the code as sufficient.
package checkin

import (
	"encoding/json"
	"strings"
	"time"

	apperrors "gymbook/pkg/errors"
)

const prefix = "CLASE:"

// Code is the parsed check-in token.
type Code struct {
	ClassID string `json:"class_id"`
	Exp     int64  `json:"exp,omitempty"`
}

// Issue builds a JSON token for the class, stamped with an expiry ttl from
// now.
func Issue(classID string, ttl time.Duration, now time.Time) Code {
	return Code{
		ClassID: classID,
		Exp:     now.Add(ttl).Unix(),
	}
}

// Minimal returns the short scannable form of the code.
func (c Code) Minimal() string {
	return prefix + c.ClassID
}

func (c Code) JSON() ([]byte, error) {
	return json.Marshal(c)
}

// Parse decodes either accepted form. Malformed input, an unknown prefix or
// a token without a class id all fail with INVALID_CODE.
func Parse(raw string) (Code, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Code{}, apperrors.InvalidCode("Check-in code is empty")
	}

	if strings.HasPrefix(raw, prefix) {
		classID := strings.TrimSpace(strings.TrimPrefix(raw, prefix))
		if classID == "" {
			return Code{}, apperrors.InvalidCode("Check-in code has no class ID")
		}
		return Code{ClassID: classID}, nil
	}

	if strings.HasPrefix(raw, "{") {
		var code Code
		if err := json.Unmarshal([]byte(raw), &code); err != nil {
			return Code{}, apperrors.InvalidCode("Check-in code is not valid JSON")
		}
		if code.ClassID == "" {
			return Code{}, apperrors.InvalidCode("Check-in code has no class ID")
		}
		return code, nil
	}

	return Code{}, apperrors.InvalidCode("Unrecognized check-in code format")
}
