package model

import "time"

// Member carries the booking-ledger subset of the member document: the
// fields the reservation engine reads and writes. Profile CRUD happens in
// another service against the same collection.
type Member struct {
	ID                  string            `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Name                string            `json:"name" bson:"name" validate:"required,min=2,max=100"`
	Email               string            `json:"email" bson:"email" validate:"required,email"`
	EligibleClassTypes  []string          `json:"eligible_class_types" bson:"eligible_class_types" validate:"omitempty,max=10"`
	CancellationCredits int               `json:"cancellation_credits" bson:"cancellation_credits" validate:"min=0"`
	AssignedClasses     []string          `json:"assigned_classes" bson:"assigned_classes"`
	AttendanceHistory   []AttendanceEntry `json:"attendance_history" bson:"attendance_history"`
	CreatedAt           time.Time         `json:"created_at" bson:"created_at" validate:"omitempty"`
}

type AttendanceEntry struct {
	ClassID   string    `json:"class_id" bson:"class_id"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

func (m *Member) IsAssigned(classID string) bool {
	return containsID(m.AssignedClasses, classID)
}

// RosterEntry is the admin projection of an enrolled member: display fields
// only, no mutation surface.
type RosterEntry struct {
	MemberID  string `json:"member_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CheckedIn bool   `json:"checked_in"`
}
