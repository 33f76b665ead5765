package model

import (
	"time"
)

// Class types offered by the studio.
const (
	ClassTypeFunctional = "functional"
	ClassTypePilates    = "pilates"
	ClassTypeZumba      = "zumba"
)

// Class is one scheduled, dated occurrence of a class type.
//
// Counter discipline: seats_available is maintained, not derived, and every
// mutation keeps seats_available + len(enrolled) == capacity. No member id
// ever appears in both enrolled and waitlist, and attendance is always a
// subset of enrolled.
type Class struct {
	ID             string    `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	Type           string    `json:"type" bson:"type" validate:"required,class_type"`
	DayOfWeek      string    `json:"day_of_week" bson:"day_of_week" validate:"required,oneof=Sunday Monday Tuesday Wednesday Thursday Friday Saturday"`
	StartTime      string    `json:"start_time" bson:"start_time" validate:"required,valid_time_range"`
	EndTime        string    `json:"end_time" bson:"end_time" validate:"required,valid_time_range"`
	Date           time.Time `json:"date" bson:"date" validate:"required"`
	Capacity       int       `json:"capacity" bson:"capacity" validate:"required,min=1,max=200"`
	SeatsAvailable int       `json:"seats_available" bson:"seats_available" validate:"min=0"`
	Enrolled       []string  `json:"enrolled" bson:"enrolled"`
	Waitlist       []string  `json:"waitlist" bson:"waitlist"`
	Attendance     []string  `json:"attendance" bson:"attendance"`
	CreatedAt      time.Time `json:"created_at" bson:"created_at" validate:"omitempty"`
}

type ClassUpdate struct {
	Type      string     `json:"type,omitempty" validate:"omitempty,class_type"`
	DayOfWeek string     `json:"day_of_week,omitempty" validate:"omitempty,oneof=Sunday Monday Tuesday Wednesday Thursday Friday Saturday"`
	StartTime string     `json:"start_time,omitempty" validate:"omitempty,valid_time_range"`
	EndTime   string     `json:"end_time,omitempty" validate:"omitempty,valid_time_range"`
	Date      *time.Time `json:"date,omitempty" validate:"omitempty"`
	Capacity  *int       `json:"capacity,omitempty" validate:"omitempty,min=1,max=200"`
}

// IsEnrolled reports whether the member holds a seat. Ids are compared
// exactly; no case folding, no ObjectID/string coercion.
func (c *Class) IsEnrolled(memberID string) bool {
	return containsID(c.Enrolled, memberID)
}

func (c *Class) IsWaitlisted(memberID string) bool {
	return containsID(c.Waitlist, memberID)
}

func (c *Class) HasCheckedIn(memberID string) bool {
	return containsID(c.Attendance, memberID)
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
