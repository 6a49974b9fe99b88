package user

import "time"

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// Opposite returns the gender a user of g is matched with, or "" when g is
// not a recognised value.
func (g Gender) Opposite() Gender {
	switch g {
	case GenderMale:
		return GenderFemale
	case GenderFemale:
		return GenderMale
	default:
		return ""
	}
}

func (g Gender) Valid() bool {
	return g == GenderMale || g == GenderFemale
}

const (
	StatusActive    = "ACTIVE"
	StatusSuspended = "SUSPENDED"
	StatusDeleted   = "DELETED"
)

const (
	AvailabilityAvailable   = "AVAILABLE"
	AvailabilityUnavailable = "UNAVAILABLE"
	AvailabilityDating      = "DATING"
	AvailabilityEngaged     = "ENGAGED"
)

type User struct {
	ID           string
	Status       string
	LastActiveAt *time.Time
	CreatedAt    time.Time
}
