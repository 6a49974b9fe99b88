package matching

import (
	"strings"
	"time"

	"matchengine/internal/domain/user"
)

// Profile is the matchable snapshot of one user. Attributes and preferences
// are independent: either side may be missing without affecting the other.
type Profile struct {
	UserID string
	Gender user.Gender

	BirthDate           *time.Time
	HeightCM            *int
	City                string
	ReligiousLevel      string
	Education           string
	Occupation          string
	Origin              string
	NativeLanguage      string
	AdditionalLanguages []string

	UserStatus         string
	AvailabilityStatus string
	IsVisible          bool
	LastActiveAt       *time.Time

	Preferences Preferences

	// Excluded holds users this profile must never be matched with: active
	// or blocking suggestions and dismissed potential matches.
	Excluded map[string]struct{}
}

// Preferences are the desired ranges and sets. A nil bound or an empty set
// places no constraint.
type Preferences struct {
	AgeMin    *int
	AgeMax    *int
	HeightMin *int
	HeightMax *int

	ReligiousLevels []string
	Locations       []string
	Education       []string
	Occupations     []string
	Origins         []string
	Languages       []string
}

// Age returns the age in whole years at the reference time.
func (p Profile) Age(at time.Time) (int, bool) {
	if p.BirthDate == nil || p.BirthDate.IsZero() {
		return 0, false
	}
	b := p.BirthDate.UTC()
	at = at.UTC()
	age := at.Year() - b.Year()
	if at.Month() < b.Month() || (at.Month() == b.Month() && at.Day() < b.Day()) {
		age--
	}
	if age < 0 {
		return 0, false
	}
	return age, true
}

// Languages returns the native language followed by additional languages,
// without blanks or duplicates.
func (p Profile) Languages() []string {
	out := make([]string, 0, 1+len(p.AdditionalLanguages))
	seen := make(map[string]struct{}, 1+len(p.AdditionalLanguages))
	add := func(v string) {
		k := normalize(v)
		if k == "" {
			return
		}
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		out = append(out, strings.TrimSpace(v))
	}
	add(p.NativeLanguage)
	for _, l := range p.AdditionalLanguages {
		add(l)
	}
	return out
}

// Excludes reports whether other is in this profile's exclusion set.
func (p Profile) Excludes(other string) bool {
	if p.Excluded == nil {
		return false
	}
	_, ok := p.Excluded[other]
	return ok
}
