package seeder

import (
	"context"
	"fmt"
	"time"

	"matchengine/internal/database"
)

type DemoProfile struct {
	UserID         string
	Gender         string
	BirthDate      time.Time
	HeightCM       int
	City           string
	ReligiousLevel string
	Education      string
	Occupation     string
	Origin         string
	NativeLanguage string
	PrefAgeMin     *int
	PrefAgeMax     *int
	PrefReligious  []string
	PrefLocations  []string
	PrefEducation  []string
	PrefLanguages  []string
}

func intp(v int) *int { return &v }

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func DemoProfiles() []DemoProfile {
	return []DemoProfile{
		{
			UserID: "demo-m-01", Gender: "MALE", BirthDate: date(1994, time.March, 12), HeightCM: 180,
			City: "Jerusalem", ReligiousLevel: "DATI_LEUMI", Education: "BACHELOR", Occupation: "ENGINEER",
			Origin: "ASHKENAZI", NativeLanguage: "HEBREW",
			PrefAgeMin: intp(23), PrefAgeMax: intp(32),
			PrefReligious: []string{"DATI_LEUMI", "DATI_LEUMI_TORANI"}, PrefLocations: []string{"Jerusalem", "Modiin"},
		},
		{
			UserID: "demo-m-02", Gender: "MALE", BirthDate: date(1990, time.July, 2), HeightCM: 172,
			City: "Tel Aviv", ReligiousLevel: "MASORTI", Education: "MASTER", Occupation: "LAWYER",
			Origin: "SEPHARDI", NativeLanguage: "HEBREW",
			PrefLanguages: []string{"HEBREW", "ENGLISH"},
		},
		{
			UserID: "demo-f-01", Gender: "FEMALE", BirthDate: date(1997, time.January, 20), HeightCM: 165,
			City: "Jerusalem", ReligiousLevel: "DATI_LEUMI", Education: "BACHELOR", Occupation: "TEACHER",
			Origin: "SEPHARDI", NativeLanguage: "HEBREW",
			PrefAgeMin: intp(26), PrefAgeMax: intp(35),
			PrefEducation: []string{"BACHELOR", "MASTER"},
		},
		{
			UserID: "demo-f-02", Gender: "FEMALE", BirthDate: date(1992, time.October, 5), HeightCM: 170,
			City: "Haifa", ReligiousLevel: "HILONI", Education: "PHD", Occupation: "RESEARCHER",
			Origin: "ASHKENAZI", NativeLanguage: "ENGLISH",
			PrefReligious: []string{"HILONI", "HILONI_MAZDAHE"},
		},
		{
			UserID: "demo-f-03", Gender: "FEMALE", BirthDate: date(1996, time.May, 14), HeightCM: 160,
			City: "Modiin", ReligiousLevel: "DATI_LEUMI_TORANI", Education: "BACHELOR", Occupation: "NURSE",
			Origin: "YEMENITE", NativeLanguage: "HEBREW",
		},
	}
}

// ProfilesSeeder inserts users and profiles, leaving existing rows alone.
type ProfilesSeeder struct {
	Profiles []DemoProfile
}

func (ProfilesSeeder) Name() string { return "profiles" }

func (s ProfilesSeeder) Run(ctx context.Context, db database.DB) error {
	if err := EnsureTableColumns(ctx, db, "profiles", "user_id", "gender", "birth_date", "preferred_religious_levels"); err != nil {
		return err
	}

	return database.WithTx(ctx, db, func(tx database.Tx) error {
		for _, p := range s.Profiles {
			if _, err := tx.Exec(ctx,
				`INSERT INTO users (id, status, last_active_at) VALUES ($1, 'ACTIVE', now())
				 ON CONFLICT (id) DO NOTHING`,
				p.UserID,
			); err != nil {
				return fmt.Errorf("insert user %s: %w", p.UserID, err)
			}

			if _, err := tx.Exec(ctx,
				`INSERT INTO profiles (
					user_id, gender, birth_date, height_cm, city, religious_level, education,
					occupation, origin, native_language, preferred_age_min, preferred_age_max,
					preferred_religious_levels, preferred_locations, preferred_education, preferred_languages
				 )
				 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
				 ON CONFLICT (user_id) DO NOTHING`,
				p.UserID, p.Gender, p.BirthDate, p.HeightCM, p.City, p.ReligiousLevel, p.Education,
				p.Occupation, p.Origin, p.NativeLanguage, p.PrefAgeMin, p.PrefAgeMax,
				p.PrefReligious, p.PrefLocations, p.PrefEducation, p.PrefLanguages,
			); err != nil {
				return fmt.Errorf("insert profile %s: %w", p.UserID, err)
			}
		}
		return nil
	})
}

// SuggestionsSeeder records existing suggestions so the pool exclusion has
// something to exclude.
type SuggestionsSeeder struct {
	Pairs [][2]string
}

func (SuggestionsSeeder) Name() string { return "match_suggestions" }

func (s SuggestionsSeeder) Run(ctx context.Context, db database.DB) error {
	for _, pair := range s.Pairs {
		if _, err := db.Exec(ctx,
			`INSERT INTO match_suggestions (id, first_party_id, second_party_id, status)
			 SELECT gen_random_uuid(), $1, $2, 'PENDING'
			 WHERE NOT EXISTS (
				SELECT 1 FROM match_suggestions
				WHERE (first_party_id = $1 AND second_party_id = $2)
				   OR (first_party_id = $2 AND second_party_id = $1)
			 )`,
			pair[0], pair[1],
		); err != nil {
			return fmt.Errorf("insert suggestion %s/%s: %w", pair[0], pair[1], err)
		}
	}
	return nil
}
