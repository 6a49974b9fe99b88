package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"matchengine/internal/database"
	"matchengine/internal/domain/matching"
	"matchengine/internal/domain/user"
)

var ErrProfileNotFound = errors.New("profile not found")

type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (matching.Profile, error)
	ListCandidatePool(ctx context.Context, target matching.Profile, q PoolQuery) (CandidatePool, error)
	ExcludedPartners(ctx context.Context, userID string) (map[string]struct{}, error)
	MarkScanned(ctx context.Context, userID string, at time.Time) error
	ListStaleTargets(ctx context.Context, scannedBefore time.Time, limit int) ([]string, error)
}

type PoolQuery struct {
	Limit int
	// ScannedSince, when set, drops candidates whose pair with the target
	// was scanned at or after it, before Limit applies.
	ScannedSince time.Time
}

type CandidatePool struct {
	Candidates []matching.Profile
	// SkippedRecent counts eligible candidates dropped by ScannedSince.
	SkippedRecent int
}

type PostgresProfileRepository struct {
	db database.DB
}

func NewPostgresProfileRepository(db database.DB) *PostgresProfileRepository {
	return &PostgresProfileRepository{db: db}
}

const profileColumns = `
	u.id, u.status, u.last_active_at,
	p.gender, p.birth_date, p.height_cm,
	COALESCE(p.city, ''), COALESCE(p.religious_level, ''), COALESCE(p.education, ''),
	COALESCE(p.occupation, ''), COALESCE(p.origin, ''), COALESCE(p.native_language, ''),
	p.additional_languages,
	p.availability_status, p.is_profile_visible,
	p.preferred_age_min, p.preferred_age_max, p.preferred_height_min, p.preferred_height_max,
	p.preferred_religious_levels, p.preferred_locations, p.preferred_education,
	p.preferred_occupations, p.preferred_origins, p.preferred_languages`

// pairBlocked matches when $1 and the row's user share any suggestion or a
// dismissed potential match, in either direction.
const pairBlocked = `(
	EXISTS (
		SELECT 1 FROM match_suggestions s
		WHERE (s.first_party_id = $1 AND s.second_party_id = u.id)
		   OR (s.second_party_id = $1 AND s.first_party_id = u.id)
	)
	OR EXISTS (
		SELECT 1 FROM potential_matches pm
		WHERE pm.status = 'DISMISSED'
		  AND ((pm.target_user_id = $1 AND pm.candidate_user_id = u.id)
		    OR (pm.candidate_user_id = $1 AND pm.target_user_id = u.id))
	)
)`

type scanner interface {
	Scan(dest ...any) error
}

func scanProfile(s scanner) (matching.Profile, error) {
	var (
		p                             matching.Profile
		gender                        *string
		ageMin, ageMax, hMin, hMax    *int
		height                        *int
		birth, lastActive             *time.Time
		additional                    []string
		prefRel, prefLoc, prefEdu     []string
		prefOcc, prefOrigin, prefLang []string
	)

	err := s.Scan(
		&p.UserID, &p.UserStatus, &lastActive,
		&gender, &birth, &height,
		&p.City, &p.ReligiousLevel, &p.Education,
		&p.Occupation, &p.Origin, &p.NativeLanguage,
		&additional,
		&p.AvailabilityStatus, &p.IsVisible,
		&ageMin, &ageMax, &hMin, &hMax,
		&prefRel, &prefLoc, &prefEdu,
		&prefOcc, &prefOrigin, &prefLang,
	)
	if err != nil {
		return matching.Profile{}, err
	}

	if gender != nil {
		p.Gender = user.Gender(*gender)
	}
	p.BirthDate = birth
	p.HeightCM = height
	p.LastActiveAt = lastActive
	p.AdditionalLanguages = additional
	p.Preferences = matching.Preferences{
		AgeMin:          ageMin,
		AgeMax:          ageMax,
		HeightMin:       hMin,
		HeightMax:       hMax,
		ReligiousLevels: prefRel,
		Locations:       prefLoc,
		Education:       prefEdu,
		Occupations:     prefOcc,
		Origins:         prefOrigin,
		Languages:       prefLang,
	}
	return p, nil
}

func (r *PostgresProfileRepository) GetProfile(ctx context.Context, userID string) (matching.Profile, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+profileColumns+`
		 FROM profiles p
		 JOIN users u ON u.id = p.user_id
		 WHERE u.id = $1`,
		userID,
	)
	p, err := scanProfile(row)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return matching.Profile{}, ErrProfileNotFound
		}
		return matching.Profile{}, fmt.Errorf("get profile %s: %w", userID, err)
	}
	return p, nil
}

// poolEligible selects visible, active, available users of gender $2 other
// than $1 who share no suggestion or dismissal with $1.
const poolEligible = `p.gender = $2
	AND u.status = $3
	AND p.availability_status = $4
	AND p.is_profile_visible
	AND u.id <> $1
	AND NOT ` + pairBlocked

// scannedSince matches when the pair ($1, u.id) was scanned at or after $5.
const scannedSince = `EXISTS (
	SELECT 1 FROM scanned_pairs sp
	WHERE ((sp.user_low = $1 AND sp.user_high = u.id)
	    OR (sp.user_high = $1 AND sp.user_low = u.id))
	  AND sp.scanned_at >= $5
)`

// ListCandidatePool returns the eligible candidates for target, most
// recently updated first. With ScannedSince set the cooldown is applied in
// the query, so Limit only counts candidates that still need scoring.
func (r *PostgresProfileRepository) ListCandidatePool(ctx context.Context, target matching.Profile, q PoolQuery) (CandidatePool, error) {
	var pool CandidatePool
	want := target.Gender.Opposite()
	if want == "" {
		return pool, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 5000
	}

	args := []any{target.UserID, string(want), user.StatusActive, user.AvailabilityAvailable}
	where := poolEligible
	if !q.ScannedSince.IsZero() {
		args = append(args, q.ScannedSince.UTC())
		err := r.db.QueryRow(ctx,
			`SELECT count(*)
			 FROM profiles p
			 JOIN users u ON u.id = p.user_id
			 WHERE `+poolEligible+` AND `+scannedSince,
			args...,
		).Scan(&pool.SkippedRecent)
		if err != nil {
			return pool, fmt.Errorf("count recently scanned candidates: %w", err)
		}
		where += ` AND NOT ` + scannedSince
	}
	args = append(args, limit)

	rows, err := r.db.Query(ctx,
		`SELECT `+profileColumns+`
		 FROM profiles p
		 JOIN users u ON u.id = p.user_id
		 WHERE `+where+`
		 ORDER BY p.updated_at DESC, u.id
		 LIMIT $`+strconv.Itoa(len(args)),
		args...,
	)
	if err != nil {
		return pool, fmt.Errorf("list candidate pool: %w", err)
	}
	defer rows.Close()

	pool.Candidates = make([]matching.Profile, 0)
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return pool, fmt.Errorf("scan candidate: %w", err)
		}
		pool.Candidates = append(pool.Candidates, p)
	}
	if err := rows.Err(); err != nil {
		return pool, fmt.Errorf("iterate candidates: %w", err)
	}
	return pool, nil
}

func (r *PostgresProfileRepository) ExcludedPartners(ctx context.Context, userID string) (map[string]struct{}, error) {
	rows, err := r.db.Query(ctx,
		`SELECT CASE WHEN first_party_id = $1 THEN second_party_id ELSE first_party_id END
		 FROM match_suggestions
		 WHERE first_party_id = $1 OR second_party_id = $1
		 UNION
		 SELECT CASE WHEN target_user_id = $1 THEN candidate_user_id ELSE target_user_id END
		 FROM potential_matches
		 WHERE status = 'DISMISSED' AND (target_user_id = $1 OR candidate_user_id = $1)`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list excluded partners: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	return out, rows.Err()
}

func (r *PostgresProfileRepository) MarkScanned(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.Exec(ctx,
		`UPDATE profiles SET last_scanned_at = $2 WHERE user_id = $1`,
		userID, at.UTC(),
	)
	return err
}

// ListStaleTargets returns matchable users never scanned or last scanned
// before scannedBefore, oldest first.
func (r *PostgresProfileRepository) ListStaleTargets(ctx context.Context, scannedBefore time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.Query(ctx,
		`SELECT u.id
		 FROM profiles p
		 JOIN users u ON u.id = p.user_id
		 WHERE u.status = $1
		   AND p.availability_status = $2
		   AND p.is_profile_visible
		   AND p.gender IS NOT NULL
		   AND p.birth_date IS NOT NULL
		   AND (p.last_scanned_at IS NULL OR p.last_scanned_at < $3)
		 ORDER BY p.last_scanned_at NULLS FIRST, u.id
		 LIMIT $4`,
		user.StatusActive, user.AvailabilityAvailable, scannedBefore.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list stale targets: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
