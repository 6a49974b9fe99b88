package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matchengine/internal/database"
	"matchengine/internal/domain/match"
	"matchengine/internal/domain/matching"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type PotentialMatchUpsert struct {
	Match          matching.PotentialMatch
	ShortReasoning string
	JobID          string
	// RefreshOnly updates the stored row for the pair and never inserts.
	// Scores below the persistence threshold are written this way so an
	// earlier, higher score does not linger.
	RefreshOnly bool
}

type PotentialMatchRepository interface {
	Upsert(ctx context.Context, q database.Querier, m PotentialMatchUpsert) (match.UpsertOutcome, error)
	UpsertMany(ctx context.Context, ms []PotentialMatchUpsert) (match.UpsertSummary, error)
	ListForTarget(ctx context.Context, targetUserID string, limit int) ([]match.PotentialMatch, error)
}

type PostgresPotentialMatchRepository struct {
	db database.DB
}

func NewPostgresPotentialMatchRepository(db database.DB) *PostgresPotentialMatchRepository {
	return &PostgresPotentialMatchRepository{db: db}
}

// Upsert writes one pair keyed on (target, candidate). An existing row keeps
// its status, except EXPIRED which returns to PENDING, and is only touched
// when the score or breakdown changed.
func (r *PostgresPotentialMatchRepository) Upsert(ctx context.Context, q database.Querier, m PotentialMatchUpsert) (match.UpsertOutcome, error) {
	pm := m.Match
	if pm.TargetUserID == "" || pm.CandidateUserID == "" {
		return "", fmt.Errorf("potential match missing user ids")
	}
	if pm.ScannedAt.IsZero() {
		pm.ScannedAt = time.Now().UTC()
	}
	status := pm.Status
	if status == "" {
		status = matching.MatchStatusPending
	}

	breakdown, err := json.Marshal(pm.Breakdown)
	if err != nil {
		return "", fmt.Errorf("encode breakdown: %w", err)
	}

	var jobID *string
	if m.JobID != "" {
		jobID = &m.JobID
	}

	if m.RefreshOnly {
		return r.refresh(ctx, q, pm, breakdown, m.ShortReasoning, jobID)
	}

	var inserted bool
	err = q.QueryRow(ctx,
		`INSERT INTO potential_matches (
			id, target_user_id, candidate_user_id, overall_score, score_for_target,
			score_for_candidate, breakdown, short_reasoning, status, job_id, scanned_at
		 )
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 ON CONFLICT (target_user_id, candidate_user_id) DO UPDATE SET
			overall_score = EXCLUDED.overall_score,
			score_for_target = EXCLUDED.score_for_target,
			score_for_candidate = EXCLUDED.score_for_candidate,
			breakdown = EXCLUDED.breakdown,
			short_reasoning = EXCLUDED.short_reasoning,
			job_id = EXCLUDED.job_id,
			scanned_at = EXCLUDED.scanned_at,
			status = CASE WHEN potential_matches.status = 'EXPIRED' THEN 'PENDING' ELSE potential_matches.status END,
			updated_at = now()
		 WHERE potential_matches.overall_score IS DISTINCT FROM EXCLUDED.overall_score
		    OR potential_matches.breakdown IS DISTINCT FROM EXCLUDED.breakdown
		    OR potential_matches.status = 'EXPIRED'
		 RETURNING (xmax = 0)`,
		uuid.New(),
		pm.TargetUserID,
		pm.CandidateUserID,
		pm.OverallScore,
		pm.ScoreForTarget,
		pm.ScoreForCandidate,
		breakdown,
		m.ShortReasoning,
		string(status),
		jobID,
		pm.ScannedAt.UTC(),
	).Scan(&inserted)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return match.OutcomeUnchanged, nil
		}
		return "", err
	}
	if inserted {
		return match.OutcomeCreated, nil
	}
	return match.OutcomeUpdated, nil
}

// refresh rewrites the scores of an existing row, leaving its status alone.
func (r *PostgresPotentialMatchRepository) refresh(ctx context.Context, q database.Querier, pm matching.PotentialMatch, breakdown []byte, reasoning string, jobID *string) (match.UpsertOutcome, error) {
	var exists, changed bool
	err := q.QueryRow(ctx,
		`WITH cur AS (
			SELECT overall_score, breakdown
			FROM potential_matches
			WHERE target_user_id = $1 AND candidate_user_id = $2
			FOR UPDATE
		 ), upd AS (
			UPDATE potential_matches SET
				overall_score = $3,
				score_for_target = $4,
				score_for_candidate = $5,
				breakdown = $6,
				short_reasoning = $7,
				job_id = $8,
				scanned_at = $9,
				updated_at = now()
			FROM cur
			WHERE potential_matches.target_user_id = $1
			  AND potential_matches.candidate_user_id = $2
			  AND (cur.overall_score IS DISTINCT FROM $3 OR cur.breakdown IS DISTINCT FROM $6::jsonb)
			RETURNING 1
		 )
		 SELECT EXISTS (SELECT 1 FROM cur), EXISTS (SELECT 1 FROM upd)`,
		pm.TargetUserID,
		pm.CandidateUserID,
		pm.OverallScore,
		pm.ScoreForTarget,
		pm.ScoreForCandidate,
		breakdown,
		reasoning,
		jobID,
		pm.ScannedAt.UTC(),
	).Scan(&exists, &changed)
	if err != nil {
		return "", err
	}
	switch {
	case !exists:
		return match.OutcomeAbsent, nil
	case changed:
		return match.OutcomeUpdated, nil
	default:
		return match.OutcomeUnchanged, nil
	}
}

// UpsertMany writes all matches in one transaction.
func (r *PostgresPotentialMatchRepository) UpsertMany(ctx context.Context, ms []PotentialMatchUpsert) (match.UpsertSummary, error) {
	var sum match.UpsertSummary
	if len(ms) == 0 {
		return sum, nil
	}

	err := database.WithTx(ctx, r.db, func(tx database.Tx) error {
		for _, m := range ms {
			o, err := r.Upsert(ctx, tx, m)
			if err != nil {
				return fmt.Errorf("upsert potential match %s/%s: %w", m.Match.TargetUserID, m.Match.CandidateUserID, err)
			}
			sum.Add(o)
		}
		return nil
	})
	if err != nil {
		return match.UpsertSummary{}, err
	}
	return sum, nil
}

func (r *PostgresPotentialMatchRepository) ListForTarget(ctx context.Context, targetUserID string, limit int) ([]match.PotentialMatch, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, target_user_id, candidate_user_id, overall_score, score_for_target,
			score_for_candidate, breakdown, short_reasoning, status, job_id,
			scanned_at, created_at, updated_at
		 FROM potential_matches
		 WHERE target_user_id = $1
		 ORDER BY overall_score DESC, candidate_user_id
		 LIMIT $2`,
		targetUserID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list potential matches: %w", err)
	}
	defer rows.Close()

	out := make([]match.PotentialMatch, 0)
	for rows.Next() {
		var (
			pm     match.PotentialMatch
			raw    []byte
			status string
		)
		if err := rows.Scan(
			&pm.ID, &pm.TargetUserID, &pm.CandidateUserID, &pm.OverallScore, &pm.ScoreForTarget,
			&pm.ScoreForCandidate, &raw, &pm.ShortReasoning, &status, &pm.JobID,
			&pm.ScannedAt, &pm.CreatedAt, &pm.UpdatedAt,
		); err != nil {
			return nil, err
		}
		pm.Status = matching.MatchStatus(status)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &pm.Breakdown); err != nil {
				return nil, fmt.Errorf("decode breakdown: %w", err)
			}
		}
		out = append(out, pm)
	}
	return out, rows.Err()
}
