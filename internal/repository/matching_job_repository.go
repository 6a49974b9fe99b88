package repository

import (
	"context"
	"errors"
	"fmt"

	"matchengine/internal/database"
	"matchengine/internal/domain/job"
)

var ErrRunNotFound = errors.New("matching job run not found")

type MatchingJobRepository interface {
	Upsert(ctx context.Context, run job.Run) error
	GetByID(ctx context.Context, id string) (job.Run, error)
}

type PostgresMatchingJobRepository struct {
	db database.DB
}

func NewPostgresMatchingJobRepository(db database.DB) *PostgresMatchingJobRepository {
	return &PostgresMatchingJobRepository{db: db}
}

func (r *PostgresMatchingJobRepository) Upsert(ctx context.Context, run job.Run) error {
	if run.ID == "" {
		return fmt.Errorf("matching job run missing id")
	}

	var errText *string
	if run.Error != "" {
		errText = &run.Error
	}

	_, err := r.db.Exec(ctx,
		`INSERT INTO matching_jobs (
			id, target_user_id, matchmaker_id, force_refresh, status, attempts,
			candidates_considered, matches_found, error, started_at, finished_at
		 )
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		 ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			attempts = EXCLUDED.attempts,
			candidates_considered = EXCLUDED.candidates_considered,
			matches_found = EXCLUDED.matches_found,
			error = EXCLUDED.error,
			started_at = COALESCE(EXCLUDED.started_at, matching_jobs.started_at),
			finished_at = EXCLUDED.finished_at,
			updated_at = now()`,
		run.ID,
		run.TargetUserID,
		run.MatchmakerID,
		run.ForceRefresh,
		string(run.Status),
		run.Attempts,
		run.CandidatesConsidered,
		run.MatchesFound,
		errText,
		run.StartedAt,
		run.FinishedAt,
	)
	return err
}

func (r *PostgresMatchingJobRepository) GetByID(ctx context.Context, id string) (job.Run, error) {
	var (
		run     job.Run
		status  string
		errText *string
	)
	err := r.db.QueryRow(ctx,
		`SELECT id, target_user_id, matchmaker_id, force_refresh, status, attempts,
			candidates_considered, matches_found, error, started_at, finished_at,
			created_at, updated_at
		 FROM matching_jobs WHERE id = $1`,
		id,
	).Scan(
		&run.ID, &run.TargetUserID, &run.MatchmakerID, &run.ForceRefresh, &status, &run.Attempts,
		&run.CandidatesConsidered, &run.MatchesFound, &errText, &run.StartedAt, &run.FinishedAt,
		&run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return job.Run{}, ErrRunNotFound
		}
		return job.Run{}, err
	}
	run.Status = job.Status(status)
	if errText != nil {
		run.Error = *errText
	}
	return run, nil
}
