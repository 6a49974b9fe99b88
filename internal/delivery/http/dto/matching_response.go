package dto

import (
	"time"

	"matchengine/internal/domain/matching"

	"github.com/google/uuid"
)

type EnqueueMatchingJobRequest struct {
	JobID        string `json:"job_id" validate:"omitempty,max=200"`
	TargetUserID string `json:"target_user_id" validate:"required,max=128"`
	ForceRefresh bool   `json:"force_refresh"`
}

type EnqueueMatchingJobResponse struct {
	JobID     string `json:"job_id"`
	Duplicate bool   `json:"duplicate"`
}

type MatchingJobRunResponse struct {
	CandidatesConsidered int        `json:"candidates_considered"`
	MatchesFound         int        `json:"matches_found"`
	Error                string     `json:"error,omitempty"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	FinishedAt           *time.Time `json:"finished_at,omitempty"`
}

type MatchingJobResponse struct {
	JobID        string                  `json:"job_id"`
	Status       string                  `json:"status"`
	TargetUserID string                  `json:"target_user_id,omitempty"`
	MatchmakerID string                  `json:"matchmaker_id,omitempty"`
	ForceRefresh bool                    `json:"force_refresh"`
	AttemptsMade int                     `json:"attempts_made"`
	MaxAttempts  int                     `json:"max_attempts,omitempty"`
	FailedReason string                  `json:"failed_reason,omitempty"`
	Result       any                     `json:"result,omitempty"`
	CreatedAt    *time.Time              `json:"created_at,omitempty"`
	ProcessedAt  *time.Time              `json:"processed_at,omitempty"`
	FinishedAt   *time.Time              `json:"finished_at,omitempty"`
	Run          *MatchingJobRunResponse `json:"run,omitempty"`
}

type PotentialMatchResponse struct {
	ID                uuid.UUID                  `json:"id"`
	CandidateUserID   string                     `json:"candidate_user_id"`
	OverallScore      int                        `json:"overall_score"`
	ScoreForTarget    int                        `json:"score_for_target"`
	ScoreForCandidate int                        `json:"score_for_candidate"`
	Status            string                     `json:"status"`
	ShortReasoning    string                     `json:"short_reasoning"`
	Breakdown         []matching.DimensionResult `json:"breakdown"`
	JobID             *string                    `json:"job_id,omitempty"`
	ScannedAt         time.Time                  `json:"scanned_at"`
	UpdatedAt         time.Time                  `json:"updated_at"`
}

type PotentialMatchListResponse struct {
	TargetUserID string                   `json:"target_user_id"`
	Items        []PotentialMatchResponse `json:"items"`
}

type QueueStatsResponse struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Delayed   int64 `json:"delayed"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

type CleanQueueRequest struct {
	Status       string `json:"status" validate:"required,oneof=completed failed"`
	GraceSeconds int    `json:"grace_seconds" validate:"gte=0"`
	Limit        int    `json:"limit" validate:"gte=0,lte=10000"`
}

type RemovedResponse struct {
	Removed int `json:"removed"`
}
