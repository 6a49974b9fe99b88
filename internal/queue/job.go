package queue

import (
	"strconv"
	"time"

	"matchengine/internal/domain/job"
)

// Job is a queue record. Payload holds the raw message so consumers can
// reject or migrate it themselves.
type Job struct {
	ID           string
	Payload      []byte
	Status       job.Status
	AttemptsMade int
	MaxAttempts  int
	StalledCount int
	FailedReason string
	ReturnValue  string
	CreatedAt    *time.Time
	ProcessedAt  *time.Time
	FinishedAt   *time.Time

	token string
}

func (j *Job) Decode() (job.MatchingJobData, error) {
	return job.Decode(j.Payload)
}

// LastAttempt reports whether a failure now would exhaust the job.
func (j *Job) LastAttempt() bool {
	return j.AttemptsMade >= j.MaxAttempts
}

type EnqueueResult struct {
	JobID     string `json:"jobId"`
	Duplicate bool   `json:"duplicate"`
}

type Stats struct {
	Waiting   int64 `json:"waiting"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Delayed   int64 `json:"delayed"`
}

type SweepResult struct {
	Requeued int
	Failed   int
}

func jobFromHash(m map[string]string) *Job {
	j := &Job{
		ID:           m["id"],
		Payload:      []byte(m["data"]),
		Status:       job.Status(m["status"]),
		AttemptsMade: atoi(m["attemptsMade"]),
		MaxAttempts:  atoi(m["maxAttempts"]),
		StalledCount: atoi(m["stalledCount"]),
		FailedReason: m["failedReason"],
		ReturnValue:  m["returnValue"],
		CreatedAt:    msTime(m["createdAt"]),
		ProcessedAt:  msTime(m["processedOn"]),
		FinishedAt:   msTime(m["finishedOn"]),
	}
	return j
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

func msTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ms <= 0 {
		return nil
	}
	t := time.UnixMilli(ms).UTC()
	return &t
}
