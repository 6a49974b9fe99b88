package match

import (
	"time"

	"matchengine/internal/domain/matching"

	"github.com/google/uuid"
)

// PotentialMatch is the stored form of a scored pair, as handed to the
// suggestion workflow.
type PotentialMatch struct {
	ID                uuid.UUID
	TargetUserID      string
	CandidateUserID   string
	OverallScore      int
	ScoreForTarget    int
	ScoreForCandidate int
	Breakdown         []matching.DimensionResult
	ShortReasoning    string
	Status            matching.MatchStatus
	JobID             *string
	ScannedAt         time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type UpsertOutcome string

const (
	OutcomeCreated   UpsertOutcome = "created"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
	// OutcomeAbsent is a refresh-only write for a pair with no stored row.
	OutcomeAbsent UpsertOutcome = "absent"
)

type UpsertSummary struct {
	Created   int
	Updated   int
	Unchanged int
}

func (s *UpsertSummary) Add(o UpsertOutcome) {
	switch o {
	case OutcomeCreated:
		s.Created++
	case OutcomeUpdated:
		s.Updated++
	case OutcomeUnchanged:
		s.Unchanged++
	}
}

func (s UpsertSummary) Total() int {
	return s.Created + s.Updated + s.Unchanged
}
