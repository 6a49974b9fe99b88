package matching

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"matchengine/internal/domain/user"
)

type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "PENDING"
	MatchStatusDismissed MatchStatus = "DISMISSED"
	MatchStatusSent      MatchStatus = "SENT"
	MatchStatusExpired   MatchStatus = "EXPIRED"
)

type PotentialMatch struct {
	TargetUserID      string
	CandidateUserID   string
	OverallScore      int
	ScoreForTarget    int
	ScoreForCandidate int
	Breakdown         []DimensionResult
	Status            MatchStatus

	CandidateLastActiveAt *time.Time
	ScannedAt             time.Time
}

// Verdict returns the breakdown entry for dim.
func (m PotentialMatch) Verdict(dim Dimension) (DimensionResult, bool) {
	for _, d := range m.Breakdown {
		if d.Dimension == dim {
			return d, true
		}
	}
	return DimensionResult{}, false
}

type Rejection struct {
	CandidateUserID string
	Reason          string
}

// Report is the full outcome of one scoring pass.
type Report struct {
	Matches  []PotentialMatch
	Rejected []Rejection
}

type Engine struct {
	weights Weights
	now     func() time.Time
}

type Option func(*Engine)

// WithClock fixes the reference time used for ages.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func WithWeights(w Weights) Option {
	return func(e *Engine) {
		if w != nil {
			e.weights = w
		}
	}
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{weights: DefaultWeights(), now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ScoreCandidates returns the ranked potential matches for target. A non-nil
// error is always a *MatchingError.
func (e *Engine) ScoreCandidates(target Profile, pool []Profile) ([]PotentialMatch, error) {
	rep, err := e.Evaluate(target, pool)
	if err != nil {
		return nil, err
	}
	return rep.Matches, nil
}

// Evaluate is ScoreCandidates plus the list of candidates removed by hard
// filters.
func (e *Engine) Evaluate(target Profile, pool []Profile) (rep Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			rep = Report{}
			err = computationError(target.UserID, "panic during scoring", fmt.Errorf("%v", r))
		}
	}()

	if strings.TrimSpace(target.UserID) == "" {
		return Report{}, dataError("", "target profile has no user id")
	}
	if !target.Gender.Valid() {
		return Report{}, dataError(target.UserID, "target profile missing gender")
	}
	if target.BirthDate == nil || target.BirthDate.IsZero() {
		return Report{}, dataError(target.UserID, "target profile missing birth date")
	}
	if e.weights.total() <= 0 {
		return Report{}, computationError(target.UserID, "dimension weights sum to zero", nil)
	}

	at := e.now().UTC()
	rep = Report{
		Matches:  make([]PotentialMatch, 0, len(pool)),
		Rejected: make([]Rejection, 0),
	}

	for _, c := range pool {
		if reason, ok := hardFilter(target, c); !ok {
			rep.Rejected = append(rep.Rejected, Rejection{CandidateUserID: c.UserID, Reason: reason})
			continue
		}
		rep.Matches = append(rep.Matches, e.score(target, c, at))
	}

	Rank(rep.Matches)
	return rep, nil
}

func hardFilter(target, c Profile) (string, bool) {
	switch {
	case strings.TrimSpace(c.UserID) == "":
		return "missing user id", false
	case c.UserID == target.UserID:
		return "same user", false
	case c.Gender != target.Gender.Opposite():
		return "gender not opposite", false
	case c.UserStatus != user.StatusActive:
		return "user not active", false
	case c.AvailabilityStatus != user.AvailabilityAvailable:
		return "not available", false
	case !c.IsVisible:
		return "profile hidden", false
	case target.Excludes(c.UserID) || c.Excludes(target.UserID):
		return "existing suggestion or block", false
	}
	return "", true
}

func (e *Engine) score(target, c Profile, at time.Time) PotentialMatch {
	breakdown := make([]DimensionResult, 0, len(Dimensions))

	var total, sum, targetSum, candidateSum float64
	for _, dim := range Dimensions {
		w := e.weights[dim]
		if w <= 0 {
			continue
		}
		res := evaluateDimension(dim, w, target, c, at)
		breakdown = append(breakdown, res)

		fw := float64(w)
		total += fw
		sum += fw * res.Verdict.credit()
		targetSum += fw * res.TargetSide.credit()
		candidateSum += fw * res.CandidateSide.credit()
	}

	return PotentialMatch{
		TargetUserID:          target.UserID,
		CandidateUserID:       c.UserID,
		OverallScore:          percent(sum, total),
		ScoreForTarget:        percent(targetSum, total),
		ScoreForCandidate:     percent(candidateSum, total),
		Breakdown:             breakdown,
		Status:                MatchStatusPending,
		CandidateLastActiveAt: c.LastActiveAt,
		ScannedAt:             at,
	}
}

func percent(part, total float64) int {
	if total <= 0 {
		return 0
	}
	return clampInt(int(math.Round(100*part/total)), 0, 100)
}

// Rank orders matches by score, then most recently active candidate, then
// candidate id.
func Rank(ms []PotentialMatch) {
	sort.SliceStable(ms, func(i, j int) bool {
		a, b := ms[i], ms[j]
		if a.OverallScore != b.OverallScore {
			return a.OverallScore > b.OverallScore
		}
		at, bt := a.CandidateLastActiveAt, b.CandidateLastActiveAt
		switch {
		case at != nil && bt == nil:
			return true
		case at == nil && bt != nil:
			return false
		case at != nil && bt != nil && !at.Equal(*bt):
			return at.After(*bt)
		}
		return a.CandidateUserID < b.CandidateUserID
	})
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
