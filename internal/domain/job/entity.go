package job

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"matchengine/internal/pkg/validation"

	"github.com/goccy/go-json"
)

// CurrentVersion is the schema version written by Encode.
const CurrentVersion = 1

var (
	ErrMalformedPayload   = errors.New("malformed matching job payload")
	ErrUnsupportedVersion = errors.New("unsupported matching job payload version")
)

// MatchingJobData is the closed queue message for one matching run.
type MatchingJobData struct {
	Version      int    `json:"v" validate:"eq=1"`
	JobID        string `json:"jobId" validate:"required,max=200"`
	TargetUserID string `json:"targetUserId" validate:"required,max=128"`
	MatchmakerID string `json:"matchmakerId" validate:"required,max=128"`
	ForceRefresh bool   `json:"forceRefresh"`
}

// legacyV0 is the untagged payload shape that predates versioning, with a
// loosely typed force flag.
type legacyV0 struct {
	JobID        string `json:"jobId"`
	TargetUserID string `json:"targetUserId"`
	MatchmakerID string `json:"matchmakerId"`
	ForceRefresh any    `json:"forceRefresh"`
}

func (d MatchingJobData) Validate() error {
	if err := validation.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

// Encode stamps the current version and serialises d.
func Encode(d MatchingJobData) ([]byte, error) {
	d.Version = CurrentVersion
	d.JobID = strings.TrimSpace(d.JobID)
	d.TargetUserID = strings.TrimSpace(d.TargetUserID)
	d.MatchmakerID = strings.TrimSpace(d.MatchmakerID)
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(d)
}

// Decode parses a payload of any known version into the current schema.
// Unknown versions and unknown fields are rejected.
func Decode(b []byte) (MatchingJobData, error) {
	var head struct {
		Version *int `json:"v"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return MatchingJobData{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if head.Version == nil {
		return decodeV0(b)
	}

	switch *head.Version {
	case 1:
		var d MatchingJobData
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&d); err != nil {
			return MatchingJobData{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if err := d.Validate(); err != nil {
			return MatchingJobData{}, err
		}
		return d, nil
	default:
		return MatchingJobData{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, *head.Version)
	}
}

func decodeV0(b []byte) (MatchingJobData, error) {
	var old legacyV0
	if err := json.Unmarshal(b, &old); err != nil {
		return MatchingJobData{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	force, err := looseBool(old.ForceRefresh)
	if err != nil {
		return MatchingJobData{}, fmt.Errorf("%w: forceRefresh: %v", ErrMalformedPayload, err)
	}

	d := MatchingJobData{
		Version:      CurrentVersion,
		JobID:        strings.TrimSpace(old.JobID),
		TargetUserID: strings.TrimSpace(old.TargetUserID),
		MatchmakerID: strings.TrimSpace(old.MatchmakerID),
		ForceRefresh: force,
	}
	if err := d.Validate(); err != nil {
		return MatchingJobData{}, err
	}
	return d, nil
}

func looseBool(v any) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, nil
	case bool:
		return t, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return false, nil
		}
		return strconv.ParseBool(strings.TrimSpace(t))
	case float64:
		return t != 0, nil
	default:
		return false, fmt.Errorf("unexpected type %T", v)
	}
}

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusDelayed   Status = "delayed"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// InFlight reports whether a job in this status still owns its id.
func (s Status) InFlight() bool {
	return s == StatusWaiting || s == StatusActive || s == StatusDelayed
}

// Run is the durable summary of one matching run.
type Run struct {
	ID                   string
	TargetUserID         string
	MatchmakerID         string
	ForceRefresh         bool
	Status               Status
	Attempts             int
	CandidatesConsidered int
	MatchesFound         int
	Error                string
	StartedAt            *time.Time
	FinishedAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}
