package matching

import "fmt"

type ErrorKind string

const (
	// KindData covers missing or malformed input. Retrying cannot help.
	KindData ErrorKind = "data"
	// KindComputation covers unexpected failures inside scoring.
	KindComputation ErrorKind = "computation"
)

type MatchingError struct {
	Kind   ErrorKind
	UserID string
	Msg    string
	Err    error
}

func (e *MatchingError) Error() string {
	if e == nil {
		return ""
	}
	s := fmt.Sprintf("matching %s error", e.Kind)
	if e.UserID != "" {
		s += " user_id=" + e.UserID
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *MatchingError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Retryable reports whether running the same input again could succeed.
func (e *MatchingError) Retryable() bool {
	return e != nil && e.Kind != KindData
}

func dataError(userID, msg string) *MatchingError {
	return &MatchingError{Kind: KindData, UserID: userID, Msg: msg}
}

func computationError(userID, msg string, err error) *MatchingError {
	return &MatchingError{Kind: KindComputation, UserID: userID, Msg: msg, Err: err}
}

// NewDataError reports input that can never be scored, such as a target
// without a profile.
func NewDataError(userID, msg string) *MatchingError {
	return dataError(userID, msg)
}
