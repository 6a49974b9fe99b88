package queue

import "errors"

var (
	// ErrBrokerUnavailable wraps every failure to reach Redis on enqueue,
	// including an open circuit.
	ErrBrokerUnavailable = errors.New("queue broker unavailable")
	ErrJobNotFound       = errors.New("queue job not found")
	// ErrLockLost means another worker or the stalled sweep took the job.
	ErrLockLost    = errors.New("queue job lock lost")
	ErrInvalidData = errors.New("invalid queue job data")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err so the job fails without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err must not be retried. Errors that expose
// Retryable() false are treated as permanent too.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return true
	}
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return !r.Retryable()
	}
	return false
}
