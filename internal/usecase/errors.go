package usecase

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInternal         = errors.New("internal error")
	ErrJobNotFound      = errors.New("matching job not found")
	ErrTargetNotFound   = errors.New("target user not found")
	ErrQueueUnavailable = errors.New("matching queue unavailable")
)
