package middleware

import (
	"errors"
	"runtime/debug"

	"matchengine/internal/pkg/jwt"
	"matchengine/internal/pkg/response"
	"matchengine/internal/pkg/validation"
	"matchengine/internal/usecase"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

// AppError carries an explicit status for failures a handler detects itself.
type AppError struct {
	StatusCode int
	Message    string
	Data       any
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

func NewAppError(statusCode int, message string, data any, cause error) *AppError {
	return &AppError{StatusCode: statusCode, Message: message, Data: data, Cause: cause}
}

// errMissingBearer is returned by the auth middleware when no bearer token
// was sent.
var errMissingBearer = errors.New("missing bearer token")

type statusMapping struct {
	err     error
	status  int
	message string
}

// sentinelStatuses maps the errors usecases and the token service return.
// Handlers return them unwrapped; the first match wins.
var sentinelStatuses = []statusMapping{
	{usecase.ErrInvalidInput, fiber.StatusBadRequest, "Bad request"},
	{usecase.ErrTargetNotFound, fiber.StatusNotFound, "Target user not found"},
	{usecase.ErrJobNotFound, fiber.StatusNotFound, "Matching job not found"},
	{usecase.ErrQueueUnavailable, fiber.StatusServiceUnavailable, "Matching queue unavailable"},
	{errMissingBearer, fiber.StatusUnauthorized, "Unauthorized"},
	{jwt.ErrTokenExpired, fiber.StatusUnauthorized, "Token expired"},
	{jwt.ErrTokenInvalid, fiber.StatusUnauthorized, "Invalid token"},
}

type ErrorMiddleware struct {
	logger zerolog.Logger
}

func NewErrorMiddleware(logger zerolog.Logger) *ErrorMiddleware {
	return &ErrorMiddleware{logger: logger}
}

func (m *ErrorMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error().
					Str("rid", c.GetRespHeader(response.HeaderRequestID)).
					Str("path", c.Path()).
					Str("stack", string(debug.Stack())).
					Msgf("panic recovered: %v", r)
				err = response.Error(c, fiber.StatusInternalServerError, "", nil)
			}
		}()

		err = c.Next()
		if err == nil {
			return nil
		}

		status, msg, data := resolveError(err)
		if status >= fiber.StatusInternalServerError {
			m.logger.Error().Err(err).
				Str("rid", c.GetRespHeader(response.HeaderRequestID)).
				Str("method", c.Method()).
				Str("path", c.Path()).
				Int("status", status).
				Msg("request failed")
		}
		return response.Error(c, status, msg, data)
	}
}

// resolveError turns a handler error into status, message and payload. An
// empty message falls back to the envelope default for the status. Causes of
// server errors never reach the client.
func resolveError(err error) (int, string, any) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		switch {
		case appErr.StatusCode == fiber.StatusServiceUnavailable:
			return appErr.StatusCode, appErr.Message, nil
		case appErr.StatusCode <= 0 || appErr.StatusCode >= fiber.StatusInternalServerError:
			return fiber.StatusInternalServerError, "", nil
		}
		return appErr.StatusCode, appErr.Message, appErr.Data
	}

	var verr *validation.Error
	if errors.As(err, &verr) {
		return fiber.StatusUnprocessableEntity, "Validation failed", verr.Fields
	}

	for _, s := range sentinelStatuses {
		if errors.Is(err, s.err) {
			return s.status, s.message, nil
		}
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) && fiberErr.Code > 0 && fiberErr.Code < fiber.StatusInternalServerError {
		return fiberErr.Code, fiberErr.Message, nil
	}

	return fiber.StatusInternalServerError, "", nil
}
