package middleware

import (
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"matchengine/internal/pkg/jwt"
	"matchengine/internal/pkg/response"
	"matchengine/internal/pkg/validation"
	"matchengine/internal/usecase"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

func errorApp(fail error) *fiber.App {
	app := fiber.New()
	app.Use(NewErrorMiddleware(zerolog.Nop()).Middleware())
	app.Get("/fail", func(c fiber.Ctx) error { return fail })
	app.Get("/panic", func(c fiber.Ctx) error { panic("boom") })
	return app
}

func doRequest(t *testing.T, app *fiber.App, path string) (int, response.SemanticResponse) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, path, nil))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	var body response.SemanticResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp.StatusCode, body
}

func TestErrorMiddleware_MapsSentinels(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"target missing", fmt.Errorf("enqueue: %w", usecase.ErrTargetNotFound), fiber.StatusNotFound, "Target user not found"},
		{"job missing", usecase.ErrJobNotFound, fiber.StatusNotFound, "Matching job not found"},
		{"bad input", fmt.Errorf("%w: job id must be a uuid", usecase.ErrInvalidInput), fiber.StatusBadRequest, "Bad request"},
		{"broker down", usecase.ErrQueueUnavailable, fiber.StatusServiceUnavailable, "Matching queue unavailable"},
		{"no bearer", errMissingBearer, fiber.StatusUnauthorized, "Unauthorized"},
		{"expired token", jwt.ErrTokenExpired, fiber.StatusUnauthorized, "Token expired"},
		{"unknown", errors.New("pool exhausted"), fiber.StatusInternalServerError, response.MessageInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := doRequest(t, errorApp(tc.err), "/fail")
			if status != tc.status || body.Status != tc.status {
				t.Fatalf("expected %d, got %d (body %d)", tc.status, status, body.Status)
			}
			if body.Message != tc.msg {
				t.Fatalf("expected message %q, got %q", tc.msg, body.Message)
			}
		})
	}
}

func TestErrorMiddleware_ValidationFieldsInData(t *testing.T) {
	verr := &validation.Error{Fields: []validation.FieldError{{Field: "target_user_id", Tag: "required"}}}

	status, body := doRequest(t, errorApp(verr), "/fail")
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	fields, ok := body.Data.([]any)
	if !ok || len(fields) != 1 {
		t.Fatalf("expected field errors in data, got %#v", body.Data)
	}
}

func TestErrorMiddleware_ServerErrorsHideCause(t *testing.T) {
	err := NewAppError(fiber.StatusBadGateway, "upstream said no", map[string]string{"secret": "x"}, errors.New("dial tcp"))

	status, body := doRequest(t, errorApp(err), "/fail")
	if status != fiber.StatusInternalServerError || body.Data != nil {
		t.Fatalf("expected bare 500, got %d %#v", status, body)
	}
}

func TestErrorMiddleware_RecoversPanic(t *testing.T) {
	status, body := doRequest(t, errorApp(nil), "/panic")
	if status != fiber.StatusInternalServerError || body.Message != response.MessageInternalServerError {
		t.Fatalf("expected 500 envelope, got %d %+v", status, body)
	}
}
