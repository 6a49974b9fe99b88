package supervisor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"matchengine/internal/messaging"

	"github.com/gofiber/fiber/v3"
)

// HTTPServer is the part of *http.Server the service drives.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

type HTTPService struct {
	name            string
	server          HTTPServer
	shutdownTimeout time.Duration
}

func NewHTTPService(name string, server HTTPServer, shutdownTimeout time.Duration) *HTTPService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPService{name: name, server: server, shutdownTimeout: shutdownTimeout}
}

func (s *HTTPService) String() string { return s.name }

func (s *HTTPService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		err := s.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	}
}

// FiberService runs a Fiber app until ctx is cancelled.
type FiberService struct {
	app             *fiber.App
	addr            string
	shutdownTimeout time.Duration
}

func NewFiberService(app *fiber.App, addr string, shutdownTimeout time.Duration) *FiberService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &FiberService{app: app, addr: addr, shutdownTimeout: shutdownTimeout}
}

func (s *FiberService) String() string { return "api-server" }

func (s *FiberService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(s.addr, fiber.ListenConfig{DisableStartupMessage: true})
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.app.ShutdownWithTimeout(s.shutdownTimeout); err != nil {
			return err
		}
		return ctx.Err()
	}
}

// JobEventSource delivers job events; *messaging.Client satisfies it.
type JobEventSource interface {
	SubscribeJobs(handler func(messaging.JobEvent)) error
}

// EventRelay forwards job events from the bus to a sink such as the
// WebSocket hub.
type EventRelay struct {
	source JobEventSource
	sink   func(messaging.JobEvent)
	once   bool
}

func NewEventRelay(source JobEventSource, sink func(messaging.JobEvent)) *EventRelay {
	return &EventRelay{source: source, sink: sink}
}

func (r *EventRelay) String() string { return "event-relay" }

// Serve subscribes once and holds the subscription for the life of the
// process; the client owns reconnects.
func (r *EventRelay) Serve(ctx context.Context) error {
	if !r.once {
		if err := r.source.SubscribeJobs(r.sink); err != nil {
			return err
		}
		r.once = true
	}
	<-ctx.Done()
	return ctx.Err()
}
