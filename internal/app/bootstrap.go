package app

import (
	"fmt"
	"net/http"
	"strings"

	"matchengine/internal/delivery/http/middleware"
	"matchengine/internal/delivery/http/routes"
	v1 "matchengine/internal/delivery/http/routes/v1"
	"matchengine/internal/logging"
	"matchengine/internal/metrics"
	"matchengine/internal/pkg/jwt"
	"matchengine/internal/usecase"
	"matchengine/internal/ws"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
)

// NewAPI builds the Fiber app serving /health and the authenticated /api/v1
// routes.
func NewAPI(c *Container) *fiber.App {
	cfg := c.Config
	f := fiber.New(fiber.Config{
		AppName:     cfg.App.AppName,
		JSONEncoder: json.Marshal,
		JSONDecoder: json.Unmarshal,
	})

	registerGlobalMiddleware(f, c)

	jobs := usecase.NewMatchingJobUsecase(c.Queue, c.Users, c.Runs, c.Publisher(), logging.Component(c.Logger, "matching-jobs"))
	matches := usecase.NewMatchQueryUsecase(c.Matches, c.Cache, logging.Component(c.Logger, "match-query"))
	admin := usecase.NewQueueAdminUsecase(c.Queue, logging.Component(c.Logger, "queue-admin"))

	var events usecase.EventsState
	if c.Events != nil {
		events = c.Events
	}
	status := usecase.NewEngineStatusUsecase(c.DB, c.Queue, events, logging.Component(c.Logger, "status"))

	routes.NewRegistry(status, v1.Deps{
		JWT:          jwt.NewHMACService(cfg.JWT.AccessSecret, cfg.JWT.Issuer),
		MatchingJobs: jobs,
		Matches:      matches,
		QueueAdmin:   admin,
	}).Register(f)

	return f
}

func registerGlobalMiddleware(app *fiber.App, c *Container) {
	if app == nil {
		return
	}

	// Access log first: it must observe the status the error middleware writes.
	accessMw := middleware.NewAccessLogMiddleware(logging.Component(c.Logger, "access"))
	app.Use(accessMw.Middleware())

	errMw := middleware.NewErrorMiddleware(logging.Component(c.Logger, "http"))
	app.Use(errMw.Middleware())
}

// NewOpsMux serves /metrics and, when hub is non-nil, the /ws event stream.
func NewOpsMux(hub *ws.Hub, origins []string, c *Container) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if hub != nil {
		mux.Handle("/ws", ws.NewHandler(hub, origins, logging.Component(c.Logger, "ws")))
	}
	return mux
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", fmt.Errorf("empty port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}
