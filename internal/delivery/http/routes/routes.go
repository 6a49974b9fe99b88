package routes

import (
	"matchengine/internal/delivery/http/handler"
	v1 "matchengine/internal/delivery/http/routes/v1"
	"matchengine/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

type Registry struct {
	health *handler.HealthHandler
	v1     v1.Deps
}

func NewRegistry(status usecase.EngineStatusUsecase, deps v1.Deps) *Registry {
	return &Registry{health: handler.NewHealthHandler(status), v1: deps}
}

func (r *Registry) Register(app *fiber.App) {
	if app == nil {
		return
	}

	r.registerHealth(app)
	r.registerAPI(app)
}

func (r *Registry) registerHealth(app *fiber.App) {
	r.health.RegisterRoutes(app)
}

func (r *Registry) registerAPI(app *fiber.App) {
	api := app.Group("/api")
	RegisterV1(api.Group("/v1"), r.v1)
}
