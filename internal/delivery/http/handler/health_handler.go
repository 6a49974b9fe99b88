package handler

import (
	"matchengine/internal/pkg/response"
	"matchengine/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

type HealthHandler struct {
	uc usecase.EngineStatusUsecase
}

func NewHealthHandler(uc usecase.EngineStatusUsecase) *HealthHandler {
	return &HealthHandler{uc: uc}
}

func (h *HealthHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/health", h.Health)
}

// Health reports 200 when Postgres and Redis answer and 503 otherwise, with
// the full status either way.
func (h *HealthHandler) Health(c fiber.Ctx) error {
	st := h.uc.GetStatus(c.Context())
	if !st.Healthy() {
		return response.Error(c, fiber.StatusServiceUnavailable, response.MessageServiceUnavailable, st)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, st)
}
