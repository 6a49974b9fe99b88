package handler

import (
	"time"

	"matchengine/internal/delivery/http/dto"
	"matchengine/internal/delivery/http/middleware"
	"matchengine/internal/pkg/response"
	"matchengine/internal/pkg/validation"
	"matchengine/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

type QueueHandler struct {
	uc usecase.QueueAdminUsecase
}

func NewQueueHandler(uc usecase.QueueAdminUsecase) *QueueHandler {
	return &QueueHandler{uc: uc}
}

func (h *QueueHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	grp := r.Group("/queue")
	grp.Get("/stats", h.Stats)
	grp.Delete("", h.Empty)
	grp.Post("/clean", h.Clean)
}

func (h *QueueHandler) Stats(c fiber.Ctx) error {
	s, err := h.uc.Stats(c.Context())
	if err != nil {
		return err
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.QueueStatsResponse{
		Waiting:   s.Waiting,
		Active:    s.Active,
		Delayed:   s.Delayed,
		Completed: s.Completed,
		Failed:    s.Failed,
	})
}

func (h *QueueHandler) Empty(c fiber.Ctx) error {
	n, err := h.uc.Empty(c.Context())
	if err != nil {
		return err
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.RemovedResponse{Removed: n})
}

func (h *QueueHandler) Clean(c fiber.Ctx) error {
	var req dto.CleanQueueRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Invalid request body", nil, err)
	}
	if err := validation.Struct(req); err != nil {
		return err
	}

	n, err := h.uc.Clean(c.Context(), req.Status, time.Duration(req.GraceSeconds)*time.Second, req.Limit)
	if err != nil {
		return err
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, dto.RemovedResponse{Removed: n})
}
