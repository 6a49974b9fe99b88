package handler

import (
	"strings"

	"matchengine/internal/delivery/http/dto"
	"matchengine/internal/delivery/http/middleware"
	"matchengine/internal/pkg/response"
	"matchengine/internal/pkg/validation"
	"matchengine/internal/usecase"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
)

type MatchingJobHandler struct {
	uc usecase.MatchingJobUsecase
}

func NewMatchingJobHandler(uc usecase.MatchingJobUsecase) *MatchingJobHandler {
	return &MatchingJobHandler{uc: uc}
}

func (h *MatchingJobHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	grp := r.Group("/matching/jobs")
	grp.Post("", h.Enqueue)
	grp.Get("/:id", h.Get)
}

func (h *MatchingJobHandler) Enqueue(c fiber.Ctx) error {
	mmID, ok := middleware.MatchmakerID(c)
	if !ok {
		return middleware.NewAppError(fiber.StatusUnauthorized, "Unauthorized", nil, nil)
	}

	var req dto.EnqueueMatchingJobRequest
	if err := c.Bind().Body(&req); err != nil {
		return middleware.NewAppError(fiber.StatusBadRequest, "Invalid request body", nil, err)
	}
	if err := validation.Struct(req); err != nil {
		return err
	}

	res, err := h.uc.Enqueue(c.Context(), usecase.EnqueueInput{
		JobID:        req.JobID,
		TargetUserID: req.TargetUserID,
		MatchmakerID: mmID,
		ForceRefresh: req.ForceRefresh,
	})
	if err != nil {
		return err
	}

	return response.Accepted(c, dto.EnqueueMatchingJobResponse{
		JobID:     res.JobID,
		Duplicate: res.Duplicate,
	})
}

func (h *MatchingJobHandler) Get(c fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if id == "" {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, nil)
	}

	v, err := h.uc.GetJob(c.Context(), id)
	if err != nil {
		return err
	}

	out := dto.MatchingJobResponse{
		JobID:        v.ID,
		Status:       string(v.Status),
		AttemptsMade: v.AttemptsMade,
		MaxAttempts:  v.MaxAttempts,
		FailedReason: v.FailedReason,
		CreatedAt:    v.CreatedAt,
		ProcessedAt:  v.ProcessedAt,
		FinishedAt:   v.FinishedAt,
	}
	if v.Data != nil {
		out.TargetUserID = v.Data.TargetUserID
		out.MatchmakerID = v.Data.MatchmakerID
		out.ForceRefresh = v.Data.ForceRefresh
	}
	if v.ReturnValue != "" {
		out.Result = json.RawMessage(v.ReturnValue)
	}
	if v.Run != nil {
		if out.TargetUserID == "" {
			out.TargetUserID = v.Run.TargetUserID
			out.MatchmakerID = v.Run.MatchmakerID
			out.ForceRefresh = v.Run.ForceRefresh
		}
		if out.AttemptsMade == 0 {
			out.AttemptsMade = v.Run.Attempts
		}
		if out.FailedReason == "" {
			out.FailedReason = v.Run.Error
		}
		out.Run = &dto.MatchingJobRunResponse{
			CandidatesConsidered: v.Run.CandidatesConsidered,
			MatchesFound:         v.Run.MatchesFound,
			Error:                v.Run.Error,
			StartedAt:            v.Run.StartedAt,
			FinishedAt:           v.Run.FinishedAt,
		}
	}

	return response.Success(c, fiber.StatusOK, response.MessageOK, out)
}
