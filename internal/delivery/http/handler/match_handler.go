package handler

import (
	"strconv"
	"strings"

	"matchengine/internal/delivery/http/dto"
	"matchengine/internal/delivery/http/middleware"
	"matchengine/internal/pkg/response"
	"matchengine/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

const maxMatchesLimit = 500

type MatchHandler struct {
	uc usecase.MatchQueryUsecase
}

func NewMatchHandler(uc usecase.MatchQueryUsecase) *MatchHandler {
	return &MatchHandler{uc: uc}
}

func (h *MatchHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/matching/targets/:user_id/matches", h.ListForTarget)
}

func (h *MatchHandler) ListForTarget(c fiber.Ctx) error {
	target := strings.TrimSpace(c.Params("user_id"))
	if target == "" {
		return middleware.NewAppError(fiber.StatusBadRequest, "Bad request", nil, nil)
	}

	limit, err := parseIntQuery(c, "limit", 50)
	if err != nil || limit <= 0 || limit > maxMatchesLimit {
		return middleware.NewAppError(fiber.StatusBadRequest, "Invalid limit", nil, err)
	}

	items, err := h.uc.ListForTarget(c.Context(), target, limit)
	if err != nil {
		return err
	}

	out := dto.PotentialMatchListResponse{
		TargetUserID: target,
		Items:        make([]dto.PotentialMatchResponse, 0, len(items)),
	}
	for _, m := range items {
		out.Items = append(out.Items, dto.PotentialMatchResponse{
			ID:                m.ID,
			CandidateUserID:   m.CandidateUserID,
			OverallScore:      m.OverallScore,
			ScoreForTarget:    m.ScoreForTarget,
			ScoreForCandidate: m.ScoreForCandidate,
			Status:            string(m.Status),
			ShortReasoning:    m.ShortReasoning,
			Breakdown:         m.Breakdown,
			JobID:             m.JobID,
			ScannedAt:         m.ScannedAt,
			UpdatedAt:         m.UpdatedAt,
		})
	}

	return response.Success(c, fiber.StatusOK, response.MessageOK, out)
}

func parseIntQuery(c fiber.Ctx, key string, def int) (int, error) {
	s := strings.TrimSpace(c.Query(key))
	if s == "" {
		return def, nil
	}
	return strconv.Atoi(s)
}
