package v1

import (
	"matchengine/internal/delivery/http/handler"
	"matchengine/internal/delivery/http/middleware"
	"matchengine/internal/pkg/jwt"
	"matchengine/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

type Deps struct {
	JWT          jwt.Service
	MatchingJobs usecase.MatchingJobUsecase
	Matches      usecase.MatchQueryUsecase
	QueueAdmin   usecase.QueueAdminUsecase
}

func Register(r fiber.Router, deps Deps) {
	if r == nil {
		return
	}

	authMw := middleware.NewAuthMiddleware(deps.JWT)
	protected := r.Group("", authMw.Middleware())

	RegisterMatching(protected,
		handler.NewMatchingJobHandler(deps.MatchingJobs),
		handler.NewMatchHandler(deps.Matches),
	)
	RegisterQueue(protected, handler.NewQueueHandler(deps.QueueAdmin))
}
