package v1

import (
	"matchengine/internal/delivery/http/handler"

	"github.com/gofiber/fiber/v3"
)

func RegisterMatching(r fiber.Router, jobs *handler.MatchingJobHandler, matches *handler.MatchHandler) {
	if r == nil {
		return
	}
	if jobs != nil {
		jobs.RegisterRoutes(r)
	}
	if matches != nil {
		matches.RegisterRoutes(r)
	}
}

func RegisterQueue(r fiber.Router, queue *handler.QueueHandler) {
	if r == nil || queue == nil {
		return
	}
	queue.RegisterRoutes(r)
}
