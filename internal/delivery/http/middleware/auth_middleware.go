package middleware

import (
	"strings"

	"matchengine/internal/pkg/jwt"

	"github.com/gofiber/fiber/v3"
)

const CtxMatchmakerIDKey = "matchmaker_id"

type AuthMiddleware struct {
	jwt jwt.Service
}

func NewAuthMiddleware(jwtSvc jwt.Service) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwtSvc}
}

func (m *AuthMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		token, ok := bearerTokenFromHeader(c.Get("Authorization"))
		if !ok {
			return errMissingBearer
		}

		claims, err := m.jwt.ValidateToken(token)
		if err != nil {
			return err
		}

		c.Locals(CtxMatchmakerIDKey, claims.MatchmakerID)

		return c.Next()
	}
}

// MatchmakerID returns the authenticated matchmaker, if any.
func MatchmakerID(c fiber.Ctx) (string, bool) {
	id, ok := c.Locals(CtxMatchmakerIDKey).(string)
	return id, ok && id != ""
}

func bearerTokenFromHeader(authHeader string) (string, bool) {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}
