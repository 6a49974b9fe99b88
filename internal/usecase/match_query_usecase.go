package usecase

import (
	"context"
	"strings"
	"time"

	"matchengine/internal/domain/match"
	"matchengine/internal/repository"
	"matchengine/internal/worker"

	"github.com/rs/zerolog"
)

const matchesCacheTTL = 30 * time.Second

type JSONCache interface {
	GetJSON(ctx context.Context, key string, out any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

type MatchQueryUsecase interface {
	ListForTarget(ctx context.Context, targetUserID string, limit int) ([]match.PotentialMatch, error)
}

type MatchQuery struct {
	matches repository.PotentialMatchRepository
	cache   JSONCache
	logger  zerolog.Logger
}

func NewMatchQueryUsecase(matches repository.PotentialMatchRepository, cache JSONCache, logger zerolog.Logger) *MatchQuery {
	return &MatchQuery{matches: matches, cache: cache, logger: logger}
}

type cachedMatches struct {
	Limit int                    `json:"limit"`
	Items []match.PotentialMatch `json:"items"`
}

// ListForTarget returns stored matches for a target, best first. Results
// are cached per target for a short time; the worker drops the entry when
// it writes new rows.
func (u *MatchQuery) ListForTarget(ctx context.Context, targetUserID string, limit int) ([]match.PotentialMatch, error) {
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" || limit < 0 {
		return nil, ErrInvalidInput
	}
	if limit == 0 {
		limit = 50
	}

	key := worker.MatchesCacheKey(targetUserID)
	if u.cache != nil {
		var c cachedMatches
		ok, err := u.cache.GetJSON(ctx, key, &c)
		if err == nil && ok && c.Limit >= limit {
			if len(c.Items) > limit {
				c.Items = c.Items[:limit]
			}
			return c.Items, nil
		}
	}

	items, err := u.matches.ListForTarget(ctx, targetUserID, limit)
	if err != nil {
		u.logger.Error().Err(err).Str("target_user_id", targetUserID).Msg("list potential matches")
		return nil, ErrInternal
	}

	if u.cache != nil {
		if err := u.cache.SetJSON(ctx, key, cachedMatches{Limit: limit, Items: items}, matchesCacheTTL); err != nil {
			u.logger.Debug().Err(err).Msg("cache potential matches")
		}
	}
	return items, nil
}
