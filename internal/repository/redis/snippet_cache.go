package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Harsh-BH/sentinel-judge/internal/domain"
	"github.com/Harsh-BH/sentinel-judge/internal/repository"
)

var _ repository.SnippetStore = (*CachedSnippetStore)(nil)

const (
	snippetKeyPrefix = "sentinel:snippet:"

	// noTemplate marks a cached miss. Postgres text cannot hold a NUL byte,
	// so no stored template can equal it.
	noTemplate = "\x00none"
)

// CachedSnippetStore caches templates, including "no template", in front of
// another SnippetStore. Cache failures fall through to the backing store.
type CachedSnippetStore struct {
	next   repository.SnippetStore
	client goredis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedSnippetStore wraps next with a Redis cache whose entries live for ttl.
func NewCachedSnippetStore(next repository.SnippetStore, client goredis.UniversalClient, ttl time.Duration, logger *zap.Logger) *CachedSnippetStore {
	return &CachedSnippetStore{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func snippetKey(problemID int64, lang domain.Language) string {
	return fmt.Sprintf("%s%d:%s", snippetKeyPrefix, problemID, lang)
}

func (c *CachedSnippetStore) FindTemplate(ctx context.Context, problemID int64, lang domain.Language) (string, bool, error) {
	key := snippetKey(problemID, lang)

	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		if cached == noTemplate {
			return "", false, nil
		}
		return cached, true, nil
	case !errors.Is(err, goredis.Nil):
		c.logger.Warn("Snippet cache read failed", zap.String("key", key), zap.Error(err))
	}

	tpl, found, err := c.next.FindTemplate(ctx, problemID, lang)
	if err != nil {
		return "", false, err
	}

	value := tpl
	if !found {
		value = noTemplate
	}
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Warn("Snippet cache write failed", zap.String("key", key), zap.Error(err))
	}
	return tpl, found, nil
}

