// Package cache provides a redis read-through cache for the active SLA rule
// set. Rule reads happen on every observation creation; rule writes are rare
// admin operations, so a short TTL plus explicit invalidation keeps the cache
// honest without coherence machinery.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"remedia/internal/sla"
)

const activeRulesKey = "sla:rules:active"

// Source is the upstream the cache reads through to.
type Source interface {
	ListActive(ctx context.Context) ([]sla.Rule, error)
}

// Cache wraps a rule source with redis. A cache failure degrades to the
// upstream read; it never fails rule resolution.
type Cache struct {
	source Source
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func New(source Source, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{source: source, client: client, ttl: ttl, logger: logger}
}

func (c *Cache) ListActive(ctx context.Context) ([]sla.Rule, error) {
	raw, err := c.client.Get(ctx, activeRulesKey).Bytes()
	if err == nil {
		var rules []sla.Rule
		if jsonErr := json.Unmarshal(raw, &rules); jsonErr == nil {
			return rules, nil
		}
		// Corrupt payload: fall through to the source and rewrite.
	} else if !errors.Is(err, redis.Nil) {
		c.logger.WarnContext(ctx, "sla rule cache read failed", "error", err.Error())
	}

	rules, err := c.source.ListActive(ctx)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(rules)
	if err != nil {
		return rules, nil
	}
	if err := c.client.Set(ctx, activeRulesKey, payload, c.ttl).Err(); err != nil {
		c.logger.WarnContext(ctx, "sla rule cache write failed", "error", err.Error())
	}
	return rules, nil
}

// Invalidate drops the cached rule set. Called after any rule write.
func (c *Cache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, activeRulesKey).Err(); err != nil {
		return fmt.Errorf("invalidate sla rule cache: %w", err)
	}
	return nil
}
