// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package tools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"creditlens/platform/shared/logger"
)

// ResultCache stores complete tool results keyed by tool and summary.
// Get returns ok=false on a miss.
type ResultCache interface {
	Get(ctx context.Context, key string) (ToolResult, bool, error)
	Set(ctx context.Context, key string, result ToolResult, ttl time.Duration) error
}

// CacheKey is the cache key for tool id over summary.
func CacheKey(id ToolID, summary string) string {
	sum := sha256.Sum256([]byte(summary))
	return "creditlens:tool:" + id.Slot() + ":" + hex.EncodeToString(sum[:])
}

type cachedAdapter struct {
	next  Adapter
	cache ResultCache
	ttl   time.Duration
	log   *logger.Logger
}

// Cached wraps next with a result cache. Cache errors are logged and ignored;
// only complete results are stored.
func Cached(next Adapter, cache ResultCache, ttl time.Duration, log *logger.Logger) Adapter {
	if cache == nil {
		return next
	}
	if log == nil {
		log = logger.New("tool-cache")
	}
	return &cachedAdapter{next: next, cache: cache, ttl: ttl, log: log}
}

func (c *cachedAdapter) ID() ToolID { return c.next.ID() }

func (c *cachedAdapter) Run(ctx context.Context, summary string) ToolResult {
	id := c.next.ID()
	key := CacheKey(id, UnwrapSummary(summary))

	cached, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warn("", "Cache read failed", map[string]interface{}{"tool": id.String(), "error": err.Error()})
	} else if ok && cached.Validate() == nil {
		c.log.Debug("", "Cache hit", map[string]interface{}{"tool": id.String()})
		return cached
	}

	result := c.next.Run(ctx, summary)
	if result.IsFailed() {
		return result
	}
	if err := c.cache.Set(ctx, key, result, c.ttl); err != nil {
		c.log.Warn("", "Cache write failed", map[string]interface{}{"tool": id.String(), "error": err.Error()})
	}
	return result
}
