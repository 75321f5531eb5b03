// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"creditlens/platform/connectors/base"
	"creditlens/platform/orchestrator/tools"
)

// ResultCache stores tool results in Redis as JSON strings.
type ResultCache struct {
	name   string
	client *redis.Client
	logger *log.Logger
}

var _ tools.ResultCache = (*ResultCache)(nil)

// NewResultCache connects using a redis:// URL and pings the server.
func NewResultCache(ctx context.Context, url string) (*ResultCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, base.NewConnectorError("redis", "Connect", "invalid redis url", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	c := NewResultCacheWithClient(redis.NewClient(opts))
	if err := c.client.Ping(ctx).Err(); err != nil {
		c.client.Close()
		return nil, base.NewConnectorError(c.name, "Connect", "failed to ping Redis", err)
	}

	c.logger.Printf("Connected to Redis: %s (db=%d)", opts.Addr, opts.DB)
	return c, nil
}

// NewResultCacheWithClient wraps an existing client.
func NewResultCacheWithClient(client *redis.Client) *ResultCache {
	return &ResultCache{
		name:   "redis",
		client: client,
		logger: log.New(os.Stdout, "[REDIS_CACHE] ", log.LstdFlags),
	}
}

// Get returns the cached result for key. A miss is ok=false with no error.
func (c *ResultCache) Get(ctx context.Context, key string) (tools.ToolResult, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return tools.ToolResult{}, false, nil
	}
	if err != nil {
		return tools.ToolResult{}, false, base.NewConnectorError(c.name, "Get", "GET failed", err)
	}

	var result tools.ToolResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return tools.ToolResult{}, false, base.NewConnectorError(c.name, "Get", "cached value is not a tool result", err)
	}
	return result, true, nil
}

// Set stores result under key. A zero ttl keeps the entry until evicted.
func (c *ResultCache) Set(ctx context.Context, key string, result tools.ToolResult, ttl time.Duration) error {
	data, err := json.Marshal(result)
	if err != nil {
		return base.NewConnectorError(c.name, "Set", "failed to encode result", err)
	}
	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return base.NewConnectorError(c.name, "Set", "SET failed", err)
	}
	return nil
}

// HealthCheck pings the server.
func (c *ResultCache) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	start := time.Now()
	err := c.client.Ping(ctx).Err()
	latency := time.Since(start)

	if err != nil {
		return &base.HealthStatus{
			Healthy:   false,
			Latency:   latency,
			Timestamp: time.Now(),
			Error:     err.Error(),
		}, nil
	}

	stats := c.client.PoolStats()
	return &base.HealthStatus{
		Healthy: true,
		Latency: latency,
		Details: map[string]string{
			"total_conns": itoa(stats.TotalConns),
			"idle_conns":  itoa(stats.IdleConns),
		},
		Timestamp: time.Now(),
	}, nil
}

// Close closes the client.
func (c *ResultCache) Close() error {
	return c.client.Close()
}

func itoa(n uint32) string {
	return strconv.FormatUint(uint64(n), 10)
}
