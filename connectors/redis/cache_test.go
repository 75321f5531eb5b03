// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditlens/platform/orchestrator/tools"
)

func newTestCache(t *testing.T) (*ResultCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewResultCacheWithClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func TestResultCache_SetGet(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	key := tools.CacheKey(tools.Credit, "Revenue: 5B")

	want := tools.Complete(tools.Credit, map[string]interface{}{"credit_score": "AA"}, "strong", 0.89)
	require.NoError(t, c.Set(ctx, key, want, time.Minute))

	got, ok, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.AgentName, got.AgentName)
	assert.Equal(t, "AA", got.ExtractedData["credit_score"])
	assert.True(t, want.CompletedAt.Equal(got.CompletedAt))
	assert.NoError(t, got.Validate())

	assert.True(t, mr.TTL(key) > 0)
	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResultCache_Miss(t *testing.T) {
	c, _ := newTestCache(t)
	_, ok, err := c.Get(context.Background(), "creditlens:tool:credit_scoring:none")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResultCache_CorruptValue(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("k", "not json"))

	_, ok, err := c.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestResultCache_ServerDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, _, err := c.Get(context.Background(), "k")
	assert.Error(t, err)

	status, err := c.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Healthy)
}

func TestResultCache_HealthCheck(t *testing.T) {
	c, _ := newTestCache(t)
	status, err := c.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
}

func TestNewResultCache_BadURL(t *testing.T) {
	_, err := NewResultCache(context.Background(), "http://nope")
	assert.Error(t, err)
}

func TestNewResultCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewResultCache(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	defer c.Close()

	assert.NoError(t, c.Set(context.Background(), "k", tools.Failed(tools.Fraud, "x"), 0))
}
