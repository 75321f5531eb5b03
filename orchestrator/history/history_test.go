// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package history

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditlens/platform/orchestrator/aggregate"
	"creditlens/platform/orchestrator/tools"
)

func TestMemoryStore_SaveGet(t *testing.T) {
	s := NewMemoryStore(10)
	ctx := context.Background()

	rec := &RunRecord{ID: "run-1", Strategy: StrategyDeterministic, Status: StatusSucceeded, StartedAt: time.Now()}
	require.NoError(t, s.Save(ctx, rec))

	rec.Status = StatusFailed
	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestMemoryStore_RejectsEmptyID(t *testing.T) {
	assert.Error(t, NewMemoryStore(1).Save(context.Background(), &RunRecord{}))
	assert.Error(t, NewMemoryStore(1).Save(context.Background(), nil))
}

func TestMemoryStore_EvictsOldest(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Save(ctx, &RunRecord{ID: fmt.Sprintf("run-%d", i), StartedAt: base.Add(time.Duration(i) * time.Second)}))
	}

	_, err := s.Get(ctx, "run-0")
	assert.ErrorIs(t, err, ErrRunNotFound)

	list, err := s.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "run-2", list[0].ID)
	assert.Equal(t, "run-1", list[1].ID)
}

func TestMemoryStore_ListLimit(t *testing.T) {
	s := NewMemoryStore(0)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Save(ctx, &RunRecord{ID: fmt.Sprintf("r%d", i), StartedAt: time.Unix(int64(i), 0)}))
	}
	list, err := s.List(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Equal(t, "r4", list[0].ID)
}

func TestMemoryStore_Overwrite(t *testing.T) {
	s := NewMemoryStore(2)
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, &RunRecord{ID: "a", Status: StatusFailed}))
	require.NoError(t, s.Save(ctx, &RunRecord{ID: "a", Status: StatusSucceeded}))
	require.NoError(t, s.Save(ctx, &RunRecord{ID: "b"}))

	got, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, got.Status)
}

func TestRecorder(t *testing.T) {
	r := Begin(StrategyDeterministic, []string{"be brief"})
	require.NotEmpty(t, r.ID())

	start := time.Now()
	r.Step("bureau", start, "complete")
	r.Step("policy", start, "complete")

	res := &aggregate.Result{}
	credit := tools.Complete(tools.Credit, nil, "ok", 0.89)
	res.Set(tools.Credit, &credit)

	rec := r.Finish(res, nil)
	assert.Equal(t, r.ID(), rec.ID)
	assert.Equal(t, StatusSucceeded, rec.Status)
	assert.Equal(t, []string{"be brief"}, rec.Requirements)
	assert.Len(t, rec.Steps, 2)
	assert.Equal(t, 1, rec.Stats.SuccessfulTools)
	assert.False(t, rec.CompletedAt.Before(rec.StartedAt))

	failed := Begin(StrategyDirect, nil).Finish(nil, errors.New("bureau failed"))
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "bureau failed", failed.Error)
	assert.Nil(t, failed.Result)
}
