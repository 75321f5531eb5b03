// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package history records every orchestration run so results can be looked
// up by run id after the request that produced them has returned.
package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"creditlens/platform/orchestrator/aggregate"
)

// ErrRunNotFound is returned by Get for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// Run outcomes.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Strategy names.
const (
	StrategyDeterministic  = "deterministic"
	StrategyConversational = "conversational"
	StrategyDirect         = "direct"
	StrategySingleTool     = "single_tool"
)

// StepTiming is the duration of one named step of a run.
type StepTiming struct {
	Step       string `json:"step"`
	DurationMs int64  `json:"duration_ms"`
	Status     string `json:"status"`
}

// RunRecord is the persisted view of one run.
type RunRecord struct {
	ID           string            `json:"run_id"`
	Strategy     string            `json:"strategy"`
	Status       string            `json:"status"`
	Requirements []string          `json:"requirements,omitempty"`
	Result       *aggregate.Result `json:"result,omitempty"`
	Stats        aggregate.Stats   `json:"stats"`
	Steps        []StepTiming      `json:"steps,omitempty"`
	Error        string            `json:"error,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	CompletedAt  time.Time         `json:"completed_at"`
	DurationMs   int64             `json:"duration_ms"`
}

// Store persists run records.
type Store interface {
	Save(ctx context.Context, rec *RunRecord) error
	Get(ctx context.Context, id string) (*RunRecord, error)
	// List returns the most recent runs first.
	List(ctx context.Context, limit int) ([]*RunRecord, error)
}

// MemoryStore is an in-process Store bounded to a number of records.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*RunRecord
	order   []string
	max     int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore keeps at most max records; max <= 0 means 1000.
func NewMemoryStore(max int) *MemoryStore {
	if max <= 0 {
		max = 1000
	}
	return &MemoryStore{records: make(map[string]*RunRecord), max: max}
}

// Save stores a copy of rec, evicting the oldest record when full.
func (m *MemoryStore) Save(ctx context.Context, rec *RunRecord) error {
	if rec == nil || rec.ID == "" {
		return errors.New("run record has no id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	if _, exists := m.records[rec.ID]; !exists {
		m.order = append(m.order, rec.ID)
	}
	m.records[rec.ID] = &cp

	for len(m.order) > m.max {
		delete(m.records, m.order[0])
		m.order = m.order[1:]
	}
	return nil
}

// Get returns the record for id.
func (m *MemoryStore) Get(ctx context.Context, id string) (*RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *rec
	return &cp, nil
}

// List returns up to limit records, newest first.
func (m *MemoryStore) List(ctx context.Context, limit int) ([]*RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*RunRecord, 0, len(m.records))
	for _, rec := range m.records {
		cp := *rec
		out = append(out, &cp)
	}
	SortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SortNewestFirst orders records by start time, newest first.
func SortNewestFirst(records []*RunRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartedAt.After(records[j].StartedAt)
	})
}
