// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package history

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"creditlens/platform/orchestrator/aggregate"
)

// Recorder accumulates a RunRecord while a run executes. Steps may be
// recorded from several goroutines.
type Recorder struct {
	mu  sync.Mutex
	rec RunRecord
}

// Begin starts a record with a fresh run id.
func Begin(strategy string, requirements []string) *Recorder {
	return &Recorder{rec: RunRecord{
		ID:           uuid.New().String(),
		Strategy:     strategy,
		Requirements: requirements,
		StartedAt:    time.Now().UTC(),
	}}
}

// ID returns the run id.
func (r *Recorder) ID() string { return r.rec.ID }

// Step records a named step that began at start.
func (r *Recorder) Step(name string, start time.Time, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rec.Steps = append(r.rec.Steps, StepTiming{
		Step:       name,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     status,
	})
}

// Finish closes the record with the run's outcome and returns a copy of it.
func (r *Recorder) Finish(result *aggregate.Result, err error) *RunRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rec.CompletedAt = time.Now().UTC()
	r.rec.DurationMs = r.rec.CompletedAt.Sub(r.rec.StartedAt).Milliseconds()
	r.rec.Result = result
	if result != nil {
		r.rec.Stats = aggregate.GetStats(result)
	}
	if err != nil {
		r.rec.Status = StatusFailed
		r.rec.Error = err.Error()
	} else {
		r.rec.Status = StatusSucceeded
	}

	out := r.rec
	out.Steps = append([]StepTiming(nil), r.rec.Steps...)
	return &out
}
