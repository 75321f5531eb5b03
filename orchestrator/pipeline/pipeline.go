// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package pipeline implements the deterministic strategy: bureau summary,
// policy-driven tool selection, then the selected tools on the summary.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"creditlens/platform/orchestrator/aggregate"
	"creditlens/platform/orchestrator/bureau"
	"creditlens/platform/orchestrator/history"
	"creditlens/platform/orchestrator/policy"
	"creditlens/platform/orchestrator/tools"
	"creditlens/platform/shared/logger"
)

// BureauError reports a failed bureau step. No tool runs after it.
type BureauError struct {
	Result tools.ToolResult
}

func (e *BureauError) Error() string {
	return "bureau agent failed: " + e.Result.Error()
}

// Options tune a Pipeline.
type Options struct {
	// Parallel runs the scheduled tools concurrently.
	Parallel bool
}

// Pipeline runs the deterministic strategy.
type Pipeline struct {
	bureau   bureau.Producer
	selector policy.Selector
	registry *tools.Registry
	history  history.Store
	opts     Options
	log      *logger.Logger
}

// New creates a Pipeline. store may be nil.
func New(producer bureau.Producer, selector policy.Selector, registry *tools.Registry, store history.Store, opts Options) *Pipeline {
	return &Pipeline{
		bureau:   producer,
		selector: selector,
		registry: registry,
		history:  store,
		opts:     opts,
		log:      logger.New("pipeline"),
	}
}

// Schedule lists the tools a selection runs, in execution order. Credit
// scoring and explainability always run.
func Schedule(set policy.ToolSet) []tools.ToolID {
	scheduled := []tools.ToolID{tools.Credit, tools.Explainability}
	if set.Has(tools.Fraud) {
		scheduled = append(scheduled, tools.Fraud)
	}
	if set.Has(tools.Compliance) {
		scheduled = append(scheduled, tools.Compliance)
	}
	return scheduled
}

// Run executes the strategy and returns the aggregate.
func (p *Pipeline) Run(ctx context.Context) (*aggregate.Result, error) {
	rec, err := p.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return rec.Result, nil
}

// Execute runs the strategy and returns the run record, which is also saved
// to the history store. On error the record is returned alongside it.
func (p *Pipeline) Execute(ctx context.Context) (*history.RunRecord, error) {
	r := history.Begin(history.StrategyDeterministic, nil)
	result, err := p.run(ctx, r)
	rec := r.Finish(result, err)

	if p.history != nil {
		if serr := p.history.Save(ctx, rec); serr != nil {
			p.log.ErrorWithCause(rec.ID, "Failed to save run record", serr, nil)
		}
	}
	if err != nil {
		p.log.ErrorWithCause(rec.ID, "Deterministic run failed", err, nil)
		return rec, err
	}
	p.log.InfoWithDuration(rec.ID, "Deterministic run completed", time.Duration(rec.DurationMs)*time.Millisecond,
		map[string]interface{}{"successful_tools": rec.Stats.SuccessfulTools, "failed_tools": rec.Stats.FailedTools})
	return rec, nil
}

func (p *Pipeline) run(ctx context.Context, r *history.Recorder) (*aggregate.Result, error) {
	start := time.Now()
	bureauResult := p.bureau.Produce(ctx)
	r.Step(tools.Bureau.Function(), start, string(bureauResult.Status))
	if bureauResult.IsFailed() {
		return nil, &BureauError{Result: bureauResult}
	}

	summary := tools.ResolveSummary(bureauResult.Summary)
	b := aggregate.NewBuilder()
	b.Put(tools.Bureau, bureauResult)

	start = time.Now()
	selected, err := p.selector.Select(ctx, summary)
	if err != nil {
		r.Step("tool_selection", start, string(tools.StatusFailed))
		return nil, fmt.Errorf("tool selection failed: %w", err)
	}
	r.Step("tool_selection", start, string(tools.StatusComplete))

	scheduled := Schedule(selected)
	p.log.Info(r.ID(), "Tools scheduled", map[string]interface{}{
		"selected":  selected.Names(),
		"scheduled": slotNames(scheduled),
		"parallel":  p.opts.Parallel,
	})

	if p.opts.Parallel {
		p.runParallel(ctx, r, b, scheduled, summary)
	} else {
		p.runSequential(ctx, r, b, scheduled, summary)
	}
	return b.Result(), nil
}

func (p *Pipeline) runSequential(ctx context.Context, r *history.Recorder, b *aggregate.Builder, scheduled []tools.ToolID, summary string) {
	for _, id := range scheduled {
		start := time.Now()
		res := p.registry.Run(ctx, id, summary)
		r.Step(id.Function(), start, string(res.Status))
		b.Put(id, res)
	}
}

// runParallel gives every tool its own goroutine and result index. A failed
// tool never cancels the others.
func (p *Pipeline) runParallel(ctx context.Context, r *history.Recorder, b *aggregate.Builder, scheduled []tools.ToolID, summary string) {
	results := make([]tools.ToolResult, len(scheduled))

	var wg sync.WaitGroup
	for i, id := range scheduled {
		wg.Add(1)
		go func(idx int, id tools.ToolID) {
			defer wg.Done()
			start := time.Now()
			results[idx] = p.registry.Run(ctx, id, summary)
			r.Step(id.Function(), start, string(results[idx].Status))
		}(i, id)
	}
	wg.Wait()

	for i, id := range scheduled {
		b.Put(id, results[i])
	}
}

func slotNames(ids []tools.ToolID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.Slot()
	}
	return out
}
