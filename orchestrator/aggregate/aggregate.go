// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package aggregate assembles tool results into the fixed five-slot result
// returned by every orchestration strategy.
package aggregate

import (
	"sync"

	"creditlens/platform/orchestrator/tools"
)

// Result holds one slot per tool. A nil slot means the tool was not scheduled
// or produced nothing.
type Result struct {
	BureauSummary   *tools.ToolResult `json:"bureau_summary"`
	CreditScoring   *tools.ToolResult `json:"credit_scoring"`
	FraudDetection  *tools.ToolResult `json:"fraud_detection"`
	Explainability  *tools.ToolResult `json:"explainability"`
	ComplianceCheck *tools.ToolResult `json:"compliance_check"`
}

func (r *Result) slot(id tools.ToolID) **tools.ToolResult {
	switch id {
	case tools.Bureau:
		return &r.BureauSummary
	case tools.Credit:
		return &r.CreditScoring
	case tools.Fraud:
		return &r.FraudDetection
	case tools.Explainability:
		return &r.Explainability
	case tools.Compliance:
		return &r.ComplianceCheck
	default:
		return nil
	}
}

// Get returns the slot for id, or nil.
func (r *Result) Get(id tools.ToolID) *tools.ToolResult {
	if p := r.slot(id); p != nil {
		return *p
	}
	return nil
}

// Set fills the slot for id. A nil result is ignored so a filled slot never
// empties; a later result replaces an earlier one.
func (r *Result) Set(id tools.ToolID, result *tools.ToolResult) {
	p := r.slot(id)
	if p == nil || result == nil {
		return
	}
	cp := *result
	*p = &cp
}

// Slots returns the filled slots keyed by tool.
func (r *Result) Slots() map[tools.ToolID]*tools.ToolResult {
	out := make(map[tools.ToolID]*tools.ToolResult)
	for _, id := range tools.All() {
		if res := r.Get(id); res != nil {
			out[id] = res
		}
	}
	return out
}

// Missing lists the ids whose slots are still nil, in the given order.
func (r *Result) Missing(ids []tools.ToolID) []tools.ToolID {
	var out []tools.ToolID
	for _, id := range ids {
		if r.Get(id) == nil {
			out = append(out, id)
		}
	}
	return out
}

// Filled counts non-nil slots.
func (r *Result) Filled() int {
	return len(r.Slots())
}

// Builder accumulates results from concurrent writers.
type Builder struct {
	mu     sync.Mutex
	result Result
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Set records result for id with the same rules as Result.Set.
func (b *Builder) Set(id tools.ToolID, result *tools.ToolResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.result.Set(id, result)
}

// Put records a result value.
func (b *Builder) Put(id tools.ToolID, result tools.ToolResult) {
	b.Set(id, &result)
}

// Get returns the current slot for id.
func (b *Builder) Get(id tools.ToolID) *tools.ToolResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result.Get(id)
}

// Filled counts non-nil slots.
func (b *Builder) Filled() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.result.Filled()
}

// Result returns a snapshot of the accumulated slots.
func (b *Builder) Result() *Result {
	b.mu.Lock()
	defer b.mu.Unlock()
	snapshot := b.result
	return &snapshot
}

// Normalize builds a result from partial captures. Every scheduled id left
// without a capture is filled with missing(id); unscheduled ids stay nil unless
// captured.
func Normalize(partial map[tools.ToolID]*tools.ToolResult, scheduled []tools.ToolID, missing func(tools.ToolID) tools.ToolResult) *Result {
	out := &Result{}
	for id, res := range partial {
		out.Set(id, res)
	}
	if missing == nil {
		return out
	}
	for _, id := range out.Missing(scheduled) {
		filler := missing(id)
		out.Set(id, &filler)
	}
	return out
}

// MissingCapture is the failure recorded for a scheduled tool whose result never arrived.
func MissingCapture(id tools.ToolID) tools.ToolResult {
	return tools.Failed(id, id.Function()+" executed but its result could not be captured")
}
