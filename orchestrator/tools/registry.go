// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package tools

import (
	"context"
	"fmt"
)

// Registry is the static dispatch table from ToolID to Adapter.
type Registry struct {
	adapters [toolCount]Adapter
}

// NewRegistry builds a registry holding exactly one adapter per tool.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{}
	for _, a := range adapters {
		if a == nil {
			return nil, fmt.Errorf("nil adapter")
		}
		id := a.ID()
		if !id.Valid() {
			return nil, fmt.Errorf("adapter has invalid tool id %d", id)
		}
		if r.adapters[id] != nil {
			return nil, fmt.Errorf("duplicate adapter for %s", id)
		}
		r.adapters[id] = a
	}
	for _, id := range All() {
		if r.adapters[id] == nil {
			return nil, fmt.Errorf("no adapter registered for %s", id)
		}
	}
	return r, nil
}

// Adapter returns the adapter for id.
func (r *Registry) Adapter(id ToolID) Adapter {
	if !id.Valid() {
		return nil
	}
	return r.adapters[id]
}

// Run dispatches to the adapter for id. An invalid id yields a failed result.
func (r *Registry) Run(ctx context.Context, id ToolID, summary string) ToolResult {
	a := r.Adapter(id)
	if a == nil {
		return ToolResult{
			AgentName:     "Unknown Tool",
			ExtractedData: map[string]interface{}{},
			CompletedAt:   now(),
			Status:        StatusFailed,
			ErrorMessage:  strPtr(fmt.Sprintf("no tool with id %d", id)),
		}
	}
	return a.Run(ctx, summary)
}

func strPtr(s string) *string { return &s }
