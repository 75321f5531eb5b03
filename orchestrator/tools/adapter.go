// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Adapter runs one tool against a financial summary. Run never panics and
// never reports failure other than through the returned ToolResult.
type Adapter interface {
	ID() ToolID
	Run(ctx context.Context, summary string) ToolResult
}

// AdapterFunc is the fallible form of a tool body.
type AdapterFunc func(ctx context.Context, summary string) (ToolResult, error)

// Guard wraps fn so errors, panics and malformed results become failed results.
func Guard(id ToolID, fn AdapterFunc) Adapter {
	return guarded{id: id, fn: fn}
}

type guarded struct {
	id ToolID
	fn AdapterFunc
}

func (g guarded) ID() ToolID { return g.id }

func (g guarded) Run(ctx context.Context, summary string) ToolResult {
	return runGuarded(ctx, g.id, summary, g.fn)
}

func runGuarded(ctx context.Context, id ToolID, summary string, fn AdapterFunc) (result ToolResult) {
	defer func() {
		if r := recover(); r != nil {
			result = Failed(id, fmt.Sprintf("%s panicked: %v", id.AgentName(), r))
		}
	}()

	if err := ctx.Err(); err != nil {
		return Failed(id, fmt.Sprintf("%s not run: %v", id.AgentName(), err))
	}

	res, err := fn(ctx, UnwrapSummary(summary))
	if err != nil {
		failed := Failed(id, err.Error())
		if len(res.ExtractedData) > 0 {
			failed.ExtractedData = res.ExtractedData
		}
		return failed
	}
	if verr := res.Validate(); verr != nil {
		return Failed(id, fmt.Sprintf("%s produced an invalid result: %v", id.AgentName(), verr))
	}
	return res
}

// UnwrapSummary returns the "summary" field when text is a JSON object carrying
// one, as function-calling models sometimes pass the whole bureau result.
func UnwrapSummary(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return text
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return text
	}
	if s, ok := obj["summary"].(string); ok {
		return s
	}
	return text
}

// ResolveSummary substitutes FallbackSummary for blank text.
func ResolveSummary(text string) string {
	if strings.TrimSpace(text) == "" {
		return FallbackSummary
	}
	return text
}
