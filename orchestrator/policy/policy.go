// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package policy decides which analysis tools a financial summary needs.
package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"creditlens/platform/orchestrator/reasoning"
	"creditlens/platform/orchestrator/tools"
	"creditlens/platform/shared/logger"
)

// ErrMalformedSelection is matched by every selection reply that is not a JSON list of names.
var ErrMalformedSelection = errors.New("tool selection reply is not a JSON list of names")

// FormatError carries the raw reply that could not be parsed.
type FormatError struct {
	Raw   string
	Cause error
}

func (e *FormatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v (reply: %q)", ErrMalformedSelection.Error(), e.Cause, e.Raw)
	}
	return fmt.Sprintf("%s (reply: %q)", ErrMalformedSelection.Error(), e.Raw)
}

// Unwrap lets errors.Is match ErrMalformedSelection.
func (e *FormatError) Unwrap() error { return ErrMalformedSelection }

// ToolSet is the selected subset of the policy vocabulary.
type ToolSet map[tools.ToolID]bool

// Has reports whether id was selected.
func (s ToolSet) Has(id tools.ToolID) bool { return s[id] }

// IDs returns the selected tools in tool order.
func (s ToolSet) IDs() []tools.ToolID {
	var out []tools.ToolID
	for _, id := range tools.All() {
		if s[id] {
			out = append(out, id)
		}
	}
	return out
}

// Names returns the vocabulary names of the selected tools in tool order.
func (s ToolSet) Names() []string {
	out := []string{}
	for _, id := range s.IDs() {
		out = append(out, id.PolicyName())
	}
	return out
}

// Selector chooses the tools to run for a summary.
type Selector interface {
	Select(ctx context.Context, summary string) (ToolSet, error)
}

// SelectorFunc adapts a function to Selector.
type SelectorFunc func(ctx context.Context, summary string) (ToolSet, error)

// Select calls f.
func (f SelectorFunc) Select(ctx context.Context, summary string) (ToolSet, error) {
	return f(ctx, summary)
}

// Static always selects the same tools.
func Static(ids ...tools.ToolID) Selector {
	set := ToolSet{}
	for _, id := range ids {
		set[id] = true
	}
	return SelectorFunc(func(ctx context.Context, summary string) (ToolSet, error) {
		out := ToolSet{}
		for id := range set {
			out[id] = true
		}
		return out, nil
	})
}

// ReasoningSelector asks the reasoning service to pick tools.
type ReasoningSelector struct {
	completer reasoning.Completer
	logger    *logger.Logger
}

// NewReasoningSelector creates a ReasoningSelector.
func NewReasoningSelector(c reasoning.Completer, log *logger.Logger) *ReasoningSelector {
	if log == nil {
		log = logger.New("policy")
	}
	return &ReasoningSelector{completer: c, logger: log}
}

// Instructions is the controller prompt sent ahead of the summary.
func Instructions() string {
	quoted := make([]string, 0, len(tools.Vocabulary()))
	for _, name := range tools.Vocabulary() {
		quoted = append(quoted, fmt.Sprintf("%q", name))
	}
	return "You are a controller deciding which credit analysis tools to run for a company.\n" +
		"Available tools: " + strings.Join(quoted, ", ") + ".\n" +
		"Credit scoring and explainability are always run; add fraud detection or compliance when the summary warrants them.\n" +
		"Respond ONLY with a JSON list of tool names, for example [\"credit scoring\", \"fraud detection\"]."
}

// Select queries the reasoning service and parses its reply.
func (s *ReasoningSelector) Select(ctx context.Context, summary string) (ToolSet, error) {
	resp, err := s.completer.Complete(ctx, reasoning.Request{
		SystemPrompt: Instructions(),
		Prompt:       "Financial summary:\n" + summary,
		Temperature:  0,
	})
	if err != nil {
		return nil, fmt.Errorf("tool selection call failed: %w", err)
	}

	set, unknown, err := ParseSelection(resp.Content)
	if err != nil {
		s.logger.Error("", "Tool selection reply rejected", map[string]interface{}{"reply": resp.Content})
		return nil, err
	}
	if len(unknown) > 0 {
		s.logger.Warn("", "Ignoring unknown tools in selection", map[string]interface{}{"unknown": unknown})
	}
	s.logger.Info("", "Tools selected", map[string]interface{}{"tools": set.Names()})
	return set, nil
}

// ParseSelection reads a reply that must be a JSON list of names, optionally
// inside a markdown fence. Names match the vocabulary case-insensitively;
// unmatched names are returned separately and left out of the set.
func ParseSelection(reply string) (ToolSet, []string, error) {
	body := tools.StripFence(reply)
	if body == "" {
		return nil, nil, &FormatError{Raw: reply, Cause: errors.New("empty reply")}
	}

	var names []string
	if err := json.Unmarshal([]byte(body), &names); err != nil {
		return nil, nil, &FormatError{Raw: reply, Cause: err}
	}

	set := ToolSet{}
	var unknown []string
	for _, n := range names {
		id, ok := tools.ByPolicyName(n)
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		set[id] = true
	}
	return set, unknown, nil
}
