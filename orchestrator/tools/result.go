// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package tools

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

// Status is the outcome of a tool invocation.
type Status string

const (
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusComplete || s == StatusFailed
}

// FallbackSummary replaces a blank financial summary so mandatory tools still run.
const FallbackSummary = "No detailed financial summary available."

// ToolResult is the normalized output of every analysis tool.
type ToolResult struct {
	AgentName        string                 `json:"agentName"`
	AgentDescription string                 `json:"agentDescription"`
	ExtractedData    map[string]interface{} `json:"extractedData"`
	Summary          string                 `json:"summary"`
	CompletedAt      time.Time              `json:"completedAt"`
	ConfidenceScore  float64                `json:"confidenceScore"`
	Status           Status                 `json:"status"`
	ErrorMessage     *string                `json:"errorMessage"`
}

// now is swapped in tests.
var now = func() time.Time { return time.Now().UTC() }

// Complete builds a successful result for tool id.
func Complete(id ToolID, data map[string]interface{}, summary string, confidence float64) ToolResult {
	if data == nil {
		data = map[string]interface{}{}
	}
	return ToolResult{
		AgentName:        id.AgentName(),
		AgentDescription: id.Description(),
		ExtractedData:    data,
		Summary:          summary,
		CompletedAt:      now(),
		ConfidenceScore:  clampConfidence(confidence),
		Status:           StatusComplete,
	}
}

// Failed builds a failed result for tool id with zero confidence.
func Failed(id ToolID, message string) ToolResult {
	if message == "" {
		message = "unknown error"
	}
	return ToolResult{
		AgentName:        id.AgentName(),
		AgentDescription: id.Description(),
		ExtractedData:    map[string]interface{}{},
		CompletedAt:      now(),
		Status:           StatusFailed,
		ErrorMessage:     &message,
	}
}

// IsFailed reports whether the result carries a failure.
func (r ToolResult) IsFailed() bool {
	return r.Status == StatusFailed
}

// Error returns the error message or "".
func (r ToolResult) Error() string {
	if r.ErrorMessage == nil {
		return ""
	}
	return *r.ErrorMessage
}

// Validate checks the structural invariants of a result.
func (r ToolResult) Validate() error {
	if r.AgentName == "" {
		return errors.New("agent name is empty")
	}
	if !r.Status.Valid() {
		return fmt.Errorf("unknown status %q", r.Status)
	}
	if r.Status == StatusFailed && (r.ErrorMessage == nil || *r.ErrorMessage == "") {
		return errors.New("failed result has no error message")
	}
	if r.Status == StatusComplete && r.ErrorMessage != nil {
		return errors.New("complete result carries an error message")
	}
	if math.IsNaN(r.ConfidenceScore) || r.ConfidenceScore < 0 || r.ConfidenceScore > 1 {
		return fmt.Errorf("confidence score %v outside [0,1]", r.ConfidenceScore)
	}
	if r.CompletedAt.IsZero() {
		return errors.New("completion time is not set")
	}
	return nil
}

// Keys returns the sorted top-level JSON keys of the result.
func (r ToolResult) Keys() []string {
	data, err := json.Marshal(r)
	if err != nil {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func clampConfidence(c float64) float64 {
	switch {
	case math.IsNaN(c) || c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
