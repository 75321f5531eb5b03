// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package tools

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t *testing.T) time.Time {
	t.Helper()
	at := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
	return at
}

func TestComplete(t *testing.T) {
	at := fixedClock(t)
	r := Complete(Credit, map[string]interface{}{"credit_score": "AA"}, "solid", 0.89)

	assert.Equal(t, "Credit Score Rating", r.AgentName)
	assert.Equal(t, "Calculates credit risk and assigns AAA–DDD rating", r.AgentDescription)
	assert.Equal(t, StatusComplete, r.Status)
	assert.Nil(t, r.ErrorMessage)
	assert.Equal(t, at, r.CompletedAt)
	assert.Equal(t, 0.89, r.ConfidenceScore)
	assert.NoError(t, r.Validate())
}

func TestComplete_ClampsConfidence(t *testing.T) {
	assert.Equal(t, 1.0, Complete(Fraud, nil, "", 1.7).ConfidenceScore)
	assert.Equal(t, 0.0, Complete(Fraud, nil, "", -0.2).ConfidenceScore)
	assert.NotNil(t, Complete(Fraud, nil, "", 0.5).ExtractedData)
}

func TestFailed(t *testing.T) {
	r := Failed(Fraud, "model missing")

	assert.True(t, r.IsFailed())
	assert.Equal(t, "model missing", r.Error())
	assert.Zero(t, r.ConfidenceScore)
	assert.Empty(t, r.ExtractedData)
	assert.NoError(t, r.Validate())

	assert.Equal(t, "unknown error", Failed(Fraud, "").Error())
}

func TestValidate(t *testing.T) {
	msg := "boom"
	tests := []struct {
		name   string
		mutate func(r *ToolResult)
	}{
		{"empty agent name", func(r *ToolResult) { r.AgentName = "" }},
		{"unknown status", func(r *ToolResult) { r.Status = "done" }},
		{"complete with error", func(r *ToolResult) { r.ErrorMessage = &msg }},
		{"failed without error", func(r *ToolResult) { r.Status = StatusFailed }},
		{"confidence above one", func(r *ToolResult) { r.ConfidenceScore = 1.2 }},
		{"zero time", func(r *ToolResult) { r.CompletedAt = time.Time{} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Complete(Credit, nil, "ok", 0.5)
			tt.mutate(&r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestToolResult_JSONShape(t *testing.T) {
	fixedClock(t)
	data, err := json.Marshal(Failed(Compliance, "bad reply"))
	require.NoError(t, err)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, "Compliance Check", m["agentName"])
	assert.Equal(t, "failed", m["status"])
	assert.Equal(t, "bad reply", m["errorMessage"])
	assert.Equal(t, "2025-03-14T09:30:00Z", m["completedAt"])

	data, err = json.Marshal(Complete(Compliance, nil, "", 0.85))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Nil(t, m["errorMessage"])
}

func TestKeys_SameForCompleteAndFailed(t *testing.T) {
	complete := Complete(Explainability, map[string]interface{}{"a": 1}, "x", 0.88)
	failed := Failed(Explainability, "no model")

	assert.Equal(t, complete.Keys(), failed.Keys())
	assert.Equal(t, []string{
		"agentDescription", "agentName", "completedAt", "confidenceScore",
		"errorMessage", "extractedData", "status", "summary",
	}, complete.Keys())
}

func TestErrorIffFailed_Property(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 200
	properties := gopter.NewProperties(params)

	properties.Property("error message present iff status is failed", prop.ForAll(
		func(id int, fail bool, msg string, confidence float64) bool {
			tool := ToolID(id)
			var r ToolResult
			if fail {
				r = Failed(tool, msg)
			} else {
				r = Complete(tool, nil, msg, confidence)
			}
			return (r.ErrorMessage != nil) == r.IsFailed() && r.Validate() == nil
		},
		gen.IntRange(0, int(toolCount)-1),
		gen.Bool(),
		gen.AlphaString(),
		gen.Float64Range(-1, 2),
	))

	properties.TestingRun(t)
}
