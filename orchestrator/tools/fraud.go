// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"creditlens/platform/orchestrator/reasoning"
	"creditlens/platform/orchestrator/scoring"
)

const fraudPrompt = `You are a fraud analyst. Review the following features and risk score, and summarize the fraud risk:

Features:
%s

Model Score: %.2f
Risk Level: %s

Write a clear 1-2 sentence professional summary on fraud likelihood.`

// FraudAdapter scores fraud likelihood with a classifier and has the
// reasoning service narrate it.
type FraudAdapter struct {
	classifier scoring.Classifier
	completer  reasoning.Completer
}

var _ Adapter = (*FraudAdapter)(nil)

// NewFraudAdapter creates a FraudAdapter.
func NewFraudAdapter(classifier scoring.Classifier, c reasoning.Completer) *FraudAdapter {
	return &FraudAdapter{classifier: classifier, completer: c}
}

// ID returns Fraud.
func (a *FraudAdapter) ID() ToolID { return Fraud }

// Run scores the summary.
func (a *FraudAdapter) Run(ctx context.Context, summary string) ToolResult {
	return runGuarded(ctx, Fraud, summary, a.run)
}

// FraudRiskLevel buckets a fraud probability.
func FraudRiskLevel(score float64) string {
	switch {
	case score > 0.7:
		return "High"
	case score > 0.3:
		return "Moderate"
	default:
		return "Low"
	}
}

func (a *FraudAdapter) run(ctx context.Context, summary string) (ToolResult, error) {
	if a.classifier == nil {
		return ToolResult{}, fmt.Errorf("fraud model is not loaded")
	}

	features := scoring.ExtractFeatures(summary)
	raw, err := a.classifier.Score(ctx, features)
	if err != nil {
		return ToolResult{}, fmt.Errorf("fraud model failed: %w", err)
	}
	score := round(raw, 2)
	level := FraudRiskLevel(score)

	authenticity := round(1.0-score+0.05, 2)
	verification := "Needs Review"
	if authenticity >= 0.9 {
		verification = "Verified"
	}
	flagged := []interface{}{}
	if score >= 0.3 {
		flagged = []interface{}{"Unusual liabilities", "Equity mismatch"}
	}

	featureJSON, err := json.MarshalIndent(features.Map(), "", "  ")
	if err != nil {
		return ToolResult{}, fmt.Errorf("failed to encode features: %w", err)
	}
	resp, err := a.completer.Complete(ctx, reasoning.Request{
		Prompt:      fmt.Sprintf(fraudPrompt, featureJSON, score, level),
		Temperature: 0.2,
	})
	if err != nil {
		return ToolResult{}, fmt.Errorf("fraud summary call failed: %w", err)
	}
	narrative := strings.TrimSpace(resp.Content)
	if narrative == "" {
		narrative = "No response."
	}

	extracted := map[string]interface{}{
		"fraud_risk_score":      score,
		"risk_level":            level,
		"flagged_items":         flagged,
		"verification_status":   verification,
		"document_authenticity": authenticity,
	}
	return Complete(Fraud, extracted, narrative, round(math.Max(score, 1-score), 2)), nil
}
