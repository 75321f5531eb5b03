// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package tools

import (
	"context"
	"fmt"
	"strings"

	"creditlens/platform/orchestrator/reasoning"
	"creditlens/platform/orchestrator/scoring"
)

const explainPrompt = `The following drivers explain why a machine learning model predicted a %s level of credit default risk (probability %.2f) for a company.
The model looks at revenue, net income, total assets and liabilities, equity, industry type and country of operation. Positive values raise the risk, negative values reduce it.

Key drivers behind this prediction:
%s

Please provide a clear and concise explanation of this prediction in business-friendly language, highlighting the most influential factors and their impact on the risk assessment.`

const (
	explainConfidence = 0.88
	explainSummaryLen = 300
	explainTopDrivers = 7
)

// ExplainabilityAdapter attributes the default-risk prediction to its drivers
// and asks the reasoning service to explain them.
type ExplainabilityAdapter struct {
	model     RiskModel
	completer reasoning.Completer
	poll      reasoning.PollConfig
}

// RiskModel is the default-risk model being explained.
type RiskModel interface {
	scoring.Classifier
	scoring.Explainer
}

var _ Adapter = (*ExplainabilityAdapter)(nil)

// NewExplainabilityAdapter creates an ExplainabilityAdapter.
func NewExplainabilityAdapter(model RiskModel, c reasoning.Completer, poll reasoning.PollConfig) *ExplainabilityAdapter {
	return &ExplainabilityAdapter{model: model, completer: c, poll: poll}
}

// ID returns Explainability.
func (a *ExplainabilityAdapter) ID() ToolID { return Explainability }

// Run explains the prediction for the summary.
func (a *ExplainabilityAdapter) Run(ctx context.Context, summary string) ToolResult {
	return runGuarded(ctx, Explainability, summary, a.run)
}

func (a *ExplainabilityAdapter) run(ctx context.Context, summary string) (ToolResult, error) {
	if a.model == nil {
		return ToolResult{}, fmt.Errorf("risk model is not loaded")
	}

	features := scoring.ExtractFeatures(summary)
	contributions, err := a.model.Contributions(ctx, features)
	if err != nil {
		return ToolResult{}, fmt.Errorf("feature attribution failed: %w", err)
	}
	risk, err := a.model.Score(ctx, features)
	if err != nil {
		return ToolResult{}, fmt.Errorf("risk model failed: %w", err)
	}

	var drivers strings.Builder
	for i, c := range contributions {
		if i == explainTopDrivers {
			break
		}
		fmt.Fprintf(&drivers, "%s: %+.4f\n", scoring.PrettifyFeature(c.Feature), c.Value)
	}

	explanation, _, err := reasoning.PollText(ctx, a.poll, a.completer, reasoning.Request{
		SystemPrompt: "Explain why the default risk is predicted.",
		Prompt:       fmt.Sprintf(explainPrompt, riskBand(risk), risk, strings.TrimSpace(drivers.String())),
		Temperature:  0.3,
	})
	if err != nil {
		return ToolResult{}, fmt.Errorf("explanation call cancelled: %w", err)
	}

	factors := []interface{}{}
	weights := [3]float64{}
	for i, c := range contributions {
		if i == 3 {
			break
		}
		factors = append(factors, scoring.PrettifyFeature(c.Feature))
		weights[i] = round(abs(c.Value), 4)
	}

	reasoningText := explanation
	if reasoningText == "" {
		reasoningText = "No explanation available."
	}

	extracted := map[string]interface{}{
		"decision_factors": factors,
		"weight_distribution": map[string]interface{}{
			"financial_performance": weights[0],
			"business_stability":    weights[1],
			"market_position":       weights[2],
		},
		"confidence_reasoning": reasoningText,
	}
	return Complete(Explainability, extracted, truncateSummary(explanation), explainConfidence), nil
}

func truncateSummary(text string) string {
	if text == "" {
		return "N/A"
	}
	runes := []rune(text)
	if len(runes) > explainSummaryLen {
		runes = runes[:explainSummaryLen]
	}
	return string(runes) + "..."
}

func riskBand(p float64) string {
	switch {
	case p > 0.66:
		return "high"
	case p > 0.33:
		return "moderate"
	default:
		return "low"
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
