// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"creditlens/platform/orchestrator/reasoning"
)

const creditPrompt = `You are a credit scoring assistant. Based on the structured summary below, return:
- Credit Score (AAA to DDD)
- Probability of Default (PD Score) as a decimal (e.g., 0.04)
- Risk Factors (bullet points or comma-separated list)
- Financial Strength Score (0-1)
- Market Position Score (0-1)
- Summary for the rating

Format strictly as JSON with keys:
credit_score, probability_of_default, risk_factors, financial_strength_score, market_position_score, summary

Summary:
%s`

const creditConfidence = 0.89

// CreditAdapter rates creditworthiness with one reasoning call.
type CreditAdapter struct {
	completer reasoning.Completer
}

var _ Adapter = (*CreditAdapter)(nil)

// NewCreditAdapter creates a CreditAdapter.
func NewCreditAdapter(c reasoning.Completer) *CreditAdapter {
	return &CreditAdapter{completer: c}
}

// ID returns Credit.
func (a *CreditAdapter) ID() ToolID { return Credit }

// Run scores the summary.
func (a *CreditAdapter) Run(ctx context.Context, summary string) ToolResult {
	return runGuarded(ctx, Credit, summary, a.run)
}

func (a *CreditAdapter) run(ctx context.Context, summary string) (ToolResult, error) {
	resp, err := a.completer.Complete(ctx, reasoning.Request{
		Prompt:      fmt.Sprintf(creditPrompt, summary),
		Temperature: 0.1,
	})
	if err != nil {
		return ToolResult{}, fmt.Errorf("credit scoring call failed: %w", err)
	}

	data := parseCreditReply(resp.Content)

	creditScore, _ := data["credit_score"].(string)
	if creditScore == "" {
		creditScore = "Unknown"
	}
	narrative, _ := data["summary"].(string)

	extracted := map[string]interface{}{
		"credit_score":             creditScore,
		"probability_of_default":   toFloat(data["probability_of_default"]),
		"risk_factors":             toList(data["risk_factors"]),
		"financial_strength_score": toFloat(data["financial_strength_score"]),
		"market_position_score":    toFloat(data["market_position_score"]),
	}
	return Complete(Credit, extracted, narrative, creditConfidence), nil
}

// parseCreditReply accepts a JSON object, optionally fenced, and falls back to
// "Key: value" lines.
func parseCreditReply(content string) map[string]interface{} {
	body := StripFence(content)
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(body), &data); err == nil && data != nil {
		return data
	}
	return ParseKeyValueLines(body)
}
