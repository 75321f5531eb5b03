// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"creditlens/platform/orchestrator/reasoning"
)

// DefaultLegalNorms are the checks every summary is reviewed against.
var DefaultLegalNorms = []string{
	"Know Your Customer (KYC) compliance",
	"Anti-Money Laundering (AML) laws",
	"Data privacy regulations (GDPR / Indian IT Act)",
	"Regulatory disclosures",
	"Consent for data usage",
	"Legal liability and obligations",
	"Transparency and fairness in decision making",
}

const compliancePrompt = `You are a compliance analyst reviewing a company's financial summary.
Check the summary against these legal norms:
%s

Respond ONLY with JSON holding these keys:
compliance_issues (list of strings), risk_level (Low, Medium or High), recommendations (list of strings)

Summary:
%s`

const complianceConfidence = 0.85

// ComplianceAdapter reviews a summary against a list of legal norms.
type ComplianceAdapter struct {
	completer reasoning.Completer
	norms     []string
}

var _ Adapter = (*ComplianceAdapter)(nil)

// NewComplianceAdapter creates a ComplianceAdapter. Empty norms select DefaultLegalNorms.
func NewComplianceAdapter(c reasoning.Completer, norms []string) *ComplianceAdapter {
	if len(norms) == 0 {
		norms = DefaultLegalNorms
	}
	return &ComplianceAdapter{completer: c, norms: norms}
}

// LoadLegalNorms reads a YAML list of norms, either a bare list or under a "norms" key.
func LoadLegalNorms(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read legal norms %s: %w", path, err)
	}
	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil && len(list) > 0 {
		return list, nil
	}
	var doc struct {
		Norms []string `yaml:"norms"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse legal norms: %w", err)
	}
	if len(doc.Norms) == 0 {
		return nil, errors.New("legal norms file lists no norms")
	}
	return doc.Norms, nil
}

// ID returns Compliance.
func (a *ComplianceAdapter) ID() ToolID { return Compliance }

// Norms returns the norms the adapter checks.
func (a *ComplianceAdapter) Norms() []string { return a.norms }

// Run reviews the summary.
func (a *ComplianceAdapter) Run(ctx context.Context, summary string) ToolResult {
	return runGuarded(ctx, Compliance, summary, a.run)
}

func (a *ComplianceAdapter) run(ctx context.Context, summary string) (ToolResult, error) {
	var norms strings.Builder
	for i, n := range a.norms {
		fmt.Fprintf(&norms, "%d. %s\n", i+1, n)
	}

	resp, err := a.completer.Complete(ctx, reasoning.Request{
		Prompt:      fmt.Sprintf(compliancePrompt, strings.TrimSpace(norms.String()), summary),
		Temperature: 0.1,
	})
	if err != nil {
		return ToolResult{}, fmt.Errorf("compliance call failed: %w", err)
	}

	raw := StripFence(resp.Content)
	var reply map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &reply); err != nil || reply == nil {
		return ToolResult{ExtractedData: map[string]interface{}{"raw_output": resp.Content}},
			errors.New("compliance reply was not valid JSON")
	}

	issues := toList(reply["compliance_issues"])
	level, _ := reply["risk_level"].(string)
	if level == "" {
		level = "Unknown"
	}
	extracted := map[string]interface{}{
		"compliance_issues": issues,
		"risk_level":        level,
		"recommendations":   toList(reply["recommendations"]),
	}
	summaryText := fmt.Sprintf("Compliance risk level: %s with %d issue(s) identified.", level, len(issues))
	return Complete(Compliance, extracted, summaryText, complianceConfidence), nil
}
