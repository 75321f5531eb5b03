// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package bureau

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"creditlens/platform/connectors/base"
	"creditlens/platform/orchestrator/tools"
)

const (
	// DefaultProfileKey holds the prepared bureau profile.
	DefaultProfileKey = "summary2.json"
	// DefaultSummaryKey holds the persisted financial summary used by single-tool runs.
	DefaultSummaryKey = "rag_summary.txt"

	bureauConfidence = 0.92
)

// Producer yields the bureau result. Failures are reported as failed results.
type Producer interface {
	Produce(ctx context.Context) tools.ToolResult
}

// ProducerFunc adapts a function to Producer.
type ProducerFunc func(ctx context.Context) tools.ToolResult

// Produce calls f.
func (f ProducerFunc) Produce(ctx context.Context) tools.ToolResult { return f(ctx) }

// Profile is the prepared bureau profile document.
type Profile struct {
	CompanyName         string                 `json:"company_name"`
	Industry            string                 `json:"industry"`
	AnnualRevenue       interface{}            `json:"annual_revenue"`
	Employees           interface{}            `json:"employees"`
	YearsInBusiness     interface{}            `json:"years_in_business"`
	KeyFinancialMetrics map[string]interface{} `json:"key_financial_metrics"`
	Summary             string                 `json:"summary"`
}

// ProfileProducer reads a Profile from a document store.
type ProfileProducer struct {
	store base.DocumentStore
	key   string
}

var _ Producer = (*ProfileProducer)(nil)

// NewProfileProducer reads the profile at key; "" means DefaultProfileKey.
func NewProfileProducer(store base.DocumentStore, key string) *ProfileProducer {
	if key == "" {
		key = DefaultProfileKey
	}
	return &ProfileProducer{store: store, key: key}
}

// Produce loads and converts the profile.
func (p *ProfileProducer) Produce(ctx context.Context) tools.ToolResult {
	return tools.Guard(tools.Bureau, func(ctx context.Context, _ string) (tools.ToolResult, error) {
		data, err := p.store.Get(ctx, p.key)
		if err != nil {
			return tools.ToolResult{}, fmt.Errorf("could not load bureau profile: %w", err)
		}
		var profile Profile
		if err := json.Unmarshal(data, &profile); err != nil {
			return tools.ToolResult{}, fmt.Errorf("could not load bureau profile: %w", err)
		}
		return profile.Result(), nil
	}).Run(ctx, "")
}

// Result converts the profile into the bureau ToolResult.
func (p Profile) Result() tools.ToolResult {
	metrics := p.KeyFinancialMetrics
	if metrics == nil {
		metrics = map[string]interface{}{}
	}
	data := map[string]interface{}{
		"company_name":          nullable(p.CompanyName),
		"industry":              nullable(p.Industry),
		"annual_revenue":        p.AnnualRevenue,
		"employees":             p.Employees,
		"years_in_business":     p.YearsInBusiness,
		"key_financial_metrics": metrics,
	}
	return tools.Complete(tools.Bureau, data, tools.ResolveSummary(p.Summary), bureauConfidence)
}

func nullable(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// LoadSummary reads the persisted financial summary at key.
func LoadSummary(ctx context.Context, store base.DocumentStore, key string) (string, error) {
	if key == "" {
		key = DefaultSummaryKey
	}
	data, err := store.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("failed to read summary %s: %w", key, err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", fmt.Errorf("summary %s is empty", key)
	}
	return text, nil
}

// AsAdapter exposes a Producer as the bureau tool so function-calling runs can
// dispatch to it. The summary argument is ignored.
func AsAdapter(p Producer) tools.Adapter {
	return tools.Guard(tools.Bureau, func(ctx context.Context, _ string) (tools.ToolResult, error) {
		return p.Produce(ctx), nil
	})
}
