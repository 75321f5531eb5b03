// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package scoring

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSummary = `Company Name: TerraDrive Mobility Corp.
Industry: Technology - EV components
Country: India
Revenue: $12.5B
Net Income: 1,200 M
Total Assets: $30B
Total Liabilities: $18.2B
Equity: $11.8B`

func TestExtractFeatures(t *testing.T) {
	f := ExtractFeatures(sampleSummary)

	assert.InDelta(t, 12.5e9, f.Revenue, 1)
	assert.InDelta(t, 1.2e9, f.NetIncome, 1)
	assert.InDelta(t, 30e9, f.TotalAssets, 1)
	assert.InDelta(t, 18.2e9, f.TotalLiabilities, 1)
	assert.InDelta(t, 11.8e9, f.Equity, 1)
	assert.Equal(t, "Technology - EV components", f.Industry)
	assert.Equal(t, "India", f.Country)
}

func TestExtractFeatures_EmptyText(t *testing.T) {
	f := ExtractFeatures("")
	assert.Zero(t, f.Revenue)
	assert.Equal(t, "Unknown", f.Industry)
	assert.Equal(t, "Unknown", f.Country)
}

func TestNormalized(t *testing.T) {
	tests := []struct {
		industry, country         string
		wantIndustry, wantCountry string
	}{
		{"Technology", "India", "Tech", "India"},
		{"Financial services", "USA", "Finance", "US"},
		{"Retail", "Germany", "Other", "Germany"},
		{"Unknown", "Unknown", "Other", "Other"},
	}
	for _, tt := range tests {
		t.Run(tt.industry+"/"+tt.country, func(t *testing.T) {
			n := Features{Industry: tt.industry, Country: tt.country}.Normalized()
			assert.Equal(t, tt.wantIndustry, n.Industry)
			assert.Equal(t, tt.wantCountry, n.Country)
		})
	}
}

func TestPrettifyFeature(t *testing.T) {
	assert.Equal(t, "Total Liabilities", PrettifyFeature("total_liabilities"))
	assert.Equal(t, "Industry Sector Tech", PrettifyFeature("industry_sector_Tech"))
}

func TestLinearModel_ScoreInRange(t *testing.T) {
	for _, m := range []*LinearModel{DefaultFraudModel(), DefaultRiskModel()} {
		for _, text := range []string{"", sampleSummary, "Total Liabilities: 500B\nEquity: -20B"} {
			score, err := m.Score(context.Background(), ExtractFeatures(text))
			require.NoError(t, err)
			assert.True(t, score >= 0 && score <= 1, "%s score %f", m.Name, score)
		}
	}
}

func TestLinearModel_LiabilitiesRaiseFraudScore(t *testing.T) {
	m := DefaultFraudModel()
	low, err := m.Score(context.Background(), ExtractFeatures("Total Liabilities: 1B\nEquity: 10B"))
	require.NoError(t, err)
	high, err := m.Score(context.Background(), ExtractFeatures("Total Liabilities: 80B\nEquity: 1B"))
	require.NoError(t, err)
	assert.Greater(t, high, low)
}

func TestLinearModel_ContributionsSorted(t *testing.T) {
	m := DefaultRiskModel()
	contribs, err := m.Contributions(context.Background(), ExtractFeatures(sampleSummary))
	require.NoError(t, err)
	require.Len(t, contribs, len(m.Weights))

	for i := 1; i < len(contribs); i++ {
		assert.GreaterOrEqual(t, math.Abs(contribs[i-1].Value), math.Abs(contribs[i].Value))
	}
}

func TestLinearModel_ContributionsSumToLogOdds(t *testing.T) {
	m := DefaultRiskModel()
	f := ExtractFeatures(sampleSummary)

	contribs, err := m.Contributions(context.Background(), f)
	require.NoError(t, err)
	score, err := m.Score(context.Background(), f)
	require.NoError(t, err)

	z := m.Intercept
	for _, c := range contribs {
		z += c.Value
	}
	assert.InDelta(t, score, 1/(1+math.Exp(-z)), 1e-9)
}

func TestLoadLinearModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fraud.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: fraud-v2
intercept: -1
weights:
  total_liabilities: 0.5
means:
  total_liabilities: 2
scales:
  total_liabilities: 4
`), 0o600))

	m, err := LoadLinearModel(path)
	require.NoError(t, err)
	assert.Equal(t, "fraud-v2", m.Name)

	score, err := m.Score(context.Background(), Features{TotalLiabilities: 2e9})
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.E), score, 1e-9)
}

func TestParseLinearModel_Invalid(t *testing.T) {
	_, err := ParseLinearModel([]byte("name: empty"))
	assert.Error(t, err)

	_, err = ParseLinearModel([]byte("weights: {equity: 1}\nscales: {equity: 0}"))
	assert.Error(t, err)

	_, err = ParseLinearModel([]byte("weights: [1, 2"))
	assert.Error(t, err)
}

func TestScore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := DefaultFraudModel().Score(ctx, Features{})
	assert.ErrorIs(t, err, context.Canceled)
}
