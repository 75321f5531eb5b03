// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Classifier returns the probability of the positive class for a set of features.
type Classifier interface {
	Score(ctx context.Context, f Features) (float64, error)
}

// Contribution is one feature's push on the model's log-odds.
type Contribution struct {
	Feature string
	Value   float64
}

// Explainer attributes a prediction to its input features.
type Explainer interface {
	Contributions(ctx context.Context, f Features) ([]Contribution, error)
}

// LinearModel is a logistic regression over Features.Vector. Inputs are
// standardized with Means and Scales before weighting.
type LinearModel struct {
	Name      string             `yaml:"name"`
	Intercept float64            `yaml:"intercept"`
	Weights   map[string]float64 `yaml:"weights"`
	Means     map[string]float64 `yaml:"means"`
	Scales    map[string]float64 `yaml:"scales"`
	// Normalize buckets industry and country before scoring.
	Normalize bool `yaml:"normalize"`
}

var (
	_ Classifier = (*LinearModel)(nil)
	_ Explainer  = (*LinearModel)(nil)
)

// LoadLinearModel reads a model definition from a YAML file.
func LoadLinearModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	return ParseLinearModel(data)
}

// ParseLinearModel decodes and validates a YAML model definition.
func ParseLinearModel(data []byte) (*LinearModel, error) {
	var m LinearModel
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks the model has weights and usable scales.
func (m *LinearModel) Validate() error {
	if len(m.Weights) == 0 {
		return errors.New("model has no weights")
	}
	for k, s := range m.Scales {
		if s <= 0 || math.IsNaN(s) {
			return fmt.Errorf("model scale for %q must be positive", k)
		}
	}
	return nil
}

func (m *LinearModel) prepare(f Features) map[string]float64 {
	if m.Normalize {
		f = f.Normalized()
	}
	return f.Vector()
}

// term is the standardized, weighted value of one feature.
func (m *LinearModel) term(name string, x map[string]float64) float64 {
	scale := m.Scales[name]
	if scale == 0 {
		scale = 1
	}
	return m.Weights[name] * (x[name] - m.Means[name]) / scale
}

// Score returns sigmoid(intercept + sum of terms).
func (m *LinearModel) Score(ctx context.Context, f Features) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	x := m.prepare(f)
	z := m.Intercept
	for name := range m.Weights {
		z += m.term(name, x)
	}
	return 1 / (1 + math.Exp(-z)), nil
}

// Contributions returns every weighted feature's term, largest magnitude first.
// Ties are broken by feature name.
func (m *LinearModel) Contributions(ctx context.Context, f Features) ([]Contribution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	x := m.prepare(f)
	out := make([]Contribution, 0, len(m.Weights))
	for name := range m.Weights {
		out = append(out, Contribution{Feature: name, Value: m.term(name, x)})
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := math.Abs(out[i].Value), math.Abs(out[j].Value)
		if ai != aj {
			return ai > aj
		}
		return out[i].Feature < out[j].Feature
	})
	return out, nil
}

// DefaultFraudModel is the built-in fraud classifier used when no model file is configured.
func DefaultFraudModel() *LinearModel {
	return &LinearModel{
		Name:      "fraud-default",
		Intercept: -1.6,
		Weights: map[string]float64{
			"revenue":                 -0.35,
			"net_income":              -0.55,
			"total_assets":            -0.25,
			"total_liabilities":       0.9,
			"equity":                  -0.6,
			"industry_sector_Unknown": 0.4,
			"country_Unknown":         0.4,
		},
		Means: map[string]float64{
			"revenue":           5,
			"net_income":        0.5,
			"total_assets":      10,
			"total_liabilities": 6,
			"equity":            4,
		},
		Scales: map[string]float64{
			"revenue":           5,
			"net_income":        1,
			"total_assets":      10,
			"total_liabilities": 6,
			"equity":            4,
		},
	}
}

// DefaultRiskModel is the built-in default-risk model behind the explainability tool.
func DefaultRiskModel() *LinearModel {
	return &LinearModel{
		Name:      "risk-default",
		Intercept: -0.4,
		Normalize: true,
		Weights: map[string]float64{
			"revenue":                 -0.4,
			"net_income":              -0.7,
			"total_assets":            -0.3,
			"total_liabilities":       0.8,
			"equity":                  -0.5,
			"industry_sector_Tech":    -0.2,
			"industry_sector_Finance": 0.1,
			"industry_sector_Other":   0.15,
			"country_India":           0.1,
			"country_US":              -0.1,
			"country_Germany":         -0.1,
			"country_Other":           0.2,
		},
		Means: map[string]float64{
			"revenue":           5,
			"net_income":        0.5,
			"total_assets":      10,
			"total_liabilities": 6,
			"equity":            4,
		},
		Scales: map[string]float64{
			"revenue":           5,
			"net_income":        1,
			"total_assets":      10,
			"total_liabilities": 6,
			"equity":            4,
		},
	}
}
