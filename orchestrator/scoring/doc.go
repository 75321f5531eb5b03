// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package scoring holds the in-process models the fraud and explainability
// tools use: feature extraction from a financial summary, a fraud classifier
// and a feature-contribution explainer.
//
// Models are linear (logistic) and described in YAML so they can be retrained
// and shipped without a rebuild. For a linear model the contribution of a
// feature relative to the training mean is exact, so the explainer needs no
// sampling.
package scoring
