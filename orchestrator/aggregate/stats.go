// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package aggregate

import "creditlens/platform/orchestrator/tools"

// Stats summarizes the outcome of a run.
type Stats struct {
	TotalTools      int     `json:"total_tools"`
	SuccessfulTools int     `json:"successful_tools"`
	FailedTools     int     `json:"failed_tools"`
	SuccessRate     float64 `json:"success_rate"`
	AvgConfidence   float64 `json:"avg_confidence"`
}

// GetStats counts filled slots by status. SuccessRate is a percentage.
func GetStats(r *Result) Stats {
	var stats Stats
	if r == nil {
		return stats
	}

	var confidence float64
	for _, res := range r.Slots() {
		stats.TotalTools++
		switch res.Status {
		case tools.StatusComplete:
			stats.SuccessfulTools++
			confidence += res.ConfidenceScore
		case tools.StatusFailed:
			stats.FailedTools++
		}
	}

	if stats.TotalTools > 0 {
		stats.SuccessRate = float64(stats.SuccessfulTools) / float64(stats.TotalTools) * 100
	}
	if stats.SuccessfulTools > 0 {
		stats.AvgConfidence = confidence / float64(stats.SuccessfulTools)
	}
	return stats
}
