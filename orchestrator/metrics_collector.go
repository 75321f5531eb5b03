// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"creditlens/platform/orchestrator/history"
	"creditlens/platform/orchestrator/tools"
)

// maxSamples bounds the durations kept per strategy for percentiles.
const maxSamples = 1000

// MetricsCollector collects run metrics both in process, for /health, and as
// Prometheus series.
type MetricsCollector struct {
	metrics *Metrics
	mu      sync.RWMutex

	runsTotal    *prometheus.CounterVec
	toolResults  *prometheus.CounterVec
	runDurations *prometheus.HistogramVec
}

// Metrics represents collected metrics
type Metrics struct {
	Strategies        map[string]*StrategyMetrics `json:"strategies"`
	Tools             map[string]*ToolMetrics     `json:"tools"`
	TotalRuns         int64                       `json:"total_runs"`
	FailedRuns        int64                       `json:"failed_runs"`
	UptimeSeconds     int64                       `json:"uptime_seconds"`
	LastRunAt         time.Time                   `json:"last_run_at"`
	LastResetTime     time.Time                   `json:"last_reset_time"`
	CollectionStarted time.Time                   `json:"collection_started"`
}

// StrategyMetrics tracks runs of one strategy
type StrategyMetrics struct {
	Runs          int64   `json:"runs"`
	Succeeded     int64   `json:"succeeded"`
	Failed        int64   `json:"failed"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	P95DurationMs int64   `json:"p95_duration_ms"`
	P99DurationMs int64   `json:"p99_duration_ms"`
	durations     []time.Duration
}

// ToolMetrics tracks the results of one tool
type ToolMetrics struct {
	Complete          int64            `json:"complete"`
	Failed            int64            `json:"failed"`
	AvgConfidence     float64          `json:"avg_confidence"`
	ConfidenceBuckets map[string]int64 `json:"confidence_distribution"`
	confidenceSum     float64
}

// NewMetricsCollector creates a collector whose Prometheus series are
// registered with reg. A nil reg keeps the series unregistered.
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	now := time.Now()
	c := &MetricsCollector{
		metrics: newMetrics(now, now),
		runsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditlens_runs_total",
				Help: "Total number of orchestration runs",
			},
			[]string{"strategy", "outcome"},
		),
		toolResults: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditlens_tool_results_total",
				Help: "Tool results by tool and status",
			},
			[]string{"tool", "status"},
		),
		runDurations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "creditlens_run_duration_seconds",
				Help:    "Orchestration run duration in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"strategy"},
		),
	}
	if reg != nil {
		reg.MustRegister(c.runsTotal, c.toolResults, c.runDurations)
	}
	return c
}

func newMetrics(started, reset time.Time) *Metrics {
	return &Metrics{
		Strategies:        make(map[string]*StrategyMetrics),
		Tools:             make(map[string]*ToolMetrics),
		CollectionStarted: started,
		LastResetTime:     reset,
	}
}

// RecordRun records a finished run. Tool results in the run's aggregate are
// counted per slot.
func (c *MetricsCollector) RecordRun(rec *history.RunRecord) {
	if rec == nil {
		return
	}
	outcome := rec.Status
	if outcome == "" {
		outcome = history.StatusSucceeded
	}
	duration := time.Duration(rec.DurationMs) * time.Millisecond

	c.runsTotal.WithLabelValues(rec.Strategy, outcome).Inc()
	c.runDurations.WithLabelValues(rec.Strategy).Observe(duration.Seconds())

	c.mu.Lock()
	defer c.mu.Unlock()

	sm, ok := c.metrics.Strategies[rec.Strategy]
	if !ok {
		sm = &StrategyMetrics{durations: make([]time.Duration, 0, 64)}
		c.metrics.Strategies[rec.Strategy] = sm
	}
	sm.Runs++
	c.metrics.TotalRuns++
	if outcome == history.StatusFailed {
		sm.Failed++
		c.metrics.FailedRuns++
	} else {
		sm.Succeeded++
	}
	sm.durations = append(sm.durations, duration)
	if len(sm.durations) > maxSamples {
		sm.durations = sm.durations[len(sm.durations)-maxSamples:]
	}
	c.metrics.LastRunAt = rec.CompletedAt

	if rec.Result == nil {
		return
	}
	for _, id := range tools.All() {
		if r := rec.Result.Get(id); r != nil {
			c.recordTool(id.Slot(), *r)
		}
	}
}

// RecordToolResult records one tool result outside a full run.
func (c *MetricsCollector) RecordToolResult(result tools.ToolResult) {
	id, ok := tools.ByAgentName(result.AgentName)
	if !ok {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recordTool(id.Slot(), result)
}

// recordTool must be called with c.mu held.
func (c *MetricsCollector) recordTool(slot string, r tools.ToolResult) {
	c.toolResults.WithLabelValues(slot, string(r.Status)).Inc()

	tm, ok := c.metrics.Tools[slot]
	if !ok {
		tm = &ToolMetrics{ConfidenceBuckets: make(map[string]int64)}
		c.metrics.Tools[slot] = tm
	}
	if r.IsFailed() {
		tm.Failed++
		return
	}
	tm.Complete++
	tm.confidenceSum += r.ConfidenceScore
	tm.ConfidenceBuckets[c.getConfidenceBucket(r.ConfidenceScore)]++
}

// GetMetrics returns a copy of the current metrics with derived values filled in.
func (c *MetricsCollector) GetMetrics() *Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calculateDerivedMetrics()

	out := newMetrics(c.metrics.CollectionStarted, c.metrics.LastResetTime)
	out.TotalRuns = c.metrics.TotalRuns
	out.FailedRuns = c.metrics.FailedRuns
	out.UptimeSeconds = c.metrics.UptimeSeconds
	out.LastRunAt = c.metrics.LastRunAt

	for k, v := range c.metrics.Strategies {
		out.Strategies[k] = &StrategyMetrics{
			Runs:          v.Runs,
			Succeeded:     v.Succeeded,
			Failed:        v.Failed,
			AvgDurationMs: v.AvgDurationMs,
			P95DurationMs: v.P95DurationMs,
			P99DurationMs: v.P99DurationMs,
		}
	}
	for k, v := range c.metrics.Tools {
		tm := &ToolMetrics{
			Complete:          v.Complete,
			Failed:            v.Failed,
			AvgConfidence:     v.AvgConfidence,
			ConfidenceBuckets: make(map[string]int64, len(v.ConfidenceBuckets)),
		}
		for b, n := range v.ConfidenceBuckets {
			tm.ConfidenceBuckets[b] = n
		}
		out.Tools[k] = tm
	}
	return out
}

// ResetMetrics clears the in-process metrics. Prometheus series are cumulative
// and are not reset.
func (c *MetricsCollector) ResetMetrics() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = newMetrics(c.metrics.CollectionStarted, time.Now())
}

func (c *MetricsCollector) calculateDerivedMetrics() {
	for _, sm := range c.metrics.Strategies {
		if len(sm.durations) == 0 {
			continue
		}
		var total time.Duration
		for _, d := range sm.durations {
			total += d
		}
		sm.AvgDurationMs = float64(total.Milliseconds()) / float64(len(sm.durations))
		sm.P95DurationMs = c.calculatePercentile(sm.durations, 95).Milliseconds()
		sm.P99DurationMs = c.calculatePercentile(sm.durations, 99).Milliseconds()
	}

	for _, tm := range c.metrics.Tools {
		if tm.Complete > 0 {
			tm.AvgConfidence = tm.confidenceSum / float64(tm.Complete)
		}
	}

	c.metrics.UptimeSeconds = int64(time.Since(c.metrics.CollectionStarted).Seconds())
}

// calculatePercentile returns the nth percentile of times.
func (c *MetricsCollector) calculatePercentile(times []time.Duration, percentile int) time.Duration {
	if len(times) == 0 {
		return 0
	}

	sorted := append([]time.Duration(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	index := (len(sorted) * percentile) / 100
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

func (c *MetricsCollector) getConfidenceBucket(score float64) string {
	switch {
	case score < 0.2:
		return "very_low"
	case score < 0.4:
		return "low"
	case score < 0.6:
		return "medium"
	case score < 0.8:
		return "high"
	default:
		return "very_high"
	}
}
