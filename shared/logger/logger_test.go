// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLogger(component string) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New(component)
	l.SetOutput(&buf)
	l.SetLevel(DEBUG)
	return l, &buf
}

func decodeEntries(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e LogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		entries = append(entries, e)
	}
	return entries
}

func TestNew(t *testing.T) {
	t.Setenv("INSTANCE_ID", "instance-123")
	l := New("pipeline")

	assert.Equal(t, "pipeline", l.Component)
	assert.Equal(t, "instance-123", l.InstanceID)
	assert.NotEmpty(t, l.Container)
}

func TestNew_DefaultInstance(t *testing.T) {
	t.Setenv("INSTANCE_ID", "")
	l := New("pipeline")
	assert.Equal(t, "unknown", l.InstanceID)
}

func TestLevels(t *testing.T) {
	l, buf := captureLogger("conversation")

	l.Debug("run-1", "debug", nil)
	l.Info("run-1", "info", nil)
	l.Warn("run-1", "warn", nil)
	l.Error("run-1", "error", map[string]interface{}{"tool": "fraud_detection"})

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 4)
	assert.Equal(t, DEBUG, entries[0].Level)
	assert.Equal(t, INFO, entries[1].Level)
	assert.Equal(t, WARN, entries[2].Level)
	assert.Equal(t, ERROR, entries[3].Level)
	assert.Equal(t, "run-1", entries[3].RunID)
	assert.Equal(t, "conversation", entries[3].Component)
	assert.Equal(t, "fraud_detection", entries[3].Fields["tool"])
}

func TestLevelThreshold(t *testing.T) {
	l, buf := captureLogger("pipeline")
	l.SetLevel(WARN)

	l.Debug("", "dropped", nil)
	l.Info("", "dropped", nil)
	l.Warn("", "kept", nil)

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0].Message)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DEBUG},
		{" WARN ", WARN},
		{"error", ERROR},
		{"", INFO},
		{"verbose", INFO},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestInfoWithDuration(t *testing.T) {
	l, buf := captureLogger("pipeline")
	l.InfoWithDuration("run-2", "run finished", 1500*time.Millisecond, nil)

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 1)
	assert.InDelta(t, 1500.0, entries[0].Fields["duration_ms"], 0.001)
}

func TestErrorWithCause(t *testing.T) {
	l, buf := captureLogger("pipeline")
	l.ErrorWithCause("run-3", "bureau failed", errors.New("blob read error"), nil)

	entries := decodeEntries(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "blob read error", entries[0].Fields["error"])
	assert.Equal(t, ERROR, entries[0].Level)
}
