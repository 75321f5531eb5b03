// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package policy

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditlens/platform/orchestrator/reasoning"
	"creditlens/platform/orchestrator/tools"
	"creditlens/platform/shared/logger"
)

func TestParseSelection(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    []tools.ToolID
		unknown []string
	}{
		{"plain list", `["credit scoring", "fraud detection"]`, []tools.ToolID{tools.Credit, tools.Fraud}, nil},
		{"fenced", "```json\n[\"Compliance\", \"explainability\"]\n```", []tools.ToolID{tools.Explainability, tools.Compliance}, nil},
		{"surrounding whitespace", "  \n[\"fraud detection\"]\n ", []tools.ToolID{tools.Fraud}, nil},
		{"unknown dropped", `["credit scoring", "sentiment"]`, []tools.ToolID{tools.Credit}, []string{"sentiment"}},
		{"empty list", `[]`, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, unknown, err := ParseSelection(tt.reply)
			require.NoError(t, err)
			assert.Equal(t, tt.want, set.IDs())
			assert.Equal(t, tt.unknown, unknown)
		})
	}
}

func TestParseSelection_Malformed(t *testing.T) {
	replies := []string{
		"",
		"credit scoring, fraud detection",
		`{"tools": ["credit scoring"]}`,
		`[1, 2]`,
		"Sure! Here are the tools: [\"fraud detection\"]",
	}
	for _, reply := range replies {
		_, _, err := ParseSelection(reply)
		require.Error(t, err, reply)
		assert.True(t, errors.Is(err, ErrMalformedSelection), reply)

		var fe *FormatError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, reply, fe.Raw)
	}
}

func TestToolSet(t *testing.T) {
	set := ToolSet{tools.Compliance: true, tools.Credit: true}
	assert.True(t, set.Has(tools.Credit))
	assert.False(t, set.Has(tools.Fraud))
	assert.Equal(t, []string{"credit scoring", "compliance"}, set.Names())
	assert.Equal(t, []string{}, ToolSet{}.Names())
}

func quietLogger() *logger.Logger {
	l := logger.New("policy-test")
	l.SetOutput(&bytes.Buffer{})
	return l
}

func TestReasoningSelector(t *testing.T) {
	var got reasoning.Request
	c := reasoning.CompleterFunc(func(ctx context.Context, req reasoning.Request) (*reasoning.Response, error) {
		got = req
		return &reasoning.Response{Content: `["credit scoring","explainability","fraud detection"]`}, nil
	})

	set, err := NewReasoningSelector(c, quietLogger()).Select(context.Background(), "Revenue: 4B")

	require.NoError(t, err)
	assert.Equal(t, []tools.ToolID{tools.Credit, tools.Fraud, tools.Explainability}, set.IDs())
	assert.Contains(t, got.Prompt, "Revenue: 4B")
	assert.Contains(t, got.SystemPrompt, "Respond ONLY with a JSON list")
	assert.Contains(t, got.SystemPrompt, `"fraud detection"`)
}

func TestReasoningSelector_Malformed(t *testing.T) {
	c := reasoning.CompleterFunc(func(ctx context.Context, req reasoning.Request) (*reasoning.Response, error) {
		return &reasoning.Response{Content: "run everything"}, nil
	})

	_, err := NewReasoningSelector(c, quietLogger()).Select(context.Background(), "x")
	assert.ErrorIs(t, err, ErrMalformedSelection)
}

func TestReasoningSelector_CallError(t *testing.T) {
	c := reasoning.CompleterFunc(func(ctx context.Context, req reasoning.Request) (*reasoning.Response, error) {
		return nil, errors.New("dial tcp: timeout")
	})

	_, err := NewReasoningSelector(c, quietLogger()).Select(context.Background(), "x")
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMalformedSelection))
}

func TestStatic(t *testing.T) {
	s := Static(tools.Fraud)
	set, err := s.Select(context.Background(), "")
	require.NoError(t, err)
	set[tools.Compliance] = true

	again, _ := s.Select(context.Background(), "")
	assert.Equal(t, []tools.ToolID{tools.Fraud}, again.IDs())
}
