// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditlens/platform/orchestrator/history"
	"creditlens/platform/orchestrator/reasoning"
	"creditlens/platform/orchestrator/tools"
)

var fastPoll = reasoning.PollConfig{Attempts: 2, Interval: time.Millisecond}

// scriptedChat replays one reply per turn and records the requests it saw.
type scriptedChat struct {
	mu       sync.Mutex
	replies  []*reasoning.Message
	requests []reasoning.ChatRequest
}

func (s *scriptedChat) Chat(ctx context.Context, req reasoning.ChatRequest) (*reasoning.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return &reasoning.Message{Role: reasoning.RoleAssistant}, nil
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply, nil
}

func call(id, fn, args string) reasoning.ToolCall {
	return reasoning.ToolCall{ID: id, Name: fn, Arguments: args}
}

func toolCalls(calls ...reasoning.ToolCall) *reasoning.Message {
	return &reasoning.Message{Role: reasoning.RoleAssistant, ToolCalls: calls}
}

func text(content string) *reasoning.Message {
	return &reasoning.Message{Role: reasoning.RoleAssistant, Content: content}
}

// counter registers adapters that count calls and echo their summary.
type counter struct {
	mu        sync.Mutex
	calls     map[tools.ToolID]int
	summaries map[tools.ToolID]string
}

func newCounter() *counter {
	return &counter{calls: map[tools.ToolID]int{}, summaries: map[tools.ToolID]string{}}
}

func (c *counter) registry(t *testing.T, bureau tools.AdapterFunc) *tools.Registry {
	t.Helper()
	var adapters []tools.Adapter
	for _, id := range tools.All() {
		id := id
		adapters = append(adapters, tools.Guard(id, func(ctx context.Context, summary string) (tools.ToolResult, error) {
			c.mu.Lock()
			c.calls[id]++
			c.summaries[id] = summary
			c.mu.Unlock()
			if id == tools.Bureau && bureau != nil {
				return bureau(ctx, summary)
			}
			return tools.Complete(id, map[string]interface{}{"seen": summary}, id.AgentName()+" summary", 0.8), nil
		}))
	}
	reg, err := tools.NewRegistry(adapters...)
	require.NoError(t, err)
	return reg
}

func bureauSummary(summary string) tools.AdapterFunc {
	return func(ctx context.Context, _ string) (tools.ToolResult, error) {
		return tools.Complete(tools.Bureau, nil, summary, 0.92), nil
	}
}

func TestRun_FullConversation(t *testing.T) {
	chat := &scriptedChat{replies: []*reasoning.Message{
		toolCalls(call("1", "bureau_analysis", "{}")),
		toolCalls(
			call("2", "credit_scoring", `{"summary_text": "Revenue: 1B"}`),
			call("3", "fraud_detection", `{"summary_text": "Revenue: 1B"}`),
		),
		toolCalls(
			call("4", "explainability", `{"summary_text": "Revenue: 1B"}`),
			call("5", "compliance_check", `{"summary_text": "Revenue: 1B"}`),
		),
		text(CompletionMarker),
	}}
	c := newCounter()
	store := history.NewMemoryStore(10)
	o := New(chat, c.registry(t, bureauSummary("Revenue: 1B")), store, Options{Poll: fastPoll})

	rec, err := o.Execute(context.Background(), []string{"focus on liquidity"})

	require.NoError(t, err)
	for _, id := range tools.All() {
		res := rec.Result.Get(id)
		require.NotNil(t, res, id.String())
		assert.False(t, res.IsFailed(), id.String())
		assert.Equal(t, 1, c.calls[id], id.String())
	}
	assert.Equal(t, "Revenue: 1B", c.summaries[tools.Compliance])
	assert.Equal(t, history.StrategyConversational, rec.Strategy)
	assert.Equal(t, []string{"focus on liquidity"}, rec.Requirements)

	require.Len(t, chat.requests, 4)
	first := chat.requests[0]
	assert.Len(t, first.Functions, 5)
	assert.Contains(t, first.Messages[0].Content, "bureau_analysis()")
	assert.Contains(t, first.Messages[1].Content, "- focus on liquidity")
	last := chat.requests[3].Messages
	assert.Equal(t, reasoning.RoleTool, last[len(last)-1].Role)
	assert.Equal(t, "5", last[len(last)-1].ToolCallID)

	saved, err := store.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, saved.Stats.SuccessfulTools)
}

func TestRun_PartialCaptureFillsMissingSlots(t *testing.T) {
	chat := &scriptedChat{replies: []*reasoning.Message{
		toolCalls(call("1", "bureau_analysis", "{}"), call("2", "credit_scoring", `{"summary_text": "S"}`)),
		text("I have done enough."),
	}}
	c := newCounter()
	o := New(chat, c.registry(t, bureauSummary("S")), nil, Options{Poll: fastPoll})

	result, err := o.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.False(t, result.CreditScoring.IsFailed())
	for _, id := range []tools.ToolID{tools.Fraud, tools.Explainability, tools.Compliance} {
		res := result.Get(id)
		require.NotNil(t, res)
		assert.True(t, res.IsFailed())
		assert.Equal(t, id.Function()+" executed but its result could not be captured", res.Error())
		assert.Zero(t, c.calls[id], "no direct fallback when something was captured")
	}
}

func TestRun_NoCaptureFallsBackToDirect(t *testing.T) {
	tests := []struct {
		name    string
		replies []*reasoning.Message
	}{
		{"text only", []*reasoning.Message{text("Here is my analysis: the company looks fine.")}},
		{"polling exhausted", nil},
		{"unknown functions", []*reasoning.Message{toolCalls(call("1", "weather", "{}")), text(CompletionMarker)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newCounter()
			o := New(&scriptedChat{replies: tt.replies}, c.registry(t, bureauSummary("Revenue: 2B")), nil, Options{Poll: fastPoll})

			result, err := o.Run(context.Background(), nil)

			require.NoError(t, err)
			for _, id := range tools.All() {
				require.NotNil(t, result.Get(id), id.String())
				assert.False(t, result.Get(id).IsFailed(), id.String())
				assert.Equal(t, 1, c.calls[id], id.String())
			}
			assert.Equal(t, "Revenue: 2B", c.summaries[tools.Fraud])
		})
	}
}

func TestRun_MaxTurns(t *testing.T) {
	var replies []*reasoning.Message
	for i := 0; i < 10; i++ {
		replies = append(replies, toolCalls(call(fmt.Sprint(i), "credit_scoring", `{"summary_text": "S"}`)))
	}
	chat := &scriptedChat{replies: replies}
	c := newCounter()
	o := New(chat, c.registry(t, nil), nil, Options{Poll: fastPoll, MaxTurns: 3})

	result, err := o.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Len(t, chat.requests, 3)
	assert.Equal(t, 3, c.calls[tools.Credit])
	assert.True(t, result.BureauSummary.IsFailed(), "bureau never called, so it is synthesized")
}

func TestRun_ChatErrorsArePolled(t *testing.T) {
	attempts := 0
	chat := reasoning.ChatFunc(func(ctx context.Context, req reasoning.ChatRequest) (*reasoning.Message, error) {
		attempts++
		return nil, errors.New("429 rate limited")
	})
	c := newCounter()
	o := New(chat, c.registry(t, nil), nil, Options{Poll: reasoning.PollConfig{Attempts: 3, Interval: time.Millisecond}})

	result, err := o.Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Len(t, result.Slots(), 5, "direct fallback fills every slot")
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := newCounter()
	store := history.NewMemoryStore(10)
	o := New(&scriptedChat{}, c.registry(t, nil), store, Options{Poll: fastPoll})

	rec, err := o.Execute(ctx, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, history.StatusFailed, rec.Status)
	assert.Zero(t, c.calls[tools.Credit])
}

func TestRun_NoChatModel(t *testing.T) {
	c := newCounter()
	o := New(nil, c.registry(t, bureauSummary("Revenue: 100")), nil, Options{Poll: fastPoll})

	_, err := o.Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoChatModel)
	assert.Empty(t, c.calls)

	result, err := o.DirectRun(context.Background())
	require.NoError(t, err)
	assert.Zero(t, len(result.Missing(tools.All())))
}

func TestDirectRun_BureauFailure(t *testing.T) {
	c := newCounter()
	failing := func(ctx context.Context, _ string) (tools.ToolResult, error) {
		return tools.ToolResult{}, errors.New("blob read error")
	}
	o := New(&scriptedChat{}, c.registry(t, failing), nil, Options{Poll: fastPoll})

	rec, err := o.ExecuteDirect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, history.StrategyDirect, rec.Strategy)
	result := rec.Result
	assert.True(t, result.BureauSummary.IsFailed())
	assert.Equal(t, "blob read error", result.BureauSummary.Error())
	for _, id := range tools.Analysis() {
		require.NotNil(t, result.Get(id))
		assert.Equal(t, tools.FallbackSummary, c.summaries[id])
	}
}

func TestDirectRun_PanickingTool(t *testing.T) {
	reg, err := tools.NewRegistry(
		tools.Guard(tools.Bureau, bureauSummary("S")),
		tools.Guard(tools.Credit, func(ctx context.Context, s string) (tools.ToolResult, error) { panic("boom") }),
		tools.Guard(tools.Fraud, func(ctx context.Context, s string) (tools.ToolResult, error) {
			return tools.Complete(tools.Fraud, nil, "ok", 0.6), nil
		}),
		tools.Guard(tools.Explainability, func(ctx context.Context, s string) (tools.ToolResult, error) {
			return tools.Complete(tools.Explainability, nil, "ok", 0.88), nil
		}),
		tools.Guard(tools.Compliance, func(ctx context.Context, s string) (tools.ToolResult, error) {
			return tools.Complete(tools.Compliance, nil, "ok", 0.85), nil
		}),
	)
	require.NoError(t, err)
	o := New(&scriptedChat{}, reg, nil, Options{Poll: fastPoll})

	result, err := o.DirectRun(context.Background())

	require.NoError(t, err)
	assert.True(t, result.CreditScoring.IsFailed())
	assert.True(t, strings.Contains(result.CreditScoring.Error(), "boom"))
	assert.False(t, result.ComplianceCheck.IsFailed())
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, userDirective, UserMessage(nil))
	assert.Equal(t, userDirective, UserMessage([]string{" ", ""}))
	assert.True(t, strings.HasSuffix(UserMessage([]string{"a", " b "}), "\n- a\n- b"))
}

func TestSummaryArgument(t *testing.T) {
	assert.Equal(t, "S", summaryArgument(`{"summary_text": "S"}`))
	assert.Equal(t, "T", summaryArgument(`{"summary": "T"}`))
	assert.Equal(t, "", summaryArgument(`{}`))
	assert.Equal(t, "raw text", summaryArgument("raw text"))
}
