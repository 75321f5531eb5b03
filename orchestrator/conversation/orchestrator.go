// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package conversation implements the conversational strategy. A
// function-calling model is directed to call every tool in order; the
// aggregate is then recovered from the tool entries of the transcript, with a
// direct invocation of every tool when nothing could be recovered.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"creditlens/platform/orchestrator/aggregate"
	"creditlens/platform/orchestrator/history"
	"creditlens/platform/orchestrator/reasoning"
	"creditlens/platform/orchestrator/tools"
	"creditlens/platform/shared/logger"
)

// CompletionMarker is the reply that ends the loop once every tool has run.
const CompletionMarker = "Analysis complete."

const systemDirective = `You are a credit risk analysis orchestrator. You MUST call these functions in sequence:

1. FIRST: Call bureau_analysis() to get financial data
2. THEN: Call credit_scoring(summary_text) using the bureau summary
3. THEN: Call fraud_detection(summary_text) using the bureau summary
4. THEN: Call explainability(summary_text) using the bureau summary
5. THEN: Call compliance_check(summary_text) using the bureau summary

You MUST call ALL functions. Do not provide text analysis, only call the functions.
After calling all functions, respond with "` + CompletionMarker + `"`

const userDirective = "Execute complete credit risk analysis. Call all 5 functions: bureau_analysis, then credit_scoring, fraud_detection, explainability, and compliance_check."

// ErrNoChatModel is returned by the conversational strategy when the
// Orchestrator was built without a chat model. DirectRun still works.
var ErrNoChatModel = errors.New("conversational strategy requires a reasoning provider with function calling")

// Options tune an Orchestrator.
type Options struct {
	// MaxTurns bounds the chat turns of one run; <= 0 means 12.
	MaxTurns int
	// Poll bounds the attempts for each chat turn.
	Poll        reasoning.PollConfig
	MaxTokens   int
	Temperature float64
}

// Orchestrator runs the conversational strategy.
type Orchestrator struct {
	chat     reasoning.ChatModel
	registry *tools.Registry
	history  history.Store
	opts     Options
	log      *logger.Logger
}

// New creates an Orchestrator. store may be nil; a nil chat leaves only the
// direct invocation path usable.
func New(chat reasoning.ChatModel, registry *tools.Registry, store history.Store, opts Options) *Orchestrator {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = 12
	}
	if opts.Poll.Attempts <= 0 {
		opts.Poll = reasoning.DefaultPollConfig()
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 4000
	}
	if opts.Temperature == 0 {
		opts.Temperature = 0.1
	}
	return &Orchestrator{
		chat:     chat,
		registry: registry,
		history:  store,
		opts:     opts,
		log:      logger.New("conversation"),
	}
}

// Functions describes the tools offered to the model.
func Functions() []reasoning.FunctionSpec {
	specs := make([]reasoning.FunctionSpec, 0, len(tools.All()))
	for _, id := range tools.All() {
		params := map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		}
		if id != tools.Bureau {
			params["properties"] = map[string]interface{}{
				"summary_text": map[string]interface{}{
					"type":        "string",
					"description": "The financial summary returned by bureau_analysis",
				},
			}
			params["required"] = []string{"summary_text"}
		}
		specs = append(specs, reasoning.FunctionSpec{
			Name:        id.Function(),
			Description: id.Description(),
			Parameters:  params,
		})
	}
	return specs
}

// UserMessage builds the user turn, appending the caller's requirements.
func UserMessage(requirements []string) string {
	var reqs []string
	for _, r := range requirements {
		if r = strings.TrimSpace(r); r != "" {
			reqs = append(reqs, "- "+r)
		}
	}
	if len(reqs) == 0 {
		return userDirective
	}
	return userDirective + "\nAdditional requirements:\n" + strings.Join(reqs, "\n")
}

// Run executes the conversational strategy and returns the aggregate.
func (o *Orchestrator) Run(ctx context.Context, requirements []string) (*aggregate.Result, error) {
	rec, err := o.Execute(ctx, requirements)
	if err != nil {
		return nil, err
	}
	return rec.Result, nil
}

// Execute runs the conversational strategy and returns the saved run record.
func (o *Orchestrator) Execute(ctx context.Context, requirements []string) (*history.RunRecord, error) {
	r := history.Begin(history.StrategyConversational, requirements)
	result, err := o.converse(ctx, r, requirements)
	return o.finish(ctx, r, result, err)
}

// DirectRun invokes every tool in order without the model.
func (o *Orchestrator) DirectRun(ctx context.Context) (*aggregate.Result, error) {
	rec, err := o.ExecuteDirect(ctx)
	if err != nil {
		return nil, err
	}
	return rec.Result, nil
}

// ExecuteDirect is DirectRun returning the saved run record.
func (o *Orchestrator) ExecuteDirect(ctx context.Context) (*history.RunRecord, error) {
	r := history.Begin(history.StrategyDirect, nil)
	return o.finish(ctx, r, o.direct(ctx, r), nil)
}

func (o *Orchestrator) finish(ctx context.Context, r *history.Recorder, result *aggregate.Result, err error) (*history.RunRecord, error) {
	rec := r.Finish(result, err)
	if o.history != nil {
		if serr := o.history.Save(ctx, rec); serr != nil {
			o.log.ErrorWithCause(rec.ID, "Failed to save run record", serr, nil)
		}
	}
	if err != nil {
		o.log.ErrorWithCause(rec.ID, "Run failed", err, map[string]interface{}{"strategy": rec.Strategy})
		return rec, err
	}
	o.log.InfoWithDuration(rec.ID, "Run completed", time.Duration(rec.DurationMs)*time.Millisecond, map[string]interface{}{
		"strategy":         rec.Strategy,
		"successful_tools": rec.Stats.SuccessfulTools,
		"failed_tools":     rec.Stats.FailedTools,
	})
	return rec, nil
}

func (o *Orchestrator) converse(ctx context.Context, r *history.Recorder, requirements []string) (*aggregate.Result, error) {
	if o.chat == nil {
		return nil, ErrNoChatModel
	}
	transcript := NewTranscript(systemDirective, UserMessage(requirements))
	if err := o.loop(ctx, r, transcript); err != nil {
		return nil, err
	}

	start := time.Now()
	captured, rejected := Extract(transcript)
	for _, rej := range rejected {
		o.log.Warn(r.ID(), "Tool payload rejected", map[string]interface{}{
			"entry": rej.Index,
			"name":  rej.Name,
			"error": rej.Err.Error(),
		})
	}
	r.Step("extraction", start, fmt.Sprintf("%d captured", len(captured)))

	if len(captured) == 0 {
		o.log.Warn(r.ID(), "No tool results recovered from transcript, falling back to direct invocation", nil)
		return o.direct(ctx, r), nil
	}
	return aggregate.Normalize(captured, tools.All(), aggregate.MissingCapture), nil
}

// loop drives the function-calling exchange. It ends on a reply without tool
// calls, on the completion marker, on an unanswered turn, or after MaxTurns.
// Only context cancellation is an error.
func (o *Orchestrator) loop(ctx context.Context, r *history.Recorder, t *Transcript) error {
	functions := Functions()
	for turn := 1; turn <= o.opts.MaxTurns; turn++ {
		start := time.Now()
		msg, ok, err := reasoning.Poll(ctx, o.opts.Poll, func(ctx context.Context) (*reasoning.Message, bool, error) {
			m, err := o.chat.Chat(ctx, reasoning.ChatRequest{
				Messages:    t.Messages(),
				Functions:   functions,
				MaxTokens:   o.opts.MaxTokens,
				Temperature: o.opts.Temperature,
			})
			if err != nil {
				o.log.Debug(r.ID(), "Chat attempt failed", map[string]interface{}{"turn": turn, "error": err.Error()})
				return nil, false, err
			}
			return m, m != nil && (strings.TrimSpace(m.Content) != "" || len(m.ToolCalls) > 0), nil
		})
		if err != nil {
			return fmt.Errorf("conversation interrupted: %w", err)
		}
		if !ok {
			r.Step(fmt.Sprintf("turn_%d", turn), start, "no response")
			o.log.Warn(r.ID(), "No response from reasoning service", map[string]interface{}{"turn": turn})
			return nil
		}
		r.Step(fmt.Sprintf("turn_%d", turn), start, string(tools.StatusComplete))

		t.Append(Entry{Role: reasoning.RoleAssistant, Content: msg.Content, ToolCalls: msg.ToolCalls})
		for _, call := range msg.ToolCalls {
			t.Append(o.dispatch(ctx, r, call))
		}
		if len(msg.ToolCalls) == 0 || strings.Contains(msg.Content, CompletionMarker) {
			return nil
		}
	}
	o.log.Warn(r.ID(), "Conversation reached the turn limit", map[string]interface{}{"max_turns": o.opts.MaxTurns})
	return nil
}

// dispatch runs one requested function and returns its tool entry.
func (o *Orchestrator) dispatch(ctx context.Context, r *history.Recorder, call reasoning.ToolCall) Entry {
	entry := Entry{Role: reasoning.RoleTool, ToolCallID: call.ID, Name: call.Name}

	id, ok := tools.ByFunction(call.Name)
	if !ok {
		entry.Content = errorPayload(fmt.Sprintf("unknown function %q", call.Name))
		return entry
	}

	summary := ""
	if id != tools.Bureau {
		summary = tools.ResolveSummary(summaryArgument(call.Arguments))
	}

	start := time.Now()
	res := o.registry.Run(ctx, id, summary)
	r.Step(id.Function(), start, string(res.Status))

	data, err := json.Marshal(res)
	if err != nil {
		entry.Content = errorPayload(err.Error())
		return entry
	}
	entry.Content = string(data)
	return entry
}

// summaryArgument reads the summary from a call's JSON arguments. Arguments
// that are not a JSON object are taken as the summary itself.
func summaryArgument(arguments string) string {
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return arguments
	}
	for _, key := range []string{"summary_text", "summary"} {
		if s, ok := args[key].(string); ok {
			return s
		}
	}
	return ""
}

func errorPayload(msg string) string {
	data, _ := json.Marshal(map[string]string{"error": msg})
	return string(data)
}

// direct invokes bureau, credit, fraud, explainability and compliance in order.
// A failed bureau result stays in its slot and the tools run on the fallback
// summary.
func (o *Orchestrator) direct(ctx context.Context, r *history.Recorder) *aggregate.Result {
	b := aggregate.NewBuilder()

	start := time.Now()
	bureauResult := o.registry.Run(ctx, tools.Bureau, "")
	r.Step(tools.Bureau.Function(), start, string(bureauResult.Status))
	b.Put(tools.Bureau, bureauResult)

	summary := tools.FallbackSummary
	if !bureauResult.IsFailed() {
		summary = tools.ResolveSummary(bureauResult.Summary)
	} else {
		o.log.Warn(r.ID(), "Bureau failed during direct invocation, using fallback summary", map[string]interface{}{
			"error": bureauResult.Error(),
		})
	}

	for _, id := range tools.Analysis() {
		start := time.Now()
		res := o.registry.Run(ctx, id, summary)
		r.Step(id.Function(), start, string(res.Status))
		b.Put(id, res)
	}

	final := b.Result()
	return aggregate.Normalize(final.Slots(), tools.All(), aggregate.MissingCapture)
}
