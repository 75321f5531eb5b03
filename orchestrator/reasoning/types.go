// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package reasoning

import (
	"context"
	"errors"
	"time"
)

// ErrNoResponse is returned when a reasoning call produced no usable reply.
var ErrNoResponse = errors.New("reasoning service returned no response")

// Request is a single-prompt completion request.
type Request struct {
	Prompt       string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Model        string // optional override of the configured model or deployment
}

// Response is the reply to a Request.
type Response struct {
	Content    string
	Model      string
	StopReason string
	Usage      Usage
	Latency    time.Duration
}

// Usage contains token usage statistics.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// Completer produces a text completion for a prompt.
// Implementations must be safe for concurrent use.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string // raw JSON object
}

// Message is one chat turn.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string // set on RoleTool messages
	Name       string // function name on RoleTool messages
}

// FunctionSpec describes a function the model may call.
type FunctionSpec struct {
	Name        string
	Description string
	Parameters  map[string]interface{} // JSON schema of the arguments object
}

// ChatRequest is one function-calling chat turn.
type ChatRequest struct {
	Messages    []Message
	Functions   []FunctionSpec
	MaxTokens   int
	Temperature float64
}

// ChatModel runs one chat turn and returns the assistant message.
// Implementations must be safe for concurrent use.
type ChatModel interface {
	Chat(ctx context.Context, req ChatRequest) (*Message, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req Request) (*Response, error)

// Complete calls f.
func (f CompleterFunc) Complete(ctx context.Context, req Request) (*Response, error) {
	return f(ctx, req)
}

// ChatFunc adapts a function to ChatModel.
type ChatFunc func(ctx context.Context, req ChatRequest) (*Message, error)

// Chat calls f.
func (f ChatFunc) Chat(ctx context.Context, req ChatRequest) (*Message, error) {
	return f(ctx, req)
}
