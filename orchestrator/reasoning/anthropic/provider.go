// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package anthropic implements the reasoning contracts on the Anthropic
// Messages API, including tool use.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"creditlens/platform/orchestrator/reasoning"
)

const (
	// DefaultBaseURL is the default Anthropic API endpoint
	DefaultBaseURL = "https://api.anthropic.com"

	// DefaultAPIVersion is the Anthropic API version
	DefaultAPIVersion = "2023-06-01"

	// DefaultTimeout is the default HTTP timeout
	DefaultTimeout = 120 * time.Second

	// DefaultMaxTokens is the default max tokens for completions
	DefaultMaxTokens = 4000

	// DefaultModel is used when no model is configured
	DefaultModel = "claude-sonnet-4-20250514"
)

// HTTPClient is an interface for HTTP client operations (enables testing)
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config contains configuration for the Anthropic provider
type Config struct {
	APIKey     string        // Required: Anthropic API key
	BaseURL    string        // Optional: API base URL
	APIVersion string        // Optional: API version
	Model      string        // Optional: default model
	Timeout    time.Duration // Optional: HTTP timeout
}

// Provider talks to the Anthropic Messages API
type Provider struct {
	apiKey     string
	baseURL    string
	apiVersion string
	model      string
	client     HTTPClient
	retry      reasoning.RetryConfig
	healthy    bool
	mu         sync.RWMutex
}

var (
	_ reasoning.Completer = (*Provider)(nil)
	_ reasoning.ChatModel = (*Provider)(nil)
)

// NewProvider validates cfg and creates a Provider
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	return &Provider{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiVersion: cfg.APIVersion,
		model:      cfg.Model,
		client:     &http.Client{Timeout: cfg.Timeout},
		retry:      reasoning.DefaultRetryConfig(),
		healthy:    true,
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "anthropic"
}

// IsHealthy reports whether the last call reached the service
func (p *Provider) IsHealthy() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.healthy
}

func (p *Provider) setHealthy(healthy bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.healthy = healthy
}

// SetHTTPClient sets a custom HTTP client for testing
func (p *Provider) SetHTTPClient(client HTTPClient) {
	p.client = client
}

// Complete sends a single prompt and returns the text reply
func (p *Provider) Complete(ctx context.Context, req reasoning.Request) (*reasoning.Response, error) {
	start := time.Now()
	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	apiResp, err := p.send(ctx, messagesRequest{
		Model:       model,
		MaxTokens:   maxTokens(req.MaxTokens),
		System:      req.SystemPrompt,
		Temperature: req.Temperature,
		Messages: []apiMessage{{
			Role:    "user",
			Content: []contentBlock{{Type: "text", Text: req.Prompt}},
		}},
	})
	if err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range apiResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return &reasoning.Response{
		Content:    text.String(),
		Model:      apiResp.Model,
		StopReason: apiResp.StopReason,
		Usage: reasoning.Usage{
			InputTokens:  apiResp.Usage.InputTokens,
			OutputTokens: apiResp.Usage.OutputTokens,
			TotalTokens:  apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
		Latency: time.Since(start),
	}, nil
}

// Chat runs one tool-use turn
func (p *Provider) Chat(ctx context.Context, req reasoning.ChatRequest) (*reasoning.Message, error) {
	system, messages := toAPIMessages(req.Messages)
	apiReq := messagesRequest{
		Model:       p.model,
		MaxTokens:   maxTokens(req.MaxTokens),
		System:      system,
		Temperature: req.Temperature,
		Messages:    messages,
	}
	for _, fn := range req.Functions {
		schema := fn.Parameters
		if schema == nil {
			schema = map[string]interface{}{"type": "object"}
		}
		apiReq.Tools = append(apiReq.Tools, apiTool{
			Name:        fn.Name,
			Description: fn.Description,
			InputSchema: schema,
		})
	}

	apiResp, err := p.send(ctx, apiReq)
	if err != nil {
		return nil, err
	}
	if len(apiResp.Content) == 0 {
		return nil, reasoning.ErrNoResponse
	}

	out := &reasoning.Message{Role: reasoning.RoleAssistant}
	var text strings.Builder
	for _, block := range apiResp.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := string(block.Input)
			if args == "" {
				args = "{}"
			}
			out.ToolCalls = append(out.ToolCalls, reasoning.ToolCall{ID: block.ID, Name: block.Name, Arguments: args})
		}
	}
	out.Content = text.String()
	return out, nil
}

// toAPIMessages lifts system messages into the system field and merges
// consecutive tool results into a single user turn.
func toAPIMessages(msgs []reasoning.Message) (string, []apiMessage) {
	var system []string
	var out []apiMessage

	for _, m := range msgs {
		switch m.Role {
		case reasoning.RoleSystem:
			system = append(system, m.Content)
		case reasoning.RoleTool:
			block := contentBlock{Type: "tool_result", ToolUseID: m.ToolCallID, Content: m.Content}
			if n := len(out); n > 0 && out[n-1].Role == "user" && out[n-1].Content[0].Type == "tool_result" {
				out[n-1].Content = append(out[n-1].Content, block)
				continue
			}
			out = append(out, apiMessage{Role: "user", Content: []contentBlock{block}})
		case reasoning.RoleAssistant:
			var blocks []contentBlock
			if m.Content != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := json.RawMessage(tc.Arguments)
				if !json.Valid(input) {
					input = json.RawMessage("{}")
				}
				blocks = append(blocks, contentBlock{Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input})
			}
			if len(blocks) == 0 {
				blocks = append(blocks, contentBlock{Type: "text", Text: ""})
			}
			out = append(out, apiMessage{Role: "assistant", Content: blocks})
		default:
			out = append(out, apiMessage{Role: "user", Content: []contentBlock{{Type: "text", Text: m.Content}}})
		}
	}
	return strings.Join(system, "\n\n"), out
}

// SetRetryConfig replaces the retry policy for rate-limited and overloaded responses
func (p *Provider) SetRetryConfig(cfg reasoning.RetryConfig) {
	p.retry = cfg
}

func (p *Provider) send(ctx context.Context, apiReq messagesRequest) (*messagesResponse, error) {
	return reasoning.RetryWithBackoff(ctx, p.retry, func(ctx context.Context) (*messagesResponse, error) {
		return p.sendOnce(ctx, apiReq)
	})
}

func (p *Provider) sendOnce(ctx context.Context, apiReq messagesRequest) (*messagesResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", p.apiVersion)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.setHealthy(false)
		return nil, fmt.Errorf("anthropic API error: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			p.setHealthy(false)
		}
		return nil, parseAPIError(resp.StatusCode, data)
	}
	p.setHealthy(true)

	var apiResp messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &apiResp, nil
}

func maxTokens(n int) int {
	if n <= 0 {
		return DefaultMaxTokens
	}
	return n
}

// parseAPIError parses an API error response
func parseAPIError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return &APIError{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
	}
	return &APIError{StatusCode: statusCode, Type: errResp.Error.Type, Message: errResp.Error.Message}
}

// APIError represents an Anthropic API error
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("anthropic API error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

// IsRateLimitError returns true if this is a rate limit error
func (e *APIError) IsRateLimitError() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Type == "rate_limit_error"
}

// IsOverloadedError returns true if the API is overloaded
func (e *APIError) IsOverloadedError() bool {
	return e.StatusCode == 529 || e.Type == "overloaded_error"
}

// IsRetryable reports whether the call may succeed if repeated
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimitError() || e.IsOverloadedError() || e.StatusCode >= 500
}

// Wire types

type messagesRequest struct {
	Model       string       `json:"model"`
	MaxTokens   int          `json:"max_tokens"`
	System      string       `json:"system,omitempty"`
	Temperature float64      `json:"temperature"`
	Messages    []apiMessage `json:"messages"`
	Tools       []apiTool    `json:"tools,omitempty"`
}

type apiMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

type apiTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
