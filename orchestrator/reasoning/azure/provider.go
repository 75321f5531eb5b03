// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package azure implements the reasoning contracts on the Azure OpenAI Service
// chat completions API, including function calling.
package azure

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
	// DefaultAPIVersion is the default Azure OpenAI API version.
	DefaultAPIVersion = "2024-08-01-preview"

	// DefaultTimeout is the default HTTP timeout.
	DefaultTimeout = 120 * time.Second

	// DefaultMaxTokens is the default max output tokens.
	DefaultMaxTokens = 4000
)

// HTTPClient is an interface for HTTP client operations (enables testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// AuthType represents the authentication method for Azure OpenAI.
type AuthType string

const (
	// AuthTypeAPIKey uses the api-key header (classic Azure OpenAI).
	AuthTypeAPIKey AuthType = "api-key"

	// AuthTypeBearer uses Authorization: Bearer (Azure AI Foundry).
	AuthTypeBearer AuthType = "bearer"
)

// Config contains configuration for the Azure OpenAI provider.
type Config struct {
	Endpoint       string        // Required: Azure OpenAI endpoint URL
	APIKey         string        // Required: API key or bearer token
	DeploymentName string        // Required: deployment name
	APIVersion     string        // Optional: default 2024-08-01-preview
	AuthType       AuthType      // Optional: detected from endpoint if empty
	Timeout        time.Duration // Optional: default 120s
}

// Provider talks to one Azure OpenAI deployment.
type Provider struct {
	endpoint       string
	apiKey         string
	deploymentName string
	apiVersion     string
	authType       AuthType
	client         HTTPClient
	retry          reasoning.RetryConfig
	healthy        bool
	mu             sync.RWMutex
}

var (
	_ reasoning.Completer = (*Provider)(nil)
	_ reasoning.ChatModel = (*Provider)(nil)
)

// NewProvider validates cfg and creates a Provider.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("azure OpenAI endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("azure OpenAI API key is required")
	}
	if cfg.DeploymentName == "" {
		return nil, fmt.Errorf("azure OpenAI deployment name is required")
	}

	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	authType := cfg.AuthType
	if authType == "" {
		authType = detectAuthType(cfg.Endpoint)
	}

	return &Provider{
		endpoint:       cfg.Endpoint,
		apiKey:         cfg.APIKey,
		deploymentName: cfg.DeploymentName,
		apiVersion:     cfg.APIVersion,
		authType:       authType,
		client:         &http.Client{Timeout: cfg.Timeout},
		retry:          reasoning.DefaultRetryConfig(),
		healthy:        true,
	}, nil
}

// detectAuthType picks bearer auth for AI Foundry endpoints and api-key otherwise.
func detectAuthType(endpoint string) AuthType {
	if strings.Contains(strings.ToLower(endpoint), ".cognitiveservices.azure.com") {
		return AuthTypeBearer
	}
	return AuthTypeAPIKey
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "azure-openai"
}

// AuthType returns the authentication type in use.
func (p *Provider) AuthType() AuthType {
	return p.authType
}

// IsHealthy reports whether the last call reached the service.
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

// SetHTTPClient sets a custom HTTP client for testing.
func (p *Provider) SetHTTPClient(client HTTPClient) {
	p.client = client
}

func (p *Provider) buildURL(deploymentName string) string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		p.endpoint, deploymentName, p.apiVersion)
}

func (p *Provider) setAuthHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	switch p.authType {
	case AuthTypeBearer:
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	default:
		req.Header.Set("api-key", p.apiKey)
	}
}

// Complete sends a single prompt and returns the reply text.
func (p *Provider) Complete(ctx context.Context, req reasoning.Request) (*reasoning.Response, error) {
	start := time.Now()

	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: strPtr(req.SystemPrompt)})
	}
	messages = append(messages, chatMessage{Role: "user", Content: strPtr(req.Prompt)})

	deployment := p.deploymentName
	if req.Model != "" {
		deployment = req.Model
	}

	apiResp, err := p.send(ctx, deployment, chatRequest{
		Messages:    messages,
		MaxTokens:   maxTokens(req.MaxTokens),
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, err
	}

	resp := &reasoning.Response{
		Model: apiResp.Model,
		Usage: reasoning.Usage{
			InputTokens:  apiResp.Usage.PromptTokens,
			OutputTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:  apiResp.Usage.TotalTokens,
		},
		Latency: time.Since(start),
	}
	if len(apiResp.Choices) > 0 {
		if c := apiResp.Choices[0].Message.Content; c != nil {
			resp.Content = *c
		}
		resp.StopReason = mapFinishReason(apiResp.Choices[0].FinishReason)
	}
	return resp, nil
}

// Chat runs one function-calling turn.
func (p *Provider) Chat(ctx context.Context, req reasoning.ChatRequest) (*reasoning.Message, error) {
	apiReq := chatRequest{
		Messages:    toChatMessages(req.Messages),
		MaxTokens:   maxTokens(req.MaxTokens),
		Temperature: req.Temperature,
	}
	for _, fn := range req.Functions {
		apiReq.Tools = append(apiReq.Tools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        fn.Name,
				Description: fn.Description,
				Parameters:  fn.Parameters,
			},
		})
	}
	if len(apiReq.Tools) > 0 {
		apiReq.ToolChoice = "auto"
	}

	apiResp, err := p.send(ctx, p.deploymentName, apiReq)
	if err != nil {
		return nil, err
	}
	if len(apiResp.Choices) == 0 {
		return nil, reasoning.ErrNoResponse
	}

	msg := apiResp.Choices[0].Message
	out := &reasoning.Message{Role: reasoning.RoleAssistant}
	if msg.Content != nil {
		out.Content = *msg.Content
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, reasoning.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out, nil
}

// SetRetryConfig replaces the retry policy for rate-limited and 5xx responses.
func (p *Provider) SetRetryConfig(cfg reasoning.RetryConfig) {
	p.retry = cfg
}

func (p *Provider) send(ctx context.Context, deployment string, apiReq chatRequest) (*chatResponse, error) {
	return reasoning.RetryWithBackoff(ctx, p.retry, func(ctx context.Context) (*chatResponse, error) {
		return p.sendOnce(ctx, deployment, apiReq)
	})
}

func (p *Provider) sendOnce(ctx context.Context, deployment string, apiReq chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.buildURL(deployment), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.setAuthHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		p.setHealthy(false)
		return nil, fmt.Errorf("azure OpenAI API error: %w", err)
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

	var apiResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &apiResp, nil
}

func toChatMessages(msgs []reasoning.Message) []chatMessage {
	out := make([]chatMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := chatMessage{Role: string(m.Role), ToolCallID: m.ToolCallID}
		if m.Content != "" || len(m.ToolCalls) == 0 {
			cm.Content = strPtr(m.Content)
		}
		for _, tc := range m.ToolCalls {
			cm.ToolCalls = append(cm.ToolCalls, chatToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: chatToolCallFunc{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, cm)
	}
	return out
}

func maxTokens(n int) int {
	if n <= 0 {
		return DefaultMaxTokens
	}
	return n
}

func strPtr(s string) *string { return &s }

// mapFinishReason maps Azure OpenAI finish reasons to standard reasons.
func mapFinishReason(reason string) string {
	switch reason {
	case "length":
		return "max_tokens"
	case "tool_calls":
		return "tool_use"
	default:
		return reason
	}
}

// parseAPIError parses an API error response.
func parseAPIError(statusCode int, body []byte) error {
	var errResp struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return &APIError{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
	}
	return &APIError{
		StatusCode: statusCode,
		Code:       errResp.Error.Code,
		Type:       errResp.Error.Type,
		Message:    errResp.Error.Message,
	}
}

// APIError represents an Azure OpenAI API error.
type APIError struct {
	StatusCode int
	Code       string
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("azure OpenAI API error (status %d, code %s): %s", e.StatusCode, e.Code, e.Message)
}

// IsRateLimitError returns true if this is a rate limit error.
func (e *APIError) IsRateLimitError() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.Code == "rate_limit_exceeded"
}

// IsAuthError returns true if this is an authentication error.
func (e *APIError) IsAuthError() bool {
	return e.StatusCode == http.StatusUnauthorized ||
		e.StatusCode == http.StatusForbidden ||
		e.Code == "invalid_api_key"
}

// IsRetryable reports whether the call may succeed if repeated.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimitError() || e.StatusCode >= 500
}

// Wire types (OpenAI-compatible format)

type chatRequest struct {
	Messages    []chatMessage `json:"messages"`
	Tools       []chatTool    `json:"tools,omitempty"`
	ToolChoice  string        `json:"tool_choice,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role       string         `json:"role"`
	Content    *string        `json:"content"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
}

type chatToolCall struct {
	ID       string           `json:"id"`
	Type     string           `json:"type"`
	Function chatToolCallFunc `json:"function"`
}

type chatToolCallFunc struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}
