// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

// Package bedrock implements reasoning.Completer on AWS Bedrock using the
// Anthropic message format accepted by Claude models hosted there.
package bedrock

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"creditlens/platform/orchestrator/reasoning"
)

const (
	// DefaultModel is the Bedrock model id used when none is configured.
	DefaultModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"

	// DefaultMaxTokens is the default max output tokens.
	DefaultMaxTokens = 4000

	anthropicVersion = "bedrock-2023-05-31"
)

// InvokeModelAPI is the subset of the Bedrock runtime client used here.
type InvokeModelAPI interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Config contains configuration for the Bedrock provider.
type Config struct {
	Region string
	Model  string
}

// Provider invokes one Bedrock model.
type Provider struct {
	client  InvokeModelAPI
	region  string
	model   string
	healthy bool
	mu      sync.RWMutex
}

var _ reasoning.Completer = (*Provider)(nil)

// NewProvider loads the default AWS configuration for cfg.Region and creates a Provider.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Region == "" {
		return nil, fmt.Errorf("bedrock region is required")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewProviderWithClient(bedrockruntime.NewFromConfig(awsCfg), cfg), nil
}

// NewProviderWithClient creates a Provider on an existing client.
func NewProviderWithClient(client InvokeModelAPI, cfg Config) *Provider {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Provider{client: client, region: cfg.Region, model: model, healthy: true}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "bedrock"
}

// IsHealthy reports whether the last call succeeded.
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

// Complete invokes the model with a single user prompt.
func (p *Provider) Complete(ctx context.Context, req reasoning.Request) (*reasoning.Response, error) {
	start := time.Now()
	model := p.model
	if req.Model != "" {
		model = req.Model
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	body, err := json.Marshal(invokeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		System:           req.SystemPrompt,
		Temperature:      req.Temperature,
		Messages: []invokeMessage{{
			Role:    "user",
			Content: []invokeContent{{Type: "text", Text: req.Prompt}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	output, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(model),
		Body:        body,
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
	})
	if err != nil {
		p.setHealthy(false)
		log.Printf("[Bedrock] API call failed: %v", err)
		return nil, fmt.Errorf("bedrock API error: %w", err)
	}
	p.setHealthy(true)

	var resp invokeResponse
	if err := json.Unmarshal(output.Body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	var text strings.Builder
	for _, c := range resp.Content {
		if c.Type == "text" {
			text.WriteString(c.Text)
		}
	}

	return &reasoning.Response{
		Content:    text.String(),
		Model:      model,
		StopReason: resp.StopReason,
		Usage: reasoning.Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
		Latency: time.Since(start),
	}, nil
}

type invokeRequest struct {
	AnthropicVersion string          `json:"anthropic_version"`
	MaxTokens        int             `json:"max_tokens"`
	System           string          `json:"system,omitempty"`
	Temperature      float64         `json:"temperature"`
	Messages         []invokeMessage `json:"messages"`
}

type invokeMessage struct {
	Role    string          `json:"role"`
	Content []invokeContent `json:"content"`
}

type invokeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type invokeResponse struct {
	Content    []invokeContent `json:"content"`
	StopReason string          `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
