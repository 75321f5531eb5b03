// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package orchestrator

import (
	"context"
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"

	"creditlens/platform/connectors/azureblob"
	"creditlens/platform/connectors/base"
	secrets "creditlens/platform/connectors/config"
	"creditlens/platform/connectors/gcs"
	"creditlens/platform/connectors/localfs"
	"creditlens/platform/connectors/mongodb"
	rediscache "creditlens/platform/connectors/redis"
	"creditlens/platform/connectors/s3"
	"creditlens/platform/connectors/sqlstore"
	"creditlens/platform/orchestrator/bureau"
	"creditlens/platform/orchestrator/conversation"
	"creditlens/platform/orchestrator/history"
	"creditlens/platform/orchestrator/pipeline"
	"creditlens/platform/orchestrator/policy"
	"creditlens/platform/orchestrator/reasoning"
	"creditlens/platform/orchestrator/reasoning/anthropic"
	"creditlens/platform/orchestrator/reasoning/azure"
	"creditlens/platform/orchestrator/reasoning/bedrock"
	"creditlens/platform/orchestrator/scoring"
	"creditlens/platform/orchestrator/tools"
	"creditlens/platform/shared/config"
	"creditlens/platform/shared/logger"
)

// Components are the long-lived dependencies of the service, created once at
// startup and passed explicitly to the strategies and handlers.
type Components struct {
	Config       *config.Config
	Documents    base.DocumentStore
	Completer    reasoning.Completer
	Chat         reasoning.ChatModel
	Cache        *rediscache.ResultCache
	History      history.Store
	Bureau       bureau.Producer
	Registry     *tools.Registry
	Pipeline     *pipeline.Pipeline
	Conversation *conversation.Orchestrator

	health  map[string]HealthCheck
	closers []func() error
}

// Build creates every component named by cfg. Secret references in cfg are
// resolved first. On error the components created so far are closed.
func Build(ctx context.Context, cfg *config.Config) (*Components, error) {
	c := &Components{Config: cfg, health: map[string]HealthCheck{}}
	if err := c.build(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) build(ctx context.Context) error {
	if err := resolveSecrets(ctx, c.Config); err != nil {
		return err
	}

	docs, err := OpenDocumentStore(ctx, c.Config.Storage)
	if err != nil {
		return err
	}
	c.Documents = docs
	if closer, ok := docs.(interface{ Close() error }); ok {
		c.closers = append(c.closers, closer.Close)
	}
	log.Printf("[Orchestrator] Document store: %s (%s)", docs.Name(), c.Config.Storage.Backend)

	if err := c.buildReasoning(ctx); err != nil {
		return err
	}
	if err := c.buildCache(ctx); err != nil {
		return err
	}
	if err := c.buildHistory(ctx); err != nil {
		return err
	}
	return c.buildStrategies()
}

// OpenDocumentStore creates the document store selected by cfg.Backend.
func OpenDocumentStore(ctx context.Context, cfg config.StorageConfig) (base.DocumentStore, error) {
	storeCfg := &base.StoreConfig{
		Name:        cfg.Backend,
		Type:        cfg.Backend,
		Options:     cfg.Options,
		Credentials: cfg.Credentials,
	}
	var (
		store base.DocumentStore
		err   error
	)
	switch cfg.Backend {
	case "local":
		store, err = asStore(localfs.NewStore(storeCfg))
	case "azureblob":
		store, err = asStore(azureblob.NewStore(ctx, storeCfg))
	case "s3":
		store, err = asStore(s3.NewStore(ctx, storeCfg))
	case "gcs":
		store, err = asStore(gcs.NewStore(ctx, storeCfg))
	default:
		err = fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// asStore drops the typed nil a failed constructor returns.
func asStore[S base.DocumentStore](s S, err error) (base.DocumentStore, error) {
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewReasoning creates the reasoning provider selected by cfg.Provider. The
// chat model is nil for providers without function calling.
func NewReasoning(ctx context.Context, cfg config.ReasoningConfig) (reasoning.Completer, reasoning.ChatModel, error) {
	switch cfg.Provider {
	case "azure":
		p, err := azure.NewProvider(azure.Config{
			Endpoint:       cfg.Endpoint,
			APIKey:         cfg.APIKey,
			DeploymentName: cfg.Deployment,
			APIVersion:     cfg.APIVersion,
			Timeout:        cfg.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	case "anthropic":
		p, err := anthropic.NewProvider(anthropic.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.Endpoint,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return p, p, nil
	case "bedrock":
		p, err := bedrock.NewProvider(ctx, bedrock.Config{Region: cfg.Region, Model: cfg.Model})
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported reasoning provider %q", cfg.Provider)
	}
}

// OpenHistory creates the run history store selected by cfg.Driver.
func OpenHistory(ctx context.Context, cfg config.HistoryConfig) (history.Store, func() error, error) {
	switch cfg.Driver {
	case "memory", "":
		return history.NewMemoryStore(cfg.MaxRuns), nil, nil
	case "postgres", "mysql":
		s, err := sqlstore.Open(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "mongodb":
		s, err := mongodb.Open(ctx, cfg.DSN, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return s.Close(context.Background()) }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported history driver %q", cfg.Driver)
	}
}

func (c *Components) buildReasoning(ctx context.Context) error {
	completer, chat, err := NewReasoning(ctx, c.Config.Reasoning)
	if err != nil {
		return fmt.Errorf("failed to create reasoning provider: %w", err)
	}
	c.Completer, c.Chat = completer, chat
	if h, ok := completer.(interface{ IsHealthy() bool }); ok {
		c.health["reasoning"] = func(context.Context) bool { return h.IsHealthy() }
	}
	log.Printf("[Orchestrator] Reasoning provider: %s (function calling: %t)", c.Config.Reasoning.Provider, chat != nil)
	return nil
}

func (c *Components) buildCache(ctx context.Context) error {
	if c.Config.Cache.RedisURL == "" {
		return nil
	}
	cache, err := rediscache.NewResultCache(ctx, c.Config.Cache.RedisURL)
	if err != nil {
		return err
	}
	c.Cache = cache
	c.closers = append(c.closers, cache.Close)
	c.health["result_cache"] = healthOf(cache)
	return nil
}

func (c *Components) buildHistory(ctx context.Context) error {
	store, closer, err := OpenHistory(ctx, c.Config.History)
	if err != nil {
		return err
	}
	c.History = store
	if closer != nil {
		c.closers = append(c.closers, closer)
	}
	if h, ok := store.(interface {
		HealthCheck(context.Context) (*base.HealthStatus, error)
	}); ok {
		c.health["run_history"] = healthOf(h)
	}
	log.Printf("[Orchestrator] Run history: %s", c.Config.History.Driver)
	return nil
}

func (c *Components) buildStrategies() error {
	cfg := c.Config
	poll := reasoning.PollConfig{Attempts: cfg.Polling.Attempts, Interval: cfg.Polling.Interval}

	fraudModel, err := loadModel(cfg.Models.FraudModelPath, scoring.DefaultFraudModel)
	if err != nil {
		return err
	}
	riskModel, err := loadModel(cfg.Models.RiskModelPath, scoring.DefaultRiskModel)
	if err != nil {
		return err
	}
	norms := tools.DefaultLegalNorms
	if cfg.Compliance.NormsPath != "" {
		if norms, err = tools.LoadLegalNorms(cfg.Compliance.NormsPath); err != nil {
			return err
		}
	}

	if cfg.Storage.UseDocuments {
		c.Bureau = bureau.NewDocumentProducer(c.Documents, c.Completer, bureau.DocumentOptions{
			Prefix:       cfg.Storage.Prefix,
			SummaryKey:   cfg.Storage.SummaryKey,
			MaxDocuments: cfg.Storage.MaxDocuments,
			Poll:         poll,
		})
	} else {
		c.Bureau = bureau.NewProfileProducer(c.Documents, cfg.Storage.ProfileKey)
	}

	var cache tools.ResultCache
	if c.Cache != nil {
		cache = c.Cache
	}
	cacheLog := logger.New("tool-cache")
	analysis := []tools.Adapter{
		tools.NewCreditAdapter(c.Completer),
		tools.NewFraudAdapter(fraudModel, c.Completer),
		tools.NewExplainabilityAdapter(riskModel, c.Completer, poll),
		tools.NewComplianceAdapter(c.Completer, norms),
	}
	adapters := []tools.Adapter{bureau.AsAdapter(c.Bureau)}
	for _, a := range analysis {
		adapters = append(adapters, tools.Cached(a, cache, cfg.Cache.TTL, cacheLog))
	}
	if c.Registry, err = tools.NewRegistry(adapters...); err != nil {
		return err
	}

	selector := policy.NewReasoningSelector(c.Completer, nil)
	c.Pipeline = pipeline.New(c.Bureau, selector, c.Registry, c.History, pipeline.Options{Parallel: cfg.Pipeline.Parallel})
	c.Conversation = conversation.New(c.Chat, c.Registry, c.History, conversation.Options{
		MaxTurns: cfg.Conversation.MaxTurns,
		Poll:     poll,
	})
	return nil
}

// Server returns the HTTP server over the components. Prometheus series are
// registered with reg and exposed from gatherer.
func (c *Components) Server(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Server {
	cfg := c.Config
	return &Server{
		Pipeline:       c.Pipeline,
		Conversation:   c.Conversation,
		Registry:       c.Registry,
		Documents:      c.Documents,
		DocumentPrefix: cfg.Storage.Prefix,
		SummaryKey:     cfg.Storage.SummaryKey,
		RequireSummary: cfg.Server.RequireSummary,
		History:        c.History,
		Metrics:        NewMetricsCollector(reg),
		Components:     c.health,
		CORSOrigins:    cfg.Server.CORSOrigins,
		JWTSecret:      []byte(cfg.Server.JWTSecret),
		Gatherer:       gatherer,
	}
}

// Close releases connections in reverse creation order.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			log.Printf("[Orchestrator] Close failed: %v", err)
		}
	}
	c.closers = nil
}

func loadModel(path string, fallback func() *scoring.LinearModel) (*scoring.LinearModel, error) {
	if path == "" {
		return fallback(), nil
	}
	m, err := scoring.LoadLinearModel(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", path, err)
	}
	return m, nil
}

func healthOf(h interface {
	HealthCheck(context.Context) (*base.HealthStatus, error)
}) HealthCheck {
	return func(ctx context.Context) bool {
		status, err := h.HealthCheck(ctx)
		return err == nil && status != nil && status.Healthy
	}
}

// resolveSecrets expands aws-secret:// references in cfg. Secrets Manager is
// only contacted when a reference is present.
func resolveSecrets(ctx context.Context, cfg *config.Config) error {
	values := []string{
		cfg.Server.JWTSecret,
		cfg.Reasoning.APIKey,
		cfg.Reasoning.Endpoint,
		cfg.Cache.RedisURL,
		cfg.History.DSN,
	}
	for _, v := range cfg.Storage.Credentials {
		values = append(values, v)
	}

	found := false
	for _, v := range values {
		if secrets.IsReference(v) {
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	manager, err := NewSecretsManager(ctx, cfg.Secrets)
	if err != nil {
		return err
	}
	return cfg.ResolveSecrets(ctx, secrets.NewResolver(manager))
}

// NewSecretsManager creates the manager selected by cfg.Provider.
func NewSecretsManager(ctx context.Context, cfg config.SecretsConfig) (secrets.SecretsManager, error) {
	switch cfg.Provider {
	case "", "aws":
		return secrets.NewAWSSecretsManager(ctx, secrets.AWSSecretsManagerOptions{Region: cfg.Region})
	case "env":
		return secrets.EnvSecretsManager{}, nil
	case "local":
		local := secrets.NewLocalSecretsManager()
		for arn, value := range cfg.Local {
			local.SetSecret(arn, value)
		}
		return local, nil
	default:
		return nil, fmt.Errorf("unsupported secrets provider %q", cfg.Provider)
	}
}
