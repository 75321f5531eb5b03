// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package config

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	LogLevel     string             `yaml:"log_level"`
	Server       ServerConfig       `yaml:"server"`
	Reasoning    ReasoningConfig    `yaml:"reasoning"`
	Storage      StorageConfig      `yaml:"storage"`
	Cache        CacheConfig        `yaml:"cache"`
	History      HistoryConfig      `yaml:"history"`
	Models       ModelsConfig       `yaml:"models"`
	Polling      PollingConfig      `yaml:"polling"`
	Compliance   ComplianceConfig   `yaml:"compliance"`
	Pipeline     PipelineConfig     `yaml:"pipeline"`
	Conversation ConversationConfig `yaml:"conversation"`
	Secrets      SecretsConfig      `yaml:"secrets"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port           string   `yaml:"port"`
	CORSOrigins    []string `yaml:"cors_origins"`
	JWTSecret      string   `yaml:"jwt_secret"`
	RequireSummary bool     `yaml:"require_summary"`
}

// ReasoningConfig selects and configures the reasoning provider.
type ReasoningConfig struct {
	Provider   string        `yaml:"provider"` // azure, anthropic, bedrock
	Endpoint   string        `yaml:"endpoint"`
	APIKey     string        `yaml:"api_key"`
	Deployment string        `yaml:"deployment"`
	APIVersion string        `yaml:"api_version"`
	Model      string        `yaml:"model"`
	Region     string        `yaml:"region"`
	Timeout    time.Duration `yaml:"timeout"`
}

// StorageConfig configures the document store. Options and Credentials are
// passed to the backend unchanged.
type StorageConfig struct {
	Backend      string                 `yaml:"backend"` // local, azureblob, s3, gcs
	Options      map[string]interface{} `yaml:"options"`
	Credentials  map[string]string      `yaml:"credentials"`
	ProfileKey   string                 `yaml:"profile_key"`
	SummaryKey   string                 `yaml:"summary_key"`
	Prefix       string                 `yaml:"document_prefix"`
	MaxDocuments int                    `yaml:"max_documents"`
	// UseDocuments builds the bureau summary from uploaded documents
	// instead of the stored profile.
	UseDocuments bool `yaml:"use_documents"`
}

// CacheConfig configures the optional tool result cache.
type CacheConfig struct {
	RedisURL string        `yaml:"redis_url"`
	TTL      time.Duration `yaml:"ttl"`
}

// HistoryConfig selects the run history backend.
type HistoryConfig struct {
	Driver   string `yaml:"driver"` // memory, postgres, mysql, mongodb
	DSN      string `yaml:"dsn"`
	Database string `yaml:"database"`
	MaxRuns  int    `yaml:"max_runs"`
}

// ModelsConfig names the scoring model files. Empty paths use the built-in models.
type ModelsConfig struct {
	FraudModelPath string `yaml:"fraud_model_path"`
	RiskModelPath  string `yaml:"risk_model_path"`
}

// PollingConfig bounds polling for reasoning replies.
type PollingConfig struct {
	Attempts int           `yaml:"attempts"`
	Interval time.Duration `yaml:"interval"`
}

// ComplianceConfig names the legal norms file.
type ComplianceConfig struct {
	NormsPath string `yaml:"norms_path"`
}

// PipelineConfig configures the deterministic strategy.
type PipelineConfig struct {
	Parallel bool `yaml:"parallel"`
}

// ConversationConfig configures the conversational strategy.
type ConversationConfig struct {
	MaxTurns int `yaml:"max_turns"`
}

// SecretsConfig selects the manager that resolves aws-secret:// references.
// The env provider reads <ARN>_<FIELD> variables; the local provider serves
// the Local map, keyed by ARN then field.
type SecretsConfig struct {
	Provider string                       `yaml:"provider"` // aws, env, local
	Region   string                       `yaml:"region"`
	Local    map[string]map[string]string `yaml:"local"`
}

// Default returns the configuration used when no file or variables are set.
func Default() *Config {
	return &Config{
		LogLevel: "INFO",
		Server: ServerConfig{
			Port:           "8081",
			CORSOrigins:    []string{"*"},
			RequireSummary: true,
		},
		Reasoning: ReasoningConfig{
			Provider:   "azure",
			APIVersion: "2024-08-01-preview",
			Timeout:    120 * time.Second,
		},
		Storage: StorageConfig{
			Backend:      "local",
			Options:      map[string]interface{}{},
			Credentials:  map[string]string{},
			ProfileKey:   "summary2.json",
			SummaryKey:   "rag_summary.txt",
			MaxDocuments: 1,
		},
		Cache: CacheConfig{TTL: time.Hour},
		History: HistoryConfig{
			Driver:   "memory",
			Database: "creditlens",
			MaxRuns:  500,
		},
		Polling:      PollingConfig{Attempts: 5, Interval: 2 * time.Second},
		Conversation: ConversationConfig{MaxTurns: 12},
		Secrets:      SecretsConfig{Provider: "aws"},
	}
}

// Load reads the YAML file at path, if any, over the defaults and then
// applies environment overrides. ${VAR} and ${VAR:-default} references in
// the file are expanded before parsing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.Server.Port = getEnv("PORT", c.Server.Port)
	if origins := getEnv("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		c.Server.CORSOrigins = splitList(origins)
	}
	c.Server.JWTSecret = getEnv("JWT_SECRET", c.Server.JWTSecret)
	c.Server.RequireSummary = getEnvBool("REQUIRE_SUMMARY", c.Server.RequireSummary)

	r := &c.Reasoning
	r.Provider = strings.ToLower(getEnv("REASONING_PROVIDER", r.Provider))
	switch r.Provider {
	case "azure":
		r.Endpoint = getEnv("AZURE_OPENAI_ENDPOINT", r.Endpoint)
		r.APIKey = getEnv("AZURE_OPENAI_API_KEY", r.APIKey)
		r.Deployment = getEnv("AZURE_OPENAI_DEPLOYMENT", r.Deployment)
		r.APIVersion = getEnv("AZURE_OPENAI_API_VERSION", r.APIVersion)
	case "anthropic":
		r.APIKey = getEnv("ANTHROPIC_API_KEY", r.APIKey)
		r.Model = getEnv("ANTHROPIC_MODEL", r.Model)
	case "bedrock":
		r.Region = getEnv("BEDROCK_REGION", getEnv("AWS_REGION", r.Region))
		r.Model = getEnv("BEDROCK_MODEL", r.Model)
	}
	r.Timeout = getEnvDuration("REASONING_TIMEOUT", r.Timeout)

	s := &c.Storage
	s.Backend = strings.ToLower(getEnv("STORAGE_BACKEND", s.Backend))
	if s.Options == nil {
		s.Options = map[string]interface{}{}
	}
	if s.Credentials == nil {
		s.Credentials = map[string]string{}
	}
	switch s.Backend {
	case "local":
		setOption(s.Options, "root", getEnv("STORAGE_ROOT", ""))
	case "azureblob":
		setOption(s.Options, "account_name", getEnv("AZURE_STORAGE_ACCOUNT", ""))
		setOption(s.Options, "container", getEnv("AZURE_STORAGE_CONTAINER", ""))
		setCredential(s.Credentials, "connection_string", getEnv("AZURE_STORAGE_CONNECTION_STRING", ""))
		setCredential(s.Credentials, "account_key", getEnv("AZURE_STORAGE_KEY", ""))
		if v := getEnv("AZURE_USE_MANAGED_IDENTITY", ""); v != "" {
			s.Options["use_managed_identity"] = v
		}
	case "s3":
		setOption(s.Options, "bucket", getEnv("S3_BUCKET", ""))
		setOption(s.Options, "region", getEnv("AWS_REGION", ""))
		setOption(s.Options, "endpoint", getEnv("S3_ENDPOINT", ""))
		setCredential(s.Credentials, "access_key_id", getEnv("AWS_ACCESS_KEY_ID", ""))
		setCredential(s.Credentials, "secret_access_key", getEnv("AWS_SECRET_ACCESS_KEY", ""))
	case "gcs":
		setOption(s.Options, "bucket", getEnv("GCS_BUCKET", ""))
		setOption(s.Options, "endpoint", getEnv("GCS_ENDPOINT", ""))
		setCredential(s.Credentials, "credentials_file", getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""))
	}
	s.ProfileKey = getEnv("PROFILE_KEY", s.ProfileKey)
	s.SummaryKey = getEnv("SUMMARY_KEY", s.SummaryKey)
	s.Prefix = getEnv("DOCUMENT_PREFIX", s.Prefix)
	s.MaxDocuments = getEnvInt("MAX_DOCUMENTS", s.MaxDocuments)
	s.UseDocuments = getEnvBool("USE_DOCUMENTS", s.UseDocuments)

	c.Cache.RedisURL = getEnv("REDIS_URL", c.Cache.RedisURL)
	c.Cache.TTL = getEnvDuration("CACHE_TTL", c.Cache.TTL)

	c.History.Driver = strings.ToLower(getEnv("HISTORY_DRIVER", c.History.Driver))
	c.History.DSN = getEnv("HISTORY_DSN", c.History.DSN)
	c.History.Database = getEnv("HISTORY_DATABASE", c.History.Database)
	c.History.MaxRuns = getEnvInt("HISTORY_MAX_RUNS", c.History.MaxRuns)

	c.Models.FraudModelPath = getEnv("FRAUD_MODEL_PATH", c.Models.FraudModelPath)
	c.Models.RiskModelPath = getEnv("RISK_MODEL_PATH", c.Models.RiskModelPath)

	c.Polling.Attempts = getEnvInt("POLL_ATTEMPTS", c.Polling.Attempts)
	c.Polling.Interval = getEnvDuration("POLL_INTERVAL", c.Polling.Interval)

	c.Compliance.NormsPath = getEnv("LEGAL_NORMS_PATH", c.Compliance.NormsPath)
	c.Pipeline.Parallel = getEnvBool("PIPELINE_PARALLEL", c.Pipeline.Parallel)
	c.Conversation.MaxTurns = getEnvInt("MAX_TURNS", c.Conversation.MaxTurns)

	c.Secrets.Provider = strings.ToLower(getEnv("SECRETS_PROVIDER", c.Secrets.Provider))
	c.Secrets.Region = getEnv("SECRETS_REGION", getEnv("AWS_REGION", c.Secrets.Region))
}

// Validate checks the selections and bounds.
func (c *Config) Validate() error {
	switch c.Reasoning.Provider {
	case "azure", "anthropic", "bedrock":
	default:
		return fmt.Errorf("unsupported reasoning provider %q", c.Reasoning.Provider)
	}
	switch c.Storage.Backend {
	case "local", "azureblob", "s3", "gcs":
	default:
		return fmt.Errorf("unsupported storage backend %q", c.Storage.Backend)
	}
	switch c.History.Driver {
	case "memory", "postgres", "mysql", "mongodb":
		if c.History.Driver != "memory" && c.History.DSN == "" {
			return fmt.Errorf("history driver %s requires a dsn", c.History.Driver)
		}
	default:
		return fmt.Errorf("unsupported history driver %q", c.History.Driver)
	}
	if c.Polling.Attempts < 1 {
		return fmt.Errorf("polling attempts must be at least 1, got %d", c.Polling.Attempts)
	}
	if c.Polling.Interval < 0 {
		return fmt.Errorf("polling interval must not be negative")
	}
	if c.Conversation.MaxTurns < 1 {
		return fmt.Errorf("max turns must be at least 1, got %d", c.Conversation.MaxTurns)
	}
	switch c.Secrets.Provider {
	case "aws", "env", "local":
	default:
		return fmt.Errorf("unsupported secrets provider %q", c.Secrets.Provider)
	}
	return nil
}

// SecretResolver expands secret references in setting values.
type SecretResolver interface {
	Resolve(ctx context.Context, value string) (string, error)
}

// ResolveSecrets replaces secret references in the credential-bearing
// settings.
func (c *Config) ResolveSecrets(ctx context.Context, r SecretResolver) error {
	fields := map[string]*string{
		"server.jwt_secret":  &c.Server.JWTSecret,
		"reasoning.api_key":  &c.Reasoning.APIKey,
		"cache.redis_url":    &c.Cache.RedisURL,
		"history.dsn":        &c.History.DSN,
		"reasoning.endpoint": &c.Reasoning.Endpoint,
	}
	for name, v := range fields {
		resolved, err := r.Resolve(ctx, *v)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", name, err)
		}
		*v = resolved
	}
	for key, v := range c.Storage.Credentials {
		resolved, err := r.Resolve(ctx, v)
		if err != nil {
			return fmt.Errorf("failed to resolve storage.credentials.%s: %w", key, err)
		}
		c.Storage.Credentials[key] = resolved
	}
	return nil
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		name := strings.TrimPrefix(match, "$")
		name = strings.TrimSuffix(strings.TrimPrefix(name, "{"), "}")

		def := ""
		if idx := strings.Index(name, ":-"); idx != -1 {
			name, def = name[:idx], name[idx+2:]
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return def
	})
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") and plain seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return defaultValue
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setOption(options map[string]interface{}, key, value string) {
	if value != "" {
		options[key] = value
	}
}

func setCredential(credentials map[string]string, key, value string) {
	if value != "" {
		credentials[key] = value
	}
}
