// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManager returns a secret as a map of string values.
type SecretsManager interface {
	GetSecret(ctx context.Context, secretARN string) (map[string]string, error)
}

// SecretValueAPI is the subset of the Secrets Manager client used here.
type SecretValueAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager implements SecretsManager using AWS Secrets Manager
type AWSSecretsManager struct {
	client SecretValueAPI
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	logger *log.Logger
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions holds options for creating an AWSSecretsManager
type AWSSecretsManagerOptions struct {
	Region   string
	CacheTTL time.Duration
	Logger   *log.Logger
	// Client overrides the SDK client, mainly for tests.
	Client SecretValueAPI
}

// NewAWSSecretsManager creates a new AWS Secrets Manager client
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[SECRETS_MANAGER] ", log.LstdFlags)
	}

	client := opts.Client
	if client == nil {
		cfgOpts := []func(*config.LoadOptions) error{}
		if opts.Region != "" {
			cfgOpts = append(cfgOpts, config.WithRegion(opts.Region))
		}
		cfg, err := config.LoadDefaultConfig(ctx, cfgOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = secretsmanager.NewFromConfig(cfg)
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &AWSSecretsManager{
		client: client,
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		logger: logger,
	}, nil
}

// GetSecret retrieves a secret, parsing JSON objects into their string fields.
// A non-JSON secret is returned under the "value" key.
func (s *AWSSecretsManager) GetSecret(ctx context.Context, secretARN string) (map[string]string, error) {
	s.mu.RLock()
	entry, exists := s.cache[secretARN]
	s.mu.RUnlock()

	if exists && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	s.logger.Printf("Fetching secret %s from AWS Secrets Manager", maskARN(secretARN))

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskARN(secretARN), err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskARN(secretARN))
	}

	secretValue := *result.SecretString
	var credentials map[string]string
	if err := json.Unmarshal([]byte(secretValue), &credentials); err != nil {
		credentials = map[string]string{"value": secretValue}
	}

	s.mu.Lock()
	s.cache[secretARN] = &secretCacheEntry{
		value:     credentials,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()

	return credentials, nil
}

// InvalidateSecret removes a secret from the cache
func (s *AWSSecretsManager) InvalidateSecret(secretARN string) {
	s.mu.Lock()
	delete(s.cache, secretARN)
	s.mu.Unlock()
}

// maskARN masks the secret ARN for logging (shows only last 8 characters)
func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}

// LocalSecretsManager keeps secrets in memory.
type LocalSecretsManager struct {
	secrets map[string]map[string]string
	mu      sync.RWMutex
}

// NewLocalSecretsManager creates an empty LocalSecretsManager.
func NewLocalSecretsManager() *LocalSecretsManager {
	return &LocalSecretsManager{secrets: make(map[string]map[string]string)}
}

// GetSecret retrieves a secret from local storage
func (s *LocalSecretsManager) GetSecret(ctx context.Context, secretARN string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if secret, exists := s.secrets[secretARN]; exists {
		return secret, nil
	}
	return nil, fmt.Errorf("secret %s not found in local secrets manager", secretARN)
}

// SetSecret stores a secret.
func (s *LocalSecretsManager) SetSecret(secretARN string, value map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[secretARN] = value
}

// EnvSecretsManager reads PREFIX_FIELD environment variables, using the
// secret name as the prefix.
type EnvSecretsManager struct{}

var envSecretFields = []string{
	"USERNAME", "PASSWORD", "API_KEY", "TOKEN",
	"ACCOUNT_KEY", "CONNECTION_STRING", "ACCESS_KEY", "SECRET_KEY", "DSN",
}

// GetSecret collects the known fields for prefix secretARN.
func (EnvSecretsManager) GetSecret(ctx context.Context, secretARN string) (map[string]string, error) {
	credentials := make(map[string]string)
	for _, field := range envSecretFields {
		if value := os.Getenv(secretARN + "_" + field); value != "" {
			credentials[strings.ToLower(field)] = value
		}
	}
	if len(credentials) == 0 {
		return nil, fmt.Errorf("no credentials found for prefix %s", secretARN)
	}
	return credentials, nil
}

// SecretScheme prefixes values that reference AWS Secrets Manager.
const SecretScheme = "aws-secret://"

// Resolver expands secret references.
type Resolver struct {
	manager SecretsManager
}

// NewResolver creates a Resolver backed by manager. A nil manager leaves
// references unresolved and makes Resolve fail on them.
func NewResolver(manager SecretsManager) *Resolver {
	return &Resolver{manager: manager}
}

// IsReference reports whether value is a secret reference.
func IsReference(value string) bool {
	return strings.HasPrefix(value, SecretScheme)
}

// ParseReference splits a reference into secret ARN and key.
func ParseReference(value string) (arn, key string, err error) {
	if !IsReference(value) {
		return "", "", fmt.Errorf("not a secret reference")
	}
	rest := strings.TrimPrefix(value, SecretScheme)
	arn, key, _ = strings.Cut(rest, "#")
	if arn == "" {
		return "", "", fmt.Errorf("secret reference has no ARN")
	}
	return arn, key, nil
}

// Resolve returns value unchanged unless it is a secret reference.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	if !IsReference(value) {
		return value, nil
	}
	arn, key, err := ParseReference(value)
	if err != nil {
		return "", err
	}
	if r == nil || r.manager == nil {
		return "", fmt.Errorf("secret reference %s found but no secrets manager is configured", maskARN(arn))
	}

	secret, err := r.manager.GetSecret(ctx, arn)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = "value"
	}
	v, ok := secret[key]
	if !ok {
		return "", fmt.Errorf("secret %s has no key %q", maskARN(arn), key)
	}
	return v, nil
}

// ResolveAll resolves every value in place, stopping at the first error.
func (r *Resolver) ResolveAll(ctx context.Context, values ...*string) error {
	for _, v := range values {
		if v == nil {
			continue
		}
		resolved, err := r.Resolve(ctx, *v)
		if err != nil {
			return err
		}
		*v = resolved
	}
	return nil
}
