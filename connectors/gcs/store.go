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

package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"creditlens/platform/connectors/base"
)

// Store keeps documents in one GCS bucket, optionally under a key prefix.
type Store struct {
	name   string
	client *storage.Client
	bucket string
	prefix string
}

var _ base.DocumentStore = (*Store)(nil)

// ClientOptions builds the client options for a store configuration:
// explicit credentials file or JSON, an optional endpoint for the emulator,
// and no authentication when the endpoint is set without credentials.
func ClientOptions(cfg *base.StoreConfig) []option.ClientOption {
	var opts []option.ClientOption
	hasCreds := false
	if credFile := cfg.GetCredential("credentials_file"); credFile != "" {
		opts = append(opts, option.WithCredentialsFile(credFile))
		hasCreds = true
	} else if credJSON := cfg.GetCredential("credentials_json"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
		hasCreds = true
	}
	if endpoint := cfg.GetString("endpoint", ""); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
		if !hasCreds {
			opts = append(opts, option.WithoutAuthentication())
		}
	}
	return opts
}

// NewStore creates a client and checks the bucket exists.
func NewStore(ctx context.Context, cfg *base.StoreConfig) (*Store, error) {
	name := "gcs"
	if cfg != nil && cfg.Name != "" {
		name = cfg.Name
	}
	bucket := cfg.GetString("bucket", "")
	if bucket == "" {
		return nil, base.NewConnectorError(name, "Connect", "bucket is required", nil)
	}

	client, err := storage.NewClient(ctx, ClientOptions(cfg)...)
	if err != nil {
		return nil, base.NewConnectorError(name, "Connect", "failed to create GCS client", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		client.Close()
		return nil, base.NewConnectorError(name, "Connect", "failed to verify GCS connectivity", err)
	}

	log.Printf("[GCS] Connected (bucket: %s)", bucket)
	return &Store{name: name, client: client, bucket: bucket, prefix: cfg.GetString("prefix", "")}, nil
}

// Name returns the instance name.
func (s *Store) Name() string { return s.name }

// Close releases the client.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// List iterates the objects under prefix. Keys are relative to the store prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]base.ObjectInfo, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: s.prefix + prefix})

	var out []base.ObjectInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, base.NewConnectorError(s.name, "List", "failed to list objects", err)
		}
		out = append(out, base.ObjectInfo{
			Key:          strings.TrimPrefix(attrs.Name, s.prefix),
			Size:         attrs.Size,
			ContentType:  attrs.ContentType,
			LastModified: attrs.Updated.UTC(),
		})
	}
	return out, nil
}

// Get reads an object.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := s.client.Bucket(s.bucket).Object(s.prefix + key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, base.NotFound(s.name, "Get", key)
		}
		return nil, base.NewConnectorError(s.name, "Get", fmt.Sprintf("failed to open object: %s", key), err)
	}
	defer reader.Close()

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, base.NewConnectorError(s.name, "Get", "failed to read object content", err)
	}
	return content, nil
}

// Put writes an object.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	w := s.client.Bucket(s.bucket).Object(s.prefix + key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := w.Write(data); err != nil {
		w.Close()
		return base.NewConnectorError(s.name, "Put", fmt.Sprintf("failed to write object: %s", key), err)
	}
	if err := w.Close(); err != nil {
		return base.NewConnectorError(s.name, "Put", fmt.Sprintf("failed to finalize object: %s", key), err)
	}
	return nil
}

// HealthCheck reads the bucket attributes.
func (s *Store) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if s.client == nil {
		return &base.HealthStatus{
			Healthy:   false,
			Error:     "GCS client not initialized",
			Timestamp: time.Now(),
		}, nil
	}

	start := time.Now()
	_, err := s.client.Bucket(s.bucket).Attrs(ctx)
	latency := time.Since(start)
	if err != nil {
		return &base.HealthStatus{
			Healthy:   false,
			Error:     err.Error(),
			Latency:   latency,
			Timestamp: time.Now(),
		}, nil
	}
	return &base.HealthStatus{
		Healthy:   true,
		Latency:   latency,
		Details:   map[string]string{"bucket": s.bucket, "prefix": s.prefix},
		Timestamp: time.Now(),
	}, nil
}
