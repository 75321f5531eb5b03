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

package base

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when a key does not exist in a store.
var ErrNotFound = errors.New("object not found")

// DocumentStore is the storage contract shared by every document backend:
// uploaded bureau documents, bureau profiles and persisted summaries all live
// behind it.
type DocumentStore interface {
	// Name is the configured instance name, used in logs and errors.
	Name() string
	// List returns the objects whose key starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// Get returns the object content or an error matching ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put creates or replaces an object.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// Ext is the lower-cased file extension of the key, including the dot.
func (o ObjectInfo) Ext() string {
	return strings.ToLower(path.Ext(o.Key))
}

// StoreConfig holds the configuration for a store instance
type StoreConfig struct {
	Name        string                 `json:"name" yaml:"name"`
	Type        string                 `json:"type" yaml:"type"` // local, azureblob, s3, gcs
	Credentials map[string]string      `json:"credentials" yaml:"credentials"`
	Options     map[string]interface{} `json:"options" yaml:"options"`
	Timeout     time.Duration          `json:"timeout" yaml:"timeout"`
}

// GetString returns a string option or def.
func (c *StoreConfig) GetString(key, def string) string {
	if c == nil || c.Options == nil {
		return def
	}
	switch v := c.Options[key].(type) {
	case string:
		if v != "" {
			return v
		}
	case fmt.Stringer:
		return v.String()
	}
	return def
}

// GetBool returns a boolean option or def. String values are parsed.
func (c *StoreConfig) GetBool(key string, def bool) bool {
	if c == nil || c.Options == nil {
		return def
	}
	switch v := c.Options[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// GetCredential returns a credential or "".
func (c *StoreConfig) GetCredential(key string) string {
	if c == nil || c.Credentials == nil {
		return ""
	}
	return c.Credentials[key]
}

// HealthStatus represents the health of a store
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`
	Latency   time.Duration     `json:"latency"`
	Details   map[string]string `json:"details"`
	Timestamp time.Time         `json:"timestamp"`
	Error     string            `json:"error"`
}

// ConnectorError represents errors specific to store operations
type ConnectorError struct {
	ConnectorName string
	Operation     string
	Message       string
	Cause         error
}

func (e *ConnectorError) Error() string {
	if e.Cause != nil {
		return e.ConnectorName + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.ConnectorName + "." + e.Operation + ": " + e.Message
}

func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// NewConnectorError creates a new ConnectorError
func NewConnectorError(connectorName, operation, message string, cause error) *ConnectorError {
	return &ConnectorError{
		ConnectorName: connectorName,
		Operation:     operation,
		Message:       message,
		Cause:         cause,
	}
}

// NotFound builds a ConnectorError wrapping ErrNotFound for key.
func NotFound(connectorName, operation, key string) *ConnectorError {
	return NewConnectorError(connectorName, operation, fmt.Sprintf("key %q does not exist", key), ErrNotFound)
}

// IsNotFound reports whether err means the key does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Latest returns the most recently modified object with one of the given
// extensions. Ties go to the lexically greatest key.
func Latest(objects []ObjectInfo, exts ...string) (ObjectInfo, bool) {
	newest := Newest(objects, 1, exts...)
	if len(newest) == 0 {
		return ObjectInfo{}, false
	}
	return newest[0], true
}

// Newest returns up to n objects with one of the given extensions, most
// recently modified first. No extensions means any object; n <= 0 means all.
func Newest(objects []ObjectInfo, n int, exts ...string) []ObjectInfo {
	allowed := make(map[string]bool, len(exts))
	for _, e := range exts {
		allowed[strings.ToLower(e)] = true
	}

	var candidates []ObjectInfo
	for _, o := range objects {
		if len(allowed) == 0 || allowed[o.Ext()] {
			candidates = append(candidates, o)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].LastModified.Equal(candidates[j].LastModified) {
			return candidates[i].LastModified.After(candidates[j].LastModified)
		}
		return candidates[i].Key > candidates[j].Key
	})
	if n > 0 && len(candidates) > n {
		candidates = candidates[:n]
	}
	return candidates
}
