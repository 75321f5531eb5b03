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

// Package localfs stores documents in a directory on local disk.
package localfs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"creditlens/platform/connectors/base"
)

// Store is a base.DocumentStore rooted at a directory. Keys are slash
// separated paths relative to the root.
type Store struct {
	name string
	root string
}

var _ base.DocumentStore = (*Store)(nil)

// NewStore creates the root directory if needed.
func NewStore(cfg *base.StoreConfig) (*Store, error) {
	name := "localfs"
	if cfg != nil && cfg.Name != "" {
		name = cfg.Name
	}
	root := cfg.GetString("root", "./data")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, base.NewConnectorError(name, "Connect", "failed to create root directory", err)
	}
	return &Store{name: name, root: root}, nil
}

// Name returns the instance name.
func (s *Store) Name() string { return s.name }

func (s *Store) path(op, key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimPrefix(key, "/")))
	if clean == "." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) || clean == ".." {
		return "", base.NewConnectorError(s.name, op, "invalid key "+key, nil)
	}
	return filepath.Join(s.root, clean), nil
}

// List walks the root and returns files whose key has prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]base.ObjectInfo, error) {
	var out []base.ObjectInfo
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		out = append(out, base.ObjectInfo{Key: key, Size: info.Size(), LastModified: info.ModTime().UTC()})
		return nil
	})
	if err != nil {
		return nil, base.NewConnectorError(s.name, "List", "failed to list documents", err)
	}
	return out, nil
}

// Get reads a file.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := s.path("Get", key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, base.NotFound(s.name, "Get", key)
	}
	if err != nil {
		return nil, base.NewConnectorError(s.name, "Get", "failed to read "+key, err)
	}
	return data, nil
}

// Put writes a file atomically through a temporary sibling.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	p, err := s.path("Put", key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return base.NewConnectorError(s.name, "Put", "failed to create directory", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return base.NewConnectorError(s.name, "Put", "failed to write "+key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		return base.NewConnectorError(s.name, "Put", "failed to write "+key, err)
	}
	return nil
}

// HealthCheck stats the root directory.
func (s *Store) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	start := time.Now()
	_, err := os.Stat(s.root)
	status := &base.HealthStatus{
		Healthy:   err == nil,
		Latency:   time.Since(start),
		Details:   map[string]string{"root": s.root},
		Timestamp: time.Now(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status, nil
}
