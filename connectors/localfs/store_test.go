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

package localfs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditlens/platform/connectors/base"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(&base.StoreConfig{Name: "docs", Options: map[string]interface{}{"root": t.TempDir()}})
	require.NoError(t, err)
	return s
}

func TestStore_PutGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "uploads/q3.txt", []byte("Revenue: 4B"), "text/plain"))
	data, err := s.Get(ctx, "uploads/q3.txt")
	require.NoError(t, err)
	assert.Equal(t, "Revenue: 4B", string(data))
	assert.Equal(t, "docs", s.Name())
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "rag_summary.txt")
	assert.True(t, base.IsNotFound(err))
}

func TestStore_RejectsEscapingKeys(t *testing.T) {
	s := newTestStore(t)
	for _, key := range []string{"../secret", "..", ""} {
		_, err := s.Get(context.Background(), key)
		assert.Error(t, err, key)
		assert.False(t, base.IsNotFound(err), key)
	}
}

func TestStore_List(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "uploads/a.docx", []byte("a"), ""))
	require.NoError(t, s.Put(ctx, "uploads/b.xlsx", []byte("bb"), ""))
	require.NoError(t, s.Put(ctx, "rag_summary.txt", []byte("s"), ""))

	older := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(s.root, "uploads", "a.docx"), older, older))

	objs, err := s.List(ctx, "uploads/")
	require.NoError(t, err)
	require.Len(t, objs, 2)

	latest, ok := base.Latest(objs, ".docx", ".xlsx")
	require.True(t, ok)
	assert.Equal(t, "uploads/b.xlsx", latest.Key)
	assert.Equal(t, int64(2), latest.Size)
}

func TestStore_HealthCheck(t *testing.T) {
	s := newTestStore(t)
	status, err := s.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)

	require.NoError(t, os.RemoveAll(s.root))
	status, _ = s.HealthCheck(context.Background())
	assert.False(t, status.Healthy)
}
