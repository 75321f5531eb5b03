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

/*
Package base provides the storage contract shared by the CreditLens document
backends.

# Overview

Bureau documents, bureau profiles and the persisted financial summary are all
read and written through the DocumentStore interface:

	type DocumentStore interface {
	    Name() string
	    List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	    Get(ctx context.Context, key string) ([]byte, error)
	    Put(ctx context.Context, key string, data []byte, contentType string) error
	    HealthCheck(ctx context.Context) (*HealthStatus, error)
	}

# Supported Backends

  - localfs - a directory on local disk
  - azureblob - an Azure Blob Storage container
  - s3 - an Amazon S3 (or S3-compatible) bucket
  - gcs - a Google Cloud Storage bucket

# Error Handling

Backends return *ConnectorError values. A missing key wraps ErrNotFound so
callers can test it with IsNotFound:

	data, err := store.Get(ctx, "rag_summary.txt")
	if base.IsNotFound(err) {
	    // no summary persisted yet
	}

# Selecting Documents

Latest picks the most recently modified object among a listing, optionally
restricted to a set of extensions:

	objs, _ := store.List(ctx, "")
	doc, ok := base.Latest(objs, ".docx", ".xlsx", ".txt")
*/
package base
