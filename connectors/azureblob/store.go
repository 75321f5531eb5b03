// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package azureblob

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"creditlens/platform/connectors/base"
)

// Store keeps documents in one Azure Blob container.
type Store struct {
	name        string
	client      *azblob.Client
	accountName string
	container   string
}

var _ base.DocumentStore = (*Store)(nil)

// Settings are the resolved connection settings for a store.
type Settings struct {
	AccountName        string
	AccountKey         string
	ConnectionString   string
	UseManagedIdentity bool
	Container          string
}

// SettingsFromConfig reads Settings from a store configuration.
func SettingsFromConfig(cfg *base.StoreConfig) Settings {
	return Settings{
		AccountName:        cfg.GetString("account_name", ""),
		AccountKey:         cfg.GetCredential("account_key"),
		ConnectionString:   cfg.GetCredential("connection_string"),
		UseManagedIdentity: cfg.GetBool("use_managed_identity", false),
		Container:          cfg.GetString("container", "documents"),
	}
}

// NewClient builds an azblob client from the first usable authentication
// method: connection string, shared key, then managed identity.
func NewClient(name string, s Settings) (*azblob.Client, error) {
	switch {
	case s.ConnectionString != "":
		client, err := azblob.NewClientFromConnectionString(s.ConnectionString, nil)
		if err != nil {
			return nil, base.NewConnectorError(name, "Connect", "failed to create client from connection string", err)
		}
		return client, nil

	case s.AccountKey != "":
		if s.AccountName == "" {
			return nil, base.NewConnectorError(name, "Connect", "account_name is required with an account key", nil)
		}
		cred, err := azblob.NewSharedKeyCredential(s.AccountName, s.AccountKey)
		if err != nil {
			return nil, base.NewConnectorError(name, "Connect", "failed to create shared key credential", err)
		}
		client, err := azblob.NewClientWithSharedKeyCredential(serviceURL(s.AccountName), cred, nil)
		if err != nil {
			return nil, base.NewConnectorError(name, "Connect", "failed to create client", err)
		}
		return client, nil

	case s.UseManagedIdentity:
		if s.AccountName == "" {
			return nil, base.NewConnectorError(name, "Connect", "account_name is required with managed identity", nil)
		}
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, base.NewConnectorError(name, "Connect", "failed to create Azure credential", err)
		}
		client, err := azblob.NewClient(serviceURL(s.AccountName), cred, nil)
		if err != nil {
			return nil, base.NewConnectorError(name, "Connect", "failed to create client", err)
		}
		return client, nil

	default:
		return nil, base.NewConnectorError(name, "Connect", "no authentication method provided", nil)
	}
}

func serviceURL(account string) string {
	return fmt.Sprintf("https://%s.blob.core.windows.net/", account)
}

// NewStore connects to the configured container, creating it when missing.
func NewStore(ctx context.Context, cfg *base.StoreConfig) (*Store, error) {
	name := "azureblob"
	if cfg != nil && cfg.Name != "" {
		name = cfg.Name
	}
	settings := SettingsFromConfig(cfg)
	client, err := NewClient(name, settings)
	if err != nil {
		return nil, err
	}

	s := &Store{name: name, client: client, accountName: settings.AccountName, container: settings.Container}

	if _, err := client.CreateContainer(ctx, s.container, nil); err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, base.NewConnectorError(name, "Connect", "failed to verify container "+s.container, err)
	}

	log.Printf("[AzureBlob] Connected (account: %s, container: %s)", s.accountName, s.container)
	return s, nil
}

// Name returns the instance name.
func (s *Store) Name() string { return s.name }

// Container returns the container the store writes to.
func (s *Store) Container() string { return s.container }

// List pages through the blobs under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]base.ObjectInfo, error) {
	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})

	var out []base.ObjectInfo
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, base.NewConnectorError(s.name, "List", "failed to list blobs", err)
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			info := base.ObjectInfo{Key: *item.Name}
			if p := item.Properties; p != nil {
				if p.ContentLength != nil {
					info.Size = *p.ContentLength
				}
				if p.LastModified != nil {
					info.LastModified = p.LastModified.UTC()
				}
				if p.ContentType != nil {
					info.ContentType = *p.ContentType
				}
			}
			out = append(out, info)
		}
	}
	return out, nil
}

// Get downloads a blob.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, base.NotFound(s.name, "Get", key)
		}
		return nil, base.NewConnectorError(s.name, "Get", fmt.Sprintf("failed to download blob: %s", key), err)
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, base.NewConnectorError(s.name, "Get", "failed to read blob content", err)
	}
	return content, nil
}

// Put uploads a blob, replacing any existing one.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	opts := &azblob.UploadBufferOptions{}
	if contentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: &contentType}
	}
	if _, err := s.client.UploadBuffer(ctx, s.container, key, data, opts); err != nil {
		return base.NewConnectorError(s.name, "Put", fmt.Sprintf("failed to upload blob: %s", key), err)
	}
	return nil
}

// HealthCheck reads the service properties.
func (s *Store) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	if s.client == nil {
		return &base.HealthStatus{
			Healthy:   false,
			Error:     "Azure Blob client not initialized",
			Timestamp: time.Now(),
		}, nil
	}

	start := time.Now()
	_, err := s.client.ServiceClient().GetProperties(ctx, nil)
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
		Healthy: true,
		Latency: latency,
		Details: map[string]string{
			"account_name": s.accountName,
			"container":    s.container,
		},
		Timestamp: time.Now(),
	}, nil
}
