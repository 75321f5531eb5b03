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

package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"creditlens/platform/connectors/base"
)

// ObjectAPI is the subset of the S3 client the store uses.
type ObjectAPI interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Store keeps documents in one S3 bucket, optionally under a key prefix.
type Store struct {
	name   string
	client ObjectAPI
	bucket string
	prefix string
}

var _ base.DocumentStore = (*Store)(nil)

// NewStore loads AWS configuration and verifies the bucket is reachable.
// Static credentials are used when both access_key_id and
// secret_access_key are set, otherwise the default credential chain.
func NewStore(ctx context.Context, cfg *base.StoreConfig) (*Store, error) {
	name := "s3"
	if cfg != nil && cfg.Name != "" {
		name = cfg.Name
	}
	bucket := cfg.GetString("bucket", "")
	if bucket == "" {
		return nil, base.NewConnectorError(name, "Connect", "bucket is required", nil)
	}

	region := cfg.GetString("region", "us-east-1")
	optFns := []func(*config.LoadOptions) error{config.WithRegion(region)}

	accessKeyID := cfg.GetCredential("access_key_id")
	secretAccessKey := cfg.GetCredential("secret_access_key")
	if accessKeyID != "" && secretAccessKey != "" {
		creds := credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, cfg.GetCredential("session_token"))
		optFns = append(optFns, config.WithCredentialsProvider(creds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, base.NewConnectorError(name, "Connect", "failed to load AWS config", err)
	}

	endpoint := cfg.GetString("endpoint", "")
	pathStyle := cfg.GetBool("force_path_style", false)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	})

	s := NewStoreWithClient(name, client, bucket, cfg.GetString("prefix", ""))
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, base.NewConnectorError(name, "Connect", "failed to verify S3 connectivity", err)
	}

	log.Printf("[S3] Connected (region: %s, bucket: %s)", region, bucket)
	return s, nil
}

// NewStoreWithClient wraps an existing client.
func NewStoreWithClient(name string, client ObjectAPI, bucket, prefix string) *Store {
	return &Store{name: name, client: client, bucket: bucket, prefix: prefix}
}

// Name returns the instance name.
func (s *Store) Name() string { return s.name }

func (s *Store) objectKey(key string) string { return s.prefix + key }

// List pages through objects under prefix. Returned keys are relative to the
// store prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]base.ObjectInfo, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.objectKey(prefix)),
	})

	var out []base.ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, base.NewConnectorError(s.name, "List", "failed to list objects", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			info := base.ObjectInfo{
				Key:  key[len(s.prefix):],
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.LastModified = obj.LastModified.UTC()
			}
			out = append(out, info)
		}
	}
	return out, nil
}

// Get downloads an object.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, base.NotFound(s.name, "Get", key)
		}
		return nil, base.NewConnectorError(s.name, "Get", fmt.Sprintf("failed to get object: %s", key), err)
	}
	defer output.Body.Close()

	content, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, base.NewConnectorError(s.name, "Get", "failed to read object content", err)
	}
	return content, nil
}

// Put uploads an object.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return base.NewConnectorError(s.name, "Put", fmt.Sprintf("failed to put object: %s", key), err)
	}
	return nil
}

// HealthCheck heads the bucket.
func (s *Store) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	start := time.Now()
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
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
