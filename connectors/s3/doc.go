// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0

/*
Package s3 stores CreditLens documents in an Amazon S3 bucket.

Store implements base.DocumentStore. It also works with S3-compatible services
such as MinIO through the endpoint and force_path_style options.

# Configuration

  - bucket (required): bucket name
  - prefix: key prefix every document is stored under
  - region: AWS region (default: us-east-1)
  - endpoint: custom endpoint for S3-compatible services
  - force_path_style: use path-style addressing

Credentials access_key_id, secret_access_key and session_token are optional;
without them the default AWS credential chain is used.
*/
package s3
