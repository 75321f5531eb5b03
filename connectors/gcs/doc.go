// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package gcs stores CreditLens documents in a Google Cloud Storage bucket.

Store implements base.DocumentStore.

# Configuration

  - bucket (required): bucket name
  - prefix: key prefix every document is stored under
  - endpoint: custom endpoint, for example the fake-gcs-server emulator

Credentials credentials_file or credentials_json are optional; without them
Application Default Credentials are used.
*/
package gcs
