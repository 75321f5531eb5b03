// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0

/*
Package azureblob stores CreditLens documents in Azure Blob Storage.

# Overview

Store implements base.DocumentStore over a single container. Uploaded bureau
documents, bureau profiles and the persisted financial summary are kept as
block blobs.

# Authentication

The first usable method wins:

  - connection_string credential: full Azure storage connection string
  - account_key credential with the account_name option: shared key
  - use_managed_identity option with account_name: Azure AD via DefaultAzureCredential

# Configuration

  - account_name: storage account name
  - container: container name (default: documents); created on connect if missing

# Errors

A missing blob or container is reported as an error wrapping base.ErrNotFound.
*/
package azureblob
