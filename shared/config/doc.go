// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package config loads the CreditLens service configuration.

Settings come from an optional YAML file, then from environment variables,
which always win:

	server:
	  port: "8081"
	  require_summary: true
	reasoning:
	  provider: azure
	  endpoint: ${AZURE_OPENAI_ENDPOINT}
	  deployment: gpt-4o
	storage:
	  backend: azureblob
	  options:
	    container: documents
	  credentials:
	    connection_string: aws-secret://arn:aws:secretsmanager:eu-west-1:123:secret:blob#connection_string
	history:
	  driver: postgres
	  dsn: ${HISTORY_DSN}

Values of the form aws-secret://<arn>#<key> are left in place by Load and
expanded by ResolveSecrets. secrets.provider picks the manager that serves
them: aws (default), env or local.
*/
package config
