// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Command orchestrator runs the CreditLens credit-risk orchestration service.

A run takes the bureau financial summary, decides which analysis tools to
invoke and returns one aggregate with a slot per tool: bureau summary, credit
scoring, fraud detection, explainability and compliance check.

# Usage

	orchestrator [-config creditlens.yaml]

# Routes

	POST /run-smart-controller      deterministic strategy
	POST /run-sk-smart-controller   conversational strategy, body {"requirements": [...]}
	POST /run-sk-credit-analysis    direct invocation, wrapped as {"analysis": ...}
	POST /run-fraud                 single tool on the persisted summary
	POST /run-compliance
	POST /run-explainability
	GET  /api/v1/runs/{id}          run record
	POST /api/v1/documents          multipart upload of a bureau document
	GET  /health
	GET  /prometheus

# Environment Variables

  - PORT: HTTP server port (default: 8081)
  - REASONING_PROVIDER: azure (default), anthropic or bedrock
  - AZURE_OPENAI_ENDPOINT, AZURE_OPENAI_API_KEY, AZURE_OPENAI_DEPLOYMENT
  - ANTHROPIC_API_KEY, ANTHROPIC_MODEL
  - BEDROCK_REGION, BEDROCK_MODEL
  - STORAGE_BACKEND: local (default), azureblob, s3 or gcs
  - REQUIRE_SUMMARY: refuse to start without rag_summary.txt (default: true)
  - REDIS_URL: enables the tool result cache
  - HISTORY_DRIVER, HISTORY_DSN: memory (default), postgres, mysql or mongodb
  - JWT_SECRET: requires HMAC bearer tokens on every route except /health and /prometheus

# Example

	export AZURE_OPENAI_ENDPOINT="https://creditlens.openai.azure.com"
	export AZURE_OPENAI_API_KEY="..."
	export AZURE_OPENAI_DEPLOYMENT="gpt-4o"
	export STORAGE_ROOT=./data
	./orchestrator
*/
package main
