// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package orchestrator provides the CreditLens orchestrator service, which runs
credit-risk analyses over a bureau summary and five analysis tools.

# Overview

A run starts from the bureau summary of the applicant and produces one
aggregate with a slot per tool: bureau, credit, fraud, explainability and
compliance. Two strategies are available:

  - Deterministic (package pipeline): a reasoning policy picks tools from the
    bureau summary; credit and explainability always run, fraud and
    compliance run when selected.
  - Conversational (package conversation): a chat model calls the tools as
    functions and the transcript is collected into the aggregate. When no
    tool call is captured the service falls back to direct invocation of
    every tool in order.

Slots that never produced a result are filled with a failed result, so every
aggregate carries all five slots.

# Components

Build wires the components from a config.Config:

  - document store: local filesystem, Azure Blob, S3 or GCS
  - reasoning provider: Azure OpenAI, Anthropic or Bedrock
  - optional Redis cache for tool results
  - run history: memory, PostgreSQL, MySQL or MongoDB
  - credentials written as aws-secret://ARN#key are resolved before use

# HTTP API

	POST /run-smart-controller       deterministic run
	POST /run-sk-smart-controller    conversational run, body {"requirements": [...]}
	POST /run-sk-credit-analysis     direct invocation, wrapped as {"analysis": ...}
	POST /run-fraud                  single tool over the persisted summary
	POST /run-compliance
	POST /run-explainability
	GET  /api/v1/runs                recent runs
	GET  /api/v1/runs/{id}           one run record
	POST /api/v1/documents           multipart upload of a bureau document
	GET  /api/v1/documents           list stored documents
	GET  /health                     component health and run metrics
	GET  /prometheus                 Prometheus exposition

When server.jwt_secret is set every route except /health and /prometheus
requires an HMAC-signed bearer token.

# Metrics

	creditlens_runs_total{strategy,outcome}
	creditlens_tool_results_total{tool,status}
	creditlens_run_duration_seconds{strategy}

Collectors are registered on the prometheus.Registerer passed to
NewMetricsCollector; nothing is registered on a package global.
*/
package orchestrator
