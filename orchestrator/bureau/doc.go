// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package bureau produces the bureau summary that seeds every analysis run.

Two producers are available:

  - ProfileProducer reads a prepared bureau profile (company facts, key
    financial metrics and a narrative summary) from a document store.
  - DocumentProducer selects the newest uploaded .docx, .xlsx or .txt
    documents, extracts their text and company facts, asks the reasoning
    service for a summary and persists it under DefaultSummaryKey. Several
    documents are merged by a MetaSummarizer.

Producers never return errors. A failure is a failed bureau ToolResult, which
the pipeline treats as fatal.
*/
package bureau
