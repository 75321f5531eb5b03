// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

/*
Package tools defines the analysis tools of a credit-risk run and the result
contract every tool returns.

# ToolResult

Every tool produces a ToolResult: agent name and description, tool-specific
extracted data, a narrative summary, a UTC completion time, a confidence score
in [0,1], a status (complete or failed) and an error message that is set if and
only if the status is failed.

# Tool identities

The set of tools is closed. ToolID enumerates them in the order a direct run
invokes them (bureau, credit, fraud, explainability, compliance) and carries
each tool's agent name, aggregate slot, function name and policy vocabulary
name. Lookups from any of those strings go through the ToolID tables, never
through a string-keyed map of callables.

# Adapters

An Adapter runs one tool against a financial summary. Adapters never return
errors: every failure, including a panic, is converted by Guard into a failed
ToolResult with zero confidence.
*/
package tools
