// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"creditlens/platform/orchestrator/reasoning"
	"creditlens/platform/orchestrator/tools"
)

// toolResultSchema describes a tool payload as it appears in a transcript.
// A payload that names an agent must be a complete tool result. Raw
// compliance payloads carry no agent fields; routing rejects payloads that
// name no tool.
const toolResultSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "agentName": {"type": "string", "minLength": 1},
    "agentDescription": {"type": "string"},
    "extractedData": {"type": "object"},
    "summary": {"type": "string"},
    "completedAt": {"type": "string", "format": "date-time"},
    "confidenceScore": {"type": "number", "minimum": 0, "maximum": 1},
    "status": {"enum": ["complete", "failed"]},
    "errorMessage": {"type": ["string", "null"]},
    "compliance_issues": {"type": "array"},
    "risk_level": {"type": "string"},
    "recommendations": {"type": "array"}
  },
  "if": {"required": ["agentName"]},
  "then": {
    "required": ["agentName", "status", "completedAt", "confidenceScore", "extractedData", "summary"]
  }
}`

var compiledSchema = mustCompileSchema(toolResultSchema)

func mustCompileSchema(text string) *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		panic(fmt.Sprintf("tool result schema: %v", err))
	}
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource("tool_result.json", doc); err != nil {
		panic(fmt.Sprintf("tool result schema: %v", err))
	}
	schema, err := c.Compile("tool_result.json")
	if err != nil {
		panic(fmt.Sprintf("tool result schema: %v", err))
	}
	return schema
}

// ErrUnroutable is returned for payloads that name no known tool.
var ErrUnroutable = errors.New("payload names no known tool")

// ParseToolResult strictly parses a transcript payload. The payload must be a
// JSON object matching the tool result schema and must either name a known
// agent or carry compliance_issues. Anything else is rejected whole.
func ParseToolResult(payload string) (tools.ToolID, tools.ToolResult, error) {
	var doc any
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &doc); err != nil {
		return 0, tools.ToolResult{}, fmt.Errorf("payload is not JSON: %w", err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return 0, tools.ToolResult{}, errors.New("payload is not a JSON object")
	}
	if err := compiledSchema.Validate(doc); err != nil {
		return 0, tools.ToolResult{}, fmt.Errorf("payload does not match the tool result schema: %w", err)
	}

	id, err := route(obj)
	if err != nil {
		return 0, tools.ToolResult{}, err
	}

	var res tools.ToolResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return 0, tools.ToolResult{}, fmt.Errorf("payload is not a tool result: %w", err)
	}
	res = normalize(id, obj, res)
	if err := res.Validate(); err != nil {
		return 0, tools.ToolResult{}, fmt.Errorf("payload is not a valid tool result: %w", err)
	}
	return id, res, nil
}

// route matches agentName exactly, or falls back to the compliance_issues key
// when no agent is named.
func route(obj map[string]any) (tools.ToolID, error) {
	if name, ok := obj["agentName"].(string); ok {
		for _, id := range tools.All() {
			if id.AgentName() == name {
				return id, nil
			}
		}
		return 0, fmt.Errorf("%w: agent %q", ErrUnroutable, name)
	}
	if _, ok := obj["compliance_issues"]; ok {
		return tools.Compliance, nil
	}
	if data, ok := obj["extractedData"].(map[string]any); ok {
		if _, ok := data["compliance_issues"]; ok {
			return tools.Compliance, nil
		}
	}
	return 0, ErrUnroutable
}

// normalize fills identity and status fields absent from a raw compliance
// payload. Payloads that name an agent are complete by schema and only get
// their description filled.
func normalize(id tools.ToolID, obj map[string]any, res tools.ToolResult) tools.ToolResult {
	if _, named := obj["agentName"]; named {
		if res.AgentDescription == "" {
			res.AgentDescription = id.Description()
		}
		return res
	}
	if res.AgentName == "" {
		res.AgentName = id.AgentName()
	}
	if res.AgentDescription == "" {
		res.AgentDescription = id.Description()
	}
	if res.ExtractedData == nil {
		res.ExtractedData = map[string]interface{}{}
		for _, k := range []string{"compliance_issues", "risk_level", "recommendations"} {
			if v, ok := obj[k]; ok {
				res.ExtractedData[k] = v
			}
		}
	}
	if res.Status == "" {
		res.Status = tools.StatusComplete
		if res.ErrorMessage != nil {
			res.Status = tools.StatusFailed
		}
	}
	if res.CompletedAt.IsZero() {
		res.CompletedAt = time.Now().UTC()
	}
	return res
}

// Rejection records a transcript payload that could not be captured.
type Rejection struct {
	Index int
	Name  string
	Err   error
}

// Extract scans the transcript's tool entries and routes every payload that
// parses into its slot. A later payload for the same slot replaces an
// earlier one.
func Extract(t *Transcript) (map[tools.ToolID]*tools.ToolResult, []Rejection) {
	captured := make(map[tools.ToolID]*tools.ToolResult)
	var rejected []Rejection
	for i, e := range t.Entries {
		if e.Role != reasoning.RoleTool {
			continue
		}
		id, res, err := ParseToolResult(e.Content)
		if err != nil {
			rejected = append(rejected, Rejection{Index: i, Name: e.Name, Err: err})
			continue
		}
		r := res
		captured[id] = &r
	}
	return captured, rejected
}
