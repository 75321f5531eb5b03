// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package conversation

import "creditlens/platform/orchestrator/reasoning"

// Entry is one turn of a conversational run.
type Entry struct {
	Role       reasoning.Role       `json:"role"`
	Content    string               `json:"content"`
	ToolCalls  []reasoning.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
	Name       string               `json:"name,omitempty"`
}

// Transcript is the ordered interaction between orchestrator and model.
type Transcript struct {
	Entries []Entry `json:"entries"`
}

// NewTranscript starts a transcript with a system directive and a user message.
func NewTranscript(system, user string) *Transcript {
	return &Transcript{Entries: []Entry{
		{Role: reasoning.RoleSystem, Content: system},
		{Role: reasoning.RoleUser, Content: user},
	}}
}

// Append adds entries in order.
func (t *Transcript) Append(entries ...Entry) {
	t.Entries = append(t.Entries, entries...)
}

// ToolEntries returns the tool result entries in order.
func (t *Transcript) ToolEntries() []Entry {
	var out []Entry
	for _, e := range t.Entries {
		if e.Role == reasoning.RoleTool {
			out = append(out, e)
		}
	}
	return out
}

// Messages converts the transcript to chat messages.
func (t *Transcript) Messages() []reasoning.Message {
	out := make([]reasoning.Message, len(t.Entries))
	for i, e := range t.Entries {
		out[i] = reasoning.Message{
			Role:       e.Role,
			Content:    e.Content,
			ToolCalls:  e.ToolCalls,
			ToolCallID: e.ToolCallID,
			Name:       e.Name,
		}
	}
	return out
}
