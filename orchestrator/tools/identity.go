// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package tools

import "strings"

// ToolID identifies one tool. Values are ordered as a direct run invokes them.
type ToolID int

const (
	Bureau ToolID = iota
	Credit
	Fraud
	Explainability
	Compliance

	toolCount
)

type identity struct {
	agentName   string
	description string
	slot        string
	function    string
	policyName  string
}

var identities = [toolCount]identity{
	Bureau: {
		agentName:   "Bureau Summariser",
		description: "Analyzes and summarizes business documents and financial statements",
		slot:        "bureau_summary",
		function:    "bureau_analysis",
	},
	Credit: {
		agentName:   "Credit Score Rating",
		description: "Calculates credit risk and assigns AAA–DDD rating",
		slot:        "credit_scoring",
		function:    "credit_scoring",
		policyName:  "credit scoring",
	},
	Fraud: {
		agentName:   "Fraud Detection",
		description: "Identifies potential fraud indicators and risk factors",
		slot:        "fraud_detection",
		function:    "fraud_detection",
		policyName:  "fraud detection",
	},
	Explainability: {
		agentName:   "Explainability",
		description: "Provides detailed explanation of analysis decisions and factors",
		slot:        "explainability",
		function:    "explainability",
		policyName:  "explainability",
	},
	Compliance: {
		agentName:   "Compliance Check",
		description: "Checks legal compliance and regulatory requirements",
		slot:        "compliance_check",
		function:    "compliance_check",
		policyName:  "compliance",
	},
}

// All returns every tool in direct-run order.
func All() []ToolID {
	return []ToolID{Bureau, Credit, Fraud, Explainability, Compliance}
}

// Analysis returns the tools that consume a summary.
func Analysis() []ToolID {
	return []ToolID{Credit, Fraud, Explainability, Compliance}
}

// Valid reports whether id names a tool.
func (id ToolID) Valid() bool {
	return id >= 0 && id < toolCount
}

func (id ToolID) ident() identity {
	if !id.Valid() {
		return identity{}
	}
	return identities[id]
}

// AgentName is the name the tool reports in its results.
func (id ToolID) AgentName() string { return id.ident().agentName }

// Description is the human-readable capability description.
func (id ToolID) Description() string { return id.ident().description }

// Slot is the aggregate result key.
func (id ToolID) Slot() string { return id.ident().slot }

// Function is the name exposed to a function-calling model.
func (id ToolID) Function() string { return id.ident().function }

// PolicyName is the tool-selection vocabulary name, empty for the bureau.
func (id ToolID) PolicyName() string { return id.ident().policyName }

func (id ToolID) String() string {
	if !id.Valid() {
		return "unknown"
	}
	return id.Slot()
}

func lookup(match func(identity) bool) (ToolID, bool) {
	for i := ToolID(0); i < toolCount; i++ {
		if match(identities[i]) {
			return i, true
		}
	}
	return 0, false
}

// ByAgentName finds the tool reporting name.
func ByAgentName(name string) (ToolID, bool) {
	return lookup(func(i identity) bool { return i.agentName == name })
}

// ByFunction finds the tool exposed under a function name.
func ByFunction(name string) (ToolID, bool) {
	return lookup(func(i identity) bool { return i.function == name })
}

// BySlot finds the tool filling an aggregate slot.
func BySlot(slot string) (ToolID, bool) {
	return lookup(func(i identity) bool { return i.slot == slot })
}

// ByPolicyName finds a tool by vocabulary name, ignoring case and surrounding space.
func ByPolicyName(name string) (ToolID, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return 0, false
	}
	return lookup(func(i identity) bool { return i.policyName == name })
}

// Vocabulary lists the tool-selection names in tool order.
func Vocabulary() []string {
	var out []string
	for _, id := range All() {
		if n := id.PolicyName(); n != "" {
			out = append(out, n)
		}
	}
	return out
}
