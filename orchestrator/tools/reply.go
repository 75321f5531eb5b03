// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package tools

import (
	"regexp"
	"strconv"
	"strings"
)

// StripFence removes a surrounding markdown code fence such as ```json ... ```.
func StripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

var (
	numericValue  = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	factorDivider = regexp.MustCompile(`,|-`)
)

// ParseKeyValueLines reads "Key: value" lines into a map with snake_case keys.
// Numeric values become float64 and risk_factors becomes a list.
func ParseKeyValueLines(text string) map[string]interface{} {
	out := map[string]interface{}{}
	for _, line := range strings.Split(text, "\n") {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		k := strings.ToLower(strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(key), "-*• ")))
		k = strings.ReplaceAll(k, " ", "_")
		if k == "" {
			continue
		}
		v := strings.TrimSpace(val)
		switch {
		case k == "risk_factors":
			var factors []interface{}
			for _, f := range factorDivider.Split(v, -1) {
				if f = strings.TrimSpace(f); f != "" {
					factors = append(factors, f)
				}
			}
			out[k] = factors
		case numericValue.MatchString(v):
			f, _ := strconv.ParseFloat(v, 64)
			out[k] = f
		default:
			out[k] = v
		}
	}
	return out
}

// toFloat converts JSON-ish values to float64, defaulting to 0.
func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(n), "%")), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// toList normalizes a value to a list; strings become single-element lists.
func toList(v interface{}) []interface{} {
	switch l := v.(type) {
	case []interface{}:
		return l
	case []string:
		out := make([]interface{}, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	case string:
		if strings.TrimSpace(l) == "" {
			return []interface{}{}
		}
		return []interface{}{l}
	case nil:
		return []interface{}{}
	default:
		return []interface{}{l}
	}
}
