// Package template renders Go template expressions against stream payloads
// for dynamic node configuration.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
)

// Render parses and executes a template expression against data. Results are
// decoded back into structured values where possible: JSON objects and
// arrays become maps and slices, numeric and boolean text becomes numbers
// and booleans, everything else stays a string.
func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("expression").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}

				num := make([]byte, 1)
				if _, err := rand.Read(num); err != nil {
					return 0
				}

				return int(num[0]) % max
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// RenderPayload renders an expression against a node payload. The payload's
// map keys are addressable directly ({{ .input }}); the node and execution
// identity travel under .node.
func RenderPayload(templateStr string, payload any, nodeID, executionID, branchID string) (any, error) {
	data := map[string]any{
		"data": payload,
		"node": map[string]any{
			"id":           nodeID,
			"execution_id": executionID,
			"branch_id":    branchID,
		},
	}

	if m, ok := payload.(map[string]any); ok {
		for key, value := range m {
			if key == "data" || key == "node" {
				continue
			}

			data[key] = value
		}
	}

	return Render(templateStr, data)
}

// NeedsTemplating reports whether a string contains template syntax worth
// rendering.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}
