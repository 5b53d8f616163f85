// Package planner implements the Planner (C5): turns a user query and
// resolved candidate endpoints into a validated, executable ExecutionPlan.
package planner

import "goa.design/nl2api/jsonpath"

// Step is one call in an ExecutionPlan, targeting an endpoint by its
// "METHOD PATH" label with literal or $.steps[i]-referencing parameters.
type Step struct {
	Endpoint string         `json:"endpoint"`
	Params   map[string]any `json:"params"`
}

// ExecutionPlan is the LLM-produced, validated sequence of steps the
// executor runs in order.
type ExecutionPlan struct {
	Steps []Step `json:"steps"`
}

// planSchema is the JSON Schema every raw planner reply is checked against
// before semantic validation runs.
const planSchema = `{
  "type": "object",
  "required": ["steps"],
  "properties": {
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["endpoint", "params"],
        "properties": {
          "endpoint": {"type": "string", "minLength": 1},
          "params": {"type": "object"}
        }
      }
    }
  }
}`

// isReference reports whether a parameter value is a cross-step data
// reference rather than a literal.
func isReference(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return s, jsonpath.IsReference(s)
}
