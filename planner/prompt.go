package planner

import (
	"fmt"
	"strings"

	"goa.design/nl2api/contextcache"
	"goa.design/nl2api/metadata"
	"goa.design/nl2api/resolver"
)

const systemPromptText = `You are an API execution planner. Given a user request and a catalog of ` +
	`available HTTP endpoints, produce a JSON execution plan. Reply with JSON only, no prose, ` +
	`matching exactly: {"steps": [{"endpoint": "METHOD PATH", "params": {...}}]}. ` +
	`Parameter values may be literals or references of the form "$.steps[i].response.<path>" ` +
	`pointing at an earlier step's response. Only reference endpoints from the candidate list below, ` +
	`using the exact "METHOD PATH" label.`

// buildPrompt renders the system/user prompt pair: the user query, recent
// context, up to maxPromptItems candidate endpoints, up to maxFieldLinks
// field-link hints, and the JSON-only reply instructions.
func buildPrompt(query string, context []*contextcache.Entry, candidates []resolver.Candidate, links []metadata.FieldLink, catalog []*metadata.Endpoint) (systemPrompt, userPrompt string) {
	var b strings.Builder

	fmt.Fprintf(&b, "User query: %s\n\n", query)

	if len(context) > 0 {
		b.WriteString("Recent context:\n")
		n := len(context)
		if n > maxContext {
			n = maxContext
		}
		for _, c := range context[:n] {
			fmt.Fprintf(&b, "- query=%q data=%s\n", c.Query, truncate(fmt.Sprintf("%v", c.Data), 200))
		}
		b.WriteString("\n")
	}

	b.WriteString("Candidate endpoints:\n")
	n := len(candidates)
	if n > maxPromptItems {
		n = maxPromptItems
	}
	for _, c := range candidates[:n] {
		fmt.Fprintf(&b, "- %s — %s. Params: %s\n", c.Endpoint.Label(), c.Endpoint.Summary, renderParams(c.Endpoint.Params))
	}
	b.WriteString("\n")

	if len(links) > 0 {
		fieldEndpoint, fieldPath := indexResponseFields(catalog)
		endpointByID := indexEndpointByID(catalog)
		b.WriteString("Field-link hints:\n")
		m := len(links)
		if m > maxFieldLinks {
			m = maxFieldLinks
		}
		for _, l := range links[:m] {
			fromLabel, fromPath := fieldEndpoint[l.FromFieldID], fieldPath[l.FromFieldID]
			toLabel := ""
			if ep, ok := endpointByID[l.ToEndpointID]; ok {
				toLabel = ep.Label()
			}
			fmt.Fprintf(&b, "- %s from %q → %s in %q\n", fromPath, fromLabel, l.ToParamName, toLabel)
		}
		b.WriteString("\n")
	}

	b.WriteString("Reply with JSON only: a \"steps\" array; each step has \"endpoint\" (exactly \"METHOD PATH\") and a \"params\" object.")

	return systemPromptText, b.String()
}

func renderParams(params []metadata.RequestParameter) string {
	if len(params) == 0 {
		return "(none)"
	}
	parts := make([]string, len(params))
	for i, p := range params {
		parts[i] = fmt.Sprintf("%s(%s, required=%t)", p.Name, p.In, p.Required)
	}
	return strings.Join(parts, ", ")
}

func indexResponseFields(catalog []*metadata.Endpoint) (labelByFieldID, pathByFieldID map[int]string) {
	labelByFieldID = make(map[int]string)
	pathByFieldID = make(map[int]string)
	for _, ep := range catalog {
		for _, f := range ep.ResponseFields {
			labelByFieldID[f.ID] = ep.Label()
			pathByFieldID[f.ID] = f.JSONPath
		}
	}
	return
}

func indexEndpointByID(catalog []*metadata.Endpoint) map[int]*metadata.Endpoint {
	out := make(map[int]*metadata.Endpoint, len(catalog))
	for _, ep := range catalog {
		out[ep.ID] = ep
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
