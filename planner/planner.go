package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"goa.design/nl2api/contextcache"
	"goa.design/nl2api/llmgateway"
	"goa.design/nl2api/metadata"
	"goa.design/nl2api/resolver"
)

// topCandidates caps the resolver candidates kept; maxPromptItems,
// maxContext and maxFieldLinks bound how much of the candidates, prior
// context and field links are rendered into the prompt.
const (
	topCandidates  = 10
	maxPromptItems = 15
	maxContext     = 5
	maxFieldLinks  = 10
	planTemperature = 0.1
)

var compiledPlanSchema *jsonschema.Schema

func init() {
	c := jsonschema.NewCompiler()
	var doc any
	if err := json.Unmarshal([]byte(planSchema), &doc); err != nil {
		panic("planner: invalid embedded plan schema: " + err.Error())
	}
	if err := c.AddResource("plan.json", doc); err != nil {
		panic("planner: add plan schema resource: " + err.Error())
	}
	schema, err := c.Compile("plan.json")
	if err != nil {
		panic("planner: compile plan schema: " + err.Error())
	}
	compiledPlanSchema = schema
}

// Planner resolves candidate endpoints, prompts the LLM gateway for a
// structured plan, and validates the result.
type Planner struct {
	repo     *metadata.Repository
	resolver *resolver.Resolver
	llm      llmgateway.Client
}

// New builds a Planner backed by repo (metadata), res (candidate scoring),
// and llm (prompting).
func New(repo *metadata.Repository, res *resolver.Resolver, llm llmgateway.Client) *Planner {
	return &Planner{repo: repo, resolver: res, llm: llm}
}

// Plan resolves metadata, scores candidates, prompts the LLM, and returns a
// validated ExecutionPlan. On a structurally empty reply it falls back to a
// single zero-required-parameter GET step; if no such endpoint exists it
// falls back to any endpoint with no required parameters at all.
func (p *Planner) Plan(ctx context.Context, projectID int, userQuery string, relevantContext []*contextcache.Entry) (*ExecutionPlan, error) {
	catalog, err := p.repo.ListEndpoints(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("planner: list endpoints: %w", err)
	}
	if len(catalog) == 0 {
		return nil, fmt.Errorf("planner: project %d has no endpoints", projectID)
	}

	candidates, err := p.resolver.Resolve(ctx, userQuery, catalog)
	if err != nil {
		return nil, fmt.Errorf("planner: resolve candidates: %w", err)
	}
	if len(candidates) > topCandidates {
		candidates = candidates[:topCandidates]
	}

	links, err := p.repo.ListFieldLinks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("planner: list field links: %w", err)
	}

	systemPrompt, userPrompt := buildPrompt(userQuery, relevantContext, candidates, links, catalog)

	byLabel := endpointsByLabel(catalog)

	var raw ExecutionPlan
	if err := p.llm.JSON(ctx, systemPrompt, userPrompt, planTemperature, &raw); err != nil {
		return nil, fmt.Errorf("planner: LLM plan request: %w", err)
	}
	if err := validateShape(&raw); err != nil {
		return nil, err
	}

	if len(raw.Steps) == 0 {
		return fallbackPlan(catalog)
	}
	if err := validateSemantics(&raw, byLabel); err != nil {
		return nil, err
	}
	return &raw, nil
}

// validateShape re-validates the already-decoded plan against the JSON
// Schema by round-tripping it back through a generic document, catching
// replies that decoded without error but break the schema (e.g. a step
// whose "params" is missing or null, or whose "endpoint" is empty).
func validateShape(plan *ExecutionPlan) error {
	raw, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("planner: re-encode plan for schema check: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("planner: decode plan for schema check: %w", err)
	}
	if err := compiledPlanSchema.Validate(doc); err != nil {
		return fmt.Errorf("planner: plan failed schema validation: %w", err)
	}
	return nil
}

// fallbackPlan picks a single-step plan when the LLM reply has no steps:
// prefer a zero-path-param, zero-required-param GET; else any
// endpoint with no required parameters; else fail.
func fallbackPlan(catalog []*metadata.Endpoint) (*ExecutionPlan, error) {
	var anyNoRequired *metadata.Endpoint
	for _, ep := range catalog {
		if hasRequiredParams(ep) {
			continue
		}
		if anyNoRequired == nil {
			anyNoRequired = ep
		}
		if ep.Method == metadata.MethodGet && !hasPathParam(ep) {
			return &ExecutionPlan{Steps: []Step{{Endpoint: ep.Label(), Params: map[string]any{}}}}, nil
		}
	}
	if anyNoRequired != nil {
		return &ExecutionPlan{Steps: []Step{{Endpoint: anyNoRequired.Label(), Params: map[string]any{}}}}, nil
	}
	return nil, fmt.Errorf("planner: no suitable plan")
}

func hasRequiredParams(ep *metadata.Endpoint) bool {
	for _, p := range ep.Params {
		if p.Required {
			return true
		}
	}
	return false
}

func hasPathParam(ep *metadata.Endpoint) bool {
	for _, p := range ep.Params {
		if p.In == metadata.InPath {
			return true
		}
	}
	return strings.Contains(ep.Path, "{")
}
