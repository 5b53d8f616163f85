package healer

import (
	"context"
	"fmt"

	"goa.design/nl2api/executor"
	"goa.design/nl2api/llmgateway"
	"goa.design/nl2api/metadata"
	"goa.design/nl2api/planner"
	"goa.design/nl2api/telemetry"
)

const analysisTemperature = 0.2

const retryAnalystSystemPrompt = "You analyze a failed API-orchestration attempt. Given the original " +
	"query, the error, the plan, and the step results, decide whether retrying with a corrected query " +
	"would plausibly succeed. Reply with JSON only: " +
	`{"shouldRetry": bool, "correctedQuery": string, "analysis": string}. ` +
	"Only set shouldRetry true if correctedQuery is a concrete, different query worth trying."

const metadataExtractorSystemPrompt = "You analyze a failed API call and propose structural corrections " +
	"to the endpoint catalog. Reply with JSON only: " +
	`{"missingParameters": [...], "parameterCorrections": [...], "errorMessages": [...]}. ` +
	"Each array may be empty. Only propose a delta you are confident about."

// Healer runs the two independent LLM roles (retry analyst, metadata
// extractor) and applies proposed deltas to the metadata repository.
type Healer struct {
	llm    llmgateway.Client
	repo   *metadata.Repository
	logger telemetry.Logger
}

// Option configures a Healer.
type Option func(*Healer)

// WithLogger configures the healer's logger.
func WithLogger(l telemetry.Logger) Option {
	return func(h *Healer) { h.logger = l }
}

// New builds a Healer backed by llm for analysis and repo for delta
// application.
func New(llm llmgateway.Client, repo *metadata.Repository, opts ...Option) *Healer {
	h := &Healer{llm: llm, repo: repo, logger: telemetry.NewNoopLogger()}
	for _, o := range opts {
		if o != nil {
			o(h)
		}
	}
	return h
}

// AnalyzeRetry asks the retry analyst whether the pipeline should restart
// with a corrected query, given the original query, the failure, the
// attempted plan, and the step results observed so far.
func (h *Healer) AnalyzeRetry(ctx context.Context, userQuery string, failure error, plan *planner.ExecutionPlan, steps []executor.StepResult) (*RetryAnalysis, error) {
	user := fmt.Sprintf(
		"Original query: %s\nError: %v\nPlan: %s\nStep results: %s\n\nShould we retry with a corrected query?",
		userQuery, failure, renderPlan(plan), renderSteps(steps),
	)
	var analysis RetryAnalysis
	if err := h.llm.JSON(ctx, retryAnalystSystemPrompt, user, analysisTemperature, &analysis); err != nil {
		return nil, fmt.Errorf("healer: retry analyst request: %w", err)
	}
	if analysis.ShouldRetry && analysis.CorrectedQuery == "" {
		analysis.ShouldRetry = false
	}
	return &analysis, nil
}

// ProposeDeltas asks the metadata extractor for structural corrections to
// the endpoint catalog implied by the failure.
func (h *Healer) ProposeDeltas(ctx context.Context, userQuery string, failure error, plan *planner.ExecutionPlan, steps []executor.StepResult) (*MetadataDeltas, error) {
	user := fmt.Sprintf(
		"Original query: %s\nError: %v\nPlan: %s\nStep results: %s\n\nPropose metadata corrections.",
		userQuery, failure, renderPlan(plan), renderSteps(steps),
	)
	var deltas MetadataDeltas
	if err := h.llm.JSON(ctx, metadataExtractorSystemPrompt, user, analysisTemperature, &deltas); err != nil {
		return nil, fmt.Errorf("healer: metadata extractor request: %w", err)
	}
	return &deltas, nil
}

func renderPlan(plan *planner.ExecutionPlan) string {
	if plan == nil {
		return "(no plan)"
	}
	out := ""
	for i, s := range plan.Steps {
		out += fmt.Sprintf("  [%d] %s params=%v\n", i, s.Endpoint, s.Params)
	}
	return out
}

func renderSteps(steps []executor.StepResult) string {
	out := ""
	for _, s := range steps {
		out += fmt.Sprintf("  [%d] %s success=%t status=%d error=%q\n", s.Index, s.Endpoint, s.Success, s.StatusCode, s.Error)
	}
	return out
}
