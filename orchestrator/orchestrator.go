// Package orchestrator drives a single chat request through context
// lookup, planning, execution, and termination judging, retrying with a
// healer-corrected query up to a fixed budget when planning or execution
// fails.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"goa.design/nl2api/apitypes"
	"goa.design/nl2api/contextcache"
	"goa.design/nl2api/executor"
	"goa.design/nl2api/healer"
	"goa.design/nl2api/internal/retry"
	"goa.design/nl2api/metadata"
	"goa.design/nl2api/planner"
	"goa.design/nl2api/stream"
	"goa.design/nl2api/telemetry"
)

const defaultRetryBudget = 2

// Orchestrator wires the metadata repository, context cache, planner,
// executor, and healer into the request-level state machine:
// CONTEXT -> PLANNING -> EXECUTING -> (JUDGE | HEAL -> RETRY) -> DONE.
type Orchestrator struct {
	repo     *metadata.Repository
	cache    *contextcache.Cache
	planner  *planner.Planner
	executor *executor.Executor
	healer   *healer.Healer

	retryBudget int
	formatter   Formatter
	logger      telemetry.Logger
	metrics     telemetry.Metrics
	tracer      telemetry.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRetryBudget overrides the number of healer-driven pipeline restarts
// allowed after the first pass (default 2, matching config.Config).
func WithRetryBudget(n int) Option { return func(o *Orchestrator) { o.retryBudget = n } }

// WithFormatter overrides how the final step's raw data is rendered into
// the response's FormattedResponse/VisualResponse fields.
func WithFormatter(f Formatter) Option { return func(o *Orchestrator) { o.formatter = f } }

// WithLogger configures the orchestrator's logger.
func WithLogger(l telemetry.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// WithMetrics configures the orchestrator's metrics recorder.
func WithMetrics(m telemetry.Metrics) Option { return func(o *Orchestrator) { o.metrics = m } }

// WithTracer configures the orchestrator's tracer.
func WithTracer(t telemetry.Tracer) Option { return func(o *Orchestrator) { o.tracer = t } }

// New builds an Orchestrator from its component dependencies. pl is
// expected to already be wired to its own resolver and LLM gateway (C4/C5
// are internal to Planner.Plan); ex is expected to already carry a
// termination judge (C7) via executor.WithTerminationJudge if early
// termination is desired.
func New(repo *metadata.Repository, cache *contextcache.Cache, pl *planner.Planner, ex *executor.Executor, he *healer.Healer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repo:        repo,
		cache:       cache,
		planner:     pl,
		executor:    ex,
		healer:      he,
		retryBudget: defaultRetryBudget,
		formatter:   defaultFormatter,
		logger:      telemetry.NewNoopLogger(),
		metrics:     telemetry.NewNoopMetrics(),
		tracer:      telemetry.NewNoopTracer(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// Process runs req through the full pipeline and blocks until it reaches a
// terminal state.
func (o *Orchestrator) Process(ctx context.Context, req *apitypes.ChatRequest) (*apitypes.ChatResponse, error) {
	return o.run(ctx, req, nil)
}

// ProcessStream runs req through the full pipeline, publishing progress
// updates to sink as it goes, and closes sink once a terminal update has
// been sent.
func (o *Orchestrator) ProcessStream(ctx context.Context, req *apitypes.ChatRequest, sink stream.Sink) (*apitypes.ChatResponse, error) {
	if sink == nil {
		return nil, errors.New("orchestrator: ProcessStream requires a non-nil sink")
	}
	resp, err := o.run(ctx, req, sink)
	if cerr := sink.Close(ctx); cerr != nil {
		o.logger.Warn(ctx, "orchestrator: stream close failed", "err", cerr)
	}
	return resp, err
}

// run drives the state machine. Each loop iteration is one full pipeline
// pass (CONTEXT through EXECUTING/JUDGE); a failing pass consults the
// healer for a corrected query and, if granted, consumes one unit of
// retry budget and loops again.
func (o *Orchestrator) run(ctx context.Context, req *apitypes.ChatRequest, sink stream.Sink) (*apitypes.ChatResponse, error) {
	if req == nil || req.Message == "" {
		return nil, errors.New("orchestrator: request message is required")
	}

	start := time.Now()
	query := req.Message
	cred := credentialFromAuth(req.Auth)
	maxPasses := o.retryBudget + 1
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	var lastFailure *PipelineError
	var planSteps, stepsExecuted int
	attempt := 0

	for ; attempt < maxPasses; attempt++ {
		if ctx.Err() != nil {
			lastFailure = pipelineErr(KindCancellation, ctx.Err())
			break
		}

		o.emit(ctx, sink, o.progressUpdate(requestID, apitypes.UpdatePlanning, 10, "looking up context"))
		relevant := o.cache.FindRelevantContext(req.ProjectID, query, req.UserID)
		o.emit(ctx, sink, o.progressUpdate(requestID, apitypes.UpdatePlanning, 20, "context found"))
		o.emit(ctx, sink, o.progressUpdate(requestID, apitypes.UpdatePlanning, 30, "planning"))

		plan, err := o.planner.Plan(ctx, req.ProjectID, query, relevant)
		if err != nil {
			if ctx.Err() != nil {
				lastFailure = pipelineErr(KindCancellation, ctx.Err())
				break
			}
			lastFailure = pipelineErr(classifyPlanErr(err), err)
			o.logger.Warn(ctx, "orchestrator: planning failed", "requestId", requestID, "attempt", attempt, "err", err)
			if attempt == maxPasses-1 {
				break
			}
			corrected, healed := o.heal(ctx, req.ProjectID, query, lastFailure, nil, nil)
			if !healed {
				break
			}
			query = corrected
			continue
		}
		planSteps = len(plan.Steps)
		o.emit(ctx, sink, o.progressUpdate(requestID, apitypes.UpdatePlanning, 40, "plan ready"))

		outcome, runErr := o.executor.Run(ctx, req.ProjectID, query, plan, cred)
		if runErr != nil {
			if ctx.Err() != nil {
				lastFailure = pipelineErr(KindCancellation, ctx.Err())
				break
			}
			lastFailure = pipelineErr(KindJSONPathMiss, runErr)
			o.logger.Warn(ctx, "orchestrator: execution aborted", "requestId", requestID, "attempt", attempt, "err", runErr)
			if attempt == maxPasses-1 {
				break
			}
			corrected, healed := o.heal(ctx, req.ProjectID, query, lastFailure, plan, nil)
			if !healed {
				break
			}
			query = corrected
			continue
		}

		stepsExecuted = len(outcome.Steps)
		for i, s := range outcome.Steps {
			progress := 40 + 40*(i+1)/max(planSteps, 1)
			o.emit(ctx, sink, apitypes.ChatStreamUpdate{
				RequestID:  requestID,
				Type:       apitypes.UpdateStepCompleted,
				Step:       i + 1,
				TotalSteps: planSteps,
				Message:    fmt.Sprintf("completed %s", s.Endpoint),
				Progress:   progress,
				Timestamp:  time.Now(),
			})
		}

		if outcome.Success {
			o.emit(ctx, sink, o.progressUpdate(requestID, apitypes.UpdateFormatting, 85, "formatting response"))
			resp := o.buildSuccessResponse(ctx, requestID, outcome, plan, attempt, start)
			o.emit(ctx, sink, apitypes.ChatStreamUpdate{
				RequestID:       requestID,
				Type:            apitypes.UpdateCompleted,
				Message:         resp.Message,
				Progress:        100,
				ExecutionTimeMs: resp.ExecutionDetails.ExecutionTimeMs,
				Timestamp:       time.Now(),
			})
			o.cache.Put(req.ProjectID, req.Message, req.UserID, resp.Data)
			return resp, nil
		}

		failedStep := outcome.Steps[len(outcome.Steps)-1]
		lastFailure = pipelineErr(classifyStepErr(failedStep.StatusCode), errors.New(failedStep.Error))
		o.logger.Warn(ctx, "orchestrator: step failed", "requestId", requestID, "attempt", attempt, "endpoint", failedStep.Endpoint, "status", failedStep.StatusCode, "err", failedStep.Error)
		if attempt == maxPasses-1 {
			break
		}
		corrected, healed := o.heal(ctx, req.ProjectID, query, lastFailure, plan, outcome.Steps)
		if !healed {
			break
		}
		query = corrected
	}

	o.emit(ctx, sink, apitypes.ChatStreamUpdate{RequestID: requestID, Type: apitypes.UpdateError, Message: "unable to complete request", Progress: 100, Timestamp: time.Now()})
	return o.buildFailureResponse(requestID, lastFailure, planSteps, stepsExecuted, attempt, start), nil
}

// heal consults the healer's two independent LLM roles: the retry analyst
// decides whether a corrected query is worth another pass, and the
// metadata extractor proposes structural deltas applied regardless of
// that verdict's outcome (failures in either are logged and do not block a
// retry the analyst already granted).
func (o *Orchestrator) heal(ctx context.Context, projectID int, query string, failure error, plan *planner.ExecutionPlan, steps []executor.StepResult) (correctedQuery string, ok bool) {
	analysis, err := o.healer.AnalyzeRetry(ctx, query, failure, plan, steps)
	if err != nil {
		o.logger.Warn(ctx, "orchestrator: retry analysis failed", "err", err)
	}

	deltas, derr := o.healer.ProposeDeltas(ctx, query, failure, plan, steps)
	if derr != nil {
		o.logger.Warn(ctx, "orchestrator: metadata extraction failed", "err", derr)
	} else {
		o.healer.ApplyDeltas(ctx, projectID, deltas)
		o.repo.Invalidate(projectID)
	}

	if err != nil || !analysis.ShouldRetry {
		return "", false
	}
	return analysis.CorrectedQuery, true
}

func (o *Orchestrator) buildSuccessResponse(ctx context.Context, requestID string, outcome *executor.Outcome, plan *planner.ExecutionPlan, retryCount int, start time.Time) *apitypes.ChatResponse {
	last := outcome.Steps[len(outcome.Steps)-1]
	formatted, visual, err := o.formatter(ctx, last.Response, last.Endpoint)
	if err != nil {
		o.logger.Warn(ctx, "orchestrator: response formatting failed", "requestId", requestID, "err", err)
	}
	return &apitypes.ChatResponse{
		RequestID:         requestID,
		Success:           true,
		Message:           "request completed",
		Data:              last.Response,
		FormattedResponse: formatted,
		VisualResponse:    visual,
		ExecutionDetails: apitypes.ExecutionDetails{
			PlanSteps:         len(plan.Steps),
			StepsExecuted:     len(outcome.Steps),
			ExecutionTimeMs:   time.Since(start).Milliseconds(),
			RetryCount:        retryCount,
			EarlyTermination:  outcome.EarlyTermination,
			TerminationReason: outcome.TerminationReason,
		},
	}
}

func (o *Orchestrator) buildFailureResponse(requestID string, failure *PipelineError, planSteps, stepsExecuted, retryCount int, start time.Time) *apitypes.ChatResponse {
	var errText string
	if failure != nil {
		errText = failure.Error()
	}
	return &apitypes.ChatResponse{
		RequestID: requestID,
		Success:   false,
		Message:   "the request could not be completed",
		Error:     errText,
		ExecutionDetails: apitypes.ExecutionDetails{
			PlanSteps:       planSteps,
			StepsExecuted:   stepsExecuted,
			ExecutionTimeMs: time.Since(start).Milliseconds(),
			RetryCount:      retryCount,
		},
	}
}

func (o *Orchestrator) emit(ctx context.Context, sink stream.Sink, update apitypes.ChatStreamUpdate) {
	if sink == nil {
		return
	}
	if err := sink.Send(ctx, update); err != nil {
		o.logger.Warn(ctx, "orchestrator: stream send failed", "type", update.Type, "err", err)
	}
}

func (o *Orchestrator) progressUpdate(requestID string, t apitypes.StreamUpdateType, progress int, message string) apitypes.ChatStreamUpdate {
	return apitypes.ChatStreamUpdate{RequestID: requestID, Type: t, Message: message, Progress: progress, Timestamp: time.Now()}
}

func classifyPlanErr(err error) ErrorKind {
	var verr *planner.ValidationError
	if errors.As(err, &verr) {
		return KindPlanUnresolvable
	}
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return KindLLMTransient
	}
	return KindPlanInvalid
}

func classifyStepErr(statusCode int) ErrorKind {
	if statusCode == 0 || statusCode >= 500 {
		return KindExecutorServerError
	}
	return KindExecutorClientError
}

func credentialFromAuth(auth *apitypes.AuthBlob) executor.Credential {
	if auth == nil {
		return executor.Credential{}
	}
	switch auth.Kind {
	case apitypes.AuthBearer:
		return executor.Credential{Kind: executor.CredentialBearer, Token: auth.Token}
	case apitypes.AuthCookie:
		return executor.Credential{Kind: executor.CredentialCookie, CookieName: auth.Name, CookieVal: auth.Value}
	default:
		return executor.Credential{}
	}
}
