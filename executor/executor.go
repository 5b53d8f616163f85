package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"goa.design/nl2api/internal/retry"
	"goa.design/nl2api/jsonpath"
	"goa.design/nl2api/judge"
	"goa.design/nl2api/metadata"
	"goa.design/nl2api/planner"
	"goa.design/nl2api/telemetry"
)

const stepTimeout = 30 * time.Second

// Client is the subset of *http.Client the Executor depends on, so tests
// can substitute a fake transport.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// Executor runs a validated ExecutionPlan against a project's base URL.
type Executor struct {
	http     Client
	repo     *metadata.Repository
	judge    *judge.Judge // post-step termination check (C7); nil disables early termination
	logger   telemetry.Logger
	aliasMap map[string]string // operator-declared base-URL string -> path-prefix rewrites
}

// Option configures an Executor.
type Option func(*Executor)

// WithHTTPClient overrides the underlying HTTP client (default: one with a
// 30-second timeout).
func WithHTTPClient(c Client) Option {
	return func(e *Executor) { e.http = c }
}

// WithLogger configures the executor's logger.
func WithLogger(l telemetry.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithAliasMap declares operator-known base-URL string -> path-prefix
// rewrites (config.AliasMap).
func WithAliasMap(aliasMap map[string]string) Option {
	return func(e *Executor) { e.aliasMap = aliasMap }
}

// WithTerminationJudge wires the Judge (C7) used to ask, after each
// non-final step, whether the accumulated result already satisfies the
// user's query. Omitting this disables early termination.
func WithTerminationJudge(j *judge.Judge) Option {
	return func(e *Executor) { e.judge = j }
}

// New constructs an Executor backed by repo for endpoint/auth metadata.
func New(repo *metadata.Repository, opts ...Option) *Executor {
	e := &Executor{
		repo:   repo,
		http:   &http.Client{Timeout: stepTimeout},
		logger: telemetry.NewNoopLogger(),
	}
	for _, o := range opts {
		if o != nil {
			o(e)
		}
	}
	return e
}

// Run executes plan's steps in order against project's base URL,
// interpolating references, forwarding cred, and retrying transient HTTP
// failures. It stops at the first failing step, or earlier if the
// termination judge reports the query is already satisfied.
func (e *Executor) Run(ctx context.Context, projectID int, userQuery string, plan *planner.ExecutionPlan, cred Credential) (*Outcome, error) {
	project, err := e.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("executor: load project %d: %w", projectID, err)
	}

	out := &Outcome{Steps: make([]StepResult, 0, len(plan.Steps))}
	stepCtx := stepContext{}

	for i, step := range plan.Steps {
		ep, err := e.repo.FindByLabel(ctx, projectID, step.Endpoint)
		if err != nil {
			return nil, fmt.Errorf("executor: step %d: %w", i, err)
		}

		resolved, err := interpolate(step.Params, stepCtx)
		if err != nil {
			return nil, fmt.Errorf("executor: step %d: %w", i, err)
		}

		result := e.runStep(ctx, i, ep, project.BaseURL, resolved, cred)
		out.Steps = append(out.Steps, result)
		stepCtx.Steps = append(stepCtx.Steps, stepContextEntry{Response: result.Response, StatusCode: result.StatusCode})

		if !result.Success {
			out.Success = false
			return out, nil
		}

		if i < len(plan.Steps)-1 && e.judge != nil {
			satisfied, reason := e.judge.Check(ctx, userQuery, ep.Label(), i, len(plan.Steps), result.Response)
			out.Steps[len(out.Steps)-1].SatisfiesIntent = satisfied
			if satisfied {
				out.Success = true
				out.EarlyTermination = true
				out.TerminationReason = reason
				return out, nil
			}
		}
	}

	out.Success = true
	return out, nil
}

// runStep dispatches a single HTTP call with one retry on transient
// failure, and maps the outcome onto a StepResult.
func (e *Executor) runStep(ctx context.Context, index int, ep *metadata.Endpoint, baseURL string, params map[string]any, cred Credential) StepResult {
	start := time.Now()
	result := StepResult{Index: index, Endpoint: ep.Label()}

	method, fullURL, headers, body, err := buildRequest(baseURL, ep, params, e.aliasMap)
	if err != nil {
		result.Error = err.Error()
		result.DurationMs = time.Since(start).Milliseconds()
		return result
	}
	applyCredential(headers, cred)

	var statusCode int
	var respBody []byte

	err = retry.Do(ctx, retry.ExecutorConfig(), func(ctx context.Context, attempt int) error {
		req, reqErr := http.NewRequestWithContext(ctx, method, fullURL, bodyReader(body))
		if reqErr != nil {
			return reqErr
		}
		if len(body) > 0 {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		r, doErr := e.http.Do(req)
		if doErr != nil {
			e.logger.Warn(ctx, "executor http call failed", "endpoint", ep.Label(), "attempt", attempt, "err", doErr)
			return doErr
		}
		defer func() { _ = r.Body.Close() }()

		b, readErr := io.ReadAll(r.Body)
		if readErr != nil {
			return readErr
		}
		statusCode = r.StatusCode
		respBody = b

		if statusCode >= 500 {
			return &retry.HTTPStatusError{StatusCode: statusCode, Message: string(b)}
		}
		return nil
	})

	result.DurationMs = time.Since(start).Milliseconds()
	result.StatusCode = statusCode

	if err != nil {
		result.Error = resolveErrorMessage(ep, statusCode)
		if statusCode == 0 {
			result.Error = err.Error()
		}
		return result
	}
	if statusCode < 200 || statusCode >= 300 {
		result.Error = resolveErrorMessage(ep, statusCode)
		return result
	}

	var decoded any
	if len(respBody) > 0 {
		if jsonErr := json.Unmarshal(respBody, &decoded); jsonErr == nil {
			result.Response = decoded
		} else {
			result.Response = string(respBody)
		}
	}
	result.Success = true
	return result
}

// interpolate resolves every "$."-prefixed param value against stepCtx,
// leaving literal values untouched.
func interpolate(params map[string]any, stepCtx stepContext) (map[string]any, error) {
	out := make(map[string]any, len(params))
	var root any = stepCtx
	doc, err := toGenericDoc(root)
	if err != nil {
		return nil, fmt.Errorf("encode step context: %w", err)
	}
	for name, value := range params {
		s, ok := value.(string)
		if !ok || !jsonpath.IsReference(s) {
			out[name] = value
			continue
		}
		resolved, err := jsonpath.Resolve(s, doc)
		if err != nil {
			return nil, fmt.Errorf("resolve %q for parameter %q: %w", s, name, err)
		}
		out[name] = resolved
	}
	return out, nil
}

// toGenericDoc round-trips v through JSON so jsonpath.Resolve sees plain
// map[string]any/[]any values rather than typed structs.
func toGenericDoc(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}
