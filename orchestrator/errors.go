package orchestrator

import "fmt"

// ErrorKind classifies a pipeline failure for logging, metrics, and the
// decision of whether the healer (C8) gets a shot at it.
type ErrorKind string

const (
	// KindLLMTransient is a gateway-level failure (timeout, rate limit)
	// that a component already retried once internally before giving up.
	KindLLMTransient ErrorKind = "llm_transient"
	// KindPlanInvalid is any other planning failure: a reply that did not
	// decode or failed the plan schema check, an empty catalog, or a reply
	// with no steps and no endpoint to fall back to. The planner falls back
	// to a single-step plan only for a reply with no steps; a reply that
	// fails to decode gets no fallback.
	KindPlanInvalid ErrorKind = "plan_invalid"
	// KindPlanUnresolvable is a structurally valid plan that references an
	// unknown endpoint, is missing a required parameter, or references a
	// step that has not run yet.
	KindPlanUnresolvable ErrorKind = "plan_unresolvable"
	// KindExecutorServerError is a step that failed after retry against a
	// 5xx, reset, or timeout.
	KindExecutorServerError ErrorKind = "executor_server_error"
	// KindExecutorClientError is a step that failed against a 4xx with no
	// local retry.
	KindExecutorClientError ErrorKind = "executor_client_error"
	// KindJSONPathMiss is a step whose parameter interpolation could not
	// resolve against a prior step's response.
	KindJSONPathMiss ErrorKind = "jsonpath_miss"
	// KindCancellation is a caller-driven context cancellation; never
	// eligible for healing.
	KindCancellation ErrorKind = "cancellation"
)

// PipelineError wraps a failure observed at any stage of a pipeline pass
// with the classification used to decide whether the healer gets a shot at
// it, and what the terminal user-facing message should read.
type PipelineError struct {
	Kind ErrorKind
	Err  error
}

func (e *PipelineError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

func pipelineErr(kind ErrorKind, err error) *PipelineError {
	return &PipelineError{Kind: kind, Err: err}
}
