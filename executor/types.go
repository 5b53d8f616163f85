// Package executor implements the Executor (C6): runs a validated
// execution plan step by step, interpolating inter-step references,
// dispatching HTTP calls with auth forwarding and retry/backoff, and
// mapping failures to user-facing messages via the metadata repository.
package executor

import "goa.design/nl2api/metadata"

// CredentialKind distinguishes how Credential should be rendered into
// outgoing request headers.
type CredentialKind string

const (
	CredentialNone   CredentialKind = ""
	CredentialBearer CredentialKind = "bearer"
	CredentialCookie CredentialKind = "cookie"
)

// Credential is the caller-supplied auth blob forwarded to every step's
// HTTP call. The zero value attaches no auth.
type Credential struct {
	Kind       CredentialKind
	Token      string // CredentialBearer
	CookieName string // CredentialCookie
	CookieVal  string // CredentialCookie
}

// StepResult records the outcome of a single plan step.
type StepResult struct {
	Index           int
	Endpoint        string
	Success         bool
	StatusCode      int
	Response        any
	Error           string
	DurationMs      int64
	SatisfiesIntent bool
}

// Outcome is the result of running a full plan: the per-step results, a
// coarse success flag, and early-termination bookkeeping.
type Outcome struct {
	Steps             []StepResult
	Success           bool
	EarlyTermination  bool
	TerminationReason string
}

// stepContext is the in-memory "{ steps: [...] }" document interpolation
// is resolved against; it grows by one entry per completed step.
type stepContext struct {
	Steps []stepContextEntry `json:"steps"`
}

type stepContextEntry struct {
	Response   any `json:"response"`
	StatusCode int `json:"statusCode"`
}

// genericErrorMessages is the fixed fallback mapping used when the failing
// endpoint has no metadata.ResponseMessage for the status code. There is no
// project-wide message tier between the two.
var genericErrorMessages = map[int]string{
	400: "The request was malformed or missing required information.",
	401: "Authentication is required or has expired.",
	403: "You don't have permission to perform this action.",
	404: "The requested resource could not be found.",
	422: "The request could not be processed as submitted.",
	429: "Too many requests — please slow down and try again shortly.",
	500: "The service encountered an internal error.",
	502: "The service is temporarily unreachable.",
	503: "The service is temporarily unavailable.",
}

// resolveErrorMessage picks the most specific user-facing message for a
// failing endpoint+status: endpoint-specific message, else a fixed generic
// mapping, else a generic fallback. ResponseMessage is always
// endpoint-scoped in this catalog; callers may extend genericErrorMessages
// to cover status codes shared across many endpoints.
func resolveErrorMessage(ep *metadata.Endpoint, statusCode int) string {
	for _, m := range ep.Messages {
		if m.StatusCode == statusCode {
			return m.Message
		}
	}
	if msg, ok := genericErrorMessages[statusCode]; ok {
		return msg
	}
	return "The request failed."
}
