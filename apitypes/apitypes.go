// Package apitypes defines the transport-agnostic request/response types
// that cross the orchestrator's public boundary. Transport adapters (HTTP,
// WebSocket, CLI) marshal into and out of these types; nothing in this
// package depends on a transport.
package apitypes

import "time"

// AuthKind enumerates the supported credential shapes forwarded to the
// target API on the caller's behalf.
type AuthKind string

const (
	AuthBearer AuthKind = "bearer"
	AuthCookie AuthKind = "cookie"
	AuthNone   AuthKind = "none"
)

// AuthBlob is the opaque credential the caller supplies; the core never
// inspects its contents beyond rendering it into an outgoing header.
type AuthBlob struct {
	Kind  AuthKind `json:"kind"`
	Token string   `json:"token,omitempty"` // Kind == AuthBearer
	Name  string   `json:"name,omitempty"`  // Kind == AuthCookie
	Value string   `json:"value,omitempty"` // Kind == AuthCookie
}

// ChatRequest is the public entry payload for a single orchestration run.
// RequestID correlates this run's logs and stream updates across process
// boundaries; callers may supply one (e.g. forwarded from an upstream
// transport) or leave it blank and have the orchestrator generate one.
type ChatRequest struct {
	ProjectID int       `json:"projectId"`
	Message   string    `json:"message"`
	UserID    string    `json:"userId,omitempty"`
	Auth      *AuthBlob `json:"auth,omitempty"`
	RequestID string    `json:"requestId,omitempty"`
}

// ExecutionDetails reports how the plan actually ran.
type ExecutionDetails struct {
	PlanSteps         int    `json:"planSteps"`
	StepsExecuted     int    `json:"stepsExecuted"`
	ExecutionTimeMs   int64  `json:"executionTimeMs"`
	RetryCount        int    `json:"retryCount"`
	EarlyTermination  bool   `json:"earlyTermination"`
	TerminationReason string `json:"terminationReason,omitempty"`
}

// ChatResponse is the terminal, blocking result of Process.
type ChatResponse struct {
	RequestID         string           `json:"requestId"`
	Success           bool             `json:"success"`
	Message           string           `json:"message"`
	Data              any              `json:"data,omitempty"`
	FormattedResponse string           `json:"formattedResponse,omitempty"`
	VisualResponse    any              `json:"visualResponse,omitempty"`
	ExecutionDetails  ExecutionDetails `json:"executionDetails"`
	Error             string           `json:"error,omitempty"`
}

// StreamUpdateType enumerates the progress-update labels ProcessStream emits.
type StreamUpdateType string

const (
	UpdatePlanning       StreamUpdateType = "planning"
	UpdateExecuting      StreamUpdateType = "executing"
	UpdateStepCompleted  StreamUpdateType = "step_completed"
	UpdateFormatting     StreamUpdateType = "formatting"
	UpdateCompleted      StreamUpdateType = "completed"
	UpdateError          StreamUpdateType = "error"
)

// ChatStreamUpdate is a single progressive update emitted during ProcessStream.
type ChatStreamUpdate struct {
	RequestID       string           `json:"requestId"`
	Type            StreamUpdateType `json:"type"`
	Step            int              `json:"step,omitempty"`
	TotalSteps      int              `json:"totalSteps,omitempty"`
	Message         string           `json:"message"`
	Progress        int              `json:"progress,omitempty"`
	Data            any              `json:"data,omitempty"`
	ExecutionTimeMs int64            `json:"executionTimeMs,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
}
