// Package judge implements the Termination Judge (C7): after a non-final
// plan step, asks the LLM gateway whether the accumulated response already
// satisfies the user's original query, allowing the executor to cut plan
// execution short.
package judge

import (
	"context"
	"fmt"
	"strings"

	"goa.design/nl2api/llmgateway"
	"goa.design/nl2api/telemetry"
)

const temperature = 0.0

const systemPrompt = "You judge whether an API response already satisfies a user's request. " +
	"Reply with a single word: YES or NO."

// Judge asks a single yes/no question per non-final step. A gateway
// failure is never fatal: Check reports "not satisfied" and logs a
// warning, matching the "ask the model, fall back gracefully" idiom used
// elsewhere in this pipeline when semantic signals are unavailable.
type Judge struct {
	llm    llmgateway.Client
	logger telemetry.Logger
}

// Option configures a Judge.
type Option func(*Judge)

// WithLogger configures the judge's logger.
func WithLogger(l telemetry.Logger) Option {
	return func(j *Judge) { j.logger = l }
}

// New builds a Judge backed by llm.
func New(llm llmgateway.Client, opts ...Option) *Judge {
	j := &Judge{llm: llm, logger: telemetry.NewNoopLogger()}
	for _, o := range opts {
		if o != nil {
			o(j)
		}
	}
	return j
}

// Check asks whether stepResponse, produced by endpointLabel at
// stepIndex (0-based) of totalSteps, already satisfies userQuery. It
// returns (true, reason) on an affirmative reply, else (false, "");
// a gateway error degrades to (false, "") rather than propagating.
func (j *Judge) Check(ctx context.Context, userQuery, endpointLabel string, stepIndex, totalSteps int, stepResponse any) (bool, string) {
	user := fmt.Sprintf(
		"User query: %s\nStep %d of %d (%s) returned:\n%v\n\nDoes this already fully satisfy the user's query? Reply YES or NO only.",
		userQuery, stepIndex+1, totalSteps, endpointLabel, stepResponse,
	)
	reply, err := j.llm.Chat(ctx, systemPrompt, user, temperature, 8)
	if err != nil {
		j.logger.Warn(ctx, "termination judge call failed, continuing execution", "endpoint", endpointLabel, "step", stepIndex, "err", err)
		return false, ""
	}
	if isYes(reply) {
		return true, fmt.Sprintf("step %d (%s) already satisfies the query", stepIndex+1, endpointLabel)
	}
	return false, ""
}

func isYes(reply string) bool {
	return strings.HasPrefix(strings.ToUpper(strings.TrimSpace(reply)), "YES")
}
