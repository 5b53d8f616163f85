// Package llmgateway implements the LLM Gateway (C3): a single abstraction
// over chat-completion, JSON-mode, and embedding calls, pluggable behind one
// interface so every other component (and its tests) can substitute a
// deterministic fake.
package llmgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNoJSON is returned by ExtractBalancedJSON when no balanced `{...}`
// region can be found in the text.
var ErrNoJSON = errors.New("llmgateway: no balanced JSON object found in response")

// Client is the provider-agnostic LLM abstraction every component depends
// on. Implementations retry once on a transient provider error; callers
// still must handle a final failure (degrade gracefully per component).
type Client interface {
	// Chat sends a single system/user prompt pair and returns the model's
	// text reply.
	Chat(ctx context.Context, systemPrompt, userPrompt string, temperature float64, maxTokens int) (string, error)

	// JSON behaves like Chat but extracts the largest top-level balanced
	// `{...}` region from the reply and decodes it into out.
	JSON(ctx context.Context, systemPrompt, userPrompt string, temperature float64, out any) error

	// Embed returns a fixed-dimension embedding vector for text.
	Embed(ctx context.Context, text string) ([]float64, error)
}

// ExtractBalancedJSON scans text for top-level balanced `{...}` regions,
// tracking nesting and skipping over braces inside string literals, and
// returns the largest one (the first of equal-length regions). This
// is the one place the gateway tolerates a provider wrapping its JSON
// reply in prose ("Here is the plan:\n{...}").
func ExtractBalancedJSON(text string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	bestStart, bestEnd := -1, -1

	for i, r := range text {
		if inString {
			switch {
			case escaped:
				escaped = false
			case r == '\\':
				escaped = true
			case r == '"':
				inString = false
			}
			continue
		}
		switch r {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && start >= 0 && i+1-start > bestEnd-bestStart {
					bestStart, bestEnd = start, i+1
				}
			}
		}
	}
	if bestStart < 0 {
		return "", ErrNoJSON
	}
	return text[bestStart:bestEnd], nil
}

// decodeJSON extracts the balanced JSON region from raw and unmarshals it
// into out.
func decodeJSON(raw string, out any) error {
	region, err := ExtractBalancedJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(region), out); err != nil {
		return fmt.Errorf("llmgateway: decode JSON reply: %w", err)
	}
	return nil
}
