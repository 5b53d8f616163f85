package orchestrator

import (
	"context"
	"encoding/json"
)

// Formatter turns the raw data from the last executed step into the
// user-facing formatted text and an optional structured visual payload.
// lastEndpoint is the label ("METHOD /path") of the step that produced
// data.
type Formatter func(ctx context.Context, data any, lastEndpoint string) (formatted string, visual any, err error)

// defaultFormatter renders data as indented JSON and leaves the visual
// response unset. No library in the retrieval pack renders structured API
// responses into prose or charts; that concern is deliberately left as a
// caller-supplied Formatter rather than invented here.
func defaultFormatter(_ context.Context, data any, _ string) (string, any, error) {
	if data == nil {
		return "", nil, nil
	}
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", nil, err
	}
	return string(b), nil, nil
}
