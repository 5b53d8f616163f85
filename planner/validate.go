package planner

import (
	"fmt"
	"regexp"
	"strconv"

	"goa.design/nl2api/metadata"
)

// stepRefPattern matches "$.steps[N]..." references and captures N.
var stepRefPattern = regexp.MustCompile(`^\$\.steps\[(\d+)\]`)

// ValidationError reports a semantic defect in a raw plan: an unknown
// endpoint, a missing required parameter, or a forward step reference.
type ValidationError struct {
	StepIndex int
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("plan step %d: %s", e.StepIndex, e.Reason)
}

// validateSemantics checks that every step's endpoint exists and every
// required parameter is present, and that every $.steps[i] reference
// points to an earlier step (i < stepIndex), against the endpoint catalog
// indexed by label.
func validateSemantics(plan *ExecutionPlan, byLabel map[string]*metadata.Endpoint) error {
	if len(plan.Steps) == 0 {
		return &ValidationError{Reason: "plan has no steps"}
	}
	for i, step := range plan.Steps {
		ep, ok := byLabel[step.Endpoint]
		if !ok {
			return &ValidationError{StepIndex: i, Reason: fmt.Sprintf("unknown endpoint %q", step.Endpoint)}
		}
		for _, p := range ep.Params {
			if !p.Required {
				continue
			}
			v, present := step.Params[p.Name]
			if !present {
				return &ValidationError{StepIndex: i, Reason: fmt.Sprintf("missing required parameter %q", p.Name)}
			}
			if ref, isRef := isReference(v); isRef {
				if err := checkForwardReference(i, ref); err != nil {
					return err
				}
			}
		}
		for _, v := range step.Params {
			if ref, isRef := isReference(v); isRef {
				if err := checkForwardReference(i, ref); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checkForwardReference(stepIndex int, ref string) error {
	m := stepRefPattern.FindStringSubmatch(ref)
	if m == nil {
		return &ValidationError{StepIndex: stepIndex, Reason: fmt.Sprintf("malformed reference %q", ref)}
	}
	referenced, err := strconv.Atoi(m[1])
	if err != nil {
		return &ValidationError{StepIndex: stepIndex, Reason: fmt.Sprintf("malformed reference %q", ref)}
	}
	if referenced >= stepIndex {
		return &ValidationError{StepIndex: stepIndex, Reason: fmt.Sprintf("reference %q points to a step that has not run yet", ref)}
	}
	return nil
}

func endpointsByLabel(catalog []*metadata.Endpoint) map[string]*metadata.Endpoint {
	out := make(map[string]*metadata.Endpoint, len(catalog))
	for _, ep := range catalog {
		out[ep.Label()] = ep
	}
	return out
}
