package planner_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/nl2api/metadata"
	"goa.design/nl2api/metadata/memstore"
	"goa.design/nl2api/planner"
	"goa.design/nl2api/resolver"
)

type fakeLLM struct {
	jsonReply string
	jsonErr   error
}

func (f *fakeLLM) Chat(context.Context, string, string, float64, int) (string, error) {
	return "", errors.New("unused")
}

func (f *fakeLLM) JSON(_ context.Context, _, _ string, _ float64, out any) error {
	if f.jsonErr != nil {
		return f.jsonErr
	}
	return json.Unmarshal([]byte(f.jsonReply), out)
}

func (f *fakeLLM) Embed(context.Context, string) ([]float64, error) {
	return nil, errors.New("unused")
}

func newTestRepo(t *testing.T) (*metadata.Repository, int) {
	t.Helper()
	store := memstore.New()
	repo := metadata.NewRepository(store)
	ctx := context.Background()

	require.NoError(t, store.SaveEndpoint(ctx, &metadata.Endpoint{ID: 1, ProjectID: 1, Method: metadata.MethodGet, Path: "/users/{id}", Summary: "Get a user"}))
	require.NoError(t, store.UpsertParameter(ctx, &metadata.RequestParameter{ID: 1, EndpointID: 1, Name: "id", In: metadata.InPath, Required: true}))
	return repo, 1
}

func TestPlanReturnsValidatedPlan(t *testing.T) {
	repo, projectID := newTestRepo(t)
	res := resolver.New(&fakeLLM{jsonErr: errors.New("no embed")})
	llm := &fakeLLM{jsonReply: `{"steps": [{"endpoint": "GET /users/{id}", "params": {"id": "42"}}]}`}
	p := planner.New(repo, res, llm)

	plan, err := p.Plan(context.Background(), projectID, "get user 42", nil)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "GET /users/{id}", plan.Steps[0].Endpoint)
}

func TestPlanRejectsUnknownEndpoint(t *testing.T) {
	repo, projectID := newTestRepo(t)
	res := resolver.New(&fakeLLM{jsonErr: errors.New("no embed")})
	llm := &fakeLLM{jsonReply: `{"steps": [{"endpoint": "GET /not-real", "params": {}}]}`}
	p := planner.New(repo, res, llm)

	_, err := p.Plan(context.Background(), projectID, "do something weird", nil)
	assert.Error(t, err)
}

func TestPlanRejectsMissingRequiredParameter(t *testing.T) {
	repo, projectID := newTestRepo(t)
	res := resolver.New(&fakeLLM{jsonErr: errors.New("no embed")})
	llm := &fakeLLM{jsonReply: `{"steps": [{"endpoint": "GET /users/{id}", "params": {}}]}`}
	p := planner.New(repo, res, llm)

	_, err := p.Plan(context.Background(), projectID, "get a user", nil)
	assert.Error(t, err)
}

func TestPlanRejectsForwardReference(t *testing.T) {
	repo, projectID := newTestRepo(t)
	res := resolver.New(&fakeLLM{jsonErr: errors.New("no embed")})
	llm := &fakeLLM{jsonReply: `{"steps": [{"endpoint": "GET /users/{id}", "params": {"id": "$.steps[0].response.id"}}]}`}
	p := planner.New(repo, res, llm)

	_, err := p.Plan(context.Background(), projectID, "get a user", nil)
	assert.Error(t, err)
}

func TestPlanFallsBackToZeroRequiredParamGETWhenStepsEmpty(t *testing.T) {
	store := memstore.New()
	repo := metadata.NewRepository(store)
	ctx := context.Background()
	require.NoError(t, store.SaveEndpoint(ctx, &metadata.Endpoint{ID: 2, ProjectID: 2, Method: metadata.MethodGet, Path: "/health"}))
	require.NoError(t, store.SaveEndpoint(ctx, &metadata.Endpoint{ID: 3, ProjectID: 2, Method: metadata.MethodPost, Path: "/users"}))

	res := resolver.New(&fakeLLM{jsonErr: errors.New("no embed")})
	llm := &fakeLLM{jsonReply: `{"steps": []}`}
	p := planner.New(repo, res, llm)

	plan, err := p.Plan(context.Background(), 2, "anything", nil)
	require.NoError(t, err)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, "GET /health", plan.Steps[0].Endpoint)
}

// An empty endpoint catalog makes planning fail cleanly, never panic.
func TestEmptyCatalogFailsCleanly(t *testing.T) {
	store := memstore.New()
	repo := metadata.NewRepository(store)
	res := resolver.New(&fakeLLM{jsonErr: errors.New("no embed")})
	llm := &fakeLLM{jsonReply: `{"steps": []}`}
	p := planner.New(repo, res, llm)

	assert.NotPanics(t, func() {
		_, err := p.Plan(context.Background(), 99, "do anything", nil)
		assert.Error(t, err)
	})
}

// For a single-endpoint, single-required-param catalog, a planner reply
// that supplies the required parameter always yields a plan with >=1 step
// referencing a resolvable endpoint+parameter; a reply that omits it
// always raises an error instead of a malformed plan.
func TestPlanShape(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("required parameter present yields a valid, resolvable plan", prop.ForAll(
		func(value string) bool {
			store := memstore.New()
			repo := metadata.NewRepository(store)
			ctx := context.Background()
			_ = store.SaveEndpoint(ctx, &metadata.Endpoint{ID: 1, ProjectID: 1, Method: metadata.MethodGet, Path: "/items/{id}"})
			_ = store.UpsertParameter(ctx, &metadata.RequestParameter{EndpointID: 1, Name: "id", In: metadata.InPath, Required: true})

			res := resolver.New(&fakeLLM{jsonErr: errors.New("no embed")})
			reply := fmt.Sprintf(`{"steps": [{"endpoint": "GET /items/{id}", "params": {"id": %q}}]}`, value)
			p := planner.New(repo, res, &fakeLLM{jsonReply: reply})

			plan, err := p.Plan(ctx, 1, "get item "+value, nil)
			if err != nil {
				return false
			}
			return len(plan.Steps) >= 1 && plan.Steps[0].Endpoint == "GET /items/{id}" && plan.Steps[0].Params["id"] == value
		},
		gen.AlphaString(),
	))

	properties.Property("missing required parameter always errors, never produces a malformed plan", prop.ForAll(
		func(unused string) bool {
			store := memstore.New()
			repo := metadata.NewRepository(store)
			ctx := context.Background()
			_ = store.SaveEndpoint(ctx, &metadata.Endpoint{ID: 1, ProjectID: 1, Method: metadata.MethodGet, Path: "/items/{id}"})
			_ = store.UpsertParameter(ctx, &metadata.RequestParameter{EndpointID: 1, Name: "id", In: metadata.InPath, Required: true})

			res := resolver.New(&fakeLLM{jsonErr: errors.New("no embed")})
			p := planner.New(repo, res, &fakeLLM{jsonReply: `{"steps": [{"endpoint": "GET /items/{id}", "params": {}}]}`})

			_, err := p.Plan(ctx, 1, "get item "+unused, nil)
			return err != nil
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// A two-step plan whose second step references $.steps[0] is accepted;
// one that references $.steps[1] (itself, not yet run) is always rejected.
func TestNoForwardReference(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	newRepo := func() (*metadata.Repository, int) {
		store := memstore.New()
		repo := metadata.NewRepository(store)
		ctx := context.Background()
		_ = store.SaveEndpoint(ctx, &metadata.Endpoint{ID: 1, ProjectID: 1, Method: metadata.MethodGet, Path: "/a/{id}"})
		_ = store.UpsertParameter(ctx, &metadata.RequestParameter{EndpointID: 1, Name: "id", In: metadata.InPath, Required: true})
		_ = store.SaveEndpoint(ctx, &metadata.Endpoint{ID: 2, ProjectID: 1, Method: metadata.MethodGet, Path: "/b/{ref}"})
		_ = store.UpsertParameter(ctx, &metadata.RequestParameter{EndpointID: 2, Name: "ref", In: metadata.InPath, Required: true})
		return repo, 1
	}

	properties.Property("referencing an already-executed step validates", prop.ForAll(
		func(literal string) bool {
			repo, projectID := newRepo()
			res := resolver.New(&fakeLLM{jsonErr: errors.New("no embed")})
			reply := fmt.Sprintf(`{"steps": [{"endpoint": "GET /a/{id}", "params": {"id": %q}}, {"endpoint": "GET /b/{ref}", "params": {"ref": "$.steps[0].response.id"}}]}`, literal)
			p := planner.New(repo, res, &fakeLLM{jsonReply: reply})

			_, err := p.Plan(context.Background(), projectID, "chain a to b", nil)
			return err == nil
		},
		gen.AlphaString(),
	))

	properties.Property("referencing a step that has not run yet always rejects", prop.ForAll(
		func(literal string) bool {
			repo, projectID := newRepo()
			res := resolver.New(&fakeLLM{jsonErr: errors.New("no embed")})
			reply := fmt.Sprintf(`{"steps": [{"endpoint": "GET /a/{id}", "params": {"id": %q}}, {"endpoint": "GET /b/{ref}", "params": {"ref": "$.steps[1].response.id"}}]}`, literal)
			p := planner.New(repo, res, &fakeLLM{jsonReply: reply})

			_, err := p.Plan(context.Background(), projectID, "chain a to b", nil)
			return err != nil
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

// A plan that validates still validates identically after a JSON
// round-trip (marshal then unmarshal back into the planner reply shape).
func TestValidatorIdempotentAcrossJSONRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	properties.Property("round-tripping a valid plan through JSON validates identically", prop.ForAll(
		func(value string) bool {
			store := memstore.New()
			repo := metadata.NewRepository(store)
			ctx := context.Background()
			_ = store.SaveEndpoint(ctx, &metadata.Endpoint{ID: 1, ProjectID: 1, Method: metadata.MethodGet, Path: "/items/{id}"})
			_ = store.UpsertParameter(ctx, &metadata.RequestParameter{EndpointID: 1, Name: "id", In: metadata.InPath, Required: true})

			plan := &planner.ExecutionPlan{Steps: []planner.Step{
				{Endpoint: "GET /items/{id}", Params: map[string]any{"id": value}},
			}}
			firstReply, err := json.Marshal(plan)
			if err != nil {
				return false
			}

			var roundTripped planner.ExecutionPlan
			if err := json.Unmarshal(firstReply, &roundTripped); err != nil {
				return false
			}
			secondReply, err := json.Marshal(&roundTripped)
			if err != nil {
				return false
			}

			res := resolver.New(&fakeLLM{jsonErr: errors.New("no embed")})
			p1 := planner.New(repo, res, &fakeLLM{jsonReply: string(firstReply)})
			_, err1 := p1.Plan(ctx, 1, "get item", nil)

			p2 := planner.New(repo, res, &fakeLLM{jsonReply: string(secondReply)})
			_, err2 := p2.Plan(ctx, 1, "get item", nil)

			return (err1 == nil) == (err2 == nil)
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
