package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/nl2api/apitypes"
	"goa.design/nl2api/contextcache"
	"goa.design/nl2api/executor"
	"goa.design/nl2api/healer"
	"goa.design/nl2api/judge"
	"goa.design/nl2api/metadata"
	"goa.design/nl2api/metadata/memstore"
	"goa.design/nl2api/orchestrator"
	"goa.design/nl2api/planner"
	"goa.design/nl2api/resolver"
)

// fakeLLM implements llmgateway.Client and routes each JSON call to the
// right canned reply by inspecting which system prompt invoked it
// (planner, retry analyst, or metadata extractor all share the interface).
type fakeLLM struct {
	mu          sync.Mutex
	planReplies []string
	planErr     error
	healReply   string
	deltaReply  string
	chatReply   string
	chatErr     error
}

func (f *fakeLLM) Chat(context.Context, string, string, float64, int) (string, error) {
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.chatReply, nil
}

func (f *fakeLLM) JSON(_ context.Context, systemPrompt, _ string, _ float64, out any) error {
	switch {
	case strings.Contains(systemPrompt, "retry analyst") || strings.HasPrefix(systemPrompt, "You analyze a failed API-orchestration"):
		if f.healReply == "" {
			return errors.New("fakeLLM: no heal reply configured")
		}
		return json.Unmarshal([]byte(f.healReply), out)
	case strings.HasPrefix(systemPrompt, "You analyze a failed API call"):
		reply := f.deltaReply
		if reply == "" {
			reply = `{"missingParameters":[],"parameterCorrections":[],"errorMessages":[]}`
		}
		return json.Unmarshal([]byte(reply), out)
	default:
		if f.planErr != nil {
			return f.planErr
		}
		f.mu.Lock()
		if len(f.planReplies) == 0 {
			f.mu.Unlock()
			return errors.New("fakeLLM: no more plan replies queued")
		}
		reply := f.planReplies[0]
		f.planReplies = f.planReplies[1:]
		f.mu.Unlock()
		return json.Unmarshal([]byte(reply), out)
	}
}

func (f *fakeLLM) Embed(context.Context, string) ([]float64, error) {
	return nil, nil
}

func addEndpoint(t *testing.T, store *memstore.Store, id, projectID int, method metadata.HTTPMethod, path string, params ...metadata.RequestParameter) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.SaveEndpoint(ctx, &metadata.Endpoint{ID: id, ProjectID: projectID, Method: method, Path: path}))
	for _, p := range params {
		p.EndpointID = id
		require.NoError(t, store.UpsertParameter(ctx, &p))
	}
}

// Scenario 1: single GET step with a literal parameter completes on the
// first pass with no retries.
func TestProcessSingleStepLiteralParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users/5", r.URL.Path)
		_, _ = w.Write([]byte(`{"id": 5, "name": "ada"}`))
	}))
	defer srv.Close()

	store := memstore.New()
	repo := metadata.NewRepository(store)
	ctx := context.Background()
	require.NoError(t, store.SaveProject(ctx, &metadata.Project{ID: 1, Name: "Test", BaseURL: srv.URL}))
	addEndpoint(t, store, 1, 1, metadata.MethodGet, "/users/{id}",
		metadata.RequestParameter{Name: "id", In: metadata.InPath, Required: true})

	llm := &fakeLLM{planReplies: []string{
		`{"steps":[{"endpoint":"GET /users/{id}","params":{"id":"5"}}]}`,
	}}
	res := resolver.New(llm)
	pl := planner.New(repo, res, llm)
	ex := executor.New(repo)
	he := healer.New(llm, repo)
	o := orchestrator.New(repo, contextcache.New(), pl, ex, he)

	resp, err := o.Process(ctx, &apitypes.ChatRequest{ProjectID: 1, Message: "get user 5"})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Equal(t, 0, resp.ExecutionDetails.RetryCount)
	assert.Equal(t, 1, resp.ExecutionDetails.StepsExecuted)
}

// Scenario 2: a two-step plan where the second step's parameter
// cross-references the first step's response.
func TestProcessTwoStepCrossStepReference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/owners/1":
			_, _ = w.Write([]byte(`{"petId": 77}`))
		case "/pets/77":
			_, _ = w.Write([]byte(`{"name": "rex"}`))
		}
	}))
	defer srv.Close()

	store := memstore.New()
	repo := metadata.NewRepository(store)
	ctx := context.Background()
	require.NoError(t, store.SaveProject(ctx, &metadata.Project{ID: 1, Name: "Test", BaseURL: srv.URL}))
	addEndpoint(t, store, 1, 1, metadata.MethodGet, "/owners/{id}",
		metadata.RequestParameter{Name: "id", In: metadata.InPath, Required: true})
	addEndpoint(t, store, 2, 1, metadata.MethodGet, "/pets/{petId}",
		metadata.RequestParameter{Name: "petId", In: metadata.InPath, Required: true})

	llm := &fakeLLM{planReplies: []string{
		`{"steps":[
			{"endpoint":"GET /owners/{id}","params":{"id":"1"}},
			{"endpoint":"GET /pets/{petId}","params":{"petId":"$.steps[0].response.petId"}}
		]}`,
	}}
	res := resolver.New(llm)
	pl := planner.New(repo, res, llm)
	ex := executor.New(repo)
	he := healer.New(llm, repo)
	o := orchestrator.New(repo, contextcache.New(), pl, ex, he)

	resp, err := o.Process(ctx, &apitypes.ChatRequest{ProjectID: 1, Message: "find my owner's pet"})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Equal(t, 2, resp.ExecutionDetails.StepsExecuted)
}

// Scenario 3: the termination judge reports the first step already
// satisfies the query, cutting the second step.
func TestProcessEarlyTerminationViaJudge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	store := memstore.New()
	repo := metadata.NewRepository(store)
	ctx := context.Background()
	require.NoError(t, store.SaveProject(ctx, &metadata.Project{ID: 1, Name: "Test", BaseURL: srv.URL}))
	addEndpoint(t, store, 1, 1, metadata.MethodGet, "/first")
	addEndpoint(t, store, 2, 1, metadata.MethodGet, "/second")

	llm := &fakeLLM{
		planReplies: []string{`{"steps":[{"endpoint":"GET /first","params":{}},{"endpoint":"GET /second","params":{}}]}`},
		chatReply:   "YES",
	}
	res := resolver.New(llm)
	pl := planner.New(repo, res, llm)
	ex := executor.New(repo, executor.WithTerminationJudge(judge.New(llm)))
	he := healer.New(llm, repo)
	o := orchestrator.New(repo, contextcache.New(), pl, ex, he)

	resp, err := o.Process(ctx, &apitypes.ChatRequest{ProjectID: 1, Message: "anything"})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.True(t, resp.ExecutionDetails.EarlyTermination)
	assert.Equal(t, 1, resp.ExecutionDetails.StepsExecuted)
}

// Scenario 4: the first plan omits a required parameter; the healer
// proposes a corrected query and the second pass succeeds.
func TestProcessHealsOnMissingRequiredParameter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	store := memstore.New()
	repo := metadata.NewRepository(store)
	ctx := context.Background()
	require.NoError(t, store.SaveProject(ctx, &metadata.Project{ID: 1, Name: "Test", BaseURL: srv.URL}))
	addEndpoint(t, store, 1, 1, metadata.MethodGet, "/pets/{id}",
		metadata.RequestParameter{Name: "id", In: metadata.InPath, Required: true})

	llm := &fakeLLM{
		planReplies: []string{
			`{"steps":[{"endpoint":"GET /pets/{id}","params":{}}]}`,
			`{"steps":[{"endpoint":"GET /pets/{id}","params":{"id":"5"}}]}`,
		},
		healReply: `{"shouldRetry": true, "correctedQuery": "get pet 5", "analysis": "missing id"}`,
	}
	res := resolver.New(llm)
	pl := planner.New(repo, res, llm)
	ex := executor.New(repo)
	he := healer.New(llm, repo)
	o := orchestrator.New(repo, contextcache.New(), pl, ex, he)

	resp, err := o.Process(ctx, &apitypes.ChatRequest{ProjectID: 1, Message: "get pet"})
	require.NoError(t, err)
	require.True(t, resp.Success)
	assert.Equal(t, 1, resp.ExecutionDetails.RetryCount)
}

// Scenario 5: every execution attempt fails with a 500 and the healer
// always grants a retry; the pipeline still terminates once the retry
// budget is exhausted, having run exactly budget+1 passes.
func TestProcessRetryBudgetExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := memstore.New()
	repo := metadata.NewRepository(store)
	ctx := context.Background()
	require.NoError(t, store.SaveProject(ctx, &metadata.Project{ID: 1, Name: "Test", BaseURL: srv.URL}))
	addEndpoint(t, store, 1, 1, metadata.MethodGet, "/pets/{id}",
		metadata.RequestParameter{Name: "id", In: metadata.InPath, Required: true})

	llm := &fakeLLM{
		planReplies: []string{
			`{"steps":[{"endpoint":"GET /pets/{id}","params":{"id":"1"}}]}`,
			`{"steps":[{"endpoint":"GET /pets/{id}","params":{"id":"1"}}]}`,
			`{"steps":[{"endpoint":"GET /pets/{id}","params":{"id":"1"}}]}`,
		},
		healReply: `{"shouldRetry": true, "correctedQuery": "get pet 1 again", "analysis": "server error, try again"}`,
	}
	res := resolver.New(llm)
	pl := planner.New(repo, res, llm)
	ex := executor.New(repo)
	he := healer.New(llm, repo)
	o := orchestrator.New(repo, contextcache.New(), pl, ex, he, orchestrator.WithRetryBudget(2))

	resp, err := o.Process(ctx, &apitypes.ChatRequest{ProjectID: 1, Message: "get pet 1"})
	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, 2, resp.ExecutionDetails.RetryCount)
	assert.NotEmpty(t, resp.Error)
}

// Scenario 6: a query sharing no keyword/intent overlap with any endpoint
// still yields a successful plan, because the resolver fails open to the
// full catalog rather than filtering everything out.
func TestProcessFailOpenResolverStillPlans(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	store := memstore.New()
	repo := metadata.NewRepository(store)
	ctx := context.Background()
	require.NoError(t, store.SaveProject(ctx, &metadata.Project{ID: 1, Name: "Test", BaseURL: srv.URL}))
	addEndpoint(t, store, 1, 1, metadata.MethodGet, "/widgets")
	addEndpoint(t, store, 2, 1, metadata.MethodGet, "/gadgets")

	llm := &fakeLLM{planReplies: []string{
		`{"steps":[{"endpoint":"GET /widgets","params":{}}]}`,
	}}
	res := resolver.New(llm)

	catalog, err := repo.ListEndpoints(ctx, 1)
	require.NoError(t, err)
	candidates, err := res.Resolve(ctx, "zzqx frobnicate unrelated gibberish", catalog)
	require.NoError(t, err)
	assert.Len(t, candidates, len(catalog))

	pl := planner.New(repo, res, llm)
	ex := executor.New(repo)
	he := healer.New(llm, repo)
	o := orchestrator.New(repo, contextcache.New(), pl, ex, he)

	resp, err := o.Process(ctx, &apitypes.ChatRequest{ProjectID: 1, Message: "zzqx frobnicate unrelated gibberish"})
	require.NoError(t, err)
	require.True(t, resp.Success)
}
