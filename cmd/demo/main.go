// Command demo wires the full orchestration pipeline (C1-C9) against a
// tiny in-memory, single-endpoint catalog and runs one chat request
// end-to-end, printing the terminal response.
package main

import (
	"context"
	"fmt"
	"log"

	"goa.design/nl2api/apitypes"
	"goa.design/nl2api/config"
	"goa.design/nl2api/contextcache"
	"goa.design/nl2api/executor"
	"goa.design/nl2api/healer"
	"goa.design/nl2api/judge"
	"goa.design/nl2api/llmgateway"
	"goa.design/nl2api/metadata"
	"goa.design/nl2api/metadata/memstore"
	"goa.design/nl2api/orchestrator"
	"goa.design/nl2api/planner"
	"goa.design/nl2api/resolver"
	"goa.design/nl2api/telemetry"
)

const demoProjectID = 1

func main() {
	ctx := context.Background()

	cfg, err := config.New("", config.WithLLMProvider(config.ProviderAnthropic))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store := memstore.New()
	if err := seedCatalog(ctx, store); err != nil {
		log.Fatalf("seed catalog: %v", err)
	}
	repo := metadata.NewRepository(store)

	llm := llmgateway.NewRateLimitedClient(
		llmgateway.NewAnthropicClientFromAPIKey(cfg.LLMAPIKey, cfg.LLMModel, 1024),
		cfg.LLMConcurrency,
	)

	logger := telemetry.NewClueLogger()
	res := resolver.New(llm)
	pl := planner.New(repo, res, llm)
	ex := executor.New(repo,
		executor.WithAliasMap(cfg.AliasMap),
		executor.WithTerminationJudge(judge.New(llm)),
		executor.WithLogger(logger),
	)
	he := healer.New(llm, repo, healer.WithLogger(logger))
	orch := orchestrator.New(repo, contextcache.New(), pl, ex, he,
		orchestrator.WithRetryBudget(cfg.RetryBudget),
		orchestrator.WithLogger(logger),
	)

	resp, err := orch.Process(ctx, &apitypes.ChatRequest{
		ProjectID: demoProjectID,
		Message:   "what's the weather in Boston?",
	})
	if err != nil {
		log.Fatalf("process: %v", err)
	}

	fmt.Printf("request: %s\n", resp.RequestID)
	fmt.Printf("success: %t\n", resp.Success)
	fmt.Printf("message: %s\n", resp.Message)
	if resp.Success {
		fmt.Printf("data: %v\n", resp.Data)
	} else {
		fmt.Printf("error: %s\n", resp.Error)
	}
	fmt.Printf("steps executed: %d (plan had %d), retries: %d, took %dms\n",
		resp.ExecutionDetails.StepsExecuted, resp.ExecutionDetails.PlanSteps,
		resp.ExecutionDetails.RetryCount, resp.ExecutionDetails.ExecutionTimeMs)
}

// seedCatalog registers a single demo project and endpoint so the pipeline
// has something to plan against without a live ingestion source.
func seedCatalog(ctx context.Context, store *memstore.Store) error {
	if err := store.SaveProject(ctx, &metadata.Project{
		ID:      demoProjectID,
		Name:    "Weather Demo",
		BaseURL: "https://api.weather.example.com",
	}); err != nil {
		return err
	}
	if err := store.SaveEndpoint(ctx, &metadata.Endpoint{
		ID:        1,
		ProjectID: demoProjectID,
		Method:    metadata.MethodGet,
		Path:      "/v1/current",
		Summary:   "Current weather conditions for a named city",
		Keywords:  []string{"weather", "forecast", "temperature"},
	}); err != nil {
		return err
	}
	return store.UpsertParameter(ctx, &metadata.RequestParameter{
		EndpointID: 1,
		Name:       "city",
		In:         metadata.InQuery,
		Type:       "string",
		Required:   true,
	})
}
