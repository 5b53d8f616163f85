// Package config holds process-wide configuration for the orchestration
// pipeline: LLM provider selection, storage DSNs, retry budget, and the
// executor/gateway timeouts. Configuration is layered default -> environment
// -> functional option, in that priority order, matching the rest of the
// retrieval pack's convention for process configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LLMProvider selects which llmgateway backend to construct.
type LLMProvider string

const (
	ProviderAnthropic LLMProvider = "anthropic"
	ProviderOpenAI    LLMProvider = "openai"
	ProviderBedrock   LLMProvider = "bedrock"
)

// Config is the fully-resolved process configuration.
type Config struct {
	// LLM gateway
	LLMProvider      LLMProvider   `yaml:"llmProvider" env:"NL2API_LLM_PROVIDER" default:"anthropic"`
	LLMAPIKey        string        `yaml:"llmApiKey" env:"NL2API_LLM_API_KEY"`
	LLMModel         string        `yaml:"llmModel" env:"NL2API_LLM_MODEL" default:"claude-3-5-sonnet-latest"`
	LLMEmbedModel    string        `yaml:"llmEmbedModel" env:"NL2API_LLM_EMBED_MODEL" default:"text-embedding-3-small"`
	LLMTimeout       time.Duration `yaml:"llmTimeout" env:"NL2API_LLM_TIMEOUT" default:"20s"`
	LLMConcurrency   int           `yaml:"llmConcurrency" env:"NL2API_LLM_CONCURRENCY" default:"4"`

	// AWS Bedrock (only consulted when LLMProvider == bedrock)
	BedrockRegion string `yaml:"bedrockRegion" env:"NL2API_BEDROCK_REGION" default:"us-east-1"`

	// Storage
	MongoDSN string `yaml:"mongoDSN" env:"NL2API_MONGO_DSN"`
	MongoDB  string `yaml:"mongoDatabase" env:"NL2API_MONGO_DATABASE" default:"nl2api"`
	RedisDSN string `yaml:"redisDSN" env:"NL2API_REDIS_DSN"`

	// Pipeline behavior
	RetryBudget     int           `yaml:"retryBudget" env:"NL2API_RETRY_BUDGET" default:"2"`
	ExecutorTimeout time.Duration `yaml:"executorTimeout" env:"NL2API_EXECUTOR_TIMEOUT" default:"30s"`

	// AliasMap lets operators declare known base-URL rewrites explicitly
	// instead of the ad-hoc string-patching the source performed; empty by
	// default. Relative base URLs are rejected at dispatch time whether or
	// not they appear here.
	AliasMap map[string]string `yaml:"aliasMap"`
}

// Option mutates a Config at construction time; options are applied after
// environment loading and therefore take the highest priority.
type Option func(*Config)

// WithLLMProvider overrides the configured LLM backend.
func WithLLMProvider(p LLMProvider) Option {
	return func(c *Config) { c.LLMProvider = p }
}

// WithLLMCredentials sets the API key used to authenticate with the LLM provider.
func WithLLMCredentials(apiKey string) Option {
	return func(c *Config) { c.LLMAPIKey = apiKey }
}

// WithMongoDSN overrides the metadata repository's persistent store DSN.
func WithMongoDSN(dsn, database string) Option {
	return func(c *Config) {
		c.MongoDSN = dsn
		if database != "" {
			c.MongoDB = database
		}
	}
}

// WithRedisDSN overrides the context cache's Redis tier DSN.
func WithRedisDSN(dsn string) Option {
	return func(c *Config) { c.RedisDSN = dsn }
}

// WithRetryBudget overrides the orchestrator's per-request retry budget.
func WithRetryBudget(n int) Option {
	return func(c *Config) { c.RetryBudget = n }
}

// WithExecutorTimeout overrides the per-call HTTP dispatch timeout.
func WithExecutorTimeout(d time.Duration) Option {
	return func(c *Config) { c.ExecutorTimeout = d }
}

// WithAlias registers a base-URL alias rewrite, e.g. mapping a known demo
// base URL (the exact string) to the path prefix its API actually serves
// under.
func WithAlias(from, to string) Option {
	return func(c *Config) {
		if c.AliasMap == nil {
			c.AliasMap = map[string]string{}
		}
		c.AliasMap[from] = to
	}
}

// defaultConfig returns a Config populated with the struct's documented
// defaults, before environment or option layers are applied.
func defaultConfig() *Config {
	return &Config{
		LLMProvider:     ProviderAnthropic,
		LLMModel:        "claude-3-5-sonnet-latest",
		LLMEmbedModel:   "text-embedding-3-small",
		LLMTimeout:      20 * time.Second,
		LLMConcurrency:  4,
		BedrockRegion:   "us-east-1",
		MongoDB:         "nl2api",
		RetryBudget:     2,
		ExecutorTimeout: 30 * time.Second,
		AliasMap:        map[string]string{},
	}
}

// loadEnv overlays environment variables onto cfg. Unset variables leave the
// existing value (default or previously-loaded file value) untouched.
func (c *Config) loadEnv() error {
	if v := os.Getenv("NL2API_LLM_PROVIDER"); v != "" {
		c.LLMProvider = LLMProvider(v)
	}
	if v := os.Getenv("NL2API_LLM_API_KEY"); v != "" {
		c.LLMAPIKey = v
	}
	if v := os.Getenv("NL2API_LLM_MODEL"); v != "" {
		c.LLMModel = v
	}
	if v := os.Getenv("NL2API_LLM_EMBED_MODEL"); v != "" {
		c.LLMEmbedModel = v
	}
	if v := os.Getenv("NL2API_LLM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NL2API_LLM_TIMEOUT: %w", err)
		}
		c.LLMTimeout = d
	}
	if v := os.Getenv("NL2API_LLM_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NL2API_LLM_CONCURRENCY: %w", err)
		}
		c.LLMConcurrency = n
	}
	if v := os.Getenv("NL2API_BEDROCK_REGION"); v != "" {
		c.BedrockRegion = v
	}
	if v := os.Getenv("NL2API_MONGO_DSN"); v != "" {
		c.MongoDSN = v
	}
	if v := os.Getenv("NL2API_MONGO_DATABASE"); v != "" {
		c.MongoDB = v
	}
	if v := os.Getenv("NL2API_REDIS_DSN"); v != "" {
		c.RedisDSN = v
	}
	if v := os.Getenv("NL2API_RETRY_BUDGET"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NL2API_RETRY_BUDGET: %w", err)
		}
		c.RetryBudget = n
	}
	if v := os.Getenv("NL2API_EXECUTOR_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NL2API_EXECUTOR_TIMEOUT: %w", err)
		}
		c.ExecutorTimeout = d
	}
	return nil
}

// New builds a Config by layering defaults, then an optional YAML file,
// then environment variables, then the supplied options, in ascending
// priority order.
func New(yamlPath string, opts ...Option) (*Config, error) {
	cfg := defaultConfig()

	if yamlPath != "" {
		data, err := os.ReadFile(yamlPath)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", yamlPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", yamlPath, err)
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, fmt.Errorf("config: load env: %w", err)
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate reports whether cfg is internally consistent.
func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderAnthropic, ProviderOpenAI, ProviderBedrock:
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLMProvider)
	}
	if c.LLMProvider != ProviderBedrock && c.LLMAPIKey == "" {
		return fmt.Errorf("llm api key is required for provider %q", c.LLMProvider)
	}
	if c.RetryBudget < 0 {
		return fmt.Errorf("retry budget must be >= 0, got %d", c.RetryBudget)
	}
	if c.ExecutorTimeout <= 0 {
		return fmt.Errorf("executor timeout must be positive")
	}
	if c.LLMConcurrency <= 0 {
		return fmt.Errorf("llm concurrency must be positive")
	}
	return nil
}
