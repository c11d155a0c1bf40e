// Package config loads the closed configuration structure: an optional
// YAML file overlaid with environment variables.
// Unknown YAML keys are rejected at load time ("enumerated
// option records", not dynamic config objects).
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ApprovalMode selects whether the engine blocks on human approval.
type ApprovalMode string

const (
	ApprovalAuto ApprovalMode = "auto"
	ApprovalManual ApprovalMode = "manual"
)

// PermissionMode selects how the coding subprocess enforces tool permissions.
type PermissionMode string

const (
	PermissionAsk PermissionMode = "ask"
	PermissionBypassPermissions PermissionMode = "bypassPermissions"
)

// AgentConfig configures the coding subprocess and the lightweight planner.
type AgentConfig struct {
	Model string `yaml:"model"`
	MaxBudgetUsd float64 `yaml:"maxBudgetUsd"`
	AllowedTools []string `yaml:"allowedTools"`
	PermissionMode PermissionMode `yaml:"permissionMode"`
	BinaryPath string `yaml:"binaryPath"`
	PlannerProvider string `yaml:"plannerProvider"` // "anthropic" | "openai"
	PlannerModel string `yaml:"plannerModel"`
	PlannerAPIKey string `yaml:"plannerApiKey"`
}

// EngineConfig configures the issue-to-merge state machine loop.
type EngineConfig struct {
	PollIntervalMs int `yaml:"pollIntervalMs"`
	WorkingDirectory string `yaml:"workingDirectory"`
	MaxRetries int `yaml:"maxRetries"`
	ApprovalMode ApprovalMode `yaml:"approvalMode"`
	CIPollIntervalMs int `yaml:"ciPollIntervalMs"`
	CIDeadlineMs int `yaml:"ciDeadlineMs"`
	MergeMethod string `yaml:"mergeMethod"`
}

// PlatformConfig configures the code-hosting platform adapter.
type PlatformConfig struct {
	Token string `yaml:"token"`
	Owner string `yaml:"owner"`
	Repo string `yaml:"repo"`
	IssueLabels []string `yaml:"issueLabels"`
	ExcludeLabels []string `yaml:"excludeLabels"`
	BotUsername string `yaml:"botUsername"`
}

// SourceCaps bounds a single retrieval source.
type SourceCaps struct {
	MaxChunks int `yaml:"maxChunks"`
	TimeoutMs int `yaml:"timeoutMs"`
}

// CachingConfig configures the aggregator's LRU+TTL result cache.
type CachingConfig struct {
	Enabled bool `yaml:"enabled"`
	TTLSeconds int `yaml:"ttlSeconds"`
	MaxEntries int `yaml:"maxEntries"`
	Provider string `yaml:"provider"`
}

// BudgetConfig configures token-budget defaults.
type BudgetConfig struct {
	DefaultMaxTokens int `yaml:"defaultMaxTokens"`
	ReservedTokens int `yaml:"reservedTokens"`
	MinChunkTokens int `yaml:"minChunkTokens"`
	MaxChunkTokens int `yaml:"maxChunkTokens"`
}

// DeduplicationConfig configures the aggregator's three dedup phases.
type DeduplicationConfig struct {
	Enabled bool `yaml:"enabled"`
	UseContentHash bool `yaml:"useContentHash"`
	UseSemantic bool `yaml:"useSemantic"`
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
}

// AggregatorConfig configures the context aggregator.
type AggregatorConfig struct {
	Sources map[string]SourceCaps `yaml:"sources"`
	Caching CachingConfig `yaml:"caching"`
	Budget BudgetConfig `yaml:"budget"`
	Deduplication DeduplicationConfig `yaml:"deduplication"`
}

// RankingConfig configures the RAG ranker.
type RankingConfig struct {
	FusionMethod string `yaml:"fusionMethod"`
	RRFK int `yaml:"rrfK"`
	MMRLambda float64 `yaml:"mmrLambda"`
	RecencyBoost float64 `yaml:"recencyBoost"`
	RecencyDecayDays float64 `yaml:"recencyDecayDays"`
}

// AssemblyConfig configures the RAG assembler.
type AssemblyConfig struct {
	MaxTokens int `yaml:"maxTokens"`
	Format string `yaml:"format"`
	IncludeScores bool `yaml:"includeScores"`
	DeduplicationThreshold float64 `yaml:"deduplicationThreshold"`
}

// RAGTimeouts configures per-source and total timeouts for RAG retrieval.
type RAGTimeouts struct {
	PerSourceMs int `yaml:"perSourceMs"`
	TotalMs int `yaml:"totalMs"`
}

// RAGConfig configures the retrieval-augmented generation pipeline.
type RAGConfig struct {
	Ranking RankingConfig `yaml:"ranking"`
	Assembly AssemblyConfig `yaml:"assembly"`
	Timeouts RAGTimeouts `yaml:"timeouts"`
}

// MCPServerConfig configures one external tool server connection.
type MCPServerConfig struct {
	Name string `yaml:"name"`
	Transport string `yaml:"transport"` // stdio | sse | websocket
	Command string `yaml:"command"`
	URL string `yaml:"url"`
	Args []string `yaml:"args"`
	Env map[string]string `yaml:"env"`
	TimeoutMs int `yaml:"timeout"`
	ReconnectOnError bool `yaml:"reconnectOnError"`
	MaxReconnectAttempts int `yaml:"maxReconnectAttempts"`
	RateLimitRpm int `yaml:"rateLimitRpm"`
	Sandboxed bool `yaml:"sandboxed"`
}

// Config is the single structured configuration object.
type Config struct {
	Agent AgentConfig `yaml:"agent"`
	Engine EngineConfig `yaml:"engine"`
	Platform PlatformConfig `yaml:"platform"`
	Aggregator AggregatorConfig `yaml:"aggregator"`
	RAG RAGConfig `yaml:"rag"`
	MCP []MCPServerConfig `yaml:"mcp"`
}

// Default returns the zero-value config overlaid with sane operational defaults.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Model: "default",
			MaxBudgetUsd: 5.0,
			PermissionMode: PermissionAsk,
		},
		Engine: EngineConfig{
			PollIntervalMs: 30_000,
			MaxRetries: 3,
			ApprovalMode: ApprovalAuto,
			CIPollIntervalMs: 30_000,
			CIDeadlineMs: 30 * 60 * 1000,
			MergeMethod: "squash",
		},
		Aggregator: AggregatorConfig{
			Sources: map[string]SourceCaps{},
			Caching: CachingConfig{Enabled: true, TTLSeconds: 300, MaxEntries: 512},
			Budget: BudgetConfig{DefaultMaxTokens: 8000, ReservedTokens: 500, MinChunkTokens: 20, MaxChunkTokens: 2000},
			Deduplication: DeduplicationConfig{
				Enabled: true, UseContentHash: true, UseSemantic: true, SimilarityThreshold: 0.92,
			},
		},
		RAG: RAGConfig{
			Ranking: RankingConfig{
				FusionMethod: "rrf", RRFK: 60, MMRLambda: 0.5, RecencyBoost: 0.1, RecencyDecayDays: 30,
			},
			Assembly: AssemblyConfig{MaxTokens: 8000, Format: "markdown", DeduplicationThreshold: 0.92},
			Timeouts: RAGTimeouts{PerSourceMs: 5000, TotalMs: 15000},
		},
	}
}

// Load reads environment from envPath (best-effort, via godotenv.Overload),
// then overlays an optional YAML file at configPath on top of Default(), then applies
// environment-variable overrides for the handful of secrets that must
// never live in a committed file.
func Load(configPath, envPath string) (*Config, error) {
	loadDotEnv(envPath)

	cfg := Default()
	if configPath != "" {
		raw, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(raw))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv(envPath string) {
	if envPath != "" {
		_ = godotenv.Overload(envPath)
		return
	}
	if exe, err := os.Executable(); err == nil {
		_ = godotenv.Overload(filepath.Join(filepath.Dir(exe), ".env.mergebot"))
	}
	_ = godotenv.Overload(".env.mergebot")
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MERGEBOT_PLATFORM_TOKEN"); v != "" {
		cfg.Platform.Token = v
	}
	if v := os.Getenv("MERGEBOT_PLATFORM_OWNER"); v != "" {
		cfg.Platform.Owner = v
	}
	if v := os.Getenv("MERGEBOT_PLATFORM_REPO"); v != "" {
		cfg.Platform.Repo = v
	}
	if v := os.Getenv("MERGEBOT_AGENT_BINARY"); v != "" {
		cfg.Agent.BinaryPath = v
	}
	if v := os.Getenv("MERGEBOT_PLANNER_API_KEY"); v != "" {
		cfg.Agent.PlannerAPIKey = v
	}
	if v := os.Getenv("MERGEBOT_WORKDIR"); v != "" {
		cfg.Engine.WorkingDirectory = v
	}
}

// Validate rejects a config missing fields the engine cannot run without.
// Exit code 2 is produced by the caller when this
// returns an error.
func (c *Config) Validate() error {
	if c.Platform.Owner == "" || c.Platform.Repo == "" {
		return fmt.Errorf("config: platform.owner and platform.repo are required")
	}
	if c.Platform.Token == "" {
		return fmt.Errorf("config: platform.token is required")
	}
	if c.Engine.ApprovalMode != ApprovalAuto && c.Engine.ApprovalMode != ApprovalManual {
		return fmt.Errorf("config: engine.approvalMode must be %q or %q", ApprovalAuto, ApprovalManual)
	}
	if c.Engine.MaxRetries < 0 {
		return fmt.Errorf("config: engine.maxRetries must be >= 0")
	}
	if c.Aggregator.Budget.DefaultMaxTokens <= 0 {
		return fmt.Errorf("config: aggregator.budget.defaultMaxTokens must be > 0")
	}
	return nil
}

// PollInterval is a convenience accessor used by the engine's run loop.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalMs) * time.Millisecond
}
