package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	AIService AIServiceConfig `mapstructure:"ai_service"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Log       LogConfig       `mapstructure:"log"`
	Agent     AgentConfig     `mapstructure:"agent"`
	Heartbeat HeartbeatConfig `mapstructure:"heartbeat"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Hosts     HostsConfig     `mapstructure:"hosts"`
	PythonEnv string          `mapstructure:"python_env"` // root of the conda/venv environment tools may shell out through
}

// GatewayConfig configures the interfaces layer's HTTP/WebSocket/gRPC listener.
type GatewayConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // local, production
}

// AIServiceConfig configures the gRPC agent service the gateway talks to.
type AIServiceConfig struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Timeout int    `mapstructure:"timeout"` // seconds
}

// DatabaseConfig configures run/plan persistence.
type DatabaseConfig struct {
	Type string `mapstructure:"type"` // sqlite, postgres
	DSN  string `mapstructure:"dsn"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AgentConfig configures the Agent Run Scheduler and Orchestrator.
type AgentConfig struct {
	DefaultModel    string              `mapstructure:"default_model"`
	DefaultProvider string              `mapstructure:"default_provider"`
	Workspace       string              `mapstructure:"workspace"`
	MaxIterations   int                 `mapstructure:"max_iterations"`
	AskMode         bool                `mapstructure:"ask_mode"`
	Models          []ModelConfig       `mapstructure:"models"`
	FallbackModels  []string            `mapstructure:"fallback_models"` // failover chain when the primary model errors out
	Providers       []LLMProviderConfig `mapstructure:"providers"`       // LLM provider configs for llm.Router

	// Per-model policy overrides (model family key → overrides).
	// Keys are matched by substring against model ID, e.g. "qwen3", "minimax", "claude".
	// Nil values / omitted keys use auto-detected defaults from resolveModelPolicy.
	ModelPolicies map[string]ModelPolicyConfig `mapstructure:"model_policies"`

	Runtime    RuntimeConfig    `mapstructure:"runtime"`
	Guardrails GuardrailsConfig `mapstructure:"guardrails"`
	Tools      ToolsConfig      `mapstructure:"tools"`
	Security   SecurityConfig   `mapstructure:"security"`
	Compaction CompactionConfig `mapstructure:"compaction"`
	MCP        MCPConfig        `mapstructure:"mcp"`
	GRPCPort   int              `mapstructure:"grpc_port"` // gRPC agent server port (default 50051)
}

// ModelPolicyConfig holds YAML-configurable per-model policy overrides.
// All fields are pointers so nil = "don't override, use auto-detected value".
type ModelPolicyConfig struct {
	RepairToolPairing   *bool   `mapstructure:"repair_tool_pairing"`
	EnforceTurnOrdering *bool   `mapstructure:"enforce_turn_ordering"`
	ReasoningFormat     *string `mapstructure:"reasoning_format"`
	ProgressInterval    *int    `mapstructure:"progress_interval"`
	ProgressEscalation  *bool   `mapstructure:"progress_escalation"`
	PromptStyle         *string `mapstructure:"prompt_style"`
	SystemRoleSupport   *bool   `mapstructure:"system_role_support"`
	ThinkingTagHint     *bool   `mapstructure:"thinking_tag_hint"`
}

// LLMProviderConfig configures one entry in llm.Router's provider chain.
type LLMProviderConfig struct {
	Name     string   `mapstructure:"name"`
	Type     string   `mapstructure:"type"` // openai | anthropic | gemini, default openai
	BaseURL  string   `mapstructure:"base_url"`
	APIKey   string   `mapstructure:"api_key"`
	Models   []string `mapstructure:"models"`
	Priority int      `mapstructure:"priority"`
}

// ModelConfig describes one selectable model.
type ModelConfig struct {
	ID          string `mapstructure:"id"`          // e.g. "anthropic/claude-sonnet"
	Alias       string `mapstructure:"alias"`       // e.g. "Sonnet"
	Provider    string `mapstructure:"provider"`    // e.g. "Anthropic"
	Description string `mapstructure:"description"`
}

// RuntimeConfig holds the Agent Run Scheduler's tunable runtime parameters.
type RuntimeConfig struct {
	ToolTimeout      time.Duration `mapstructure:"tool_timeout"`        // per-tool execution deadline
	RunTimeout       time.Duration `mapstructure:"run_timeout"`         // whole-run deadline
	SubAgentTimeout  time.Duration `mapstructure:"sub_agent_timeout"`   // worker run deadline under the Orchestrator
	SubAgentMaxSteps int           `mapstructure:"sub_agent_max_steps"` // worker MaxSteps
	MaxTokenBudget   int64         `mapstructure:"max_token_budget"`
	ConcurrentTools  bool          `mapstructure:"concurrent_tools"`
	MaxRetries       int           `mapstructure:"max_retries"`     // LLM call retries (default: 2)
	RetryBaseWait    time.Duration `mapstructure:"retry_base_wait"` // base backoff wait (default: 1s, doubled per retry)
}

// GuardrailsConfig configures context-window and loop-detection guardrails.
type GuardrailsConfig struct {
	ContextMaxTokens    int     `mapstructure:"context_max_tokens"`
	ContextWarnRatio    float64 `mapstructure:"context_warn_ratio"`    // warn threshold (0.7 = 70%)
	ContextHardRatio    float64 `mapstructure:"context_hard_ratio"`    // forced-compaction threshold
	LoopDetectWindow    int     `mapstructure:"loop_detect_window"`    // sliding window size
	LoopDetectThreshold int     `mapstructure:"loop_detect_threshold"` // same tool N times in a row = loop
	CostGuardEnabled    bool    `mapstructure:"cost_guard_enabled"`
}

// SecurityConfig configures tool risk and confirmation policy.
type SecurityConfig struct {
	// ApprovalMode: "auto" | "ask_dangerous" | "ask_all"
	//   auto          — run everything unattended
	//   ask_dangerous — confirm only dangerous-category tools/commands
	//   ask_all       — confirm every tool call
	ApprovalMode    string        `mapstructure:"approval_mode"`
	DangerousTools  []string      `mapstructure:"dangerous_tools"`
	TrustedTools    []string      `mapstructure:"trusted_tools"`
	TrustedCommands []string      `mapstructure:"trusted_commands"`
	ApprovalTimeout time.Duration `mapstructure:"approval_timeout"` // default 5m
}

// ToolsConfig configures the Tool Executor's registry.
type ToolsConfig struct {
	Registry []ToolRegConfig `mapstructure:"registry"`
}

// ToolRegConfig registers one tool backend.
type ToolRegConfig struct {
	Name         string              `mapstructure:"name"`
	Backend      string              `mapstructure:"backend"` // go | command | grpc | mcp
	Command      string              `mapstructure:"command"`
	ArgsFormat   string              `mapstructure:"args_format"`
	Handler      string              `mapstructure:"handler"`      // backend=go: built-in handler name
	GRPCMethod   string              `mapstructure:"grpc_method"`  // backend=grpc
	GRPCEndpoint string              `mapstructure:"grpc_endpoint"`
	Enabled      bool                `mapstructure:"enabled"`
	Timeout      time.Duration       `mapstructure:"timeout"` // overrides the global tool_timeout
	Aliases      map[string][]string `mapstructure:"aliases"` // provider → alias names
}

// CompactionConfig configures conversation history compaction.
type CompactionConfig struct {
	MessageThreshold int  `mapstructure:"message_threshold"`
	TokenThreshold   int  `mapstructure:"token_threshold"`
	KeepRecent       int  `mapstructure:"keep_recent"`
	SummaryMaxTokens int  `mapstructure:"summary_max_tokens"`
	PreFlushToMemory bool `mapstructure:"pre_flush_to_memory"` // write key facts to the vector store before compacting
}

// MCPConfig lists the MCP servers the MCP passthrough tool can reach.
type MCPConfig struct {
	Servers []MCPServerConfig `mapstructure:"servers"`
}

// MCPServerConfig is one MCP server entry.
type MCPServerConfig struct {
	Name     string `mapstructure:"name"`
	Endpoint string `mapstructure:"endpoint"`
	Enabled  bool   `mapstructure:"enabled"`
}

// MCPFileConfig is the hot-pluggable MCP server directory persisted to
// ~/.termpilot/mcp.json, separate from the static MCPConfig in config.yaml —
// the MCP Manager adds/removes servers at runtime without a restart, so it
// owns its own small JSON file rather than going through viper.
type MCPFileConfig struct {
	Servers []MCPServerEntry `json:"servers"`
}

// MCPServerEntry is one server tracked in mcp.json.
type MCPServerEntry struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
	Enabled  bool   `json:"enabled"`
}

// SaveMCPConfig writes the MCP server directory to path as indented JSON.
func SaveMCPConfig(path string, cfg *MCPFileConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal mcp config: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// HeartbeatConfig configures the periodic HEARTBEAT.md watcher.
type HeartbeatConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	FilePath string `mapstructure:"file_path"` // HEARTBEAT.md path
	Interval int    `mapstructure:"interval"`  // check interval (minutes)
}

// MemoryConfig configures the vector-backed Knowledge Store (spec §4.6).
type MemoryConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	OllamaURL  string `mapstructure:"ollama_url"`  // Ollama embedding endpoint (http://host:port)
	EmbedModel string `mapstructure:"embed_model"` // embedding model name, e.g. qwen3-embedding
	StorePath  string `mapstructure:"store_path"`  // LanceDB persistence directory
	StoreType  string `mapstructure:"store_type"`  // lancedb | memory
}

// HostsConfig is the static host directory backing the Orchestrator's
// HostLister when no dynamic inventory (cloud provider, SSH config) is wired.
type HostsConfig struct {
	Entries []HostEntryConfig `mapstructure:"entries"`
}

// HostEntryConfig describes one dispatch target a host_id in
// list_available_hosts/connect_terminal can resolve to.
type HostEntryConfig struct {
	ID           string `mapstructure:"id"`
	Name         string `mapstructure:"name"`
	Address      string `mapstructure:"address"`      // SSH host:port, empty for local
	TerminalType string `mapstructure:"terminal_type"` // local | ssh
}

// Load reads configuration from defaults, the global config directory, a
// project-local override, and the environment, in that order of increasing
// priority (the same layering Claude Code / Gemini CLI use).
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Layer 1: global config ~/.termpilot/config.yaml (base layer — API keys, providers, hosts)
	globalDir := filepath.Join(os.Getenv("HOME"), ".termpilot")
	v.AddConfigPath(globalDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read global config: %w", err)
		}
	}

	// Layer 2: project-local config (overrides — workspace, models, runtime)
	// Checks ./config/config.yaml then ./config.yaml, merging the first hit.
	for _, localDir := range []string{"./config", "."} {
		localPath := filepath.Join(localDir, "config.yaml")
		if _, err := os.Stat(localPath); err == nil {
			v2 := viper.New()
			v2.SetConfigFile(localPath)
			if err := v2.ReadInConfig(); err == nil {
				_ = v.MergeConfigMap(v2.AllSettings())
			}
			break
		}
	}

	// Legacy compat layer: openclaw.json supplies providers/model only.
	_ = loadLegacyConfig(v)

	v.SetEnvPrefix("TERMPILOT")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gateway.host", "0.0.0.0")
	v.SetDefault("gateway.port", 18789)
	v.SetDefault("gateway.mode", "local")

	v.SetDefault("ai_service.host", "localhost")
	v.SetDefault("ai_service.port", 50051)
	v.SetDefault("ai_service.timeout", 120)

	v.SetDefault("database.type", "sqlite")
	v.SetDefault("database.dsn", "termpilot.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("agent.runtime.tool_timeout", "30s")
	v.SetDefault("agent.runtime.run_timeout", "5m")
	v.SetDefault("agent.runtime.sub_agent_timeout", "2m")
	v.SetDefault("agent.runtime.max_token_budget", 100000)
	v.SetDefault("agent.runtime.concurrent_tools", true)
	v.SetDefault("agent.runtime.max_retries", 2)
	v.SetDefault("agent.runtime.retry_base_wait", "1s")

	v.SetDefault("agent.guardrails.context_max_tokens", 128000)
	v.SetDefault("agent.guardrails.context_warn_ratio", 0.7)
	v.SetDefault("agent.guardrails.context_hard_ratio", 0.85)
	v.SetDefault("agent.guardrails.loop_detect_window", 10)
	v.SetDefault("agent.guardrails.loop_detect_threshold", 5)
	v.SetDefault("agent.guardrails.cost_guard_enabled", true)

	v.SetDefault("agent.compaction.message_threshold", 30)
	v.SetDefault("agent.compaction.token_threshold", 30000)
	v.SetDefault("agent.compaction.keep_recent", 10)
	v.SetDefault("agent.compaction.summary_max_tokens", 1000)
	v.SetDefault("agent.compaction.pre_flush_to_memory", true)

	v.SetDefault("agent.security.approval_mode", "ask_dangerous")
	v.SetDefault("agent.security.dangerous_tools", []string{"execute_command", "write_file", "send_control_key"})
	v.SetDefault("agent.security.trusted_tools", []string{"read_file", "check_terminal_status", "get_terminal_context", "search_knowledge"})
	v.SetDefault("agent.security.trusted_commands", []string{"ls", "cat", "head", "tail", "grep", "find", "wc", "echo", "pwd", "which", "file", "stat"})
	v.SetDefault("agent.security.approval_timeout", "5m")

	v.SetDefault("memory.store_type", "lancedb")
	v.SetDefault("memory.store_path", "~/.termpilot/memory/lancedb")
}

// loadLegacyConfig merges a legacy openclaw.json's providers/model fields
// into v, for operators migrating an existing config without a rewrite.
func loadLegacyConfig(v *viper.Viper) error {
	paths := []string{
		filepath.Join(os.Getenv("HOME"), ".openclaw", "openclaw.json"),
		"openclaw.json",
	}

	var configPath string
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			configPath = path
			break
		}
	}

	if configPath == "" {
		return fmt.Errorf("openclaw.json not found")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read openclaw.json: %w", err)
	}

	var oc map[string]interface{}
	if err := json.Unmarshal(data, &oc); err != nil {
		return fmt.Errorf("parse openclaw.json: %w", err)
	}

	if providers, ok := oc["providers"].([]interface{}); ok {
		for _, p := range providers {
			prov, ok := p.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := prov["name"].(string)
			apiKey, _ := prov["apiKey"].(string)
			baseURL, _ := prov["baseURL"].(string)

			if name != "" && apiKey != "" {
				v.Set(fmt.Sprintf("providers.%s.api_key", name), apiKey)
			}
			if name != "" && baseURL != "" {
				v.Set(fmt.Sprintf("providers.%s.base_url", name), baseURL)
			}
		}
	}

	if model, ok := oc["model"].(string); ok && model != "" {
		v.Set("agent.runtime.model", model)
	}

	return nil
}
