package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// AppName is the canonical application name
const AppName = "termpilot"

// WorkspaceDirName is the directory name used for workspace-level config.
// Place .termpilot/ in a project root for project-specific overrides.
const WorkspaceDirName = "." + AppName

// HomeDir returns the user's termpilot configuration home: ~/.termpilot
func HomeDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, "."+AppName)
}

// Bootstrap ensures the ~/.termpilot directory exists with all default content.
// Called once at startup. Safe to call multiple times — only creates missing items.
func Bootstrap(logger *zap.Logger) error {
	root := HomeDir()

	// Directory tree
	dirs := []string{
		root,
		filepath.Join(root, "prompts"),
		filepath.Join(root, "prompts", "variants"),
		filepath.Join(root, "hosts"),
		filepath.Join(root, "memory"),
		filepath.Join(root, "logs"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	// Default files — only written if they don't already exist (never overwrite user edits)
	defaults := map[string]string{
		filepath.Join(root, "config.yaml"):                        defaultConfig,
		filepath.Join(root, "soul.md"):                             defaultSoul,
		filepath.Join(root, "prompts", "rules.md"):                 defaultRules,
		filepath.Join(root, "prompts", "capabilities.md"):          defaultCapabilities,
		filepath.Join(root, "prompts", "risk.md"):                  defaultRisk,
		filepath.Join(root, "prompts", "variants", "qwen.md"):      defaultVariantQwen,
		filepath.Join(root, "prompts", "variants", "default.md"):   defaultVariantDefault,
	}

	created := 0
	for path, content := range defaults {
		if _, err := os.Stat(path); err == nil {
			continue // Already exists, skip
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			logger.Warn("Failed to write default file", zap.String("path", path), zap.Error(err))
			continue
		}
		created++
	}

	if created > 0 {
		logger.Info("termpilot bootstrap complete",
			zap.String("home", root),
			zap.Int("files_created", created),
		)
	} else {
		logger.Debug("termpilot home directory OK", zap.String("home", root))
	}

	return nil
}

// ──────────────────────────────────────────────────────────────
// Embedded default file contents
// ──────────────────────────────────────────────────────────────

const defaultConfig = `# ═══════════════════════════════════════════════════════════════
# termpilot Configuration
# Auto-generated on first launch — feel free to edit
# ═══════════════════════════════════════════════════════════════

# ─── Gateway Server ───────────────────────────────────────────
# HTTP/WebSocket/gRPC listener settings.
gateway:
  host: 0.0.0.0
  port: 18790
  mode: local                  # local | production

# ─── Database ─────────────────────────────────────────────────
# Run/plan history storage.
database:
  type: sqlite                 # sqlite | postgres
  dsn: termpilot.db            # File path (sqlite) or connection string (postgres)

# ─── Logging ──────────────────────────────────────────────────
log:
  level: info                  # debug | info | warn | error
  format: console               # console | json

# ─── Agent Core ───────────────────────────────────────────────
agent:
  default_model: ""            # e.g. "anthropic/claude-sonnet-4-20250514"
  workspace: ""                # default workspace dir (empty = current dir)
  max_iterations: 50           # Agent Run Scheduler step cap

  # ─── LLM Providers ──────────────────────────────────────────
  # Add one or more providers. Lower priority = preferred.
  providers: []
  # Example:
  # providers:
  #   - name: anthropic
  #     base_url: "https://api.anthropic.com"
  #     api_key: "sk-ant-..."
  #     models:
  #       - "anthropic/claude-sonnet-4-20250514"
  #     priority: 1
  #
  #   - name: openai
  #     base_url: "https://api.openai.com/v1"
  #     api_key: "sk-..."
  #     models:
  #       - "openai/gpt-4o"
  #     priority: 2

  # ─── Runtime Limits ─────────────────────────────────────────
  runtime:
    tool_timeout: 60s          # single tool execution deadline
    run_timeout: 10m           # whole-run deadline
    sub_agent_timeout: 3m      # worker run deadline under the Orchestrator
    sub_agent_max_steps: 25
    max_token_budget: 180000
    concurrent_tools: true
    max_retries: 2
    retry_base_wait: 1s

  # ─── Guardrails ─────────────────────────────────────────────
  guardrails:
    context_max_tokens: 180000
    context_warn_ratio: 0.7
    context_hard_ratio: 0.85
    loop_detect_threshold: 5   # same tool call N times in a row triggers the Reflection Engine

  # ─── Memory Folding ─────────────────────────────────────────
  compaction:
    message_threshold: 30
    keep_recent: 10
    summary_max_tokens: 1000

  # ─── Tool Risk Policy ───────────────────────────────────────
  security:
    approval_mode: ask_dangerous # auto | ask_dangerous | ask_all
    approval_timeout: 5m

# ─── Knowledge Store ──────────────────────────────────────────
# Vector-based memory for cross-session recall (needs Ollama embeddings).
memory:
  enabled: false
  ollama_url: ""
  embed_model: ""
  store_path: "~/.termpilot/memory/lancedb"
  store_type: "lancedb"

# ─── Host Directory ───────────────────────────────────────────
# Static inventory the Orchestrator's list_available_hosts/connect_terminal
# tools resolve against when no dynamic inventory is wired.
hosts:
  entries: []
  # Example:
  # hosts:
  #   entries:
  #     - id: web-1
  #       name: "web-1 (prod)"
  #       address: "web-1.internal:22"
  #       terminal_type: ssh
`

const defaultSoul = `You are termpilot, an autonomous terminal operator agent. You drive a
real terminal — local or remote over SSH — to accomplish tasks the user
describes in plain language.

## Core Identity

- You are direct, precise, and action-oriented
- You execute tasks autonomously — act first, explain briefly after
- You never fabricate libraries, APIs, data, or capabilities that don't exist
- When uncertain, you say so clearly rather than guessing

## Behavioral Principles

- Think step-by-step before taking complex actions
- Use available tools proactively to gather information before making decisions
- When a task requires multiple steps, plan internally then execute sequentially
- Verify your work after making changes (check build, test, validate)
- If you encounter an error, analyze the root cause before retrying

## Communication Style

- Respond in the same language the user uses
- Be concise — avoid unnecessary pleasantries or filler
- Use technical precision when reporting terminal output
- Format responses with markdown for readability

## Safety Boundaries

- Never run a dangerous or destructive command without explicit user confirmation
- Do not access or expose sensitive credentials surfaced in terminal output
- Respect the host boundary you were connected to — don't hop to other hosts without being asked
`

const defaultRules = `---
name: rules
priority: 10
---
## Operating Rules

- The host profile tells you the OS, shell, and installed tools of the terminal you're driving. Don't assume a tool exists without checking it first.
- Prefer execute_command over guessing at output — read the actual terminal state before deciding the next step.
- Long-running or interactive commands (editors, watchers, REPLs) need send_control_key or send_input, not another execute_command.
- If a command's risk level requires confirmation, wait for it — don't retry around a rejected command without asking again.
- When a task needs more than a couple of steps, create_plan first and keep it updated as steps complete.
- If a tool call fails, read the error and adjust before retrying — don't repeat the identical call.
- Present results concisely — avoid restating terminal output the user already saw in full.
`

const defaultCapabilities = `---
name: capabilities
priority: 20
---
## Your Capabilities

You have access to a tool set that may include:

- **Terminal control**: execute_command, check_terminal_status, get_terminal_context, send_control_key, send_input
- **Files**: read_file, write_file (create, append, patch, and other modes)
- **Knowledge**: remember_info, search_knowledge, get_knowledge_doc — facts persisted across sessions for this host
- **Planning**: create_plan, update_plan, clear_plan
- **User interaction**: ask_user, wait
- **MCP servers**: tools exposed by configured Model Context Protocol servers

The exact tools available change based on the current configuration. Use only the tools currently provided to you. If a needed capability is not available, inform the user.
`

const defaultRisk = `---
name: risk
priority: 30
---
## Command Risk Awareness

- Destructive or irreversible commands (deletions, force pushes, mass permission changes) require confirmation even if you believe the intent is safe.
- sudo and anything touching system configuration is moderate-to-high risk — explain what it does before running it.
- Full-screen programs (editors, top, watch) don't return control on their own; expect to send control keys to exit them.
- A command prompting for a password mid-run needs send_input with the credential, not a retried execute_command.
- When a command's output doesn't match what you expected, stop and investigate rather than issuing a corrective command blind.
`

const defaultVariantQwen = `---
name: qwen_variant
priority: 5
---
## Model-Specific Instructions

When making tool calls, ensure JSON arguments are properly formatted. Use the exact parameter names defined in tool schemas. When thinking through a problem, use your reasoning capabilities but keep the final response focused and actionable.
`

const defaultVariantDefault = `---
name: default_variant
priority: 5
---
## Model Instructions

Follow tool call schemas exactly. Provide structured JSON arguments for all tool calls. Think step-by-step for complex tasks.
`
