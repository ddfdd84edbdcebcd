package prompt

import (
	"strings"

	"github.com/termpilot/engine/internal/domain/entity"
	"github.com/termpilot/engine/internal/domain/valueobject"
)

// PromptContext carries the run-specific information the Prompt Builder
// needs to decide which components to load and what host/knowledge data
// to embed. Everything here is a value the caller already has in hand —
// Assemble never reaches into a database or network itself beyond the
// host-profile and prompt-component files the engine already watches.
type PromptContext struct {
	// RegisteredTools lists every tool name registered for this run.
	RegisteredTools []string

	// ToolSummaries maps a tool name to its one-line description, used
	// to render the Tooling section without re-deriving it from schemas.
	ToolSummaries map[string]string

	// ModelName is the current LLM model identifier (e.g. "anthropic/claude-sonnet-4-20250514").
	ModelName string

	// UserMessage is the task the run was started with — used for intent detection.
	UserMessage string

	// Workspace is the current working directory on the driven terminal.
	Workspace string

	// UserRules is optional user-defined text from config.yaml.
	UserRules string

	// MaxTokenBudget is the maximum tokens to allocate for the system
	// prompt. Components load by priority until the budget is exhausted.
	// 0 means unlimited.
	MaxTokenBudget int

	// DetectedIntent is auto-populated by AnalyzeIntent() when unset.
	DetectedIntent TaskIntent

	// HostID identifies the terminal's host (empty for local).
	HostID string

	// TerminalType distinguishes a local PTY from a remote SSH session.
	TerminalType entity.TerminalType

	// SystemInfo is the host's OS/shell, surfaced in the runtime block.
	SystemInfo entity.SystemInfo

	// ExecutionMode gates which confirmation path the run uses; stated in
	// the prompt so the model doesn't propose behavior the policy blocks.
	ExecutionMode valueobject.ExecutionMode

	// KnowledgeSnippets are memories already recalled by the caller
	// (e.g. via the Knowledge Store's GetHostMemoriesForPrompt) for this
	// host and task — kept as plain data so Assemble stays a pure
	// function over its inputs rather than calling out to storage itself.
	KnowledgeSnippets []string

	// DocumentContext is free-form carried-over context for this run
	// (e.g. a prior plan summary, relevant log excerpt).
	DocumentContext string

	// PreviousFailedAgents summarizes up to the last three failed
	// attempts at this task, for retry framing.
	PreviousFailedAgents []string
}

// TaskIntent represents the detected type of user task. Used for
// intelligent component selection beyond simple tool matching.
type TaskIntent int

const (
	IntentGeneral    TaskIntent = iota // default: conversational / exploratory
	IntentFileOps                      // reading, writing, or patching files
	IntentDiagnose                     // investigating an error, failing command, or unexpected output
	IntentRemoteOps                    // multi-host work: connecting, dispatching, comparing hosts
)

// String returns a human-readable name for the intent.
func (i TaskIntent) String() string {
	switch i {
	case IntentFileOps:
		return "file_ops"
	case IntentDiagnose:
		return "diagnose"
	case IntentRemoteOps:
		return "remote_ops"
	default:
		return "general"
	}
}

// HasTool checks if a specific tool is registered.
func (c *PromptContext) HasTool(name string) bool {
	for _, t := range c.RegisteredTools {
		if t == name {
			return true
		}
	}
	return false
}

// HasAnyTool checks if any of the specified tools are registered.
func (c *PromptContext) HasAnyTool(names []string) bool {
	for _, name := range names {
		if c.HasTool(name) {
			return true
		}
	}
	return false
}

// ModelPrefix extracts the provider prefix from ModelName (e.g. "anthropic" from "anthropic/claude-sonnet-4-20250514").
func (c *PromptContext) ModelPrefix() string {
	for i, ch := range c.ModelName {
		if ch == '/' {
			return c.ModelName[:i]
		}
	}
	return c.ModelName
}

// ModelShortName extracts the model name without provider prefix.
func (c *PromptContext) ModelShortName() string {
	for i, ch := range c.ModelName {
		if ch == '/' {
			return c.ModelName[i+1:]
		}
	}
	return c.ModelName
}

// buildCarriedContextSection assembles document context and prior failed
// attempts into a formatted prompt section.
func (c *PromptContext) buildCarriedContextSection() string {
	if c.DocumentContext == "" && len(c.PreviousFailedAgents) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("## Carried-over Context\n\n")

	if c.DocumentContext != "" {
		sb.WriteString(c.DocumentContext)
		sb.WriteString("\n\n")
	}

	if len(c.PreviousFailedAgents) > 0 {
		sb.WriteString("Previous attempts at this task did not finish:\n\n")
		for i, summary := range c.PreviousFailedAgents {
			sb.WriteString("- attempt ")
			sb.WriteString(formatInt(i + 1))
			sb.WriteString(": ")
			sb.WriteString(summary)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// formatInt converts an int to string without importing strconv in this file.
func formatInt(n int) string {
	if n == 0 {
		return "0"
	}
	result := ""
	neg := false
	if n < 0 {
		neg = true
		n = -n
	}
	for n > 0 {
		result = string(rune('0'+n%10)) + result
		n /= 10
	}
	if neg {
		result = "-" + result
	}
	return result
}
