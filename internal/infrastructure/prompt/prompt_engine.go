package prompt

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/termpilot/engine/internal/domain/memory"
	"go.uber.org/zap"
)

// PromptEngine is the hot-pluggable system prompt assembly engine. It
// discovers prompt components from the filesystem and assembles a
// context-aware system prompt at runtime.
//
// Two-layer architecture:
//
//	System layer:    ~/.termpilot/          — global defaults
//	Workspace layer: <project>/.termpilot/  — project-specific overrides
//
// Within each layer:
//   - SOUL:       soul.md — always loaded, defines the agent's persona
//   - Components: prompts/*.md — loaded by requires conditions
//   - Variants:   prompts/variants/*.md — loaded by model name
//
// Merge rule: workspace overrides system (same-name component replaces).
// Host profile notes live outside this layering, in hosts/<host_id>.md,
// and are read fresh per run since they vary by which host a run targets.
type PromptEngine struct {
	soul       string                      // core soul.md content (always prepended)
	components []*PromptComponent          // all shared components (merged)
	variants   map[string]*PromptComponent // variant file name (without .md) → variant

	systemDir string // ~/.termpilot (system-level)
	wsDir     string // <workspace>/.termpilot (workspace-level, may be empty)
	hostsDir  string // ~/.termpilot/hosts (host profile notes)

	knowledge memory.KnowledgeStore // optional; nil disables the Long-term Memory section

	logger *zap.Logger
	mu     sync.RWMutex

	// Assembly cache is reset on Reload()/Discover(); Assemble itself does
	// not consult it today (host/knowledge data vary per run), but callers
	// needing the same prompt repeatedly can memoize around Assemble.
	cache map[string]string
}

// NewPromptEngine creates a new prompt engine.
// workspaceDir is the project root (can be empty for no workspace layer).
// knowledge may be nil; in that case the Long-term Memory section is omitted.
// Call Discover() to load files from the filesystem.
func NewPromptEngine(workspaceDir string, knowledge memory.KnowledgeStore, logger *zap.Logger) *PromptEngine {
	homeDir, _ := os.UserHomeDir()

	var wsDir string
	if workspaceDir != "" {
		wsDir = filepath.Join(workspaceDir, ".termpilot")
	}

	systemDir := filepath.Join(homeDir, ".termpilot")

	return &PromptEngine{
		components: make([]*PromptComponent, 0),
		variants:   make(map[string]*PromptComponent),
		cache:      make(map[string]string),
		systemDir:  systemDir,
		wsDir:      wsDir,
		hostsDir:   filepath.Join(systemDir, "hosts"),
		knowledge:  knowledge,
		logger:     logger,
	}
}

// Discover scans the System and Workspace layers for prompt files.
// Workspace items override System items with the same name. Called at
// startup and can be called again for hot-reload.
func (e *PromptEngine) Discover() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.soul = ""
	e.components = e.components[:0]
	e.variants = make(map[string]*PromptComponent)
	e.cache = make(map[string]string)

	// 1. Load SOUL — workspace overrides system
	soulPaths := []string{filepath.Join(e.systemDir, "soul.md")}
	if e.wsDir != "" {
		soulPaths = append(soulPaths, filepath.Join(e.wsDir, "soul.md"))
	}
	for _, sp := range soulPaths {
		if data, err := os.ReadFile(sp); err == nil {
			e.soul = strings.TrimSpace(string(data))
			e.logger.Info("loaded soul", zap.String("path", sp), zap.Int("chars", len(e.soul)))
		}
	}

	// 2. Load shared components from both layers — workspace overrides system by name
	compMap := make(map[string]*PromptComponent) // name → component (last wins)

	promptDirs := []string{filepath.Join(e.systemDir, "prompts")}
	if e.wsDir != "" {
		promptDirs = append(promptDirs, filepath.Join(e.wsDir, "prompts"))
	}

	for _, dir := range promptDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			e.logger.Warn("failed to create prompts dir", zap.String("dir", dir), zap.Error(err))
			continue
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			comp, err := ParsePromptFile(path)
			if err != nil {
				e.logger.Warn("failed to parse prompt", zap.String("file", path), zap.Error(err))
				continue
			}
			compMap[comp.Name] = comp // workspace same-name replaces system
			e.logger.Info("loaded prompt component",
				zap.String("name", comp.Name),
				zap.String("from", dir),
				zap.Int("priority", comp.Priority),
				zap.Bool("conditional", comp.Requires != nil),
			)
		}
	}

	for _, comp := range compMap {
		e.components = append(e.components, comp)
	}

	// 3. Load variants from both layers — workspace overrides system
	variantDirs := []string{filepath.Join(e.systemDir, "prompts", "variants")}
	if e.wsDir != "" {
		variantDirs = append(variantDirs, filepath.Join(e.wsDir, "prompts", "variants"))
	}

	for _, dir := range variantDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			continue
		}
		entries, _ := os.ReadDir(dir)
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			comp, err := ParsePromptFile(path)
			if err != nil {
				e.logger.Warn("failed to parse variant", zap.String("file", path), zap.Error(err))
				continue
			}
			key := strings.TrimSuffix(entry.Name(), ".md")
			e.variants[key] = comp
			e.logger.Info("loaded prompt variant", zap.String("key", key), zap.String("from", dir))
		}
	}

	if err := os.MkdirAll(e.hostsDir, 0755); err != nil {
		e.logger.Warn("failed to create hosts dir", zap.String("dir", e.hostsDir), zap.Error(err))
	}

	layers := 1
	if e.wsDir != "" {
		if _, err := os.Stat(e.wsDir); err == nil {
			layers = 2
		}
	}

	e.logger.Info("prompt engine initialized",
		zap.Bool("has_soul", e.soul != ""),
		zap.Int("components", len(e.components)),
		zap.Int("variants", len(e.variants)),
		zap.Int("layers", layers),
	)

	return nil
}

// Assemble builds the final system prompt from discovered components,
// filtered by the runtime context.
//
// Assembly order:
//  1. Core SOUL (persona — always first, highest attention)
//  2. Runtime environment block (host, OS, shell, model, execution mode)
//  3. Host profile notes (hosts/<host_id>.md, rendered to plain text)
//  4. Tooling section
//  5. Matched model variant
//  6. Shared components, sorted by priority
//  7. Long-term memory (Knowledge Store snippets)
//  8. Carried-over context (document context + previous failed attempts)
//  9. User rules (from config)
//  10. Token budget truncation if needed
func (e *PromptEngine) Assemble(ctx context.Context, pc PromptContext) string {
	if pc.DetectedIntent == IntentGeneral && pc.UserMessage != "" {
		pc.DetectedIntent = AnalyzeIntent(pc.UserMessage)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var sections []string

	// 1. Core SOUL — always first
	if e.soul != "" {
		sections = append(sections, e.soul)
	}

	// 2. Runtime environment block
	runtimeBlock := BuildRuntimeBlock(RuntimeBlockOptions{
		ModelName:     pc.ModelName,
		Workspace:     pc.Workspace,
		HostID:        pc.HostID,
		TerminalType:  pc.TerminalType,
		SystemInfo:    pc.SystemInfo,
		ExecutionMode: pc.ExecutionMode,
	})
	sections = append(sections, runtimeBlock)

	// 3. Host profile notes
	if hostProfile := e.loadHostProfile(pc.HostID); hostProfile != "" {
		sections = append(sections, "## Host Profile\n\n"+hostProfile)
	}

	// 4. Tooling section
	if toolSection := buildToolingSection(pc); toolSection != "" {
		sections = append(sections, toolSection)
	}

	// 5. Model variant
	if variant := e.matchVariant(pc.ModelName); variant != nil {
		sections = append(sections, variant.Content)
	}

	// 6. Shared components, filtered and sorted by priority
	eligible := e.filterComponents(pc)
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].Priority < eligible[j].Priority
	})
	for _, comp := range eligible {
		sections = append(sections, comp.Content)
	}

	// 7. Long-term Memory
	if memSection := e.buildMemorySection(ctx, pc); memSection != "" {
		sections = append(sections, memSection)
	}

	// 8. Carried-over context
	if carried := pc.buildCarriedContextSection(); carried != "" {
		sections = append(sections, carried)
	}

	// 9. User rules (from config)
	if pc.UserRules != "" {
		sections = append(sections, "## User Custom Rules\n"+pc.UserRules)
	}

	result := strings.Join(sections, "\n\n---\n\n")

	// 10. Token budget truncation (rough: 1 token ≈ 4 chars)
	if pc.MaxTokenBudget > 0 {
		maxChars := pc.MaxTokenBudget * 4
		if originalChars := len(result); originalChars > maxChars {
			result = result[:maxChars]
			result += "\n\n[System prompt truncated due to token budget]"
			e.logger.Warn("system prompt truncated",
				zap.Int("budget_tokens", pc.MaxTokenBudget),
				zap.Int("original_chars", originalChars),
			)
		}
	}

	return result
}

// loadHostProfile reads hosts/<host_id>.md (system, then workspace override)
// and renders it to plain text. Returns "" if hostID is empty or no note
// file exists — the run still gets the factual runtime block either way.
func (e *PromptEngine) loadHostProfile(hostID string) string {
	if hostID == "" {
		return ""
	}

	paths := []string{filepath.Join(e.hostsDir, hostID+".md")}
	if e.wsDir != "" {
		paths = append(paths, filepath.Join(e.wsDir, "hosts", hostID+".md"))
	}

	var content string
	for _, p := range paths {
		if data, err := os.ReadFile(p); err == nil {
			content = string(data)
		}
	}
	if content == "" {
		return ""
	}

	return renderMarkdownPlain([]byte(content))
}

// buildMemorySection recalls Knowledge Store entries scoped to this host
// and the current task, rendering any Markdown content to plain text.
func (e *PromptEngine) buildMemorySection(ctx context.Context, pc PromptContext) string {
	var parts []string

	for _, snippet := range pc.KnowledgeSnippets {
		if s := strings.TrimSpace(snippet); s != "" {
			parts = append(parts, "- "+renderMarkdownPlain([]byte(s)))
		}
	}

	if e.knowledge != nil && e.knowledge.IsEnabled() && pc.HostID != "" {
		recalled, err := e.knowledge.GetHostMemoriesForPrompt(ctx, pc.HostID, pc.UserMessage, 5)
		if err != nil {
			e.logger.Warn("failed to recall host memories", zap.String("host_id", pc.HostID), zap.Error(err))
		}
		for _, m := range recalled {
			if s := strings.TrimSpace(m); s != "" {
				parts = append(parts, "- "+renderMarkdownPlain([]byte(s)))
			}
		}
	}

	if len(parts) == 0 {
		return ""
	}

	return "## Long-term Memory\n\n" + strings.Join(parts, "\n")
}

// buildToolingSection generates the "## Tooling" and "## Tool Call Style"
// sections: a quick-reference table of available tools plus efficiency
// guidelines for tool usage.
func buildToolingSection(ctx PromptContext) string {
	if len(ctx.RegisteredTools) == 0 {
		return ""
	}

	var sb strings.Builder

	sb.WriteString("## Tooling\n\n")
	sb.WriteString("Tool availability (filtered by policy). Names are case-sensitive.\n\n")

	for _, name := range ctx.RegisteredTools {
		if summary, ok := ctx.ToolSummaries[name]; ok && summary != "" {
			sb.WriteString("- " + name + ": " + firstSentence(summary) + "\n")
		} else {
			sb.WriteString("- " + name + "\n")
		}
	}

	sb.WriteString("\n## Tool Call Style\n\n")
	sb.WriteString("Default: do not narrate routine, low-risk tool calls (just call the tool).\n")
	sb.WriteString("Narrate only when it helps: multi-step work, complex or unexpected situations, sensitive actions (deletions, destructive commands), or when the user explicitly asks.\n")
	sb.WriteString("Keep narration brief and value-dense; avoid repeating terminal output the user can already see.\n")
	sb.WriteString("\nBest practices:\n")
	sb.WriteString("- Read the actual terminal state (check_terminal_status / get_terminal_context) before deciding the next step instead of guessing at prior output.\n")
	sb.WriteString("- Combine related commands into one execute_command where the shell allows it, rather than several round trips.\n")
	sb.WriteString("- After a command whose risk level required confirmation, wait for the decision before retrying — don't route around a rejection.\n")

	return sb.String()
}

// firstSentence extracts the first sentence from a description string.
// Truncates at first period, newline, or 80 chars, whichever comes first.
func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if idx := strings.Index(s, ". "); idx >= 0 && idx < 80 {
		return s[:idx+1]
	}
	if len(s) > 80 {
		return s[:80] + "…"
	}
	return s
}

// filterComponents returns components whose requirements are satisfied.
func (e *PromptEngine) filterComponents(ctx PromptContext) []*PromptComponent {
	result := make([]*PromptComponent, 0, len(e.components))

	for _, comp := range e.components {
		if e.meetsRequirements(comp, ctx) {
			result = append(result, comp)
		}
	}

	return result
}

// meetsRequirements checks if a component's conditions are met (AND logic).
func (e *PromptEngine) meetsRequirements(comp *PromptComponent, ctx PromptContext) bool {
	req := comp.Requires
	if req == nil {
		return true // no requirements = always load
	}

	if len(req.Tools) > 0 {
		for _, t := range req.Tools {
			if !ctx.HasTool(t) {
				return false
			}
		}
	}

	if len(req.AnyTool) > 0 {
		if !ctx.HasAnyTool(req.AnyTool) {
			return false
		}
	}

	if len(req.Intent) > 0 {
		intentStr := ctx.DetectedIntent.String()
		matched := false
		for _, i := range req.Intent {
			if i == intentStr {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	if len(req.Model) > 0 {
		modelLower := strings.ToLower(ctx.ModelName)
		matched := false
		for _, m := range req.Model {
			if strings.Contains(modelLower, strings.ToLower(m)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}

	return true
}

// matchVariant returns a variant whose key occurs in the model name
// (case-insensitive), else the "default" variant. When several keys occur,
// which of them is returned is not defined.
func (e *PromptEngine) matchVariant(modelName string) *PromptComponent {
	if modelName == "" {
		return e.variants["default"]
	}

	lower := strings.ToLower(modelName)

	for key, v := range e.variants {
		if strings.Contains(lower, strings.ToLower(key)) {
			return v
		}
	}

	return e.variants["default"]
}

// AnalyzeIntent detects the task type from the user's message, so
// components can gate on what the user is actually trying to do rather
// than just which tools are registered.
func AnalyzeIntent(message string) TaskIntent {
	msg := strings.ToLower(message)

	fileOpsKeywords := []string{
		"read file", "write file", "edit", "patch", "create file",
		"config file", "append to", "contents of",
	}
	for _, kw := range fileOpsKeywords {
		if strings.Contains(msg, kw) {
			return IntentFileOps
		}
	}

	diagnoseKeywords := []string{
		"error", "fail", "crash", "debug", "broken", "not working",
		"exception", "traceback", "exit code", "why did",
	}
	for _, kw := range diagnoseKeywords {
		if strings.Contains(msg, kw) {
			return IntentDiagnose
		}
	}

	remoteKeywords := []string{
		"ssh", "remote host", "another host", "every host", "all hosts",
		"connect to", "across hosts", "fleet",
	}
	for _, kw := range remoteKeywords {
		if strings.Contains(msg, kw) {
			return IntentRemoteOps
		}
	}

	return IntentGeneral
}

// ComponentCount returns the number of loaded components (for diagnostics).
func (e *PromptEngine) ComponentCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.components)
}

// VariantCount returns the number of loaded variants.
func (e *PromptEngine) VariantCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.variants)
}

// HasSoul returns true if a soul.md was loaded.
func (e *PromptEngine) HasSoul() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.soul != ""
}

// Reload reloads all prompt files from disk (hot-reload support).
func (e *PromptEngine) Reload() error {
	e.logger.Info("reloading prompt engine")
	return e.Discover()
}
