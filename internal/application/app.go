// Package application wires the domain services and infrastructure
// adapters into a runnable engine. It is the only layer that knows about
// every concrete collaborator at once — the domain packages only see
// interfaces, and cmd/ only sees this package.
package application

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/termpilot/engine/internal/domain/entity"
	"github.com/termpilot/engine/internal/domain/memory"
	"github.com/termpilot/engine/internal/domain/orchestrator"
	"github.com/termpilot/engine/internal/domain/service"
	domainterminal "github.com/termpilot/engine/internal/domain/terminal"
	domaintool "github.com/termpilot/engine/internal/domain/tool"
	"github.com/termpilot/engine/internal/infrastructure/config"
	"github.com/termpilot/engine/internal/infrastructure/embedding"
	"github.com/termpilot/engine/internal/infrastructure/llm"
	infratool "github.com/termpilot/engine/internal/infrastructure/tool"
	"github.com/termpilot/engine/internal/infrastructure/vectorstore"
	"github.com/termpilot/engine/internal/infrastructure/prompt"

	// Provider factories self-register via init(); the router looks them
	// up by the Type string on each configured provider entry.
	_ "github.com/termpilot/engine/internal/infrastructure/llm/anthropic"
	_ "github.com/termpilot/engine/internal/infrastructure/llm/gemini"
	_ "github.com/termpilot/engine/internal/infrastructure/llm/openai"
)

// App owns every long-lived collaborator a run is built from: the LLM
// router, the terminal directory, the knowledge store, the prompt engine,
// and the Orchestrator. A Run (see run.go) is built fresh per task from
// these — only the collaborators in this struct outlive a single run.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	llmRouter    *llm.Router
	terminals    *terminalDirectory
	fileBackend  infratool.FileBackend
	knowledge    memory.KnowledgeStore
	memoryMgr    *memory.MemoryManager
	promptEngine *prompt.PromptEngine
	orch         *orchestrator.Orchestrator

	approvalFunc service.ApprovalFunc
}

// NewApp builds the full engine for gateway mode (HTTP/WebSocket/gRPC
// interfaces, once that layer is adapted, sit on top of this).
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	return buildApp(cfg, logger)
}

// NewAppCLI builds the engine for single-user interactive CLI mode. It is
// currently identical to NewApp — the CLI's only difference from the
// gateway is which interfaces it starts on top, not how the engine itself
// is wired.
func NewAppCLI(cfg *config.Config, logger *zap.Logger) (*App, error) {
	return buildApp(cfg, logger)
}

func buildApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := config.Bootstrap(logger); err != nil {
		return nil, fmt.Errorf("bootstrap config home: %w", err)
	}

	router := llm.NewRouter(logger)
	// The router tries providers in insertion order, so add them lowest
	// Priority first; equal priorities keep their config order.
	providers := append([]config.LLMProviderConfig(nil), cfg.Agent.Providers...)
	sort.SliceStable(providers, func(i, j int) bool { return providers[i].Priority < providers[j].Priority })
	for _, p := range providers {
		provider, err := llm.CreateProvider(llm.ProviderConfig{
			Name:     p.Name,
			Type:     p.Type,
			BaseURL:  p.BaseURL,
			APIKey:   p.APIKey,
			Models:   p.Models,
			Priority: p.Priority,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("configure LLM provider %q: %w", p.Name, err)
		}
		router.AddProvider(provider)
	}

	knowledge, memoryMgr := buildKnowledgeStore(cfg, logger)

	workspace := cfg.Agent.Workspace
	if workspace == "" {
		workspace = "."
	}
	promptEngine := prompt.NewPromptEngine(workspace, knowledge, logger)
	if err := promptEngine.Discover(); err != nil {
		logger.Warn("prompt component discovery failed, continuing with soul only", zap.Error(err))
	}

	terminals := newTerminalDirectory()
	for _, h := range cfg.Hosts.Entries {
		terminals.registerUnbound(h.ID, h.TerminalType)
	}
	if !terminals.has("local") {
		terminals.registerUnbound("local", "local")
	}

	app := &App{
		cfg:          cfg,
		logger:       logger,
		llmRouter:    router,
		terminals:    terminals,
		fileBackend:  infratool.LocalFileBackend{},
		knowledge:    knowledge,
		memoryMgr:    memoryMgr,
		promptEngine: promptEngine,
		approvalFunc: autoApprove,
	}

	app.orch = orchestrator.New(
		&staticHostLister{entries: cfg.Hosts.Entries},
		&directoryTerminalConnector{dir: terminals},
		&schedulerWorkerSpawner{app: app},
		orchestrator.DefaultConfig(),
		logger,
	)

	return app, nil
}

// buildKnowledgeStore wires the Knowledge Store per spec §4.6's memory
// config: an Ollama embedder over a LanceDB store when memory.enabled and
// store_type=lancedb, falling back to the in-process vector store
// otherwise (e.g. local CLI runs with no Ollama daemon available).
func buildKnowledgeStore(cfg *config.Config, logger *zap.Logger) (memory.KnowledgeStore, *memory.MemoryManager) {
	if !cfg.Memory.Enabled {
		mgr := memory.NewMemoryManager(memory.NewInMemoryVectorStore(), memory.NewSimpleEmbedder(64))
		return memory.NewDefaultKnowledgeStore(mgr, false), mgr
	}

	if cfg.Memory.StoreType == "lancedb" {
		embedder, err := embedding.NewOllamaEmbedder(cfg.Memory.OllamaURL, cfg.Memory.EmbedModel, logger)
		if err == nil {
			store, serr := vectorstore.NewLanceDBVectorStore(cfg.Memory.StorePath, embedder.Dimension(), logger)
			if serr == nil {
				mgr := memory.NewMemoryManager(store, embedder)
				return memory.NewDefaultKnowledgeStore(mgr, true), mgr
			}
			logger.Warn("LanceDB store unavailable, falling back to in-memory knowledge store", zap.Error(serr))
		} else {
			logger.Warn("Ollama embedder unavailable, falling back to in-memory knowledge store", zap.Error(err))
		}
	}

	mgr := memory.NewMemoryManager(memory.NewInMemoryVectorStore(), memory.NewSimpleEmbedder(64))
	return memory.NewDefaultKnowledgeStore(mgr, true), mgr
}

// SetApprovalFunc overrides the confirmation callback every future Run uses
// to gate risky tool calls. The default auto-approves everything, which is
// only appropriate for a non-interactive or explicitly YOLO'd caller —
// interactive front ends (CLI, HTTP, WebSocket) must call this during
// startup before the first Run.
func (a *App) SetApprovalFunc(fn service.ApprovalFunc) {
	if fn == nil {
		fn = autoApprove
	}
	a.approvalFunc = fn
}

func autoApprove(ctx context.Context, toolName string, risk entity.RiskLevel, hint string) (bool, error) {
	return true, nil
}

// Logger returns the engine-wide logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// PromptEngine returns the shared Prompt Builder.
func (a *App) PromptEngine() *prompt.PromptEngine { return a.promptEngine }

// Orchestrator returns the meta-agent (spec §4.8) driving multi-host runs.
func (a *App) Orchestrator() *orchestrator.Orchestrator { return a.orch }

// BindTerminal attaches a live Terminal Abstraction instance (built by the
// interfaces layer once a PTY/SSH transport connects) to a host id, making
// it usable by subsequent Runs and by the Orchestrator's dispatch tools.
func (a *App) BindTerminal(hostID string, t domainterminal.Terminal) {
	a.terminals.bind(hostID, t)
}

// ToolCount reports how many tools a Run against the local terminal would
// register, without building a full run — used by interactive front ends
// to print a startup summary.
func (a *App) ToolCount() int {
	registry := domaintool.NewInMemoryRegistry()
	infratool.RegisterAllTools(a.toolDeps(registry, "local", nil))
	return len(registry.List())
}

// Start brings up whatever long-running interfaces sit on top of the
// engine. No HTTP/WebSocket/gRPC listener is wired yet — that surface
// still lives in the untouched internal/interfaces packages pending their
// own adaptation pass — so Start today only confirms the engine's own
// collaborators came up cleanly.
func (a *App) Start(ctx context.Context) error {
	a.logger.Info("engine started",
		zap.Bool("knowledge_enabled", a.knowledge.IsEnabled()),
		zap.Int("hosts", len(a.cfg.Hosts.Entries)),
	)
	return nil
}

// Stop releases resources Start acquired. Safe to call even if Start
// never ran.
func (a *App) Stop(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_ = stopCtx
	a.logger.Info("engine stopped")
	return nil
}
