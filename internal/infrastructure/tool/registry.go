package tool

import (
	"github.com/termpilot/engine/internal/domain/memory"
	domaintool "github.com/termpilot/engine/internal/domain/tool"
	"go.uber.org/zap"
)

// ToolLayerDeps aggregates every external collaborator the terminal
// automation tool set needs. This is the single configuration point for
// the whole tool layer — adding a new tool means adding its dependency
// here and wiring it in RegisterAllTools.
type ToolLayerDeps struct {
	Registry domaintool.Registry
	Logger   *zap.Logger

	// Terminal — the single session every terminal-driving tool targets.
	Terminal       TerminalSession
	RealtimeOutput RealtimeOutputSource

	// Filesystem — local by default; an SSH host's FileBackend only
	// supports overwrite/create/append.
	FileBackend FileBackend

	// Knowledge Store — nil disables remember_info/search_knowledge/get_knowledge_doc.
	KnowledgeStore memory.KnowledgeStore
	HostID         string

	// User interaction collaborators.
	UserReplyWaiter UserReplyWaiter
	RunSignal       RunSignal

	// Plan slot for create_plan/update_plan/clear_plan.
	PlanHolder PlanHolder

	// MCP (nil = no MCP support).
	MCPManager *MCPManager
}

// RegisterAllTools registers the full terminal automation tool set. This
// is the only tool registration entry point — adding a new tool means
// adding it here.
func RegisterAllTools(deps ToolLayerDeps) int {
	var tools []domaintool.Tool

	// ── Terminal control ──
	tools = append(tools,
		NewExecuteCommandTool(deps.Terminal, deps.Logger),
		NewCheckTerminalStatusTool(deps.Terminal),
		NewGetTerminalContextTool(deps.RealtimeOutput),
		NewSendControlKeyTool(deps.Terminal),
		NewSendInputTool(deps.Terminal),
	)

	// ── Files ──
	if deps.FileBackend != nil {
		tools = append(tools,
			NewReadFileTool(deps.FileBackend),
			NewWriteFileTool(deps.FileBackend),
		)
	}

	// ── Knowledge ──
	if deps.KnowledgeStore != nil {
		tools = append(tools,
			NewRememberInfoTool(deps.KnowledgeStore, deps.HostID),
			NewSearchKnowledgeTool(deps.KnowledgeStore),
			NewGetKnowledgeDocTool(deps.KnowledgeStore),
		)
	}

	// ── Planning ──
	if deps.PlanHolder != nil {
		tools = append(tools,
			NewCreatePlanTool(deps.PlanHolder),
			NewUpdatePlanTool(deps.PlanHolder),
			NewClearPlanTool(deps.PlanHolder),
		)
	}

	// ── User interaction ──
	if deps.UserReplyWaiter != nil {
		tools = append(tools, NewAskUserTool(deps.UserReplyWaiter))
	}
	tools = append(tools, NewWaitTool(deps.RunSignal))

	// ── MCP management ──
	if deps.MCPManager != nil {
		tools = append(tools, NewMCPManageTool(deps.MCPManager, deps.Logger))
	}

	registered := 0
	for _, t := range tools {
		if err := deps.Registry.Register(t); err != nil {
			deps.Logger.Warn("failed to register tool", zap.String("tool", t.Name()), zap.Error(err))
			continue
		}
		deps.Logger.Info("registered tool", zap.String("tool", t.Name()))
		registered++
	}

	// MCP servers already configured in mcp.json register their own tools.
	if deps.MCPManager != nil {
		deps.MCPManager.InitFromConfig()
	}

	deps.Logger.Info("tool layer initialized", zap.Int("total_registered", registered))
	return registered
}
