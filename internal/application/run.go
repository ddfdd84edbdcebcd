package application

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/termpilot/engine/internal/domain/entity"
	"github.com/termpilot/engine/internal/domain/planner"
	"github.com/termpilot/engine/internal/domain/service"
	domaintool "github.com/termpilot/engine/internal/domain/tool"
	"github.com/termpilot/engine/internal/infrastructure/config"
	"github.com/termpilot/engine/internal/infrastructure/prompt"
	infratool "github.com/termpilot/engine/internal/infrastructure/tool"
)

// runBinding adapts one entity.AgentRun to the per-run collaborator
// interfaces the tool layer needs (PlanHolder, RunSignal, UserReplyWaiter):
// a run owns exactly one of each, so the adapter just forwards to the
// run's own fields and a reply channel.
type runBinding struct {
	run     *entity.AgentRun
	replyCh chan string
}

func newRunBinding(run *entity.AgentRun) *runBinding {
	return &runBinding{run: run, replyCh: make(chan string, 1)}
}

func (b *runBinding) CurrentPlan() *entity.Plan { return b.run.CurrentPlan }
func (b *runBinding) SetPlan(p *entity.Plan)     { b.run.CurrentPlan = p }

func (b *runBinding) Aborted() bool                 { return b.run.Aborted }
func (b *runBinding) HasPendingUserMessage() bool   { return len(b.run.PendingUserMessages) > 0 }
func (b *runBinding) RealtimeOutput() []string      { return b.run.RealtimeOutputBuffer }

func (b *runBinding) WaitForUserReply(ctx context.Context, timeout time.Duration) (reply string, timedOut bool) {
	select {
	case reply := <-b.replyCh:
		return reply, false
	case <-time.After(timeout):
		return "", true
	case <-ctx.Done():
		return "", true
	}
}

// DeliverReply wakes a pending ask_user call with the user's answer.
func (b *runBinding) DeliverReply(reply string) {
	select {
	case b.replyCh <- reply:
	default:
	}
}

// Run is one task bound to one terminal: its own tool registry (scoped by
// PlanHolder/RunSignal/UserReplyWaiter, none of which may be shared across
// runs), its own Scheduler, and the assembled system prompt it starts
// from.
type Run struct {
	AgentRun     *entity.AgentRun
	Registry     domaintool.Registry
	binding      *runBinding
	scheduler    *service.Scheduler
	systemPrompt string
	userMsgCh    chan string
}

// Execute drives the run's Scheduler to completion, streaming events on
// the returned channel until it closes.
func (r *Run) Execute(ctx context.Context) (*service.RunResult, <-chan service.SchedulerEvent) {
	return r.scheduler.Run(ctx, r.AgentRun, r.systemPrompt, r.userMsgCh)
}

// SendUserMessage queues an additional message for a run already in
// progress (spec §4.7: treated as a pending_user step, not a failure).
func (r *Run) SendUserMessage(text string) {
	select {
	case r.userMsgCh <- text:
	default:
	}
}

// DeliverUserReply answers a pending ask_user call.
func (r *Run) DeliverUserReply(reply string) { r.binding.DeliverReply(reply) }

// toolDeps builds the ToolLayerDeps for hostID, reusing the app's shared
// collaborators (terminal directory, file backend, knowledge store) and
// the run-scoped ones (plan/reply/signal) the caller supplies. binding may
// be nil for a deps preview that never executes a tool (see ToolCount).
func (a *App) toolDeps(registry domaintool.Registry, hostID string, binding *runBinding) infratool.ToolLayerDeps {
	term, ok := a.terminals.get(hostID)
	if !ok {
		term, ok = a.terminals.get("local")
	}
	deps := infratool.ToolLayerDeps{
		Registry:       registry,
		Logger:         a.logger,
		Terminal:       term,
		FileBackend:    a.fileBackend,
		KnowledgeStore: a.knowledge,
		HostID:         hostID,
	}
	if binding != nil {
		deps.RealtimeOutput = binding
		deps.UserReplyWaiter = binding
		deps.RunSignal = binding
		deps.PlanHolder = binding
	}
	mgr := infratool.NewMCPManager(config.HomeDir()+"/mcp.json", registry, a.logger)
	mgr.InitFromConfig()
	deps.MCPManager = mgr
	return deps
}

// NewRun builds a fresh Run for task against hostID: a scoped tool
// registry, a Scheduler wired to the LLM router and a confirmation gate,
// and an assembled system prompt.
func (a *App) NewRun(ctx context.Context, task, hostID string, agentCtx entity.AgentContext, cfg entity.AgentConfig) (*Run, error) {
	if hostID == "" {
		hostID = "local"
	}
	agentCtx.HostID = hostID
	if agentCtx.TerminalType == "" {
		if term, ok := a.terminals.get(hostID); ok {
			agentCtx.TerminalType = term.TerminalType()
		}
	}

	run := entity.NewAgentRun(uuid.NewString(), cfg, agentCtx)
	firstTurn := task
	if nudge := planner.BuildPlanningInstruction(planner.EstimateComplexity(task)); nudge != "" {
		firstTurn = task + "\n\n" + nudge
	}
	run.Messages = append(run.Messages, entity.NewMessage(entity.RoleUser, firstTurn))

	binding := newRunBinding(run)
	registry := domaintool.NewInMemoryRegistry()
	infratool.RegisterAllTools(a.toolDeps(registry, hostID, binding))
	executor := infratool.NewExecutor(registry, a.logger)

	schedCfg := a.schedulerConfig()
	schedCfg.Model = cfg.Model.FullModelName()
	confirmation := service.NewConfirmationHook(cfg, a.approvalFunc, a.logger)
	scheduler := service.NewScheduler(a.llmRouter, executor, confirmation, schedCfg, a.logger)

	defs := registry.List()
	summaries := make(map[string]string, len(defs))
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
		summaries[d.Name] = d.Description
	}

	promptCtx := prompt.PromptContext{
		RegisteredTools:      names,
		ToolSummaries:        summaries,
		ModelName:            schedCfg.Model,
		UserMessage:          task,
		Workspace:            a.cfg.Agent.Workspace,
		MaxTokenBudget:       schedCfg.ContextMaxTokens,
		DetectedIntent:       prompt.AnalyzeIntent(task),
		HostID:               hostID,
		TerminalType:         agentCtx.TerminalType,
		SystemInfo:           agentCtx.SystemInfo,
		ExecutionMode:        cfg.ExecutionMode,
		DocumentContext:      agentCtx.DocumentContext,
		PreviousFailedAgents: agentCtx.PreviousFailedAgents,
	}
	systemPrompt := a.promptEngine.Assemble(ctx, promptCtx)

	return &Run{
		AgentRun:     run,
		Registry:     registry,
		binding:      binding,
		scheduler:    scheduler,
		systemPrompt: systemPrompt,
		userMsgCh:    make(chan string, 8),
	}, nil
}

// schedulerConfig maps config.AgentConfig's runtime/guardrail sections
// onto a service.SchedulerConfig, falling back to spec §4.7's defaults for
// anything left unset.
func (a *App) schedulerConfig() service.SchedulerConfig {
	c := service.DefaultSchedulerConfig()
	rc := a.cfg.Agent.Runtime
	gc := a.cfg.Agent.Guardrails

	if rc.ToolTimeout > 0 {
		c.ToolTimeout = rc.ToolTimeout
	}
	if rc.MaxTokenBudget > 0 {
		c.MaxTokenBudget = rc.MaxTokenBudget
	}
	if rc.MaxRetries > 0 {
		c.MaxRetries = rc.MaxRetries
	}
	if rc.RetryBaseWait > 0 {
		c.RetryBaseWait = rc.RetryBaseWait
	}
	if gc.ContextMaxTokens > 0 {
		c.ContextMaxTokens = gc.ContextMaxTokens
	}

	policies := make(map[string]*service.ModelPolicyOverride, len(a.cfg.Agent.ModelPolicies))
	for key, o := range a.cfg.Agent.ModelPolicies {
		policies[key] = &service.ModelPolicyOverride{
			RepairToolPairing:   o.RepairToolPairing,
			EnforceTurnOrdering: o.EnforceTurnOrdering,
			ReasoningFormat:     o.ReasoningFormat,
			ProgressInterval:    o.ProgressInterval,
			ProgressEscalation:  o.ProgressEscalation,
			PromptStyle:         o.PromptStyle,
			SystemRoleSupport:   o.SystemRoleSupport,
			ThinkingTagHint:     o.ThinkingTagHint,
		}
	}
	c.ModelPolicies = policies

	return c
}
