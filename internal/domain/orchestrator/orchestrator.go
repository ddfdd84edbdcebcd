// Package orchestrator implements the meta-agent described in spec §4.8:
// its own tool-calling loop, driven by the same Agent Run Scheduler as a
// regular run, but against a small fixed tool set that dispatches work to
// Worker runs on other terminals instead of touching a shell directly.
//
// Grounded on the teacher's internal/domain/agent/spawner.go (parent/child
// bookkeeping under a mutex, one entry per managed unit) and dag.go (a
// semaphore-bounded goroutine pool driving independent units to
// completion) — generalized here from spawning in-process sub-agents to
// dispatching Worker runs across terminals.
package orchestrator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/termpilot/engine/internal/domain/entity"
	"github.com/termpilot/engine/internal/domain/service"
	domaintool "github.com/termpilot/engine/internal/domain/tool"
	"github.com/termpilot/engine/internal/domain/valueobject"
)

// Config bounds how aggressively an Orchestrator may fan work out.
type Config struct {
	MaxParallelWorkers int           // semaphore size for parallel_dispatch; default 5
	MaxIterations      int           // hard cap on the meta-loop's own steps; default 50
	WorkerTimeout      time.Duration // per-tool timeout the scheduler applies to dispatch_task/parallel_dispatch
}

// DefaultConfig returns spec §4.8's defaults.
func DefaultConfig() Config {
	return Config{
		MaxParallelWorkers: 5,
		MaxIterations:      50,
		WorkerTimeout:      10 * time.Minute,
	}
}

// Orchestrator drives one OrchestratorRun at a time through its own
// Scheduler loop. It owns no state across runs — each Run call builds a
// fresh OrchestratorRun, tool registry, and Scheduler.
type Orchestrator struct {
	hosts     HostLister
	terminals TerminalConnector
	workers   WorkerSpawner
	config    Config
	logger    *zap.Logger
}

// New creates an Orchestrator over the given host directory, terminal
// connector, and worker spawner.
func New(hosts HostLister, terminals TerminalConnector, workers WorkerSpawner, config Config, logger *zap.Logger) *Orchestrator {
	if config.MaxParallelWorkers <= 0 {
		config.MaxParallelWorkers = 5
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = 50
	}
	if config.WorkerTimeout <= 0 {
		config.WorkerTimeout = 10 * time.Minute
	}
	return &Orchestrator{
		hosts:     hosts,
		terminals: terminals,
		workers:   workers,
		config:    config,
		logger:    logger,
	}
}

// RunResult is what one orchestrator meta-loop produces.
type RunResult struct {
	OrchestratorRun *entity.OrchestratorRun
	FinalContent    string
	TotalSteps      int
}

// Run drives the meta-agent loop for one task against llm, confirming
// risky tool calls (there should be none at the orchestrator's own level,
// but confirmation stays wired for parity with a regular run) through
// confirmation. onEvent, if non-nil, is called for every SchedulerEvent the
// underlying Scheduler emits — the orchestrator's own "steps".
func (o *Orchestrator) Run(
	ctx context.Context,
	id, task, systemPrompt string,
	llm service.LLMClient,
	confirmation *service.ConfirmationHook,
	onEvent func(service.SchedulerEvent),
) (*RunResult, error) {
	agentConfig := entity.AgentConfig{
		MaxSteps:      o.config.MaxIterations,
		ExecutionMode: valueobject.ExecutionRelaxed,
	}

	run := entity.NewOrchestratorRun(id, task, agentConfig)

	registry := domaintool.NewInMemoryRegistry()
	toolset := newToolSet(run, o.hosts, o.terminals, o.workers, o.config, o.logger)
	for _, t := range toolset.tools() {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}

	executor := service.NewToolExecutorAdapter(registry, o.logger)
	schedConfig := service.DefaultSchedulerConfig()
	schedConfig.ToolTimeout = o.config.WorkerTimeout
	schedConfig.MaxParallelTools = 1 // dispatch_task/parallel_dispatch manage their own fan-out

	sched := service.NewScheduler(llm, executor, confirmation, schedConfig, o.logger)

	agentRun := entity.NewAgentRun(id, agentConfig, entity.AgentContext{})
	agentRun.Messages = append(agentRun.Messages, entity.NewMessage(entity.RoleUser, task))

	result, eventCh := sched.Run(ctx, agentRun, systemPrompt, nil)
	for event := range eventCh {
		if onEvent != nil {
			onEvent(event)
		}
	}

	now := time.Now()
	run.CompletedAt = &now
	run.Messages = agentRun.Messages
	if toolset.reportedResult != "" {
		run.Result = toolset.reportedResult
		run.Status = entity.OrchestratorCompleted
	} else if result.FinalContent != "" {
		run.Result = result.FinalContent
		run.Status = entity.OrchestratorCompleted
	} else {
		run.Status = entity.OrchestratorFailed
	}

	return &RunResult{
		OrchestratorRun: run,
		FinalContent:    run.Result,
		TotalSteps:      result.TotalSteps,
	}, nil
}
