package application

import (
	"context"
	"fmt"

	"github.com/termpilot/engine/internal/domain/entity"
	"github.com/termpilot/engine/internal/domain/orchestrator"
	"github.com/termpilot/engine/internal/domain/service"
	"github.com/termpilot/engine/internal/infrastructure/config"
)

// staticHostLister exposes the configured host directory to the
// Orchestrator's list_available_hosts tool. Grounded on config.HostsConfig;
// a live inventory/SSH-config backend would satisfy the same HostLister
// interface without the Orchestrator or its tools changing.
type staticHostLister struct {
	entries []config.HostEntryConfig
}

func (l *staticHostLister) ListHosts(ctx context.Context) ([]orchestrator.HostInfo, error) {
	out := make([]orchestrator.HostInfo, 0, len(l.entries))
	for _, h := range l.entries {
		out = append(out, orchestrator.HostInfo{
			ID:           h.ID,
			Name:         h.Name,
			Address:      h.Address,
			TerminalType: entity.TerminalType(h.TerminalType),
		})
	}
	return out, nil
}

// directoryTerminalConnector satisfies the Orchestrator's connect_terminal
// / close_terminal tools against the terminalDirectory this engine already
// maintains. Connecting a remote host requires a live SSH/PTY transport to
// already be bound (e.g. by the interfaces layer); this adapter never
// dials one itself.
type directoryTerminalConnector struct {
	dir *terminalDirectory
}

func (c *directoryTerminalConnector) Connect(ctx context.Context, hostID string) (string, error) {
	if _, ok := c.dir.get(hostID); !ok {
		return "", fmt.Errorf("no terminal directory entry for host %q", hostID)
	}
	return hostID, nil
}

func (c *directoryTerminalConnector) Close(ctx context.Context, terminalID string) error {
	return nil
}

// schedulerWorkerSpawner runs a Worker Agent Run (a plain App Run in
// worker mode) against one terminal and blocks until it completes,
// forwarding SchedulerEvents to onStep as synthesized Steps when the
// Orchestrator asked for progress reporting.
type schedulerWorkerSpawner struct {
	app *App
}

func (s *schedulerWorkerSpawner) SpawnWorker(
	ctx context.Context,
	terminalID, task string,
	reportProgress bool,
	onStep func(entity.Step),
) orchestrator.WorkerResult {
	cfg := entity.DefaultAgentConfig()
	run, err := s.app.NewRun(ctx, task, terminalID, entity.AgentContext{}, cfg)
	if err != nil {
		return orchestrator.WorkerResult{Err: fmt.Errorf("build worker run: %w", err)}
	}

	result, eventCh := run.Execute(ctx)
	var seq int64
	for event := range eventCh {
		if reportProgress && onStep != nil {
			seq++
			onStep(stepFromEvent(seq, event))
		}
	}
	if result == nil {
		return orchestrator.WorkerResult{Err: fmt.Errorf("worker run against %q produced no result", terminalID)}
	}
	return orchestrator.WorkerResult{Output: result.FinalContent, ToolsUsed: result.ToolsUsed}
}

// stepFromEvent renders a SchedulerEvent as the Step shape the
// Orchestrator's worker_options.report_progress path streams back to the
// caller.
func stepFromEvent(id int64, event service.SchedulerEvent) entity.Step {
	step := entity.NewStep(id, stepKindFor(event.Type), event.Content)
	if event.ToolCall != nil {
		step.ToolName = event.ToolCall.Name
		step.ToolArgs = event.ToolCall.Arguments
		step.ToolResult = event.ToolCall.Output
	}
	if event.Error != "" {
		step.Content = event.Error
	}
	return step
}

func stepKindFor(t service.EventType) entity.StepKind {
	switch t {
	case service.EventThinking:
		return entity.StepThinking
	case service.EventToolCall:
		return entity.StepToolCall
	case service.EventToolResult:
		return entity.StepToolResult
	case service.EventError:
		return entity.StepError
	case service.EventConfirm:
		return entity.StepConfirm
	case service.EventTextDelta:
		return entity.StepStreaming
	default:
		return entity.StepMessage
	}
}
