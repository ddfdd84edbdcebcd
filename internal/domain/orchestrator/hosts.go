package orchestrator

import (
	"context"

	"github.com/termpilot/engine/internal/domain/entity"
)

// HostInfo describes one host the Orchestrator may dispatch work to.
type HostInfo struct {
	ID           string
	Name         string
	Address      string
	TerminalType entity.TerminalType
}

// HostLister is the external directory of dispatch targets (an inventory
// file, an SSH config, a cloud provider's instance list — out of scope for
// this domain layer).
type HostLister interface {
	ListHosts(ctx context.Context) ([]HostInfo, error)
}

// TerminalConnector opens and closes terminal sessions on the Orchestrator's
// behalf. Connect returns a terminal id scoped to the underlying Terminal
// Abstraction; the Orchestrator aliases it within one OrchestratorRun.
type TerminalConnector interface {
	Connect(ctx context.Context, hostID string) (terminalID string, err error)
	Close(ctx context.Context, terminalID string) error
}

// WorkerResult is what a dispatched Worker run reports back to the
// Orchestrator once it finishes.
type WorkerResult struct {
	Output    string
	ToolsUsed []string
	Err       error
}

// WorkerSpawner runs a Worker Agent Run (an Agent Run Scheduler configured
// in "worker" mode, per spec §4.8) against one terminal and blocks until it
// completes. onStep, if non-nil, is called for every step the worker
// produces — spec's worker_options.report_progress streaming tool_result
// steps back to the orchestrator.
type WorkerSpawner interface {
	SpawnWorker(ctx context.Context, terminalID, task string, reportProgress bool, onStep func(entity.Step)) WorkerResult
}
