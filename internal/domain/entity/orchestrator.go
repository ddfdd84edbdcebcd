package entity

import "time"

// OrchestratorStatus is the lifecycle state of an OrchestratorRun.
type OrchestratorStatus string

const (
	OrchestratorRunning   OrchestratorStatus = "running"
	OrchestratorCompleted OrchestratorStatus = "completed"
	OrchestratorFailed    OrchestratorStatus = "failed"
	OrchestratorAborted   OrchestratorStatus = "aborted"
)

// WorkerStatus is the lifecycle state of one OrchestratorRun worker.
type WorkerStatus string

const (
	WorkerConnecting WorkerStatus = "connecting"
	WorkerIdle       WorkerStatus = "idle"
	WorkerRunning    WorkerStatus = "running"
	WorkerCompleted  WorkerStatus = "completed"
	WorkerFailed     WorkerStatus = "failed"
	WorkerTimeout    WorkerStatus = "timeout"
)

// WorkerState tracks one per-host worker agent spawned by an
// OrchestratorRun.
type WorkerState struct {
	TerminalID    string
	HostID        string
	HostName      string
	Status        WorkerStatus
	CurrentTask   string
	TaskStartedAt *time.Time
	Result        string
	Error         string
	Steps         []Step
}

// PendingBatchConfirmation describes a parallel_dispatch awaiting a single
// confirmation covering all of its targeted workers.
type PendingBatchConfirmation struct {
	TerminalIDs []string
	Command     string
	RiskLevel   RiskLevel
}

// OrchestratorRun owns a set of worker terminals allocated to one task. Its
// terminal alias map is scoped to this run only — no cross-run aliasing.
type OrchestratorRun struct {
	ID                       string
	Task                     string
	Config                   AgentConfig
	Status                   OrchestratorStatus
	Workers                  map[string]*WorkerState // keyed by terminal_id
	TerminalAliasMap         map[string]string       // alias -> terminal_id, scoped to this run
	Messages                 []Message
	StartedAt                time.Time
	CompletedAt              *time.Time
	CurrentPlan              *Plan
	Result                   string
	PendingBatchConfirmation *PendingBatchConfirmation
}

// NewOrchestratorRun starts an orchestrator run with empty worker/alias maps.
func NewOrchestratorRun(id, task string, config AgentConfig) *OrchestratorRun {
	return &OrchestratorRun{
		ID:               id,
		Task:             task,
		Config:           config,
		Status:           OrchestratorRunning,
		Workers:          make(map[string]*WorkerState),
		TerminalAliasMap: make(map[string]string),
		StartedAt:        time.Now(),
	}
}

// RegisterAlias binds an alias to a terminal id, scoped to this run.
func (o *OrchestratorRun) RegisterAlias(alias, terminalID string) {
	o.TerminalAliasMap[alias] = terminalID
}

// ResolveAlias returns the terminal id bound to alias within this run, if any.
func (o *OrchestratorRun) ResolveAlias(alias string) (string, bool) {
	id, ok := o.TerminalAliasMap[alias]
	return id, ok
}
