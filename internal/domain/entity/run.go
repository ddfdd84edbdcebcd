package entity

import "github.com/termpilot/engine/pkg/apperr"

// ExecutionPhase is the run's current activity, used by the interrupt UI to
// advise whether interruption is safe.
type ExecutionPhase string

const (
	PhaseThinking         ExecutionPhase = "thinking"
	PhaseExecutingCommand ExecutionPhase = "executing_command"
	PhaseWritingFile      ExecutionPhase = "writing_file"
	PhaseWaiting          ExecutionPhase = "waiting"
	PhaseConfirming       ExecutionPhase = "confirming"
	PhaseIdle             ExecutionPhase = "idle"
)

const maxRealtimeOutputLines = 200

// PendingConfirmation describes a tool call that is blocked waiting on a
// user decision.
type PendingConfirmation struct {
	StepID    int64
	ToolName  string
	ToolArgs  string
	RiskLevel RiskLevel
	Hint      string
}

// WorkerOptions carries orchestrator-assigned identity for a run spawned as
// one worker of an OrchestratorRun.
type WorkerOptions struct {
	OrchestratorRunID string
	TerminalID        string
	HostID            string
}

// OutputUnsubscribe releases a run's subscription to terminal output. It
// must be called exactly once when the run ends.
type OutputUnsubscribe func()

// AgentRun owns the full mutable state of one in-flight task: its
// conversation, its step timeline, its plan, and its reflection ledger. An
// AgentRun exclusively owns these; nothing outside the scheduler mutates
// them directly.
type AgentRun struct {
	ID                   string
	Messages             []Message
	Steps                []Step
	IsRunning            bool
	Aborted              bool
	PendingConfirmation  *PendingConfirmation
	PendingUserMessages  []string
	Config               AgentConfig
	Context              AgentContext
	Reflection           ReflectionState
	RealtimeOutputBuffer []string // ring, <= maxRealtimeOutputLines
	OutputUnsubscribe    OutputUnsubscribe
	CurrentPlan          *Plan
	WorkerOptions        *WorkerOptions
	ExecutionPhase       ExecutionPhase
	CurrentToolName      string
}

// NewAgentRun starts a run in the thinking phase with empty history.
func NewAgentRun(id string, config AgentConfig, ctx AgentContext) *AgentRun {
	return &AgentRun{
		ID:             id,
		IsRunning:      true,
		Config:         config,
		Context:        ctx,
		Reflection:     NewReflectionState(),
		ExecutionPhase: PhaseThinking,
	}
}

// AppendRealtimeOutput pushes a line onto the bounded realtime output ring.
func (r *AgentRun) AppendRealtimeOutput(line string) {
	r.RealtimeOutputBuffer = append(r.RealtimeOutputBuffer, line)
	if len(r.RealtimeOutputBuffer) > maxRealtimeOutputLines {
		r.RealtimeOutputBuffer = r.RealtimeOutputBuffer[len(r.RealtimeOutputBuffer)-maxRealtimeOutputLines:]
	}
}

// End marks the run finished and releases its output subscription. Callers
// must invoke this on every end path: natural completion, user abort, fatal
// error, or too-many-reflections.
func (r *AgentRun) End() {
	r.IsRunning = false
	if r.OutputUnsubscribe != nil {
		r.OutputUnsubscribe()
		r.OutputUnsubscribe = nil
	}
}

// ErrRunNotFound is returned when a run id does not resolve to a live run.
var ErrRunNotFound = apperr.New(apperr.CodeNotFound, "run not found")

// ErrRunNotRunning is returned when an operation requires an in-flight run.
var ErrRunNotRunning = apperr.New(apperr.CodeFatal, "run is not running")

// ErrNoPendingConfirmation is returned when ConfirmToolCall is called on a
// run with nothing awaiting confirmation.
var ErrNoPendingConfirmation = apperr.New(apperr.CodeFatal, "no pending confirmation on this run")
