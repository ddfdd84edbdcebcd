package service

import "time"

// EventType identifies what a SchedulerEvent reports.
type EventType string

const (
	EventThinking   EventType = "thinking"
	EventTextDelta  EventType = "text_delta"
	EventToolCall   EventType = "tool_call"
	EventToolResult EventType = "tool_result"
	EventStepDone   EventType = "step_done"
	EventError      EventType = "error"
	EventDone       EventType = "done"
	EventConfirm    EventType = "confirm_needed"
	EventProgress   EventType = "progress"
)

// ToolCallEvent carries one tool invocation's request and, once it
// completes, its result.
type ToolCallEvent struct {
	ID        string
	Name      string
	Arguments string
	Output    string
	Display   string
	Success   bool
	Duration  time.Duration
}

// StepInfo summarizes one scheduler step for UI/log consumers.
type StepInfo struct {
	Step       int
	TokensUsed int
	ModelUsed  string
	State      string
}

// SchedulerEvent is one update the Agent Run Scheduler streams out while a
// run is in progress — UI layers (CLI/TUI/websocket) render these directly.
type SchedulerEvent struct {
	Type      EventType
	Timestamp time.Time
	Content   string
	StepInfo  *StepInfo
	ToolCall  *ToolCallEvent
	Error     string
}
