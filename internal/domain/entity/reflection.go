package entity

import "time"

// ReflectionStrategy is the current behavioral posture the scheduler
// applies to tool selection and retry pacing.
type ReflectionStrategy string

const (
	StrategyDefault      ReflectionStrategy = "default"
	StrategyConservative ReflectionStrategy = "conservative"
	StrategyAggressive   ReflectionStrategy = "aggressive"
	StrategyDiagnostic   ReflectionStrategy = "diagnostic"
)

// StrategySwitch records one transition the reflection engine made.
type StrategySwitch struct {
	At   time.Time
	From ReflectionStrategy
	To   ReflectionStrategy
	Reason string
}

const (
	maxLastCommands  = 5
	maxLastToolCalls = 8
)

// ReflectionState is the running ledger the Reflection Engine reads and
// updates after every tool call, used to detect loops, repeated failures,
// and strategy drift.
type ReflectionState struct {
	ToolCallCount     int
	FailureCount      int // consecutive
	TotalFailures     int
	SuccessCount      int
	LastCommands      []string // ring, <= maxLastCommands
	LastToolCalls     []string // ring of call signatures, <= maxLastToolCalls
	LastReflectionAt  *time.Time
	// ToolCallCountAtLastReflection snapshots ToolCallCount the last time a
	// reflection ran, so the scheduler can compute the turn-gap trigger
	// (tool_call_count - <this> >= 10) without re-deriving it from timing.
	ToolCallCountAtLastReflection int
	ReflectionCount   int
	CurrentStrategy   ReflectionStrategy
	StrategySwitches  []StrategySwitch
	QualityScore      *float64
	DetectedIssues    []string
	AppliedFixes      []string
}

// NewReflectionState starts a run's reflection ledger in the default
// strategy.
func NewReflectionState() ReflectionState {
	return ReflectionState{CurrentStrategy: StrategyDefault}
}

func pushRing(ring []string, item string, max int) []string {
	next := append(append([]string(nil), ring...), item)
	if len(next) > max {
		next = next[len(next)-max:]
	}
	return next
}

// RecordCommand pushes a command onto the bounded last-commands ring.
func (r ReflectionState) RecordCommand(cmd string) ReflectionState {
	r.LastCommands = pushRing(r.LastCommands, cmd, maxLastCommands)
	return r
}

// RecordToolCall pushes a call signature onto the bounded last-tool-calls
// ring and increments ToolCallCount.
func (r ReflectionState) RecordToolCall(signature string) ReflectionState {
	r.LastToolCalls = pushRing(r.LastToolCalls, signature, maxLastToolCalls)
	r.ToolCallCount++
	return r
}

// RecordSuccess resets the consecutive-failure counter and bumps SuccessCount.
func (r ReflectionState) RecordSuccess() ReflectionState {
	r.SuccessCount++
	r.FailureCount = 0
	return r
}

// RecordFailure bumps both the consecutive and total failure counters.
func (r ReflectionState) RecordFailure() ReflectionState {
	r.FailureCount++
	r.TotalFailures++
	return r
}

// MarkReflected snapshots the current tool call count and timestamp after
// a reflection pass runs, and bumps ReflectionCount.
func (r ReflectionState) MarkReflected(at time.Time) ReflectionState {
	r.LastReflectionAt = &at
	r.ToolCallCountAtLastReflection = r.ToolCallCount
	r.ReflectionCount++
	return r
}
