package entity

import "time"

// StepKind classifies one observable event in a run.
type StepKind string

const (
	StepThinking         StepKind = "thinking"
	StepToolCall         StepKind = "tool_call"
	StepToolResult       StepKind = "tool_result"
	StepMessage          StepKind = "message"
	StepError            StepKind = "error"
	StepConfirm          StepKind = "confirm"
	StepStreaming        StepKind = "streaming"
	StepUserSupplement   StepKind = "user_supplement"
	StepWaiting          StepKind = "waiting"
	StepAsking           StepKind = "asking"
	StepWaitingPassword  StepKind = "waiting_password"
	StepPlanCreated      StepKind = "plan_created"
	StepPlanUpdated      StepKind = "plan_updated"
	StepPlanArchived     StepKind = "plan_archived"
)

// Step is one observable event in a run's timeline. It is immutable once
// created except while IsStreaming is true, during which the scheduler may
// call UpdateContent to append incremental tokens from a single streaming
// burst.
type Step struct {
	ID         int64
	Timestamp  time.Time
	Kind       StepKind
	Content    string
	ToolName   string
	ToolArgs   string
	ToolResult string
	RiskLevel  RiskLevel
	IsStreaming bool
	Plan       *Plan
	Progress   *ProgressInfo
}

// NewStep builds a Step with the given monotonic id.
func NewStep(id int64, kind StepKind, content string) Step {
	return Step{ID: id, Timestamp: time.Now(), Kind: kind, Content: content}
}

// UpdateContent appends to Content during an open streaming burst. Callers
// must check IsStreaming before invoking this; the scheduler is the only
// caller that should ever do so.
func (s *Step) UpdateContent(delta string) {
	s.Content += delta
}
