package entity

import (
	"time"

	"github.com/termpilot/engine/pkg/apperr"
)

// PlanStepStatus is the lifecycle state of a single plan step.
type PlanStepStatus string

const (
	PlanStepPending    PlanStepStatus = "pending"
	PlanStepInProgress PlanStepStatus = "in_progress"
	PlanStepCompleted  PlanStepStatus = "completed"
	PlanStepFailed     PlanStepStatus = "failed"
	PlanStepSkipped    PlanStepStatus = "skipped"
)

// PlanStep is one line item of a Plan's todo list.
type PlanStep struct {
	ID           string
	Title        string
	Description  string
	Status       PlanStepStatus
	Result       string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	Progress     *ProgressValue
	TerminalID   string
	TerminalName string
	HostID       string
	IsParallel   bool
}

// MaxPlanSteps is the hard cap on the number of steps a Plan may carry.
const MaxPlanSteps = 10

// Plan is a run's todo list: at most one is active at a time, and it is
// created only by a create_plan tool call and mutated only by
// update_plan/clear_plan.
type Plan struct {
	ID        string
	Title     string
	Steps     []PlanStep
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrTooManyPlanSteps is returned when a create_plan/update_plan call would
// push a Plan's step count past MaxPlanSteps.
var ErrTooManyPlanSteps = apperr.New(apperr.CodePlanViolation, "plan exceeds maximum step count")

// ErrPlanHasPendingSteps is returned by NewPlan's caller-side guard when a
// create_plan call arrives while the current plan still has unfinished
// steps and was not explicitly cleared first.
var ErrPlanHasPendingSteps = apperr.New(apperr.CodePlanViolation, "a plan with pending steps is already active")

// NewPlan creates a fresh plan. Callers MUST check HasPendingSteps on any
// existing plan and reject the call (ErrPlanHasPendingSteps) unless the old
// plan was explicitly cleared — this function only enforces the step cap.
func NewPlan(id, title string, steps []PlanStep) (Plan, error) {
	if len(steps) > MaxPlanSteps {
		return Plan{}, ErrTooManyPlanSteps
	}
	now := time.Now()
	return Plan{
		ID:        id,
		Title:     title,
		Steps:     append([]PlanStep(nil), steps...),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HasPendingSteps reports whether any step is not yet in a terminal state.
func (p Plan) HasPendingSteps() bool {
	for _, s := range p.Steps {
		if s.Status == PlanStepPending || s.Status == PlanStepInProgress {
			return true
		}
	}
	return false
}

// WithUpdatedSteps replaces the step list, enforcing the step cap. The
// step-count cap is enforced here and in NewPlan only — UpdatePlan does not
// re-validate any other invariant of the original plan.
func (p Plan) WithUpdatedSteps(steps []PlanStep) (Plan, error) {
	if len(steps) > MaxPlanSteps {
		return Plan{}, ErrTooManyPlanSteps
	}
	p.Steps = append([]PlanStep(nil), steps...)
	p.UpdatedAt = time.Now()
	return p, nil
}
