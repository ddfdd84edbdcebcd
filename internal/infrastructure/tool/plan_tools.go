package tool

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/termpilot/engine/internal/domain/entity"
	domaintool "github.com/termpilot/engine/internal/domain/tool"
)

// PlanHolder exposes the run's single active plan slot to the plan tools.
// Exactly one plan may be active at a time; create_plan/update_plan/
// clear_plan are the only mutators.
type PlanHolder interface {
	CurrentPlan() *entity.Plan
	SetPlan(plan *entity.Plan)
}

func planSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"title": map[string]interface{}{"type": "string"},
			"steps": map[string]interface{}{
				"type": "array",
				"items": map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"title":       map[string]interface{}{"type": "string"},
						"description": map[string]interface{}{"type": "string"},
					},
					"required": []string{"title"},
				},
				"maxItems": entity.MaxPlanSteps,
			},
		},
		"required": []string{"title", "steps"},
	}
}

// CreatePlanTool starts a new run plan. It refuses when a plan is already
// active with unfinished steps.
type CreatePlanTool struct {
	holder PlanHolder
}

func NewCreatePlanTool(holder PlanHolder) *CreatePlanTool { return &CreatePlanTool{holder: holder} }

func (t *CreatePlanTool) Name() string          { return "create_plan" }
func (t *CreatePlanTool) Kind() domaintool.Kind { return domaintool.KindThink }
func (t *CreatePlanTool) Description() string {
	return fmt.Sprintf("Create a todo-list plan for a multi-step task, up to %d steps.", entity.MaxPlanSteps)
}
func (t *CreatePlanTool) Schema() map[string]interface{}                        { return planSchema() }
func (t *CreatePlanTool) RiskLevel(map[string]interface{}) entity.RiskLevel { return entity.RiskSafe }

func (t *CreatePlanTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	title := stringArg(args, "title")
	if title == "" {
		return &domaintool.Result{Success: false, Error: "title is required"}, nil
	}

	if existing := t.holder.CurrentPlan(); existing != nil && existing.HasPendingSteps() {
		return &domaintool.Result{Success: false, Error: "a plan with pending steps is already active; finish or clear_plan it first"}, nil
	}

	rawSteps, _ := args["steps"].([]interface{})
	steps := make([]entity.PlanStep, 0, len(rawSteps))
	for _, rs := range rawSteps {
		m, ok := rs.(map[string]interface{})
		if !ok {
			continue
		}
		steps = append(steps, entity.PlanStep{
			ID:          uuid.New().String()[:8],
			Title:       stringArg(m, "title"),
			Description: stringArg(m, "description"),
			Status:      entity.PlanStepPending,
		})
	}
	if len(steps) == 0 {
		return &domaintool.Result{Success: false, Error: "steps must contain at least one entry"}, nil
	}

	plan, err := entity.NewPlan(uuid.New().String()[:8], title, steps)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	t.holder.SetPlan(&plan)

	return &domaintool.Result{
		Success:  true,
		Output:   fmt.Sprintf("created plan %q with %d step(s)", title, len(steps)),
		Metadata: map[string]interface{}{"plan_id": plan.ID, "steps": len(steps)},
	}, nil
}

// UpdatePlanTool transitions one step of the active plan.
type UpdatePlanTool struct {
	holder PlanHolder
}

func NewUpdatePlanTool(holder PlanHolder) *UpdatePlanTool { return &UpdatePlanTool{holder: holder} }

func (t *UpdatePlanTool) Name() string          { return "update_plan" }
func (t *UpdatePlanTool) Kind() domaintool.Kind { return domaintool.KindThink }
func (t *UpdatePlanTool) Description() string {
	return "Update the status (and optionally result) of one step of the active plan."
}
func (t *UpdatePlanTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"step_index": map[string]interface{}{"type": "integer", "description": "0-based index into the plan's steps"},
			"status":     map[string]interface{}{"type": "string", "enum": []string{"pending", "in_progress", "completed", "failed", "skipped"}},
			"result":     map[string]interface{}{"type": "string"},
		},
		"required": []string{"step_index", "status"},
	}
}
func (t *UpdatePlanTool) RiskLevel(map[string]interface{}) entity.RiskLevel { return entity.RiskSafe }

func (t *UpdatePlanTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	plan := t.holder.CurrentPlan()
	if plan == nil {
		return &domaintool.Result{Success: false, Error: "no plan is active; call create_plan first"}, nil
	}
	idx, ok := intArg(args, "step_index")
	if !ok || idx < 0 || idx >= len(plan.Steps) {
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("step_index out of range (0..%d)", len(plan.Steps)-1)}, nil
	}
	status := entity.PlanStepStatus(stringArg(args, "status"))
	switch status {
	case entity.PlanStepPending, entity.PlanStepInProgress, entity.PlanStepCompleted, entity.PlanStepFailed, entity.PlanStepSkipped:
	default:
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("unknown status %q", status)}, nil
	}

	steps := append([]entity.PlanStep(nil), plan.Steps...)
	steps[idx].Status = status
	if result := stringArg(args, "result"); result != "" {
		steps[idx].Result = result
	}

	updated, err := plan.WithUpdatedSteps(steps)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	t.holder.SetPlan(&updated)

	return &domaintool.Result{
		Success: true,
		Output:  fmt.Sprintf("step %d (%s) -> %s", idx, steps[idx].Title, status),
	}, nil
}

// ClearPlanTool discards the run's active plan.
type ClearPlanTool struct {
	holder PlanHolder
}

func NewClearPlanTool(holder PlanHolder) *ClearPlanTool { return &ClearPlanTool{holder: holder} }

func (t *ClearPlanTool) Name() string          { return "clear_plan" }
func (t *ClearPlanTool) Kind() domaintool.Kind { return domaintool.KindThink }
func (t *ClearPlanTool) Description() string   { return "Discard the active plan." }
func (t *ClearPlanTool) Schema() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (t *ClearPlanTool) RiskLevel(map[string]interface{}) entity.RiskLevel { return entity.RiskSafe }

func (t *ClearPlanTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	if t.holder.CurrentPlan() == nil {
		return &domaintool.Result{Success: true, Output: "no plan was active"}, nil
	}
	t.holder.SetPlan(nil)
	return &domaintool.Result{Success: true, Output: "plan cleared"}, nil
}
