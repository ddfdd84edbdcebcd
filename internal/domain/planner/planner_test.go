package planner

import "testing"

func TestEstimateComplexity_Empty(t *testing.T) {
	if got := EstimateComplexity(""); got != ComplexitySimple {
		t.Fatalf("expected simple for empty task, got %v", got)
	}
}

func TestEstimateComplexity_Simple(t *testing.T) {
	if got := EstimateComplexity("restart nginx"); got != ComplexitySimple {
		t.Fatalf("expected simple, got %v", got)
	}
}

func TestEstimateComplexity_Moderate(t *testing.T) {
	task := "check disk usage, then clear the old log files in /var/log if usage is above 80%"
	if got := EstimateComplexity(task); got != ComplexityModerate {
		t.Fatalf("expected moderate, got %v", got)
	}
}

func TestEstimateComplexity_ComplexEnumerated(t *testing.T) {
	task := `Set up the new release:
1. pull the latest tag
2. run the test suite
3. build the release binary
4. upload it to the artifact store
5. notify the deploy channel`
	if got := EstimateComplexity(task); got != ComplexityComplex {
		t.Fatalf("expected complex, got %v", got)
	}
}

func TestEstimateComplexity_MultiHost(t *testing.T) {
	task := "across all hosts in the fleet, pull the latest config and restart the agent"
	if got := EstimateComplexity(task); got != ComplexityComplex {
		t.Fatalf("expected complex for multi-host scope, got %v", got)
	}
}

func TestBuildPlanningInstruction(t *testing.T) {
	if got := BuildPlanningInstruction(ComplexitySimple); got != "" {
		t.Fatalf("expected no instruction for simple tasks, got %q", got)
	}
	if got := BuildPlanningInstruction(ComplexityModerate); got == "" {
		t.Fatal("expected a nudge for moderate tasks")
	}
	if got := BuildPlanningInstruction(ComplexityComplex); got == "" {
		t.Fatal("expected a nudge for complex tasks")
	}
	simple := BuildPlanningInstruction(ComplexitySimple)
	moderate := BuildPlanningInstruction(ComplexityModerate)
	complex := BuildPlanningInstruction(ComplexityComplex)
	if moderate == complex {
		t.Fatal("expected moderate and complex instructions to differ")
	}
	_ = simple
}
