package service

import (
	"testing"
	"time"

	"github.com/termpilot/engine/internal/domain/entity"
)

func TestDetectIssues_CommandLoop(t *testing.T) {
	r := entity.ReflectionState{LastCommands: []string{"ls", "ls", "ls"}}
	issues := DetectIssues(r)
	if !containsIssue(issues, IssueCommandLoop) {
		t.Fatalf("expected command loop, got %v", issues)
	}
}

func TestDetectIssues_CommandLoopABAB(t *testing.T) {
	r := entity.ReflectionState{LastCommands: []string{"ls", "pwd", "ls", "pwd"}}
	issues := DetectIssues(r)
	if !containsIssue(issues, IssueCommandLoop) {
		t.Fatalf("expected ABAB command loop, got %v", issues)
	}
}

func TestDetectIssues_ToolLoop(t *testing.T) {
	r := entity.ReflectionState{LastToolCalls: []string{"a", "a", "a", "a", "a"}}
	issues := DetectIssues(r)
	if !containsIssue(issues, IssueToolLoop) {
		t.Fatalf("expected tool loop, got %v", issues)
	}
}

func TestDetectIssues_ConsecutiveFailures(t *testing.T) {
	r := entity.ReflectionState{FailureCount: 3}
	issues := DetectIssues(r)
	if !containsIssue(issues, IssueConsecutiveFailures) {
		t.Fatalf("expected consecutive failures, got %v", issues)
	}
}

func TestDetectIssues_HighFailureRate(t *testing.T) {
	r := entity.ReflectionState{SuccessCount: 2, TotalFailures: 4}
	issues := DetectIssues(r)
	if !containsIssue(issues, IssueHighFailureRate) {
		t.Fatalf("expected high failure rate, got %v", issues)
	}
}

func TestDetectIssues_TooManyReflections(t *testing.T) {
	r := entity.ReflectionState{ReflectionCount: 2}
	issues := DetectIssues(r)
	if !containsIssue(issues, IssueTooManyReflections) {
		t.Fatalf("expected too many reflections, got %v", issues)
	}
}

func TestNextStrategy_ConsecutiveFailuresGoesConservative(t *testing.T) {
	r := entity.ReflectionState{CurrentStrategy: entity.StrategyDefault, FailureCount: 3}
	got := NextStrategy(r, []ReflectionIssue{IssueConsecutiveFailures}, time.Now())
	if got != entity.StrategyConservative {
		t.Fatalf("expected conservative, got %s", got)
	}
}

func TestNextStrategy_RecoversToDefault(t *testing.T) {
	r := entity.ReflectionState{CurrentStrategy: entity.StrategyConservative, SuccessCount: 3, FailureCount: 0}
	got := NextStrategy(r, nil, time.Now())
	if got != entity.StrategyDefault {
		t.Fatalf("expected default, got %s", got)
	}
}

func TestNudge_TooManyReflectionsReturnsNotOK(t *testing.T) {
	_, ok := Nudge([]ReflectionIssue{IssueTooManyReflections})
	if ok {
		t.Fatal("expected too_many_reflections to produce ok=false")
	}
}

func TestQualityScore(t *testing.T) {
	r := entity.ReflectionState{SuccessCount: 8, TotalFailures: 2}
	score := QualityScore(r, 0.7)
	if score <= 0 || score > 1 {
		t.Fatalf("expected score in (0,1], got %v", score)
	}
}

func TestToolCallSignature_DistinctByPath(t *testing.T) {
	a := ToolCallSignature("read_file", map[string]string{"path": "a.txt"})
	b := ToolCallSignature("read_file", map[string]string{"path": "b.txt"})
	if a == b {
		t.Fatal("expected distinct signatures for distinct paths")
	}
}

func containsIssue(issues []ReflectionIssue, target ReflectionIssue) bool {
	for _, i := range issues {
		if i == target {
			return true
		}
	}
	return false
}
