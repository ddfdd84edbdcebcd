package service

import (
	"time"

	"github.com/termpilot/engine/internal/domain/entity"
)

// ReflectionIssue is one problem the Reflection Engine can detect in a
// run's state after a tool call.
type ReflectionIssue string

const (
	IssueCommandLoop          ReflectionIssue = "detected_command_loop"
	IssueToolLoop             ReflectionIssue = "detected_tool_loop"
	IssueConsecutiveFailures  ReflectionIssue = "consecutive_failures"
	IssueHighFailureRate      ReflectionIssue = "high_failure_rate"
	IssueFrequentStrategyFlip ReflectionIssue = "frequent_strategy_changes"
	IssueTooManyReflections   ReflectionIssue = "too_many_reflections"
)

const (
	reflectionTurnGap       = 10
	strategySwitchCooldown  = 30 * time.Second
	strategyFlipWindow      = 60 * time.Second
	strategyFlipThreshold   = 3
	consecutiveFailureLimit = 3
	highFailureRateMinTotal = 5
	highFailureRateRatio    = 0.6
	tooManyReflectionsLimit = 2
)

// DetectIssues evaluates a ReflectionState against the fixed rule list.
func DetectIssues(r entity.ReflectionState) []ReflectionIssue {
	var issues []ReflectionIssue

	if hasCommandLoop(r.LastCommands) {
		issues = append(issues, IssueCommandLoop)
	}
	if hasToolLoop(r.LastToolCalls) {
		issues = append(issues, IssueToolLoop)
	}
	if r.FailureCount >= consecutiveFailureLimit {
		issues = append(issues, IssueConsecutiveFailures)
	}
	totalAttempts := r.SuccessCount + r.TotalFailures
	if totalAttempts >= highFailureRateMinTotal && float64(r.TotalFailures)/float64(totalAttempts) > highFailureRateRatio {
		issues = append(issues, IssueHighFailureRate)
	}
	if frequentStrategyChanges(r.StrategySwitches) {
		issues = append(issues, IssueFrequentStrategyFlip)
	}
	if r.ReflectionCount >= tooManyReflectionsLimit {
		issues = append(issues, IssueTooManyReflections)
	}
	return issues
}

// hasCommandLoop matches spec §4.5: last 3 identical, or last 4 form ABAB.
func hasCommandLoop(last []string) bool {
	return allSameTail(last, 3) || isABAB(last, 4)
}

// hasToolLoop matches spec §4.5: last 5 identical, or last 6 form ABABAB.
func hasToolLoop(last []string) bool {
	return allSameTail(last, 5) || isABAB(last, 6)
}

func allSameTail(items []string, n int) bool {
	if len(items) < n {
		return false
	}
	tail := items[len(items)-n:]
	for _, v := range tail {
		if v != tail[0] {
			return false
		}
	}
	return true
}

// isABAB reports whether the last n items strictly alternate between two
// values (A,B,A,B,... ), requiring n to be even and >= 4.
func isABAB(items []string, n int) bool {
	if n%2 != 0 || len(items) < n {
		return false
	}
	tail := items[len(items)-n:]
	a, b := tail[0], tail[1]
	if a == b {
		return false
	}
	for i, v := range tail {
		if i%2 == 0 && v != a {
			return false
		}
		if i%2 == 1 && v != b {
			return false
		}
	}
	return true
}

func frequentStrategyChanges(switches []entity.StrategySwitch) bool {
	if len(switches) < strategyFlipThreshold {
		return false
	}
	recent := switches[len(switches)-strategyFlipThreshold:]
	return recent[len(recent)-1].At.Sub(recent[0].At) <= strategyFlipWindow
}

// NextStrategy applies the ordered strategy-switch rules, returning the new
// strategy (unchanged if no rule fires or the cooldown hasn't elapsed).
func NextStrategy(r entity.ReflectionState, issues []ReflectionIssue, now time.Time) entity.ReflectionStrategy {
	if r.LastReflectionAt != nil {
		var lastSwitch time.Time
		if len(r.StrategySwitches) > 0 {
			lastSwitch = r.StrategySwitches[len(r.StrategySwitches)-1].At
		}
		if !lastSwitch.IsZero() && now.Sub(lastSwitch) < strategySwitchCooldown {
			return r.CurrentStrategy
		}
	}

	has := func(i ReflectionIssue) bool {
		for _, x := range issues {
			if x == i {
				return true
			}
		}
		return false
	}

	switch {
	case has(IssueConsecutiveFailures) && r.CurrentStrategy != entity.StrategyConservative:
		return entity.StrategyConservative
	case (has(IssueCommandLoop) || has(IssueToolLoop)) && r.CurrentStrategy != entity.StrategyConservative:
		return entity.StrategyConservative
	case has(IssueHighFailureRate) && r.CurrentStrategy == entity.StrategyAggressive:
		return entity.StrategyConservative
	case len(issues) == 0 && r.CurrentStrategy == entity.StrategyConservative && r.SuccessCount >= 3 && r.FailureCount == 0:
		return entity.StrategyDefault
	default:
		return r.CurrentStrategy
	}
}

// ShouldTrigger reports whether the reflection engine should run this turn:
// any detected issue, or at least reflectionTurnGap tool calls since the
// last reflection.
func ShouldTrigger(r entity.ReflectionState, issues []ReflectionIssue) bool {
	if len(issues) > 0 {
		return true
	}
	return r.ToolCallCount-r.ToolCallCountAtLastReflection >= reflectionTurnGap
}

// Nudge composes a short corrective message to inject as a user message
// when reflection triggers (and issues is non-empty or the turn-gap fired).
// Returns ok=false when too_many_reflections fired, signaling the scheduler
// to stop the run instead of nudging it.
func Nudge(issues []ReflectionIssue) (message string, ok bool) {
	for _, i := range issues {
		if i == IssueTooManyReflections {
			return "", false
		}
	}
	if len(issues) == 0 {
		return "[system] check your progress: are you repeating yourself? If the current approach isn't working, try a different one.", true
	}
	switch issues[0] {
	case IssueCommandLoop, IssueToolLoop:
		return "[system] you appear to be repeating the same command or tool call without progress. Stop and try a different approach, or report back what's blocking you.", true
	case IssueConsecutiveFailures:
		return "[system] several attempts in a row have failed. Stop and reconsider your approach before trying again.", true
	case IssueHighFailureRate:
		return "[system] most of your recent attempts have failed. Slow down, verify assumptions, and switch strategy.", true
	default:
		return "[system] check your progress and adjust course if needed.", true
	}
}

// QualityScore computes the 0.5*success_rate + 0.3*efficiency +
// 0.2*adaptability formula from spec §4.5.
func QualityScore(r entity.ReflectionState, adaptability float64) float64 {
	totalAttempts := r.SuccessCount + r.TotalFailures
	var successRate float64
	if totalAttempts > 0 {
		successRate = float64(r.SuccessCount) / float64(totalAttempts)
	}
	var failureRate float64
	if totalAttempts > 0 {
		failureRate = float64(r.TotalFailures) / float64(totalAttempts)
	}
	efficiency := 1 - 0.5*failureRate
	if efficiency < 0 {
		efficiency = 0
	}
	return 0.5*successRate + 0.3*efficiency + 0.2*adaptability
}

// Adaptability tracks the 0.7/0.9/0.5 adaptability component of the
// quality score: it starts at 0.7, rises to 0.9 once a strategy switch is
// followed by at least 10s without a failure, and drops to 0.5 if failures
// continue after a switch.
func Adaptability(lastSwitch *entity.StrategySwitch, failedSinceSwitch bool, now time.Time) float64 {
	if lastSwitch == nil {
		return 0.7
	}
	if failedSinceSwitch {
		return 0.5
	}
	if now.Sub(lastSwitch.At) >= 10*time.Second {
		return 0.9
	}
	return 0.7
}

// callSignatureAllowlist lists, per tool, which argument keys participate
// in a tool-call signature (so e.g. read_file path=a and path=b produce
// distinct signatures but read_file with unrelated extra args don't).
var callSignatureAllowlist = map[string][]string{
	"execute_command":   {"command"},
	"read_file":         {"path"},
	"write_file":        {"path", "mode"},
	"search_knowledge":  {"query"},
	"get_knowledge_doc": {"id"},
	"send_control_key":  {"key"},
}

// ToolCallSignature builds the (tool_name, selected key params) signature
// used for loop detection, per the per-tool allowlist.
func ToolCallSignature(toolName string, args map[string]string) string {
	keys, ok := callSignatureAllowlist[toolName]
	if !ok {
		return toolName
	}
	sig := toolName
	for _, k := range keys {
		sig += "|" + k + "=" + args[k]
	}
	return sig
}
