package valueobject

// ExecutionMode is the canonical confirmation-gating policy for a run.
//
// The upstream design carried two overlapping representations of this
// concept (a strict/relaxed/free enum in one place, strictMode/freeMode/
// auto_execute_* booleans in another). This module treats the enum as the
// single source of truth; callers that only know booleans should map them
// at the boundary via FromLegacy, never by threading booleans through the
// engine.
type ExecutionMode string

const (
	// ExecutionStrict requires confirmation for every state-touching tool call.
	ExecutionStrict ExecutionMode = "strict"
	// ExecutionRelaxed requires confirmation only for dangerous (and,
	// depending on AutoExecuteModerate, moderate) risk tools.
	ExecutionRelaxed ExecutionMode = "relaxed"
	// ExecutionFree never prompts; it must be set by an explicit user
	// opt-in signal upstream of this engine.
	ExecutionFree ExecutionMode = "free"
)

// Valid reports whether m is one of the three canonical modes.
func (m ExecutionMode) Valid() bool {
	switch m {
	case ExecutionStrict, ExecutionRelaxed, ExecutionFree:
		return true
	}
	return false
}

// FromLegacy maps the legacy boolean pair into the canonical enum, for
// callers at the process boundary that still carry strictMode/freeMode.
func FromLegacy(strictMode, freeMode bool) ExecutionMode {
	switch {
	case freeMode:
		return ExecutionFree
	case strictMode:
		return ExecutionStrict
	default:
		return ExecutionRelaxed
	}
}
