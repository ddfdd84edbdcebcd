package entity

import "github.com/termpilot/engine/internal/domain/valueobject"

// AgentConfig governs how a single run is allowed to behave: how far it may
// run unattended and which commands it may execute without asking first.
type AgentConfig struct {
	MaxSteps             int // 0 = unbounded
	CommandTimeoutMS     int
	AutoExecuteSafe      bool
	AutoExecuteModerate  bool
	ExecutionMode        valueobject.ExecutionMode
	Model                valueobject.ModelConfig
}

// DefaultAgentConfig is the baseline config used when a run doesn't
// override anything.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxSteps:            0,
		CommandTimeoutMS:    30000,
		AutoExecuteSafe:     true,
		AutoExecuteModerate: false,
		ExecutionMode:       valueobject.ExecutionRelaxed,
		Model:               valueobject.DefaultModelConfig(),
	}
}

// NeedsConfirmation reports whether a command at the given risk level must
// be confirmed by the user before execution, under this config's mode:
// free never prompts, strict always prompts, relaxed prompts when risk is
// at least dangerous or when risk is moderate and AutoExecuteModerate is
// off. AutoExecuteSafe does not affect this gate, and no other code in this
// module reads it.
func (c AgentConfig) NeedsConfirmation(risk RiskLevel) bool {
	switch c.ExecutionMode {
	case valueobject.ExecutionFree:
		return false
	case valueobject.ExecutionStrict:
		return true
	default: // relaxed
		if risk == RiskDangerous || risk == RiskBlocked {
			return true
		}
		return risk == RiskModerate && !c.AutoExecuteModerate
	}
}
