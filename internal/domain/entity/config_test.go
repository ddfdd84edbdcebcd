package entity

import (
	"testing"

	"github.com/termpilot/engine/internal/domain/valueobject"
)

func TestNeedsConfirmation(t *testing.T) {
	cases := []struct {
		mode     valueobject.ExecutionMode
		autoMod  bool
		risk     RiskLevel
		expected bool
	}{
		{valueobject.ExecutionFree, false, RiskBlocked, false},
		{valueobject.ExecutionStrict, true, RiskSafe, true},
		{valueobject.ExecutionRelaxed, false, RiskSafe, false},
		{valueobject.ExecutionRelaxed, false, RiskModerate, true},
		{valueobject.ExecutionRelaxed, true, RiskModerate, false},
		{valueobject.ExecutionRelaxed, false, RiskDangerous, true},
		{valueobject.ExecutionRelaxed, false, RiskBlocked, true},
	}
	for _, c := range cases {
		cfg := AgentConfig{ExecutionMode: c.mode, AutoExecuteModerate: c.autoMod}
		got := cfg.NeedsConfirmation(c.risk)
		if got != c.expected {
			t.Errorf("mode=%s autoMod=%v risk=%s: got %v, want %v", c.mode, c.autoMod, c.risk, got, c.expected)
		}
	}
}
