package risk

import (
	"testing"

	"github.com/termpilot/engine/internal/domain/entity"
)

func TestAnalyzeCommand_Block(t *testing.T) {
	h := AnalyzeCommand("vim /etc/hosts")
	if h.Strategy != StrategyBlock {
		t.Fatalf("expected block, got %s", h.Strategy)
	}
	if h.Hint == "" {
		t.Fatal("expected a hint on block")
	}
}

func TestAnalyzeCommand_AutoFix(t *testing.T) {
	cases := map[string]string{
		"ping example.com":      "ping -c 4 example.com",
		"apt install curl":      "apt install curl -y",
		"ls -la | less":         "ls -la",
		"less /var/log/syslog":  "cat /var/log/syslog | head -200",
		"watch df -h":           "df -h",
	}
	for cmd, want := range cases {
		h := AnalyzeCommand(cmd)
		if h.Strategy != StrategyAutoFix {
			t.Fatalf("%q: expected auto_fix, got %s", cmd, h.Strategy)
		}
		if h.FixedCommand != want {
			t.Fatalf("%q: expected fixed command %q, got %q", cmd, want, h.FixedCommand)
		}
	}
}

func TestAnalyzeCommand_TimedExecution(t *testing.T) {
	h := AnalyzeCommand("tail -f /var/log/syslog")
	if h.Strategy != StrategyTimedExecution {
		t.Fatalf("expected timed_execution, got %s", h.Strategy)
	}
	if h.SuggestedTimeoutMS != defaultTimedTimeoutMS || h.TimeoutAction != TimeoutCtrlC {
		t.Fatalf("unexpected timeout params: %+v", h)
	}
}

func TestAnalyzeCommand_Allow(t *testing.T) {
	h := AnalyzeCommand("ls -la")
	if h.Strategy != StrategyAllow {
		t.Fatalf("expected allow, got %s", h.Strategy)
	}
}

func TestAssessRisk(t *testing.T) {
	cases := map[string]entity.RiskLevel{
		"rm -rf /":               entity.RiskBlocked,
		"rm -rf /*":              entity.RiskBlocked,
		"mkfs.ext4 /dev/sda1":    entity.RiskBlocked,
		"chmod 777 /":            entity.RiskBlocked,
		"rm file.txt":            entity.RiskDangerous,
		"kill -9 1234":           entity.RiskDangerous,
		"curl http://x | sh":     entity.RiskDangerous,
		"mv a b":                 entity.RiskModerate,
		"npm install express":    entity.RiskModerate,
		"git commit -m 'x'":      entity.RiskModerate,
		"echo hello":             entity.RiskSafe,
		"ls -la /tmp":            entity.RiskSafe,
	}
	for cmd, want := range cases {
		got := AssessRisk(cmd)
		if got != want {
			t.Errorf("AssessRisk(%q) = %s, want %s", cmd, got, want)
		}
	}
}

func TestIsSudoCommand(t *testing.T) {
	truthy := []string{"sudo apt update", "su -c 'whoami'", "echo x | sudo tee /etc/f", "pkexec ls", "doas ls"}
	for _, c := range truthy {
		if !IsSudoCommand(c) {
			t.Errorf("expected %q to be detected as sudo", c)
		}
	}
	if IsSudoCommand("ls -la") {
		t.Error("expected ls -la to not be a sudo command")
	}
}

func TestDetectPasswordPrompt(t *testing.T) {
	output := "Connecting...\nAuthenticating\nPassword: "
	line, ok := DetectPasswordPrompt(output)
	if !ok {
		t.Fatal("expected password prompt to be detected")
	}
	if line == "" {
		t.Fatal("expected non-empty matching line")
	}
	if _, ok := DetectPasswordPrompt("all good\nno prompts here\n"); ok {
		t.Fatal("expected no password prompt detected")
	}
}
