// Package risk classifies shell commands: what handling strategy to apply
// before running them, and how dangerous they are judged to be.
package risk

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/termpilot/engine/internal/domain/entity"
)

// Strategy is the handling decision AnalyzeCommand returns for a command.
type Strategy string

const (
	StrategyAllow          Strategy = "allow"
	StrategyAutoFix        Strategy = "auto_fix"
	StrategyTimedExecution Strategy = "timed_execution"
	StrategyBlock          Strategy = "block"
)

// TimeoutAction is the key sequence sent to terminate a timed-execution
// command once its suggested timeout elapses.
type TimeoutAction string

const (
	TimeoutCtrlC TimeoutAction = "ctrl_c"
	TimeoutCtrlD TimeoutAction = "ctrl_d"
	TimeoutQ     TimeoutAction = "q"
)

// HandlingInfo is the verdict AnalyzeCommand returns.
type HandlingInfo struct {
	Strategy           Strategy
	FixedCommand       string
	SuggestedTimeoutMS int
	TimeoutAction      TimeoutAction
	Hint               string
}

var fullScreenPrograms = []struct {
	pattern *regexp.Regexp
	hint    string
}{
	{regexp.MustCompile(`(?:^|[;&|]\s*)(vim?|nvim|nano|emacs)\b`), "full-screen editors cannot run in a non-interactive terminal; read or write the file directly instead"},
	{regexp.MustCompile(`(?:^|[;&|]\s*)(mc|ranger)\b`), "full-screen file managers are not supported; use ls/find instead"},
	{regexp.MustCompile(`(?:^|[;&|]\s*)(tmux|screen)\b`), "terminal multiplexers cannot be driven from this automation; run commands directly"},
}

type autoFixRule struct {
	pattern *regexp.Regexp
	fix     func(cmd string, m []string) string
}

var pingCmd = regexp.MustCompile(`^ping\s+`)
var pingHasCount = regexp.MustCompile(`\s-c\s*\d+`)
var installNoYes = regexp.MustCompile(`^(apt|apt-get|yum|dnf)\s+install\b`)
var installHasYes = regexp.MustCompile(`-y\b|--yes\b`)
var pipeToLessMore = regexp.MustCompile(`\|\s*(less|more)\s*$`)
var lessMoreFile = regexp.MustCompile(`^(less|more)\s+(.+)$`)
var topCmd = regexp.MustCompile(`^top\b`)
var htopBtop = regexp.MustCompile(`^(htop|btop)\b`)
var iotop = regexp.MustCompile(`^iotop\b`)
var iftop = regexp.MustCompile(`^iftop\b`)
var nmon = regexp.MustCompile(`^nmon\b`)
var watchCmd = regexp.MustCompile(`^watch\s+(?:-\S+\s+)*(.+)$`)

var tailF = regexp.MustCompile(`^tail\s+.*-[fF]\b`)
var journalctlF = regexp.MustCompile(`^journalctl\b.*-f\b`)
var dockerLogsF = regexp.MustCompile(`^docker\s+logs\b.*-f\b`)
var kubectlLogsF = regexp.MustCompile(`^kubectl\s+logs\b.*-f\b`)

const defaultTimedTimeoutMS = 5000

// AnalyzeCommand returns the handling strategy for cmd, applying the rule
// list in order; the first match wins.
func AnalyzeCommand(cmd string) HandlingInfo {
	trimmed := strings.TrimSpace(cmd)

	for _, fs := range fullScreenPrograms {
		if fs.pattern.MatchString(trimmed) {
			return HandlingInfo{Strategy: StrategyBlock, Hint: fs.hint}
		}
	}

	if pingCmd.MatchString(trimmed) && !pingHasCount.MatchString(trimmed) {
		return HandlingInfo{Strategy: StrategyAutoFix, FixedCommand: "ping -c 4 " + strings.TrimSpace(strings.TrimPrefix(trimmed, "ping")), Hint: "已自动添加 -c 4 限制次数"}
	}
	if installNoYes.MatchString(trimmed) && !installHasYes.MatchString(trimmed) {
		return HandlingInfo{Strategy: StrategyAutoFix, FixedCommand: trimmed + " -y"}
	}
	if pipeToLessMore.MatchString(trimmed) {
		return HandlingInfo{Strategy: StrategyAutoFix, FixedCommand: strings.TrimSpace(pipeToLessMore.ReplaceAllString(trimmed, ""))}
	}
	if m := lessMoreFile.FindStringSubmatch(trimmed); m != nil {
		return HandlingInfo{Strategy: StrategyAutoFix, FixedCommand: fmt.Sprintf("cat %s | head -200", m[2])}
	}
	if topCmd.MatchString(trimmed) {
		return HandlingInfo{Strategy: StrategyAutoFix, FixedCommand: `(top -bn1 || top -l 1 -n 0) | head -30`}
	}
	if htopBtop.MatchString(trimmed) {
		return HandlingInfo{Strategy: StrategyAutoFix, FixedCommand: `ps aux --sort=-%cpu | head -11`}
	}
	if iotop.MatchString(trimmed) {
		return HandlingInfo{Strategy: StrategyAutoFix, FixedCommand: `iostat -x 1 2 || vmstat 1 2`}
	}
	if iftop.MatchString(trimmed) {
		return HandlingInfo{Strategy: StrategyAutoFix, FixedCommand: `ss -tunp | head -20`}
	}
	if nmon.MatchString(trimmed) {
		return HandlingInfo{Strategy: StrategyAutoFix, FixedCommand: `vmstat 1 3 && free -h`}
	}
	if m := watchCmd.FindStringSubmatch(trimmed); m != nil {
		return HandlingInfo{Strategy: StrategyAutoFix, FixedCommand: m[1]}
	}

	switch {
	case tailF.MatchString(trimmed), journalctlF.MatchString(trimmed), dockerLogsF.MatchString(trimmed), kubectlLogsF.MatchString(trimmed):
		return HandlingInfo{Strategy: StrategyTimedExecution, SuggestedTimeoutMS: defaultTimedTimeoutMS, TimeoutAction: TimeoutCtrlC}
	}

	return HandlingInfo{Strategy: StrategyAllow}
}

var blockedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\s+-[a-zA-Z]*r[a-zA-Z]*f[a-zA-Z]*\s+/\s*$`),
	regexp.MustCompile(`\brm\s+-[a-zA-Z]*r[a-zA-Z]*f[a-zA-Z]*\s+/\*\s*$`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:&\s*\}\s*;\s*:`),
	regexp.MustCompile(`\bmkfs(\.\S+)?\b`),
	regexp.MustCompile(`\bdd\s+.*\bof=/dev/[sh]d[a-z]?\d*\b`),
	regexp.MustCompile(`>\s*/dev/[sh]d[a-z]?\d*\b`),
	regexp.MustCompile(`\bchmod\s+777\s+/\s*$`),
	regexp.MustCompile(`\bchown\b.*\s+/\s*$`),
	regexp.MustCompile(`>\s*/etc/(passwd|shadow|sudoers)\b`),
}

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\brm\b`),
	regexp.MustCompile(`\b(kill|killall|pkill)\b`),
	regexp.MustCompile(`\bchmod\b`),
	regexp.MustCompile(`\bchown\b`),
	regexp.MustCompile(`\b(shutdown|reboot|halt|poweroff)\b`),
	regexp.MustCompile(`\bsystemctl\s+(stop|restart|disable)\b`),
	regexp.MustCompile(`\bservice\s+\S+\s+(stop|restart)\b`),
	regexp.MustCompile(`\b(apt|apt-get|yum|dnf)\s+remove\b`),
	regexp.MustCompile(`>\s*/etc/\S`),
	regexp.MustCompile(`>\s*/var/\S`),
	regexp.MustCompile(`\bcurl\b.*\|\s*sh\b`),
	regexp.MustCompile(`\bwget\s+-O-\b.*\|\s*sh\b`),
}

var moderatePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bmv\b`),
	regexp.MustCompile(`\bcp\b`),
	regexp.MustCompile(`\bmkdir\b`),
	regexp.MustCompile(`\btouch\b`),
	regexp.MustCompile(`\bsystemctl\s+(start|enable|status)\b`),
	regexp.MustCompile(`\bservice\s+\S+\s+start\b`),
	regexp.MustCompile(`\S*-install\b`),
	regexp.MustCompile(`\b(npm|pip)\s+install\b`),
	regexp.MustCompile(`\bgit\s+(pull|push|commit)\b`),
}

// AssessRisk classifies cmd into a RiskLevel using the blocked/dangerous/
// moderate/safe pattern families, in that precedence order.
func AssessRisk(cmd string) entity.RiskLevel {
	trimmed := strings.TrimSpace(cmd)
	for _, p := range blockedPatterns {
		if p.MatchString(trimmed) {
			return entity.RiskBlocked
		}
	}
	for _, p := range dangerousPatterns {
		if p.MatchString(trimmed) {
			return entity.RiskDangerous
		}
	}
	for _, p := range moderatePatterns {
		if p.MatchString(trimmed) {
			return entity.RiskModerate
		}
	}
	return entity.RiskSafe
}

var sudoPattern = regexp.MustCompile(`(?i)(^|[;&|]\s*)(sudo\b|.*\|\s*sudo\b|su(\s+-)?(\s+-c)?\b|pkexec\b|doas\b)`)
var osascriptAdmin = regexp.MustCompile(`(?i)osascript\b.*administrator privileges`)

// IsSudoCommand reports whether cmd elevates privileges via sudo, su,
// pkexec, doas, or an osascript administrator-privileges prompt.
func IsSudoCommand(cmd string) bool {
	trimmed := strings.TrimSpace(cmd)
	return sudoPattern.MatchString(trimmed) || osascriptAdmin.MatchString(trimmed)
}

var passwordPromptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)password\s*:\s*$`),
	regexp.MustCompile(`(?i)password\s+for\s+\S+\s*:\s*$`),
	regexp.MustCompile(`密码[:：]\s*$`),
	regexp.MustCompile(`(?i)passphrase\s*:\s*$`),
	regexp.MustCompile(`(?i)\[sudo\]\s+password`),
}

// DetectPasswordPrompt scans the last five lines of output for a known
// password-prompt pattern and returns the matching line, if any.
func DetectPasswordPrompt(output string) (string, bool) {
	lines := strings.Split(strings.TrimRight(output, "\n"), "\n")
	start := 0
	if len(lines) > 5 {
		start = len(lines) - 5
	}
	for _, line := range lines[start:] {
		for _, p := range passwordPromptPatterns {
			if p.MatchString(line) {
				return strings.TrimSpace(line), true
			}
		}
	}
	return "", false
}
