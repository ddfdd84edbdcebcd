package tool

import (
	"context"
	"fmt"

	"github.com/termpilot/engine/internal/domain/entity"
	"github.com/termpilot/engine/internal/domain/risk"
	domaintool "github.com/termpilot/engine/internal/domain/tool"
	"github.com/termpilot/engine/internal/domain/terminal"
	"go.uber.org/zap"
)

// TerminalSession resolves the terminal bound to the current run — the
// Tool Executor is handed one session per run, not a pool, since every
// terminal-driving tool call in a run targets the same PTY/SSH session.
type TerminalSession interface {
	terminal.Terminal
}

const defaultExecuteTimeoutMS = 30000

// ExecuteCommandTool runs a shell command in the bound terminal and
// captures its output, applying the Risk Assessor's handling strategy
// (auto-fix, timed execution, or block) before running anything.
type ExecuteCommandTool struct {
	term   TerminalSession
	logger *zap.Logger
}

func NewExecuteCommandTool(term TerminalSession, logger *zap.Logger) *ExecuteCommandTool {
	return &ExecuteCommandTool{term: term, logger: logger}
}

func (t *ExecuteCommandTool) Name() string            { return "execute_command" }
func (t *ExecuteCommandTool) Kind() domaintool.Kind    { return domaintool.KindExecute }
func (t *ExecuteCommandTool) Description() string {
	return `Run a shell command in the connected terminal and return its output.
Full-screen programs (vim, top, tmux) are rejected — read/write files directly or use send_control_key instead.
A command judged dangerous or blocked requires confirmation before it runs.`
}

func (t *ExecuteCommandTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{
				"type":        "string",
				"description": "The shell command to run",
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "Override the default 30s completion timeout",
			},
		},
		"required": []string{"command"},
	}
}

func (t *ExecuteCommandTool) RiskLevel(args map[string]interface{}) entity.RiskLevel {
	cmd, _ := args["command"].(string)
	return risk.AssessRisk(cmd)
}

func (t *ExecuteCommandTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	command, ok := args["command"].(string)
	if !ok || command == "" {
		return &domaintool.Result{Success: false, Error: "command is required"}, nil
	}

	handling := risk.AnalyzeCommand(command)
	switch handling.Strategy {
	case risk.StrategyBlock:
		return &domaintool.Result{Success: false, Error: handling.Hint}, nil
	case risk.StrategyAutoFix:
		t.logger.Debug("auto-fixed command", zap.String("original", command), zap.String("fixed", handling.FixedCommand))
		command = handling.FixedCommand
	}

	timeoutMS := defaultExecuteTimeoutMS
	if v, ok := args["timeout_ms"].(float64); ok && v > 0 {
		timeoutMS = int(v)
	}
	if handling.Strategy == risk.StrategyTimedExecution && handling.SuggestedTimeoutMS > 0 {
		timeoutMS = handling.SuggestedTimeoutMS
	}

	capture, err := t.term.ExecuteAndCapture(ctx, command, timeoutMS)
	if err != nil {
		if err == terminal.ErrExecuteTimeout {
			if status, statusErr := t.term.Status(ctx); statusErr == nil && status.Busy {
				return &domaintool.Result{
					Success: true,
					Output:  capture.Output,
					Metadata: map[string]interface{}{
						"duration_ms": capture.DurationMS,
						"is_running":  true,
					},
				}, nil
			}
		}
		return &domaintool.Result{
			Success: false,
			Output:  capture.Output,
			Error:   err.Error(),
			Metadata: map[string]interface{}{
				"duration_ms": capture.DurationMS,
				"timed_out":   true,
			},
		}, nil
	}

	out := capture.Output
	if pw, found := risk.DetectPasswordPrompt(out); found {
		out += fmt.Sprintf("\n[password prompt detected for %q — use send_input to supply it]", pw)
	}

	exitCode, known := t.term.LastExitCode(ctx)
	meta := map[string]interface{}{"duration_ms": capture.DurationMS}
	if known {
		meta["exit_code"] = exitCode
	}

	return &domaintool.Result{Success: true, Output: out, Metadata: meta}, nil
}

// CheckTerminalStatusTool reports whether the bound terminal is idle or
// still busy running a previous command.
type CheckTerminalStatusTool struct {
	term TerminalSession
}

func NewCheckTerminalStatusTool(term TerminalSession) *CheckTerminalStatusTool {
	return &CheckTerminalStatusTool{term: term}
}

func (t *CheckTerminalStatusTool) Name() string         { return "check_terminal_status" }
func (t *CheckTerminalStatusTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *CheckTerminalStatusTool) Description() string {
	return "Report whether the connected terminal is idle or still busy running a command."
}
func (t *CheckTerminalStatusTool) Schema() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (t *CheckTerminalStatusTool) RiskLevel(map[string]interface{}) entity.RiskLevel {
	return entity.RiskSafe
}

func (t *CheckTerminalStatusTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	status, err := t.term.Status(ctx)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	state := "idle"
	if status.Busy {
		state = "busy"
	}
	out := fmt.Sprintf("terminal is %s", state)
	if status.Reason != "" {
		out += fmt.Sprintf(" (%s)", status.Reason)
	}
	return &domaintool.Result{
		Success:  true,
		Output:   out,
		Metadata: map[string]interface{}{"busy": status.Busy},
	}, nil
}

const defaultTerminalContextLines = 50

// RealtimeOutputSource reads the run's realtime output ring — the lines
// accumulated since the terminal connected, independent of any single
// execute_command's own capture.
type RealtimeOutputSource interface {
	RealtimeOutput() []string
}

// GetTerminalContextTool returns the tail of the run's realtime terminal
// output buffer, letting the model re-orient on what the screen currently
// shows without issuing a new command.
type GetTerminalContextTool struct {
	output RealtimeOutputSource
}

func NewGetTerminalContextTool(output RealtimeOutputSource) *GetTerminalContextTool {
	return &GetTerminalContextTool{output: output}
}

func (t *GetTerminalContextTool) Name() string         { return "get_terminal_context" }
func (t *GetTerminalContextTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *GetTerminalContextTool) Description() string {
	return "Return the last N lines of the terminal's realtime output buffer, to re-orient without running a new command."
}
func (t *GetTerminalContextTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"max_lines": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum number of trailing lines to return (default 50)",
			},
		},
	}
}
func (t *GetTerminalContextTool) RiskLevel(map[string]interface{}) entity.RiskLevel {
	return entity.RiskSafe
}

func (t *GetTerminalContextTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	maxLines := defaultTerminalContextLines
	if v, ok := args["max_lines"].(float64); ok && v > 0 {
		maxLines = int(v)
	}
	lines := t.output.RealtimeOutput()
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return &domaintool.Result{
		Success:  true,
		Output:   joinLines(lines),
		Metadata: map[string]interface{}{"lines": len(lines)},
	}, nil
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

// controlKeySequences maps a named control key to the bytes it sends —
// execute_command can't reach full-screen or interactive programs, so
// send_control_key is how the model steers out of one.
var controlKeySequences = map[string]string{
	"ctrl+c": "\x03",
	"ctrl+d": "\x04",
	"ctrl+z": "\x1a",
	"ctrl+l": "\x0c",
	"ctrl+u": "\x15",
	"enter":  "\r",
	"esc":    "\x1b",
	"tab":    "\t",
	"q":      "q",
	"up":     "\x1b[A",
	"down":   "\x1b[B",
	"left":   "\x1b[D",
	"right":  "\x1b[C",
}

// SendControlKeyTool sends a named control key or key sequence to the
// terminal — the escape hatch out of a full-screen program or prompt that
// execute_command's prompt-detection can't resolve.
type SendControlKeyTool struct {
	term TerminalSession
}

func NewSendControlKeyTool(term TerminalSession) *SendControlKeyTool {
	return &SendControlKeyTool{term: term}
}

func (t *SendControlKeyTool) Name() string         { return "send_control_key" }
func (t *SendControlKeyTool) Kind() domaintool.Kind { return domaintool.KindExecute }
func (t *SendControlKeyTool) Description() string {
	return "Send a named control key (ctrl+c, ctrl+d, ctrl+z, ctrl+l, ctrl+u, enter, esc, tab, up, down, left, right, q) to the terminal."
}
func (t *SendControlKeyTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"key": map[string]interface{}{
				"type":        "string",
				"description": "One of: ctrl+c, ctrl+d, ctrl+z, ctrl+l, ctrl+u, enter, esc, tab, up, down, left, right, q",
			},
		},
		"required": []string{"key"},
	}
}
func (t *SendControlKeyTool) RiskLevel(map[string]interface{}) entity.RiskLevel {
	return entity.RiskSafe
}

func (t *SendControlKeyTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	key, _ := args["key"].(string)
	seq, ok := controlKeySequences[key]
	if !ok {
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("unsupported control key %q", key)}, nil
	}
	if err := t.term.Write(ctx, []byte(seq)); err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	return &domaintool.Result{Success: true, Output: fmt.Sprintf("sent %s", key)}, nil
}

// SendInputTool writes raw text (optionally followed by Enter) to the
// terminal — used to answer an interactive prompt, most commonly a
// password prompt execute_command detected but could not fill in itself.
type SendInputTool struct {
	term TerminalSession
}

func NewSendInputTool(term TerminalSession) *SendInputTool {
	return &SendInputTool{term: term}
}

func (t *SendInputTool) Name() string         { return "send_input" }
func (t *SendInputTool) Kind() domaintool.Kind { return domaintool.KindExecute }
func (t *SendInputTool) Description() string {
	return "Write raw text to the terminal, e.g. to answer a password or interactive prompt. Appends Enter unless no_newline is set."
}
func (t *SendInputTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"text": map[string]interface{}{
				"type":        "string",
				"description": "The text to type",
			},
			"no_newline": map[string]interface{}{
				"type":        "boolean",
				"description": "Don't append Enter after the text",
			},
			"sensitive": map[string]interface{}{
				"type":        "boolean",
				"description": "Mark this input as a secret (e.g. a password) so it is not echoed back in the tool result",
			},
		},
		"required": []string{"text"},
	}
}
func (t *SendInputTool) RiskLevel(map[string]interface{}) entity.RiskLevel {
	return entity.RiskSafe
}

const maxSendInputLen = 1000

func (t *SendInputTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	text, _ := args["text"].(string)
	if text == "" {
		return &domaintool.Result{Success: false, Error: "text must not be empty"}, nil
	}
	if len(text) > maxSendInputLen {
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("text exceeds %d characters, use write_file", maxSendInputLen)}, nil
	}
	noNewline, _ := args["no_newline"].(bool)
	sensitive, _ := args["sensitive"].(bool)

	payload := text
	if !noNewline {
		payload += "\r"
	}
	if err := t.term.Write(ctx, []byte(payload)); err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	if sensitive {
		return &domaintool.Result{Success: true, Output: "input sent"}, nil
	}
	return &domaintool.Result{Success: true, Output: fmt.Sprintf("sent %q", text)}, nil
}
