// Package terminal defines the Terminal Abstraction: a capability set over
// a raw PTY/SSH transport (itself out of scope — a consumed external
// component) that the Tool Executor drives to run commands and capture
// their output.
package terminal

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/termpilot/engine/internal/domain/entity"
	"github.com/termpilot/engine/pkg/apperr"
)

// RawTransport is the external, out-of-scope collaborator that actually
// owns the PTY or SSH session: raw byte in/out and a liveness probe. Both
// the local and SSH Terminal variants are built on top of one of these.
type RawTransport interface {
	// Write sends raw bytes to the session (keystrokes or a command line).
	Write(ctx context.Context, data []byte) error
	// Subscribe registers a callback invoked with each chunk of output as
	// it arrives; the returned func unsubscribes.
	Subscribe(func(chunk []byte)) (unsubscribe func())
	// Alive reports whether the underlying session is still connected.
	Alive() bool
}

// CaptureResult is what execute_and_capture returns.
type CaptureResult struct {
	Output     string
	DurationMS int64
}

// Status is the idle/busy verdict check_terminal_status reports.
type Status struct {
	Busy   bool
	Reason string
}

// Terminal is the capability set the Tool Executor drives: write,
// subscribe to raw output, run-and-capture a command, report status, and
// recall the last exit code.
type Terminal interface {
	Write(ctx context.Context, data []byte) error
	SubscribeData(handler func(chunk []byte)) (unsubscribe func())
	ExecuteAndCapture(ctx context.Context, command string, timeoutMS int) (CaptureResult, error)
	Status(ctx context.Context) (Status, error)
	LastExitCode(ctx context.Context) (int, bool)
	HasInstance() bool
	TerminalType() entity.TerminalType
}

// quietPeriod is how long output must be silent before execute_and_capture
// considers the command finished (absent an earlier prompt match).
const quietPeriod = 300 * time.Millisecond

// shellPromptPatterns is the closed set of prompt shapes that end a
// command's output early, before the quiet period elapses.
var shellPromptPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[$#%>]\s*$`),
	regexp.MustCompile(`(?m)^\S+@\S+:.*[$#]\s*$`),
	regexp.MustCompile(`(?m)^PS [A-Za-z]:.*>\s*$`),
}

func looksLikePrompt(tail string) bool {
	trimmed := strings.TrimRight(tail, " \t")
	for _, p := range shellPromptPatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// ErrExecuteTimeout is returned by runAndCapture when neither a prompt nor
// a quiet period was observed before timeoutMS elapsed.
var ErrExecuteTimeout = apperr.New(apperr.CodeTimeout, "command did not complete before timeout")

// runAndCapture is the shared execute_and_capture algorithm both the local
// and SSH variants drive their RawTransport through: it completes as soon
// as the captured output ends in a shell prompt, after 300ms with no new
// output, or on timeout (returning ErrExecuteTimeout).
func runAndCapture(ctx context.Context, rt RawTransport, command string, timeoutMS int) (CaptureResult, error) {
	start := time.Now()
	var buf strings.Builder
	dataCh := make(chan []byte, 64)

	unsubscribe := rt.Subscribe(func(chunk []byte) {
		select {
		case dataCh <- chunk:
		default:
		}
	})
	defer unsubscribe()

	if err := rt.Write(ctx, []byte(command+"\n")); err != nil {
		return CaptureResult{}, apperr.Wrap(apperr.CodeTerminalBusy, "failed to write command", err)
	}

	timeout := time.Duration(timeoutMS) * time.Millisecond
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	quiet := time.NewTimer(quietPeriod)
	defer quiet.Stop()

	for {
		select {
		case chunk := <-dataCh:
			buf.Write(chunk)
			if !quiet.Stop() {
				select {
				case <-quiet.C:
				default:
				}
			}
			quiet.Reset(quietPeriod)
			if looksLikePrompt(buf.String()) {
				return CaptureResult{Output: buf.String(), DurationMS: time.Since(start).Milliseconds()}, nil
			}
		case <-quiet.C:
			return CaptureResult{Output: buf.String(), DurationMS: time.Since(start).Milliseconds()}, nil
		case <-deadline.C:
			return CaptureResult{Output: buf.String(), DurationMS: time.Since(start).Milliseconds()}, ErrExecuteTimeout
		case <-ctx.Done():
			return CaptureResult{Output: buf.String(), DurationMS: time.Since(start).Milliseconds()}, ctx.Err()
		}
	}
}
