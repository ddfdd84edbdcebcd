package terminal

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/termpilot/engine/internal/domain/entity"
)

// exitCodeMarker tags the echo used to recover the last exit code on a
// local PTY — there is no side channel, so this echo is user-visible in
// the interactive stream. This is a documented limitation of the local
// transport, not a defect.
const exitCodeMarker = "__TERMPILOT_EXIT__"

var exitCodePattern = regexp.MustCompile(exitCodeMarker + `:(\d+)`)

// LocalTerminal is the local-PTY-backed Terminal variant.
type LocalTerminal struct {
	rt         RawTransport
	lastOutput string
}

// NewLocalTerminal wraps a local PTY RawTransport.
func NewLocalTerminal(rt RawTransport) *LocalTerminal {
	return &LocalTerminal{rt: rt}
}

func (t *LocalTerminal) Write(ctx context.Context, data []byte) error {
	return t.rt.Write(ctx, data)
}

func (t *LocalTerminal) SubscribeData(handler func(chunk []byte)) (unsubscribe func()) {
	return t.rt.Subscribe(handler)
}

func (t *LocalTerminal) ExecuteAndCapture(ctx context.Context, command string, timeoutMS int) (CaptureResult, error) {
	result, err := runAndCapture(ctx, t.rt, command, timeoutMS)
	t.lastOutput = result.Output
	return result, err
}

func (t *LocalTerminal) Status(ctx context.Context) (Status, error) {
	if !t.rt.Alive() {
		return Status{Busy: false, Reason: "terminal not connected"}, nil
	}
	return Status{Busy: false, Reason: "idle"}, nil
}

// LastExitCode runs `echo $? # <marker>` and parses the reply from the
// user-visible stream, since local PTYs have no side channel.
func (t *LocalTerminal) LastExitCode(ctx context.Context) (int, bool) {
	marker := fmt.Sprintf("%s:$?", exitCodeMarker)
	cmd := fmt.Sprintf("echo %s:$? # %s", exitCodeMarker, marker)
	result, err := runAndCapture(ctx, t.rt, cmd, 5000)
	if err != nil {
		return 0, false
	}
	m := exitCodePattern.FindStringSubmatch(result.Output)
	if m == nil {
		return 0, false
	}
	code, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return code, true
}

func (t *LocalTerminal) HasInstance() bool { return t.rt.Alive() }

func (t *LocalTerminal) TerminalType() entity.TerminalType { return entity.TerminalLocal }
