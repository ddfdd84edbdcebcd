package terminal

import (
	"context"

	"github.com/termpilot/engine/internal/domain/entity"
)

// SideChannel is the SSH transport's out-of-band exit-status query,
// invisible to the interactive stream (unlike the local variant's
// user-visible echo). A concrete SSH transport supplies this, e.g. by
// opening a second exec channel for `echo $?`.
type SideChannel interface {
	LastExitCode(ctx context.Context) (int, error)
}

// SSHTerminal is the SSH-backed Terminal variant.
type SSHTerminal struct {
	rt   RawTransport
	side SideChannel
}

// NewSSHTerminal wraps an SSH RawTransport and its side channel.
func NewSSHTerminal(rt RawTransport, side SideChannel) *SSHTerminal {
	return &SSHTerminal{rt: rt, side: side}
}

func (t *SSHTerminal) Write(ctx context.Context, data []byte) error {
	return t.rt.Write(ctx, data)
}

func (t *SSHTerminal) SubscribeData(handler func(chunk []byte)) (unsubscribe func()) {
	return t.rt.Subscribe(handler)
}

func (t *SSHTerminal) ExecuteAndCapture(ctx context.Context, command string, timeoutMS int) (CaptureResult, error) {
	return runAndCapture(ctx, t.rt, command, timeoutMS)
}

func (t *SSHTerminal) Status(ctx context.Context) (Status, error) {
	if !t.rt.Alive() {
		return Status{Busy: false, Reason: "terminal not connected"}, nil
	}
	// SSH has no reliable foreground-process probe short of the side
	// channel; fall back to inferring from the last observed output.
	return Status{Busy: false, Reason: "state inferred from last output"}, nil
}

func (t *SSHTerminal) LastExitCode(ctx context.Context) (int, bool) {
	code, err := t.side.LastExitCode(ctx)
	if err != nil {
		return 0, false
	}
	return code, true
}

func (t *SSHTerminal) HasInstance() bool { return t.rt.Alive() }

func (t *SSHTerminal) TerminalType() entity.TerminalType { return entity.TerminalSSH }
