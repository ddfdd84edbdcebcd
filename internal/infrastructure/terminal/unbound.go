// Package terminal holds infrastructure-side Terminal Abstraction
// adapters. The real PTY/SSH transport is an external collaborator (spec's
// own Out of scope list names it explicitly); this package only supplies
// the placeholder every run needs before a transport is attached, plus the
// wiring that lets the application layer swap one in.
package terminal

import (
	"context"

	"github.com/termpilot/engine/internal/domain/entity"
	domainterminal "github.com/termpilot/engine/internal/domain/terminal"
	"github.com/termpilot/engine/pkg/apperr"
)

// Unbound stands in for a terminal slot that has no live PTY/SSH transport
// attached yet. Every tool call against it fails with a clear, typed error
// instead of a nil-pointer panic, so a host directory entry or a run
// created before its transport connects still has something safe to hold.
type Unbound struct {
	hostID       string
	terminalType entity.TerminalType
}

// NewUnbound returns a placeholder Terminal for hostID, reporting
// terminalType so prompt-building and host listing still see the right
// shape even though no transport is attached.
func NewUnbound(hostID string, terminalType entity.TerminalType) *Unbound {
	if terminalType == "" {
		terminalType = entity.TerminalLocal
	}
	return &Unbound{hostID: hostID, terminalType: terminalType}
}

var errUnbound = apperr.New(apperr.CodeNotFound, "no terminal transport attached to this session yet")

func (u *Unbound) Write(ctx context.Context, data []byte) error { return errUnbound }

func (u *Unbound) SubscribeData(handler func(chunk []byte)) (unsubscribe func()) {
	return func() {}
}

func (u *Unbound) ExecuteAndCapture(ctx context.Context, command string, timeoutMS int) (domainterminal.CaptureResult, error) {
	return domainterminal.CaptureResult{}, errUnbound
}

func (u *Unbound) Status(ctx context.Context) (domainterminal.Status, error) {
	return domainterminal.Status{Busy: false, Reason: "no transport attached"}, errUnbound
}

func (u *Unbound) LastExitCode(ctx context.Context) (int, bool) { return 0, false }

func (u *Unbound) HasInstance() bool { return false }

func (u *Unbound) TerminalType() entity.TerminalType { return u.terminalType }

var _ domainterminal.Terminal = (*Unbound)(nil)
