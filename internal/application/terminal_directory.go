package application

import (
	"sync"

	"github.com/termpilot/engine/internal/domain/entity"
	domainterminal "github.com/termpilot/engine/internal/domain/terminal"
	infraterminal "github.com/termpilot/engine/internal/infrastructure/terminal"
)

// terminalDirectory is the in-process registry of terminal sessions a run
// may bind to, keyed by host id. Every entry starts out as an Unbound
// placeholder; BindTerminal swaps in the real Terminal once the interfaces
// layer has a live PTY/SSH transport attached to it.
type terminalDirectory struct {
	mu        sync.RWMutex
	terminals map[string]domainterminal.Terminal
}

func newTerminalDirectory() *terminalDirectory {
	return &terminalDirectory{terminals: make(map[string]domainterminal.Terminal)}
}

func (d *terminalDirectory) registerUnbound(hostID string, terminalType string) {
	tt := entity.TerminalType(terminalType)
	if tt == "" {
		tt = entity.TerminalLocal
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.terminals[hostID]; !exists {
		d.terminals[hostID] = infraterminal.NewUnbound(hostID, tt)
	}
}

func (d *terminalDirectory) bind(hostID string, t domainterminal.Terminal) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.terminals[hostID] = t
}

func (d *terminalDirectory) has(hostID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.terminals[hostID]
	return ok
}

func (d *terminalDirectory) get(hostID string) (domainterminal.Terminal, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.terminals[hostID]
	return t, ok
}
