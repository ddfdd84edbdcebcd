package prompt

import (
	"fmt"
	"os"
	"time"

	"github.com/termpilot/engine/internal/domain/entity"
	"github.com/termpilot/engine/internal/domain/valueobject"
)

// RuntimeBlockOptions holds the factual, per-run values BuildRuntimeBlock
// embeds — no behavioral directives, those belong in soul.md and
// prompts/*.md (user-editable).
type RuntimeBlockOptions struct {
	ModelName     string
	Workspace     string
	HostID        string
	TerminalType  entity.TerminalType
	SystemInfo    entity.SystemInfo
	ExecutionMode valueobject.ExecutionMode
}

// BuildRuntimeBlock generates the runtime environment section of the
// system prompt: which host and terminal this run is driving, and under
// what confirmation policy.
func BuildRuntimeBlock(opts RuntimeBlockOptions) string {
	hostname, _ := os.Hostname()
	now := time.Now().Format("2006-01-02 15:04:05 MST")

	modelInfo := "unknown"
	if opts.ModelName != "" {
		modelInfo = opts.ModelName
	}

	terminalType := string(opts.TerminalType)
	if terminalType == "" {
		terminalType = string(entity.TerminalLocal)
	}

	hostID := opts.HostID
	if hostID == "" {
		hostID = hostname
	}

	osName := opts.SystemInfo.OS
	if osName == "" {
		osName = "unknown"
	}
	shell := opts.SystemInfo.Shell
	if shell == "" {
		shell = "unknown"
	}

	mode := opts.ExecutionMode
	if mode == "" {
		mode = valueobject.ExecutionRelaxed
	}

	workspace := opts.Workspace
	if workspace == "" {
		workspace = "(unset)"
	}

	return fmt.Sprintf(`## Runtime Environment

- Host: %s (%s)
- OS: %s | Shell: %s
- Time: %s
- Model: %s
- Execution mode: %s

## Workspace

Working directory: %s
Commands run in the real environment of the terminal you are connected
to; file operations default to this directory unless the user specifies
another path.`,
		hostID, terminalType,
		osName, shell,
		now,
		modelInfo,
		mode,
		workspace)
}
