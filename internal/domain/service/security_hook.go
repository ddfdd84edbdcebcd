package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/termpilot/engine/internal/domain/entity"
)

// ApprovalFunc requests user confirmation for a risky tool call (typically
// surfaced through the interface layer — CLI prompt, TUI modal, websocket
// round-trip). It blocks until the user responds or ctx is cancelled.
type ApprovalFunc func(ctx context.Context, toolName string, riskLevel entity.RiskLevel, hint string) (bool, error)

// ConfirmationHook gates tool execution using spec §4.4's risk-level +
// execution-mode contract: entity.AgentConfig.NeedsConfirmation decides
// whether a call needs asking at all, and ApprovalFunc does the asking.
// Replaces the teacher's trusted/dangerous tool-name-list approach
// (SecurityConfig.ApprovalMode/TrustedTools/DangerousTools), which predates
// this domain's per-command risk classifier.
type ConfirmationHook struct {
	config       entity.AgentConfig
	approvalFunc ApprovalFunc
	logger       *zap.Logger
	mu           sync.RWMutex
}

// NewConfirmationHook creates a ConfirmationHook bound to the run's config.
func NewConfirmationHook(config entity.AgentConfig, approvalFunc ApprovalFunc, logger *zap.Logger) *ConfirmationHook {
	return &ConfirmationHook{config: config, approvalFunc: approvalFunc, logger: logger}
}

// Confirm checks whether toolName's call needs user confirmation given
// risk, and if so runs it through ApprovalFunc. Returns true when the call
// may proceed.
func (h *ConfirmationHook) Confirm(ctx context.Context, toolName string, risk entity.RiskLevel, hint string) (bool, error) {
	h.mu.RLock()
	cfg := h.config
	h.mu.RUnlock()

	if !cfg.NeedsConfirmation(risk) {
		return true, nil
	}

	if h.approvalFunc == nil {
		h.logger.Warn("No approval function set, denying risky call by default",
			zap.String("tool", toolName),
			zap.String("risk", string(risk)),
		)
		return false, nil
	}

	h.logger.Info("Requesting user confirmation for tool call",
		zap.String("tool", toolName),
		zap.String("risk", string(risk)),
	)

	approved, err := h.approvalFunc(ctx, toolName, risk, hint)
	if err != nil {
		h.logger.Error("Confirmation request failed", zap.String("tool", toolName), zap.Error(err))
		return false, err
	}
	if !approved {
		h.logger.Info("Tool call denied by user", zap.String("tool", toolName))
	}
	return approved, nil
}

// UpdateConfig replaces the bound config at runtime (e.g. the user switches
// execution mode mid-session).
func (h *ConfirmationHook) UpdateConfig(cfg entity.AgentConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.config = cfg
}

// SetApprovalFunc sets the approval callback (deferred injection after the
// interface adapter — CLI/TUI/websocket — is wired up).
func (h *ConfirmationHook) SetApprovalFunc(fn ApprovalFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.approvalFunc = fn
}
