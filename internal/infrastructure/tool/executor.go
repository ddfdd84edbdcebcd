package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/termpilot/engine/internal/domain/entity"
	domaintool "github.com/termpilot/engine/internal/domain/tool"
	"go.uber.org/zap"
)

// Executor adapts a domaintool.Registry into the Scheduler's
// service.ToolExecutor contract, logging every dispatch and converting a
// missing tool into a Result rather than a Go error so the model sees it
// as an ordinary failed call.
type Executor struct {
	registry domaintool.Registry
	logger   *zap.Logger
}

// NewExecutor builds a ToolExecutor over an already-populated registry.
func NewExecutor(registry domaintool.Registry, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{registry: registry, logger: logger}
}

// Execute looks up name in the registry and runs it with args.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]interface{}) (*domaintool.Result, error) {
	start := time.Now()

	t, ok := e.registry.Get(name)
	if !ok {
		e.logger.Warn("tool not found", zap.String("tool", name))
		return &domaintool.Result{
			Success: false,
			Error:   fmt.Sprintf("tool %q is not registered", name),
		}, nil
	}

	result, err := t.Execute(ctx, args)
	duration := time.Since(start)
	if err != nil {
		e.logger.Error("tool execution error", zap.String("tool", name), zap.Duration("duration", duration), zap.Error(err))
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	e.logger.Info("tool executed",
		zap.String("tool", name),
		zap.Duration("duration", duration),
		zap.Bool("success", result.Success),
	)
	return result, nil
}

// GetDefinitions returns every registered tool's schema for the model's
// tool catalog.
func (e *Executor) GetDefinitions() []domaintool.Definition {
	return e.registry.List()
}

// GetToolKind reports the registered tool's Kind, or KindRead if unknown —
// callers use this only to decide formatting, never to gate execution.
func (e *Executor) GetToolKind(name string) domaintool.Kind {
	if t, ok := e.registry.Get(name); ok {
		return t.Kind()
	}
	return domaintool.KindRead
}

// RiskLevel derives the risk level for a specific call, or RiskBlocked if
// the tool isn't registered — an unregistered tool call should never be
// auto-approved.
func (e *Executor) RiskLevel(name string, args map[string]interface{}) entity.RiskLevel {
	t, ok := e.registry.Get(name)
	if !ok {
		return entity.RiskBlocked
	}
	return t.RiskLevel(args)
}
