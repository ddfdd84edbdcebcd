package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/termpilot/engine/internal/domain/entity"
	domaintool "github.com/termpilot/engine/internal/domain/tool"
)

const maxAskUserTimeoutMS = 300000

// UserReplyWaiter blocks until the run's owning scheduler receives a user
// reply for an outstanding ask_user call, or the timeout elapses.
type UserReplyWaiter interface {
	WaitForUserReply(ctx context.Context, timeout time.Duration) (reply string, timedOut bool)
}

// AskUserTool pauses the run to request clarification from the user.
type AskUserTool struct {
	waiter UserReplyWaiter
}

func NewAskUserTool(waiter UserReplyWaiter) *AskUserTool { return &AskUserTool{waiter: waiter} }

func (t *AskUserTool) Name() string          { return "ask_user" }
func (t *AskUserTool) Kind() domaintool.Kind { return domaintool.KindCommunicate }
func (t *AskUserTool) Description() string {
	return "Ask the user a clarifying question and wait for their reply, up to 5 minutes."
}
func (t *AskUserTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"question":   map[string]interface{}{"type": "string"},
			"default":    map[string]interface{}{"type": "string", "description": "Fallback answer to use if the user doesn't reply in time"},
			"timeout_ms": map[string]interface{}{"type": "integer", "description": "Up to 300000 (5 minutes), default 300000"},
		},
		"required": []string{"question"},
	}
}
func (t *AskUserTool) RiskLevel(map[string]interface{}) entity.RiskLevel { return entity.RiskSafe }

func (t *AskUserTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	question := stringArg(args, "question")
	if question == "" {
		return &domaintool.Result{Success: false, Error: "question is required"}, nil
	}
	timeoutMS := maxAskUserTimeoutMS
	if v, ok := intArg(args, "timeout_ms"); ok && v > 0 && v < maxAskUserTimeoutMS {
		timeoutMS = v
	}

	reply, timedOut := t.waiter.WaitForUserReply(ctx, time.Duration(timeoutMS)*time.Millisecond)
	if !timedOut {
		return &domaintool.Result{Success: true, Output: reply}, nil
	}

	if def, ok := args["default"].(string); ok && def != "" {
		return &domaintool.Result{
			Success:  true,
			Output:   def,
			Metadata: map[string]interface{}{"used_default": true},
		}, nil
	}
	return &domaintool.Result{
		Success: false,
		Error:   fmt.Sprintf("no reply received within %dms and no default was given", timeoutMS),
	}, nil
}

// RunSignal reports the conditions that can interrupt an in-progress wait.
type RunSignal interface {
	Aborted() bool
	HasPendingUserMessage() bool
}

// WaitTool pauses execution for a bounded duration, checking periodically
// for abort or a new user message so it never blocks the run pointlessly.
type WaitTool struct {
	signal RunSignal
	tick   time.Duration
}

func NewWaitTool(signal RunSignal) *WaitTool {
	return &WaitTool{signal: signal, tick: time.Second}
}

func (t *WaitTool) Name() string          { return "wait" }
func (t *WaitTool) Kind() domaintool.Kind { return domaintool.KindThink }
func (t *WaitTool) Description() string {
	return "Pause for a number of seconds, e.g. while a background process finishes. Interruptible by a new user message."
}
func (t *WaitTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"seconds": map[string]interface{}{"type": "integer"},
			"reason":  map[string]interface{}{"type": "string"},
		},
		"required": []string{"seconds"},
	}
}
func (t *WaitTool) RiskLevel(map[string]interface{}) entity.RiskLevel { return entity.RiskSafe }

func (t *WaitTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	seconds, ok := intArg(args, "seconds")
	if !ok || seconds <= 0 {
		return &domaintool.Result{Success: false, Error: "seconds must be a positive integer"}, nil
	}

	tick := t.tick
	if tick <= 0 {
		tick = time.Second
	}
	deadline := time.Now().Add(time.Duration(seconds) * time.Second)

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return &domaintool.Result{Success: false, Output: "interrupted", Error: ctx.Err().Error()}, nil
		case <-time.After(tick):
		}
		if t.signal != nil {
			if t.signal.Aborted() {
				return &domaintool.Result{Success: true, Output: "wait aborted"}, nil
			}
			if t.signal.HasPendingUserMessage() {
				return &domaintool.Result{Success: true, Output: "wait interrupted by a new user message"}, nil
			}
		}
	}
	return &domaintool.Result{Success: true, Output: fmt.Sprintf("waited %ds", seconds)}, nil
}
