package service

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/termpilot/engine/internal/domain/entity"
	domaintool "github.com/termpilot/engine/internal/domain/tool"
	"github.com/termpilot/engine/internal/domain/valueobject"
)

// fakeLLMClient replays a fixed sequence of responses, one per call.
type fakeLLMClient struct {
	responses []*LLMResponse
	calls     int
}

func (f *fakeLLMClient) Generate(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	return f.GenerateStream(ctx, req, nil)
}

func (f *fakeLLMClient) GenerateStream(ctx context.Context, req *LLMRequest, deltaCh chan<- StreamChunk) (*LLMResponse, error) {
	if f.calls >= len(f.responses) {
		return &LLMResponse{Content: "done"}, nil
	}
	resp := f.responses[f.calls]
	f.calls++
	if deltaCh != nil && resp.Content != "" {
		deltaCh <- StreamChunk{DeltaText: resp.Content, FinishReason: "stop"}
	}
	return resp, nil
}

// fakeToolExecutor answers every tool call with a fixed success result.
type fakeToolExecutor struct {
	defs   []domaintool.Definition
	risk   entity.RiskLevel
	called []string
}

func (f *fakeToolExecutor) Execute(ctx context.Context, name string, args map[string]interface{}) (*domaintool.Result, error) {
	f.called = append(f.called, name)
	return &domaintool.Result{Output: "ok", Success: true}, nil
}

func (f *fakeToolExecutor) GetDefinitions() []domaintool.Definition { return f.defs }
func (f *fakeToolExecutor) GetToolKind(name string) domaintool.Kind { return domaintool.KindRead }
func (f *fakeToolExecutor) RiskLevel(name string, args map[string]interface{}) entity.RiskLevel {
	if f.risk == "" {
		return entity.RiskSafe
	}
	return f.risk
}

func newTestRun() *entity.AgentRun {
	return entity.NewAgentRun("run-1", entity.AgentConfig{}, entity.AgentContext{})
}

func drainEvents(ch <-chan SchedulerEvent) []SchedulerEvent {
	var events []SchedulerEvent
	for e := range ch {
		events = append(events, e)
	}
	return events
}

func TestScheduler_CompletesWithNoToolCalls(t *testing.T) {
	llm := &fakeLLMClient{responses: []*LLMResponse{{Content: "the answer is 42"}}}
	tools := &fakeToolExecutor{}
	sched := NewScheduler(llm, tools, nil, DefaultSchedulerConfig(), zap.NewNop())

	run := newTestRun()
	result, eventCh := sched.Run(context.Background(), run, "system prompt", nil)
	events := drainEvents(eventCh)

	if result.FinalContent != "the answer is 42" {
		t.Fatalf("FinalContent: got %q", result.FinalContent)
	}
	if result.TotalSteps != 1 {
		t.Errorf("TotalSteps: got %d, want 1", result.TotalSteps)
	}

	var sawDone bool
	for _, e := range events {
		if e.Type == EventDone {
			sawDone = true
		}
	}
	if !sawDone {
		t.Error("expected an EventDone event")
	}
}

func TestScheduler_RunsToolCallThenCompletes(t *testing.T) {
	llm := &fakeLLMClient{responses: []*LLMResponse{
		{Content: "", ToolCalls: []entity.ToolCall{{ID: "tc_1", Name: "read_file", Arguments: `{"path":"a.go"}`}}},
		{Content: "file read, all done"},
	}}
	tools := &fakeToolExecutor{}
	sched := NewScheduler(llm, tools, nil, DefaultSchedulerConfig(), zap.NewNop())

	run := newTestRun()
	result, eventCh := sched.Run(context.Background(), run, "system prompt", nil)
	drainEvents(eventCh)

	if result.FinalContent != "file read, all done" {
		t.Fatalf("FinalContent: got %q", result.FinalContent)
	}
	if len(tools.called) != 1 || tools.called[0] != "read_file" {
		t.Errorf("expected read_file to be called once, got %v", tools.called)
	}
	if len(result.ToolsUsed) != 1 || result.ToolsUsed[0] != "read_file" {
		t.Errorf("ToolsUsed: got %v", result.ToolsUsed)
	}
	if len(run.Messages) == 0 {
		t.Error("expected run.Messages to be populated after the run")
	}
}

func TestScheduler_ConfirmationDenied_ToolNotExecuted(t *testing.T) {
	llm := &fakeLLMClient{responses: []*LLMResponse{
		{Content: "", ToolCalls: []entity.ToolCall{{ID: "tc_1", Name: "execute_command", Arguments: `{"command":"rm -rf /"}`}}},
		{Content: "understood, stopping"},
	}}
	tools := &fakeToolExecutor{risk: entity.RiskDangerous}
	cfg := entity.AgentConfig{ExecutionMode: valueobject.ExecutionStrict}
	hook := NewConfirmationHook(cfg, func(ctx context.Context, toolName string, risk entity.RiskLevel, hint string) (bool, error) {
		return false, nil
	}, zap.NewNop())

	sched := NewScheduler(llm, tools, hook, DefaultSchedulerConfig(), zap.NewNop())
	run := newTestRun()
	result, eventCh := sched.Run(context.Background(), run, "system prompt", nil)
	drainEvents(eventCh)

	if len(tools.called) != 0 {
		t.Errorf("expected the tool to never execute, got %v", tools.called)
	}
	if result.FinalContent != "understood, stopping" {
		t.Errorf("FinalContent: got %q", result.FinalContent)
	}
}

func TestScheduler_AbortsOnContextCancel(t *testing.T) {
	llm := &fakeLLMClient{responses: []*LLMResponse{{Content: "should not be reached"}}}
	tools := &fakeToolExecutor{}
	sched := NewScheduler(llm, tools, nil, DefaultSchedulerConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := newTestRun()
	_, eventCh := sched.Run(ctx, run, "system prompt", nil)
	events := drainEvents(eventCh)

	if len(events) == 0 || events[0].Type != EventError {
		t.Fatalf("expected an immediate EventError on cancelled context, got %+v", events)
	}
}

func TestScheduler_RetriesRetryableNetworkError(t *testing.T) {
	cfg := DefaultSchedulerConfig()
	cfg.RetryBaseWait = 1 * time.Millisecond

	llm := &retryOnceClient{finalResp: &LLMResponse{Content: "recovered"}}
	tools := &fakeToolExecutor{}
	sched := NewScheduler(llm, tools, nil, cfg, zap.NewNop())

	run := newTestRun()
	result, eventCh := sched.Run(context.Background(), run, "system prompt", nil)
	drainEvents(eventCh)

	if result.FinalContent != "recovered" {
		t.Fatalf("FinalContent: got %q, want recovered after retry", result.FinalContent)
	}
	if llm.attempts != 2 {
		t.Errorf("expected 2 attempts (1 failure + 1 success), got %d", llm.attempts)
	}
}

// retryOnceClient fails its first call with a retryable network error, then
// succeeds.
type retryOnceClient struct {
	attempts  int
	finalResp *LLMResponse
}

func (c *retryOnceClient) Generate(ctx context.Context, req *LLMRequest) (*LLMResponse, error) {
	return c.GenerateStream(ctx, req, nil)
}

func (c *retryOnceClient) GenerateStream(ctx context.Context, req *LLMRequest, deltaCh chan<- StreamChunk) (*LLMResponse, error) {
	c.attempts++
	if c.attempts == 1 {
		return nil, errConnReset
	}
	if deltaCh != nil {
		deltaCh <- StreamChunk{DeltaText: c.finalResp.Content, FinishReason: "stop"}
	}
	return c.finalResp, nil
}

var errConnReset = &testNetError{msg: "read: connection reset by peer"}

type testNetError struct{ msg string }

func (e *testNetError) Error() string { return e.msg }
