package orchestrator

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/termpilot/engine/internal/domain/entity"
	"github.com/termpilot/engine/internal/domain/service"
)

// scriptedLLM replays a fixed sequence of responses, one per call, the way
// the Scheduler's own test fakes do.
type scriptedLLM struct {
	responses []*service.LLMResponse
	calls     int
}

func (f *scriptedLLM) Generate(ctx context.Context, req *service.LLMRequest) (*service.LLMResponse, error) {
	return f.GenerateStream(ctx, req, nil)
}

func (f *scriptedLLM) GenerateStream(ctx context.Context, req *service.LLMRequest, deltaCh chan<- service.StreamChunk) (*service.LLMResponse, error) {
	if f.calls >= len(f.responses) {
		return &service.LLMResponse{Content: "done"}, nil
	}
	resp := f.responses[f.calls]
	f.calls++
	if deltaCh != nil && resp.Content != "" {
		deltaCh <- service.StreamChunk{DeltaText: resp.Content, FinishReason: "stop"}
	}
	return resp, nil
}

func TestOrchestrator_DispatchesAndReports(t *testing.T) {
	spawner := &fakeWorkerSpawner{result: WorkerResult{Output: "disk usage: 40%"}}
	terminals := &fakeTerminalConnector{}
	hosts := &fakeHostLister{hosts: []HostInfo{{ID: "h1", Name: "web-1"}}}

	llm := &scriptedLLM{responses: []*service.LLMResponse{
		{ToolCalls: []entity.ToolCall{{ID: "tc_1", Name: "connect_terminal", Arguments: `{"host_id":"h1","alias":"web"}`}}},
		{ToolCalls: []entity.ToolCall{{ID: "tc_2", Name: "dispatch_task", Arguments: `{"terminal_id":"web","task":"check disk"}`}}},
		{ToolCalls: []entity.ToolCall{{ID: "tc_3", Name: "analyze_and_report", Arguments: `{"findings":["disk usage: 40%"],"severity":"info"}`}}},
		{Content: "all hosts healthy"},
	}}

	orc := New(hosts, terminals, spawner, DefaultConfig(), zap.NewNop())
	result, err := orc.Run(context.Background(), "orc-1", "check disk on all hosts", "system prompt", llm, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.OrchestratorRun.Status != entity.OrchestratorCompleted {
		t.Errorf("status: got %s, want completed", result.OrchestratorRun.Status)
	}
	if len(spawner.calls) != 1 {
		t.Errorf("expected one worker dispatch, got %v", spawner.calls)
	}
	if result.FinalContent == "" {
		t.Error("expected a non-empty final report")
	}
}

func TestOrchestrator_RespectsMaxIterations(t *testing.T) {
	// A model that only ever calls list_available_hosts, never terminating,
	// must be cut off by the scheduler's MaxSteps enforcement at
	// config.MaxIterations.
	responses := make([]*service.LLMResponse, 0, 60)
	for i := 0; i < 60; i++ {
		responses = append(responses, &service.LLMResponse{
			ToolCalls: []entity.ToolCall{{ID: "tc", Name: "list_available_hosts", Arguments: `{}`}},
		})
	}
	llm := &scriptedLLM{responses: responses}
	hosts := &fakeHostLister{hosts: []HostInfo{{ID: "h1"}}}

	cfg := DefaultConfig()
	cfg.MaxIterations = 5
	orc := New(hosts, &fakeTerminalConnector{}, &fakeWorkerSpawner{}, cfg, zap.NewNop())

	var events []service.SchedulerEvent
	result, err := orc.Run(context.Background(), "orc-2", "loop forever", "system prompt", llm, nil, func(e service.SchedulerEvent) {
		events = append(events, e)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if llm.calls > cfg.MaxIterations+1 {
		t.Errorf("expected the loop to stop at MaxIterations, model was called %d times", llm.calls)
	}
	if result.OrchestratorRun.Status != entity.OrchestratorFailed {
		t.Errorf("expected failed status after hitting the iteration cap, got %s", result.OrchestratorRun.Status)
	}
}
