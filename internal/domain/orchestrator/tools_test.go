package orchestrator

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/termpilot/engine/internal/domain/entity"
)

type fakeHostLister struct {
	hosts []HostInfo
	err   error
}

func (f *fakeHostLister) ListHosts(ctx context.Context) ([]HostInfo, error) {
	return f.hosts, f.err
}

type fakeTerminalConnector struct {
	nextID  int
	closed  []string
	connErr error
}

func (f *fakeTerminalConnector) Connect(ctx context.Context, hostID string) (string, error) {
	if f.connErr != nil {
		return "", f.connErr
	}
	f.nextID++
	return hostID + "-term", nil
}

func (f *fakeTerminalConnector) Close(ctx context.Context, terminalID string) error {
	f.closed = append(f.closed, terminalID)
	return nil
}

type fakeWorkerSpawner struct {
	result WorkerResult
	calls  []string
}

func (f *fakeWorkerSpawner) SpawnWorker(ctx context.Context, terminalID, task string, reportProgress bool, onStep func(entity.Step)) WorkerResult {
	f.calls = append(f.calls, terminalID+":"+task)
	return f.result
}

func newTestToolSet(hosts HostLister, terminals TerminalConnector, workers WorkerSpawner) *toolSet {
	run := entity.NewOrchestratorRun("orc-1", "do the thing", entity.AgentConfig{})
	return newToolSet(run, hosts, terminals, workers, DefaultConfig(), zap.NewNop())
}

func TestListAvailableHosts(t *testing.T) {
	ts := newTestToolSet(&fakeHostLister{hosts: []HostInfo{{ID: "h1", Name: "web-1", Address: "10.0.0.1"}}}, nil, nil)
	tool := &listAvailableHostsTool{ts}
	res, err := tool.Execute(context.Background(), nil)
	if err != nil || !res.Success {
		t.Fatalf("unexpected failure: %v %+v", err, res)
	}
	if res.Output == "" {
		t.Error("expected non-empty host listing")
	}
}

func TestConnectTerminal_RegistersAliasAndWorker(t *testing.T) {
	ts := newTestToolSet(nil, &fakeTerminalConnector{}, nil)
	tool := &connectTerminalTool{ts}
	res, err := tool.Execute(context.Background(), map[string]interface{}{"host_id": "h1", "alias": "web"})
	if err != nil || !res.Success {
		t.Fatalf("unexpected failure: %v %+v", err, res)
	}
	id, w, ok := ts.resolveTerminal("web")
	if !ok {
		t.Fatal("expected alias 'web' to resolve")
	}
	if id != "h1-term" {
		t.Errorf("terminal id: got %q", id)
	}
	if w.Status != entity.WorkerIdle {
		t.Errorf("status: got %s, want idle", w.Status)
	}
}

func TestConnectTerminal_MissingHostID(t *testing.T) {
	ts := newTestToolSet(nil, &fakeTerminalConnector{}, nil)
	tool := &connectTerminalTool{ts}
	res, _ := tool.Execute(context.Background(), map[string]interface{}{})
	if res.Success {
		t.Error("expected failure without host_id")
	}
}

func TestDispatchTask_WaitsAndRecordsResult(t *testing.T) {
	spawner := &fakeWorkerSpawner{result: WorkerResult{Output: "done!"}}
	ts := newTestToolSet(nil, &fakeTerminalConnector{}, spawner)
	connect := &connectTerminalTool{ts}
	if _, err := connect.Execute(context.Background(), map[string]interface{}{"host_id": "h1", "alias": "web"}); err != nil {
		t.Fatal(err)
	}

	dispatch := &dispatchTaskTool{ts}
	res, err := dispatch.Execute(context.Background(), map[string]interface{}{"terminal_id": "web", "task": "check disk"})
	if err != nil || !res.Success {
		t.Fatalf("unexpected failure: %v %+v", err, res)
	}
	if len(spawner.calls) != 1 {
		t.Fatalf("expected one worker spawn, got %v", spawner.calls)
	}
	_, w, _ := ts.resolveTerminal("web")
	if w.Status != entity.WorkerCompleted || w.Result != "done!" {
		t.Errorf("worker state: got %+v", w)
	}
}

func TestDispatchTask_PropagatesWorkerFailure(t *testing.T) {
	spawner := &fakeWorkerSpawner{result: WorkerResult{Err: errors.New("boom")}}
	ts := newTestToolSet(nil, &fakeTerminalConnector{}, spawner)
	connect := &connectTerminalTool{ts}
	connect.Execute(context.Background(), map[string]interface{}{"host_id": "h1"})

	dispatch := &dispatchTaskTool{ts}
	res, _ := dispatch.Execute(context.Background(), map[string]interface{}{"terminal_id": "h1", "task": "reboot"})
	if res.Success {
		t.Error("expected failure result when worker errors")
	}
	_, w, _ := ts.resolveTerminal("h1")
	if w.Status != entity.WorkerFailed {
		t.Errorf("status: got %s, want failed", w.Status)
	}
}

func TestDispatchTask_UnknownTerminal(t *testing.T) {
	ts := newTestToolSet(nil, &fakeTerminalConnector{}, &fakeWorkerSpawner{})
	dispatch := &dispatchTaskTool{ts}
	res, _ := dispatch.Execute(context.Background(), map[string]interface{}{"terminal_id": "ghost", "task": "x"})
	if res.Success {
		t.Error("expected failure for unregistered terminal")
	}
}

func TestParallelDispatch_RunsAllConcurrently(t *testing.T) {
	spawner := &fakeWorkerSpawner{result: WorkerResult{Output: "ok"}}
	terminals := &fakeTerminalConnector{}
	ts := newTestToolSet(nil, terminals, spawner)
	connect := &connectTerminalTool{ts}
	for _, h := range []string{"h1", "h2", "h3"} {
		connect.Execute(context.Background(), map[string]interface{}{"host_id": h})
	}

	tool := &parallelDispatchTool{ts}
	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"terminal_ids": []interface{}{"h1", "h2", "h3"},
		"task":         "collect logs",
	})
	if err != nil || !res.Success {
		t.Fatalf("unexpected failure: %v %+v", err, res)
	}
	if len(spawner.calls) != 3 {
		t.Errorf("expected 3 dispatches, got %d: %v", len(spawner.calls), spawner.calls)
	}
}

func TestCollectResults_Formats(t *testing.T) {
	workers := []*entity.WorkerState{
		{TerminalID: "t1", Status: entity.WorkerCompleted, Result: "ok"},
		{TerminalID: "t2", Status: entity.WorkerFailed, Error: "timed out"},
	}
	for _, format := range []string{"table", "list", "summary"} {
		out := formatResults(workers, format)
		if out == "" {
			t.Errorf("format %s produced empty output", format)
		}
	}
}

func TestCloseTerminal_RemovesWorkerAndAlias(t *testing.T) {
	terminals := &fakeTerminalConnector{}
	ts := newTestToolSet(nil, terminals, nil)
	connect := &connectTerminalTool{ts}
	connect.Execute(context.Background(), map[string]interface{}{"host_id": "h1", "alias": "web"})

	closeTool := &closeTerminalTool{ts}
	res, err := closeTool.Execute(context.Background(), map[string]interface{}{"terminal_id": "web"})
	if err != nil || !res.Success {
		t.Fatalf("unexpected failure: %v %+v", err, res)
	}
	if _, _, ok := ts.resolveTerminal("web"); ok {
		t.Error("expected alias to be released after close")
	}
	if len(terminals.closed) != 1 || terminals.closed[0] != "h1-term" {
		t.Errorf("expected underlying terminal to be closed, got %v", terminals.closed)
	}
}

func TestAnalyzeAndReport_RecordsReport(t *testing.T) {
	ts := newTestToolSet(nil, nil, nil)
	tool := &analyzeAndReportTool{ts}
	res, err := tool.Execute(context.Background(), map[string]interface{}{
		"findings":        []interface{}{"disk at 90%"},
		"recommendations": []interface{}{"expand volume"},
		"severity":        "warning",
	})
	if err != nil || !res.Success {
		t.Fatalf("unexpected failure: %v %+v", err, res)
	}
	if ts.reportedResult == "" {
		t.Error("expected reportedResult to be set")
	}
}
