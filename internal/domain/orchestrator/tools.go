package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/termpilot/engine/internal/domain/entity"
	domaintool "github.com/termpilot/engine/internal/domain/tool"
)

// toolSet builds the Orchestrator's fixed eight-tool catalog (spec §2, §4.8),
// each tool closing over the one OrchestratorRun it belongs to. Grounded on
// the teacher's InMemorySpawner: a mutex-guarded map of managed units keyed
// by id, looked up and mutated from tool calls instead of from a spawn API.
type toolSet struct {
	mu             sync.Mutex
	run            *entity.OrchestratorRun
	hosts          HostLister
	terminals      TerminalConnector
	workers        WorkerSpawner
	config         Config
	logger         *zap.Logger
	reportedResult string // set by analyze_and_report
}

func newToolSet(run *entity.OrchestratorRun, hosts HostLister, terminals TerminalConnector, workers WorkerSpawner, config Config, logger *zap.Logger) *toolSet {
	return &toolSet{run: run, hosts: hosts, terminals: terminals, workers: workers, config: config, logger: logger}
}

func (ts *toolSet) tools() []domaintool.Tool {
	return []domaintool.Tool{
		&listAvailableHostsTool{ts},
		&connectTerminalTool{ts},
		&dispatchTaskTool{ts},
		&parallelDispatchTool{ts},
		&getTaskStatusTool{ts},
		&collectResultsTool{ts},
		&closeTerminalTool{ts},
		&analyzeAndReportTool{ts},
	}
}

// resolveTerminal maps a caller-supplied terminal_id — which may be an
// alias registered by connect_terminal, or already the real terminal id —
// to the real terminal id and its WorkerState. The run's TerminalAliasMap
// is scoped to this run only; invariant enforced by entity.OrchestratorRun.
func (ts *toolSet) resolveTerminal(ref string) (string, *entity.WorkerState, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	id := ref
	if real, ok := ts.run.TerminalAliasMap[ref]; ok {
		id = real
	}
	w, ok := ts.run.Workers[id]
	return id, w, ok
}

func strArg(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func boolArg(args map[string]interface{}, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func stringSliceArg(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// === list_available_hosts ===

type listAvailableHostsTool struct{ ts *toolSet }

func (t *listAvailableHostsTool) Name() string        { return "list_available_hosts" }
func (t *listAvailableHostsTool) Description() string {
	return "List the hosts available for dispatch, with their id, address and terminal type."
}
func (t *listAvailableHostsTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *listAvailableHostsTool) Schema() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (t *listAvailableHostsTool) RiskLevel(map[string]interface{}) entity.RiskLevel {
	return entity.RiskSafe
}

func (t *listAvailableHostsTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	hosts, err := t.ts.hosts.ListHosts(ctx)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error(), Output: fmt.Sprintf("failed to list hosts: %v", err)}, nil
	}
	if len(hosts) == 0 {
		return &domaintool.Result{Success: true, Output: "no hosts available"}, nil
	}
	var b strings.Builder
	b.WriteString("available hosts:\n")
	for _, h := range hosts {
		fmt.Fprintf(&b, "- %s (%s) at %s [%s]\n", h.Name, h.ID, h.Address, h.TerminalType)
	}
	return &domaintool.Result{Success: true, Output: b.String()}, nil
}

// === connect_terminal ===

type connectTerminalTool struct{ ts *toolSet }

func (t *connectTerminalTool) Name() string { return "connect_terminal" }
func (t *connectTerminalTool) Description() string {
	return "Open a terminal session on a host and register it under an alias for later dispatch_task calls."
}
func (t *connectTerminalTool) Kind() domaintool.Kind { return domaintool.KindExecute }
func (t *connectTerminalTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"host_id": map[string]interface{}{"type": "string"},
			"alias":   map[string]interface{}{"type": "string", "description": "optional short name for this terminal; defaults to host_id"},
		},
		"required": []string{"host_id"},
	}
}
func (t *connectTerminalTool) RiskLevel(map[string]interface{}) entity.RiskLevel { return entity.RiskSafe }

func (t *connectTerminalTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	hostID := strArg(args, "host_id")
	if hostID == "" {
		return &domaintool.Result{Success: false, Error: "host_id is required", Output: "host_id is required"}, nil
	}
	alias := strArg(args, "alias")
	if alias == "" {
		alias = hostID
	}

	terminalID, err := t.ts.terminals.Connect(ctx, hostID)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error(), Output: fmt.Sprintf("failed to connect to %s: %v", hostID, err)}, nil
	}

	t.ts.mu.Lock()
	t.ts.run.RegisterAlias(alias, terminalID)
	t.ts.run.Workers[terminalID] = &entity.WorkerState{TerminalID: terminalID, HostID: hostID, Status: entity.WorkerIdle}
	t.ts.mu.Unlock()

	return &domaintool.Result{Success: true, Output: fmt.Sprintf("connected %s as %q (terminal %s)", hostID, alias, terminalID)}, nil
}

// === dispatch_task ===

type dispatchTaskTool struct{ ts *toolSet }

func (t *dispatchTaskTool) Name() string { return "dispatch_task" }
func (t *dispatchTaskTool) Description() string {
	return "Spawn a Worker run on a connected terminal to carry out a task."
}
func (t *dispatchTaskTool) Kind() domaintool.Kind { return domaintool.KindExecute }
func (t *dispatchTaskTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"terminal_id":      map[string]interface{}{"type": "string", "description": "alias or terminal id from connect_terminal"},
			"task":             map[string]interface{}{"type": "string"},
			"wait_for_result":  map[string]interface{}{"type": "boolean", "description": "block until the worker finishes; default true"},
		},
		"required": []string{"terminal_id", "task"},
	}
}
func (t *dispatchTaskTool) RiskLevel(map[string]interface{}) entity.RiskLevel { return entity.RiskSafe }

func (t *dispatchTaskTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	ref := strArg(args, "terminal_id")
	task := strArg(args, "task")
	wait := boolArg(args, "wait_for_result", true)

	result, err := t.ts.dispatchOne(ctx, ref, task, wait)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error(), Output: err.Error()}, nil
	}
	return result, nil
}

// dispatchOne resolves terminal_id, marks the worker running, and spawns a
// Worker run. When wait is false it returns immediately after launch; the
// worker's final state is still recorded for a later get_task_status call.
func (ts *toolSet) dispatchOne(ctx context.Context, ref, task string, wait bool) (*domaintool.Result, error) {
	terminalID, worker, ok := ts.resolveTerminal(ref)
	if !ok {
		return nil, fmt.Errorf("unknown terminal %q — call connect_terminal first", ref)
	}

	ts.mu.Lock()
	now := time.Now()
	worker.Status = entity.WorkerRunning
	worker.CurrentTask = task
	worker.TaskStartedAt = &now
	ts.mu.Unlock()

	onStep := func(step entity.Step) {
		if ts.logger != nil {
			ts.logger.Debug("worker step",
				zap.String("terminal_id", terminalID),
				zap.String("kind", string(step.Kind)),
			)
		}
	}

	run := func() {
		res := ts.workers.SpawnWorker(ctx, terminalID, task, true, onStep)
		ts.mu.Lock()
		if res.Err != nil {
			worker.Status = entity.WorkerFailed
			worker.Error = res.Err.Error()
		} else {
			worker.Status = entity.WorkerCompleted
			worker.Result = res.Output
		}
		ts.mu.Unlock()
	}

	if !wait {
		go run()
		return &domaintool.Result{Success: true, Output: fmt.Sprintf("dispatched %q to %s; poll with get_task_status", task, ref)}, nil
	}

	run()
	ts.mu.Lock()
	status, result, errMsg := worker.Status, worker.Result, worker.Error
	ts.mu.Unlock()
	if status == entity.WorkerFailed {
		return &domaintool.Result{Success: false, Error: errMsg, Output: fmt.Sprintf("%s failed: %s", ref, errMsg)}, nil
	}
	return &domaintool.Result{Success: true, Output: fmt.Sprintf("%s completed: %s", ref, result)}, nil
}

// === parallel_dispatch ===

type parallelDispatchTool struct{ ts *toolSet }

func (t *parallelDispatchTool) Name() string { return "parallel_dispatch" }
func (t *parallelDispatchTool) Description() string {
	return "Dispatch the same task to several terminals in parallel, bounded by max_parallel_workers."
}
func (t *parallelDispatchTool) Kind() domaintool.Kind { return domaintool.KindExecute }
func (t *parallelDispatchTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"terminal_ids": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"task":         map[string]interface{}{"type": "string"},
		},
		"required": []string{"terminal_ids", "task"},
	}
}
func (t *parallelDispatchTool) RiskLevel(map[string]interface{}) entity.RiskLevel { return entity.RiskSafe }

// Execute fans the dispatch out across a semaphore of size
// config.MaxParallelWorkers, grounded on the teacher's dag.go DAGExecutor
// (semaphore-bounded goroutine pool, each unit run to completion
// independently, results collected under a mutex).
func (t *parallelDispatchTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	refs := stringSliceArg(args, "terminal_ids")
	task := strArg(args, "task")
	if len(refs) == 0 {
		return &domaintool.Result{Success: false, Error: "terminal_ids is required", Output: "terminal_ids is required"}, nil
	}

	sem := make(chan struct{}, t.ts.config.MaxParallelWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	outcomes := make(map[string]*domaintool.Result, len(refs))
	allOK := true

	for _, ref := range refs {
		ref := ref
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				outcomes[ref] = &domaintool.Result{Success: false, Error: ctx.Err().Error()}
				allOK = false
				mu.Unlock()
				return
			}

			res, err := t.ts.dispatchOne(ctx, ref, task, true)
			if err != nil {
				res = &domaintool.Result{Success: false, Error: err.Error(), Output: err.Error()}
			}
			mu.Lock()
			outcomes[ref] = res
			if !res.Success {
				allOK = false
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	ordered := append([]string(nil), refs...)
	sort.Strings(ordered)
	var b strings.Builder
	fmt.Fprintf(&b, "parallel_dispatch of %q across %d terminals:\n", task, len(refs))
	for _, ref := range ordered {
		r := outcomes[ref]
		fmt.Fprintf(&b, "- %s: %s\n", ref, r.DisplayOrOutput())
	}
	return &domaintool.Result{Success: allOK, Output: b.String()}, nil
}

// === get_task_status ===

type getTaskStatusTool struct{ ts *toolSet }

func (t *getTaskStatusTool) Name() string        { return "get_task_status" }
func (t *getTaskStatusTool) Description() string { return "Report the current status of one or all dispatched workers." }
func (t *getTaskStatusTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *getTaskStatusTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"terminal_ids": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
	}
}
func (t *getTaskStatusTool) RiskLevel(map[string]interface{}) entity.RiskLevel { return entity.RiskSafe }

func (t *getTaskStatusTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	refs := stringSliceArg(args, "terminal_ids")

	t.ts.mu.Lock()
	defer t.ts.mu.Unlock()

	ids := refs
	if len(ids) == 0 {
		for id := range t.ts.run.Workers {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	if len(ids) == 0 {
		return &domaintool.Result{Success: true, Output: "no workers dispatched yet"}, nil
	}

	var b strings.Builder
	for _, ref := range ids {
		id := ref
		if real, ok := t.ts.run.TerminalAliasMap[ref]; ok {
			id = real
		}
		w, ok := t.ts.run.Workers[id]
		if !ok {
			fmt.Fprintf(&b, "- %s: unknown\n", ref)
			continue
		}
		fmt.Fprintf(&b, "- %s: %s (task=%q)\n", ref, w.Status, w.CurrentTask)
	}
	return &domaintool.Result{Success: true, Output: b.String()}, nil
}

// === collect_results ===

type collectResultsTool struct{ ts *toolSet }

func (t *collectResultsTool) Name() string        { return "collect_results" }
func (t *collectResultsTool) Description() string { return "Aggregate and format completed workers' outcomes." }
func (t *collectResultsTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *collectResultsTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"terminal_ids": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"format":       map[string]interface{}{"type": "string", "enum": []string{"table", "list", "summary"}},
		},
	}
}
func (t *collectResultsTool) RiskLevel(map[string]interface{}) entity.RiskLevel { return entity.RiskSafe }

func (t *collectResultsTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	refs := stringSliceArg(args, "terminal_ids")
	format := strArg(args, "format")
	if format == "" {
		format = "summary"
	}

	t.ts.mu.Lock()
	ids := refs
	if len(ids) == 0 {
		for id := range t.ts.run.Workers {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	workers := make([]*entity.WorkerState, 0, len(ids))
	for _, ref := range ids {
		id := ref
		if real, ok := t.ts.run.TerminalAliasMap[ref]; ok {
			id = real
		}
		if w, ok := t.ts.run.Workers[id]; ok {
			workers = append(workers, w)
		}
	}
	t.ts.mu.Unlock()

	return &domaintool.Result{Success: true, Output: formatResults(workers, format)}, nil
}

func formatResults(workers []*entity.WorkerState, format string) string {
	if len(workers) == 0 {
		return "no results to collect"
	}
	var b strings.Builder
	switch format {
	case "table":
		fmt.Fprintf(&b, "%-20s %-12s %s\n", "terminal", "status", "result/error")
		for _, w := range workers {
			outcome := w.Result
			if w.Status == entity.WorkerFailed {
				outcome = w.Error
			}
			fmt.Fprintf(&b, "%-20s %-12s %s\n", w.TerminalID, w.Status, outcome)
		}
	case "list":
		for _, w := range workers {
			outcome := w.Result
			if w.Status == entity.WorkerFailed {
				outcome = w.Error
			}
			fmt.Fprintf(&b, "- %s (%s): %s\n", w.TerminalID, w.Status, outcome)
		}
	default: // summary
		completed, failed := 0, 0
		for _, w := range workers {
			switch w.Status {
			case entity.WorkerCompleted:
				completed++
			case entity.WorkerFailed, entity.WorkerTimeout:
				failed++
			}
		}
		fmt.Fprintf(&b, "%d workers: %d completed, %d failed, %d other\n", len(workers), completed, failed, len(workers)-completed-failed)
	}
	return b.String()
}

// === close_terminal ===

type closeTerminalTool struct{ ts *toolSet }

func (t *closeTerminalTool) Name() string        { return "close_terminal" }
func (t *closeTerminalTool) Description() string { return "Close a connected terminal session and release its alias." }
func (t *closeTerminalTool) Kind() domaintool.Kind { return domaintool.KindDelete }
func (t *closeTerminalTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"terminal_id": map[string]interface{}{"type": "string"}},
		"required":   []string{"terminal_id"},
	}
}
func (t *closeTerminalTool) RiskLevel(map[string]interface{}) entity.RiskLevel { return entity.RiskSafe }

func (t *closeTerminalTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	ref := strArg(args, "terminal_id")
	terminalID, _, ok := t.ts.resolveTerminal(ref)
	if !ok {
		return &domaintool.Result{Success: false, Error: "unknown terminal", Output: fmt.Sprintf("unknown terminal %q", ref)}, nil
	}

	if err := t.ts.terminals.Close(ctx, terminalID); err != nil {
		return &domaintool.Result{Success: false, Error: err.Error(), Output: fmt.Sprintf("failed to close %s: %v", ref, err)}, nil
	}

	t.ts.mu.Lock()
	delete(t.ts.run.Workers, terminalID)
	for alias, id := range t.ts.run.TerminalAliasMap {
		if id == terminalID {
			delete(t.ts.run.TerminalAliasMap, alias)
		}
	}
	t.ts.mu.Unlock()

	return &domaintool.Result{Success: true, Output: fmt.Sprintf("closed %s", ref)}, nil
}

// === analyze_and_report ===

type analyzeAndReportTool struct{ ts *toolSet }

func (t *analyzeAndReportTool) Name() string { return "analyze_and_report" }
func (t *analyzeAndReportTool) Description() string {
	return "Submit the orchestrator's final findings and recommendations, ending the run successfully."
}
func (t *analyzeAndReportTool) Kind() domaintool.Kind { return domaintool.KindThink }
func (t *analyzeAndReportTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"findings":        map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"recommendations": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			"severity":        map[string]interface{}{"type": "string", "enum": []string{"info", "warning", "critical"}},
		},
		"required": []string{"findings"},
	}
}
func (t *analyzeAndReportTool) RiskLevel(map[string]interface{}) entity.RiskLevel { return entity.RiskSafe }

func (t *analyzeAndReportTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	findings := stringSliceArg(args, "findings")
	recommendations := stringSliceArg(args, "recommendations")
	severity := strArg(args, "severity")
	if severity == "" {
		severity = "info"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "severity: %s\nfindings:\n", severity)
	for _, f := range findings {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	if len(recommendations) > 0 {
		b.WriteString("recommendations:\n")
		for _, r := range recommendations {
			fmt.Fprintf(&b, "- %s\n", r)
		}
	}
	report := b.String()

	t.ts.mu.Lock()
	t.ts.reportedResult = report
	t.ts.mu.Unlock()

	return &domaintool.Result{Success: true, Output: report}, nil
}
