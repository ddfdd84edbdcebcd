// Package service holds the domain services that sit above the entity
// layer: the Risk Assessor and Progress Detector have their own packages,
// but the Reflection Engine, Memory Folding, and the Agent Run Scheduler
// all need each other and the guardrail/middleware/hook plumbing in this
// package, so they live together.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/termpilot/engine/internal/domain/entity"
	domaintool "github.com/termpilot/engine/internal/domain/tool"
)

// SchedulerConfig configures one Agent Run Scheduler instance. It holds no
// step or run-timeout cap of its own; besides the model finishing, runLoop
// ends a run when the token budget is exhausted or once the step count
// passes a nonzero entity.AgentConfig.MaxSteps.
type SchedulerConfig struct {
	MaxOutputChars int     // tool output truncation limit (default 32000)
	Temperature    float64
	Model          string

	ModelPolicies map[string]*ModelPolicyOverride

	MaxRetries    int           // network-error retries (spec default: 2)
	RetryBaseWait time.Duration // base backoff (spec default: 1s, doubled per attempt)

	MaxParallelTools int // default 4

	MaxTokenBudget   int64
	ToolTimeout      time.Duration
	ContextMaxTokens int // token budget FoldMessages folds against

	PlanReminderRounds int // reminder rounds before allowing termination with pending plan steps (spec: 2)
}

// DefaultSchedulerConfig returns spec §4.7's defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxOutputChars:     32000,
		Temperature:        0.7,
		MaxRetries:         2,
		RetryBaseWait:      1 * time.Second,
		MaxParallelTools:   4,
		ToolTimeout:        30 * time.Second,
		ContextMaxTokens:   128000,
		PlanReminderRounds: 2,
	}
}

// LLMClient is the interface the scheduler uses to talk to a model.
type LLMClient interface {
	Generate(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
	GenerateStream(ctx context.Context, req *LLMRequest, deltaCh chan<- StreamChunk) (*LLMResponse, error)
}

// StreamChunk is a single delta from a streaming LLM response.
type StreamChunk struct {
	DeltaText     string
	DeltaToolCall *entity.ToolCall
	FinishReason  string
}

// LLMRequest is the request sent to the model.
type LLMRequest struct {
	Messages    []LLMMessage
	Tools       []domaintool.Definition
	Model       string
	MaxTokens   int
	Temperature float64
}

// LLMMessage is the wire-level message the scheduler sends to the model —
// distinct from entity.Message, which is the domain-level conversation
// record. The scheduler converts between the two at its edges.
type LLMMessage struct {
	Role       string
	Content    string
	Parts      []ContentPart
	ToolCalls  []entity.ToolCall
	ToolCallID string
	Name       string
}

// ContentPart is a multimodal content fragment.
type ContentPart struct {
	Type     string
	Text     string
	MediaURL string
	MimeType string
	Data     []byte
}

// TextContent returns all text content, joining text parts or falling
// back to Content.
func (m *LLMMessage) TextContent() string {
	if len(m.Parts) == 0 {
		return m.Content
	}
	var texts []string
	for _, p := range m.Parts {
		if p.Type == "text" && p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	if len(texts) == 0 {
		return m.Content
	}
	return strings.Join(texts, "\n")
}

// LLMResponse is the model's response to one LLMRequest.
type LLMResponse struct {
	Content    string
	ToolCalls  []entity.ToolCall
	ModelUsed  string
	TokensUsed int
}

// ToolExecutor executes tools on the scheduler's behalf.
type ToolExecutor interface {
	Execute(ctx context.Context, name string, args map[string]interface{}) (*domaintool.Result, error)
	GetDefinitions() []domaintool.Definition
	GetToolKind(name string) domaintool.Kind
	RiskLevel(name string, args map[string]interface{}) entity.RiskLevel
}

// Scheduler implements the Agent Run Scheduler: spec §4.7's turn loop over
// an entity.AgentRun — call the model, dispatch tool calls, fold memory,
// run reflection, and gate risky calls through confirmation.
type Scheduler struct {
	llm          LLMClient
	tools        ToolExecutor
	confirmation *ConfirmationHook
	config       SchedulerConfig
	hooks        AgentHook
	middleware   *MiddlewarePipeline
	toolCache    *ToolResultCache
	logger       *zap.Logger
}

// NewScheduler builds a Scheduler with defaults filled in.
func NewScheduler(llm LLMClient, tools ToolExecutor, confirmation *ConfirmationHook, config SchedulerConfig, logger *zap.Logger) *Scheduler {
	if config.MaxOutputChars <= 0 {
		config.MaxOutputChars = 32000
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 2
	}
	if config.RetryBaseWait <= 0 {
		config.RetryBaseWait = 1 * time.Second
	}
	if config.MaxParallelTools <= 0 {
		config.MaxParallelTools = 4
	}
	if config.ToolTimeout <= 0 {
		config.ToolTimeout = 30 * time.Second
	}
	if config.ContextMaxTokens <= 0 {
		config.ContextMaxTokens = 128000
	}
	if config.PlanReminderRounds <= 0 {
		config.PlanReminderRounds = 2
	}
	mw := NewMiddlewarePipeline(logger)
	mw.Use(NewDanglingToolCallMiddleware(logger))

	return &Scheduler{
		llm:          llm,
		tools:        tools,
		confirmation: confirmation,
		config:       config,
		hooks:        &NoOpHook{},
		middleware:   mw,
		toolCache:    NewToolResultCache(30*time.Second, 100),
		logger:       logger,
	}
}

func (s *Scheduler) SetHooks(hooks AgentHook) {
	if hooks != nil {
		s.hooks = hooks
	}
}

func (s *Scheduler) SetMiddleware(mw *MiddlewarePipeline) {
	if mw != nil {
		s.middleware = mw
	}
}

// RunResult is the final outcome of one scheduler run.
type RunResult struct {
	FinalContent string
	TotalSteps   int
	TotalTokens  int
	ModelUsed    string
	ToolsUsed    []string
}

// AgentResult is the completion summary handed to AgentHook.OnComplete.
type AgentResult struct {
	FinalContent string
	TotalSteps   int
	TotalTokens  int
	ModelUsed    string
}

// emitEvent sends an event, dropping it (with a log) if the channel is full
// rather than blocking the run.
func (s *Scheduler) emitEvent(ch chan<- SchedulerEvent, event SchedulerEvent) {
	event.Timestamp = time.Now()
	select {
	case ch <- event:
	default:
		s.logger.Warn("Event channel full, dropping event", zap.String("type", string(event.Type)))
	}
}

// entityMessagesFrom converts the scheduler's working LLMMessage slice back
// to entity.Message for AgentRun.Messages, skipping the synthetic system
// prompt (which is rebuilt fresh on the next run).
func entityMessagesFrom(messages []LLMMessage) []entity.Message {
	out := make([]entity.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == "system" {
			continue
		}
		out = append(out, toEntityMessage(m))
	}
	return out
}

// toEntityMessage converts the scheduler's LLMMessage wire format to the
// domain entity.Message used by Memory Folding's turn-pairing invariant
// check and by AgentRun.Messages history.
func toEntityMessage(m LLMMessage) entity.Message {
	switch m.Role {
	case "assistant":
		msg := entity.NewAssistantToolCallMessage(m.Content, m.ToolCalls)
		if len(m.ToolCalls) == 0 {
			msg = entity.NewMessage(entity.RoleAssistant, m.Content)
		}
		return msg
	case "tool":
		return entity.NewToolResultMessage(m.ToolCallID, m.Content)
	case "system":
		return entity.NewMessage(entity.RoleSystem, m.Content)
	default:
		return entity.NewMessage(entity.RoleUser, m.Content)
	}
}

// lastAssistantContent returns the most recent assistant message's text,
// used as the best-effort final answer when a run is cut off by the max
// step cap instead of reaching a natural termination.
func lastAssistantContent(messages []LLMMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "assistant" && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}

// Run executes the scheduler's turn loop for one run, emitting
// SchedulerEvents as it goes. The caller drains the returned channel until
// it closes. userMsgCh delivers additional user messages that arrive while
// a run is already in progress (spec §4.7: these queue as pending_user
// steps, and a message arriving mid-stream aborts the in-flight model call
// without counting as a failure).
func (s *Scheduler) Run(ctx context.Context, run *entity.AgentRun, systemPrompt string, userMsgCh <-chan string) (*RunResult, <-chan SchedulerEvent) {
	eventCh := make(chan SchedulerEvent, 64)
	result := &RunResult{}

	s.toolCache.Clear()
	sm := NewStateMachine(0, s.logger)
	sm.OnTransition(func(from, to AgentState, snap StateSnapshot) {
		s.hooks.OnStateChange(from, to, snap)
	})

	go func() {
		defer close(eventCh)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Scheduler run panicked", zap.Any("panic", r))
				s.emitEvent(eventCh, SchedulerEvent{Type: EventError, Error: fmt.Sprintf("internal error: %v", r)})
				result.FinalContent = fmt.Sprintf("internal error: %v", r)
			}
		}()
		s.runLoop(ctx, run, systemPrompt, userMsgCh, result, eventCh, sm)
	}()

	return result, eventCh
}

func (s *Scheduler) runLoop(
	ctx context.Context,
	run *entity.AgentRun,
	systemPrompt string,
	userMsgCh <-chan string,
	result *RunResult,
	eventCh chan<- SchedulerEvent,
	sm *StateMachine,
) {
	messages := make([]LLMMessage, 0, len(run.Messages)+1)
	if systemPrompt != "" {
		messages = append(messages, LLMMessage{Role: "system", Content: systemPrompt})
	}
	for _, m := range run.Messages {
		messages = append(messages, LLMMessage{
			Role:       string(m.Role()),
			Content:    m.Content(),
			ToolCalls:  m.ToolCalls(),
			ToolCallID: m.ToolCallID(),
		})
	}

	toolDefs := s.tools.GetDefinitions()
	toolsUsedSet := make(map[string]bool)

	defer func() {
		run.Messages = entityMessagesFrom(messages)
		for name := range toolsUsedSet {
			result.ToolsUsed = append(result.ToolsUsed, name)
		}
	}()

	reflection := run.Reflection

	var costGuard *CostGuard
	if s.config.MaxTokenBudget > 0 {
		costGuard = NewCostGuard(s.config.MaxTokenBudget, 0, s.logger)
	}

	model := s.config.Model
	policy := ResolveModelPolicy(model, s.config.ModelPolicies)

	noToolNoContentRetries := 0
	planReminders := 0
	everRanTool := false

	for step := 1; ; step++ {
		sm.SetStep(step)

		if run.Config.MaxSteps > 0 && step > run.Config.MaxSteps {
			_ = sm.Transition(StateError)
			s.emitEvent(eventCh, SchedulerEvent{Type: EventError, Error: "max steps reached"})
			result.FinalContent = lastAssistantContent(messages)
			return
		}

		if err := ctx.Err(); err != nil {
			_ = sm.Transition(StateAborted)
			s.emitEvent(eventCh, SchedulerEvent{Type: EventError, Error: "context cancelled"})
			return
		}

		// Drain any user messages that queued up while the run was already
		// in progress — spec §4.7 treats these as pending steps, appended
		// before the next model call.
		for {
			select {
			case extra, ok := <-userMsgCh:
				if !ok {
					break
				}
				messages = append(messages, LLMMessage{Role: "user", Content: extra})
				continue
			default:
			}
			break
		}

		if policy.ProgressInterval > 0 && step > 1 && step%policy.ProgressInterval == 0 {
			if msg := policy.BuildProgressMessage(step); msg != "" {
				messages = append(messages, LLMMessage{Role: "user", Content: msg})
			}
		}

		// Memory folding — groups into turns, compresses, and folds older
		// turns once the token estimate crosses 80% of the context budget.
		messages = FoldMessages(ctx, messages, s.config.ContextMaxTokens, nil)
		messages = sanitizeMessages(messages)

		_ = sm.Transition(StateStreaming)
		mwMessages := s.middleware.RunBeforeModel(ctx, messages, step)

		llmReq := &LLMRequest{
			Messages:    mwMessages,
			Tools:       toolDefs,
			Model:       model,
			Temperature: s.config.Temperature,
		}
		s.hooks.BeforeLLMCall(ctx, llmReq, step)

		resp, aborted, err := s.callLLMInterruptible(ctx, llmReq, step, eventCh, userMsgCh)
		if aborted {
			// A new user message arrived mid-stream — spec §4.7 says this
			// doesn't count as a failure; loop back and let the drain above
			// pick the message up on the next iteration.
			continue
		}
		if err != nil {
			sm.RecordError()
			_ = sm.Transition(StateError)
			s.hooks.OnError(ctx, err, step)
			s.emitEvent(eventCh, SchedulerEvent{Type: EventError, Error: fmt.Sprintf("LLM error at step %d: %v", step, err)})
			result.FinalContent = fmt.Sprintf("error: %v", err)
			return
		}

		result.TotalTokens += resp.TokensUsed
		result.ModelUsed = resp.ModelUsed
		result.TotalSteps = step
		sm.AddTokens(resp.TokensUsed)
		sm.SetModel(resp.ModelUsed)

		if costGuard != nil {
			if err := costGuard.AddTokens(int64(resp.TokensUsed)); err != nil {
				_ = sm.Transition(StateError)
				s.emitEvent(eventCh, SchedulerEvent{Type: EventError, Error: fmt.Sprintf("budget exceeded: %v", err)})
				result.FinalContent = fmt.Sprintf("stopped: %v", err)
				return
			}
		}

		resp = s.middleware.RunAfterModel(ctx, resp, step)
		s.hooks.AfterLLMCall(ctx, resp, step)

		snap := sm.Snapshot()
		s.emitEvent(eventCh, SchedulerEvent{
			Type:     EventStepDone,
			StepInfo: &StepInfo{Step: step, TokensUsed: resp.TokensUsed, ModelUsed: resp.ModelUsed, State: string(snap.State)},
		})

		toolCalls := resp.ToolCalls
		content := strings.TrimSpace(StripReasoningTags(resp.Content))
		if len(toolCalls) == 0 && content == "" {
			// Fall back to text-embedded tool-call syntax for models that
			// don't support native function calling.
			cleaned, parsed := ParseToolCallsFromText(resp.Content)
			if len(parsed) > 0 {
				toolCalls = parsed
				content = strings.TrimSpace(cleaned)
			}
		}

		if len(toolCalls) == 0 {
			if run.CurrentPlan != nil && run.CurrentPlan.HasPendingSteps() && planReminders < s.config.PlanReminderRounds {
				planReminders++
				messages = append(messages, LLMMessage{Role: "assistant", Content: resp.Content})
				messages = append(messages, LLMMessage{
					Role:    "user",
					Content: "[system] the current plan still has pending or in-progress steps. Continue working through the plan, or update it if it's no longer accurate.",
				})
				continue
			}

			if content == "" {
				if !everRanTool && noToolNoContentRetries < 2 {
					noToolNoContentRetries++
					continue
				}
				result.FinalContent = "the model returned no content and made no tool calls; it may not support function calling"
				_ = sm.Transition(StateError)
				s.emitEvent(eventCh, SchedulerEvent{Type: EventError, Error: result.FinalContent})
				return
			}

			result.FinalContent = content
			_ = sm.Transition(StateComplete)
			run.Reflection = reflection
			s.hooks.OnComplete(ctx, &AgentResult{FinalContent: content, TotalSteps: step, TotalTokens: result.TotalTokens, ModelUsed: result.ModelUsed})
			s.emitEvent(eventCh, SchedulerEvent{Type: EventDone})
			return
		}

		everRanTool = true
		noToolNoContentRetries = 0

		messages = append(messages, LLMMessage{Role: "assistant", Content: resp.Content, ToolCalls: toolCalls})

		_ = sm.Transition(StateToolExec)
		for _, tc := range toolCalls {
			s.emitEvent(eventCh, SchedulerEvent{Type: EventToolCall, ToolCall: &ToolCallEvent{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}})
		}

		toolResults := s.dispatchTools(ctx, toolCalls, eventCh)

		for _, r := range toolResults {
			toolsUsedSet[r.TC.Name] = true
			sm.RecordToolExec(r.TC.Name)
			if r.Success {
				reflection = reflection.RecordSuccess()
			} else {
				reflection = reflection.RecordFailure()
			}
			reflection = reflection.RecordToolCall(ToolCallSignature(r.TC.Name, argKeyValues(r.TC.Arguments)))
			if r.TC.Name == "execute_command" {
				reflection = reflection.RecordCommand(commandArg(r.TC.Arguments))
			}

			s.emitEvent(eventCh, SchedulerEvent{
				Type: EventToolResult,
				ToolCall: &ToolCallEvent{
					ID: r.TC.ID, Name: r.TC.Name, Arguments: r.TC.Arguments,
					Output: r.Output, Display: r.Display, Success: r.Success, Duration: r.Duration,
				},
			})

			messages = append(messages, LLMMessage{Role: "tool", Content: r.Output, ToolCallID: r.TC.ID, Name: r.TC.Name})
		}

		issues := DetectIssues(reflection)
		if ShouldTrigger(reflection, issues) {
			reflection = reflection.MarkReflected(time.Now())
			nextStrategy := NextStrategy(reflection, issues, time.Now())
			if nextStrategy != reflection.CurrentStrategy {
				reflection.StrategySwitches = append(reflection.StrategySwitches, entity.StrategySwitch{
					At: time.Now(), From: reflection.CurrentStrategy, To: nextStrategy, Reason: string(firstIssueOr(issues, "turn_gap")),
				})
				reflection.CurrentStrategy = nextStrategy
			}
			if nudge, ok := Nudge(issues); ok {
				messages = append(messages, LLMMessage{Role: "user", Content: nudge})
			} else {
				// too_many_reflections — halt the run instead of nudging further.
				result.FinalContent = "stopping: the run is not making progress after repeated reflection"
				_ = sm.Transition(StateError)
				s.emitEvent(eventCh, SchedulerEvent{Type: EventError, Error: result.FinalContent})
				run.Reflection = reflection
				return
			}
		}

		run.Reflection = reflection
	}
}

type toolDispatchResult struct {
	TC       entity.ToolCall
	Output   string
	Display  string
	Success  bool
	Duration time.Duration
}

// dispatchTools runs every tool call from one model turn one at a time, in
// order, waiting for each to finish before starting the next, and gates
// each through risk assessment + confirmation before executing.
// MaxParallelTools only sizes the slot channel, which one call at a time
// never fills.
func (s *Scheduler) dispatchTools(ctx context.Context, calls []entity.ToolCall, eventCh chan<- SchedulerEvent) []toolDispatchResult {
	results := make([]toolDispatchResult, len(calls))
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.config.MaxParallelTools)

	for i, tc := range calls {
		wg.Add(1)
		func(idx int, call entity.ToolCall) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[idx] = toolDispatchResult{TC: call, Output: "context cancelled", Success: false}
				return
			}
			results[idx] = s.dispatchOne(ctx, call)
		}(i, tc)
	}
	wg.Wait()
	return results
}

func (s *Scheduler) dispatchOne(ctx context.Context, call entity.ToolCall) toolDispatchResult {
	start := time.Now()

	var args map[string]interface{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return toolDispatchResult{TC: call, Output: fmt.Sprintf("[TOOL_FAILED] %s\n[ERROR] could not parse arguments: %v", call.Name, err), Success: false, Duration: time.Since(start)}
		}
	}

	risk := s.tools.RiskLevel(call.Name, args)
	if s.confirmation != nil {
		approved, err := s.confirmation.Confirm(ctx, call.Name, risk, "")
		if err != nil || !approved {
			return toolDispatchResult{TC: call, Output: fmt.Sprintf("[TOOL_REJECTED] %s was not confirmed by the user", call.Name), Success: false, Duration: time.Since(start)}
		}
	}

	if !s.hooks.BeforeToolCall(ctx, call.Name, args) {
		return toolDispatchResult{TC: call, Output: fmt.Sprintf("tool '%s' was blocked", call.Name), Success: false, Duration: time.Since(start)}
	}

	if cached, cachedSuccess, hit := s.toolCache.Get(call.Name, args); hit {
		s.hooks.AfterToolCall(ctx, call.Name, cached, cachedSuccess)
		return toolDispatchResult{TC: call, Output: cached, Success: cachedSuccess, Duration: time.Since(start)}
	}

	toolCtx := ctx
	if s.config.ToolTimeout > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, s.config.ToolTimeout)
		defer cancel()
	}

	toolResult, err := s.tools.Execute(toolCtx, call.Name, args)
	duration := time.Since(start)

	var output, display string
	var success bool
	if err != nil {
		output = fmt.Sprintf("[TOOL_FAILED] %s\n[ERROR] %v", call.Name, err)
	} else {
		success = toolResult.Success
		display = toolResult.Display
		if !success {
			errText := toolResult.Error
			if errText == "" {
				errText = toolResult.Output
			}
			output = fmt.Sprintf("[TOOL_FAILED] %s\n[OUTPUT]\n%s", call.Name, errText)
		} else {
			output = toolResult.Output
		}
	}

	output = truncateOutput(output, s.config.MaxOutputChars)
	s.toolCache.Put(call.Name, args, output, success)
	s.hooks.AfterToolCall(ctx, call.Name, output, success)

	return toolDispatchResult{TC: call, Output: output, Display: display, Success: success, Duration: duration}
}

// callLLMInterruptible wraps callLLMWithRetry with a watcher that cancels
// the in-flight call if a new user message arrives on userMsgCh — spec
// §4.7's mid-stream interruption, which doesn't count as a failed attempt.
func (s *Scheduler) callLLMInterruptible(ctx context.Context, req *LLMRequest, step int, eventCh chan<- SchedulerEvent, userMsgCh <-chan string) (*LLMResponse, bool, error) {
	callCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	aborted := make(chan struct{})
	go func() {
		select {
		case _, ok := <-userMsgCh:
			if ok {
				close(aborted)
				cancel()
			}
		case <-callCtx.Done():
		}
	}()

	resp, err := s.callLLMWithRetry(callCtx, req, step, eventCh)
	select {
	case <-aborted:
		return nil, true, nil
	default:
	}
	return resp, false, err
}

func firstIssueOr(issues []ReflectionIssue, fallback string) ReflectionIssue {
	if len(issues) > 0 {
		return issues[0]
	}
	return ReflectionIssue(fallback)
}

// argKeyValues extracts the string-valued subset of a tool's JSON arguments
// for ToolCallSignature, which only needs a few allow-listed keys.
func argKeyValues(argsJSON string) map[string]string {
	out := map[string]string{}
	if argsJSON == "" {
		return out
	}
	var raw map[string]interface{}
	if err := json.Unmarshal([]byte(argsJSON), &raw); err != nil {
		return out
	}
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

func commandArg(argsJSON string) string {
	var raw struct {
		Command string `json:"command"`
	}
	_ = json.Unmarshal([]byte(argsJSON), &raw)
	return raw.Command
}
