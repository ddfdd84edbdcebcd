// Package tool defines the Tool Executor's tool abstraction: the
// interface every tool implements, the fixed-shape Result every tool
// returns, and a registry tools are looked up from by name.
package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/termpilot/engine/internal/domain/entity"
)

// Kind classifies what family of operation a tool performs, driving which
// tools need a derived risk level versus a fixed one.
type Kind string

const (
	KindRead        Kind = "read"        // read_file, get_terminal_context, search_knowledge...
	KindEdit        Kind = "edit"        // write_file
	KindExecute     Kind = "execute"     // execute_command, send_control_key, send_input
	KindDelete      Kind = "delete"
	KindSearch      Kind = "search"
	KindFetch       Kind = "fetch"
	KindThink       Kind = "think"       // remember_info, create_plan/update_plan/clear_plan
	KindCommunicate Kind = "communicate" // ask_user, wait
)

// Tool is the interface every built-in and MCP-forwarded tool implements.
type Tool interface {
	Name() string
	Description() string
	Kind() Kind
	// Schema returns the tool's parameter JSON Schema, given to the model.
	Schema() map[string]interface{}
	// Execute runs the tool. Every successful Result.Output MUST be human
	// text suitable for re-injection as a tool message.
	Execute(ctx context.Context, args map[string]interface{}) (*Result, error)
	// RiskLevel derives the RiskLevel for a specific invocation of this
	// tool given its parsed args, driving the confirmation contract.
	RiskLevel(args map[string]interface{}) entity.RiskLevel
}

// Result is the fixed shape every tool returns.
type Result struct {
	Output   string
	Display  string // rich rendering for a UI layer; falls back to Output when empty
	Success  bool
	Metadata map[string]interface{}
	Error    string
}

// DisplayOrOutput returns Display, falling back to Output.
func (r *Result) DisplayOrOutput() string {
	if r.Display != "" {
		return r.Display
	}
	return r.Output
}

// MarshalJSON serializes a tool result for transport.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"output":   r.Output,
		"display":  r.Display,
		"success":  r.Success,
		"metadata": r.Metadata,
		"error":    r.Error,
	})
}

// Definition is the shape a tool is advertised to the model in.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Registry looks tools up by name and lists their definitions for the
// model's tool catalog.
type Registry interface {
	Register(tool Tool) error
	Unregister(name string) error
	Get(name string) (Tool, bool)
	List() []Definition
	Has(name string) bool
}

// InMemoryRegistry is the default in-process Registry.
type InMemoryRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewInMemoryRegistry creates an empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{tools: make(map[string]Tool)}
}

func (r *InMemoryRegistry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := t.Name()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = t
	return nil
}

func (r *InMemoryRegistry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; !exists {
		return fmt.Errorf("tool %s not found", name)
	}
	delete(r.tools, name)
	return nil
}

func (r *InMemoryRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, exists := r.tools[name]
	return t, exists
}

func (r *InMemoryRegistry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, Definition{Name: t.Name(), Description: t.Description(), Parameters: t.Schema()})
	}
	return defs
}

func (r *InMemoryRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.tools[name]
	return exists
}
