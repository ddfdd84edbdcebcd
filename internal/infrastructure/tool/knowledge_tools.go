package tool

import (
	"context"
	"fmt"

	"github.com/termpilot/engine/internal/domain/entity"
	"github.com/termpilot/engine/internal/domain/memory"
	domaintool "github.com/termpilot/engine/internal/domain/tool"
)

const defaultSearchLimit = 5

func notEnabledResult() *domaintool.Result {
	return &domaintool.Result{Success: false, Error: "the knowledge store is not enabled for this host"}
}

// RememberInfoTool persists a fact to the Knowledge Store, scoped to the
// host the run is driving.
type RememberInfoTool struct {
	store  memory.KnowledgeStore
	hostID string
}

func NewRememberInfoTool(store memory.KnowledgeStore, hostID string) *RememberInfoTool {
	return &RememberInfoTool{store: store, hostID: hostID}
}

func (t *RememberInfoTool) Name() string          { return "remember_info" }
func (t *RememberInfoTool) Kind() domaintool.Kind { return domaintool.KindCommunicate }
func (t *RememberInfoTool) Description() string {
	return "Persist a durable fact about this host to the knowledge store, for recall in future sessions."
}
func (t *RememberInfoTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{"type": "string"},
			"tags":    map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
		},
		"required": []string{"content"},
	}
}
func (t *RememberInfoTool) RiskLevel(map[string]interface{}) entity.RiskLevel { return entity.RiskSafe }

func (t *RememberInfoTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	if t.store == nil || !t.store.IsEnabled() {
		return notEnabledResult(), nil
	}
	content := stringArg(args, "content")
	if content == "" {
		return &domaintool.Result{Success: false, Error: "content is required"}, nil
	}
	tags := stringSliceArg(args, "tags")

	outcome, entry, err := t.store.AddMemory(ctx, t.hostID, content, tags)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}

	switch outcome {
	case memory.OutcomeSkipDynamic:
		return &domaintool.Result{Success: true, Output: "skipped: content looked purely ephemeral (timestamps/PIDs), not worth remembering"}, nil
	case memory.OutcomeSkipDuplicate:
		return &domaintool.Result{Success: true, Output: "skipped: an identical memory already exists for this host"}, nil
	case memory.OutcomeMerged:
		return &domaintool.Result{Success: true, Output: fmt.Sprintf("merged into existing memory %s", entry.ID), Metadata: map[string]interface{}{"id": entry.ID, "outcome": string(outcome)}}, nil
	default:
		return &domaintool.Result{Success: true, Output: fmt.Sprintf("remembered as %s", entry.ID), Metadata: map[string]interface{}{"id": entry.ID, "outcome": string(outcome)}}, nil
	}
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

// SearchKnowledgeTool runs a similarity search against the Knowledge Store.
type SearchKnowledgeTool struct {
	store memory.KnowledgeStore
}

func NewSearchKnowledgeTool(store memory.KnowledgeStore) *SearchKnowledgeTool {
	return &SearchKnowledgeTool{store: store}
}

func (t *SearchKnowledgeTool) Name() string          { return "search_knowledge" }
func (t *SearchKnowledgeTool) Kind() domaintool.Kind { return domaintool.KindSearch }
func (t *SearchKnowledgeTool) Description() string {
	return "Search the knowledge store for memories relevant to a query."
}
func (t *SearchKnowledgeTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string"},
			"limit": map[string]interface{}{"type": "integer"},
		},
		"required": []string{"query"},
	}
}
func (t *SearchKnowledgeTool) RiskLevel(map[string]interface{}) entity.RiskLevel { return entity.RiskSafe }

func (t *SearchKnowledgeTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	if t.store == nil || !t.store.IsEnabled() {
		return notEnabledResult(), nil
	}
	query := stringArg(args, "query")
	if query == "" {
		return &domaintool.Result{Success: false, Error: "query is required"}, nil
	}
	limit := defaultSearchLimit
	if v, ok := intArg(args, "limit"); ok && v > 0 {
		limit = v
	}

	entries, err := t.store.Search(ctx, query, limit)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	if len(entries) == 0 {
		return &domaintool.Result{Success: true, Output: "no matching memories found"}, nil
	}

	out := ""
	for i, e := range entries {
		if i > 0 {
			out += "\n"
		}
		out += fmt.Sprintf("[%s] (score %.2f) %s", e.ID, e.Score, e.Content)
	}
	return &domaintool.Result{Success: true, Output: out, Metadata: map[string]interface{}{"count": len(entries)}}, nil
}

// GetKnowledgeDocTool fetches a single document by ID from the Knowledge Store.
type GetKnowledgeDocTool struct {
	store memory.KnowledgeStore
}

func NewGetKnowledgeDocTool(store memory.KnowledgeStore) *GetKnowledgeDocTool {
	return &GetKnowledgeDocTool{store: store}
}

func (t *GetKnowledgeDocTool) Name() string          { return "get_knowledge_doc" }
func (t *GetKnowledgeDocTool) Kind() domaintool.Kind { return domaintool.KindRead }
func (t *GetKnowledgeDocTool) Description() string {
	return "Fetch the full content of a knowledge store document by ID."
}
func (t *GetKnowledgeDocTool) Schema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{"id": map[string]interface{}{"type": "string"}},
		"required":   []string{"id"},
	}
}
func (t *GetKnowledgeDocTool) RiskLevel(map[string]interface{}) entity.RiskLevel { return entity.RiskSafe }

func (t *GetKnowledgeDocTool) Execute(ctx context.Context, args map[string]interface{}) (*domaintool.Result, error) {
	if t.store == nil || !t.store.IsEnabled() {
		return notEnabledResult(), nil
	}
	id := stringArg(args, "id")
	if id == "" {
		return &domaintool.Result{Success: false, Error: "id is required"}, nil
	}
	doc, err := t.store.GetDocument(ctx, id)
	if err != nil {
		return &domaintool.Result{Success: false, Error: err.Error()}, nil
	}
	if doc == nil {
		return &domaintool.Result{Success: false, Error: fmt.Sprintf("no document with id %q", id)}, nil
	}
	return &domaintool.Result{
		Success: true,
		Output:  doc.Content,
		Metadata: map[string]interface{}{"title": doc.Title, "tags": doc.Tags},
	}, nil
}
