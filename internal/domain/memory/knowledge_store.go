package memory

import (
	"context"
	"regexp"
	"strings"
)

// AddMemoryOutcome classifies what AddMemory actually did with a new entry.
type AddMemoryOutcome string

const (
	OutcomeAdded         AddMemoryOutcome = "added"
	OutcomeMerged        AddMemoryOutcome = "merged"
	OutcomeReplaced      AddMemoryOutcome = "replaced"
	OutcomeSkipDuplicate AddMemoryOutcome = "skip_duplicate"
	OutcomeSkipDynamic   AddMemoryOutcome = "skip_dynamic"
)

// Document is a Knowledge Store document's metadata, as surfaced by
// GetDocuments/GetDocument.
type Document struct {
	ID      string
	Title   string
	Content string
	Tags    []string
}

// KnowledgeStore is the consumed, optional Knowledge Store contract (§6):
// vector search plus a document store, owned and populated outside this
// engine. `remember_info`/`search_knowledge`/`get_knowledge_doc` are thin
// passthroughs to an implementation of this interface.
type KnowledgeStore interface {
	IsEnabled() bool
	BuildContext(ctx context.Context, query string, hostID string) (string, error)
	GetHostMemoriesForPrompt(ctx context.Context, hostID, query string, limit int) ([]string, error)
	GetDocuments(ctx context.Context) ([]Document, error)
	Search(ctx context.Context, query string, limit int) ([]*MemoryEntry, error)
	GetDocument(ctx context.Context, id string) (*Document, error)
	AddMemory(ctx context.Context, hostID, content string, tags []string) (AddMemoryOutcome, *MemoryEntry, error)
}

// dynamicPatterns is the lightweight heuristic remember_info uses to skip
// memories that are pure noise: timestamps, PIDs, and similar ephemera
// that would never be useful to recall later.
var dynamicPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bpid\s*[:=]?\s*\d+\b`),
	regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}\b`),
	regexp.MustCompile(`(?i)\b\d{10,13}\b`), // unix timestamps, millis
	regexp.MustCompile(`(?i)\belapsed\s*[:=]?\s*[\d.]+\s*m?s\b`),
}

// isPurelyDynamic reports whether content consists only of ephemeral data
// (timestamps, PIDs, durations) with no stable information worth keeping.
func isPurelyDynamic(content string) bool {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return true
	}
	stripped := trimmed
	for _, p := range dynamicPatterns {
		stripped = p.ReplaceAllString(stripped, "")
	}
	remaining := strings.TrimSpace(stripped)
	// If removing every dynamic token leaves under a quarter of the
	// original text, the entry was mostly noise.
	return len(remaining) < len(trimmed)/4
}

// similarityThreshold is the cosine-similarity bar above which a new
// memory is considered a near-duplicate of an existing one.
const similarityThreshold = 0.92

// DefaultKnowledgeStore is the built-in KnowledgeStore backed by a
// VectorStore + EmbeddingProvider (see manager.go), with an in-process
// document set.
type DefaultKnowledgeStore struct {
	manager   *MemoryManager
	documents map[string]Document
	enabled   bool
}

// NewDefaultKnowledgeStore wraps a MemoryManager as a KnowledgeStore.
func NewDefaultKnowledgeStore(manager *MemoryManager, enabled bool) *DefaultKnowledgeStore {
	return &DefaultKnowledgeStore{manager: manager, documents: make(map[string]Document), enabled: enabled}
}

func (k *DefaultKnowledgeStore) IsEnabled() bool { return k.enabled }

func (k *DefaultKnowledgeStore) BuildContext(ctx context.Context, query string, hostID string) (string, error) {
	entries, err := k.manager.Recall(ctx, query, 5, &SearchFilter{})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, e := range entries {
		b.WriteString("- ")
		b.WriteString(e.Content)
		b.WriteString("\n")
	}
	return b.String(), nil
}

func (k *DefaultKnowledgeStore) GetHostMemoriesForPrompt(ctx context.Context, hostID, query string, limit int) ([]string, error) {
	entries, err := k.manager.Recall(ctx, query, limit, &SearchFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Metadata["host_id"] == hostID {
			out = append(out, e.Content)
		}
	}
	return out, nil
}

func (k *DefaultKnowledgeStore) GetDocuments(ctx context.Context) ([]Document, error) {
	docs := make([]Document, 0, len(k.documents))
	for _, d := range k.documents {
		docs = append(docs, d)
	}
	return docs, nil
}

func (k *DefaultKnowledgeStore) Search(ctx context.Context, query string, limit int) ([]*MemoryEntry, error) {
	return k.manager.Recall(ctx, query, limit, &SearchFilter{})
}

func (k *DefaultKnowledgeStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	d, ok := k.documents[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

// AddMemory stores content as a host-scoped memory, skipping purely
// dynamic content and deduplicating against existing near-identical
// memories for the same host.
func (k *DefaultKnowledgeStore) AddMemory(ctx context.Context, hostID, content string, tags []string) (AddMemoryOutcome, *MemoryEntry, error) {
	if isPurelyDynamic(content) {
		return OutcomeSkipDynamic, nil, nil
	}

	existing, err := k.manager.Recall(ctx, content, 3, &SearchFilter{})
	if err != nil {
		return "", nil, err
	}
	for _, e := range existing {
		if e.Metadata["host_id"] != hostID {
			continue
		}
		if e.Score >= similarityThreshold {
			if e.Content == content {
				return OutcomeSkipDuplicate, e, nil
			}
			e.Content = content
			e.Metadata["tags"] = tags
			if err := k.manager.store.Update(ctx, e); err != nil {
				return "", nil, err
			}
			return OutcomeMerged, e, nil
		}
	}

	entry, err := k.manager.Remember(ctx, content, map[string]interface{}{"host_id": hostID, "tags": tags})
	if err != nil {
		return "", nil, err
	}
	return OutcomeAdded, entry, nil
}
