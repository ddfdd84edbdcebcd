package memory

import (
	"context"
	"testing"
)

func TestIsPurelyDynamic(t *testing.T) {
	if !isPurelyDynamic("pid: 12345 at 2026-01-02T03:04:05") {
		t.Error("expected purely-dynamic content to be detected")
	}
	if isPurelyDynamic("the deploy script requires a staging API key in .env") {
		t.Error("expected substantive content to not be flagged as dynamic")
	}
}

func TestAddMemory_SkipsDynamic(t *testing.T) {
	manager := NewMemoryManager(NewInMemoryVectorStore(), NewSimpleEmbedder(16))
	ks := NewDefaultKnowledgeStore(manager, true)

	outcome, entry, err := ks.AddMemory(context.Background(), "host-1", "pid=4821 2026-01-02T03:04:05", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeSkipDynamic {
		t.Fatalf("expected skip_dynamic, got %s", outcome)
	}
	if entry != nil {
		t.Fatal("expected no entry for skipped memory")
	}
}

func TestAddMemory_AddsAndDeduplicates(t *testing.T) {
	manager := NewMemoryManager(NewInMemoryVectorStore(), NewSimpleEmbedder(16))
	ks := NewDefaultKnowledgeStore(manager, true)
	ctx := context.Background()

	outcome, entry, err := ks.AddMemory(ctx, "host-1", "the database runs on port 5432", []string{"db"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeAdded || entry == nil {
		t.Fatalf("expected added, got %s", outcome)
	}

	outcome, _, err = ks.AddMemory(ctx, "host-1", "the database runs on port 5432", []string{"db"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomeSkipDuplicate {
		t.Fatalf("expected skip_duplicate on repeat, got %s", outcome)
	}
}
