package progress

import (
	"testing"

	"github.com/termpilot/engine/internal/domain/entity"
)

func TestDetectProgress_Percentage(t *testing.T) {
	info := DetectProgress("Downloading package...\n45% complete\n", "wget http://example.com/file")
	if info.Progress == nil {
		t.Fatal("expected a progress reading")
	}
	if info.Progress.Value != 45 {
		t.Fatalf("expected 45%%, got %v", info.Progress.Value)
	}
}

func TestDetectProgress_CompileFraction(t *testing.T) {
	info := DetectProgress("[42/100] Building CXX object foo.cpp.o\n", "make")
	if info.Progress == nil || info.Progress.Current == nil || *info.Progress.Current != 42 {
		t.Fatalf("expected fraction 42/100, got %+v", info.Progress)
	}
}

func TestDetectProgress_TestSummary(t *testing.T) {
	info := DetectProgress("12 passed, 2 failed\n", "go test ./...")
	if info.Progress == nil {
		t.Fatal("expected a progress reading for test summary")
	}
}

func TestDetectProgress_Indeterminate(t *testing.T) {
	info := DetectProgress("processing request -\nstill working \\\n", "")
	if !info.IsIndeterminate {
		t.Fatal("expected indeterminate spinner detection")
	}
}

func TestHasProgressChanged(t *testing.T) {
	old := &entity.ProgressValue{Value: 40, ETA: "1m"}
	same := &entity.ProgressValue{Value: 40.4, ETA: "1m"}
	if HasProgressChanged(old, same) {
		t.Fatal("expected sub-1%% change with same ETA to not be significant")
	}
	bumped := &entity.ProgressValue{Value: 42, ETA: "1m"}
	if !HasProgressChanged(old, bumped) {
		t.Fatal("expected >=1%% change to be significant")
	}
	etaChanged := &entity.ProgressValue{Value: 40, ETA: "30s"}
	if !HasProgressChanged(old, etaChanged) {
		t.Fatal("expected ETA change to be significant")
	}
}
