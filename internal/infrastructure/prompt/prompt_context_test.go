package prompt

import (
	"strings"
	"testing"
)

// === Carried-over context ===

func TestBuildCarriedContextSection_Empty(t *testing.T) {
	ctx := &PromptContext{}
	if result := ctx.buildCarriedContextSection(); result != "" {
		t.Errorf("expected empty section for empty context, got: %q", result)
	}
}

func TestBuildCarriedContextSection_DocumentContextOnly(t *testing.T) {
	ctx := &PromptContext{
		DocumentContext: "prior plan: restart nginx then verify health check",
	}

	result := ctx.buildCarriedContextSection()

	if !strings.Contains(result, "## Carried-over Context") {
		t.Error("missing header")
	}
	if !strings.Contains(result, "restart nginx") {
		t.Error("missing document context content")
	}
}

func TestBuildCarriedContextSection_PreviousFailedAgents(t *testing.T) {
	ctx := &PromptContext{
		PreviousFailedAgents: []string{
			"timed out waiting for apt-get to finish",
			"wrong host: connected to web-2 instead of web-1",
		},
	}

	result := ctx.buildCarriedContextSection()

	if !strings.Contains(result, "attempt 1: timed out waiting for apt-get") {
		t.Error("missing first attempt summary")
	}
	if !strings.Contains(result, "attempt 2: wrong host") {
		t.Error("missing second attempt summary")
	}
}

func TestBuildCarriedContextSection_Both(t *testing.T) {
	ctx := &PromptContext{
		DocumentContext:      "task: rotate the TLS cert on web-1",
		PreviousFailedAgents: []string{"cert renewal command needed sudo"},
	}

	result := ctx.buildCarriedContextSection()

	if !strings.Contains(result, "rotate the TLS cert") {
		t.Error("missing document context")
	}
	if !strings.Contains(result, "cert renewal command needed sudo") {
		t.Error("missing previous failure")
	}
}

// === formatInt helper ===

func TestFormatInt(t *testing.T) {
	tests := []struct {
		input    int
		expected string
	}{
		{0, "0"},
		{1, "1"},
		{42, "42"},
		{100, "100"},
		{-5, "-5"},
		{999, "999"},
	}

	for _, tt := range tests {
		result := formatInt(tt.input)
		if result != tt.expected {
			t.Errorf("formatInt(%d) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

// === PromptContext helpers ===

func TestHasTool(t *testing.T) {
	ctx := &PromptContext{
		RegisteredTools: []string{"execute_command", "read_file", "search_knowledge"},
	}

	if !ctx.HasTool("execute_command") {
		t.Error("should find execute_command")
	}
	if ctx.HasTool("nonexistent") {
		t.Error("should not find nonexistent tool")
	}
}

func TestHasAnyTool(t *testing.T) {
	ctx := &PromptContext{
		RegisteredTools: []string{"execute_command", "read_file"},
	}

	if !ctx.HasAnyTool([]string{"nonexistent", "read_file"}) {
		t.Error("should find read_file in the list")
	}
	if ctx.HasAnyTool([]string{"a", "b", "c"}) {
		t.Error("should not find any")
	}
}

func TestModelPrefix(t *testing.T) {
	tests := []struct {
		model    string
		expected string
	}{
		{"anthropic/claude-sonnet-4-20250514", "anthropic"},
		{"openai/gpt-4o", "openai"},
		{"gpt-4o", "gpt-4o"}, // No slash = full name
		{"a/b/c", "a"},       // Only first slash
	}

	for _, tt := range tests {
		ctx := &PromptContext{ModelName: tt.model}
		if got := ctx.ModelPrefix(); got != tt.expected {
			t.Errorf("ModelPrefix(%q) = %q, want %q", tt.model, got, tt.expected)
		}
	}
}

func TestModelShortName(t *testing.T) {
	tests := []struct {
		model    string
		expected string
	}{
		{"anthropic/claude-sonnet-4-20250514", "claude-sonnet-4-20250514"},
		{"openai/gpt-4o", "gpt-4o"},
		{"gpt-4o", "gpt-4o"},
	}

	for _, tt := range tests {
		ctx := &PromptContext{ModelName: tt.model}
		if got := ctx.ModelShortName(); got != tt.expected {
			t.Errorf("ModelShortName(%q) = %q, want %q", tt.model, got, tt.expected)
		}
	}
}

// === Intent ===

func TestTaskIntent_String(t *testing.T) {
	tests := []struct {
		intent   TaskIntent
		expected string
	}{
		{IntentGeneral, "general"},
		{IntentFileOps, "file_ops"},
		{IntentDiagnose, "diagnose"},
		{IntentRemoteOps, "remote_ops"},
		{TaskIntent(99), "general"},
	}

	for _, tt := range tests {
		if got := tt.intent.String(); got != tt.expected {
			t.Errorf("TaskIntent(%d).String() = %q, want %q", tt.intent, got, tt.expected)
		}
	}
}

func TestAnalyzeIntent(t *testing.T) {
	tests := []struct {
		message  string
		expected TaskIntent
	}{
		{"can you read file /etc/nginx/nginx.conf", IntentFileOps},
		{"the deploy script keeps failing with an exception", IntentDiagnose},
		{"connect to another host and check disk space", IntentRemoteOps},
		{"what's the current time", IntentGeneral},
	}

	for _, tt := range tests {
		if got := AnalyzeIntent(tt.message); got != tt.expected {
			t.Errorf("AnalyzeIntent(%q) = %v, want %v", tt.message, got, tt.expected)
		}
	}
}
