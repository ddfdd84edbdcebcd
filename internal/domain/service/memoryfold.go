package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// turn is a contiguous run of messages memory folding treats as one unit:
// a lone system message, or a run that starts at a user or assistant
// message arriving while no tool call is open and ends before the next
// such message or right after the last open tool call is answered, so an
// assistant-with-tool_calls message stays with every tool message
// answering it.
type turn struct {
	messages []LLMMessage
}

func (t turn) tokenEstimate() int {
	total := 0
	for _, m := range t.messages {
		total += estimateMessageTokens(m)
	}
	return total
}

const (
	foldHighWaterRatio  = 0.8
	toolTruncateLimit   = 2000
	assistantTruncLimit = 3000
	truncateHeadLines   = 10
	truncateTailLines   = 10
	keepRecentTurns     = 3
)

// isCJKRune reports whether r is a CJK codepoint, for the token-estimate blend.
func isCJKRune(r rune) bool {
	return (r >= 0x4E00 && r <= 0x9FFF) || (r >= 0x3040 && r <= 0x30FF) || (r >= 0xAC00 && r <= 0xD7A3)
}

// estimateTokenCount applies the ~1.5 tok/char CJK, ~0.25 tok/char
// otherwise blend from spec §4.6.
func estimateTokenCount(s string) int {
	var tokens float64
	for _, r := range s {
		if isCJKRune(r) {
			tokens += 1.5
		} else {
			tokens += 0.25
		}
	}
	return int(tokens)
}

func estimateMessageTokens(m LLMMessage) int {
	total := estimateTokenCount(m.TextContent())
	for _, tc := range m.ToolCalls {
		total += estimateTokenCount(tc.Arguments)
	}
	return total
}

// groupIntoTurns implements step 2 of the Memory Folding algorithm: a
// system message alone forms a turn; a user message starts a new turn; an
// assistant-with-tool_calls message stays open until every one of its
// tool_call_ids has been answered.
func groupIntoTurns(messages []LLMMessage) []turn {
	var turns []turn
	var current []LLMMessage
	pendingToolCalls := map[string]bool{}

	flush := func() {
		if len(current) > 0 {
			turns = append(turns, turn{messages: current})
			current = nil
		}
	}

	for _, m := range messages {
		switch m.Role {
		case "system":
			flush()
			turns = append(turns, turn{messages: []LLMMessage{m}})
		case "user":
			if len(pendingToolCalls) == 0 {
				flush()
			}
			current = append(current, m)
		case "assistant":
			if len(pendingToolCalls) == 0 {
				flush()
			}
			current = append(current, m)
			for _, tc := range m.ToolCalls {
				pendingToolCalls[tc.ID] = true
			}
		case "tool":
			current = append(current, m)
			delete(pendingToolCalls, m.ToolCallID)
			if len(pendingToolCalls) == 0 {
				flush()
			}
		default:
			current = append(current, m)
		}
	}
	flush()
	return turns
}

func flattenTurns(turns []turn) []LLMMessage {
	var out []LLMMessage
	for _, t := range turns {
		out = append(out, t.messages...)
	}
	return out
}

// compressWithinGroup applies step 3: long tool results get head/tail
// truncated, long assistant replies get a truncation marker.
func compressWithinGroup(messages []LLMMessage) []LLMMessage {
	out := make([]LLMMessage, len(messages))
	for i, m := range messages {
		switch m.Role {
		case "tool":
			m.Content = truncateToolOutput(m.Content)
		case "assistant":
			if len(m.Content) > assistantTruncLimit {
				m.Content = m.Content[:assistantTruncLimit] + "\n[reply truncated]"
			}
		}
		out[i] = m
	}
	return out
}

func truncateToolOutput(content string) string {
	if len(content) <= toolTruncateLimit {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) > truncateHeadLines+truncateTailLines {
		head := lines[:truncateHeadLines]
		tail := lines[len(lines)-truncateTailLines:]
		omitted := len(lines) - truncateHeadLines - truncateTailLines
		return strings.Join(head, "\n") + fmt.Sprintf("\n[omitted %d lines]\n", omitted) + strings.Join(tail, "\n")
	}
	return content[:toolTruncateLimit] + fmt.Sprintf("\n[original length: %d]", len(content))
}

var importanceKeywords = regexp.MustCompile(`结果|发现|错误|成功|完成|failure|result`)

// roleWeight biases importance scoring toward assistant/tool turns, which
// carry decisions and outcomes, over plain user turns.
func roleWeight(t turn) float64 {
	for _, m := range t.messages {
		if m.Role == "assistant" && len(m.ToolCalls) > 0 {
			return 1.2
		}
	}
	return 1.0
}

// importanceScore implements the recency/role/keyword/length factors from
// spec §4.6 step 4. recencyShare is this turn's position as a fraction of
// the candidate list (closer to 1.0 is more recent).
func importanceScore(t turn, recencyShare float64) float64 {
	score := recencyShare * 0.4
	score += roleWeight(t) * 0.3

	keywordHits := 0
	totalLen := 0
	for _, m := range t.messages {
		text := m.TextContent()
		totalLen += len(text)
		keywordHits += len(importanceKeywords.FindAllString(text, -1))
	}
	if keywordHits > 0 {
		score += 0.2
	}
	if totalLen > 4000 {
		score -= 0.1 // length penalty for oversized turns
	}
	return score
}

// keyPoint phrase markers used to pull diagnostic findings, executed
// actions, and errors out of discarded turns for the summary message.
var keyPointPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(error|failed|失败|错误)[:：]?\s*(.+)`),
	regexp.MustCompile(`(?i)(completed|成功|完成)[:：]?\s*(.+)`),
	regexp.MustCompile(`(?i)(found|发现)[:：]?\s*(.+)`),
}

func extractKeyPoints(t turn) []string {
	var points []string
	for _, m := range t.messages {
		text := m.TextContent()
		for _, p := range keyPointPatterns {
			if match := p.FindStringSubmatch(text); match != nil {
				line := strings.TrimSpace(match[0])
				if len(line) > 200 {
					line = line[:200] + "..."
				}
				points = append(points, line)
			}
		}
	}
	return points
}

// Summarizer calls the model once to compress old turns to ~80% of budget;
// FoldMessages falls back to a deterministic summary when it returns "" or
// errors.
type Summarizer func(ctx context.Context, turnsText string) (string, error)

// FoldMessages is the Memory Folding entry point: it returns messages
// unchanged when under budget, and otherwise groups into turns, compresses
// within groups, and — if still over budget — folds older turns into a
// synthetic summary message while keeping the most recent turns verbatim.
func FoldMessages(ctx context.Context, messages []LLMMessage, contextLength int, summarize Summarizer) []LLMMessage {
	total := 0
	for _, m := range messages {
		total += estimateMessageTokens(m)
	}
	budget := int(float64(contextLength) * foldHighWaterRatio)
	if total <= budget {
		return messages
	}

	turns := groupIntoTurns(messages)
	for i, t := range turns {
		turns[i] = turn{messages: compressWithinGroup(t.messages)}
	}

	compressedTotal := 0
	for _, t := range turns {
		compressedTotal += t.tokenEstimate()
	}
	if compressedTotal <= budget {
		return flattenTurns(turns)
	}

	return foldTurns(ctx, turns, budget, summarize)
}

func foldTurns(ctx context.Context, turns []turn, budget int, summarize Summarizer) []LLMMessage {
	var systemTurns []turn
	var rest []turn
	for _, t := range turns {
		if len(t.messages) == 1 && t.messages[0].Role == "system" {
			systemTurns = append(systemTurns, t)
		} else {
			rest = append(rest, t)
		}
	}

	keepCount := keepRecentTurns
	if keepCount > len(rest) {
		keepCount = len(rest)
	}
	recent := rest[len(rest)-keepCount:]
	historical := rest[:len(rest)-keepCount]

	systemBudget := 0
	for _, t := range systemTurns {
		systemBudget += t.tokenEstimate()
	}
	recentBudget := 0
	for _, t := range recent {
		recentBudget += t.tokenEstimate()
	}
	remaining := budget - systemBudget - recentBudget

	selected := selectByImportance(historical, remaining)

	var keyPoints []string
	selectedSet := make(map[int]bool)
	for _, idx := range selected {
		selectedSet[idx] = true
	}
	for i, t := range historical {
		if !selectedSet[i] {
			keyPoints = append(keyPoints, extractKeyPoints(t)...)
		}
	}

	var out []LLMMessage
	for _, t := range systemTurns {
		out = append(out, t.messages...)
	}

	if len(keyPoints) > 0 {
		summaryText := summarizeKeyPoints(ctx, keyPoints, summarize)
		out = append(out, LLMMessage{Role: "user", Content: summaryText})
	}

	// restore chronological order among selected historical turns
	for i, t := range historical {
		if selectedSet[i] {
			out = append(out, t.messages...)
		}
	}
	for _, t := range recent {
		out = append(out, t.messages...)
	}
	return out
}

// selectByImportance scores each historical turn and greedily picks the
// top-scoring turns whose summed token estimate fits the budget, returning
// their original indices.
func selectByImportance(historical []turn, budget int) []int {
	type scored struct {
		idx   int
		score float64
		tok   int
	}
	scoredTurns := make([]scored, len(historical))
	for i, t := range historical {
		recency := float64(i+1) / float64(len(historical))
		scoredTurns[i] = scored{idx: i, score: importanceScore(t, recency), tok: t.tokenEstimate()}
	}
	// simple selection sort by score descending — historical is small enough
	for i := range scoredTurns {
		best := i
		for j := i + 1; j < len(scoredTurns); j++ {
			if scoredTurns[j].score > scoredTurns[best].score {
				best = j
			}
		}
		scoredTurns[i], scoredTurns[best] = scoredTurns[best], scoredTurns[i]
	}

	var selected []int
	used := 0
	for _, s := range scoredTurns {
		if used+s.tok > budget {
			continue
		}
		selected = append(selected, s.idx)
		used += s.tok
	}
	return selected
}

func summarizeKeyPoints(ctx context.Context, keyPoints []string, summarize Summarizer) string {
	joined := strings.Join(keyPoints, "\n")
	if summarize != nil {
		if summary, err := summarize(ctx, joined); err == nil && summary != "" {
			return fmt.Sprintf("[earlier turns compacted]\n%s", summary)
		}
	}
	return fmt.Sprintf("[earlier turns compacted — key points]\n%s", joined)
}
