package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// retryableSubstrings are the network-failure signatures spec §4.7 lists as
// worth retrying: connection resets, refusals, timeouts, DNS/route
// failures, broken pipes, and the generic "socket hang up"/"timeout" text
// Node-style HTTP clients surface.
var retryableSubstrings = []string{
	"econnreset", "econnrefused", "etimedout", "enotfound",
	"enetunreach", "ehostunreach", "epipe",
	"socket hang up", "timeout", "deadline exceeded",
	"connection reset", "connection refused",
}

// isRetryableNetworkError reports whether err looks like a transient
// network failure worth an exponential-backoff retry, per spec §4.7.
// Non-network errors (auth, bad request, model errors) are not retried.
func isRetryableNetworkError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	for _, s := range retryableSubstrings {
		if strings.Contains(errStr, s) {
			return true
		}
	}
	return false
}

// callLLMWithRetry calls the LLM with exponential backoff on transient
// network errors: spec §4.7 caps this at 2 retries with a 1000ms base,
// doubled each attempt (1s, 2s). Non-network errors fail immediately.
func (s *Scheduler) callLLMWithRetry(ctx context.Context, req *LLMRequest, step int, eventCh chan<- SchedulerEvent) (*LLMResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := s.config.RetryBaseWait * (1 << (attempt - 1))
			s.logger.Info("Retrying LLM call",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
				zap.Error(lastErr),
			)
			s.emitEvent(eventCh, SchedulerEvent{
				Type:    EventThinking,
				Content: fmt.Sprintf("LLM call failed, retrying (%d/%d) in %s...", attempt, s.config.MaxRetries, wait),
			})
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		deltaCh := make(chan StreamChunk, 128)
		done := make(chan struct{})
		go func() {
			defer close(done)
			lastEmit := time.Now()
			var pending strings.Builder
			for chunk := range deltaCh {
				if chunk.DeltaText == "" {
					continue
				}
				pending.WriteString(chunk.DeltaText)
				// Throttle UI updates to at most once per 100ms, per spec §4.7.
				if time.Since(lastEmit) >= 100*time.Millisecond {
					s.emitEvent(eventCh, SchedulerEvent{Type: EventTextDelta, Content: pending.String()})
					pending.Reset()
					lastEmit = time.Now()
				}
			}
			if pending.Len() > 0 {
				s.emitEvent(eventCh, SchedulerEvent{Type: EventTextDelta, Content: pending.String()})
			}
		}()

		callCtx, cancel := context.WithTimeout(ctx, 3*time.Minute)
		resp, err := s.llm.GenerateStream(callCtx, req, deltaCh)
		cancel()
		close(deltaCh)
		<-done

		if err == nil {
			return resp, nil
		}

		lastErr = err
		s.logger.Warn("LLM streaming call failed", zap.Int("attempt", attempt), zap.Error(err))

		if !isRetryableNetworkError(err) {
			return nil, fmt.Errorf("non-retryable LLM error: %w", err)
		}
	}

	return nil, fmt.Errorf("LLM call failed after %d retries: %w", s.config.MaxRetries, lastErr)
}
