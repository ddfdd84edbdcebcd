package terminal

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeTransport struct {
	mu      sync.Mutex
	alive   bool
	written [][]byte
	handler func([]byte)
}

func (f *fakeTransport) Write(ctx context.Context, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeTransport) Subscribe(h func(chunk []byte)) func() {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.handler = nil
		f.mu.Unlock()
	}
}

func (f *fakeTransport) Alive() bool { return f.alive }

func (f *fakeTransport) emit(chunk []byte) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(chunk)
	}
}

func TestExecuteAndCapture_CompletesOnPrompt(t *testing.T) {
	rt := &fakeTransport{alive: true}
	local := NewLocalTerminal(rt)

	go func() {
		time.Sleep(20 * time.Millisecond)
		rt.emit([]byte("hello world\nuser@host:~$ "))
	}()

	result, err := local.ExecuteAndCapture(context.Background(), "echo hello", 2000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output == "" {
		t.Fatal("expected non-empty output")
	}
}

func TestExecuteAndCapture_TimesOut(t *testing.T) {
	rt := &fakeTransport{alive: true}
	local := NewLocalTerminal(rt)

	_, err := local.ExecuteAndCapture(context.Background(), "sleep 100", 50)
	if err != ErrExecuteTimeout {
		t.Fatalf("expected timeout error, got %v", err)
	}
}

func TestStatus_NotConnected(t *testing.T) {
	rt := &fakeTransport{alive: false}
	local := NewLocalTerminal(rt)
	status, err := local.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.Reason != "terminal not connected" {
		t.Fatalf("unexpected status: %+v", status)
	}
}
