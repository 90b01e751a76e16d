package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Human-Frontier-Labs-Inc/ideabrow-automation/internal/webhook"
)

type mockExecutor struct {
	fn func(ctx context.Context, req *webhook.ProjectRequest) error
}

func (m *mockExecutor) Execute(ctx context.Context, req *webhook.ProjectRequest) error {
	if m.fn == nil {
		return nil
	}
	return m.fn(ctx, req)
}

func TestDispatcherEnqueueRunsRequest(t *testing.T) {
	done := make(chan string, 1)
	exec := &mockExecutor{
		fn: func(ctx context.Context, req *webhook.ProjectRequest) error {
			done <- req.RequestID
			return nil
		},
	}

	d := New(exec, Config{Workers: 1, QueueSize: 2}, zerolog.Nop())
	defer d.Shutdown(context.Background())

	if err := d.Enqueue(&webhook.ProjectRequest{ProjectName: "demo", RequestID: "r1"}); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	select {
	case id := <-done:
		if id != "r1" {
			t.Fatalf("executed %q, want r1", id)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Timed out waiting for execution")
	}
}

func TestDispatcherSerializesSameProject(t *testing.T) {
	var mu sync.Mutex
	active := map[string]int{}
	maxActive := map[string]int{}
	done := make(chan struct{}, 4)

	exec := &mockExecutor{
		fn: func(ctx context.Context, req *webhook.ProjectRequest) error {
			mu.Lock()
			active[req.ProjectName]++
			if active[req.ProjectName] > maxActive[req.ProjectName] {
				maxActive[req.ProjectName] = active[req.ProjectName]
			}
			mu.Unlock()

			time.Sleep(20 * time.Millisecond)

			mu.Lock()
			active[req.ProjectName]--
			mu.Unlock()

			done <- struct{}{}
			return nil
		},
	}

	d := New(exec, Config{Workers: 4, QueueSize: 4}, zerolog.Nop())
	defer d.Shutdown(context.Background())

	for _, name := range []string{"demo", "demo", "demo", "other"} {
		if err := d.Enqueue(&webhook.ProjectRequest{ProjectName: name}); err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
	}

	for i := 0; i < 4; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Timed out waiting for serialized requests")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if maxActive["demo"] != 1 {
		t.Fatalf("Expected max concurrent executions 1 for demo, got %d", maxActive["demo"])
	}
}

func TestDispatcherDoesNotRetry(t *testing.T) {
	var calls atomic.Int32
	exec := &mockExecutor{
		fn: func(ctx context.Context, req *webhook.ProjectRequest) error {
			calls.Add(1)
			return errors.New("launch failed")
		},
	}

	d := New(exec, Config{Workers: 1, QueueSize: 1}, zerolog.Nop())
	if err := d.Enqueue(&webhook.ProjectRequest{ProjectName: "demo"}); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	d.Shutdown(context.Background())

	if got := calls.Load(); got != 1 {
		t.Fatalf("Expected exactly 1 execution, got %d", got)
	}
}

func TestDispatcherShutdownDrainsQueue(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	exec := &mockExecutor{
		fn: func(ctx context.Context, req *webhook.ProjectRequest) error {
			<-release
			calls.Add(1)
			return nil
		},
	}

	d := New(exec, Config{Workers: 1, QueueSize: 3}, zerolog.Nop())
	for i := 0; i < 3; i++ {
		if err := d.Enqueue(&webhook.ProjectRequest{ProjectName: "p"}); err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
	}
	close(release)
	d.Shutdown(context.Background())

	if got := calls.Load(); got != 3 {
		t.Fatalf("Expected 3 executions after drain, got %d", got)
	}
}

func TestDispatcherShutdownTimeoutCancelsContext(t *testing.T) {
	cancelled := make(chan struct{})
	exec := &mockExecutor{
		fn: func(ctx context.Context, req *webhook.ProjectRequest) error {
			<-ctx.Done()
			close(cancelled)
			return ctx.Err()
		},
	}

	d := New(exec, Config{Workers: 1, QueueSize: 1}, zerolog.Nop())
	if err := d.Enqueue(&webhook.ProjectRequest{ProjectName: "p"}); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d.Shutdown(ctx)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("in-flight workflow was not cancelled")
	}
}

func TestDispatcherEnqueueAfterShutdown(t *testing.T) {
	d := New(&mockExecutor{}, Config{Workers: 1, QueueSize: 1}, zerolog.Nop())
	d.Shutdown(context.Background())

	err := d.Enqueue(&webhook.ProjectRequest{ProjectName: "demo"})
	if !errors.Is(err, webhook.ErrQueueClosed) {
		t.Fatalf("Expected ErrQueueClosed, got %v", err)
	}
}

func TestDispatcherQueueFull(t *testing.T) {
	d := &Dispatcher{
		queue:  make(chan *webhook.ProjectRequest, 1),
		stopCh: make(chan struct{}),
	}

	d.queue <- &webhook.ProjectRequest{}

	err := d.Enqueue(&webhook.ProjectRequest{})
	if !errors.Is(err, webhook.ErrQueueFull) {
		t.Fatalf("Expected ErrQueueFull, got %v", err)
	}
}

func TestDispatcherEnqueueNil(t *testing.T) {
	d := New(&mockExecutor{}, Config{}, zerolog.Nop())
	defer d.Shutdown(context.Background())

	if err := d.Enqueue(nil); err == nil {
		t.Fatal("Expected error for nil request")
	}
	if d.cfg.Workers != 4 || d.cfg.QueueSize != 16 {
		t.Fatalf("defaults = %+v, want 4 workers and queue 16", d.cfg)
	}
}
