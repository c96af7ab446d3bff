package scanrunner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/afcbpeter1/Accessitest-sub009/internal/ports"
)

type queueFake struct {
	mu        sync.Mutex
	pending   []ports.QueuedScan
	completed []string
	failed    map[string]string
}

func newQueueFake(rows ...ports.QueuedScan) *queueFake {
	return &queueFake{pending: rows, failed: map[string]string{}}
}

func (q *queueFake) Enqueue(ctx context.Context, row ports.QueuedScan) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, row)
	return nil
}

func (q *queueFake) ClaimNext(ctx context.Context) (ports.QueuedScan, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return ports.QueuedScan{}, false, nil
	}
	row := q.pending[0]
	q.pending = q.pending[1:]
	return row, true, nil
}

func (q *queueFake) MarkCompleted(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, jobID)
	return nil
}

func (q *queueFake) MarkFailed(ctx context.Context, jobID, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[jobID] = reason
	return nil
}

type processorFake struct {
	mu      sync.Mutex
	seen    []string
	failFor map[string]error
	done    chan string
}

func newProcessorFake() *processorFake {
	return &processorFake{failFor: map[string]error{}, done: make(chan string, 16)}
}

func (p *processorFake) Process(ctx context.Context, queued ports.QueuedScan) error {
	p.mu.Lock()
	p.seen = append(p.seen, queued.JobID)
	err := p.failFor[queued.JobID]
	p.mu.Unlock()
	p.done <- queued.JobID
	return err
}

func waitFor(t *testing.T, done <-chan string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(3 * time.Second):
			t.Fatalf("only %d of %d queued scans were processed", i, n)
		}
	}
}

func waitForMarks(t *testing.T, check func() bool) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if check() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("queue bookkeeping never happened")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRunDrainsQueue(t *testing.T) {
	queue := newQueueFake(
		ports.QueuedScan{JobID: "d1", ObjectKey: "uploads/d1/a.pdf"},
		ports.QueuedScan{JobID: "d2", ObjectKey: "uploads/d2/b.pdf"},
		ports.QueuedScan{JobID: "d3", ObjectKey: "uploads/d3/c.pdf"},
	)
	proc := newProcessorFake()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	Run(ctx, queue, proc, 2, 10*time.Millisecond)
	waitFor(t, proc.done, 3)
	waitForMarks(t, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return len(queue.completed) == 3
	})

	proc.mu.Lock()
	seen := len(proc.seen)
	proc.mu.Unlock()
	if seen != 3 {
		t.Fatalf("processed %d scans, want 3", seen)
	}
}

func TestRunMarksFailures(t *testing.T) {
	queue := newQueueFake(
		ports.QueuedScan{JobID: "ok"},
		ports.QueuedScan{JobID: "broken"},
	)
	proc := newProcessorFake()
	proc.failFor["broken"] = errors.New("payload missing")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	Run(ctx, queue, proc, 1, 10*time.Millisecond)
	waitFor(t, proc.done, 2)
	waitForMarks(t, func() bool {
		queue.mu.Lock()
		defer queue.mu.Unlock()
		return len(queue.completed) == 1 && len(queue.failed) == 1
	})

	queue.mu.Lock()
	defer queue.mu.Unlock()
	if queue.completed[0] != "ok" {
		t.Fatalf("completed = %v", queue.completed)
	}
	if reason := queue.failed["broken"]; reason != "payload missing" {
		t.Fatalf("failed reason = %q", reason)
	}
}

func TestRunWithoutWorkersIsANoop(t *testing.T) {
	queue := newQueueFake(ports.QueuedScan{JobID: "d1"})
	proc := newProcessorFake()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	Run(ctx, queue, proc, 0, time.Millisecond)
	time.Sleep(30 * time.Millisecond)

	proc.mu.Lock()
	defer proc.mu.Unlock()
	if len(proc.seen) != 0 {
		t.Fatalf("no workers were requested, yet %v ran", proc.seen)
	}
}
