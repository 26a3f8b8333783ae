package worker_test

import (
	"sync/atomic"
	"testing"

	"github.com/dataplug/dataplug-api/internal/worker"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := worker.NewPool(4, 64)

	var ran int64
	for i := 0; i < 50; i++ {
		if !p.Submit(func() { atomic.AddInt64(&ran, 1) }) {
			t.Fatalf("submit %d rejected", i)
		}
	}
	p.Stop()

	if got := atomic.LoadInt64(&ran); got != 50 {
		t.Fatalf("expected 50 tasks run, got %d", got)
	}
}

func TestPoolRejectsWhenFull(t *testing.T) {
	p := worker.NewPool(1, 1)
	defer p.Stop()

	block := make(chan struct{})
	p.Submit(func() { <-block })

	// Queue holds one more; everything after must be rejected, not block.
	p.Submit(func() {})
	if p.Submit(func() {}) {
		t.Fatal("expected rejection on full queue")
	}
	close(block)
}

func TestPoolRejectsAfterStop(t *testing.T) {
	p := worker.NewPool(1, 4)
	p.Stop()
	if p.Submit(func() {}) {
		t.Fatal("expected rejection after Stop")
	}
}
