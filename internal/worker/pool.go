package worker

import (
	"sync"

	"github.com/rs/zerolog/log"
)

type task func()

// Pool is a bounded work queue drained by a fixed set of goroutines.
// Fulfillment dispatch is handed off here after the checkout response has
// been written, so bulk orders never block the request path.
type Pool struct {
	wg   sync.WaitGroup
	jobs chan task

	mu     sync.Mutex
	closed bool
}

func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	p := &Pool{jobs: make(chan task, queueSize)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

// Submit enqueues f. Returns false when the queue is full or the pool is
// stopped; callers treat that as a dispatch failure to be swept up later,
// not a reason to block the caller.
func (p *Pool) Submit(f task) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- f:
		return true
	default:
		log.Warn().Msg("worker queue full, task rejected")
		return false
	}
}

// Pending reports the number of queued tasks.
func (p *Pool) Pending() int {
	return len(p.jobs)
}

// Stop closes the queue and waits for in-flight tasks to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
