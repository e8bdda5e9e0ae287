package reconcile

import (
	"context"
	"sync"
)

// pushQueues serializes background pushes per session. One goroutine
// drains each active session's queue and exits once the queue empties,
// so an idle edge carries no push goroutines.
type pushQueues struct {
	mu     sync.Mutex
	queues map[string]chan func()
	wg     sync.WaitGroup
}

func newPushQueues() *pushQueues {
	return &pushQueues{queues: map[string]chan func(){}}
}

// enqueue adds a job to the session's queue, starting a drainer if the
// session has none. Returns false when the queue is full.
func (p *pushQueues) enqueue(sessionID string, job func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	queue, ok := p.queues[sessionID]
	if !ok {
		queue = make(chan func(), pushQueueSize)
		p.queues[sessionID] = queue
		p.wg.Add(1)
		go p.drain(sessionID, queue)
	}

	select {
	case queue <- job:
		return true
	default:
		return false
	}
}

func (p *pushQueues) drain(sessionID string, queue chan func()) {
	defer p.wg.Done()
	for {
		select {
		case job := <-queue:
			job()
		default:
			// Retire the queue only while holding the lock so a
			// concurrent enqueue cannot write into a dead channel.
			p.mu.Lock()
			if len(queue) == 0 {
				delete(p.queues, sessionID)
				p.mu.Unlock()
				return
			}
			p.mu.Unlock()
		}
	}
}

// wait blocks until every queued push has run or ctx expires.
func (p *pushQueues) wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
