package player

import "sync"

// opQueue serializes player mutations. Every mutating operation runs on
// one goroutine in submission order, so overlapping pause/seek/advance
// calls can never interleave their state updates.
type opQueue struct {
	ops    chan func()
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

func newOpQueue(buffer int) *opQueue {
	if buffer <= 0 {
		buffer = 64
	}
	q := &opQueue{ops: make(chan func(), buffer)}
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for op := range q.ops {
			op()
		}
	}()
	return q
}

// submit enqueues op, dropping it when the queue is closed.
func (q *opQueue) submit(op func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.ops <- op
}

// barrier blocks until every previously submitted op has run.
func (q *opQueue) barrier() {
	done := make(chan struct{})
	q.submit(func() { close(done) })
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return
	}
	<-done
}

func (q *opQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ops)
	q.mu.Unlock()
	q.wg.Wait()
}
