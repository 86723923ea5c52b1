package session

import "sync"

// queue runs functions one at a time per key, in call order. Functions for
// different keys run concurrently.
type queue struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newQueue() *queue {
	return &queue{tails: make(map[string]chan struct{})}
}

func (q *queue) do(key string, fn func()) {
	done := make(chan struct{})
	q.mu.Lock()
	prev := q.tails[key]
	q.tails[key] = done
	q.mu.Unlock()

	if prev != nil {
		<-prev
	}
	defer func() {
		q.mu.Lock()
		if q.tails[key] == done {
			delete(q.tails, key)
		}
		q.mu.Unlock()
		close(done)
	}()
	fn()
}
