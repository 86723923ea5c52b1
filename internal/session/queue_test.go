package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestQueueKeepsOrderPerKey(t *testing.T) {
	q := newQueue()
	hold := make(chan struct{})
	started := make(chan struct{})
	var (
		mu    sync.Mutex
		order []int
	)
	appendStep := func(i int) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, i)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		q.do("n1", func() {
			close(started)
			<-hold
			appendStep(1)
		})
	}()
	<-started
	go func() {
		defer wg.Done()
		q.do("n1", func() { appendStep(2) })
	}()

	other := make(chan struct{})
	go q.do("n2", func() { close(other) })
	select {
	case <-other:
	case <-time.After(time.Second):
		t.Fatal("unrelated key was blocked")
	}

	assert.Never(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) > 0
	}, 50*time.Millisecond, 5*time.Millisecond)

	close(hold)
	wg.Wait()
	assert.Equal(t, []int{1, 2}, order)
	assert.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.tails) == 0
	}, time.Second, 5*time.Millisecond)
}
