package pending_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"dovakin0007.com/notebook-grpc/internal/pending"
	"github.com/stretchr/testify/assert"
)

func TestMarkAndClearAreIdempotent(t *testing.T) {
	tr := pending.New()

	tr.Mark("a")
	tr.Mark("a")
	assert.True(t, tr.IsPending("a"))
	assert.Equal(t, []string{"a"}, tr.IDs())

	tr.Clear("a")
	tr.Clear("a")
	assert.False(t, tr.IsPending("a"))
	assert.Empty(t, tr.IDs())
}

func TestTryMarkAdmitsOneCaller(t *testing.T) {
	tr := pending.New()
	var admitted int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tr.TryMark("cell") {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), admitted)
}

func TestReset(t *testing.T) {
	tr := pending.New()
	tr.Mark("b")
	tr.Mark("a")
	assert.Equal(t, []string{"a", "b"}, tr.IDs())

	tr.Reset()
	assert.False(t, tr.IsPending("a"))
	assert.False(t, tr.IsPending("b"))
}
