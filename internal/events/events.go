// Package events fans notebook change events out to watchers.
package events

import (
	"context"
	"sync"

	"dovakin0007.com/notebook-grpc/internal/models"
)

type Bus interface {
	Publish(ctx context.Context, ev models.ChangeEvent) error
	// Subscribe delivers events of one notebook until cancel is called or
	// ctx ends.
	Subscribe(ctx context.Context, notebookID string) (events <-chan models.ChangeEvent, cancel func(), err error)
	Close() error
}

const subscriberBuffer = 64

// LocalBus is an in-process bus for a single server.
type LocalBus struct {
	mu   sync.Mutex
	subs map[string]map[chan models.ChangeEvent]struct{}
}

func NewLocalBus() *LocalBus {
	return &LocalBus{subs: make(map[string]map[chan models.ChangeEvent]struct{})}
}

// Publish never blocks; a subscriber whose buffer is full misses the event.
func (b *LocalBus) Publish(_ context.Context, ev models.ChangeEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[ev.NotebookID] {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, notebookID string) (<-chan models.ChangeEvent, func(), error) {
	ch := make(chan models.ChangeEvent, subscriberBuffer)
	b.mu.Lock()
	if b.subs[notebookID] == nil {
		b.subs[notebookID] = make(map[chan models.ChangeEvent]struct{})
	}
	b.subs[notebookID][ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[notebookID][ch]; !ok {
			return
		}
		delete(b.subs[notebookID], ch)
		if len(b.subs[notebookID]) == 0 {
			delete(b.subs, notebookID)
		}
		close(ch)
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}

func (b *LocalBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, set := range b.subs {
		for ch := range set {
			close(ch)
		}
		delete(b.subs, id)
	}
	return nil
}
