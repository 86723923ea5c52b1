// Package pending tracks InputCells whose execute request has been sent but
// whose response has not been applied yet. The state is local to a session.
package pending

import (
	"sort"
	"sync"
)

type Tracker struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func New() *Tracker {
	return &Tracker{ids: make(map[string]struct{})}
}

// Mark is idempotent.
func (t *Tracker) Mark(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ids[id] = struct{}{}
}

// TryMark marks id and reports whether it was not pending before.
func (t *Tracker) TryMark(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.ids[id]; ok {
		return false
	}
	t.ids[id] = struct{}{}
	return true
}

func (t *Tracker) IsPending(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.ids[id]
	return ok
}

// Clear is idempotent.
func (t *Tracker) Clear(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ids, id)
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ids = make(map[string]struct{})
}

func (t *Tracker) IDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.ids))
	for id := range t.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
