package process

import (
	"sort"
	"sync"
)

// handlers is a subscription list for one event kind. Handlers run on the
// goroutine that raised the event, one call per handler per event.
type handlers[T any] struct {
	mu   sync.RWMutex
	next int
	fns  map[int]func(T)
}

func (h *handlers[T]) add(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}

	h.mu.Lock()
	if h.fns == nil {
		h.fns = make(map[int]func(T))
	}
	id := h.next
	h.next++
	h.fns[id] = fn
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.fns, id)
			h.mu.Unlock()
		})
	}
}

func (h *handlers[T]) emit(value T) {
	h.mu.RLock()
	ids := make([]int, 0, len(h.fns))
	for id := range h.fns {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.fns[id])
	}
	h.mu.RUnlock()

	// Copy first so handlers may unsubscribe themselves.
	for _, fn := range fns {
		fn(value)
	}
}

func (h *handlers[T]) clear() {
	h.mu.Lock()
	h.fns = nil
	h.mu.Unlock()
}

func (h *handlers[T]) len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.fns)
}
