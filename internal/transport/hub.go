package transport

import "sync"

// hub fans values out to subscribers. Callbacks run outside the lock, in
// subscription order.
type hub[T any] struct {
	mu   sync.Mutex
	next int
	subs map[int]func(T)
	ids  []int
}

func (h *hub[T]) add(fn func(T)) func() {
	if fn == nil {
		return func() {}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = map[int]func(T){}
	}
	id := h.next
	h.next++
	h.subs[id] = fn
	h.ids = append(h.ids, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs, id)
			for i, x := range h.ids {
				if x == id {
					h.ids = append(h.ids[:i:i], h.ids[i+1:]...)
					break
				}
			}
		})
	}
}

func (h *hub[T]) emit(v T) {
	h.mu.Lock()
	fns := make([]func(T), 0, len(h.ids))
	for _, id := range h.ids {
		fns = append(fns, h.subs[id])
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (h *hub[T]) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.ids)
}
