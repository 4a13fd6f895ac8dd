// Package events is a tiny synchronous publish/subscribe used for state and setting changes.
package events

import "sync"

// Emitter delivers every emitted value once to each subscriber, in emission order.
// Subscribers run on the emitting goroutine, so they must not block.
type Emitter[T any] struct {
	mutex       sync.RWMutex
	nextID      int
	subscribers []subscriber[T]
}

type subscriber[T any] struct {
	id int
	fn func(T)
}

// Subscribe registers fn and returns a function that removes it again.
func (e *Emitter[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	e.nextID++
	id := e.nextID
	e.subscribers = append(e.subscribers, subscriber[T]{id: id, fn: fn})

	return func() {
		e.mutex.Lock()
		defer e.mutex.Unlock()
		for i, s := range e.subscribers {
			if s.id == id {
				e.subscribers = append(e.subscribers[:i:i], e.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (e *Emitter[T]) Emit(value T) {
	e.mutex.RLock()
	subscribers := make([]subscriber[T], len(e.subscribers))
	copy(subscribers, e.subscribers)
	e.mutex.RUnlock()

	for _, s := range subscribers {
		s.fn(value)
	}
}
