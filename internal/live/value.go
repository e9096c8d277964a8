package live

import "sync"

// Value is a live value: subscribers receive the current value on subscribe
// and every value set afterwards.
type Value[T any] struct {
	queue *Queue

	mu      sync.Mutex
	current T
	subs    map[*Subscription]func(T)
}

// NewValue creates a live value holding initial.
func NewValue[T any](queue *Queue, initial T) *Value[T] {
	return &Value[T]{
		queue:   queue,
		current: initial,
		subs:    make(map[*Subscription]func(T)),
	}
}

// Get returns a snapshot of the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.current
}

// Set replaces the value and notifies every subscriber.
func (v *Value[T]) Set(val T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.current = val
	for sub, fn := range v.subs {
		fn := fn
		sub.Deliver(func() { fn(val) })
	}
}

// Subscribe registers onNext and delivers the current value to it.
func (v *Value[T]) Subscribe(onNext func(T)) *Subscription {
	var sub *Subscription
	sub = NewSubscription(v.queue, func() {
		v.mu.Lock()
		delete(v.subs, sub)
		v.mu.Unlock()
	})

	v.mu.Lock()
	defer v.mu.Unlock()
	v.subs[sub] = onNext
	current := v.current
	sub.Deliver(func() { onNext(current) })
	return sub
}
