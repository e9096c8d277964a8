package live

import "sync"

// Subscription is the release handle of a live stream. Releasing it is the
// only way to stop deliveries.
type Subscription struct {
	queue   *Queue
	release func()

	mu     sync.Mutex
	active bool
	err    error
	done   chan struct{}
}

// NewSubscription creates an active subscription whose callbacks run on queue.
// release is invoked once when the subscription ends.
func NewSubscription(queue *Queue, release func()) *Subscription {
	return &Subscription{
		queue:   queue,
		release: release,
		active:  true,
		done:    make(chan struct{}),
	}
}

// Deliver schedules fn on the queue. fn is skipped if the subscription has
// ended by the time it would run.
func (s *Subscription) Deliver(fn func()) {
	s.queue.Post(func() {
		if !s.Active() {
			return
		}
		fn()
	})
}

// Terminate ends the subscription with err, calling onError once on the queue
// before any later delivery is dropped.
func (s *Subscription) Terminate(err error, onError func(error)) {
	s.queue.Post(func() {
		if !s.finish(err) {
			return
		}
		if onError != nil {
			onError(err)
		}
	})
}

// Unsubscribe ends the subscription. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.finish(nil)
}

// Active reports whether the subscription still delivers.
func (s *Subscription) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error, if the stream ended with one.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) finish(err error) bool {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return false
	}
	s.active = false
	s.err = err
	close(s.done)
	s.mu.Unlock()

	if s.release != nil {
		s.release()
	}
	return true
}

// Set groups subscriptions that are released together, such as everything a
// view opened or everything a signed-in session holds.
type Set struct {
	mu   sync.Mutex
	subs []*Subscription
}

// Add tracks sub. A nil sub is ignored.
func (s *Set) Add(sub *Subscription) {
	if sub == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
}

// Len returns the number of tracked subscriptions that are still active.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sub := range s.subs {
		if sub.Active() {
			n++
		}
	}
	return n
}

// Release unsubscribes everything tracked so far. The set stays usable.
func (s *Set) Release() {
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		sub.Unsubscribe()
	}
}
