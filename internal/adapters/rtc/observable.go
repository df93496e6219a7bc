package rtc

import "sync"

// Latest holds the most recent value and its listeners. A listener attached
// after a value exists receives that value synchronously on Subscribe.
// A listener never sees an older value after a newer one.
// Listeners must not call Publish.
type Latest[T any] struct {
	mu    sync.Mutex
	val   T
	has   bool
	ver   uint64
	next  int
	subs  map[int]*listener[T]
	order []int
}

// listener serializes deliveries to one fn and drops stale versions.
type listener[T any] struct {
	mu   sync.Mutex
	fn   func(T)
	seen uint64
}

func (s *listener[T]) deliver(v T, ver uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ver <= s.seen {
		return
	}
	s.seen = ver
	s.fn(v)
}

func NewLatest[T any]() *Latest[T] {
	return &Latest[T]{subs: make(map[int]*listener[T])}
}

// Publish stores v and hands it to every listener in subscription order.
func (l *Latest[T]) Publish(v T) {
	l.mu.Lock()
	l.val, l.has = v, true
	l.ver++
	ver := l.ver
	subs := l.snapshotLocked()
	l.mu.Unlock()

	for _, s := range subs {
		s.deliver(v, ver)
	}
}

// Subscribe registers fn and replays the cached value, if any. The returned
// func detaches fn.
func (l *Latest[T]) Subscribe(fn func(T)) (cancel func()) {
	s := &listener[T]{fn: fn}
	l.mu.Lock()
	id := l.next
	l.next++
	l.subs[id] = s
	l.order = append(l.order, id)
	v, has, ver := l.val, l.has, l.ver
	l.mu.Unlock()

	if has {
		s.deliver(v, ver)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.subs, id)
			for i, o := range l.order {
				if o == id {
					l.order = append(l.order[:i], l.order[i+1:]...)
					break
				}
			}
			l.mu.Unlock()
		})
	}
}

func (l *Latest[T]) Get() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.val, l.has
}

// Reset forgets the cached value; listeners stay attached.
func (l *Latest[T]) Reset() {
	l.mu.Lock()
	var zero T
	l.val, l.has = zero, false
	l.mu.Unlock()
}

func (l *Latest[T]) snapshotLocked() []*listener[T] {
	subs := make([]*listener[T], 0, len(l.order))
	for _, id := range l.order {
		subs = append(subs, l.subs[id])
	}
	return subs
}
