package session

import (
	"context"
	"sync"
)

// Loop serializes every interaction with a Session on one goroutine.
// Snapshot deliveries, user controls and background results are posted as
// events and handled in order. Resizes are coalesced: only the latest size
// posted since the last handled resize is applied.
type Loop struct {
	session *Session
	events  chan func()
	resize  chan struct{}
	done    chan struct{}

	mu      sync.Mutex
	size    [2]float64
	hasSize bool
}

// NewLoop adopts s. Background results of s are delivered through the loop
// from now on.
func NewLoop(s *Session, buffer int) *Loop {
	if buffer <= 0 {
		buffer = 64
	}
	l := &Loop{
		session: s,
		events:  make(chan func(), buffer),
		resize:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.post = func(fn func()) { l.Post(fn) }
	return l
}

// Post enqueues fn. It blocks while the queue is full and returns false once
// the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.events <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do enqueues fn with the session.
func (l *Loop) Do(fn func(*Session)) bool {
	return l.Post(func() { fn(l.session) })
}

// PostResize records the latest surface size. It never blocks.
func (l *Loop) PostResize(width, height float64) {
	l.mu.Lock()
	l.size = [2]float64{width, height}
	l.hasSize = true
	l.mu.Unlock()
	select {
	case l.resize <- struct{}{}:
	default:
	}
}

// Run handles events until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.events:
			fn()
		case <-l.resize:
			l.applyResize()
		}
	}
}

func (l *Loop) applyResize() {
	l.mu.Lock()
	size, ok := l.size, l.hasSize
	l.hasSize = false
	l.mu.Unlock()
	if ok {
		l.session.Resize(size[0], size[1])
	}
}
