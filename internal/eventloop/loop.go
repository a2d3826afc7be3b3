// Package eventloop runs every state mutation of the panel on one goroutine.
//
// Producers on other goroutines (the X11 reader, the IPC server, hotkeys, timers) hand
// work to the loop with Post or Call; handlers running on the loop never block.
package eventloop

import (
	"context"
	"errors"
	"sync"

	"github.com/1broseidon/taskpanel/internal/compositor"
)

// ErrLoopStopped is returned by Call once the loop has exited.
var ErrLoopStopped = errors.New("event loop stopped")

// Loop is a single-goroutine task queue with an optional compositor event source.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	events  <-chan compositor.Event
	handle  func(compositor.Event)
	stopped chan struct{}
	once    sync.Once
}

// New creates an idle loop.
func New() *Loop {
	return &Loop{
		wake:    make(chan struct{}, 1),
		stopped: make(chan struct{}),
	}
}

// Post queues fn to run on the loop. It never blocks and may be called from any goroutine,
// including the loop itself.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Call runs fn on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		fn()
		close(done)
	})

	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Watch makes the loop deliver events from ch to handle, in channel order. It must be
// called before Run, or from the loop itself.
func (l *Loop) Watch(ch <-chan compositor.Event, handle func(compositor.Event)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = ch
	l.handle = handle
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run processes tasks and events until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.stopped) })

	for {
		l.drain()

		l.mu.Lock()
		events := l.events
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		case ev, ok := <-events:
			if !ok {
				l.mu.Lock()
				if l.events == events {
					l.events = nil
				}
				l.mu.Unlock()
				continue
			}
			l.dispatch(ev)
		}
	}
}

// Flush runs queued tasks and buffered events on the calling goroutine until none are
// left. It must not be used while Run is active.
func (l *Loop) Flush() int {
	n := 0
	for {
		n += l.drain()

		l.mu.Lock()
		events := l.events
		l.mu.Unlock()
		if events == nil {
			return n
		}

		select {
		case ev, ok := <-events:
			if !ok {
				l.mu.Lock()
				l.events = nil
				l.mu.Unlock()
				continue
			}
			l.dispatch(ev)
			n++
		default:
			l.mu.Lock()
			empty := len(l.queue) == 0
			l.mu.Unlock()
			if empty {
				return n
			}
		}
	}
}

func (l *Loop) drain() int {
	n := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return n
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		fn()
		n++
	}
}

func (l *Loop) dispatch(ev compositor.Event) {
	l.mu.Lock()
	handle := l.handle
	l.mu.Unlock()
	if handle != nil {
		handle(ev)
	}
}
