package eventloop

import "time"

// DebounceState is the state of a Debouncer.
type DebounceState int

const (
	// DebounceIdle means no callback is scheduled.
	DebounceIdle DebounceState = iota
	// DebouncePending means the callback will run at the recorded deadline.
	DebouncePending
)

func (s DebounceState) String() string {
	switch s {
	case DebounceIdle:
		return "idle"
	case DebouncePending:
		return "pending"
	default:
		return "unknown"
	}
}

// Debouncer is a single-slot deferred task. Every Trigger cancels the pending run and
// schedules a new one delay later, so a burst collapses into one call issued delay after
// the last trigger.
//
// All methods must be called on the loop goroutine; the timer callback is handed back to
// the loop through post.
type Debouncer struct {
	clock Clock
	delay time.Duration
	post  func(func())
	fn    func()

	state    DebounceState
	deadline time.Time
	timer    Timer
	gen      uint64
}

// NewDebouncer creates an idle debouncer running fn through post.
func NewDebouncer(clock Clock, delay time.Duration, post func(func()), fn func()) *Debouncer {
	if clock == nil {
		clock = RealClock()
	}
	return &Debouncer{
		clock: clock,
		delay: delay,
		post:  post,
		fn:    fn,
	}
}

// Trigger (re)schedules the callback.
func (d *Debouncer) Trigger() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.state = DebouncePending
	d.deadline = d.clock.Now().Add(d.delay)
	d.timer = d.clock.AfterFunc(d.delay, func() {
		d.post(func() { d.fire(gen) })
	})
}

// Stop cancels a pending run.
func (d *Debouncer) Stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.state = DebounceIdle
	d.deadline = time.Time{}
}

// SetDelay changes the delay used by later triggers.
func (d *Debouncer) SetDelay(delay time.Duration) {
	d.delay = delay
}

// Delay returns the configured delay.
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// State returns the current state and, when pending, the deadline.
func (d *Debouncer) State() (DebounceState, time.Time) {
	return d.state, d.deadline
}

func (d *Debouncer) fire(gen uint64) {
	// A timer that was stopped after it had already queued its callback.
	if gen != d.gen || d.state != DebouncePending {
		return
	}
	d.state = DebounceIdle
	d.deadline = time.Time{}
	d.timer = nil
	d.fn()
}
