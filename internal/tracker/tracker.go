// Package tracker derives the panel's externally visible window state from the registry.
//
// Active-window notifications are debounced: a burst collapses into one re-read of the
// compositor's active window, issued one interval after the last notification. Closeable
// and unmapped notifications for the adopted window apply immediately, since the handle may
// be gone by the time a deferred update would run. Aggregate visibility changes settle on
// their own debounce, so they never postpone an active-window update.
package tracker

import (
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/1broseidon/taskpanel/internal/compositor"
	"github.com/1broseidon/taskpanel/internal/eventloop"
	"github.com/1broseidon/taskpanel/internal/registry"
)

// DefaultDebounceInterval is the delay between the last active-window notification and
// the state update.
const DefaultDebounceInterval = 250 * time.Millisecond

// ErrNoActiveWindow is returned by CloseActiveWindow when nothing is active.
var ErrNoActiveWindow = errors.New("no active window")

// Property names an observable value.
type Property int

const (
	ShowingDesktop Property = iota
	AllMinimized
	HasCloseableActiveWindow
	ActiveWindowDesktopName
)

func (p Property) String() string {
	switch p {
	case ShowingDesktop:
		return "showingDesktop"
	case AllMinimized:
		return "allMinimized"
	case HasCloseableActiveWindow:
		return "hasCloseableActiveWindow"
	case ActiveWindowDesktopName:
		return "activeWindowDesktopName"
	default:
		return "unknown"
	}
}

// State is a snapshot of the observable values.
type State struct {
	ActiveWindowAppID        string `json:"active_window_app_id"`
	AllMinimized             bool   `json:"all_minimized"`
	HasCloseableActiveWindow bool   `json:"has_closeable_active_window"`
	ShowingDesktop           bool   `json:"showing_desktop"`
}

// DefaultState is the state before any window-management information arrives.
func DefaultState() State {
	return State{AllMinimized: true}
}

// Options configures a Tracker.
type Options struct {
	Clock    eventloop.Clock
	Interval time.Duration
	// Post hands timer callbacks back to the event loop.
	Post   func(func())
	Logger *slog.Logger
}

// Tracker is the active-window state machine. All methods run on the event loop.
type Tracker struct {
	reg         *registry.Registry
	wm          compositor.WindowManagement
	debounce    *eventloop.Debouncer
	visibility  *eventloop.Debouncer
	unsubscribe func()

	active    registry.Ref
	hasActive bool
	unwatch   func()

	showingDesktop bool
	allMinimized   bool
	hasCloseable   bool
	desktopName    string

	observers map[int]func(Property)
	nextKey   int
	closed    bool

	logger *slog.Logger
}

// New creates a tracker reading from reg.
func New(reg *registry.Registry, opts Options) *Tracker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultDebounceInterval
	}
	if opts.Post == nil {
		opts.Post = func(fn func()) { fn() }
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	t := &Tracker{
		reg:          reg,
		allMinimized: true,
		observers:    make(map[int]func(Property)),
		logger:       opts.Logger,
	}
	t.debounce = eventloop.NewDebouncer(opts.Clock, opts.Interval, opts.Post, t.update)
	t.visibility = eventloop.NewDebouncer(opts.Clock, opts.Interval, opts.Post, t.updateVisibility)
	t.unsubscribe = reg.Subscribe(registry.Listener{
		WindowSetChanged:      t.scheduleUpdate,
		VisibilityChanged:     func(bool) { t.scheduleVisibility() },
		ShowingDesktopChanged: t.setShowingDesktop,
	})
	return t
}

// Attach injects the window-management capability and schedules the first update.
func (t *Tracker) Attach(wm compositor.WindowManagement) {
	if t.closed || wm == nil || t.wm != nil {
		return
	}
	t.wm = wm
	t.debounce.Trigger()
}

// SetInterval changes the debounce interval for later notifications.
func (t *Tracker) SetInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultDebounceInterval
	}
	t.debounce.SetDelay(d)
	t.visibility.SetDelay(d)
}

// Subscribe registers fn for property change notifications.
func (t *Tracker) Subscribe(fn func(Property)) (cancel func()) {
	key := t.nextKey
	t.nextKey++
	t.observers[key] = fn
	return func() { delete(t.observers, key) }
}

// State returns the current observable values.
func (t *Tracker) State() State {
	return State{
		ActiveWindowAppID:        t.desktopName,
		AllMinimized:             t.allMinimized,
		HasCloseableActiveWindow: t.HasCloseableActiveWindow(),
		ShowingDesktop:           t.showingDesktop,
	}
}

// ShowingDesktop returns the last compositor-confirmed showing-desktop state.
func (t *Tracker) ShowingDesktop() bool { return t.showingDesktop }

// AllMinimized reports whether no window is plainly visible.
func (t *Tracker) AllMinimized() bool { return t.allMinimized }

// ActiveWindowDesktopName returns the application id of the active window.
func (t *Tracker) ActiveWindowDesktopName() string { return t.desktopName }

// HasCloseableActiveWindow reports whether an active window exists and can be closed.
func (t *Tracker) HasCloseableActiveWindow() bool {
	w, ok := t.ActiveWindow()
	return ok && w.Closeable
}

// ActiveWindow resolves the adopted window, if it is still alive.
func (t *Tracker) ActiveWindow() (registry.Window, bool) {
	if !t.hasActive {
		return registry.Window{}, false
	}
	return t.reg.Lookup(t.active)
}

// SetActiveWindowDesktopName sets the application id, notifying only on change.
func (t *Tracker) SetActiveWindowDesktopName(name string) {
	if name == t.desktopName {
		return
	}
	t.desktopName = name
	t.emit(ActiveWindowDesktopName)
}

// RequestShowingDesktop asks the compositor to enter or leave showing-desktop mode. The
// observable value only changes once the compositor confirms.
func (t *Tracker) RequestShowingDesktop(showing bool) error {
	if t.closed || t.wm == nil {
		return nil
	}
	return t.wm.SetShowingDesktop(showing)
}

// CloseActiveWindow asks the compositor to close the active window.
func (t *Tracker) CloseActiveWindow() error {
	if t.closed || t.wm == nil {
		return ErrNoActiveWindow
	}
	w, ok := t.ActiveWindow()
	if !ok {
		return ErrNoActiveWindow
	}
	return t.wm.RequestClose(w.ID)
}

// PendingUpdate reports whether a debounced update is scheduled.
func (t *Tracker) PendingUpdate() bool {
	st, _ := t.debounce.State()
	return st == eventloop.DebouncePending
}

// Close drops every subscription and cancels the pending update.
func (t *Tracker) Close() {
	if t.closed {
		return
	}
	t.closed = true
	t.debounce.Stop()
	t.visibility.Stop()
	t.dropActive()
	if t.unsubscribe != nil {
		t.unsubscribe()
		t.unsubscribe = nil
	}
}

func (t *Tracker) scheduleUpdate() {
	if t.closed || t.wm == nil {
		return
	}
	t.debounce.Trigger()
}

func (t *Tracker) scheduleVisibility() {
	if t.closed || t.wm == nil {
		return
	}
	t.visibility.Trigger()
}

func (t *Tracker) updateVisibility() {
	if t.closed || t.wm == nil {
		return
	}
	t.setAllMinimized(t.reg.AllMinimized())
}

// update runs when the debounce interval elapses.
func (t *Tracker) update() {
	if t.closed || t.wm == nil {
		return
	}

	var next registry.Ref
	hasNext := false
	if id, ok := t.wm.ActiveWindow(); ok {
		next, hasNext = t.reg.Ref(id)
	}

	if hasNext != t.hasActive || next != t.active {
		t.adopt(next, hasNext)
	} else if !t.hasActive {
		// The previous window was forgotten on unmap and nothing replaced it.
		t.SetActiveWindowDesktopName("")
	}

	t.setAllMinimized(t.reg.AllMinimized())
}

func (t *Tracker) adopt(ref registry.Ref, ok bool) {
	t.dropActive()

	if ok {
		cancel, live := t.reg.Watch(ref, registry.WindowListener{
			CloseableChanged: t.refreshCloseable,
			Unmapped:         t.forgetActiveWindow,
		})
		if live {
			t.active = ref
			t.hasActive = true
			t.unwatch = cancel
		}
	}

	name := ""
	if w, live := t.ActiveWindow(); live {
		name = w.AppID
		t.logger.Debug("active window changed", "window_id", w.ID, "app_id", w.AppID)
	} else {
		t.logger.Debug("no active window")
	}
	t.SetActiveWindowDesktopName(name)
	t.refreshCloseable()
}

func (t *Tracker) forgetActiveWindow() {
	if !t.hasActive {
		return
	}
	t.logger.Debug("active window unmapped", "window_id", t.active.ID)
	t.dropActive()
	t.refreshCloseable()
}

func (t *Tracker) dropActive() {
	if t.unwatch != nil {
		t.unwatch()
		t.unwatch = nil
	}
	t.active = registry.Ref{}
	t.hasActive = false
}

func (t *Tracker) refreshCloseable() {
	v := t.HasCloseableActiveWindow()
	if v == t.hasCloseable {
		return
	}
	t.hasCloseable = v
	t.emit(HasCloseableActiveWindow)
}

func (t *Tracker) setAllMinimized(v bool) {
	if v == t.allMinimized {
		return
	}
	t.allMinimized = v
	t.emit(AllMinimized)
}

func (t *Tracker) setShowingDesktop(v bool) {
	if t.closed || v == t.showingDesktop {
		return
	}
	t.showingDesktop = v
	t.emit(ShowingDesktop)
}

func (t *Tracker) emit(p Property) {
	keys := make([]int, 0, len(t.observers))
	for k := range t.observers {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		if fn, ok := t.observers[k]; ok {
			fn(p)
		}
	}
}
