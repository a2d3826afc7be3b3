// Package registry mirrors the compositor's window set.
//
// The compositor owns window lifetime. Consumers hold a Ref, a weak back-reference made of
// the window id plus the generation it was mapped under, and must resolve it through Lookup
// before every use. A Ref stops resolving the moment the window is unmapped.
package registry

import (
	"log/slog"
	"sort"

	"github.com/1broseidon/taskpanel/internal/compositor"
)

// Window is the registry's view of a remote window.
type Window struct {
	ID          compositor.WindowID
	AppID       string
	Title       string
	Minimized   bool
	Fullscreen  bool
	SkipTaskbar bool
	Closeable   bool
}

// PlainlyVisible reports whether the window counts as shown on screen.
func (w Window) PlainlyVisible() bool {
	return !w.Minimized && !w.SkipTaskbar && !w.Fullscreen
}

func windowFromInfo(info compositor.WindowInfo) Window {
	return Window{
		ID:          info.ID,
		AppID:       info.AppID,
		Title:       info.Title,
		Minimized:   info.Minimized,
		Fullscreen:  info.Fullscreen,
		SkipTaskbar: info.SkipTaskbar,
		Closeable:   info.Closeable,
	}
}

// Ref is a weak reference to a window.
type Ref struct {
	ID  compositor.WindowID
	gen uint64
}

// Listener receives set-level notifications. Nil fields are skipped.
type Listener struct {
	// WindowSetChanged fires when the compositor reports an active-window change.
	WindowSetChanged func()
	// VisibilityChanged fires when AllMinimized flips.
	VisibilityChanged func(allMinimized bool)
	// ShowingDesktopChanged fires on compositor confirmation.
	ShowingDesktopChanged func(showing bool)
}

// WindowListener receives lifecycle notifications for one window. Nil fields are skipped.
type WindowListener struct {
	CloseableChanged func()
	Unmapped         func()
}

type entry struct {
	win      Window
	gen      uint64
	watchers map[int]WindowListener
}

// Registry is the live window set. It is not safe for concurrent use; all calls happen on
// the event loop.
type Registry struct {
	wm      compositor.WindowManagement
	windows map[compositor.WindowID]*entry
	nextGen uint64
	nextKey int

	listeners    map[int]Listener
	allMinimized bool

	logger *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		windows:      make(map[compositor.WindowID]*entry),
		listeners:    make(map[int]Listener),
		allMinimized: true,
		logger:       logger,
	}
}

// Attach binds the registry to the window-management capability and loads the current
// window set. Notifications received before Attach are ignored.
func (r *Registry) Attach(wm compositor.WindowManagement) {
	if wm == nil || r.wm != nil {
		return
	}
	r.wm = wm
	for _, info := range wm.Windows() {
		r.insert(info)
	}
	r.logger.Debug("window registry attached", "windows", len(r.windows))
	r.recomputeVisibility()
}

// Attached reports whether window management is bound.
func (r *Registry) Attached() bool {
	return r.wm != nil
}

// WindowManagement returns the bound capability, or nil.
func (r *Registry) WindowManagement() compositor.WindowManagement {
	return r.wm
}

// Subscribe registers l and returns a function that removes it.
func (r *Registry) Subscribe(l Listener) (cancel func()) {
	key := r.nextKey
	r.nextKey++
	r.listeners[key] = l
	return func() { delete(r.listeners, key) }
}

// HandleEvent applies a compositor notification.
func (r *Registry) HandleEvent(ev compositor.Event) {
	if r.wm == nil {
		return
	}

	switch e := ev.(type) {
	case compositor.WindowMapped:
		r.insert(e.Window)
		r.recomputeVisibility()
	case compositor.WindowChanged:
		r.update(e.Window)
		r.recomputeVisibility()
	case compositor.WindowUnmapped:
		r.remove(e.ID)
		r.recomputeVisibility()
	case compositor.ActiveWindowChanged:
		for _, l := range r.snapshotListeners() {
			if l.WindowSetChanged != nil {
				l.WindowSetChanged()
			}
		}
	case compositor.ShowingDesktopChanged:
		for _, l := range r.snapshotListeners() {
			if l.ShowingDesktopChanged != nil {
				l.ShowingDesktopChanged(e.Showing)
			}
		}
	}
}

// Ref returns a weak reference to the live window id.
func (r *Registry) Ref(id compositor.WindowID) (Ref, bool) {
	e, ok := r.windows[id]
	if !ok {
		return Ref{}, false
	}
	return Ref{ID: id, gen: e.gen}, true
}

// Lookup resolves ref. It fails once the referenced window has been unmapped.
func (r *Registry) Lookup(ref Ref) (Window, bool) {
	e, ok := r.windows[ref.ID]
	if !ok || e.gen != ref.gen {
		return Window{}, false
	}
	return e.win, true
}

// Watch attaches per-window listeners to a live ref.
func (r *Registry) Watch(ref Ref, l WindowListener) (cancel func(), ok bool) {
	e, ok := r.windows[ref.ID]
	if !ok || e.gen != ref.gen {
		return func() {}, false
	}
	key := r.nextKey
	r.nextKey++
	e.watchers[key] = l
	return func() { delete(e.watchers, key) }, true
}

// Watchers returns the number of listeners attached to ref.
func (r *Registry) Watchers(ref Ref) int {
	e, ok := r.windows[ref.ID]
	if !ok || e.gen != ref.gen {
		return 0
	}
	return len(e.watchers)
}

// Windows returns the current set ordered by id.
func (r *Registry) Windows() []Window {
	out := make([]Window, 0, len(r.windows))
	for _, e := range r.windows {
		out = append(out, e.win)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of live windows.
func (r *Registry) Len() int {
	return len(r.windows)
}

// AllMinimized reports whether no window in the set is plainly visible. An empty set
// counts as all minimized.
func (r *Registry) AllMinimized() bool {
	for _, e := range r.windows {
		if e.win.PlainlyVisible() {
			return false
		}
	}
	return true
}

func (r *Registry) insert(info compositor.WindowInfo) {
	if e, ok := r.windows[info.ID]; ok {
		e.win = windowFromInfo(info)
		return
	}
	r.nextGen++
	r.windows[info.ID] = &entry{
		win:      windowFromInfo(info),
		gen:      r.nextGen,
		watchers: make(map[int]WindowListener),
	}
	r.logger.Debug("window mapped", "window_id", info.ID, "app_id", info.AppID)
}

func (r *Registry) update(info compositor.WindowInfo) {
	e, ok := r.windows[info.ID]
	if !ok {
		return
	}
	closeableChanged := e.win.Closeable != info.Closeable
	e.win = windowFromInfo(info)
	if !closeableChanged {
		return
	}
	for _, w := range snapshotWatchers(e) {
		if w.CloseableChanged != nil {
			w.CloseableChanged()
		}
	}
}

func (r *Registry) remove(id compositor.WindowID) {
	e, ok := r.windows[id]
	if !ok {
		return
	}
	// Drop the entry first so that refs no longer resolve inside the callbacks.
	delete(r.windows, id)
	r.logger.Debug("window unmapped", "window_id", id)
	for _, w := range snapshotWatchers(e) {
		if w.Unmapped != nil {
			w.Unmapped()
		}
	}
	e.watchers = nil
}

func (r *Registry) recomputeVisibility() {
	all := r.AllMinimized()
	if all == r.allMinimized {
		return
	}
	r.allMinimized = all
	for _, l := range r.snapshotListeners() {
		if l.VisibilityChanged != nil {
			l.VisibilityChanged(all)
		}
	}
}

func (r *Registry) snapshotListeners() []Listener {
	keys := make([]int, 0, len(r.listeners))
	for k := range r.listeners {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]Listener, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.listeners[k])
	}
	return out
}

func snapshotWatchers(e *entry) []WindowListener {
	keys := make([]int, 0, len(e.watchers))
	for k := range e.watchers {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	out := make([]WindowListener, 0, len(keys))
	for _, k := range keys {
		out = append(out, e.watchers[k])
	}
	return out
}
