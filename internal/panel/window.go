package panel

import (
	"sort"

	"github.com/1broseidon/taskpanel/internal/compositor"
)

// SurfaceWatcher is the part of the compositor connection that reports surface visibility.
type SurfaceWatcher interface {
	WatchSurface(s compositor.Surface) (visible bool, err error)
	UnwatchSurface(s compositor.Surface)
}

// SurfaceWindow is a Window backed by a compositor surface. Its visibility is fed by
// SurfaceVisibilityChanged notifications passed to HandleEvent.
type SurfaceWindow struct {
	watcher   SurfaceWatcher
	surface   compositor.Surface
	watched   bool
	realized  bool
	visible   bool
	listeners map[int]func(bool)
	nextKey   int
}

var _ Window = (*SurfaceWindow)(nil)

// NewSurfaceWindow starts watching surface. A surface that is not realized yet stays
// watched; it becomes realized on its first visibility notification, or when Surface is
// asked for and the watch now succeeds.
func NewSurfaceWindow(watcher SurfaceWatcher, surface compositor.Surface) *SurfaceWindow {
	w := &SurfaceWindow{
		watcher:   watcher,
		surface:   surface,
		listeners: make(map[int]func(bool)),
	}
	w.watch()
	return w
}

func (w *SurfaceWindow) watch() {
	if w.realized || w.watcher == nil || w.surface == 0 {
		return
	}
	visible, err := w.watcher.WatchSurface(w.surface)
	w.watched = true
	if err != nil {
		return
	}
	w.realized = true
	w.visible = visible
}

// ID returns the surface this window wraps, realized or not.
func (w *SurfaceWindow) ID() compositor.Surface {
	return w.surface
}

func (w *SurfaceWindow) Visible() bool {
	return w.visible
}

func (w *SurfaceWindow) Surface() (compositor.Surface, bool) {
	w.watch()
	if !w.realized {
		return 0, false
	}
	return w.surface, true
}

func (w *SurfaceWindow) OnVisibilityChanged(fn func(bool)) func() {
	key := w.nextKey
	w.nextKey++
	w.listeners[key] = fn
	return func() { delete(w.listeners, key) }
}

// HandleEvent applies visibility notifications addressed to this surface.
func (w *SurfaceWindow) HandleEvent(ev compositor.Event) {
	e, ok := ev.(compositor.SurfaceVisibilityChanged)
	if !ok || e.Surface != w.surface || e.Visible == w.visible {
		return
	}
	w.realized = true
	w.visible = e.Visible

	keys := make([]int, 0, len(w.listeners))
	for k := range w.listeners {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		if fn, ok := w.listeners[k]; ok {
			fn(e.Visible)
		}
	}
}

// Release stops watching the surface.
func (w *SurfaceWindow) Release() {
	if w.watched && w.watcher != nil {
		w.watcher.UnwatchSurface(w.surface)
	}
	w.watched = false
	w.realized = false
	w.listeners = make(map[int]func(bool))
}
