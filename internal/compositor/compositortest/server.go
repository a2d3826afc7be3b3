// Package compositortest provides an in-memory compositor for tests.
package compositortest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/1broseidon/taskpanel/internal/compositor"
)

// Server is a fake compositor. It implements compositor.Conn for a single client and lets
// tests drive window lifecycle from the compositor side. Notifications are queued on the
// Events channel in the order the mutators are called.
type Server struct {
	mu sync.Mutex

	announcements []compositor.Announcement
	windows       map[compositor.WindowID]compositor.WindowInfo
	active        compositor.WindowID
	hasActive     bool
	showing       bool
	surfaces      map[compositor.Surface]*surfaceState
	events        chan compositor.Event
	closed        bool

	// AutoConfirmShowingDesktop makes SetShowingDesktop requests take effect immediately.
	AutoConfirmShowingDesktop bool
	// DiscoverErr is returned by Discover when set.
	DiscoverErr error

	discoverCalls   int
	activeReads     int
	showingRequests []bool
	closeRequests   []compositor.WindowID
	annotations     []*Annotation
}

type surfaceState struct {
	realized bool
	visible  bool
	watched  bool
}

var _ compositor.Conn = (*Server)(nil)

// NewServer creates an empty fake compositor.
func NewServer() *Server {
	return &Server{
		windows:  make(map[compositor.WindowID]compositor.WindowInfo),
		surfaces: make(map[compositor.Surface]*surfaceState),
		events:   make(chan compositor.Event, 1024),
	}
}

// Announce adds a capability returned by the next discovery.
func (s *Server) Announce(iface string, name, version uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.announcements = append(s.announcements, compositor.Announcement{
		Interface: iface,
		Name:      name,
		Version:   version,
	})
}

// AddWindow maps a window.
func (s *Server) AddWindow(w compositor.WindowInfo) {
	s.mu.Lock()
	s.windows[w.ID] = w
	s.mu.Unlock()
	s.push(compositor.WindowMapped{Window: w})
}

// UpdateWindow replaces a window's flags.
func (s *Server) UpdateWindow(w compositor.WindowInfo) {
	s.mu.Lock()
	if _, ok := s.windows[w.ID]; !ok {
		s.mu.Unlock()
		return
	}
	s.windows[w.ID] = w
	s.mu.Unlock()
	s.push(compositor.WindowChanged{Window: w})
}

// SetCloseable flips a window's closeable flag.
func (s *Server) SetCloseable(id compositor.WindowID, closeable bool) {
	s.mu.Lock()
	w, ok := s.windows[id]
	s.mu.Unlock()
	if !ok {
		return
	}
	w.Closeable = closeable
	s.UpdateWindow(w)
}

// RemoveWindow unmaps a window. If it was active the active pointer is cleared and an
// active-window notification follows the unmap.
func (s *Server) RemoveWindow(id compositor.WindowID) {
	s.mu.Lock()
	if _, ok := s.windows[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.windows, id)
	wasActive := s.hasActive && s.active == id
	if wasActive {
		s.hasActive = false
		s.active = 0
	}
	s.mu.Unlock()

	s.push(compositor.WindowUnmapped{ID: id})
	if wasActive {
		s.push(compositor.ActiveWindowChanged{})
	}
}

// Activate makes id the active window.
func (s *Server) Activate(id compositor.WindowID) {
	s.mu.Lock()
	s.active = id
	s.hasActive = true
	s.mu.Unlock()
	s.push(compositor.ActiveWindowChanged{})
}

// Deactivate clears the active window.
func (s *Server) Deactivate() {
	s.mu.Lock()
	s.active = 0
	s.hasActive = false
	s.mu.Unlock()
	s.push(compositor.ActiveWindowChanged{})
}

// SetActiveSilently moves the active pointer without notifying.
func (s *Server) SetActiveSilently(id compositor.WindowID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = id
	s.hasActive = true
}

// ConfirmShowingDesktop applies a showing-desktop state and notifies.
func (s *Server) ConfirmShowingDesktop(showing bool) {
	s.mu.Lock()
	s.showing = showing
	s.mu.Unlock()
	s.push(compositor.ShowingDesktopChanged{Showing: showing})
}

// AddSurface registers a local surface. A watch placed before the surface existed is kept.
func (s *Server) AddSurface(surface compositor.Surface, realized, visible bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.surfaces[surface]
	if !ok {
		st = &surfaceState{}
		s.surfaces[surface] = st
	}
	st.realized = realized
	st.visible = visible
}

// SetSurfaceVisible shows or hides a surface, notifying if it is watched.
func (s *Server) SetSurfaceVisible(surface compositor.Surface, visible bool) {
	s.mu.Lock()
	st, ok := s.surfaces[surface]
	if !ok {
		s.mu.Unlock()
		return
	}
	st.realized = true
	st.visible = visible
	watched := st.watched
	s.mu.Unlock()
	if watched {
		s.push(compositor.SurfaceVisibilityChanged{Surface: surface, Visible: visible})
	}
}

// Watched reports whether the client watches surface.
func (s *Server) Watched(surface compositor.Surface) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.surfaces[surface]
	return ok && st.watched
}

// DiscoverCalls returns how many discovery round trips were made.
func (s *Server) DiscoverCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.discoverCalls
}

// ActiveReads returns how many times the client read the active window pointer.
func (s *Server) ActiveReads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeReads
}

// ShowingRequests returns the showing-desktop requests received.
func (s *Server) ShowingRequests() []bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]bool(nil), s.showingRequests...)
}

// CloseRequests returns the windows the client asked to close.
func (s *Server) CloseRequests() []compositor.WindowID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]compositor.WindowID(nil), s.closeRequests...)
}

// Annotations returns every annotation created so far.
func (s *Server) Annotations() []*Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Annotation(nil), s.annotations...)
}

// Closed reports whether the client closed the connection.
func (s *Server) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) push(ev compositor.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

// Discover implements compositor.Conn.
func (s *Server) Discover(ctx context.Context) ([]compositor.Announcement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.discoverCalls++
	if s.DiscoverErr != nil {
		return nil, s.DiscoverErr
	}
	return append([]compositor.Announcement(nil), s.announcements...), nil
}

// Events implements compositor.Conn.
func (s *Server) Events() <-chan compositor.Event {
	return s.events
}

// WatchSurface implements compositor.Conn. The watch is recorded even for a surface that
// is not realized yet.
func (s *Server) WatchSurface(surface compositor.Surface) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.surfaces[surface]
	if !ok {
		st = &surfaceState{}
		s.surfaces[surface] = st
	}
	st.watched = true
	if !st.realized {
		return false, fmt.Errorf("surface %d not realized", surface)
	}
	return st.visible, nil
}

// UnwatchSurface implements compositor.Conn.
func (s *Server) UnwatchSurface(surface compositor.Surface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.surfaces[surface]; ok {
		st.watched = false
	}
}

// Close implements compositor.Conn.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// BindWindowManagement implements compositor.Binder.
func (s *Server) BindWindowManagement(a compositor.Announcement) (compositor.WindowManagement, error) {
	if a.Interface != compositor.WindowManagementInterface {
		return nil, compositor.ErrNotSupported
	}
	return &windowManagement{s: s}, nil
}

// BindShellAnnotation implements compositor.Binder.
func (s *Server) BindShellAnnotation(a compositor.Announcement) (compositor.ShellAnnotation, error) {
	if a.Interface != compositor.ShellAnnotationInterface {
		return nil, compositor.ErrNotSupported
	}
	return &shell{s: s}, nil
}

type windowManagement struct {
	s *Server
}

func (wm *windowManagement) ActiveWindow() (compositor.WindowID, bool) {
	s := wm.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeReads++
	if !s.hasActive {
		return 0, false
	}
	return s.active, true
}

func (wm *windowManagement) Windows() []compositor.WindowInfo {
	s := wm.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]compositor.WindowInfo, 0, len(s.windows))
	for _, w := range s.windows {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (wm *windowManagement) SetShowingDesktop(showing bool) error {
	s := wm.s
	s.mu.Lock()
	s.showingRequests = append(s.showingRequests, showing)
	confirm := s.AutoConfirmShowingDesktop
	s.mu.Unlock()
	if confirm {
		s.ConfirmShowingDesktop(showing)
	}
	return nil
}

func (wm *windowManagement) RequestClose(id compositor.WindowID) error {
	s := wm.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.windows[id]; !ok {
		return fmt.Errorf("window %d not mapped", id)
	}
	s.closeRequests = append(s.closeRequests, id)
	return nil
}

type shell struct {
	s *Server
}

func (sh *shell) CreateSurfaceAnnotation(surface compositor.Surface) (compositor.SurfaceAnnotation, error) {
	s := sh.s
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.surfaces[surface]
	if !ok || !st.realized {
		return nil, fmt.Errorf("surface %d not realized", surface)
	}
	a := &Annotation{surface: surface}
	s.annotations = append(s.annotations, a)
	return a, nil
}

// Annotation records what the client did with a surface annotation.
type Annotation struct {
	mu        sync.Mutex
	surface   compositor.Surface
	excluded  bool
	destroyed bool
}

func (a *Annotation) Surface() compositor.Surface { return a.surface }

func (a *Annotation) SetExcludedFromEnumeration(excluded bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.excluded = excluded
	return nil
}

func (a *Annotation) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.destroyed = true
}

// Excluded reports the exclusion flag last set by the client.
func (a *Annotation) Excluded() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.excluded
}

// Destroyed reports whether the client destroyed the annotation.
func (a *Annotation) Destroyed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.destroyed
}
