package panel

import (
	"testing"

	"github.com/1broseidon/taskpanel/internal/compositor"
	"github.com/1broseidon/taskpanel/internal/compositor/compositortest"
)

var shellAnnouncement = compositor.Announcement{
	Interface: compositor.ShellAnnotationInterface,
	Name:      4,
	Version:   1,
}

// fakeWindow is a Window whose state is set directly by tests.
type fakeWindow struct {
	surface   compositor.Surface
	realized  bool
	visible   bool
	listeners map[int]func(bool)
	next      int
}

func newFakeWindow(surface compositor.Surface, realized, visible bool) *fakeWindow {
	return &fakeWindow{surface: surface, realized: realized, visible: visible, listeners: make(map[int]func(bool))}
}

func (w *fakeWindow) Visible() bool { return w.visible }

func (w *fakeWindow) Surface() (compositor.Surface, bool) {
	return w.surface, w.realized
}

func (w *fakeWindow) OnVisibilityChanged(fn func(bool)) func() {
	k := w.next
	w.next++
	w.listeners[k] = fn
	return func() { delete(w.listeners, k) }
}

func (w *fakeWindow) setVisible(v bool) {
	w.visible = v
	for _, fn := range w.listeners {
		fn(v)
	}
}

func TestBinder_NoCapability(t *testing.T) {
	srv := compositortest.NewServer()
	srv.AddSurface(10, true, true)

	b := NewBinder(nil)
	if !b.SetWindow(newFakeWindow(10, true, true)) {
		t.Fatal("SetWindow() = false, want true for a new window")
	}
	if b.Annotation() != nil {
		t.Fatal("annotation created without shell capability")
	}
	if n := len(srv.Annotations()); n != 0 {
		t.Fatalf("server annotations = %d, want 0", n)
	}
}

func TestBinder_IgnoresOtherCapabilities(t *testing.T) {
	srv := compositortest.NewServer()
	b := NewBinder(nil)
	b.CapabilityAnnounced(srv, compositor.Announcement{Interface: compositor.WindowManagementInterface, Name: 1, Version: 2})
	if b.Bound() {
		t.Fatal("Bound() = true after window-management announcement")
	}
}

func TestBinder_AnnotatesWhenBothPresent(t *testing.T) {
	tests := []struct {
		name         string
		windowFirst  bool
		wantAnnotate bool
		visible      bool
	}{
		{"capability then visible window", false, true, true},
		{"visible window then capability", true, true, true},
		{"hidden window", false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := compositortest.NewServer()
			srv.AddSurface(10, true, tt.visible)
			b := NewBinder(nil)
			w := newFakeWindow(10, true, tt.visible)

			if tt.windowFirst {
				b.SetWindow(w)
				b.CapabilityAnnounced(srv, shellAnnouncement)
			} else {
				b.CapabilityAnnounced(srv, shellAnnouncement)
				b.SetWindow(w)
			}

			anns := srv.Annotations()
			if got := len(anns) == 1; got != tt.wantAnnotate {
				t.Fatalf("annotations = %d, want annotated=%v", len(anns), tt.wantAnnotate)
			}
			if tt.wantAnnotate && !anns[0].Excluded() {
				t.Fatal("annotation not excluded from enumeration")
			}
		})
	}
}

func TestBinder_UnrealizedSurfaceRetriedOnVisibility(t *testing.T) {
	srv := compositortest.NewServer()
	srv.AddSurface(10, true, true)
	b := NewBinder(nil)
	b.CapabilityAnnounced(srv, shellAnnouncement)

	w := newFakeWindow(10, false, true)
	b.SetWindow(w)
	if b.Annotation() != nil {
		t.Fatal("annotation created for unrealized surface")
	}

	w.realized = true
	w.setVisible(false)
	if b.Annotation() != nil {
		t.Fatal("annotation created on hide")
	}
	w.setVisible(true)
	if b.Annotation() == nil {
		t.Fatal("annotation not created once surface realized and visible")
	}
}

func TestBinder_RecreatesOnVisibilityToggle(t *testing.T) {
	srv := compositortest.NewServer()
	srv.AddSurface(10, true, true)
	b := NewBinder(nil)
	b.CapabilityAnnounced(srv, shellAnnouncement)
	w := newFakeWindow(10, true, true)
	b.SetWindow(w)

	w.setVisible(false)
	w.setVisible(true)

	anns := srv.Annotations()
	if len(anns) != 2 {
		t.Fatalf("annotations = %d, want 2", len(anns))
	}
	if !anns[0].Destroyed() {
		t.Fatal("first annotation not destroyed when recreated")
	}
	if anns[1].Destroyed() || !anns[1].Excluded() {
		t.Fatal("second annotation should be live and excluded")
	}
}

func TestBinder_SetWindowTearsDownPrevious(t *testing.T) {
	srv := compositortest.NewServer()
	srv.AddSurface(10, true, true)
	srv.AddSurface(11, true, true)
	b := NewBinder(nil)
	b.CapabilityAnnounced(srv, shellAnnouncement)

	first := newFakeWindow(10, true, true)
	second := newFakeWindow(11, true, true)
	b.SetWindow(first)
	if b.SetWindow(first) {
		t.Fatal("SetWindow() = true for the same window")
	}
	b.SetWindow(second)

	if len(first.listeners) != 0 {
		t.Fatalf("first window listeners = %d, want 0", len(first.listeners))
	}
	first.setVisible(false)
	first.setVisible(true)

	anns := srv.Annotations()
	if len(anns) != 2 {
		t.Fatalf("annotations = %d, want 2 (one per window)", len(anns))
	}
	if anns[1].Surface() != 11 {
		t.Fatalf("latest annotation surface = %d, want 11", anns[1].Surface())
	}
	if !anns[0].Destroyed() {
		t.Fatal("first window's annotation not destroyed on replacement")
	}

	b.SetWindow(nil)
	if !anns[1].Destroyed() {
		t.Fatal("annotation not destroyed when the window was cleared")
	}
	if b.Annotation() != nil {
		t.Fatal("Annotation() != nil after clearing the window")
	}
}

func TestSurfaceWindow(t *testing.T) {
	srv := compositortest.NewServer()
	srv.AddSurface(20, false, false)

	w := NewSurfaceWindow(srv, 20)
	if _, ok := w.Surface(); ok {
		t.Fatal("Surface() ok for unrealized surface")
	}
	if !srv.Watched(20) {
		t.Fatal("unrealized surface not watched")
	}

	var seen []bool
	cancel := w.OnVisibilityChanged(func(v bool) { seen = append(seen, v) })

	// The watch placed before realization reports the first map.
	srv.SetSurfaceVisible(20, true)
	w.HandleEvent(<-srv.Events())
	if s, ok := w.Surface(); !ok || s != 20 {
		t.Fatalf("Surface() = %d, %v, want 20, true", s, ok)
	}
	if !w.Visible() {
		t.Fatal("Visible() = false after the surface was shown")
	}

	srv.SetSurfaceVisible(20, false)
	w.HandleEvent(<-srv.Events())
	w.HandleEvent(compositor.SurfaceVisibilityChanged{Surface: 99, Visible: true})
	cancel()
	srv.SetSurfaceVisible(20, true)
	w.HandleEvent(<-srv.Events())

	if len(seen) != 2 || !seen[0] || seen[1] {
		t.Fatalf("visibility notifications = %v, want [true false]", seen)
	}

	w.Release()
	if srv.Watched(20) {
		t.Fatal("surface still watched after Release")
	}
}
