package taskpanel

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/1broseidon/taskpanel/internal/compositor"
	"github.com/1broseidon/taskpanel/internal/compositor/compositortest"
	"github.com/1broseidon/taskpanel/internal/eventloop"
	"github.com/1broseidon/taskpanel/internal/tracker"
)

type harness struct {
	srv     *compositortest.Server
	clock   *eventloop.ManualClock
	loop    *eventloop.Loop
	c       *Containment
	changes map[Property]int
}

func newHarness(t *testing.T, srv *compositortest.Server) *harness {
	t.Helper()
	h := &harness{
		srv:     srv,
		clock:   eventloop.NewManualClock(time.Unix(1700000000, 0)),
		loop:    eventloop.New(),
		changes: make(map[Property]int),
	}
	dial := func(context.Context) (compositor.Conn, error) {
		if srv == nil {
			return nil, nil
		}
		return srv, nil
	}
	h.c = New(h.loop, Options{Dial: dial, Clock: h.clock})
	h.c.Subscribe(func(p Property) { h.changes[p]++ })
	if err := h.c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	return h
}

// settle delivers queued notifications and lets the debounce interval elapse.
func (h *harness) settle() {
	h.loop.Flush()
	h.clock.Advance(tracker.DefaultDebounceInterval)
	h.loop.Flush()
}

func fullServer() *compositortest.Server {
	srv := compositortest.NewServer()
	srv.Announce(compositor.WindowManagementInterface, 1, 2)
	srv.Announce(compositor.ShellAnnotationInterface, 2, 1)
	srv.AddWindow(compositor.WindowInfo{ID: 1, AppID: "org.kde.dolphin", Minimized: true, Closeable: true})
	srv.AddWindow(compositor.WindowInfo{ID: 2, AppID: "org.kde.kate", Minimized: true, Closeable: true})
	srv.AddWindow(compositor.WindowInfo{ID: 3, AppID: "org.kde.konsole", Closeable: true})
	srv.Activate(3)
	srv.AddSurface(100, true, true)
	return srv
}

func TestContainment_UnsupportedDisplayKeepsDefaults(t *testing.T) {
	h := newHarness(t, nil)
	h.settle()

	if h.c.Connected() {
		t.Fatal("Connected() = true for unsupported display")
	}
	if !h.c.AllMinimized() || h.c.HasCloseableActiveWindow() || h.c.ShowDesktop() {
		t.Fatalf("state = %+v, want defaults", h.c.Status().State)
	}
	if !h.c.HasConfigurationInterface() {
		t.Fatal("HasConfigurationInterface() = false, want true")
	}
	if err := h.c.SetShowDesktop(true); err != nil {
		t.Fatalf("SetShowDesktop() error: %v", err)
	}
	if err := h.c.CloseActiveWindow(); !errors.Is(err, tracker.ErrNoActiveWindow) {
		t.Fatalf("CloseActiveWindow() error = %v, want ErrNoActiveWindow", err)
	}

	h.c.SetPanel(100)
	if h.c.Panel() != 100 || h.c.Status().PanelExcluded {
		t.Fatalf("Panel() = %d excluded=%v, want 100 and not excluded", h.c.Panel(), h.c.Status().PanelExcluded)
	}
}

func TestContainment_NoWindowManagementCapability(t *testing.T) {
	srv := compositortest.NewServer()
	srv.Announce(compositor.ShellAnnotationInterface, 2, 1)
	srv.AddWindow(compositor.WindowInfo{ID: 1, Closeable: true})
	srv.Activate(1)
	h := newHarness(t, srv)
	h.settle()

	if !h.c.AllMinimized() || h.c.HasCloseableActiveWindow() {
		t.Fatalf("state = %+v, want defaults", h.c.Status().State)
	}
	if err := h.c.SetShowDesktop(true); err != nil {
		t.Fatalf("SetShowDesktop() error: %v", err)
	}
	if got := srv.ShowingRequests(); len(got) != 0 {
		t.Fatalf("ShowingRequests() = %v, want none", got)
	}
	if srv.ActiveReads() != 0 {
		t.Fatalf("ActiveReads() = %d, want 0", srv.ActiveReads())
	}
}

func TestContainment_Lifecycle(t *testing.T) {
	srv := fullServer()
	srv.AutoConfirmShowingDesktop = true
	h := newHarness(t, srv)
	h.settle()

	st := h.c.Status()
	if !st.Connected || len(st.Capabilities) != 2 || st.Windows != 3 {
		t.Fatalf("Status() = %+v", st)
	}
	if h.c.AllMinimized() {
		t.Fatal("AllMinimized() = true with one plain window")
	}
	if got := h.c.ActiveWindowDesktopName(); got != "org.kde.konsole" {
		t.Fatalf("ActiveWindowDesktopName() = %q, want org.kde.konsole", got)
	}
	if !h.c.HasCloseableActiveWindow() {
		t.Fatal("HasCloseableActiveWindow() = false")
	}

	h.c.SetPanel(100)
	anns := srv.Annotations()
	if len(anns) != 1 || !anns[0].Excluded() || anns[0].Surface() != 100 {
		t.Fatalf("annotations after SetPanel = %d", len(anns))
	}
	if h.changes[Panel] != 1 {
		t.Fatalf("panel changes = %d, want 1", h.changes[Panel])
	}
	h.c.SetPanel(100)
	if h.changes[Panel] != 1 {
		t.Fatalf("panel changes = %d after same SetPanel, want 1", h.changes[Panel])
	}

	// Toggling visibility recreates the annotation.
	srv.SetSurfaceVisible(100, false)
	srv.SetSurfaceVisible(100, true)
	h.loop.Flush()
	anns = srv.Annotations()
	if len(anns) != 2 || !anns[0].Destroyed() || !anns[1].Excluded() {
		t.Fatalf("annotations after visibility toggle = %d", len(anns))
	}

	if err := h.c.SetShowDesktop(true); err != nil {
		t.Fatalf("SetShowDesktop() error: %v", err)
	}
	if h.c.ShowDesktop() {
		t.Fatal("ShowDesktop() changed before compositor confirmation was delivered")
	}
	h.loop.Flush()
	if !h.c.ShowDesktop() || h.changes[ShowDesktop] != 1 {
		t.Fatalf("ShowDesktop() = %v changes=%d, want true and 1", h.c.ShowDesktop(), h.changes[ShowDesktop])
	}

	if err := h.c.CloseActiveWindow(); err != nil {
		t.Fatalf("CloseActiveWindow() error: %v", err)
	}
	if got := srv.CloseRequests(); len(got) != 1 || got[0] != 3 {
		t.Fatalf("CloseRequests() = %v, want [3]", got)
	}

	// Scenario A through the whole stack.
	srv.RemoveWindow(3)
	h.loop.Flush()
	if h.c.HasCloseableActiveWindow() {
		t.Fatal("HasCloseableActiveWindow() = true after active window unmapped")
	}
	h.clock.Advance(tracker.DefaultDebounceInterval)
	h.loop.Flush()
	if !h.c.AllMinimized() {
		t.Fatal("AllMinimized() = false after the visible window was unmapped")
	}
	if got := h.c.ActiveWindowDesktopName(); got != "" {
		t.Fatalf("ActiveWindowDesktopName() = %q, want empty", got)
	}

	if err := h.c.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !srv.Closed() {
		t.Fatal("compositor connection not closed")
	}
	if !anns[1].Destroyed() {
		t.Fatal("panel annotation not destroyed on Close")
	}
	if h.clock.Pending() != 0 {
		t.Fatalf("pending timers after Close = %d, want 0", h.clock.Pending())
	}
}

func TestContainment_SetPanelReplacesSurface(t *testing.T) {
	srv := fullServer()
	srv.AddSurface(101, true, true)
	h := newHarness(t, srv)
	h.settle()

	h.c.SetPanel(100)
	h.c.SetPanel(101)
	if srv.Watched(100) {
		t.Fatal("old panel surface still watched")
	}
	if !srv.Watched(101) {
		t.Fatal("new panel surface not watched")
	}
	anns := srv.Annotations()
	if len(anns) != 2 || !anns[0].Destroyed() || anns[1].Surface() != 101 {
		t.Fatalf("annotations = %d", len(anns))
	}

	h.c.SetPanel(0)
	if srv.Watched(101) {
		t.Fatal("panel surface still watched after clearing")
	}
	if !anns[1].Destroyed() {
		t.Fatal("panel annotation not destroyed after clearing")
	}
	if st := h.c.Status(); st.Panel != 0 || st.PanelExcluded {
		t.Fatalf("Status() panel=%d excluded=%v, want 0 and false", st.Panel, st.PanelExcluded)
	}
}

func TestContainment_PanelRealizedLater(t *testing.T) {
	srv := fullServer()
	srv.AddSurface(200, false, false)
	h := newHarness(t, srv)
	h.settle()

	h.c.SetPanel(200)
	if !srv.Watched(200) {
		t.Fatal("unrealized panel surface not watched")
	}
	if got := len(srv.Annotations()); got != 0 {
		t.Fatalf("annotations before the surface is shown = %d, want 0", got)
	}

	srv.SetSurfaceVisible(200, true)
	h.settle()
	anns := srv.Annotations()
	if len(anns) != 1 || anns[0].Surface() != 200 || !anns[0].Excluded() {
		t.Fatalf("annotations after the surface was shown = %d", len(anns))
	}
	if !h.c.Status().PanelExcluded {
		t.Fatal("Status().PanelExcluded = false after the surface was shown")
	}

	h.c.SetPanel(0)
	if srv.Watched(200) {
		t.Fatal("panel surface still watched after clearing")
	}
}

func TestContainment_PanelSurfaceCreatedLater(t *testing.T) {
	srv := fullServer()
	h := newHarness(t, srv)
	h.settle()

	// The surface does not exist yet when the panel is set.
	h.c.SetPanel(300)
	srv.AddSurface(300, false, false)
	srv.SetSurfaceVisible(300, true)
	h.settle()

	anns := srv.Annotations()
	if len(anns) != 1 || anns[0].Surface() != 300 || !anns[0].Excluded() {
		t.Fatalf("annotations = %d, want 1 for surface 300", len(anns))
	}
}

func TestContainment_DebouncedActiveWindowBurst(t *testing.T) {
	srv := fullServer()
	h := newHarness(t, srv)
	h.settle()
	reads := srv.ActiveReads()
	h.changes = make(map[Property]int)

	srv.Activate(1)
	h.loop.Flush()
	h.clock.Advance(50 * time.Millisecond)
	srv.Activate(2)
	h.loop.Flush()
	srv.SetActiveSilently(1)

	h.clock.Advance(tracker.DefaultDebounceInterval - time.Millisecond)
	h.loop.Flush()
	if srv.ActiveReads() != reads {
		t.Fatalf("active window read before the interval elapsed")
	}
	h.clock.Advance(time.Millisecond)
	h.loop.Flush()
	if got := srv.ActiveReads() - reads; got != 1 {
		t.Fatalf("active reads = %d, want 1", got)
	}
	if got := h.c.ActiveWindowDesktopName(); got != "org.kde.dolphin" {
		t.Fatalf("ActiveWindowDesktopName() = %q, want org.kde.dolphin", got)
	}
	if h.changes[ActiveWindowDesktopName] != 1 {
		t.Fatalf("desktop name changes = %d, want 1", h.changes[ActiveWindowDesktopName])
	}
}

func TestContainment_Facade(t *testing.T) {
	srv := fullServer()
	h := newHarness(t, srv)
	h.settle()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.loop.Run(ctx) }()

	st, err := h.c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error: %v", err)
	}
	if st.State.ActiveWindowAppID != "org.kde.konsole" {
		t.Fatalf("Snapshot().State.ActiveWindowAppID = %q", st.State.ActiveWindowAppID)
	}

	want, err := h.c.ToggleShowingDesktop(ctx)
	if err != nil || !want {
		t.Fatalf("ToggleShowingDesktop() = %v, %v, want true, nil", want, err)
	}
	if got := srv.ShowingRequests(); len(got) != 1 || !got[0] {
		t.Fatalf("ShowingRequests() = %v, want [true]", got)
	}
	if err := h.c.SetPanelSurface(ctx, 100); err != nil {
		t.Fatalf("SetPanelSurface() error: %v", err)
	}
	if err := h.c.UpdateDebounceInterval(ctx, time.Second); err != nil {
		t.Fatalf("UpdateDebounceInterval() error: %v", err)
	}
	st, _ = h.c.Snapshot(ctx)
	if st.Panel != 100 || st.DebounceInterval != "1s" {
		t.Fatalf("Snapshot() = %+v", st)
	}

	cancel()
	<-done
	if _, err := h.c.Snapshot(context.Background()); !errors.Is(err, eventloop.ErrLoopStopped) {
		t.Fatalf("Snapshot() after stop error = %v, want ErrLoopStopped", err)
	}
}

func TestContainment_FacadeWithoutConnection(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.loop.Run(ctx)

	if err := h.c.RequestShowingDesktop(ctx, true); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("RequestShowingDesktop() error = %v, want ErrNotConnected", err)
	}
	if err := h.c.CloseActive(ctx); !errors.Is(err, tracker.ErrNoActiveWindow) {
		t.Fatalf("CloseActive() error = %v, want ErrNoActiveWindow", err)
	}
}
