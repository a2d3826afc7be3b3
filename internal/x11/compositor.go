package x11

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/1broseidon/taskpanel/internal/compositor"
)

const eventBuffer = 256

// Compositor speaks the compositor protocol over EWMH. Discovery reads _NET_SUPPORTED;
// notifications come from PropertyNotify, DestroyNotify and Map/UnmapNotify handlers that
// run on the xevent goroutine and are forwarded through Events. Surfaces watched before
// their window exists are picked up from CreateNotify on the root window.
type Compositor struct {
	conn   *Connection
	logger *slog.Logger

	events   chan compositor.Event
	done     chan struct{}
	mainDone chan struct{}

	mu             sync.Mutex
	supported      map[string]bool
	allowedActions bool
	clients        map[xproto.Window]compositor.WindowInfo
	surfaces       map[xproto.Window]bool
	pending        map[xproto.Window]bool
	attached       map[xproto.Window]bool
	started        bool
	closed         bool
}

var _ compositor.Conn = (*Compositor)(nil)

// NewCompositor wraps an open connection.
func NewCompositor(conn *Connection, logger *slog.Logger) *Compositor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compositor{
		conn:     conn,
		logger:   logger,
		events:   make(chan compositor.Event, eventBuffer),
		done:     make(chan struct{}),
		mainDone: make(chan struct{}),
		clients:  make(map[xproto.Window]compositor.WindowInfo),
		surfaces: make(map[xproto.Window]bool),
		pending:  make(map[xproto.Window]bool),
		attached: make(map[xproto.Window]bool),
	}
}

// Connection returns the underlying X connection, for hotkeys that share its event loop.
func (x *Compositor) Connection() *Connection {
	return x.conn
}

// Discover reads _NET_SUPPORTED, loads the client list and starts the event loop.
func (x *Compositor) Discover(ctx context.Context) ([]compositor.Announcement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	names, err := ewmh.SupportedGet(x.conn.XUtil)
	if err != nil {
		// A window manager without EWMH announces nothing.
		x.logger.Info("window manager does not advertise _NET_SUPPORTED", "error", err)
		names = nil
	}
	supported := make(map[string]bool, len(names))
	for _, n := range names {
		supported[n] = true
	}

	var out []compositor.Announcement
	if supported["_NET_ACTIVE_WINDOW"] && supported["_NET_CLIENT_LIST"] {
		version := uint32(1)
		if supported["_NET_WM_ALLOWED_ACTIONS"] {
			version = 2
		}
		out = append(out, compositor.Announcement{
			Interface: compositor.WindowManagementInterface,
			Name:      1,
			Version:   version,
		})
	}
	if supported["_NET_WM_STATE_SKIP_TASKBAR"] {
		out = append(out, compositor.Announcement{
			Interface: compositor.ShellAnnotationInterface,
			Name:      2,
			Version:   1,
		})
	}

	x.mu.Lock()
	x.supported = supported
	x.allowedActions = supported["_NET_WM_ALLOWED_ACTIONS"]
	start := !x.started
	x.started = true
	x.mu.Unlock()

	if start {
		if err := x.start(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (x *Compositor) start() error {
	xu := x.conn.XUtil
	root := x.conn.Root

	if err := xwindow.New(xu, root).Listen(xproto.EventMaskPropertyChange, xproto.EventMaskSubstructureNotify); err != nil {
		return fmt.Errorf("failed to listen on root window: %w", err)
	}
	xevent.PropertyNotifyFun(func(_ *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
		x.handleRootProperty(ev)
	}).Connect(xu, root)
	xevent.CreateNotifyFun(func(_ *xgbutil.XUtil, ev xevent.CreateNotifyEvent) {
		x.handleCreate(ev.Window)
	}).Connect(xu, root)

	x.refreshClients(false)

	go func() {
		defer close(x.mainDone)
		x.conn.EventLoop()
	}()
	return nil
}

// Events implements compositor.Conn.
func (x *Compositor) Events() <-chan compositor.Event {
	return x.events
}

// push runs on the xevent goroutine.
func (x *Compositor) push(ev compositor.Event) {
	select {
	case x.events <- ev:
	case <-x.done:
	}
}

func (x *Compositor) handleRootProperty(ev xevent.PropertyNotifyEvent) {
	name, err := xprop.AtomName(x.conn.XUtil, ev.Atom)
	if err != nil {
		return
	}
	switch name {
	case "_NET_ACTIVE_WINDOW":
		x.push(compositor.ActiveWindowChanged{})
	case "_NET_SHOWING_DESKTOP":
		showing, err := ewmh.ShowingDesktopGet(x.conn.XUtil)
		if err != nil {
			x.logger.Debug("failed to read _NET_SHOWING_DESKTOP", "error", err)
			return
		}
		x.push(compositor.ShowingDesktopChanged{Showing: showing})
	case "_NET_CLIENT_LIST":
		x.refreshClients(true)
	}
}

// refreshClients diffs _NET_CLIENT_LIST against the known set.
func (x *Compositor) refreshClients(notify bool) {
	list, err := ewmh.ClientListGet(x.conn.XUtil)
	if err != nil {
		x.logger.Debug("failed to read _NET_CLIENT_LIST", "error", err)
		return
	}
	current := make(map[xproto.Window]bool, len(list))
	for _, win := range list {
		if x.conn.IsTaskWindow(win) {
			current[win] = true
		}
	}

	x.mu.Lock()
	var added, removed []xproto.Window
	for win := range current {
		if _, ok := x.clients[win]; !ok {
			added = append(added, win)
		}
	}
	for win := range x.clients {
		if !current[win] {
			removed = append(removed, win)
		}
	}
	closeableKnown := x.allowedActions
	x.mu.Unlock()

	sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
	sort.Slice(removed, func(i, j int) bool { return removed[i] < removed[j] })

	for _, win := range removed {
		x.removeClient(win, notify)
	}
	for _, win := range added {
		x.attach(win)
		info := x.conn.ReadWindow(win, closeableKnown)
		x.mu.Lock()
		x.clients[win] = info
		x.mu.Unlock()
		if notify {
			x.push(compositor.WindowMapped{Window: info})
		}
	}
}

func (x *Compositor) removeClient(win xproto.Window, notify bool) {
	x.mu.Lock()
	_, ok := x.clients[win]
	delete(x.clients, win)
	x.mu.Unlock()
	if !ok {
		return
	}
	x.detachIfUnused(win)
	if notify {
		x.push(compositor.WindowUnmapped{ID: compositor.WindowID(win)})
	}
}

// attach installs the per-window handlers once, whether the window is a client, a watched
// surface, or both.
func (x *Compositor) attach(win xproto.Window) {
	x.mu.Lock()
	if x.attached[win] {
		x.mu.Unlock()
		return
	}
	x.attached[win] = true
	x.mu.Unlock()

	xu := x.conn.XUtil
	if err := xwindow.New(xu, win).Listen(xproto.EventMaskPropertyChange, xproto.EventMaskStructureNotify); err != nil {
		x.logger.Debug("failed to listen on window", "window_id", win, "error", err)
	}
	xevent.PropertyNotifyFun(func(_ *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
		x.handleClientProperty(win, ev)
	}).Connect(xu, win)
	xevent.DestroyNotifyFun(func(_ *xgbutil.XUtil, _ xevent.DestroyNotifyEvent) {
		x.removeClient(win, true)
		x.mu.Lock()
		delete(x.surfaces, win)
		x.mu.Unlock()
		x.detachIfUnused(win)
	}).Connect(xu, win)
	xevent.MapNotifyFun(func(_ *xgbutil.XUtil, _ xevent.MapNotifyEvent) {
		x.surfaceVisibility(win, true)
	}).Connect(xu, win)
	xevent.UnmapNotifyFun(func(_ *xgbutil.XUtil, _ xevent.UnmapNotifyEvent) {
		x.surfaceVisibility(win, false)
	}).Connect(xu, win)
}

func (x *Compositor) detachIfUnused(win xproto.Window) {
	x.mu.Lock()
	_, client := x.clients[win]
	_, surface := x.surfaces[win]
	if client || surface || !x.attached[win] {
		x.mu.Unlock()
		return
	}
	delete(x.attached, win)
	x.mu.Unlock()
	xevent.Detach(x.conn.XUtil, win)
}

func (x *Compositor) handleClientProperty(win xproto.Window, ev xevent.PropertyNotifyEvent) {
	name, err := xprop.AtomName(x.conn.XUtil, ev.Atom)
	if err != nil {
		return
	}
	switch name {
	case "_NET_WM_STATE", "_NET_WM_ALLOWED_ACTIONS", "WM_CLASS", "WM_STATE", "_NET_WM_NAME":
	default:
		return
	}

	x.mu.Lock()
	prev, ok := x.clients[win]
	closeableKnown := x.allowedActions
	x.mu.Unlock()
	if !ok {
		return
	}

	info := x.conn.ReadWindow(win, closeableKnown)
	if info == prev {
		return
	}
	x.mu.Lock()
	if _, still := x.clients[win]; still {
		x.clients[win] = info
	}
	x.mu.Unlock()
	x.push(compositor.WindowChanged{Window: info})
}

func (x *Compositor) surfaceVisibility(win xproto.Window, visible bool) {
	x.mu.Lock()
	prev, ok := x.surfaces[win]
	if ok {
		x.surfaces[win] = visible
	}
	x.mu.Unlock()
	if !ok || prev == visible {
		return
	}
	x.push(compositor.SurfaceVisibilityChanged{Surface: compositor.Surface(win), Visible: visible})
}

// handleCreate starts watching a pending surface once its window exists.
func (x *Compositor) handleCreate(win xproto.Window) {
	x.mu.Lock()
	if !x.pending[win] {
		x.mu.Unlock()
		return
	}
	delete(x.pending, win)
	x.surfaces[win] = false
	x.mu.Unlock()

	x.attach(win)
	// The window may have been mapped before the handlers were in place.
	attrs, err := xproto.GetWindowAttributes(x.conn.XUtil.Conn(), win).Reply()
	if err == nil && attrs.MapState == xproto.MapStateViewable {
		x.surfaceVisibility(win, true)
	}
}

// WatchSurface implements compositor.Conn. A window that does not exist yet stays pending
// until it is created.
func (x *Compositor) WatchSurface(s compositor.Surface) (bool, error) {
	win := xproto.Window(s)
	attrs, err := xproto.GetWindowAttributes(x.conn.XUtil.Conn(), win).Reply()
	if err != nil {
		x.mu.Lock()
		if _, watched := x.surfaces[win]; !watched {
			x.pending[win] = true
		}
		x.mu.Unlock()
		return false, fmt.Errorf("surface %d not realized: %w", s, err)
	}
	visible := attrs.MapState == xproto.MapStateViewable

	x.mu.Lock()
	delete(x.pending, win)
	x.surfaces[win] = visible
	x.mu.Unlock()
	x.attach(win)
	return visible, nil
}

// UnwatchSurface implements compositor.Conn.
func (x *Compositor) UnwatchSurface(s compositor.Surface) {
	win := xproto.Window(s)
	x.mu.Lock()
	delete(x.surfaces, win)
	delete(x.pending, win)
	x.mu.Unlock()
	x.detachIfUnused(win)
}

// Close stops the event loop and disconnects. Events is closed once the loop has exited.
func (x *Compositor) Close() error {
	x.mu.Lock()
	if x.closed {
		x.mu.Unlock()
		return nil
	}
	x.closed = true
	started := x.started
	x.mu.Unlock()

	close(x.done)

	if !started {
		x.conn.Close()
		close(x.events)
		return nil
	}

	// xevent.Main treats a closed connection as fatal, so it is stopped first and the
	// connection closed only once it has returned.
	x.conn.Quit()
	if err := x.conn.Wake(); err != nil {
		x.logger.Debug("failed to wake x11 event loop", "error", err)
	}
	select {
	case <-x.mainDone:
		x.conn.Close()
		close(x.events)
	case <-time.After(2 * time.Second):
		x.logger.Warn("x11 event loop did not stop")
	}
	return nil
}

// BindWindowManagement implements compositor.Binder.
func (x *Compositor) BindWindowManagement(a compositor.Announcement) (compositor.WindowManagement, error) {
	if a.Interface != compositor.WindowManagementInterface {
		return nil, compositor.ErrNotSupported
	}
	return &windowManagement{x: x}, nil
}

// BindShellAnnotation implements compositor.Binder.
func (x *Compositor) BindShellAnnotation(a compositor.Announcement) (compositor.ShellAnnotation, error) {
	if a.Interface != compositor.ShellAnnotationInterface {
		return nil, compositor.ErrNotSupported
	}
	return &shellAnnotation{x: x}, nil
}

type windowManagement struct {
	x *Compositor
}

func (wm *windowManagement) ActiveWindow() (compositor.WindowID, bool) {
	win, err := wm.x.conn.GetActiveWindow()
	if err != nil || win == 0 {
		return 0, false
	}
	return compositor.WindowID(win), true
}

func (wm *windowManagement) Windows() []compositor.WindowInfo {
	x := wm.x
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]compositor.WindowInfo, 0, len(x.clients))
	for _, info := range x.clients {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (wm *windowManagement) SetShowingDesktop(showing bool) error {
	return wm.x.conn.SetShowingDesktop(showing)
}

func (wm *windowManagement) RequestClose(id compositor.WindowID) error {
	x := wm.x
	x.mu.Lock()
	viaWM := x.supported["_NET_CLOSE_WINDOW"]
	x.mu.Unlock()
	if err := x.conn.CloseWindow(xproto.Window(id), viaWM); err != nil {
		return fmt.Errorf("failed to close window %d: %w", id, err)
	}
	return nil
}

type shellAnnotation struct {
	x *Compositor
}

func (sh *shellAnnotation) CreateSurfaceAnnotation(s compositor.Surface) (compositor.SurfaceAnnotation, error) {
	win := xproto.Window(s)
	if _, err := xproto.GetWindowAttributes(sh.x.conn.XUtil.Conn(), win).Reply(); err != nil {
		return nil, fmt.Errorf("surface %d not realized: %w", s, err)
	}
	return &surfaceAnnotation{conn: sh.x.conn, win: win}, nil
}

type surfaceAnnotation struct {
	conn      *Connection
	win       xproto.Window
	destroyed bool
}

func (a *surfaceAnnotation) Surface() compositor.Surface {
	return compositor.Surface(a.win)
}

func (a *surfaceAnnotation) SetExcludedFromEnumeration(excluded bool) error {
	if a.destroyed {
		return fmt.Errorf("annotation for surface %d destroyed", a.win)
	}
	return a.conn.SetSkipTaskbar(a.win, excluded)
}

// Destroy releases the handle. The window keeps its skip-taskbar state.
func (a *surfaceAnnotation) Destroy() {
	a.destroyed = true
}
