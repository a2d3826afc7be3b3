// Package taskpanel is the task-panel containment: it wires the compositor session, window
// registry, active-window tracker and panel binder onto one event loop and exposes the
// panel's observable properties.
package taskpanel

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/1broseidon/taskpanel/internal/compositor"
	"github.com/1broseidon/taskpanel/internal/eventloop"
	"github.com/1broseidon/taskpanel/internal/panel"
	"github.com/1broseidon/taskpanel/internal/registry"
	"github.com/1broseidon/taskpanel/internal/session"
	"github.com/1broseidon/taskpanel/internal/tracker"
)

// ErrNotConnected is returned by operations that need a compositor connection.
var ErrNotConnected = errors.New("not connected to compositor")

// Property names an observable containment property.
type Property string

const (
	ShowDesktop              Property = "showDesktop"
	AllMinimized             Property = "allMinimized"
	HasCloseableActiveWindow Property = "hasCloseableActiveWindow"
	ActiveWindowDesktopName  Property = "activeWindowDesktopName"
	Panel                    Property = "panel"
)

// Options configures a Containment.
type Options struct {
	Dial             session.Dialer
	Clock            eventloop.Clock
	DebounceInterval time.Duration
	Logger           *slog.Logger
}

// Capability is a discovered capability as reported in Status.
type Capability struct {
	Interface string `json:"interface"`
	Name      uint32 `json:"name"`
	Version   uint32 `json:"version"`
}

// Status is a point-in-time view of the containment.
type Status struct {
	Connected                 bool          `json:"connected"`
	Capabilities              []Capability  `json:"capabilities"`
	State                     tracker.State `json:"state"`
	Windows                   int           `json:"windows"`
	Panel                     uint32        `json:"panel"`
	PanelExcluded             bool          `json:"panel_excluded"`
	HasConfigurationInterface bool          `json:"has_configuration_interface"`
	DebounceInterval          string        `json:"debounce_interval"`
}

// Containment owns the synchronizer. Methods without a context argument must run on the
// event loop; the context-taking methods are safe from any goroutine.
type Containment struct {
	loop     *eventloop.Loop
	session  *session.Session
	registry *registry.Registry
	tracker  *tracker.Tracker
	binder   *panel.Binder

	panelID  compositor.Surface
	window   *panel.SurfaceWindow
	interval time.Duration

	observers map[int]func(Property)
	nextKey   int
	closed    bool

	logger *slog.Logger
}

// New builds a disconnected containment on loop.
func New(loop *eventloop.Loop, opts Options) *Containment {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Clock == nil {
		opts.Clock = eventloop.RealClock()
	}
	if opts.DebounceInterval <= 0 {
		opts.DebounceInterval = tracker.DefaultDebounceInterval
	}

	c := &Containment{
		loop:      loop,
		interval:  opts.DebounceInterval,
		observers: make(map[int]func(Property)),
		logger:    opts.Logger,
	}
	c.registry = registry.New(opts.Logger.With("component", "registry"))
	c.tracker = tracker.New(c.registry, tracker.Options{
		Clock:    opts.Clock,
		Interval: opts.DebounceInterval,
		Post:     loop.Post,
		Logger:   opts.Logger.With("component", "tracker"),
	})
	c.binder = panel.NewBinder(opts.Logger.With("component", "panel"))
	c.session = session.New(loop, opts.Dial, opts.Logger.With("component", "session"))

	c.session.AddConsumer(windowManagementConsumer{c})
	c.session.AddConsumer(c.binder)
	c.session.OnEvent(c.registry.HandleEvent)
	c.session.OnEvent(c.handleSurfaceEvent)

	c.tracker.Subscribe(func(p tracker.Property) {
		c.emit(propertyOf(p))
	})
	return c
}

func propertyOf(p tracker.Property) Property {
	switch p {
	case tracker.ShowingDesktop:
		return ShowDesktop
	case tracker.AllMinimized:
		return AllMinimized
	case tracker.HasCloseableActiveWindow:
		return HasCloseableActiveWindow
	default:
		return ActiveWindowDesktopName
	}
}

type windowManagementConsumer struct {
	c *Containment
}

func (w windowManagementConsumer) CapabilityAnnounced(b compositor.Binder, a compositor.Announcement) {
	c := w.c
	if a.Interface != compositor.WindowManagementInterface || c.registry.Attached() {
		return
	}
	wm, err := b.BindWindowManagement(a)
	if err != nil {
		c.logger.Warn("failed to bind window management", "capability", a.String(), "error", err)
		return
	}
	c.registry.Attach(wm)
	c.tracker.Attach(wm)
	c.logger.Debug("window management bound", "version", a.Version, "windows", c.registry.Len())
}

// Connect opens the compositor session. It blocks for the discovery round trip and must be
// called before the loop runs or from the loop.
func (c *Containment) Connect(ctx context.Context) error {
	return c.session.Connect(ctx)
}

// Connected reports whether a compositor session is open.
func (c *Containment) Connected() bool {
	return c.session.State() == session.Connected
}

// Subscribe registers fn for property changes.
func (c *Containment) Subscribe(fn func(Property)) (cancel func()) {
	key := c.nextKey
	c.nextKey++
	c.observers[key] = fn
	return func() { delete(c.observers, key) }
}

// ShowDesktop returns the compositor-confirmed showing-desktop state.
func (c *Containment) ShowDesktop() bool { return c.tracker.ShowingDesktop() }

// SetShowDesktop requests a showing-desktop change. The property follows the compositor's
// confirmation, not the request.
func (c *Containment) SetShowDesktop(showing bool) error {
	if c.closed {
		return nil
	}
	return c.tracker.RequestShowingDesktop(showing)
}

// AllMinimized reports whether no window is plainly visible.
func (c *Containment) AllMinimized() bool { return c.tracker.AllMinimized() }

// HasCloseableActiveWindow reports whether the active window can be closed.
func (c *Containment) HasCloseableActiveWindow() bool { return c.tracker.HasCloseableActiveWindow() }

// ActiveWindowDesktopName returns the active window's application id.
func (c *Containment) ActiveWindowDesktopName() string { return c.tracker.ActiveWindowDesktopName() }

// SetActiveWindowDesktopName overrides the application id until the next active-window update.
func (c *Containment) SetActiveWindowDesktopName(name string) {
	c.tracker.SetActiveWindowDesktopName(name)
}

// HasConfigurationInterface reports that the containment offers a settings surface.
func (c *Containment) HasConfigurationInterface() bool { return true }

// Panel returns the panel surface, zero when unset.
func (c *Containment) Panel() compositor.Surface { return c.panelID }

// SetPanel replaces the panel surface. Zero clears it.
func (c *Containment) SetPanel(s compositor.Surface) {
	if c.closed || s == c.panelID {
		return
	}
	if c.window != nil {
		c.window.Release()
		c.window = nil
	}
	c.panelID = s

	if s != 0 {
		if conn := c.session.Conn(); conn != nil {
			c.window = panel.NewSurfaceWindow(conn, s)
		}
	}
	if c.window != nil {
		c.binder.SetWindow(c.window)
	} else {
		c.binder.SetWindow(nil)
	}
	c.logger.Debug("panel surface set", "surface", s)
	c.emit(Panel)
}

// CloseActiveWindow asks the compositor to close the active window.
func (c *Containment) CloseActiveWindow() error {
	if c.closed {
		return tracker.ErrNoActiveWindow
	}
	return c.tracker.CloseActiveWindow()
}

// SetDebounceInterval changes the active-window debounce interval.
func (c *Containment) SetDebounceInterval(d time.Duration) {
	if d <= 0 {
		d = tracker.DefaultDebounceInterval
	}
	c.interval = d
	c.tracker.SetInterval(d)
}

// Status returns a snapshot of the containment.
func (c *Containment) Status() Status {
	st := Status{
		Connected:                 c.Connected(),
		Capabilities:              []Capability{},
		State:                     c.tracker.State(),
		Windows:                   c.registry.Len(),
		Panel:                     uint32(c.panelID),
		PanelExcluded:             c.binder.Annotation() != nil,
		HasConfigurationInterface: c.HasConfigurationInterface(),
		DebounceInterval:          c.interval.String(),
	}
	for _, a := range c.session.Announcements() {
		st.Capabilities = append(st.Capabilities, Capability{Interface: a.Interface, Name: a.Name, Version: a.Version})
	}
	return st
}

// Windows returns the registry's current window set.
func (c *Containment) Windows() []registry.Window {
	return c.registry.Windows()
}

// Close tears everything down. The containment cannot be reused.
func (c *Containment) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.tracker.Close()
	c.binder.Close()
	if c.window != nil {
		c.window.Release()
		c.window = nil
	}
	c.observers = make(map[int]func(Property))
	return c.session.Close()
}

func (c *Containment) handleSurfaceEvent(ev compositor.Event) {
	if c.window != nil {
		c.window.HandleEvent(ev)
	}
}

func (c *Containment) emit(p Property) {
	keys := make([]int, 0, len(c.observers))
	for k := range c.observers {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		if fn, ok := c.observers[k]; ok {
			fn(p)
		}
	}
}
