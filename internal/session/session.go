// Package session owns the connection to the compositor and fans capability
// announcements out to consumers.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/1broseidon/taskpanel/internal/compositor"
	"github.com/1broseidon/taskpanel/internal/eventloop"
)

// ErrClosed is returned by Connect after Close.
var ErrClosed = errors.New("session closed")

// State is the connectivity state of a session.
type State int

const (
	Disconnected State = iota
	Connected
)

func (s State) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// Consumer receives capability announcements. Announcements arrive on the event loop in
// discovery order; a consumer binds only the interfaces it understands.
type Consumer interface {
	CapabilityAnnounced(b compositor.Binder, a compositor.Announcement)
}

// Dialer opens a compositor connection. It returns (nil, nil) when the display does not
// speak a protocol this client supports.
type Dialer func(ctx context.Context) (compositor.Conn, error)

// EventHandler receives every compositor notification after Connect.
type EventHandler func(compositor.Event)

// Session is created once per process and never reconnected.
type Session struct {
	loop      *eventloop.Loop
	dial      Dialer
	consumers []Consumer
	handlers  []EventHandler

	conn          compositor.Conn
	state         State
	announcements []compositor.Announcement
	closed        bool

	logger *slog.Logger
}

// New creates a disconnected session.
func New(loop *eventloop.Loop, dial Dialer, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Session{loop: loop, dial: dial, logger: logger}
}

// AddConsumer registers c for announcements. Must be called before Connect.
func (s *Session) AddConsumer(c Consumer) {
	s.consumers = append(s.consumers, c)
}

// OnEvent registers h for compositor notifications. Must be called before Connect.
func (s *Session) OnEvent(h EventHandler) {
	s.handlers = append(s.handlers, h)
}

// Connect dials the compositor and performs discovery. It blocks until the discovery round
// trip completes, so every announced capability has been delivered to consumers by the
// time it returns. An unsupported display leaves the session inert and is not an error.
func (s *Session) Connect(ctx context.Context) error {
	if s.closed {
		return ErrClosed
	}
	if s.state == Connected {
		return nil
	}

	conn, err := s.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect to compositor: %w", err)
	}
	if conn == nil {
		s.logger.Info("display does not support compositor protocol, panel features disabled")
		return nil
	}

	announcements, err := conn.Discover(ctx)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("capability discovery: %w", err)
	}

	s.conn = conn
	s.state = Connected
	s.announcements = announcements
	s.logger.Info("connected to compositor", "capabilities", len(announcements))

	for _, a := range announcements {
		s.logger.Debug("capability announced", "capability", a.String())
		for _, c := range s.consumers {
			c.CapabilityAnnounced(conn, a)
		}
	}

	s.loop.Watch(conn.Events(), s.dispatch)
	return nil
}

func (s *Session) dispatch(ev compositor.Event) {
	if s.closed {
		return
	}
	for _, h := range s.handlers {
		h(ev)
	}
}

// State returns the connectivity state.
func (s *Session) State() State {
	return s.state
}

// Conn returns the live connection, or nil when disconnected.
func (s *Session) Conn() compositor.Conn {
	return s.conn
}

// Announcements returns the capabilities discovered by Connect.
func (s *Session) Announcements() []compositor.Announcement {
	return append([]compositor.Announcement(nil), s.announcements...)
}

// Close tears down the connection. The session cannot be reconnected.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.state = Disconnected
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
