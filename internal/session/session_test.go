package session

import (
	"context"
	"errors"
	"testing"

	"github.com/1broseidon/taskpanel/internal/compositor"
	"github.com/1broseidon/taskpanel/internal/compositor/compositortest"
	"github.com/1broseidon/taskpanel/internal/eventloop"
)

type recordingConsumer struct {
	name string
	log  *[]string
	got  []compositor.Announcement
}

func (c *recordingConsumer) CapabilityAnnounced(_ compositor.Binder, a compositor.Announcement) {
	c.got = append(c.got, a)
	*c.log = append(*c.log, c.name+":"+a.Interface)
}

func dialServer(srv *compositortest.Server) Dialer {
	return func(context.Context) (compositor.Conn, error) { return srv, nil }
}

func TestConnect_DeliversAnnouncementsBeforeReturning(t *testing.T) {
	srv := compositortest.NewServer()
	srv.Announce(compositor.ShellAnnotationInterface, 4, 1)
	srv.Announce(compositor.WindowManagementInterface, 7, 2)

	var log []string
	first := &recordingConsumer{name: "registry", log: &log}
	second := &recordingConsumer{name: "binder", log: &log}

	s := New(eventloop.New(), dialServer(srv), nil)
	s.AddConsumer(first)
	s.AddConsumer(second)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if s.State() != Connected {
		t.Fatalf("State() = %v, want connected", s.State())
	}
	if srv.DiscoverCalls() != 1 {
		t.Fatalf("DiscoverCalls() = %d, want 1", srv.DiscoverCalls())
	}

	// Discovery order first, then registration order.
	want := []string{
		"registry:" + compositor.ShellAnnotationInterface,
		"binder:" + compositor.ShellAnnotationInterface,
		"registry:" + compositor.WindowManagementInterface,
		"binder:" + compositor.WindowManagementInterface,
	}
	if len(log) != len(want) {
		t.Fatalf("deliveries = %v, want %v", log, want)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("deliveries = %v, want %v", log, want)
		}
	}
	if got := first.got[1]; got.Name != 7 || got.Version != 2 {
		t.Fatalf("announcement = %+v, want name 7 version 2", got)
	}

	// A second Connect does not rediscover.
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("second Connect() error: %v", err)
	}
	if srv.DiscoverCalls() != 1 {
		t.Fatalf("DiscoverCalls() = %d after reconnect, want 1", srv.DiscoverCalls())
	}
}

func TestConnect_UnsupportedDisplayIsInert(t *testing.T) {
	var log []string
	c := &recordingConsumer{name: "c", log: &log}
	s := New(eventloop.New(), func(context.Context) (compositor.Conn, error) { return nil, nil }, nil)
	s.AddConsumer(c)

	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v, want nil for unsupported display", err)
	}
	if s.State() != Disconnected {
		t.Fatalf("State() = %v, want disconnected", s.State())
	}
	if len(log) != 0 {
		t.Fatalf("deliveries = %v, want none", log)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

func TestConnect_Errors(t *testing.T) {
	dialErr := errors.New("no display")
	s := New(eventloop.New(), func(context.Context) (compositor.Conn, error) { return nil, dialErr }, nil)
	if err := s.Connect(context.Background()); !errors.Is(err, dialErr) {
		t.Fatalf("Connect() error = %v, want %v", err, dialErr)
	}

	srv := compositortest.NewServer()
	srv.DiscoverErr = errors.New("roundtrip failed")
	s = New(eventloop.New(), dialServer(srv), nil)
	if err := s.Connect(context.Background()); !errors.Is(err, srv.DiscoverErr) {
		t.Fatalf("Connect() error = %v, want %v", err, srv.DiscoverErr)
	}
	if !srv.Closed() {
		t.Fatal("connection not closed after failed discovery")
	}
	if s.State() != Disconnected {
		t.Fatalf("State() = %v, want disconnected", s.State())
	}
}

func TestSession_DispatchesEventsOnLoop(t *testing.T) {
	srv := compositortest.NewServer()
	loop := eventloop.New()
	s := New(loop, dialServer(srv), nil)

	var got []compositor.Event
	s.OnEvent(func(ev compositor.Event) { got = append(got, ev) })
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}

	srv.AddWindow(compositor.WindowInfo{ID: 1})
	srv.Activate(1)
	if len(got) != 0 {
		t.Fatal("events delivered outside the loop")
	}
	loop.Flush()
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if _, ok := got[0].(compositor.WindowMapped); !ok {
		t.Fatalf("first event = %T, want WindowMapped", got[0])
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !srv.Closed() {
		t.Fatal("connection not closed")
	}
	if err := s.Connect(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Connect() after Close error = %v, want ErrClosed", err)
	}
}
