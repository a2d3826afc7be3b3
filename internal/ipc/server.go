package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/1broseidon/taskpanel/internal/compositor"
	"github.com/1broseidon/taskpanel/internal/runtimepath"
	"github.com/1broseidon/taskpanel/internal/taskpanel"
)

// Controller is the daemon-side surface the server drives. *taskpanel.Containment
// implements it.
type Controller interface {
	Snapshot(ctx context.Context) (taskpanel.Status, error)
	RequestShowingDesktop(ctx context.Context, showing bool) error
	ToggleShowingDesktop(ctx context.Context) (bool, error)
	CloseActive(ctx context.Context) error
	SetPanelSurface(ctx context.Context, s compositor.Surface) error
}

// ReloadFunc reloads the daemon configuration.
type ReloadFunc func() error

const requestTimeout = 5 * time.Second

// Server handles IPC requests from clients
type Server struct {
	socketPath   string
	listener     net.Listener
	ctrl         Controller
	reload       ReloadFunc
	logger       *slog.Logger
	startTime    time.Time
	shuttingDown bool
	shutdownMu   sync.Mutex
	wg           sync.WaitGroup
}

// NewServer creates a server on the runtime socket path.
func NewServer(ctrl Controller, reload ReloadFunc, logger *slog.Logger) (*Server, error) {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve IPC socket path: %w", err)
	}
	return NewServerAt(socketPath, ctrl, reload, logger), nil
}

// NewServerAt creates a server listening on socketPath.
func NewServerAt(socketPath string, ctrl Controller, reload ReloadFunc, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	// Remove a stale socket left by a previous run.
	os.Remove(socketPath)

	return &Server{
		socketPath: socketPath,
		ctrl:       ctrl,
		reload:     reload,
		logger:     logger,
		startTime:  time.Now(),
	}
}

// SocketPath returns the path the server listens on.
func (s *Server) SocketPath() string { return s.socketPath }

// Start begins listening for IPC connections
func (s *Server) Start() error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("failed to create IPC socket: %w", err)
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.logger.Info("IPC server listening", "socket", s.socketPath)

	s.wg.Add(1)
	go s.acceptLoop()

	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.shutdownMu.Lock()
			if s.shuttingDown {
				s.shutdownMu.Unlock()
				return
			}
			s.shutdownMu.Unlock()
			s.logger.Warn("IPC accept error", "error", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(requestTimeout))

	reader := bufio.NewReader(conn)

	// One JSON request per line.
	data, err := reader.ReadBytes('\n')
	if err != nil && err != io.EOF {
		s.logger.Debug("IPC read error", "error", err)
		return
	}

	req, err := ParseRequest(data)
	if err != nil {
		s.sendError(conn, fmt.Sprintf("Invalid request: %v", err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	resp := s.handleCommand(ctx, req)

	respData, err := resp.Marshal()
	if err != nil {
		s.logger.Warn("failed to marshal response", "error", err)
		return
	}

	respData = append(respData, '\n')
	if _, err := conn.Write(respData); err != nil {
		s.logger.Debug("failed to send response", "error", err)
	}
}

func (s *Server) handleCommand(ctx context.Context, req *Request) *Response {
	switch req.Command {
	case CommandReload:
		return s.handleReload()
	case CommandGetStatus:
		return s.handleGetStatus(ctx)
	case CommandSetShowingDesktop:
		return s.handleSetShowingDesktop(ctx, req.Payload)
	case CommandCloseActiveWindow:
		return s.handleCloseActiveWindow(ctx)
	case CommandSetPanel:
		return s.handleSetPanel(ctx, req.Payload)
	default:
		return NewErrorResponse(fmt.Sprintf("Unknown command: %s", req.Command))
	}
}

func (s *Server) handleReload() *Response {
	s.logger.Info("IPC: received RELOAD")
	if s.reload == nil {
		return NewErrorResponse("reload not supported")
	}
	if err := s.reload(); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to reload config: %v", err))
	}
	resp, _ := NewOKResponse(nil)
	return resp
}

func (s *Server) handleGetStatus(ctx context.Context) *Response {
	st, err := s.ctrl.Snapshot(ctx)
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to read status: %v", err))
	}
	resp, err := NewOKResponse(StatusData{
		Status:        st,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		DaemonRunning: true,
	})
	if err != nil {
		return NewErrorResponse(err.Error())
	}
	return resp
}

func (s *Server) handleSetShowingDesktop(ctx context.Context, payload json.RawMessage) *Response {
	var req ShowingDesktopPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid showing-desktop payload: %v", err))
	}

	var requested bool
	var err error
	switch req.Mode {
	case ModeOn:
		requested = true
		err = s.ctrl.RequestShowingDesktop(ctx, true)
	case ModeOff:
		err = s.ctrl.RequestShowingDesktop(ctx, false)
	case ModeToggle:
		requested, err = s.ctrl.ToggleShowingDesktop(ctx)
	default:
		return NewErrorResponse(fmt.Sprintf("mode must be on, off or toggle, got %q", req.Mode))
	}
	if err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to request showing desktop: %v", err))
	}

	resp, _ := NewOKResponse(ShowingDesktopData{Requested: requested})
	return resp
}

func (s *Server) handleCloseActiveWindow(ctx context.Context) *Response {
	if err := s.ctrl.CloseActive(ctx); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to close active window: %v", err))
	}
	resp, _ := NewOKResponse(nil)
	return resp
}

func (s *Server) handleSetPanel(ctx context.Context, payload json.RawMessage) *Response {
	var req SetPanelPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return NewErrorResponse(fmt.Sprintf("Invalid panel payload: %v", err))
	}
	if err := s.ctrl.SetPanelSurface(ctx, compositor.Surface(req.WindowID)); err != nil {
		return NewErrorResponse(fmt.Sprintf("Failed to set panel: %v", err))
	}
	resp, _ := NewOKResponse(nil)
	return resp
}

func (s *Server) sendError(conn net.Conn, errMsg string) {
	resp := NewErrorResponse(errMsg)
	data, _ := resp.Marshal()
	data = append(data, '\n')
	conn.Write(data)
}

// Stop gracefully shuts down the IPC server
func (s *Server) Stop() {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	if s.listener != nil {
		s.listener.Close()
		s.wg.Wait()
	}
	os.Remove(s.socketPath)
}
