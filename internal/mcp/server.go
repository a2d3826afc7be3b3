package mcp

import (
	"context"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/taskpanel/internal/ipc"
)

const (
	ServerName    = "taskpanel"
	ServerVersion = "0.1.0"
)

// DaemonClient is the daemon IPC surface the tools call. *ipc.Client implements it.
type DaemonClient interface {
	GetStatus() (*ipc.StatusData, error)
	SetShowingDesktop(mode string) (bool, error)
	CloseActiveWindow() error
	SetPanel(windowID uint32) error
}

// Server is the MCP server exposing the task panel to agents.
type Server struct {
	mcpServer *mcpsdk.Server
	client    DaemonClient
	logger    *slog.Logger
}

// NewServer creates an MCP server backed by client.
func NewServer(client DaemonClient, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Server{
		client: client,
		logger: logger,
	}

	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    ServerName,
			Version: ServerVersion,
		},
		nil,
	)

	s.registerTools()
	return s
}

// Run starts the MCP server on stdio transport, blocking until done.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_panel_state",
		Description: "Read the task panel's window-state properties: showing desktop, whether every window is minimized, whether the active window can be closed, the active window's application id, and the panel binding.",
	}, s.handleGetPanelState)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_showing_desktop",
		Description: "Ask the compositor to show the desktop (mode on), restore windows (off), or flip the current state (toggle). The confirmed state is reported later by get_panel_state.",
	}, s.handleSetShowingDesktop)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "close_active_window",
		Description: "Ask the active window to close. Fails when there is no active window or it cannot be closed.",
	}, s.handleCloseActiveWindow)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "set_panel",
		Description: "Bind the panel to an X11 window id so it is hidden from task lists. Pass 0 to clear the binding.",
	}, s.handleSetPanel)
}
