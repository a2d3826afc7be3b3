package mcp

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/1broseidon/taskpanel/internal/ipc"
)

func (s *Server) handleGetPanelState(_ context.Context, _ *mcpsdk.CallToolRequest, _ GetPanelStateInput) (*mcpsdk.CallToolResult, PanelStateOutput, error) {
	st, err := s.client.GetStatus()
	if err != nil {
		return nil, PanelStateOutput{}, err
	}
	return nil, panelStateFromStatus(st), nil
}

func panelStateFromStatus(st *ipc.StatusData) PanelStateOutput {
	caps := make([]string, 0, len(st.Capabilities))
	for _, c := range st.Capabilities {
		caps = append(caps, fmt.Sprintf("%s v%d", c.Interface, c.Version))
	}
	return PanelStateOutput{
		Connected:                st.Connected,
		Capabilities:             caps,
		ShowingDesktop:           st.State.ShowingDesktop,
		AllMinimized:             st.State.AllMinimized,
		HasCloseableActiveWindow: st.State.HasCloseableActiveWindow,
		ActiveWindowAppID:        st.State.ActiveWindowAppID,
		Windows:                  st.Windows,
		Panel:                    st.Panel,
		PanelExcluded:            st.PanelExcluded,
		UptimeSeconds:            st.UptimeSeconds,
	}
}

func (s *Server) handleSetShowingDesktop(_ context.Context, _ *mcpsdk.CallToolRequest, args SetShowingDesktopInput) (*mcpsdk.CallToolResult, SetShowingDesktopOutput, error) {
	mode := strings.ToLower(strings.TrimSpace(args.Mode))
	switch mode {
	case ipc.ModeOn, ipc.ModeOff, ipc.ModeToggle:
	default:
		return nil, SetShowingDesktopOutput{}, fmt.Errorf("mode must be on, off or toggle, got %q", args.Mode)
	}

	requested, err := s.client.SetShowingDesktop(mode)
	if err != nil {
		return nil, SetShowingDesktopOutput{}, err
	}
	s.logger.Info("mcp: set_showing_desktop", "mode", mode, "requested", requested)
	return nil, SetShowingDesktopOutput{
		Requested: requested,
		Note:      "the compositor confirms asynchronously; read get_panel_state for the applied value",
	}, nil
}

func (s *Server) handleCloseActiveWindow(_ context.Context, _ *mcpsdk.CallToolRequest, _ CloseActiveWindowInput) (*mcpsdk.CallToolResult, CloseActiveWindowOutput, error) {
	var appID string
	if st, err := s.client.GetStatus(); err == nil {
		appID = st.State.ActiveWindowAppID
	}
	if err := s.client.CloseActiveWindow(); err != nil {
		return nil, CloseActiveWindowOutput{}, err
	}
	s.logger.Info("mcp: close_active_window", "app_id", appID)
	return nil, CloseActiveWindowOutput{Requested: true, AppID: appID}, nil
}

func (s *Server) handleSetPanel(_ context.Context, _ *mcpsdk.CallToolRequest, args SetPanelInput) (*mcpsdk.CallToolResult, SetPanelOutput, error) {
	if err := s.client.SetPanel(args.WindowID); err != nil {
		return nil, SetPanelOutput{}, err
	}
	return nil, SetPanelOutput{Panel: args.WindowID}, nil
}
