package mcp

// GetPanelStateInput is the input for the get_panel_state tool.
type GetPanelStateInput struct{}

// PanelStateOutput is the output for the get_panel_state tool.
type PanelStateOutput struct {
	Connected                bool     `json:"connected"`
	Capabilities             []string `json:"capabilities"`
	ShowingDesktop           bool     `json:"showing_desktop"`
	AllMinimized             bool     `json:"all_minimized"`
	HasCloseableActiveWindow bool     `json:"has_closeable_active_window"`
	ActiveWindowAppID        string   `json:"active_window_app_id"`
	Windows                  int      `json:"windows"`
	Panel                    uint32   `json:"panel"`
	PanelExcluded            bool     `json:"panel_excluded"`
	UptimeSeconds            int64    `json:"uptime_seconds"`
}

// SetShowingDesktopInput is the input for the set_showing_desktop tool.
type SetShowingDesktopInput struct {
	Mode string `json:"mode" jsonschema:"required,One of on, off or toggle"`
}

// SetShowingDesktopOutput is the output for the set_showing_desktop tool.
type SetShowingDesktopOutput struct {
	Requested bool   `json:"requested"`
	Note      string `json:"note"`
}

// CloseActiveWindowInput is the input for the close_active_window tool.
type CloseActiveWindowInput struct{}

// CloseActiveWindowOutput is the output for the close_active_window tool.
type CloseActiveWindowOutput struct {
	Requested bool   `json:"requested"`
	AppID     string `json:"app_id,omitempty"`
}

// SetPanelInput is the input for the set_panel tool.
type SetPanelInput struct {
	WindowID uint32 `json:"window_id" jsonschema:"X11 window id of the panel, 0 to clear"`
}

// SetPanelOutput is the output for the set_panel tool.
type SetPanelOutput struct {
	Panel uint32 `json:"panel"`
}
