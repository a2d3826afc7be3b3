package x11

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"

	"github.com/1broseidon/taskpanel/internal/compositor"
)

// IsTaskWindow reports whether a client belongs in the window set. Desktop backgrounds,
// docks and other shell furniture are left out.
func (c *Connection) IsTaskWindow(windowID xproto.Window) bool {
	types, err := ewmh.WmWindowTypeGet(c.XUtil, windowID)
	if err != nil {
		// If we can't determine type, assume it's normal
		return true
	}
	for _, t := range types {
		switch t {
		case "_NET_WM_WINDOW_TYPE_DESKTOP",
			"_NET_WM_WINDOW_TYPE_DOCK",
			"_NET_WM_WINDOW_TYPE_SPLASH",
			"_NET_WM_WINDOW_TYPE_NOTIFICATION":
			return false
		}
	}
	return true
}

// GetActiveWindow returns _NET_ACTIVE_WINDOW; zero means none.
func (c *Connection) GetActiveWindow() (xproto.Window, error) {
	return ewmh.ActiveWindowGet(c.XUtil)
}

// ReadWindow collects the flags of a client window. closeableKnown selects whether
// _NET_WM_ALLOWED_ACTIONS is consulted; without it every window is closeable.
func (c *Connection) ReadWindow(windowID xproto.Window, closeableKnown bool) compositor.WindowInfo {
	info := compositor.WindowInfo{ID: compositor.WindowID(windowID), Closeable: true}

	if class, err := icccm.WmClassGet(c.XUtil, windowID); err == nil && class != nil {
		info.AppID = class.Class
	}
	if name, err := ewmh.WmNameGet(c.XUtil, windowID); err == nil && name != "" {
		info.Title = name
	} else if name, err := icccm.WmNameGet(c.XUtil, windowID); err == nil {
		info.Title = name
	}

	if states, err := ewmh.WmStateGet(c.XUtil, windowID); err == nil {
		for _, s := range states {
			switch s {
			case "_NET_WM_STATE_HIDDEN":
				info.Minimized = true
			case "_NET_WM_STATE_FULLSCREEN":
				info.Fullscreen = true
			case "_NET_WM_STATE_SKIP_TASKBAR":
				info.SkipTaskbar = true
			}
		}
	}
	if st, err := icccm.WmStateGet(c.XUtil, windowID); err == nil && st != nil && st.State == icccm.StateIconic {
		info.Minimized = true
	}

	if closeableKnown {
		if actions, err := ewmh.WmAllowedActionsGet(c.XUtil, windowID); err == nil {
			info.Closeable = containsString(actions, "_NET_WM_ACTION_CLOSE")
		}
	}
	return info
}

// ErrWindowNotFound is returned by FindWindowByTitle when nothing matches.
var ErrWindowNotFound = errors.New("window not found")

// FindWindowByTitle searches the EWMH client list for a window whose
// _NET_WM_NAME contains the given substring. Returns the first match.
func (c *Connection) FindWindowByTitle(substring string) (uint32, error) {
	clients, err := ewmh.ClientListGet(c.XUtil)
	if err != nil {
		return 0, fmt.Errorf("failed to get client list: %w", err)
	}
	for _, win := range clients {
		name, err := ewmh.WmNameGet(c.XUtil, win)
		if err != nil {
			continue
		}
		if containsSubstring(name, substring) {
			return uint32(win), nil
		}
	}
	return 0, fmt.Errorf("%w: no title containing %q", ErrWindowNotFound, substring)
}

// containsSubstring checks if s contains substr (case-sensitive).
func containsSubstring(s, substr string) bool {
	return len(substr) > 0 && len(s) >= len(substr) && strings.Contains(s, substr)
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
