package compositor

// Event is a notification pushed by the compositor.
type Event interface {
	event()
}

// ActiveWindowChanged reports that the active window pointer moved.
type ActiveWindowChanged struct{}

// ShowingDesktopChanged confirms a showing-desktop transition.
type ShowingDesktopChanged struct {
	Showing bool
}

// WindowMapped announces a new window.
type WindowMapped struct {
	Window WindowInfo
}

// WindowChanged carries updated flags for a known window.
type WindowChanged struct {
	Window WindowInfo
}

// WindowUnmapped reports that a window is gone. Its id must not be used afterwards.
type WindowUnmapped struct {
	ID WindowID
}

// SurfaceVisibilityChanged reports a watched surface being shown or hidden.
type SurfaceVisibilityChanged struct {
	Surface Surface
	Visible bool
}

func (ActiveWindowChanged) event()      {}
func (ShowingDesktopChanged) event()    {}
func (WindowMapped) event()             {}
func (WindowChanged) event()            {}
func (WindowUnmapped) event()           {}
func (SurfaceVisibilityChanged) event() {}
