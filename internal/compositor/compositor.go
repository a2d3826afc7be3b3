// Package compositor defines the client-side boundary to the compositor: capability
// discovery, the window-management and shell-annotation capabilities, and the
// notifications they push.
package compositor

import (
	"context"
	"errors"
	"fmt"
)

// Capability interface names announced during discovery.
const (
	WindowManagementInterface = "window_management"
	ShellAnnotationInterface  = "shell_annotation"
)

// ErrNotSupported is returned when binding an announcement to the wrong capability.
var ErrNotSupported = errors.New("capability not supported")

// WindowID identifies a window owned by the compositor.
type WindowID uint32

// Surface identifies a local window's native surface.
type Surface uint32

// Announcement is a capability pushed by the compositor during discovery.
type Announcement struct {
	Interface string
	Name      uint32
	Version   uint32
}

func (a Announcement) String() string {
	return fmt.Sprintf("%s#%d v%d", a.Interface, a.Name, a.Version)
}

// WindowInfo is a snapshot of a remote window's flags.
type WindowInfo struct {
	ID          WindowID
	AppID       string
	Title       string
	Minimized   bool
	Fullscreen  bool
	SkipTaskbar bool
	Closeable   bool
}

// Binder turns announcements into capability handles.
type Binder interface {
	BindWindowManagement(a Announcement) (WindowManagement, error)
	BindShellAnnotation(a Announcement) (ShellAnnotation, error)
}

// Conn is an open session to the compositor.
type Conn interface {
	Binder

	// Discover performs the blocking discovery round trip.
	Discover(ctx context.Context) ([]Announcement, error)

	// Events delivers notifications in compositor order. It is closed by Close.
	Events() <-chan Event

	// WatchSurface subscribes to visibility notifications for s and reports whether it
	// is currently visible. It fails when the surface is not realized, but the
	// subscription stays in place until UnwatchSurface, so a later realization is reported.
	WatchSurface(s Surface) (visible bool, err error)
	UnwatchSurface(s Surface)

	Close() error
}

// WindowManagement is the window-management capability.
type WindowManagement interface {
	ActiveWindow() (WindowID, bool)
	Windows() []WindowInfo
	SetShowingDesktop(showing bool) error
	RequestClose(id WindowID) error
}

// ShellAnnotation is the shell-annotation capability.
type ShellAnnotation interface {
	CreateSurfaceAnnotation(s Surface) (SurfaceAnnotation, error)
}

// SurfaceAnnotation is the compositor-side annotation attached to a surface.
type SurfaceAnnotation interface {
	Surface() Surface
	SetExcludedFromEnumeration(excluded bool) error
	Destroy()
}
