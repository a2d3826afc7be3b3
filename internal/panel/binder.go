// Package panel keeps the panel's own surface out of taskbar-like enumeration.
package panel

import (
	"log/slog"

	"github.com/1broseidon/taskpanel/internal/compositor"
)

// Window is the local panel window.
type Window interface {
	Visible() bool
	// Surface returns the native surface, or false while the window is not realized.
	Surface() (compositor.Surface, bool)
	OnVisibilityChanged(fn func(visible bool)) (cancel func())
}

// Binder annotates the panel surface once both the shell-annotation capability and a
// visible panel window exist. All methods run on the event loop.
type Binder struct {
	shell      compositor.ShellAnnotation
	window     Window
	stopWatch  func()
	annotation compositor.SurfaceAnnotation
	logger     *slog.Logger
}

// NewBinder creates a binder with no capability and no window.
func NewBinder(logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Binder{logger: logger}
}

// CapabilityAnnounced binds the shell-annotation capability when it is announced.
func (b *Binder) CapabilityAnnounced(binder compositor.Binder, a compositor.Announcement) {
	if a.Interface != compositor.ShellAnnotationInterface || b.shell != nil {
		return
	}
	shell, err := binder.BindShellAnnotation(a)
	if err != nil {
		b.logger.Warn("failed to bind shell annotation", "capability", a.String(), "error", err)
		return
	}
	b.shell = shell
	b.logger.Debug("shell annotation bound", "version", a.Version)
	b.update()
}

// Bound reports whether the shell-annotation capability is available.
func (b *Binder) Bound() bool {
	return b.shell != nil
}

// Window returns the current panel window.
func (b *Binder) Window() Window {
	return b.window
}

// SetWindow replaces the panel window. It reports whether the reference changed.
func (b *Binder) SetWindow(w Window) bool {
	if w == b.window {
		return false
	}
	if b.stopWatch != nil {
		b.stopWatch()
		b.stopWatch = nil
	}
	if b.annotation != nil {
		b.annotation.Destroy()
		b.annotation = nil
	}
	b.window = w
	if w != nil {
		b.stopWatch = w.OnVisibilityChanged(func(visible bool) {
			if visible {
				b.update()
			}
		})
	}
	b.update()
	return true
}

// Annotation returns the live annotation, if any.
func (b *Binder) Annotation() compositor.SurfaceAnnotation {
	return b.annotation
}

// Close releases the window subscription and the annotation.
func (b *Binder) Close() {
	if b.stopWatch != nil {
		b.stopWatch()
		b.stopWatch = nil
	}
	if b.annotation != nil {
		b.annotation.Destroy()
		b.annotation = nil
	}
	b.window = nil
}

func (b *Binder) update() {
	if b.shell == nil || b.window == nil || !b.window.Visible() {
		return
	}
	surface, ok := b.window.Surface()
	if !ok {
		// Not realized yet; the next visibility change retries.
		return
	}

	if b.annotation != nil {
		b.annotation.Destroy()
		b.annotation = nil
	}
	ann, err := b.shell.CreateSurfaceAnnotation(surface)
	if err != nil {
		b.logger.Debug("panel surface not annotatable", "surface", surface, "error", err)
		return
	}
	if err := ann.SetExcludedFromEnumeration(true); err != nil {
		b.logger.Warn("failed to exclude panel from taskbar", "surface", surface, "error", err)
	}
	b.annotation = ann
	b.logger.Debug("panel surface annotated", "surface", surface)
}
