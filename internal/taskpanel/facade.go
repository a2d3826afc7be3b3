package taskpanel

import (
	"context"
	"time"

	"github.com/1broseidon/taskpanel/internal/compositor"
)

// Snapshot returns Status from any goroutine.
func (c *Containment) Snapshot(ctx context.Context) (Status, error) {
	var st Status
	err := c.loop.Call(ctx, func() { st = c.Status() })
	return st, err
}

// RequestShowingDesktop requests a showing-desktop change from any goroutine.
func (c *Containment) RequestShowingDesktop(ctx context.Context, showing bool) error {
	var reqErr error
	if err := c.loop.Call(ctx, func() {
		if !c.Connected() {
			reqErr = ErrNotConnected
			return
		}
		reqErr = c.SetShowDesktop(showing)
	}); err != nil {
		return err
	}
	return reqErr
}

// ToggleShowingDesktop requests the opposite of the confirmed state and returns the
// requested value.
func (c *Containment) ToggleShowingDesktop(ctx context.Context) (bool, error) {
	var want bool
	var reqErr error
	if err := c.loop.Call(ctx, func() {
		if !c.Connected() {
			reqErr = ErrNotConnected
			return
		}
		want = !c.ShowDesktop()
		reqErr = c.SetShowDesktop(want)
	}); err != nil {
		return false, err
	}
	return want, reqErr
}

// CloseActive closes the active window from any goroutine.
func (c *Containment) CloseActive(ctx context.Context) error {
	var reqErr error
	if err := c.loop.Call(ctx, func() { reqErr = c.CloseActiveWindow() }); err != nil {
		return err
	}
	return reqErr
}

// SetPanelSurface replaces the panel surface from any goroutine.
func (c *Containment) SetPanelSurface(ctx context.Context, s compositor.Surface) error {
	return c.loop.Call(ctx, func() { c.SetPanel(s) })
}

// UpdateDebounceInterval changes the debounce interval from any goroutine.
func (c *Containment) UpdateDebounceInterval(ctx context.Context, d time.Duration) error {
	return c.loop.Call(ctx, func() { c.SetDebounceInterval(d) })
}

// Watch delivers property changes to fn on the loop until ctx is done.
func (c *Containment) Watch(ctx context.Context, fn func(Property)) error {
	var cancel func()
	if err := c.loop.Call(ctx, func() { cancel = c.Subscribe(fn) }); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		c.loop.Post(cancel)
	}()
	return nil
}
