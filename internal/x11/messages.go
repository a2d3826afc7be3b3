package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
)

// Client messages are built by hand: the xgbutil ewmh *Req helpers panic on this
// library version (uint vs int type assertion).

const sourceIndication = 2 // pager/direct action

const (
	wmStateRemove = 0
	wmStateAdd    = 1
)

func (c *Connection) internAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(c.XUtil.Conn(), false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, fmt.Errorf("failed to intern %s: %w", name, err)
	}
	return reply.Atom, nil
}

// sendRootMessage sends an EWMH client message about window to the root window.
func (c *Connection) sendRootMessage(atomName string, window xproto.Window, data []uint32) error {
	atom, err := c.internAtom(atomName)
	if err != nil {
		return err
	}
	for len(data) < 5 {
		data = append(data, 0)
	}
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: window,
		Type:   atom,
		Data:   xproto.ClientMessageDataUnionData32New(data),
	}
	return xproto.SendEventChecked(
		c.XUtil.Conn(),
		false,
		c.Root,
		xproto.EventMaskSubstructureRedirect|xproto.EventMaskSubstructureNotify,
		string(ev.Bytes()),
	).Check()
}

// SetShowingDesktop asks the window manager to enter or leave showing-desktop mode.
func (c *Connection) SetShowingDesktop(showing bool) error {
	var v uint32
	if showing {
		v = 1
	}
	if err := c.sendRootMessage("_NET_SHOWING_DESKTOP", c.Root, []uint32{v}); err != nil {
		return fmt.Errorf("failed to request showing desktop: %w", err)
	}
	return nil
}

// SetSkipTaskbar marks a window as excluded from (or included in) taskbars and pagers.
// Mapped windows are changed through the window manager; unmapped windows get the
// property written directly, as EWMH prescribes.
func (c *Connection) SetSkipTaskbar(window xproto.Window, skip bool) error {
	attrs, err := xproto.GetWindowAttributes(c.XUtil.Conn(), window).Reply()
	if err != nil {
		return fmt.Errorf("window %d not realized: %w", window, err)
	}

	if attrs.MapState != xproto.MapStateUnmapped {
		action := uint32(wmStateRemove)
		if skip {
			action = wmStateAdd
		}
		taskbar, err := c.internAtom("_NET_WM_STATE_SKIP_TASKBAR")
		if err != nil {
			return err
		}
		pager, err := c.internAtom("_NET_WM_STATE_SKIP_PAGER")
		if err != nil {
			return err
		}
		return c.sendRootMessage("_NET_WM_STATE", window,
			[]uint32{action, uint32(taskbar), uint32(pager), sourceIndication})
	}

	states, _ := ewmh.WmStateGet(c.XUtil, window)
	next := make([]string, 0, len(states)+2)
	for _, s := range states {
		if s != "_NET_WM_STATE_SKIP_TASKBAR" && s != "_NET_WM_STATE_SKIP_PAGER" {
			next = append(next, s)
		}
	}
	if skip {
		next = append(next, "_NET_WM_STATE_SKIP_TASKBAR", "_NET_WM_STATE_SKIP_PAGER")
	}
	return ewmh.WmStateSet(c.XUtil, window, next)
}

// CloseWindow asks a client to close. _NET_CLOSE_WINDOW goes through the window manager;
// otherwise the client gets an ICCCM WM_DELETE_WINDOW message.
func (c *Connection) CloseWindow(window xproto.Window, viaWindowManager bool) error {
	if viaWindowManager {
		return c.sendRootMessage("_NET_CLOSE_WINDOW", window, []uint32{0, sourceIndication})
	}

	protocols, err := c.internAtom("WM_PROTOCOLS")
	if err != nil {
		return err
	}
	del, err := c.internAtom("WM_DELETE_WINDOW")
	if err != nil {
		return err
	}
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: window,
		Type:   protocols,
		Data:   xproto.ClientMessageDataUnionData32New([]uint32{uint32(del), 0, 0, 0, 0}),
	}
	return xproto.SendEventChecked(c.XUtil.Conn(), false, window, xproto.EventMaskNoEvent, string(ev.Bytes())).Check()
}
