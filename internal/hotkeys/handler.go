package hotkeys

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xevent"

	"github.com/1broseidon/taskpanel/internal/config"
)

// Actions are the containment operations bound to keys.
type Actions interface {
	ToggleShowingDesktop(ctx context.Context) (bool, error)
	CloseActive(ctx context.Context) error
}

const actionTimeout = 2 * time.Second

// Handler manages global keyboard shortcuts
type Handler struct {
	xu      *xgbutil.XUtil
	root    xproto.Window
	actions Actions
	logger  *slog.Logger

	// connect grabs a key sequence; replaced in tests.
	connect func(keySequence string, callback func()) error
}

var ignoreModsOnce sync.Once

// NewHandler creates a hotkey handler on xu's root window.
func NewHandler(xu *xgbutil.XUtil, actions Actions, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := &Handler{
		xu:      xu,
		actions: actions,
		logger:  logger,
	}
	if xu != nil {
		h.root = xu.RootWin()
		ignoreModsOnce.Do(func() {
			configureIgnoreMods(xu)
		})
	}
	h.connect = h.grab
	return h
}

// RegisterConfig binds every non-empty key sequence in cfg.
func (h *Handler) RegisterConfig(cfg config.HotkeyConfig) error {
	if cfg.ShowDesktop != "" {
		if err := h.RegisterFunc(cfg.ShowDesktop, h.toggleShowingDesktop); err != nil {
			return fmt.Errorf("failed to register show-desktop hotkey %q: %w", cfg.ShowDesktop, err)
		}
	}
	if cfg.CloseActive != "" {
		if err := h.RegisterFunc(cfg.CloseActive, h.closeActive); err != nil {
			return fmt.Errorf("failed to register close-active hotkey %q: %w", cfg.CloseActive, err)
		}
	}
	return nil
}

// Unregister drops every grab on the root window.
func (h *Handler) Unregister() {
	if h.xu == nil {
		return
	}
	keybind.Detach(h.xu, h.root)
}

// RegisterFunc registers an arbitrary hotkey callback. Callbacks run off the X event
// goroutine.
func (h *Handler) RegisterFunc(keySequence string, callback func()) error {
	return h.connect(keySequence, func() { go callback() })
}

func (h *Handler) grab(keySequence string, callback func()) error {
	if h.xu == nil {
		return fmt.Errorf("no X connection")
	}
	return keybind.KeyPressFun(func(xu *xgbutil.XUtil, ev xevent.KeyPressEvent) {
		callback()
	}).Connect(h.xu, h.root, keySequence, true)
}

func (h *Handler) toggleShowingDesktop() {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	showing, err := h.actions.ToggleShowingDesktop(ctx)
	if err != nil {
		h.logger.Warn("show-desktop hotkey failed", "error", err)
		return
	}
	h.logger.Debug("show-desktop hotkey", "requested", showing)
}

func (h *Handler) closeActive() {
	ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
	defer cancel()
	if err := h.actions.CloseActive(ctx); err != nil {
		h.logger.Warn("close-active hotkey failed", "error", err)
	}
}

func configureIgnoreMods(xu *xgbutil.XUtil) {
	// Always ignore CapsLock.
	caps := uint16(xproto.ModMaskLock)

	numLock := modMaskForKeysym(xu, "Num_Lock")
	scrollLock := modMaskForKeysym(xu, "Scroll_Lock")

	xevent.IgnoreMods = ignoreMasks(caps, numLock, scrollLock)
}

// ignoreMasks returns every combination of the distinct non-zero lock masks, including 0.
func ignoreMasks(caps, numLock, scrollLock uint16) []uint16 {
	unique := make(map[uint16]struct{})
	add := func(mask uint16) {
		unique[mask] = struct{}{}
	}

	add(0)
	base := []uint16{caps}
	if numLock != 0 && numLock != caps {
		base = append(base, numLock)
	}
	if scrollLock != 0 && scrollLock != caps && scrollLock != numLock {
		base = append(base, scrollLock)
	}

	for subset := 1; subset < (1 << len(base)); subset++ {
		var mask uint16
		for bit := range base {
			if subset&(1<<bit) != 0 {
				mask |= base[bit]
			}
		}
		add(mask)
	}

	ignore := make([]uint16, 0, len(unique))
	for mask := range unique {
		ignore = append(ignore, mask)
	}
	return ignore
}

func modMaskForKeysym(xu *xgbutil.XUtil, keysym string) uint16 {
	for _, keycode := range keybind.StrToKeycodes(xu, keysym) {
		if mask := keybind.ModGet(xu, keycode); mask != 0 {
			return mask
		}
	}
	return 0
}
