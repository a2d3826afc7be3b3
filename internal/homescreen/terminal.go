package homescreen

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/1broseidon/taskpanel/internal/config"
	"github.com/1broseidon/taskpanel/internal/displayenv"
)

// signalBus is the part of a session-bus connection the terminal listener uses.
type signalBus interface {
	AddMatchSignal(options ...dbus.MatchOption) error
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

var (
	connectSessionBus = func() (signalBus, error) { return dbus.ConnectSessionBus() }
	startCommand      = func(cmd *exec.Cmd) error { return cmd.Start() }
)

// HomeScreen is the task panel's home-screen sibling.
type HomeScreen struct {
	Root *Item

	mu     sync.Mutex
	cfg    *config.Config
	logger *slog.Logger
}

// New creates a home screen with an empty item tree.
func New(cfg *config.Config, logger *slog.Logger) *HomeScreen {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return &HomeScreen{Root: NewItem("root"), cfg: cfg, logger: logger}
}

// HasConfigurationInterface reports that the home screen offers a settings surface.
func (h *HomeScreen) HasConfigurationInterface() bool { return true }

// SetConfig swaps the configuration used by later terminal launches.
func (h *HomeScreen) SetConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
}

func (h *HomeScreen) current() *config.Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cfg
}

// OpenTerminal starts the configured terminal detached from the daemon.
func (h *HomeScreen) OpenTerminal() error {
	cfg := h.current()
	argv, err := cfg.TerminalArgv()
	if err != nil {
		return err
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := displayenv.Apply(cmd, cfg.Display, cfg.XAuthority); err != nil {
		return err
	}
	if err := startCommand(cmd); err != nil {
		return fmt.Errorf("failed to start %s: %w", argv[0], err)
	}
	if cmd.Process != nil {
		go func() { _ = cmd.Wait() }()
	}
	h.logger.Info("terminal launched", "command", argv[0])
	return nil
}

// ListenTerminalSignal opens a terminal each time the configured session-bus signal
// arrives, until ctx is done. It returns nil immediately when the terminal is disabled.
func (h *HomeScreen) ListenTerminalSignal(ctx context.Context) error {
	sig := h.current().Terminal
	if !sig.Enabled {
		return nil
	}

	bus, err := connectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer bus.Close()

	if err := bus.AddMatchSignal(
		dbus.WithMatchObjectPath(dbus.ObjectPath(sig.Signal.Path)),
		dbus.WithMatchInterface(sig.Signal.Interface),
		dbus.WithMatchMember(sig.Signal.Member),
	); err != nil {
		return fmt.Errorf("failed to subscribe to %s.%s: %w", sig.Signal.Interface, sig.Signal.Member, err)
	}

	ch := make(chan *dbus.Signal, 8)
	bus.Signal(ch)
	defer bus.RemoveSignal(ch)

	h.logger.Debug("listening for terminal signal",
		"path", sig.Signal.Path, "interface", sig.Signal.Interface, "member", sig.Signal.Member)

	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-ch:
			if !ok {
				return nil
			}
			if !matchesTerminalSignal(s, sig.Signal) {
				continue
			}
			if err := h.OpenTerminal(); err != nil {
				h.logger.Warn("failed to open terminal", "error", err)
			}
		}
	}
}

func matchesTerminalSignal(s *dbus.Signal, want config.SignalConfig) bool {
	if s == nil {
		return false
	}
	return string(s.Path) == want.Path && s.Name == want.Interface+"."+want.Member
}
