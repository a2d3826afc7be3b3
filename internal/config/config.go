package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a Go duration string ("250ms", "5s").
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a string like \"250ms\"")
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// PanelConfig configures how the daemon finds the panel window.
type PanelConfig struct {
	// Title is the window title the panel locator searches for. Empty disables the locator.
	Title string `yaml:"title"`
	// ReconcileInterval is how often the locator re-resolves the panel (0 = only at startup).
	ReconcileInterval Duration `yaml:"reconcile_interval"`
}

// HotkeyConfig holds optional global key bindings in xgbutil keybind syntax.
type HotkeyConfig struct {
	ShowDesktop string `yaml:"show_desktop,omitempty"`
	CloseActive string `yaml:"close_active,omitempty"`
}

// SignalConfig identifies the session-bus signal that opens a terminal.
type SignalConfig struct {
	Path      string `yaml:"path"`
	Interface string `yaml:"interface"`
	Member    string `yaml:"member"`
}

// TerminalConfig configures the home screen's "open terminal" request.
type TerminalConfig struct {
	Enabled bool `yaml:"enabled"`
	// Command is the terminal command line. Empty means auto-detect.
	Command string       `yaml:"command,omitempty"`
	Signal  SignalConfig `yaml:"signal"`
}

// Config is the taskpanel configuration.
type Config struct {
	Display          string         `yaml:"display,omitempty"`
	XAuthority       string         `yaml:"xauthority,omitempty"`
	LogLevel         string         `yaml:"log_level"`
	DebounceInterval Duration       `yaml:"debounce_interval"`
	Panel            PanelConfig    `yaml:"panel"`
	Hotkeys          HotkeyConfig   `yaml:"hotkeys"`
	Terminal         TerminalConfig `yaml:"terminal"`
}

const (
	DefaultDebounceInterval  = 250 * time.Millisecond
	DefaultReconcileInterval = 5 * time.Second
	DefaultPanelTitle        = "taskpanel"

	DefaultSignalPath      = "/org/jingos/konsole"
	DefaultSignalInterface = "org.jingos.konsole"
	DefaultSignalMember    = "konsole"

	maxDebounceInterval = 10 * time.Second
)

func DefaultConfig() *Config {
	return &Config{
		LogLevel:         "info",
		DebounceInterval: Duration(DefaultDebounceInterval),
		Panel: PanelConfig{
			Title:             DefaultPanelTitle,
			ReconcileInterval: Duration(DefaultReconcileInterval),
		},
		Hotkeys: HotkeyConfig{
			ShowDesktop: "Mod4-d",
		},
		Terminal: TerminalConfig{
			Enabled: true,
			Signal: SignalConfig{
				Path:      DefaultSignalPath,
				Interface: DefaultSignalInterface,
				Member:    DefaultSignalMember,
			},
		},
	}
}

// ValidationError points at the offending config key and, when known, its file position.
type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error { return e.Err }

func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return &ValidationError{Path: "log_level", Err: fmt.Errorf("log_level must be one of: debug, info, warn, error")}
	}
	if d := c.DebounceInterval.Std(); d <= 0 || d > maxDebounceInterval {
		return &ValidationError{Path: "debounce_interval", Err: fmt.Errorf("debounce_interval must be > 0 and <= %s", maxDebounceInterval)}
	}
	if c.Panel.ReconcileInterval < 0 {
		return &ValidationError{Path: "panel.reconcile_interval", Err: fmt.Errorf("reconcile_interval must be >= 0")}
	}
	for path, key := range map[string]string{
		"hotkeys.show_desktop": c.Hotkeys.ShowDesktop,
		"hotkeys.close_active": c.Hotkeys.CloseActive,
	} {
		if key != "" && strings.TrimSpace(key) != key {
			return &ValidationError{Path: path, Err: fmt.Errorf("hotkey must not have surrounding whitespace")}
		}
	}
	if c.Hotkeys.ShowDesktop != "" && c.Hotkeys.ShowDesktop == c.Hotkeys.CloseActive {
		return &ValidationError{Path: "hotkeys.close_active", Err: fmt.Errorf("close_active must differ from show_desktop")}
	}
	if c.Terminal.Enabled {
		sig := c.Terminal.Signal
		if !strings.HasPrefix(sig.Path, "/") {
			return &ValidationError{Path: "terminal.signal.path", Err: fmt.Errorf("signal path must be an absolute object path")}
		}
		if !strings.Contains(sig.Interface, ".") {
			return &ValidationError{Path: "terminal.signal.interface", Err: fmt.Errorf("signal interface must be a dotted name")}
		}
		if strings.TrimSpace(sig.Member) == "" {
			return &ValidationError{Path: "terminal.signal.member", Err: fmt.Errorf("signal member is required")}
		}
	}
	return nil
}

// Save writes the configuration to the standard location.
func (c *Config) Save() error {
	path, err := DefaultConfigPath()
	if err != nil {
		return err
	}
	return c.SaveTo(path)
}

// SaveTo writes the configuration to path. Comments in an existing file are not preserved.
func (c *Config) SaveTo(path string) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
