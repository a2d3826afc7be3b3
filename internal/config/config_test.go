package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	if cfg.DebounceInterval.Std() != 250*time.Millisecond {
		t.Fatalf("DebounceInterval = %s, want 250ms", cfg.DebounceInterval)
	}
	if cfg.Terminal.Signal.Path != "/org/jingos/konsole" || cfg.Terminal.Signal.Interface != "org.jingos.konsole" || cfg.Terminal.Signal.Member != "konsole" {
		t.Fatalf("unexpected default signal: %+v", cfg.Terminal.Signal)
	}
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	res, err := LoadFromPath(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.File != "" {
		t.Fatalf("File = %q, want empty", res.File)
	}
	if !reflect.DeepEqual(res.Config, DefaultConfig()) {
		t.Fatalf("config = %+v, want defaults", res.Config)
	}
}

func TestLoadFromPath_EmptyFileUsesDefaults(t *testing.T) {
	res, err := LoadFromPath(writeConfig(t, "# empty\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.Panel.Title != DefaultPanelTitle {
		t.Fatalf("panel.title = %q, want %q", res.Config.Panel.Title, DefaultPanelTitle)
	}
}

func TestLoadFromPath_Overrides(t *testing.T) {
	path := writeConfig(t, strings.Join([]string{
		`display: ":1"`,
		`log_level: debug`,
		`debounce_interval: 400ms`,
		`panel:`,
		`  title: "Plasma Panel"`,
		`  reconcile_interval: 0s`,
		`hotkeys:`,
		`  close_active: Mod1-F4`,
		`terminal:`,
		`  enabled: true`,
		`  command: "konsole --workdir '/home/me/My Files'"`,
		`  signal:`,
		`    path: /org/example/term`,
		`    interface: org.example.term`,
		`    member: open`,
		``,
	}, "\n"))

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := res.Config
	if cfg.Display != ":1" || cfg.LogLevel != "debug" {
		t.Fatalf("display/log_level = %q/%q", cfg.Display, cfg.LogLevel)
	}
	if cfg.DebounceInterval.Std() != 400*time.Millisecond {
		t.Fatalf("debounce_interval = %s, want 400ms", cfg.DebounceInterval)
	}
	if cfg.Panel.Title != "Plasma Panel" || cfg.Panel.ReconcileInterval != 0 {
		t.Fatalf("panel = %+v", cfg.Panel)
	}
	// Unset keys keep their defaults.
	if cfg.Hotkeys.ShowDesktop != "Mod4-d" || cfg.Hotkeys.CloseActive != "Mod1-F4" {
		t.Fatalf("hotkeys = %+v", cfg.Hotkeys)
	}
	if cfg.Terminal.Signal.Member != "open" {
		t.Fatalf("terminal.signal = %+v", cfg.Terminal.Signal)
	}

	argv, err := cfg.TerminalArgv()
	if err != nil {
		t.Fatalf("TerminalArgv() error: %v", err)
	}
	want := []string{"konsole", "--workdir", "/home/me/My Files"}
	if !reflect.DeepEqual(argv, want) {
		t.Fatalf("TerminalArgv() = %q, want %q", argv, want)
	}
}

func TestLoadFromPath_UnknownKeyRejected(t *testing.T) {
	_, err := LoadFromPath(writeConfig(t, "debounce: 1s\n"))
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadFromPath_ValidationErrorHasSource(t *testing.T) {
	path := writeConfig(t, "log_level: info\ndebounce_interval: 0s\n")
	_, err := LoadFromPath(path)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *ValidationError", err)
	}
	if verr.Path != "debounce_interval" {
		t.Fatalf("Path = %q, want debounce_interval", verr.Path)
	}
	if verr.Source.Line != 2 {
		t.Fatalf("Source.Line = %d, want 2", verr.Source.Line)
	}
	if !strings.Contains(err.Error(), ":2:") {
		t.Fatalf("Error() = %q, want file position", err.Error())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"debounce too long", func(c *Config) { c.DebounceInterval = Duration(time.Minute) }, "debounce_interval"},
		{"negative reconcile", func(c *Config) { c.Panel.ReconcileInterval = Duration(-time.Second) }, "panel.reconcile_interval"},
		{"duplicate hotkeys", func(c *Config) { c.Hotkeys.CloseActive = c.Hotkeys.ShowDesktop }, "hotkeys.close_active"},
		{"relative signal path", func(c *Config) { c.Terminal.Signal.Path = "org/jingos" }, "terminal.signal.path"},
		{"bad interface", func(c *Config) { c.Terminal.Signal.Interface = "konsole" }, "terminal.signal.interface"},
		{"empty member", func(c *Config) { c.Terminal.Signal.Member = " " }, "terminal.signal.member"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Path != tt.path {
				t.Fatalf("Validate() = %v, want error at %s", err, tt.path)
			}
		})
	}

	cfg := DefaultConfig()
	cfg.Terminal.Enabled = false
	cfg.Terminal.Signal = SignalConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled terminal should skip signal checks, got %v", err)
	}
}

func TestSaveTo_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.DebounceInterval = Duration(300 * time.Millisecond)
	cfg.Panel.Title = "Dock"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "debounce_interval: 300ms") {
		t.Fatalf("saved yaml missing duration string:\n%s", data)
	}

	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(res.Config, cfg) {
		t.Fatalf("loaded %+v, want %+v", res.Config, cfg)
	}
}

func TestTerminalArgv_Detection(t *testing.T) {
	origLookPath := execLookPath
	origDetect := detectSystemTerminal
	t.Cleanup(func() {
		execLookPath = origLookPath
		detectSystemTerminal = origDetect
	})

	available := map[string]bool{}
	execLookPath = func(name string) (string, error) {
		if available[name] {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}
	detectSystemTerminal = func() string { return "org.kde.konsole.desktop" }

	cfg := DefaultConfig()

	t.Setenv("TERMINAL", "/usr/bin/kitty")
	available["kitty"] = true
	available["konsole"] = true
	if argv, err := cfg.TerminalArgv(); err != nil || argv[0] != "kitty" {
		t.Fatalf("TerminalArgv() = %v, %v, want kitty from $TERMINAL", argv, err)
	}

	t.Setenv("TERMINAL", "")
	if argv, err := cfg.TerminalArgv(); err != nil || argv[0] != "konsole" {
		t.Fatalf("TerminalArgv() = %v, %v, want konsole from desktop default", argv, err)
	}

	detectSystemTerminal = func() string { return "" }
	available = map[string]bool{"xterm": true}
	if argv, err := cfg.TerminalArgv(); err != nil || argv[0] != "xterm" {
		t.Fatalf("TerminalArgv() = %v, %v, want xterm from PATH", argv, err)
	}

	available = map[string]bool{}
	if _, err := cfg.TerminalArgv(); err == nil {
		t.Fatal("TerminalArgv() succeeded with nothing installed")
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"konsole", []string{"konsole"}},
		{"  kitty   --single-instance ", []string{"kitty", "--single-instance"}},
		{`sh -c "echo hi"`, []string{"sh", "-c", "echo hi"}},
		{`a '' b`, []string{"a", "", "b"}},
		{"", nil},
	}
	for _, tt := range tests {
		if got := splitCommand(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitCommand(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
