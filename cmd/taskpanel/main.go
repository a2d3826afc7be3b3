package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/1broseidon/taskpanel/internal/config"
	"github.com/1broseidon/taskpanel/internal/ipc"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "daemon":
		os.Exit(runDaemon(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "watch":
		os.Exit(runWatch(os.Args[2:]))
	case "show-desktop":
		os.Exit(runShowDesktop(os.Args[2:]))
	case "close-active":
		os.Exit(runCloseActive(os.Args[2:]))
	case "panel":
		os.Exit(runPanel(os.Args[2:]))
	case "reload":
		os.Exit(runReload(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "mcp":
		os.Exit(runMCP(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: taskpanel <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon                     Start the taskpanel daemon (foreground)")
	fmt.Fprintln(w, "  status [--json]            Show panel state")
	fmt.Fprintln(w, "  watch [--interval D]       Print panel state whenever it changes")
	fmt.Fprintln(w, "  show-desktop on|off|toggle Request showing the desktop")
	fmt.Fprintln(w, "  close-active               Close the active window")
	fmt.Fprintln(w, "  panel set <window-id>      Bind the panel window (0 clears)")
	fmt.Fprintln(w, "  reload                     Reload the daemon configuration")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate            Validate configuration")
	fmt.Fprintln(w, "  config print               Print configuration")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  mcp serve                  Start MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'taskpanel <command> --help' for command-specific options.")
}

func isHelp(args []string) bool {
	return len(args) > 0 && (args[0] == "help" || args[0] == "-h" || args[0] == "--help")
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Print JSON (default when stdout is not a terminal)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: taskpanel status [--json]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Show panel state via IPC.")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "status takes no arguments")
		fs.Usage()
		return 2
	}

	status, err := ipc.NewClient().GetStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON || !term.IsTerminal(int(os.Stdout.Fd())) {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}
	fmt.Print(formatStatus(status))
	return 0
}

func formatStatus(st *ipc.StatusData) string {
	var b strings.Builder
	caps := make([]string, 0, len(st.Capabilities))
	for _, c := range st.Capabilities {
		caps = append(caps, fmt.Sprintf("%s v%d", c.Interface, c.Version))
	}
	capText := strings.Join(caps, ", ")
	if capText == "" {
		capText = "none"
	}
	panel := "none"
	if st.Panel != 0 {
		panel = fmt.Sprintf("0x%x", st.Panel)
		if st.PanelExcluded {
			panel += " (excluded)"
		}
	}
	app := st.State.ActiveWindowAppID
	if app == "" {
		app = "-"
	}

	fmt.Fprintf(&b, "daemon_running:          %v\n", st.DaemonRunning)
	fmt.Fprintf(&b, "connected:               %v\n", st.Connected)
	fmt.Fprintf(&b, "capabilities:            %s\n", capText)
	fmt.Fprintf(&b, "showing_desktop:         %v\n", st.State.ShowingDesktop)
	fmt.Fprintf(&b, "all_minimized:           %v\n", st.State.AllMinimized)
	fmt.Fprintf(&b, "closeable_active_window: %v\n", st.State.HasCloseableActiveWindow)
	fmt.Fprintf(&b, "active_window_app_id:    %s\n", app)
	fmt.Fprintf(&b, "windows:                 %d\n", st.Windows)
	fmt.Fprintf(&b, "panel:                   %s\n", panel)
	fmt.Fprintf(&b, "debounce_interval:       %s\n", st.DebounceInterval)
	fmt.Fprintf(&b, "uptime_seconds:          %d\n", st.UptimeSeconds)
	return b.String()
}

// stateLine is the one-line form used by watch.
func stateLine(st *ipc.StatusData) string {
	app := st.State.ActiveWindowAppID
	if app == "" {
		app = "-"
	}
	return fmt.Sprintf("showing_desktop=%v all_minimized=%v closeable=%v app=%s windows=%d panel=%d",
		st.State.ShowingDesktop, st.State.AllMinimized, st.State.HasCloseableActiveWindow, app, st.Windows, st.Panel)
}

func runWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	interval := fs.Duration("interval", 500*time.Millisecond, "Polling interval")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if *interval <= 0 {
		fmt.Fprintln(os.Stderr, "--interval must be positive")
		return 2
	}

	client := ipc.NewClient()
	stamp := term.IsTerminal(int(os.Stdout.Fd()))
	last := ""
	for {
		st, err := client.GetStatus()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if line := stateLine(st); line != last {
			if stamp {
				fmt.Printf("%s  %s\n", time.Now().Format("15:04:05"), line)
			} else {
				fmt.Println(line)
			}
			last = line
		}
		time.Sleep(*interval)
	}
}

func parseShowDesktopMode(arg string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(arg)) {
	case "on", "true", "1":
		return ipc.ModeOn, nil
	case "off", "false", "0":
		return ipc.ModeOff, nil
	case "toggle":
		return ipc.ModeToggle, nil
	}
	return "", fmt.Errorf("expected on, off or toggle, got %q", arg)
}

func runShowDesktop(args []string) int {
	if isHelp(args) {
		fmt.Fprintln(os.Stdout, "Usage: taskpanel show-desktop on|off|toggle")
		return 0
	}
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: taskpanel show-desktop on|off|toggle")
		return 2
	}
	mode, err := parseShowDesktopMode(args[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	requested, err := ipc.NewClient().SetShowingDesktop(mode)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("showing_desktop requested: %v\n", requested)
	return 0
}

func runCloseActive(args []string) int {
	if isHelp(args) {
		fmt.Fprintln(os.Stdout, "Usage: taskpanel close-active")
		return 0
	}
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "close-active takes no arguments")
		return 2
	}
	if err := ipc.NewClient().CloseActiveWindow(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

// parseWindowID accepts decimal or 0x-prefixed hex, as printed by xprop and xwininfo.
func parseWindowID(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid window id %q", s)
	}
	return uint32(v), nil
}

func runPanel(args []string) int {
	usage := func(w io.Writer) {
		fmt.Fprintln(w, "Usage: taskpanel panel set <window-id>")
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Window ids may be decimal or 0x-prefixed hex. 0 clears the panel.")
	}
	if isHelp(args) {
		usage(os.Stdout)
		return 0
	}
	if len(args) != 2 || args[0] != "set" {
		usage(os.Stderr)
		return 2
	}
	id, err := parseWindowID(args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if err := ipc.NewClient().SetPanel(id); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func runReload(args []string) int {
	if len(args) != 0 {
		fmt.Fprintln(os.Stderr, "Usage: taskpanel reload")
		return 2
	}
	if err := ipc.NewClient().Reload(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println("config reloaded")
	return 0
}

func runConfig(args []string) int {
	if len(args) == 0 || isHelp(args) {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  taskpanel config validate [--path PATH]")
		fmt.Fprintln(os.Stderr, "  taskpanel config print [--path PATH] [--defaults]")
		return 2
	}

	switch args[0] {
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/taskpanel/config.yaml)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}

		res, err := loadConfig(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if res.File == "" {
			fmt.Println("config: ok (no file, using defaults)")
			return 0
		}
		fmt.Printf("config: ok (%s)\n", res.File)
		return 0

	case "print":
		fs := flag.NewFlagSet("print", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/taskpanel/config.yaml)")
		printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}

		cfg := config.DefaultConfig()
		if !*printDefaults {
			res, err := loadConfig(*path)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
			cfg = res.Config
		}
		if argv, err := cfg.TerminalArgv(); err == nil {
			fmt.Printf("# resolved_terminal: %s\n", strings.Join(argv, " "))
		}
		data, err := cfg.Marshal()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Print(string(data))
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func loadConfig(path string) (*config.LoadResult, error) {
	if path == "" {
		return config.LoadWithSources()
	}
	return config.LoadFromPath(path)
}
