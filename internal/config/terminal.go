package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

var (
	execLookPath         = exec.LookPath
	execCommandOutput    = func(name string, args ...string) ([]byte, error) { return exec.Command(name, args...).Output() }
	evalSymlinks         = filepath.EvalSymlinks
	detectSystemTerminal = defaultDetectSystemTerminal
)

// knownTerminals are probed on PATH, in order, when nothing else names a terminal.
var knownTerminals = []string{"konsole", "kitty", "ghostty", "wezterm", "alacritty", "gnome-terminal", "xterm"}

// TerminalArgv returns the command used to open a terminal. An explicit terminal.command
// wins; otherwise $TERMINAL, the desktop's default terminal and finally PATH are consulted.
func (c *Config) TerminalArgv() ([]string, error) {
	if c != nil {
		if cmd := strings.TrimSpace(c.Terminal.Command); cmd != "" {
			argv := splitCommand(cmd)
			if len(argv) == 0 {
				return nil, fmt.Errorf("terminal.command produced an empty command")
			}
			return argv, nil
		}
	}

	if env := normalizeTerminalRef(os.Getenv("TERMINAL")); env != "" {
		if _, err := execLookPath(env); err == nil {
			return []string{env}, nil
		}
	}
	if sys := normalizeTerminalRef(detectSystemTerminal()); sys != "" {
		if _, err := execLookPath(sys); err == nil {
			return []string{sys}, nil
		}
	}
	for _, exe := range knownTerminals {
		if _, err := execLookPath(exe); err == nil {
			return []string{exe}, nil
		}
	}
	return nil, fmt.Errorf("no terminal found; set terminal.command")
}

// splitCommand splits a command line on whitespace, honouring single and double quotes.
func splitCommand(s string) []string {
	var out []string
	var cur strings.Builder
	var quote rune
	inToken := false
	for _, r := range s {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inToken = true
		case r == ' ' || r == '\t' || r == '\n':
			if inToken {
				out = append(out, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if inToken {
		out = append(out, cur.String())
	}
	return out
}

func normalizeTerminalRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	ref = strings.Trim(ref, "\"'")
	if fields := strings.Fields(ref); len(fields) > 0 {
		ref = fields[0]
	}
	ref = strings.Trim(ref, "\"'")

	if strings.Contains(ref, "/") {
		ref = filepath.Base(ref)
	}
	ref = strings.TrimSuffix(strings.TrimSpace(ref), ".desktop")

	// org.kde.konsole -> konsole
	if strings.Count(ref, ".") >= 2 {
		ref = ref[strings.LastIndex(ref, ".")+1:]
	}
	if ref == "x-terminal-emulator" {
		if resolved := resolveXTerminalEmulator(); resolved != "" {
			ref = resolved
		}
	}
	ref = strings.TrimSuffix(ref, ".wrapper")

	return strings.TrimSpace(ref)
}

func resolveXTerminalEmulator() string {
	path, err := execLookPath("x-terminal-emulator")
	if err != nil {
		return ""
	}
	resolved, err := evalSymlinks(path)
	if err == nil && resolved != "" {
		return filepath.Base(resolved)
	}
	return filepath.Base(path)
}

func defaultDetectSystemTerminal() string {
	kread := "kreadconfig5"
	if _, err := execLookPath(kread); err != nil {
		if _, err := execLookPath("kreadconfig6"); err == nil {
			kread = "kreadconfig6"
		}
	}
	out, err := execCommandOutput(kread, "--group", "General", "--key", "TerminalApplication")
	if err == nil {
		if term := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(out)), "\"'")); term != "" {
			return term
		}
	}

	if resolved := resolveXTerminalEmulator(); resolved != "" && resolved != "x-terminal-emulator" {
		return resolved
	}

	out, err = execCommandOutput("gsettings", "get",
		"org.gnome.desktop.default-applications.terminal", "exec")
	if err == nil {
		term := strings.TrimSpace(strings.Trim(strings.TrimSpace(string(out)), "\"'"))
		if term != "" && term != "''" {
			return term
		}
	}
	return ""
}
