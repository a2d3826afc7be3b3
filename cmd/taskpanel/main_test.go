package main

import (
	"strings"
	"testing"

	"github.com/1broseidon/taskpanel/internal/ipc"
	"github.com/1broseidon/taskpanel/internal/taskpanel"
	"github.com/1broseidon/taskpanel/internal/tracker"
)

func TestParseShowDesktopMode(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"on", ipc.ModeOn, false},
		{"TRUE", ipc.ModeOn, false},
		{"off", ipc.ModeOff, false},
		{"0", ipc.ModeOff, false},
		{" toggle ", ipc.ModeToggle, false},
		{"maybe", "", true},
	}
	for _, tt := range tests {
		got, err := parseShowDesktopMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseShowDesktopMode(%q) = %q, %v, want %q (err=%v)", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestParseWindowID(t *testing.T) {
	tests := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"0", 0, false},
		{"48234497", 48234497, false},
		{"0x2e00001", 0x2e00001, false},
		{"0x1ffffffff", 0, true},
		{"panel", 0, true},
	}
	for _, tt := range tests {
		got, err := parseWindowID(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("parseWindowID(%q) = %d, %v, want %d (err=%v)", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestFormatStatus(t *testing.T) {
	st := &ipc.StatusData{
		Status: taskpanel.Status{
			Connected:     true,
			Capabilities:  []taskpanel.Capability{{Interface: "window_management", Name: 1, Version: 1}},
			State:         tracker.State{AllMinimized: true},
			Panel:         0x2e00001,
			PanelExcluded: true,
		},
		DaemonRunning: true,
	}
	out := formatStatus(st)
	for _, want := range []string{
		"capabilities:            window_management v1",
		"all_minimized:           true",
		"active_window_app_id:    -",
		"panel:                   0x2e00001 (excluded)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("formatStatus() missing %q:\n%s", want, out)
		}
	}

	line := stateLine(st)
	if !strings.Contains(line, "all_minimized=true") || !strings.Contains(line, "app=-") {
		t.Errorf("stateLine() = %q", line)
	}
}

func TestParseLogLevel(t *testing.T) {
	if parseLogLevel("debug").String() != "DEBUG" || parseLogLevel("bogus").String() != "INFO" {
		t.Fatal("unexpected log level mapping")
	}
}
