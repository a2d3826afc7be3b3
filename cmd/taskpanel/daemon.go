package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/1broseidon/taskpanel/internal/compositor"
	"github.com/1broseidon/taskpanel/internal/config"
	"github.com/1broseidon/taskpanel/internal/daemon"
	"github.com/1broseidon/taskpanel/internal/displayenv"
	"github.com/1broseidon/taskpanel/internal/eventloop"
	"github.com/1broseidon/taskpanel/internal/homescreen"
	"github.com/1broseidon/taskpanel/internal/hotkeys"
	"github.com/1broseidon/taskpanel/internal/ipc"
	"github.com/1broseidon/taskpanel/internal/taskpanel"
	"github.com/1broseidon/taskpanel/internal/x11"
)

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runDaemon(args []string) int {
	if isHelp(args) {
		fmt.Fprintln(os.Stdout, "Usage: taskpanel daemon")
		return 0
	}
	if len(args) > 0 {
		fmt.Fprintln(os.Stderr, "daemon takes no arguments")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Usage: taskpanel daemon")
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(parseLogLevel(cfg.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := eventloop.New()
	var xconn *x11.Compositor
	// A missing display is reported as (nil, nil) so the containment stays on its defaults.
	dial := func(ctx context.Context) (compositor.Conn, error) {
		env, err := displayenv.Resolve(os.Environ(), cfg.Display, cfg.XAuthority)
		if err != nil {
			logger.Warn("no X display available", "error", err)
			return nil, nil
		}
		if env.XAuthority != "" && os.Getenv("XAUTHORITY") == "" {
			os.Setenv("XAUTHORITY", env.XAuthority)
		}
		conn, err := x11.NewConnectionDisplay(env.Display)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to display %s: %w", env.Display, err)
		}
		xconn = x11.NewCompositor(conn, logger.With("component", "x11"))
		return xconn, nil
	}

	containment := taskpanel.New(loop, taskpanel.Options{
		Dial:             dial,
		DebounceInterval: cfg.DebounceInterval.Std(),
		Logger:           logger,
	})
	if err := containment.Connect(ctx); err != nil {
		// Connection failures degrade to the defaults, like an unsupported display.
		logger.Error("failed to connect to compositor", "error", err)
	}
	if !containment.Connected() {
		// Discovery failed and the session already closed the connection.
		xconn = nil
	}
	logger.Info("taskpanel daemon started", "connected", containment.Connected())

	// Hotkeys share the compositor's X connection.
	var hotkeyHandler *hotkeys.Handler
	if xconn != nil {
		hotkeyHandler = hotkeys.NewHandler(xconn.Connection().XUtil, containment, logger.With("component", "hotkeys"))
		if err := hotkeyHandler.RegisterConfig(cfg.Hotkeys); err != nil {
			logger.Warn("failed to register hotkeys", "error", err)
		}
	}

	// Panel locator.
	var reconciler *daemon.Reconciler
	if xconn != nil {
		finder := func(title string) (uint32, error) {
			id, err := xconn.Connection().FindWindowByTitle(title)
			if errors.Is(err, x11.ErrWindowNotFound) {
				return 0, nil
			}
			return id, err
		}
		reconciler = daemon.NewReconciler(daemon.ReconcilerConfig{
			Interval: cfg.Panel.ReconcileInterval.Std(),
			Title:    cfg.Panel.Title,
			Logger:   logger.With("component", "locator"),
		}, daemon.NewPanelSynchronizer(containment, logger.With("component", "locator")), finder)
		go reconciler.Run(ctx)
	}

	// Home screen terminal request.
	home := homescreen.New(cfg, logger.With("component", "homescreen"))
	go func() {
		if err := home.ListenTerminalSignal(ctx); err != nil {
			logger.Warn("terminal signal listener stopped", "error", err)
		}
	}()

	var cfgMu sync.Mutex
	reload := func() error {
		newCfg, err := config.Load()
		if err != nil {
			return err
		}
		cfgMu.Lock()
		hotkeysChanged := newCfg.Hotkeys != cfg.Hotkeys
		cfg = newCfg
		cfgMu.Unlock()

		level.Set(parseLogLevel(newCfg.LogLevel))
		if err := containment.UpdateDebounceInterval(ctx, newCfg.DebounceInterval.Std()); err != nil {
			return err
		}
		if reconciler != nil {
			reconciler.SetTitle(newCfg.Panel.Title)
			reconciler.ReconcileNow(ctx)
		}
		home.SetConfig(newCfg)
		if hotkeysChanged && hotkeyHandler != nil {
			hotkeyHandler.Unregister()
			if err := hotkeyHandler.RegisterConfig(newCfg.Hotkeys); err != nil {
				logger.Warn("failed to register hotkeys", "error", err)
			}
		}
		logger.Info("config reloaded")
		return nil
	}

	ipcServer, err := ipc.NewServer(containment, reload, logger.With("component", "ipc"))
	if err != nil {
		logger.Error("failed to create IPC server", "error", err)
		return 1
	}
	if err := ipcServer.Start(); err != nil {
		logger.Error("failed to start IPC server", "error", err)
		return 1
	}
	defer ipcServer.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				switch sig {
				case syscall.SIGHUP:
					logger.Info("received SIGHUP, reloading config")
					if err := reload(); err != nil {
						logger.Warn("config reload failed", "error", err)
					}
				default:
					logger.Info("shutting down taskpanel daemon")
					cancel()
					return
				}
			}
		}
	}()

	if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("event loop stopped", "error", err)
	}

	if hotkeyHandler != nil {
		hotkeyHandler.Unregister()
	}
	// The loop has stopped, so the containment is closed from this goroutine.
	if err := containment.Close(); err != nil {
		logger.Warn("failed to close compositor session", "error", err)
	}
	return 0
}
