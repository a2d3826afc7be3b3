package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// WindowFinder resolves the panel window by title. It returns 0 and no error when no
// window matches.
type WindowFinder func(title string) (uint32, error)

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	// Interval between passes. Zero runs a single pass at startup.
	Interval time.Duration
	Title    string
	Logger   *slog.Logger
}

// Reconciler periodically re-resolves the panel window and rebinds it when it has been
// replaced or has gone away.
type Reconciler struct {
	interval time.Duration
	sync     *PanelSynchronizer
	find     WindowFinder
	logger   *slog.Logger

	mu    sync.Mutex
	title string
}

// NewReconciler creates a new reconciler with the given configuration.
func NewReconciler(cfg ReconcilerConfig, sync *PanelSynchronizer, find WindowFinder) *Reconciler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	interval := cfg.Interval
	if interval < 0 {
		interval = 0
	}

	return &Reconciler{
		interval: interval,
		sync:     sync,
		find:     find,
		logger:   logger,
		title:    cfg.Title,
	}
}

// SetTitle changes the title searched for on the next pass.
func (r *Reconciler) SetTitle(title string) {
	r.mu.Lock()
	r.title = title
	r.mu.Unlock()
}

func (r *Reconciler) currentTitle() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.title
}

// Run reconciles once and then on every tick. Blocks until context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.reconcile(ctx)

	if r.interval == 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("panel locator started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("panel locator stopped")
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// reconcile performs a single pass.
func (r *Reconciler) reconcile(ctx context.Context) {
	// Recover from panics to prevent crashing the daemon
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("panel locator panic recovered", "error", err)
		}
	}()

	title := r.currentTitle()
	if title == "" {
		return
	}

	id, err := r.find(title)
	if err != nil {
		// Keep the current binding; the next pass retries.
		r.logger.Debug("panel locator: lookup failed", "title", title, "error", err)
		return
	}

	if _, err := r.sync.Apply(ctx, id); err != nil {
		r.logger.Warn("panel locator: failed to bind panel", "window_id", id, "error", err)
	}
}

// ReconcileNow triggers an immediate reconciliation pass.
func (r *Reconciler) ReconcileNow(ctx context.Context) {
	r.reconcile(ctx)
}
