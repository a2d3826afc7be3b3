package daemon

import (
	"context"
	"log/slog"
	"sync"

	"github.com/1broseidon/taskpanel/internal/compositor"
)

// PanelSetter is the containment side of the panel binding.
type PanelSetter interface {
	SetPanelSurface(ctx context.Context, s compositor.Surface) error
}

// PanelSynchronizer forwards panel window changes to the containment, skipping repeats.
type PanelSynchronizer struct {
	target PanelSetter
	logger *slog.Logger

	mu      sync.Mutex
	current uint32
}

// NewPanelSynchronizer creates a new panel synchronizer.
func NewPanelSynchronizer(target PanelSetter, logger *slog.Logger) *PanelSynchronizer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PanelSynchronizer{target: target, logger: logger}
}

// Current returns the last window forwarded, or 0.
func (s *PanelSynchronizer) Current() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Apply binds the panel to id. Zero clears the binding. It reports whether anything was
// forwarded.
func (s *PanelSynchronizer) Apply(ctx context.Context, id uint32) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == s.current {
		return false, nil
	}
	if err := s.target.SetPanelSurface(ctx, compositor.Surface(id)); err != nil {
		return false, err
	}

	if id == 0 {
		s.logger.Info("panel window gone", "window_id", s.current)
	} else {
		s.logger.Info("panel window bound", "window_id", id, "previous", s.current)
	}
	s.current = id
	return true, nil
}
