package gallery

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// Store publishes the current gallery to concurrent readers. Replacing the
// gallery swaps a pointer to a fully built value, so readers see either the
// old or the new gallery and never a mix.
type Store struct {
	current atomic.Pointer[Gallery]
}

// NewStore returns a Store holding g.
func NewStore(g *Gallery) *Store {
	s := &Store{}
	s.current.Store(g)
	return s
}

// Current returns the published gallery.
func (s *Store) Current() *Gallery {
	return s.current.Load()
}

// Swap publishes g and returns the previous gallery.
func (s *Store) Swap(g *Gallery) *Gallery {
	return s.current.Swap(g)
}

// Reload loads a fresh gallery from src and publishes it. On failure the
// current gallery stays in place.
func (s *Store) Reload(ctx context.Context, src Source, logger *zap.Logger) error {
	g, err := src.Load(ctx)
	if err != nil {
		logger.Error("gallery reload failed, keeping previous gallery",
			zap.String("source", src.Describe()), zap.Error(err))
		return err
	}
	prev := s.Swap(g)
	logger.Info("gallery reloaded",
		zap.String("source", src.Describe()),
		zap.Int("signatures", g.Len()),
		zap.String("version", g.Version()),
		zap.String("previous_version", prev.Version()))
	return nil
}
