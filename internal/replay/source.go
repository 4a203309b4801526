package replay

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/DoyleJ11/gridiron-viewer/internal/store"
	"github.com/DoyleJ11/gridiron-viewer/pkg/types"
)

type Archive interface {
	LoadTicks(ctx context.Context, gameID, playID string) ([]types.Tick, error)
	SaveTicks(ctx context.Context, gameID, playID string, ticks []types.Tick) error
}

// CachedSource serves archived sequences and archives fresh ones fetched from
// Upstream. Archive failures are logged and never fail a fetch.
type CachedSource struct {
	Archive  Archive
	Upstream Source
	Logger   *zap.Logger
}

func (s CachedSource) Ticks(ctx context.Context, gameID, playID string) ([]types.Tick, error) {
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("game", gameID), zap.String("play", playID))

	ticks, err := s.Archive.LoadTicks(ctx, gameID, playID)
	switch {
	case err == nil:
		log.Debug("ticks served from archive", zap.Int("ticks", len(ticks)))
		return ticks, nil
	case !errors.Is(err, store.ErrNotFound):
		log.Warn("archive read failed", zap.Error(err))
	}

	ticks, err = s.Upstream.Ticks(ctx, gameID, playID)
	if err != nil {
		return nil, err
	}
	if err := s.Archive.SaveTicks(ctx, gameID, playID, ticks); err != nil && !errors.Is(err, store.ErrExists) {
		log.Warn("archive write failed", zap.Error(err))
	}
	return ticks, nil
}
