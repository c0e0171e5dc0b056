package repository

import (
	"context"
	"sync/atomic"
	"time"

	"artisanlink/internal/domain"
	"artisanlink/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSnapshotRepository writes to primary until it fails, then serves
// from fallback and probes primary again once a minute.
type FailoverSnapshotRepository struct {
	primary   domain.SnapshotRepository
	fallback  domain.SnapshotRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverSnapshotRepository(primary, fallback domain.SnapshotRepository, logger *zerolog.Logger) *FailoverSnapshotRepository {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &FailoverSnapshotRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverSnapshotRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("Primary snapshot repository failed, falling back")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverSnapshotRepository) shouldProbe() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > recoveryInterval
}

func (r *FailoverSnapshotRepository) Load(ctx context.Context, key string) (*models.Snapshot, error) {
	if !r.isDown.Load() {
		snap, err := r.primary.Load(ctx, key)
		if err == nil {
			return snap, nil
		}
		r.markDown(err)
	} else if r.shouldProbe() {
		snap, err := r.primary.Load(ctx, key)
		if err == nil {
			r.isDown.Store(false)
			r.logger.Info().Msg("Primary snapshot repository recovered")
			return snap, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.Load(ctx, key)
}

func (r *FailoverSnapshotRepository) Save(ctx context.Context, snapshot *models.Snapshot) error {
	if !r.isDown.Load() {
		err := r.primary.Save(ctx, snapshot)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.Save(ctx, snapshot)
}

func (r *FailoverSnapshotRepository) Delete(ctx context.Context, key string) error {
	if !r.isDown.Load() {
		err := r.primary.Delete(ctx, key)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}

	return r.fallback.Delete(ctx, key)
}
