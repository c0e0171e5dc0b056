package repository

import (
	"context"
	"sync"
	"time"

	"artisanlink/internal/models"
)

type memoryEntry struct {
	snapshot  models.Snapshot
	expiresAt time.Time
}

// MemorySnapshotRepository keeps snapshots for the life of the process.
type MemorySnapshotRepository struct {
	entries sync.Map
	ttl     time.Duration
	now     func() time.Time
}

func NewMemorySnapshotRepository(ttl time.Duration) *MemorySnapshotRepository {
	return &MemorySnapshotRepository{
		ttl: ttl,
		now: time.Now,
	}
}

func (r *MemorySnapshotRepository) Load(ctx context.Context, key string) (*models.Snapshot, error) {
	val, ok := r.entries.Load(key)
	if !ok {
		return nil, nil
	}
	entry := val.(memoryEntry)
	if !entry.expiresAt.IsZero() && r.now().After(entry.expiresAt) {
		r.entries.Delete(key)
		return nil, nil
	}
	snap := copySnapshot(entry.snapshot)
	return &snap, nil
}

func (r *MemorySnapshotRepository) Save(ctx context.Context, snapshot *models.Snapshot) error {
	if snapshot == nil {
		return ErrNilSnapshot
	}
	entry := memoryEntry{snapshot: copySnapshot(*snapshot)}
	if r.ttl > 0 {
		entry.expiresAt = r.now().Add(r.ttl)
	}
	r.entries.Store(snapshot.Key(), entry)
	return nil
}

func (r *MemorySnapshotRepository) Delete(ctx context.Context, key string) error {
	r.entries.Delete(key)
	return nil
}

func copySnapshot(s models.Snapshot) models.Snapshot {
	out := s
	out.Bookings = copyBookings(s.Bookings)
	out.ArtisanBookings = copyBookings(s.ArtisanBookings)
	return out
}

func copyBookings(in []models.Booking) []models.Booking {
	if in == nil {
		return nil
	}
	out := make([]models.Booking, len(in))
	for i, b := range in {
		out[i] = b.Clone()
	}
	return out
}
