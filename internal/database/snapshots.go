package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"artisanlink/internal/models"
)

var ErrNilSnapshot = errors.New("database: nil snapshot")

type snapshotPayload struct {
	Bookings        []models.Booking `json:"bookings"`
	ArtisanBookings []models.Booking `json:"artisan_bookings"`
}

// SnapshotStore persists store snapshots in the booking_snapshots table.
type SnapshotStore struct {
	db  *DB
	ttl time.Duration
	now func() time.Time
}

func NewSnapshotStore(db *DB, ttl time.Duration) *SnapshotStore {
	return &SnapshotStore{db: db, ttl: ttl, now: time.Now}
}

func (s *SnapshotStore) Load(ctx context.Context, key string) (*models.Snapshot, error) {
	query := `
        SELECT owner_id, role, payload, saved_at, expires_at
        FROM booking_snapshots
        WHERE key = ?
    `

	var (
		snap      models.Snapshot
		role      string
		payload   string
		expiresAt sql.NullTime
	)
	err := s.db.db.QueryRowContext(ctx, query, key).Scan(&snap.OwnerID, &role, &payload, &snap.SavedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", key, err)
	}

	if expiresAt.Valid && s.now().After(expiresAt.Time) {
		if err := s.Delete(ctx, key); err != nil {
			s.db.logger.Warn().Err(err).Str("key", key).Msg("failed to purge expired snapshot")
		}
		return nil, nil
	}

	var body snapshotPayload
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	snap.Role = models.Role(role)
	snap.Bookings = body.Bookings
	snap.ArtisanBookings = body.ArtisanBookings
	return &snap, nil
}

func (s *SnapshotStore) Save(ctx context.Context, snapshot *models.Snapshot) error {
	if snapshot == nil {
		return ErrNilSnapshot
	}
	payload, err := json.Marshal(snapshotPayload{
		Bookings:        snapshot.Bookings,
		ArtisanBookings: snapshot.ArtisanBookings,
	})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	savedAt := snapshot.SavedAt
	if savedAt.IsZero() {
		savedAt = s.now()
	}
	var expiresAt sql.NullTime
	if s.ttl > 0 {
		expiresAt = sql.NullTime{Time: s.now().Add(s.ttl).UTC(), Valid: true}
	}

	query := `
        INSERT INTO booking_snapshots (key, owner_id, role, payload, saved_at, expires_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(key) DO UPDATE SET
            owner_id = excluded.owner_id,
            role = excluded.role,
            payload = excluded.payload,
            saved_at = excluded.saved_at,
            expires_at = excluded.expires_at
    `
	_, err = s.db.db.ExecContext(ctx, query,
		snapshot.Key(),
		snapshot.OwnerID,
		string(snapshot.Role),
		string(payload),
		savedAt.UTC(),
		expiresAt,
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", snapshot.Key(), err)
	}
	return nil
}

func (s *SnapshotStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.db.ExecContext(ctx, `DELETE FROM booking_snapshots WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete snapshot %s: %w", key, err)
	}
	return nil
}

// PurgeExpired removes every expired snapshot and returns how many rows went.
func (s *SnapshotStore) PurgeExpired(ctx context.Context) (int64, error) {
	res, err := s.db.db.ExecContext(ctx,
		`DELETE FROM booking_snapshots WHERE expires_at IS NOT NULL AND expires_at < ?`, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge snapshots: %w", err)
	}
	return res.RowsAffected()
}
