package repository

import (
	"context"
	"testing"
	"time"

	"artisanlink/internal/config"
	"artisanlink/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSnapshotRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr()})
	defer Close(client)

	repo := NewRedisSnapshotRepository(client, time.Hour)
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, Ping(ctx, client))
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		snap := sampleSnapshot()
		require.NoError(t, repo.Save(ctx, snap))

		got, err := repo.Load(ctx, snap.Key())
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, snap.OwnerID, got.OwnerID)
		assert.Equal(t, snap.Role, got.Role)
		assert.True(t, snap.SavedAt.Equal(got.SavedAt))
		require.Len(t, got.ArtisanBookings, 2)
		assert.Equal(t, "b1", got.ArtisanBookings[0].ID)
		require.NotNil(t, got.ArtisanBookings[0].ProposedPrice)
		assert.Equal(t, "labor", got.ArtisanBookings[0].ProposedPrice.Note)

		assert.True(t, s.Exists(keyPrefix+snap.Key()))
		assert.Equal(t, time.Hour, s.TTL(keyPrefix+snap.Key()))
	})

	t.Run("Missing", func(t *testing.T) {
		got, err := repo.Load(ctx, "customer:nobody")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Expiry", func(t *testing.T) {
		snap := sampleSnapshot()
		snap.OwnerID = "a2"
		require.NoError(t, repo.Save(ctx, snap))

		s.FastForward(2 * time.Hour)

		got, err := repo.Load(ctx, snap.Key())
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("Corrupt", func(t *testing.T) {
		require.NoError(t, s.Set(keyPrefix+"artisan:bad", "{not json"))
		_, err := repo.Load(ctx, "artisan:bad")
		assert.Error(t, err)
	})

	t.Run("Delete", func(t *testing.T) {
		snap := sampleSnapshot()
		require.NoError(t, repo.Save(ctx, snap))
		require.NoError(t, repo.Delete(ctx, snap.Key()))
		assert.False(t, s.Exists(keyPrefix+snap.Key()))
	})

	t.Run("NilClient", func(t *testing.T) {
		r := NewRedisSnapshotRepository(nil, time.Hour)
		_, err := r.Load(ctx, "x")
		assert.Error(t, err)
		assert.Error(t, r.Save(ctx, sampleSnapshot()))
		assert.Error(t, r.Delete(ctx, "x"))
	})

	t.Run("ServerDown", func(t *testing.T) {
		down := miniredis.NewMiniRedis()
		require.NoError(t, down.Start())
		addr := down.Addr()
		down.Close()

		c := NewRedisClient(config.RedisConfig{Address: addr})
		defer Close(c)
		_, err := NewRedisSnapshotRepository(c, time.Hour).Load(ctx, models.SnapshotKey(models.RoleArtisan, "a1"))
		assert.Error(t, err)
		assert.Error(t, Ping(ctx, c))
	})
}
