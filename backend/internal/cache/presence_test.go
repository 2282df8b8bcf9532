package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanbanServer/backend/internal/model"
)

func setupTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func entry(session, user string, joined time.Time) model.Presence {
	return model.Presence{
		SessionID: session,
		BoardID:   "b1",
		UserID:    user,
		User:      model.Identity{ID: user, Name: user, Email: user + "@example.com"},
		JoinedAt:  joined,
	}
}

func TestRedisPresenceJoinLeave(t *testing.T) {
	_, rdb := setupTestClient(t)
	p := NewRedisPresence(rdb)
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, p.Join(ctx, entry("s2", "u2", t0.Add(time.Second)), time.Minute))
	require.NoError(t, p.Join(ctx, entry("s1", "u1", t0), time.Minute))

	online, err := p.Online(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, online, 2)
	assert.Equal(t, "s1", online[0].SessionID)
	assert.Equal(t, "u1@example.com", online[0].User.Email)

	require.NoError(t, p.Leave(ctx, "b1", "s1"))
	online, err = p.Online(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, "s2", online[0].SessionID)

	empty, err := p.Online(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisPresenceExpiry(t *testing.T) {
	_, rdb := setupTestClient(t)
	p := NewRedisPresence(rdb)
	ctx := context.Background()
	now := time.Now()
	p.now = func() time.Time { return now }

	require.NoError(t, p.Join(ctx, entry("s1", "u1", now), 10*time.Second))
	require.NoError(t, p.Join(ctx, entry("s2", "u2", now), time.Hour))

	now = now.Add(time.Minute)
	online, err := p.Online(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.Equal(t, "s2", online[0].SessionID)

	// the expired entry was removed from the hash as well
	n, err := rdb.HLen(ctx, entriesKey("b1")).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisPresenceRefreshExtendsTTL(t *testing.T) {
	_, rdb := setupTestClient(t)
	p := NewRedisPresence(rdb)
	ctx := context.Background()
	now := time.Now()
	p.now = func() time.Time { return now }
	e := entry("s1", "u1", now)

	require.NoError(t, p.Join(ctx, e, 10*time.Minute))
	now = now.Add(9 * time.Minute)
	require.NoError(t, p.Join(ctx, e, 10*time.Minute))
	now = now.Add(9 * time.Minute)

	online, err := p.Online(ctx, "b1")
	require.NoError(t, err)
	require.Len(t, online, 1)
	assert.True(t, e.JoinedAt.Equal(online[0].JoinedAt))
}
