package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, "", 0), mr
}

func TestCreateMintsSessionID(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	sid, err := store.CreateOrRotate(ctx, "u-1", "refresh-a", "203.0.113.9", "cli/1.0", "")
	require.NoError(t, err)
	require.Len(t, sid, 32)

	rec, err := store.Get(ctx, "u-1", sid)
	require.NoError(t, err)
	require.Equal(t, "refresh-a", rec.RefreshToken)
	require.Equal(t, "203.0.113.9", rec.IP)
	require.Equal(t, "cli/1.0", rec.UserAgent)
	require.NotZero(t, rec.CreatedAt)

	ttl := mr.TTL("session_mapping:u-1")
	require.InDelta(t, DefaultCollectionTTL, ttl, float64(time.Minute))
}

func TestRotateKeepsSessionID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sid, err := store.CreateOrRotate(ctx, "u-1", "refresh-a", "ip", "ua", "")
	require.NoError(t, err)

	got, err := store.CreateOrRotate(ctx, "u-1", "refresh-b", "ip", "ua", sid)
	require.NoError(t, err)
	require.Equal(t, sid, got)

	records, err := store.List(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "refresh-b", records[0].RefreshToken)
}

func TestListOrderedByCreation(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Unix(1_700_000_000, 0)
	for i, token := range []string{"first", "second", "third"} {
		offset := time.Duration(i) * time.Minute
		store.now = func() time.Time { return base.Add(offset) }
		_, err := store.CreateOrRotate(ctx, "u-1", token, "ip", "ua", "")
		require.NoError(t, err)
	}

	records, err := store.List(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "first", records[0].RefreshToken)
	require.Equal(t, "second", records[1].RefreshToken)
	require.Equal(t, "third", records[2].RefreshToken)
}

func TestListSkipsCorruptRecords(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.CreateOrRotate(ctx, "u-1", "good", "ip", "ua", "")
	require.NoError(t, err)
	mr.HSet("session_mapping:u-1", "bad-sid", "not json")

	records, err := store.List(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "good", records[0].RefreshToken)
}

func TestGetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.Get(context.Background(), "u-1", "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIdempotent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	sid, err := store.CreateOrRotate(ctx, "u-1", "refresh-a", "ip", "ua", "")
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, "u-1", sid))
	require.NoError(t, store.Delete(ctx, "u-1", sid))
	require.NoError(t, store.Delete(ctx, "u-1", "never-existed"))

	_, err = store.Get(ctx, "u-1", sid)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIsValid(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	sid, err := store.CreateOrRotate(ctx, "u-1", "refresh-a", "ip", "ua", "")
	require.NoError(t, err)

	ok, err := store.IsValid(ctx, "u-1", sid, "refresh-a")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.IsValid(ctx, "u-1", sid, "refresh-b")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = store.IsValid(ctx, "u-1", "unknown-sid", "refresh-a")
	require.NoError(t, err)
	require.False(t, ok)

	mr.HSet("session_mapping:u-1", sid, "not json")
	ok, err = store.IsValid(ctx, "u-1", sid, "refresh-a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIsValidStoreDown(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, err := store.IsValid(context.Background(), "u-1", "sid", "token")
	require.ErrorIs(t, err, ErrRedisUnavailable)
}
