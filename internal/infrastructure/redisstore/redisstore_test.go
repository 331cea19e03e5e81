package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oksasatya/client-powered/internal/domain/entity"
	"github.com/oksasatya/client-powered/internal/domain/repository"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())
	return rdb
}

func TestSessionStore_Lifecycle(t *testing.T) {
	rdb := newTestClient(t)
	store := NewSessionStore(rdb)
	ctx := context.Background()
	uid := uuid.NewString()
	t.Cleanup(func() { _ = store.Delete(ctx, uid) })

	_, err := store.Get(ctx, uid)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	sess := &entity.Session{ID: "sid-1", Identity: entity.Identity{UserID: uid, Email: "a@example.com"}}
	require.NoError(t, store.Save(ctx, sess, time.Minute))

	got, err := store.Get(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "sid-1", got.ID)
	assert.Equal(t, "a@example.com", got.Identity.Email)

	require.NoError(t, store.UpdateProfile(ctx, uid, "Ada", "x.png"))
	ttl, err := rdb.TTL(ctx, sessionKey(uid)).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Rotate(ctx, uid, "sid-2", time.Minute))
	got, err = store.Get(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, "sid-2", got.ID)
	assert.Equal(t, "Ada", got.Name)
	assert.Equal(t, "x.png", got.Avatar)

	require.NoError(t, store.Delete(ctx, uid))
	assert.ErrorIs(t, store.Rotate(ctx, uid, "sid-3", time.Minute), repository.ErrNotFound)
}

func TestAuthStateStore_TakeIsSingleUse(t *testing.T) {
	rdb := newTestClient(t)
	store := NewAuthStateStore(rdb)
	ctx := context.Background()
	hash := uuid.NewString()

	require.NoError(t, store.PutMagicLink(ctx, hash, "a@example.com", time.Minute))
	email, err := store.TakeMagicLink(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", email)
	_, err = store.TakeMagicLink(ctx, hash)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, store.PutOTP(ctx, " A@Example.com", "123456", time.Minute))
	code, err := store.TakeOTP(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "123456", code)

	state := uuid.NewString()
	require.NoError(t, store.PutOAuthState(ctx, state, repository.OAuthState{Provider: "google", Nonce: "n"}, time.Minute))
	st, err := store.TakeOAuthState(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, "google", st.Provider)
	_, err = store.TakeOAuthState(ctx, state)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLock_SecondAcquireFails(t *testing.T) {
	rdb := newTestClient(t)
	lock := NewLock(rdb)
	ctx := context.Background()
	key := "test:lock:" + uuid.NewString()

	tok, ok, err := lock.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = lock.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, lock.Release(ctx, key, tok))
	tok, ok, err = lock.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	_ = lock.Release(ctx, key, tok)
}

func TestLock_StaleReleaseKeepsNewHolder(t *testing.T) {
	rdb := newTestClient(t)
	lock := NewLock(rdb)
	ctx := context.Background()
	key := "test:lock:" + uuid.NewString()

	stale, ok, err := lock.Acquire(ctx, key, 50*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	require.Eventually(t, func() bool {
		return rdb.Exists(ctx, key).Val() == 0
	}, time.Second, 10*time.Millisecond)

	current, ok, err := lock.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, lock.Release(ctx, key, stale), repository.ErrLockLost)
	_, ok, err = lock.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a stale release must not free the current holder")

	require.NoError(t, lock.Release(ctx, key, current))
}
