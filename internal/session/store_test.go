package session

import (
	"context"
	"testing"
	"time"

	"go_certhub/internal/acme"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, ttl time.Duration) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewStore(rdb, ttl), mr
}

func newSession() *Session {
	return &Session{
		AccountID: 7,
		Domains:   []string{"www.example.com", "example.com"},
		KeyType:   acme.KeyTypeRSA2048,
		Mode:      ModeManual,
		OrderURL:  "https://ca.test/order/1",
		InfoList: []acme.ChallengeInfo{
			{Domain: "www.example.com", EffectiveFQDN: "_acme-challenge.www.example.com.", Value: "v1", Token: "t1"},
			{Domain: "example.com", EffectiveFQDN: "_acme-challenge.example.com.", Value: "v2", Token: "t2"},
		},
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	st, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	s := newSession()
	require.NoError(t, st.Create(ctx, s, time.Time{}))
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, StatusPending, s.Status)

	got, err := st.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, s.Domains, got.Domains)
	assert.Equal(t, s.InfoList, got.InfoList)
	assert.Equal(t, "https://ca.test/order/1", got.Order().URL)

	// lookup ignores domain order
	found, err := st.Find(ctx, 7, acme.KeyTypeRSA2048, []string{"example.com", "www.example.com"})
	require.NoError(t, err)
	assert.Equal(t, s.ID, found.ID)

	_, err = st.Find(ctx, 7, acme.KeyTypeP256, s.Domains)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_TTLFollowsOrderExpiry(t *testing.T) {
	st, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	s := newSession()
	require.NoError(t, st.Create(ctx, s, time.Now().Add(10*time.Minute)))

	ttl := mr.TTL(sessionKey(s.ID))
	assert.LessOrEqual(t, ttl, 10*time.Minute)
	assert.Greater(t, ttl, 9*time.Minute)

	mr.FastForward(11 * time.Minute)
	_, err := st.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveExpired(t *testing.T) {
	st, _ := newTestStore(t, time.Hour)
	s := newSession()
	s.ID = "x"
	s.ExpiresAt = time.Now().Add(-time.Second)
	assert.ErrorIs(t, st.Save(context.Background(), s), ErrExpired)
}

func TestStore_Delete(t *testing.T) {
	st, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	s := newSession()
	require.NoError(t, st.Create(ctx, s, time.Time{}))
	require.NoError(t, st.Delete(ctx, s))

	_, err := st.Get(ctx, s.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists(LookupKey(s.AccountID, s.KeyType, s.Domains)))

	// deleting twice is fine
	require.NoError(t, st.Delete(ctx, s))
}

func TestStore_DeleteKeepsNewerIndex(t *testing.T) {
	st, _ := newTestStore(t, time.Hour)
	ctx := context.Background()

	older := newSession()
	require.NoError(t, st.Create(ctx, older, time.Time{}))
	newer := newSession()
	require.NoError(t, st.Create(ctx, newer, time.Time{}))

	require.NoError(t, st.Delete(ctx, older))
	found, err := st.Find(ctx, newer.AccountID, newer.KeyType, newer.Domains)
	require.NoError(t, err)
	assert.Equal(t, newer.ID, found.ID)
}

func TestStore_Lock(t *testing.T) {
	st, mr := newTestStore(t, time.Hour)
	ctx := context.Background()

	release, err := st.Lock(ctx, "abc", time.Minute)
	require.NoError(t, err)

	_, err = st.Lock(ctx, "abc", time.Minute)
	assert.ErrorIs(t, err, ErrLocked)

	release()
	assert.False(t, mr.Exists(lockKey("abc")))

	release2, err := st.Lock(ctx, "abc", time.Minute)
	require.NoError(t, err)

	// a stale release must not drop someone else's lock
	release()
	assert.True(t, mr.Exists(lockKey("abc")))
	release2()
}
