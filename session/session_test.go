package session

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var ana = Identity{
	UserID: 100, UserName: "Ana",
	ZoneID: 1, ZoneName: "Zona Norte",
	DepartmentID: 10, DepartmentName: "Compras",
}

type lookupStub struct {
	byToken map[string][]Identity
	err     error
}

func (l lookupStub) IdentitiesByToken(_ context.Context, token string) ([]Identity, error) {
	return l.byToken[token], l.err
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newResolver(t *testing.T, lookup Lookup) (*Resolver, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(time.Hour)
	t.Cleanup(func() { store.Close() })
	return NewResolver(lookup, store, NewSigner("test-secret"), time.Hour), store
}

// =============================================================================
// LOGIN / LOGOUT
// =============================================================================

func TestLogin_SingleMatchCreatesSession(t *testing.T) {
	ctx := context.Background()
	r, store := newResolver(t, lookupStub{byToken: map[string][]Identity{"tok": {ana}}})

	id, cookie, err := r.Login(ctx, "tok")
	require.NoError(t, err)
	assert.Equal(t, ana, id)
	assert.NotEmpty(t, cookie)
	assert.Equal(t, 1, store.Len())

	got, err := r.Authenticate(ctx, cookie)
	require.NoError(t, err)
	assert.Equal(t, ana, got, "all six identity fields survive the round trip")
}

func TestLogin_ZeroOrManyMatchesCreateNoSession(t *testing.T) {
	tests := map[string][]Identity{
		"none":    nil,
		"several": {ana, {UserID: 101, UserName: "Luis", ZoneID: 2, DepartmentID: 20}},
	}

	for name, matches := range tests {
		t.Run(name, func(t *testing.T) {
			r, store := newResolver(t, lookupStub{byToken: map[string][]Identity{"tok": matches}})

			_, cookie, err := r.Login(context.Background(), "tok")
			assert.ErrorIs(t, err, ErrInvalidToken)
			assert.Empty(t, cookie)
			assert.Zero(t, store.Len())
		})
	}
}

func TestLogin_EmptyTokenNeverQueries(t *testing.T) {
	r, _ := newResolver(t, lookupStub{err: assert.AnError})

	_, _, err := r.Login(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLogin_LookupFailureIsReturned(t *testing.T) {
	r, _ := newResolver(t, lookupStub{err: assert.AnError})

	_, _, err := r.Login(context.Background(), "tok")
	assert.ErrorIs(t, err, assert.AnError)
}

func TestLogout_ClearsWholeSession(t *testing.T) {
	ctx := context.Background()
	r, store := newResolver(t, lookupStub{byToken: map[string][]Identity{"tok": {ana}}})

	_, cookie, err := r.Login(ctx, "tok")
	require.NoError(t, err)

	require.NoError(t, r.Logout(ctx, cookie))
	assert.Zero(t, store.Len())

	_, err = r.Authenticate(ctx, cookie)
	assert.ErrorIs(t, err, ErrNoSession)

	// Logging out twice, or with garbage, is fine.
	assert.NoError(t, r.Logout(ctx, cookie))
	assert.NoError(t, r.Logout(ctx, "garbage"))
}

// =============================================================================
// COOKIES
// =============================================================================

func TestAuthenticate_RejectsTamperedCookie(t *testing.T) {
	ctx := context.Background()
	r, _ := newResolver(t, lookupStub{byToken: map[string][]Identity{"tok": {ana}}})

	_, cookie, err := r.Login(ctx, "tok")
	require.NoError(t, err)

	parts := strings.Split(cookie, ".")
	require.Len(t, parts, 3)

	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	_, err = r.Authenticate(ctx, tampered)
	assert.ErrorIs(t, err, ErrInvalidCookie)

	other := NewSigner("another-secret")
	forged, err := other.Sign("whatever", time.Hour)
	require.NoError(t, err)
	_, err = r.Authenticate(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidCookie)
}

func TestSigner_Expiry(t *testing.T) {
	c := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	s := NewSigner("secret")
	s.now = c.Now

	value, err := s.Sign("abc", time.Minute)
	require.NoError(t, err)

	id, err := s.Parse(value)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	c.Advance(2 * time.Minute)
	_, err = s.Parse(value)
	assert.ErrorIs(t, err, ErrInvalidCookie)
}

// =============================================================================
// MEMORY STORE
// =============================================================================

func TestMemoryStore_ExpiredEntriesAreSwept(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}

	store := NewMemoryStore(time.Hour)
	defer store.Close()
	store.now = c.Now

	require.NoError(t, store.Save(ctx, "short", ana, time.Minute))
	require.NoError(t, store.Save(ctx, "long", ana, time.Hour))

	c.Advance(2 * time.Minute)
	store.Sweep()

	assert.Equal(t, 1, store.Len())
	_, err := store.Load(ctx, "short")
	assert.ErrorIs(t, err, ErrNoSession)
	_, err = store.Load(ctx, "long")
	assert.NoError(t, err)
}

func TestMemoryStore_LoadExpiresLazily(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}

	store := NewMemoryStore(time.Hour)
	defer store.Close()
	store.now = c.Now

	require.NoError(t, store.Save(ctx, "s", ana, time.Minute))
	c.Advance(time.Minute)

	_, err := store.Load(ctx, "s")
	assert.ErrorIs(t, err, ErrNoSession)
	assert.Zero(t, store.Len())
}

func TestMemoryStore_SweeperStopsOnClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	store := NewMemoryStore(time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
}

// =============================================================================
// REQUEST CONTEXT
// =============================================================================

func TestContextIdentity(t *testing.T) {
	ctx := context.Background()
	assert.False(t, IsAuthenticated(ctx))

	assert.False(t, IsAuthenticated(WithIdentity(ctx, Identity{UserName: "no id"})))

	ctx = WithIdentity(ctx, ana)
	assert.True(t, IsAuthenticated(ctx))

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.Owner().ZoneID)
	assert.Equal(t, int64(10), got.Owner().DepartmentID)
}

func TestRequire(t *testing.T) {
	_, err := Require(context.Background())
	assert.ErrorIs(t, err, ErrAuthRequired)

	got, err := Require(WithIdentity(context.Background(), ana))
	require.NoError(t, err)
	assert.Equal(t, ana, got)
}
