package share

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE shares (
  share_id TEXT PRIMARY KEY,
  item_id TEXT NOT NULL,
  owner_id TEXT NOT NULL,
  expires_at TIMESTAMP,
  password_hash TEXT NOT NULL DEFAULT '',
  max_access_count INTEGER NOT NULL DEFAULT 0,
  access_count INTEGER NOT NULL DEFAULT 0,
  created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`)
	require.NoError(t, err)
	return db
}

func newService(t *testing.T) *Service {
	t.Helper()
	repo := NewSQLiteRepository(setupDB(t))
	issuer := NewCapabilityIssuer([]byte("test-signing-secret"), time.Minute)
	limiter := ratelimit.NewPerUser(rate.Limit(1000), 1000)
	return NewService(repo, issuer, limiter, logging.NewDefault())
}

func TestAccess_HappyPath(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	link, err := s.Create(ctx, "u1", "item-1", CreateOptions{})
	require.NoError(t, err)

	grant, err := s.Access(ctx, link.ShareID, "item-1", "")
	require.NoError(t, err)
	assert.Equal(t, "item-1", grant.ItemID)

	grantCap, err := s.issuer.Verify(grant.Token)
	require.NoError(t, err)
	assert.Equal(t, "item-1", grantCap.ItemID)
	assert.Equal(t, link.ShareID, grantCap.ShareID)
}

func TestAccess_UnknownLink(t *testing.T) {
	s := newService(t)
	_, err := s.Access(context.Background(), "no-such-share", "", "")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestAccess_ExpiredLink(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	link, err := s.Create(ctx, "u1", "item-1", CreateOptions{
		ExpiresAt: time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = s.Access(ctx, link.ShareID, "item-1", "")
	require.ErrorIs(t, err, common.ErrExpiredLink)
}

func TestAccess_PasswordProtected(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	link, err := s.Create(ctx, "u1", "item-1", CreateOptions{Password: "hunter2"})
	require.NoError(t, err)

	_, err = s.Access(ctx, link.ShareID, "item-1", "wrong")
	require.ErrorIs(t, err, common.ErrInvalidPassword)

	_, err = s.Access(ctx, link.ShareID, "item-1", "")
	require.ErrorIs(t, err, common.ErrInvalidPassword)

	grant, err := s.Access(ctx, link.ShareID, "item-1", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "item-1", grant.ItemID)
}

func TestAccess_MismatchedItemIsNotAuthorized(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	link, err := s.Create(ctx, "u1", "item-a", CreateOptions{MaxAccessCount: 1})
	require.NoError(t, err)

	_, err = s.Access(ctx, link.ShareID, "item-b", "")
	require.ErrorIs(t, err, common.ErrNotAuthorized)

	// the failed attempt must not have consumed the single allowed access
	grant, err := s.Access(ctx, link.ShareID, "item-a", "")
	require.NoError(t, err)
	assert.Equal(t, "item-a", grant.ItemID)
}

func TestAccess_CountLimitEnforcedUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	link, err := s.Create(ctx, "u1", "item-1", CreateOptions{MaxAccessCount: 3})
	require.NoError(t, err)

	const callers = 10
	var granted, limited atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Access(ctx, link.ShareID, "item-1", "")
			switch {
			case err == nil:
				granted.Add(1)
			case errors.Is(err, common.ErrAccessLimitExceeded):
				limited.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(3), granted.Load())
	assert.Equal(t, int64(callers-3), limited.Load())
}

func TestCreate_RateLimited(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(setupDB(t))
	issuer := NewCapabilityIssuer([]byte("secret"), time.Minute)
	limiter := ratelimit.NewPerUser(rate.Limit(0.001), 2)
	s := NewService(repo, issuer, limiter, logging.NewDefault())

	_, err := s.Create(ctx, "u1", "item-1", CreateOptions{})
	require.NoError(t, err)
	_, err = s.Create(ctx, "u1", "item-2", CreateOptions{})
	require.NoError(t, err)
	_, err = s.Create(ctx, "u1", "item-3", CreateOptions{})
	require.ErrorIs(t, err, common.ErrRateLimitExceeded)
}

func TestRevoke_OnlyOwner(t *testing.T) {
	ctx := context.Background()
	s := newService(t)

	link, err := s.Create(ctx, "u1", "item-1", CreateOptions{})
	require.NoError(t, err)

	require.ErrorIs(t, s.Revoke(ctx, "intruder", link.ShareID), common.ErrNotAuthorized)
	require.NoError(t, s.Revoke(ctx, "u1", link.ShareID))

	_, err = s.Access(ctx, link.ShareID, "item-1", "")
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestCapability_TamperedTokenRejected(t *testing.T) {
	issuer := NewCapabilityIssuer([]byte("secret-a"), time.Minute)
	token, _, err := issuer.Issue("item-1", "share-1")
	require.NoError(t, err)

	other := NewCapabilityIssuer([]byte("secret-b"), time.Minute)
	_, err = other.Verify(token)
	require.ErrorIs(t, err, common.ErrNotAuthorized)
}
