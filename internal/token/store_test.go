package token

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motdiem/email-kanban/internal/model"
	"github.com/motdiem/email-kanban/internal/oauth"
	"github.com/motdiem/email-kanban/tests/testutil"
)

const testSecret = "unit-test-secret"

// refresherFunc adapts a function to the Refresher interface.
type refresherFunc func(ctx context.Context, p model.ProviderType, accountID, refreshToken string) (model.Credential, error)

func (f refresherFunc) Refresh(ctx context.Context, p model.ProviderType, accountID, refreshToken string) (model.Credential, error) {
	return f(ctx, p, accountID, refreshToken)
}

func failingRefresher(t *testing.T) Refresher {
	return refresherFunc(func(ctx context.Context, p model.ProviderType, accountID, refreshToken string) (model.Credential, error) {
		t.Fatal("refresh must not be called")
		return model.Credential{}, nil
	})
}

func newTestTokenStore(t *testing.T, refresher Refresher) *Store {
	t.Helper()
	s, err := New(testutil.NewTestStore(t), testSecret, refresher)
	require.NoError(t, err)
	return s
}

func TestPutEncryptsAtRest(t *testing.T) {
	db := testutil.NewTestStore(t)
	s, err := New(db, testSecret, failingRefresher(t))
	require.NoError(t, err)
	ctx := context.Background()

	cred := model.Credential{
		AccountID:    "acc_1",
		AccessToken:  "very-secret-access-token",
		RefreshToken: "very-secret-refresh-token",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	require.NoError(t, s.Put(ctx, cred))

	blob, err := db.GetCredential(ctx, "acc_1")
	require.NoError(t, err)
	assert.False(t, bytes.Contains(blob, []byte("very-secret-access-token")),
		"access token must not appear in the stored blob")
	assert.False(t, bytes.Contains(blob, []byte("very-secret-refresh-token")),
		"refresh token must not appear in the stored blob")

	loaded, err := s.load(ctx, "acc_1")
	require.NoError(t, err)
	assert.Equal(t, cred.AccessToken, loaded.AccessToken)
	assert.Equal(t, cred.RefreshToken, loaded.RefreshToken)
}

func TestLoadRejectsWrongSecret(t *testing.T) {
	db := testutil.NewTestStore(t)
	ctx := context.Background()

	s1, err := New(db, "secret-one", nil)
	require.NoError(t, err)
	require.NoError(t, s1.Put(ctx, model.Credential{AccountID: "acc_1", AccessToken: "tok"}))

	s2, err := New(db, "secret-two", nil)
	require.NoError(t, err)
	_, err = s2.load(ctx, "acc_1")
	assert.Error(t, err)
}

func TestGetValidTokenNoCredential(t *testing.T) {
	s := newTestTokenStore(t, failingRefresher(t))

	_, err := s.GetValidToken(context.Background(), "acc_missing", model.ProviderMicrosoft)
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestGetValidTokenFreshPassthrough(t *testing.T) {
	s := newTestTokenStore(t, failingRefresher(t))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, model.Credential{
		AccountID:   "acc_1",
		AccessToken: "fresh-token",
		ExpiresAt:   time.Now().Add(time.Hour),
	}))

	token, err := s.GetValidToken(ctx, "acc_1", model.ProviderMicrosoft)
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
}

func TestGetValidTokenPasswordPassthrough(t *testing.T) {
	s := newTestTokenStore(t, failingRefresher(t))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, model.Credential{
		AccountID: "acc_1",
		Password:  "app-specific-password",
	}))

	token, err := s.GetValidToken(ctx, "acc_1", model.ProviderICloud)
	require.NoError(t, err)
	assert.Equal(t, "app-specific-password", token)
}

func TestGetValidTokenRefreshesNearExpiry(t *testing.T) {
	refresher := refresherFunc(func(ctx context.Context, p model.ProviderType, accountID, refreshToken string) (model.Credential, error) {
		assert.Equal(t, "old-refresh", refreshToken)
		return model.Credential{
			AccountID:    accountID,
			AccessToken:  "renewed-token",
			RefreshToken: "new-refresh",
			ExpiresAt:    time.Now().Add(time.Hour),
		}, nil
	})
	s := newTestTokenStore(t, refresher)
	ctx := context.Background()

	// Expires within the safety margin.
	require.NoError(t, s.Put(ctx, model.Credential{
		AccountID:    "acc_1",
		AccessToken:  "old-token",
		RefreshToken: "old-refresh",
		ExpiresAt:    time.Now().Add(10 * time.Second),
	}))

	token, err := s.GetValidToken(ctx, "acc_1", model.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "renewed-token", token)

	// The renewed credential must have been persisted.
	loaded, err := s.load(ctx, "acc_1")
	require.NoError(t, err)
	assert.Equal(t, "renewed-token", loaded.AccessToken)
	assert.Equal(t, "new-refresh", loaded.RefreshToken)
}

func TestGetValidTokenRefreshRejectedMeansRevoked(t *testing.T) {
	refresher := refresherFunc(func(ctx context.Context, p model.ProviderType, accountID, refreshToken string) (model.Credential, error) {
		return model.Credential{}, fmt.Errorf("google: %w", oauth.ErrRefreshRejected)
	})
	s := newTestTokenStore(t, refresher)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, model.Credential{
		AccountID:    "acc_1",
		AccessToken:  "old-token",
		RefreshToken: "dead-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}))

	_, err := s.GetValidToken(ctx, "acc_1", model.ProviderGoogle)
	assert.ErrorIs(t, err, ErrCredentialRevoked)
}

func TestGetValidTokenTransientFailureKeepsStoredCredential(t *testing.T) {
	refresher := refresherFunc(func(ctx context.Context, p model.ProviderType, accountID, refreshToken string) (model.Credential, error) {
		return model.Credential{}, fmt.Errorf("token endpoint timeout")
	})
	s := newTestTokenStore(t, refresher)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, model.Credential{
		AccountID:    "acc_1",
		AccessToken:  "old-token",
		RefreshToken: "still-good-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}))

	_, err := s.GetValidToken(ctx, "acc_1", model.ProviderGoogle)
	assert.ErrorIs(t, err, ErrCredentialExpired)

	// The stored record is untouched so a later attempt can retry.
	loaded, err := s.load(ctx, "acc_1")
	require.NoError(t, err)
	assert.Equal(t, "still-good-refresh", loaded.RefreshToken)
}

func TestGetValidTokenNoRefreshToken(t *testing.T) {
	s := newTestTokenStore(t, failingRefresher(t))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, model.Credential{
		AccountID:   "acc_1",
		AccessToken: "old-token",
		ExpiresAt:   time.Now().Add(-time.Minute),
	}))

	_, err := s.GetValidToken(ctx, "acc_1", model.ProviderMicrosoft)
	assert.ErrorIs(t, err, ErrCredentialExpired)
}

func TestConcurrentRefreshIsCoalesced(t *testing.T) {
	var calls atomic.Int32
	gate := make(chan struct{})
	refresher := refresherFunc(func(ctx context.Context, p model.ProviderType, accountID, refreshToken string) (model.Credential, error) {
		calls.Add(1)
		<-gate
		return model.Credential{
			AccountID:    accountID,
			AccessToken:  "renewed-token",
			RefreshToken: refreshToken,
			ExpiresAt:    time.Now().Add(time.Hour),
		}, nil
	})
	s := newTestTokenStore(t, refresher)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, model.Credential{
		AccountID:    "acc_1",
		AccessToken:  "old-token",
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	}))

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = s.GetValidToken(ctx, "acc_1", model.ProviderGoogle)
		}(i)
	}

	// Let every caller reach the in-flight refresh before releasing it.
	time.Sleep(100 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "renewed-token", tokens[i])
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestRevokeRemovesCredential(t *testing.T) {
	s := newTestTokenStore(t, failingRefresher(t))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, model.Credential{AccountID: "acc_1", AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}))
	require.NoError(t, s.Revoke(ctx, "acc_1"))

	_, err := s.GetValidToken(ctx, "acc_1", model.ProviderMicrosoft)
	assert.ErrorIs(t, err, ErrNoCredential)
}
