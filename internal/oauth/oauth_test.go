package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motdiem/email-kanban/internal/model"
)

func newTestExchanger(t *testing.T, handler http.Handler) *Exchanger {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e := New(map[string]model.OAuthClientConfig{
		"google": {ClientID: "client-id", ClientSecret: "client-secret", RedirectURL: "http://localhost/callback"},
	})
	cfg := e.configs[model.ProviderGoogle]
	cfg.Endpoint.TokenURL = srv.URL + "/token"
	cfg.Endpoint.AuthURL = srv.URL + "/auth"
	return e
}

func tokenResponse(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func TestExchangeCode(t *testing.T) {
	e := newTestExchanger(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "the-code", r.Form.Get("code"))
		tokenResponse(w, `{
			"access_token": "access-1",
			"refresh_token": "refresh-1",
			"token_type": "Bearer",
			"expires_in": 3600
		}`)
	}))

	cred, err := e.ExchangeCode(context.Background(), model.ProviderGoogle, "acc_1", "the-code")
	require.NoError(t, err)
	assert.Equal(t, "acc_1", cred.AccountID)
	assert.Equal(t, "access-1", cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken)
	assert.True(t, cred.ExpiresAt.After(time.Now().Add(30*time.Minute)))
	assert.Contains(t, cred.Scopes, "https://www.googleapis.com/auth/gmail.modify")
}

func TestRefresh(t *testing.T) {
	e := newTestExchanger(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.Form.Get("refresh_token"))
		tokenResponse(w, `{
			"access_token": "access-2",
			"token_type": "Bearer",
			"expires_in": 3600
		}`)
	}))

	cred, err := e.Refresh(context.Background(), model.ProviderGoogle, "acc_1", "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", cred.AccessToken)
	assert.Equal(t, "refresh-1", cred.RefreshToken,
		"a rotation response without a refresh token keeps the working one")
}

func TestRefreshRotatesToken(t *testing.T) {
	e := newTestExchanger(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenResponse(w, `{
			"access_token": "access-2",
			"refresh_token": "refresh-2",
			"token_type": "Bearer",
			"expires_in": 3600
		}`)
	}))

	cred, err := e.Refresh(context.Background(), model.ProviderGoogle, "acc_1", "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", cred.RefreshToken)
}

func TestRefreshRejectedOn4xx(t *testing.T) {
	e := newTestExchanger(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_grant"}`))
	}))

	_, err := e.Refresh(context.Background(), model.ProviderGoogle, "acc_1", "dead-refresh")
	assert.ErrorIs(t, err, ErrRefreshRejected)
}

func TestRefreshTransientOn5xx(t *testing.T) {
	e := newTestExchanger(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	_, err := e.Refresh(context.Background(), model.ProviderGoogle, "acc_1", "refresh-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRefreshRejected)
}

func TestAuthURLGoogleRequestsOfflineAccess(t *testing.T) {
	e := New(map[string]model.OAuthClientConfig{
		"google": {ClientID: "client-id", RedirectURL: "http://localhost/callback"},
	})

	url, err := e.AuthURL(model.ProviderGoogle, "state-xyz")
	require.NoError(t, err)
	assert.Contains(t, url, "access_type=offline")
	assert.Contains(t, url, "prompt=consent")
	assert.Contains(t, url, "state=state-xyz")
}

func TestPublicConfigCarriesNoSecrets(t *testing.T) {
	e := New(map[string]model.OAuthClientConfig{
		"google":   {ClientID: "g-id", ClientSecret: "g-secret", RedirectURL: "http://localhost/callback"},
		"ticktick": {ClientID: "t-id", ClientSecret: "t-secret"},
	})

	public := e.PublicConfig()
	require.Len(t, public, 2)

	google := public["google"]
	assert.Equal(t, "g-id", google.ClientID)
	assert.NotEmpty(t, google.AuthURL)
	assert.Contains(t, google.Scopes, "https://www.googleapis.com/auth/gmail.modify")

	ticktick := public["ticktick"]
	assert.Equal(t, "t-id", ticktick.ClientID)
	assert.Equal(t, "https://ticktick.com/oauth/authorize", ticktick.AuthURL)

	raw, err := json.Marshal(public)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
}

func TestUnconfiguredProvider(t *testing.T) {
	e := New(nil)

	_, err := e.AuthURL(model.ProviderMicrosoft, "s")
	assert.Error(t, err)

	_, err = e.ExchangeCode(context.Background(), model.ProviderTickTick, "acc_1", "code")
	assert.Error(t, err)
}

func TestUnknownProviderNameIsSkipped(t *testing.T) {
	e := New(map[string]model.OAuthClientConfig{
		"geocities": {ClientID: "x"},
	})
	_, err := e.AuthURL(model.ProviderType("geocities"), "s")
	assert.Error(t, err)
}
