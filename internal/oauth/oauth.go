// Package oauth implements the token acquisition collaborator: code
// exchange and refresh against each provider's token endpoint via
// golang.org/x/oauth2. The redirect/consent flow itself lives outside
// the core.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"

	"github.com/motdiem/email-kanban/internal/model"
)

// ErrRefreshRejected indicates the provider refused the refresh token
// itself (revoked or invalid grant), as opposed to a transient failure.
var ErrRefreshRejected = errors.New("refresh token rejected by provider")

// ticktickEndpoint is TickTick's OAuth2 endpoint; x/oauth2 ships no
// preset for it.
var ticktickEndpoint = oauth2.Endpoint{
	AuthURL:  "https://ticktick.com/oauth/authorize",
	TokenURL: "https://ticktick.com/oauth/token",
}

// defaultScopes are the scopes requested at consent time per provider.
var defaultScopes = map[model.ProviderType][]string{
	model.ProviderMicrosoft: {
		"Mail.Read", "Mail.ReadWrite",
		"Mail.Read.Shared", "Mail.ReadWrite.Shared",
		"offline_access",
	},
	model.ProviderGoogle:   {"https://www.googleapis.com/auth/gmail.modify"},
	model.ProviderTickTick: {"tasks:read", "tasks:write"},
}

// Exchanger turns authorization codes and refresh tokens into
// credentials using the OAuth applications registered in config.
type Exchanger struct {
	configs map[model.ProviderType]*oauth2.Config
}

// New builds an Exchanger from the configured OAuth applications.
// Providers without a configured application are simply absent;
// operations on them fail with a clear error.
func New(clients map[string]model.OAuthClientConfig) *Exchanger {
	configs := make(map[model.ProviderType]*oauth2.Config, len(clients))
	for name, client := range clients {
		p := model.ProviderType(name)

		var endpoint oauth2.Endpoint
		switch p {
		case model.ProviderMicrosoft:
			endpoint = microsoft.AzureADEndpoint("organizations")
		case model.ProviderGoogle:
			endpoint = google.Endpoint
		case model.ProviderTickTick:
			endpoint = ticktickEndpoint
		default:
			continue
		}

		configs[p] = &oauth2.Config{
			ClientID:     client.ClientID,
			ClientSecret: client.ClientSecret,
			RedirectURL:  client.RedirectURL,
			Scopes:       defaultScopes[p],
			Endpoint:     endpoint,
		}
	}
	return &Exchanger{configs: configs}
}

// PublicClientConfig is the secret-free subset of a configured OAuth
// application, exposed so clients can initiate the consent flow.
type PublicClientConfig struct {
	ClientID string   `json:"client_id"`
	AuthURL  string   `json:"auth_url"`
	Scopes   []string `json:"scopes"`
}

// PublicConfig returns the public parameters of every configured
// provider. Client secrets never appear in the returned values.
func (e *Exchanger) PublicConfig() map[string]PublicClientConfig {
	out := make(map[string]PublicClientConfig, len(e.configs))
	for p, cfg := range e.configs {
		out[string(p)] = PublicClientConfig{
			ClientID: cfg.ClientID,
			AuthURL:  cfg.Endpoint.AuthURL,
			Scopes:   cfg.Scopes,
		}
	}
	return out
}

func (e *Exchanger) config(p model.ProviderType) (*oauth2.Config, error) {
	cfg, ok := e.configs[p]
	if !ok {
		return nil, fmt.Errorf("no OAuth application configured for provider %s", p)
	}
	return cfg, nil
}

// AuthURL returns the consent URL for the provider, carrying state.
func (e *Exchanger) AuthURL(p model.ProviderType, state string) (string, error) {
	cfg, err := e.config(p)
	if err != nil {
		return "", err
	}
	opts := []oauth2.AuthCodeOption{}
	if p == model.ProviderGoogle {
		// Google only issues a refresh token with offline access and
		// forced consent.
		opts = append(opts,
			oauth2.AccessTypeOffline,
			oauth2.SetAuthURLParam("prompt", "consent"),
		)
	}
	return cfg.AuthCodeURL(state, opts...), nil
}

// ExchangeCode exchanges an authorization code for a credential.
func (e *Exchanger) ExchangeCode(ctx context.Context, p model.ProviderType, accountID, code string) (model.Credential, error) {
	cfg, err := e.config(p)
	if err != nil {
		return model.Credential{}, err
	}
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return model.Credential{}, fmt.Errorf("exchanging code with %s: %w", p, err)
	}
	return credentialFromToken(accountID, cfg, token), nil
}

// Refresh exchanges a refresh token for a fresh credential. A 4xx
// response from the token endpoint means the grant itself is dead and
// maps to ErrRefreshRejected; anything else is transient.
func (e *Exchanger) Refresh(ctx context.Context, p model.ProviderType, accountID, refreshToken string) (model.Credential, error) {
	cfg, err := e.config(p)
	if err != nil {
		return model.Credential{}, err
	}

	ts := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := ts.Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) &&
			retrieveErr.Response != nil &&
			retrieveErr.Response.StatusCode >= http.StatusBadRequest &&
			retrieveErr.Response.StatusCode < http.StatusInternalServerError {
			return model.Credential{}, fmt.Errorf("%s: %w", p, ErrRefreshRejected)
		}
		return model.Credential{}, fmt.Errorf("refreshing token with %s: %w", p, err)
	}

	cred := credentialFromToken(accountID, cfg, token)
	if cred.RefreshToken == "" {
		// Providers may omit the refresh token on rotation; keep the
		// one that worked.
		cred.RefreshToken = refreshToken
	}
	return cred, nil
}

func credentialFromToken(accountID string, cfg *oauth2.Config, token *oauth2.Token) model.Credential {
	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(time.Hour)
	}
	return model.Credential{
		AccountID:    accountID,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    expiry,
		Scopes:       cfg.Scopes,
	}
}
