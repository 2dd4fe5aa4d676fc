package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/doxen-app/doxen/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var googleCfg = types.OAuthClientConfig{
	ClientID:     "google-client",
	ClientSecret: "google-secret",
	RedirectURL:  "http://localhost:8080/api/v1/gmail/callback",
}

func TestRegistrySkipsUnconfigured(t *testing.T) {
	r := NewRegistry()
	r.Register(NewGoogleProvider(googleCfg))
	r.Register(NewSlackProvider(types.OAuthClientConfig{}))

	_, ok := r.GetProvider(types.ProviderGmail)
	assert.True(t, ok)
	_, ok = r.GetProvider(types.ProviderSlack)
	assert.False(t, ok)
	assert.Equal(t, []string{types.ProviderGmail}, r.ListConfiguredProviders())
}

func TestGoogleAuthorizeURL(t *testing.T) {
	g := NewGoogleProvider(googleCfg)

	u, err := url.Parse(g.AuthorizeURL("state-123"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "google-client", q.Get("client_id"))
	assert.Equal(t, "state-123", q.Get("state"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Contains(t, q.Get("scope"), "https://www.googleapis.com/auth/gmail.readonly")
	assert.Contains(t, q.Get("scope"), "https://www.googleapis.com/auth/userinfo.email")
}

func TestGoogleExchangeAndIdentify(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		if r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"Malformed auth code."}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"ya29.access","refresh_token":"1//refresh","expires_in":3599,"token_type":"Bearer","scope":"https://www.googleapis.com/auth/gmail.readonly"}`))
	})
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer ya29.access", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"id": "1", "email": "a@example.com", "verified_email": true})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	g := NewGoogleProvider(googleCfg, WithHTTPClient(srv.Client()), WithEndpoints(Endpoints{
		TokenURL:    srv.URL + "/token",
		UserinfoURL: srv.URL + "/",
	}))

	ctx := context.Background()
	creds, err := g.Exchange(ctx, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "ya29.access", creds.AccessToken)
	assert.Equal(t, "1//refresh", creds.RefreshToken)
	assert.Equal(t, "https://www.googleapis.com/auth/gmail.readonly", creds.Scope)
	require.NotNil(t, creds.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(3599*time.Second), *creds.ExpiresAt, 5*time.Second)

	identity, err := g.Identify(ctx, creds)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", identity.ExternalAccountId)

	_, err = g.Exchange(ctx, "bad-code")
	var te *TokenError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "invalid_grant", te.Code)
	assert.Equal(t, "Malformed auth code.", te.UserMessage())
}

func TestGoogleRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "google-client", r.PostForm.Get("client_id"))

		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("refresh_token") {
		case "good":
			w.Write([]byte(`{"access_token":"fresh","expires_in":1800,"token_type":"Bearer"}`))
		case "no-expiry":
			w.Write([]byte(`{"access_token":"fresh"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
		}
	}))
	defer srv.Close()

	g := NewGoogleProvider(googleCfg, WithHTTPClient(srv.Client()), WithEndpoints(Endpoints{TokenURL: srv.URL}))
	ctx := context.Background()

	token, err := g.Refresh(ctx, "good")
	require.NoError(t, err)
	assert.Equal(t, "fresh", token.AccessToken)
	assert.Equal(t, 30*time.Minute, token.ExpiresIn)

	token, err = g.Refresh(ctx, "no-expiry")
	require.NoError(t, err)
	assert.Zero(t, token.ExpiresIn)

	_, err = g.Refresh(ctx, "revoked")
	var te *TokenError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusBadRequest, te.Status)
	assert.Equal(t, "invalid_grant", te.Code)
	assert.Equal(t, "Token has been expired or revoked.", te.Description)

	_, err = g.Refresh(ctx, "")
	assert.Error(t, err)
}

func TestSlackAuthorizeURL(t *testing.T) {
	s := NewSlackProvider(types.OAuthClientConfig{ClientID: "slack-client", ClientSecret: "s", RedirectURL: "http://localhost/cb"})

	u, err := url.Parse(s.AuthorizeURL("st"))
	require.NoError(t, err)
	assert.Equal(t, "slack.com", u.Host)
	assert.Equal(t, "/oauth/v2/authorize", u.Path)
	assert.Equal(t, "channels:read,channels:history,users:read", u.Query().Get("scope"))
	assert.Equal(t, "st", u.Query().Get("state"))
	assert.Equal(t, "http://localhost/cb", u.Query().Get("redirect_uri"))
}

func TestSlackExchangeAndIdentify(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good-code" {
			w.Write([]byte(`{"ok":false,"error":"invalid_code"}`))
			return
		}
		w.Write([]byte(`{"ok":true,"access_token":"xoxb-1","token_type":"bot","scope":"channels:read,channels:history,users:read","bot_user_id":"UBOT","app_id":"A1","team":{"id":"T123","name":"Acme"},"authed_user":{"id":"U1"}}`))
	}))
	defer srv.Close()

	s := NewSlackProvider(types.OAuthClientConfig{ClientID: "c", ClientSecret: "s", RedirectURL: "http://localhost/cb"},
		WithHTTPClient(srv.Client()), WithEndpoints(Endpoints{TokenURL: srv.URL}))
	ctx := context.Background()

	creds, err := s.Exchange(ctx, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "xoxb-1", creds.AccessToken)
	assert.Nil(t, creds.ExpiresAt)
	assert.Empty(t, creds.RefreshToken)

	identity, err := s.Identify(ctx, creds)
	require.NoError(t, err)
	assert.Equal(t, &types.AccountIdentity{ExternalAccountId: "T123", AccountName: "Acme"}, identity)

	_, err = s.Exchange(ctx, "bad-code")
	var te *TokenError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "invalid_code", te.UserMessage())

	_, err = s.Refresh(ctx, "anything")
	assert.ErrorIs(t, err, ErrRefreshUnsupported)
}
