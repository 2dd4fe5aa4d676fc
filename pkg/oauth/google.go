package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doxen-app/doxen/pkg/types"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// GmailScopes are requested on every Gmail authorization
var GmailScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/userinfo.email",
}

const googleAPIBase = "https://www.googleapis.com/"

// GoogleProvider handles Google OAuth for Gmail connections
type GoogleProvider struct {
	clientID     string
	clientSecret string
	redirectURL  string
	httpClient   *http.Client
	endpoints    Endpoints
}

var _ Provider = (*GoogleProvider)(nil)

func NewGoogleProvider(cfg types.OAuthClientConfig, opts ...ProviderOption) *GoogleProvider {
	o := applyOptions(Endpoints{
		AuthURL:     google.Endpoint.AuthURL,
		TokenURL:    google.Endpoint.TokenURL,
		UserinfoURL: googleAPIBase,
	}, opts)

	return &GoogleProvider{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURL:  cfg.RedirectURL,
		httpClient:   o.httpClient,
		endpoints:    o.endpoints,
	}
}

func (g *GoogleProvider) Name() string {
	return types.ProviderGmail
}

func (g *GoogleProvider) IsConfigured() bool {
	return g.clientID != "" && g.clientSecret != "" && g.redirectURL != ""
}

// AuthorizeURL requests offline access and forces the consent screen so a
// refresh token is issued even if the user authorized before.
func (g *GoogleProvider) AuthorizeURL(state string) string {
	return g.oauthConfig().AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

func (g *GoogleProvider) Exchange(ctx context.Context, code string) (*types.IntegrationCredentials, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, g.httpClient)

	token, err := g.oauthConfig().Exchange(ctx, code)
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			status := 0
			if re.Response != nil {
				status = re.Response.StatusCode
			}
			return nil, &TokenError{Provider: g.Name(), Status: status, Code: re.ErrorCode, Description: re.ErrorDescription}
		}
		return nil, fmt.Errorf("exchange failed: %w", err)
	}

	creds := &types.IntegrationCredentials{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
	}
	if scope, ok := token.Extra("scope").(string); ok {
		creds.Scope = scope
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		creds.ExpiresAt = &expiry
	}

	return creds, nil
}

// Identify looks up the account email through the userinfo API
func (g *GoogleProvider) Identify(ctx context.Context, creds *types.IntegrationCredentials) (*types.AccountIdentity, error) {
	client := oauth2.NewClient(
		context.WithValue(ctx, oauth2.HTTPClient, g.httpClient),
		oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken}),
	)

	svc, err := oauth2api.NewService(ctx, option.WithHTTPClient(client), option.WithEndpoint(g.endpoints.UserinfoURL))
	if err != nil {
		return nil, fmt.Errorf("userinfo client: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}
	if info.Email == "" {
		return nil, errors.New("userinfo: no email on account")
	}

	return &types.AccountIdentity{ExternalAccountId: info.Email, AccountName: info.Email}, nil
}

// Refresh posts grant_type=refresh_token to the token endpoint
func (g *GoogleProvider) Refresh(ctx context.Context, refreshToken string) (*RefreshedToken, error) {
	if refreshToken == "" {
		return nil, errors.New("no refresh token")
	}

	data := url.Values{
		"client_id":     {g.clientID},
		"client_secret": {g.clientSecret},
		"refresh_token": {refreshToken},
		"grant_type":    {"refresh_token"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoints.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var result struct {
		AccessToken      string `json:"access_token"`
		RefreshToken     string `json:"refresh_token"`
		ExpiresIn        int    `json:"expires_in"`
		TokenType        string `json:"token_type"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}

	if err := decodeJSON(resp.Body, &result); err != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if resp.StatusCode != http.StatusOK || result.Error != "" || result.AccessToken == "" {
		code := result.Error
		if code == "" && resp.StatusCode == http.StatusOK {
			code = "invalid_token_response"
		} else if code == "" {
			code = http.StatusText(resp.StatusCode)
		}
		return nil, &TokenError{Provider: g.Name(), Status: resp.StatusCode, Code: code, Description: result.ErrorDescription}
	}

	return &RefreshedToken{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresIn:    time.Duration(result.ExpiresIn) * time.Second,
	}, nil
}

func (g *GoogleProvider) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.clientID,
		ClientSecret: g.clientSecret,
		RedirectURL:  g.redirectURL,
		Scopes:       GmailScopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   g.endpoints.AuthURL,
			TokenURL:  g.endpoints.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}
