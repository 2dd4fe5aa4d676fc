package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/doxen-app/doxen/pkg/types"
)

// ErrRefreshUnsupported is returned by providers whose tokens never expire.
var ErrRefreshUnsupported = errors.New("provider does not support token refresh")

// Provider defines the interface for OAuth providers
type Provider interface {
	// Name returns the provider name stored on connections ("gmail", "slack")
	Name() string

	// IsConfigured returns true if the provider has valid client credentials
	IsConfigured() bool

	// AuthorizeURL builds the consent URL carrying the given state
	AuthorizeURL(state string) string

	// Exchange exchanges an authorization code for tokens
	Exchange(ctx context.Context, code string) (*types.IntegrationCredentials, error)

	// Identify resolves the external account behind freshly exchanged credentials
	Identify(ctx context.Context, creds *types.IntegrationCredentials) (*types.AccountIdentity, error)

	// Refresh exchanges a refresh token for a new access token
	Refresh(ctx context.Context, refreshToken string) (*RefreshedToken, error)
}

// RefreshedToken is a token endpoint response for grant_type=refresh_token.
// ExpiresIn is zero when the provider omitted it.
type RefreshedToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// TokenError is an OAuth error response from a token endpoint.
type TokenError struct {
	Provider    string
	Status      int
	Code        string
	Description string
}

func (e *TokenError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("%s token error (%d): %s - %s", e.Provider, e.Status, e.Code, e.Description)
	}
	return fmt.Sprintf("%s token error (%d): %s", e.Provider, e.Status, e.Code)
}

// UserMessage is what gets surfaced on the redirect or in the API error.
func (e *TokenError) UserMessage() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.Code != "":
		return e.Code
	default:
		return "token_exchange_failed"
	}
}

// Endpoints lets tests point a provider at a local server.
type Endpoints struct {
	AuthURL     string
	TokenURL    string
	UserinfoURL string
}

type ProviderOption func(*providerOptions)

type providerOptions struct {
	httpClient *http.Client
	endpoints  Endpoints
}

func WithHTTPClient(client *http.Client) ProviderOption {
	return func(o *providerOptions) {
		o.httpClient = client
	}
}

// WithEndpoints overrides non-empty endpoint URLs.
func WithEndpoints(e Endpoints) ProviderOption {
	return func(o *providerOptions) {
		if e.AuthURL != "" {
			o.endpoints.AuthURL = e.AuthURL
		}
		if e.TokenURL != "" {
			o.endpoints.TokenURL = e.TokenURL
		}
		if e.UserinfoURL != "" {
			o.endpoints.UserinfoURL = e.UserinfoURL
		}
	}
}

func applyOptions(defaults Endpoints, opts []ProviderOption) providerOptions {
	o := providerOptions{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		endpoints:  defaults,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Registry manages configured OAuth providers by name
type Registry struct {
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider to the registry. Unconfigured providers are skipped.
func (r *Registry) Register(p Provider) {
	if p == nil || !p.IsConfigured() {
		return
	}
	r.providers[p.Name()] = p
}

func (r *Registry) GetProvider(name string) (Provider, bool) {
	p, ok := r.providers[name]
	return p, ok
}

// ListConfiguredProviders returns names of all configured providers, sorted
func (r *Registry) ListConfiguredProviders() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
