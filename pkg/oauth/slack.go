package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/doxen-app/doxen/pkg/types"
)

// SlackScopes are the bot scopes requested on every Slack authorization
var SlackScopes = []string{
	"channels:read",
	"channels:history",
	"users:read",
}

const (
	slackAuthorizeURL = "https://slack.com/oauth/v2/authorize"
	slackTokenURL     = "https://slack.com/api/oauth.v2.access"
)

// SlackProvider handles Slack OAuth v2 for bot tokens. Bot tokens never
// expire, so there is no refresh path.
type SlackProvider struct {
	clientID     string
	clientSecret string
	redirectURL  string
	httpClient   *http.Client
	endpoints    Endpoints
}

var _ Provider = (*SlackProvider)(nil)

func NewSlackProvider(cfg types.OAuthClientConfig, opts ...ProviderOption) *SlackProvider {
	o := applyOptions(Endpoints{AuthURL: slackAuthorizeURL, TokenURL: slackTokenURL}, opts)

	return &SlackProvider{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		redirectURL:  cfg.RedirectURL,
		httpClient:   o.httpClient,
		endpoints:    o.endpoints,
	}
}

func (s *SlackProvider) Name() string {
	return types.ProviderSlack
}

func (s *SlackProvider) IsConfigured() bool {
	return s.clientID != "" && s.clientSecret != "" && s.redirectURL != ""
}

func (s *SlackProvider) AuthorizeURL(state string) string {
	params := url.Values{
		"client_id":    {s.clientID},
		"scope":        {strings.Join(SlackScopes, ",")},
		"redirect_uri": {s.redirectURL},
		"state":        {state},
	}
	return s.endpoints.AuthURL + "?" + params.Encode()
}

type slackAccessResponse struct {
	OK          bool   `json:"ok"`
	Error       string `json:"error"`
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	BotUserID   string `json:"bot_user_id"`
	AppID       string `json:"app_id"`
	Team        struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"team"`
	AuthedUser struct {
		ID string `json:"id"`
	} `json:"authed_user"`
}

// Exchange calls oauth.v2.access. The team identity comes back in the same
// response and is carried in Extra for Identify.
func (s *SlackProvider) Exchange(ctx context.Context, code string) (*types.IntegrationCredentials, error) {
	data := url.Values{
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
		"code":          {code},
		"redirect_uri":  {s.redirectURL},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoints.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &TokenError{Provider: s.Name(), Status: resp.StatusCode, Code: "token_exchange_failed"}
	}

	var result slackAccessResponse
	if err := decodeJSON(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if !result.OK {
		code := result.Error
		if code == "" {
			code = "token_exchange_failed"
		}
		return nil, &TokenError{Provider: s.Name(), Status: resp.StatusCode, Code: code}
	}

	return &types.IntegrationCredentials{
		AccessToken: result.AccessToken,
		Scope:       result.Scope,
		Extra: map[string]string{
			"team_id":     result.Team.ID,
			"team_name":   result.Team.Name,
			"bot_user_id": result.BotUserID,
			"app_id":      result.AppID,
		},
	}, nil
}

func (s *SlackProvider) Identify(ctx context.Context, creds *types.IntegrationCredentials) (*types.AccountIdentity, error) {
	teamID := creds.Extra["team_id"]
	if teamID == "" {
		return nil, errors.New("slack: token response has no team")
	}

	name := creds.Extra["team_name"]
	if name == "" {
		name = "Unknown"
	}
	return &types.AccountIdentity{ExternalAccountId: teamID, AccountName: name}, nil
}

func (s *SlackProvider) Refresh(ctx context.Context, refreshToken string) (*RefreshedToken, error) {
	return nil, ErrRefreshUnsupported
}

func decodeJSON(r io.Reader, v any) error {
	return json.NewDecoder(r).Decode(v)
}
