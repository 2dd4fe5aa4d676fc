package apiv1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/doxen-app/doxen/pkg/auth"
	"github.com/doxen-app/doxen/pkg/oauth"
	"github.com/doxen-app/doxen/pkg/repository"
	"github.com/doxen-app/doxen/pkg/sources"
	"github.com/doxen-app/doxen/pkg/sources/clients"
	"github.com/doxen-app/doxen/pkg/types"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "identity-secret"
	testUser   = "user-1"
)

type stubProvider struct{ name string }

func (p *stubProvider) Name() string       { return p.name }
func (p *stubProvider) IsConfigured() bool { return true }

func (p *stubProvider) AuthorizeURL(state string) string {
	return "https://accounts.example/consent?state=" + url.QueryEscape(state)
}

func (p *stubProvider) Exchange(ctx context.Context, code string) (*types.IntegrationCredentials, error) {
	if code == "bad" {
		return nil, &oauth.TokenError{Provider: p.name, Status: 400, Code: "invalid_grant"}
	}
	return &types.IntegrationCredentials{AccessToken: "xoxb-new", Scope: "channels:read"}, nil
}

func (p *stubProvider) Identify(ctx context.Context, creds *types.IntegrationCredentials) (*types.AccountIdentity, error) {
	return &types.AccountIdentity{ExternalAccountId: "T9", AccountName: "Acme"}, nil
}

func (p *stubProvider) Refresh(ctx context.Context, refreshToken string) (*oauth.RefreshedToken, error) {
	return nil, oauth.ErrRefreshUnsupported
}

type passthroughTokens struct{}

func (passthroughTokens) GetValidAccessToken(ctx context.Context, conn *types.Connection) (string, error) {
	return conn.AccessToken, nil
}

type stubGmail struct{}

func (stubGmail) ListThreads(ctx context.Context, token, query string, max int) (*types.GmailThreadList, error) {
	return &types.GmailThreadList{
		Threads:            []types.GmailThreadSummary{{Id: "t1", Subject: "Invoice 42", From: "billing@example.com"}},
		ResultSizeEstimate: 1,
	}, nil
}

func (stubGmail) GetThread(ctx context.Context, token, threadId string) (*types.GmailThread, error) {
	return &types.GmailThread{
		Id:       threadId,
		Subject:  "Invoice 42",
		Messages: []types.GmailMessage{{Id: "m1", From: "billing@example.com", Date: "Mon, 1 Apr 2024", Body: "Amount due"}},
	}, nil
}

func (stubGmail) GetMessage(ctx context.Context, token, messageId string) (*types.GmailEmail, error) {
	return &types.GmailEmail{Id: messageId, Subject: "Hi", From: "a@example.com", Date: "Mon, 1 Apr 2024", Body: "hello"}, nil
}

type stubSlack struct{}

func (stubSlack) ListChannels(ctx context.Context, token string) ([]types.SlackChannelSummary, error) {
	return []types.SlackChannelSummary{{Id: "C1", Name: "general"}}, nil
}

func (stubSlack) FetchConversation(ctx context.Context, req clients.SlackHistoryRequest) (*types.SlackConversation, error) {
	msg := "The bot is not in #" + req.ChannelName + ". Please invite it by typing /invite @YourBot in that channel, then try again."
	return nil, types.NewIntegrationError(types.KindBotNotInChannel, types.ProviderSlack, msg)
}

type testServer struct {
	e     *echo.Echo
	store *repository.MemoryBackend
	codec *oauth.StateCodec
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store, _ := repository.NewMemoryBackendForTest(testUser)

	_, err := store.SaveConnection(context.Background(), &types.Connection{
		UserId: testUser, Provider: types.ProviderGmail, ExternalAccountId: "a@example.com",
		AccountName: "a@example.com", AccessToken: "gmail-token",
	})
	require.NoError(t, err)

	registry := oauth.NewRegistry()
	registry.Register(&stubProvider{name: types.ProviderSlack})
	codec := oauth.NewStateCodec("state-secret", time.Minute)
	handshake := oauth.NewHandshake(registry, codec, store)

	svc := sources.NewService(sources.ServiceOpts{
		Store:  store,
		Tokens: passthroughTokens{},
		Gmail:  stubGmail{},
		Slack:  stubSlack{},
	})

	e := echo.New()
	e.Use(auth.HTTPMiddleware(auth.NewJWTValidator(types.AuthConfig{JWTSecret: testSecret})))
	api := e.Group(HttpServerBaseRoute)
	NewGmailGroup(api.Group("/gmail"), handshake, svc)
	NewSlackGroup(api.Group("/slack"), handshake, svc)
	NewConnectionsGroup(api.Group("/connections"), store)
	NewProjectsGroup(api.Group("/projects"), store)
	NewSourcesGroup(api.Group("/projects/:project_id/sources"), svc)
	NewHealthGroup(api.Group("/health"), map[string]Pinger{"database": store})

	return &testServer{e: e, store: store, codec: codec}
}

func (s *testServer) do(t *testing.T, method, path, userId, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if userId != "" {
		token, err := auth.IssueToken(testSecret, userId, userId+"@example.com", time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) (Response, map[string]any) {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	data, _ := resp.Data.(map[string]any)
	return resp, data
}

func TestDataRoutesRequireIdentity(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{
		"/api/v1/gmail/threads",
		"/api/v1/slack/channels",
		"/api/v1/connections",
		"/api/v1/projects/project-1/sources",
		"/api/v1/gmail/authorize",
	} {
		rec := s.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/gmail/threads", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListGmailThreads(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/gmail/threads?q=invoice&maxResults=5", testUser, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp, data := decode(t, rec)
	assert.True(t, resp.Success)
	assert.Len(t, data["threads"], 1)
	assert.EqualValues(t, 1, data["resultSizeEstimate"])

	rec = s.do(t, http.MethodGet, "/api/v1/gmail/threads?maxResults=lots", testUser, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotConnectedIsScopedToCaller(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/gmail/threads", "user-2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp, _ := decode(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "Gmail not connected. Please connect your Gmail account first.", resp.Error)
}

func TestImportThreadThenManageSources(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/gmail/threads/import", testUser, `{"projectId":"project-1","threadId":"t1"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	_, data := decode(t, rec)
	assert.EqualValues(t, 1, data["messageCount"])
	source := data["source"].(map[string]any)
	sourceId := source["id"].(string)
	assert.Equal(t, "Gmail: Invoice 42", source["name"])

	rec = s.do(t, http.MethodGet, "/api/v1/projects/project-1/sources", testUser, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp, _ := decode(t, rec)
	assert.Len(t, resp.Data, 1)

	// Another user cannot see or import into the project.
	rec = s.do(t, http.MethodGet, "/api/v1/projects/project-1/sources", "user-2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/v1/gmail/emails/import", "user-2", `{"projectId":"project-1","messageId":"m1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/projects/project-1/sources/"+sourceId+"/archive", testUser, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/projects/project-1/sources/"+sourceId, testUser, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(t, http.MethodDelete, "/api/v1/projects/project-1/sources/"+sourceId, testUser, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImportValidation(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/gmail/threads/import", testUser, `{"projectId":"project-1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/gmail/threads/import", testUser, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSlackAuthorizeCallbackAndImport(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/slack/authorize?returnUrl=/projects/project-1", testUser, "")
	require.Equal(t, http.StatusOK, rec.Code)
	_, data := decode(t, rec)
	consent, err := url.Parse(data["url"].(string))
	require.NoError(t, err)
	state := consent.Query().Get("state")
	require.NotEmpty(t, state)

	rec = s.do(t, http.MethodGet, "/api/v1/slack/callback?code=abc&state="+url.QueryEscape(state), "", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/projects/project-1?slack_connected=true", rec.Header().Get("Location"))

	rec = s.do(t, http.MethodGet, "/api/v1/slack/callback?code=bad&state="+url.QueryEscape(state), "", "")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/projects/project-1?slack_error=invalid_grant", rec.Header().Get("Location"))

	rec = s.do(t, http.MethodGet, "/api/v1/slack/callback?code=abc&state=forged", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodGet, "/api/v1/slack/callback?state="+url.QueryEscape(state), "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/connections?provider=slack", testUser, "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp, _ := decode(t, rec)
	conns := resp.Data.([]any)
	require.Len(t, conns, 1)
	conn := conns[0].(map[string]any)
	assert.Equal(t, "T9", conn["external_account_id"])
	assert.NotContains(t, rec.Body.String(), "xoxb-new")

	rec = s.do(t, http.MethodGet, "/api/v1/slack/channels", testUser, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/slack/channels/import", testUser,
		`{"projectId":"project-1","channelId":"C1","channelName":"general"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp, _ = decode(t, rec)
	assert.Equal(t, "The bot is not in #general. Please invite it by typing /invite @YourBot in that channel, then try again.", resp.Error)
}

func TestGmailAuthorizeNotConfigured(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/gmail/authorize", testUser, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp, _ := decode(t, rec)
	assert.Equal(t, "Gmail OAuth is not configured", resp.Error)
}

func TestDeleteConnection(t *testing.T) {
	s := newTestServer(t)
	conn, err := s.store.GetConnection(context.Background(), testUser, types.ProviderGmail, "")
	require.NoError(t, err)

	rec := s.do(t, http.MethodDelete, "/api/v1/connections/"+conn.Id, "user-2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/connections/"+conn.Id, testUser, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/connections", testUser, "")
	resp, _ := decode(t, rec)
	assert.Empty(t, resp.Data)

	rec = s.do(t, http.MethodGet, "/api/v1/connections?provider=dropbox", testUser, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProjects(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/projects", "user-2", `{"name":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/projects", "user-2", `{"name":"Research"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	_, data := decode(t, rec)
	assert.Equal(t, "Research", data["name"])
	assert.Equal(t, "user-2", data["user_id"])

	rec = s.do(t, http.MethodGet, "/api/v1/projects", "user-2", "")
	resp, _ := decode(t, rec)
	assert.Len(t, resp.Data, 1)

	rec = s.do(t, http.MethodGet, "/api/v1/projects", testUser, "")
	resp, _ = decode(t, rec)
	projects := resp.Data.([]any)
	require.Len(t, projects, 1)
	assert.Equal(t, "project-1", projects[0].(map[string]any)["id"])
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ok"`)
}
