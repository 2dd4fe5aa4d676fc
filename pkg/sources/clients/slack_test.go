package clients

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/doxen-app/doxen/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slackTestServer struct {
	*httptest.Server
	userCalls atomic.Int32
}

func newSlackTestServer(t *testing.T) *slackTestServer {
	t.Helper()
	s := &slackTestServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("/conversations.list", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "public_channel", q.Get("types"))
		assert.Equal(t, "200", q.Get("limit"))
		assert.Equal(t, "true", q.Get("exclude_archived"))
		writeJSON(w, http.StatusOK, map[string]any{
			"ok": true,
			"channels": []map[string]any{
				{"id": "C2", "name": "random", "num_members": 3, "topic": map[string]any{"value": "fun"}},
				{"id": "C1", "name": "general", "num_members": 10, "purpose": map[string]any{"value": "all hands"}},
			},
		})
	})

	mux.HandleFunc("/conversations.history", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("channel") {
		case "C-private":
			writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "not_in_channel"})
		case "C-gone":
			writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "channel_not_found"})
		case "C-limited":
			assert.Equal(t, "1000", r.URL.Query().Get("limit"))
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "messages": []any{}})
		default:
			// Newest first, like Slack
			writeJSON(w, http.StatusOK, map[string]any{
				"ok": true,
				"messages": []map[string]any{
					{"type": "message", "user": "U2", "text": "thanks <@U1>", "ts": "1712000200.000100"},
					{"type": "channel_topic", "text": "topic changed", "ts": "1712000150.000000"},
					{"type": "message", "user": "U1", "text": "   ", "ts": "1712000120.000000"},
					{"type": "message", "user": "U1", "text": "hello <@U9>", "ts": "1712000100.000000"},
				},
			})
		}
	})

	mux.HandleFunc("/users.info", func(w http.ResponseWriter, r *http.Request) {
		s.userCalls.Add(1)
		switch r.URL.Query().Get("user") {
		case "U1":
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": map[string]any{
				"id": "U1", "name": "alice", "profile": map[string]any{"display_name": "", "real_name": "Alice Liddell"},
			}})
		case "U2":
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": map[string]any{
				"id": "U2", "name": "bob", "profile": map[string]any{"display_name": "bobby"},
			}})
		default:
			writeJSON(w, http.StatusOK, map[string]any{"ok": false, "error": "user_not_found"})
		}
	})

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func TestSlackListChannels(t *testing.T) {
	srv := newSlackTestServer(t)
	client := NewSlackClient(Options{HTTPClient: srv.Client()}, srv.URL)

	channels, err := client.ListChannels(context.Background(), "xoxb")
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, types.SlackChannelSummary{Id: "C1", Name: "general", NumMembers: 10, Purpose: "all hands"}, channels[0])
	assert.Equal(t, "random", channels[1].Name)
	assert.Equal(t, "fun", channels[1].Topic)
}

func TestSlackFetchConversation(t *testing.T) {
	srv := newSlackTestServer(t)
	client := NewSlackClient(Options{HTTPClient: srv.Client()}, srv.URL)
	req := SlackHistoryRequest{Token: "xoxb", TeamId: "T1", ChannelId: "C1", ChannelName: "general"}

	conv, err := client.FetchConversation(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)

	// Oldest first, system events and blank messages dropped
	first, second := conv.Messages[0], conv.Messages[1]
	assert.Equal(t, "Alice Liddell", first.Sender)
	assert.Equal(t, "hello <@U9>", first.Text)
	assert.Equal(t, time.Unix(1712000100, 0).UTC(), first.Timestamp)
	assert.Equal(t, "bobby", second.Sender)
	assert.Equal(t, "thanks @Alice Liddell", second.Text)
	assert.True(t, first.Timestamp.Before(second.Timestamp))

	assert.EqualValues(t, 2, srv.userCalls.Load())

	// Names are cached per team
	_, err = client.FetchConversation(context.Background(), req)
	require.NoError(t, err)
	assert.EqualValues(t, 2, srv.userCalls.Load())
}

func TestSlackFetchConversationErrors(t *testing.T) {
	srv := newSlackTestServer(t)
	client := NewSlackClient(Options{HTTPClient: srv.Client()}, srv.URL)
	ctx := context.Background()

	_, err := client.FetchConversation(ctx, SlackHistoryRequest{Token: "xoxb", ChannelId: "C-private", ChannelName: "secret"})
	require.ErrorIs(t, err, types.ErrBotNotInChannel)
	assert.Equal(t, "The bot is not in #secret. Please invite it by typing /invite @YourBot in that channel, then try again.", err.Error())

	_, err = client.FetchConversation(ctx, SlackHistoryRequest{Token: "xoxb", ChannelId: "C-gone", ChannelName: "gone"})
	require.ErrorIs(t, err, types.ErrProviderAPI)
	assert.Contains(t, err.Error(), "channel_not_found")

	conv, err := client.FetchConversation(ctx, SlackHistoryRequest{Token: "xoxb", ChannelId: "C-limited", Limit: 5000})
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
}

func TestSlackUserLookupFailureFallsBackToId(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations.history", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "messages": []map[string]any{
			{"type": "message", "user": "UX", "text": "hi", "ts": "1.0"},
			{"type": "message", "text": "from an integration", "ts": "0.5"},
		}})
	})
	mux.HandleFunc("/users.info", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewSlackClient(Options{HTTPClient: srv.Client()}, srv.URL)
	conv, err := client.FetchConversation(context.Background(), SlackHistoryRequest{Token: "t", ChannelId: "C"})
	require.NoError(t, err)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "Unknown", conv.Messages[0].Sender)
	assert.Equal(t, "UX", conv.Messages[1].Sender)
}

func TestSlackFollowsCursors(t *testing.T) {
	var historyLimits []string
	mux := http.NewServeMux()
	mux.HandleFunc("/conversations.list", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("cursor") {
		case "":
			writeJSON(w, http.StatusOK, map[string]any{"ok": true,
				"channels":          []map[string]any{{"id": "C2", "name": "zeta"}},
				"response_metadata": map[string]any{"next_cursor": "list-2"}})
		case "list-2":
			// Every channel on this page was archived
			writeJSON(w, http.StatusOK, map[string]any{"ok": true,
				"channels":          []map[string]any{},
				"response_metadata": map[string]any{"next_cursor": "list-3"}})
		case "list-3":
			writeJSON(w, http.StatusOK, map[string]any{"ok": true,
				"channels":          []map[string]any{{"id": "C1", "name": "alpha"}},
				"response_metadata": map[string]any{"next_cursor": ""}})
		}
	})
	mux.HandleFunc("/conversations.history", func(w http.ResponseWriter, r *http.Request) {
		historyLimits = append(historyLimits, r.URL.Query().Get("limit"))
		switch r.URL.Query().Get("cursor") {
		case "":
			writeJSON(w, http.StatusOK, map[string]any{"ok": true,
				"messages": []map[string]any{
					{"type": "message", "text": "four", "ts": "4.0"},
					{"type": "message", "text": "three", "ts": "3.0"},
				},
				"response_metadata": map[string]any{"next_cursor": "hist-2"}})
		case "hist-2":
			writeJSON(w, http.StatusOK, map[string]any{"ok": true,
				"messages": []map[string]any{
					{"type": "message", "text": "two", "ts": "2.0"},
					{"type": "message", "text": "one", "ts": "1.0"},
				},
				"response_metadata": map[string]any{"next_cursor": "hist-3"}})
		default:
			t.Errorf("unexpected page %q", r.URL.Query().Get("cursor"))
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := NewSlackClient(Options{HTTPClient: srv.Client()}, srv.URL)
	ctx := context.Background()

	channels, err := client.ListChannels(ctx, "xoxb")
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "alpha", channels[0].Name)
	assert.Equal(t, "zeta", channels[1].Name)

	conv, err := client.FetchConversation(ctx, SlackHistoryRequest{Token: "xoxb", ChannelId: "C1", Limit: 4})
	require.NoError(t, err)
	require.Len(t, conv.Messages, 4)
	for i, want := range []string{"one", "two", "three", "four"} {
		assert.Equal(t, want, conv.Messages[i].Text)
	}
	// Stops once the limit is reached even though a cursor remains
	assert.Equal(t, []string{"4", "2"}, historyLimits)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1})

	assert.True(t, rl.Allow(types.ProviderGmail))
	assert.False(t, rl.Allow(types.ProviderGmail))
	// Providers have independent budgets
	assert.True(t, rl.Allow(types.ProviderSlack))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, rl.Wait(ctx, types.ProviderGmail))
}
