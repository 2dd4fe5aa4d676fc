package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/doxen-app/doxen/pkg/types"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	slackAPIBase          = "https://slack.com/api"
	slackChannelPageLimit = 200
	DefaultSlackLimit     = 200
	MaxSlackMessages      = 1000

	slackUserCacheSize = 4096
	slackUserCacheTTL  = 15 * time.Minute
)

var mentionPattern = regexp.MustCompile(`<@([A-Z0-9]+)>`)

// SlackHistoryRequest selects the channel history to fetch.
type SlackHistoryRequest struct {
	Token       string
	TeamId      string // Scopes the user name cache
	ChannelId   string
	ChannelName string
	Limit       int
}

// SlackClient is a minimal Slack Web API client.
type SlackClient struct {
	opts    Options
	baseURL string
	users   *expirable.LRU[string, string]
}

// NewSlackClient creates a Slack client. baseURL is empty in production.
func NewSlackClient(opts Options, baseURL string) *SlackClient {
	if baseURL == "" {
		baseURL = slackAPIBase
	}
	return &SlackClient{
		opts:    opts.withDefaults(),
		baseURL: strings.TrimRight(baseURL, "/"),
		users:   expirable.NewLRU[string, string](slackUserCacheSize, nil, slackUserCacheTTL),
	}
}

type slackEnvelope struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type slackPage struct {
	ResponseMetadata struct {
		NextCursor string `json:"next_cursor"`
	} `json:"response_metadata"`
}

type slackChannel struct {
	Id         string `json:"id"`
	Name       string `json:"name"`
	IsPrivate  bool   `json:"is_private"`
	NumMembers int    `json:"num_members"`
	Topic      struct {
		Value string `json:"value"`
	} `json:"topic"`
	Purpose struct {
		Value string `json:"value"`
	} `json:"purpose"`
}

type slackHistoryMessage struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype"`
	User    string `json:"user"`
	Text    string `json:"text"`
	Ts      string `json:"ts"`
}

type slackUser struct {
	Id      string `json:"id"`
	Name    string `json:"name"`
	Profile struct {
		DisplayName string `json:"display_name"`
		RealName    string `json:"real_name"`
	} `json:"profile"`
}

// displayName picks display_name, then real_name, then name, then the raw id.
func (u slackUser) displayName(fallback string) string {
	for _, name := range []string{u.Profile.DisplayName, u.Profile.RealName, u.Name} {
		if name != "" {
			return name
		}
	}
	return fallback
}

// ListChannels returns public, non-archived channels sorted by name.
func (c *SlackClient) ListChannels(ctx context.Context, token string) ([]types.SlackChannelSummary, error) {
	params := url.Values{
		"types":            {"public_channel"},
		"limit":            {strconv.Itoa(slackChannelPageLimit)},
		"exclude_archived": {"true"},
	}

	var all []slackChannel
	for {
		var resp struct {
			slackEnvelope
			slackPage
			Channels []slackChannel `json:"channels"`
		}
		if err := c.call(ctx, token, "conversations.list", params, &resp); err != nil {
			return nil, providerError(err)
		}
		all = append(all, resp.Channels...)

		// Archived filtering can leave a page empty while a cursor still follows
		cursor := resp.ResponseMetadata.NextCursor
		if cursor == "" {
			break
		}
		params.Set("cursor", cursor)
	}

	channels := make([]types.SlackChannelSummary, 0, len(all))
	for _, ch := range all {
		channels = append(channels, types.SlackChannelSummary{
			Id:         ch.Id,
			Name:       ch.Name,
			IsPrivate:  ch.IsPrivate,
			NumMembers: ch.NumMembers,
			Topic:      ch.Topic.Value,
			Purpose:    ch.Purpose.Value,
		})
	}
	sort.SliceStable(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })

	return channels, nil
}

// FetchConversation returns the channel's text messages oldest first, with
// sender ids and <@id> mentions resolved to display names.
func (c *SlackClient) FetchConversation(ctx context.Context, req SlackHistoryRequest) (*types.SlackConversation, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSlackLimit
	}
	if limit > MaxSlackMessages {
		limit = MaxSlackMessages
	}

	messages, err := c.history(ctx, req, limit)
	if err != nil {
		var se *slackError
		if errors.As(err, &se) && se.Code == "not_in_channel" {
			msg := fmt.Sprintf("The bot is not in #%s. Please invite it by typing /invite @YourBot in that channel, then try again.", req.ChannelName)
			return nil, types.NewIntegrationError(types.KindBotNotInChannel, types.ProviderSlack, msg)
		}
		return nil, providerError(err)
	}

	names := c.resolveUsers(ctx, req.Token, req.TeamId, uniqueSenders(messages))

	conv := &types.SlackConversation{ChannelId: req.ChannelId, ChannelName: req.ChannelName}
	// Provider order is newest first
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Type != "message" || strings.TrimSpace(m.Text) == "" {
			continue
		}

		sender := "Unknown"
		if m.User != "" {
			sender = m.User
			if name, ok := names[m.User]; ok {
				sender = name
			}
		}

		conv.Messages = append(conv.Messages, types.SlackMessage{
			Timestamp: parseSlackTimestamp(m.Ts),
			UserId:    m.User,
			Sender:    sender,
			Text:      rewriteMentions(m.Text, names),
		})
	}

	return conv, nil
}

// history pages through conversations.history until limit messages are
// collected or the cursor runs out. Slack may return short pages with a
// cursor, so the page size is only an upper bound.
func (c *SlackClient) history(ctx context.Context, req SlackHistoryRequest, limit int) ([]slackHistoryMessage, error) {
	params := url.Values{"channel": {req.ChannelId}}

	messages := make([]slackHistoryMessage, 0, limit)
	for len(messages) < limit {
		params.Set("limit", strconv.Itoa(limit-len(messages)))

		var resp struct {
			slackEnvelope
			slackPage
			Messages []slackHistoryMessage `json:"messages"`
		}
		if err := c.call(ctx, req.Token, "conversations.history", params, &resp); err != nil {
			return nil, err
		}
		messages = append(messages, resp.Messages...)

		cursor := resp.ResponseMetadata.NextCursor
		if cursor == "" {
			break
		}
		params.Set("cursor", cursor)
	}

	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func uniqueSenders(messages []slackHistoryMessage) []string {
	seen := make(map[string]struct{}, len(messages))
	ids := make([]string, 0)
	for _, m := range messages {
		if m.User == "" {
			continue
		}
		if _, ok := seen[m.User]; ok {
			continue
		}
		seen[m.User] = struct{}{}
		ids = append(ids, m.User)
	}
	return ids
}

// resolveUsers looks up every user id in parallel. Ids that fail to resolve
// are left out of the returned map.
func (c *SlackClient) resolveUsers(ctx context.Context, token, teamId string, ids []string) map[string]string {
	resolved := make([]string, len(ids))

	g := new(errgroup.Group)
	g.SetLimit(c.opts.Concurrency)
	for i, id := range ids {
		g.Go(func() error {
			key := teamId + ":" + id
			if name, ok := c.users.Get(key); ok {
				resolved[i] = name
				return nil
			}

			name, err := c.userName(ctx, token, id)
			if err != nil {
				log.Warn().Err(err).Str("user_id", id).Msg("slack user lookup failed")
				return nil
			}
			c.users.Add(key, name)
			resolved[i] = name
			return nil
		})
	}
	_ = g.Wait()

	names := make(map[string]string, len(ids))
	for i, id := range ids {
		if resolved[i] != "" {
			names[id] = resolved[i]
		}
	}
	return names
}

func (c *SlackClient) userName(ctx context.Context, token, userId string) (string, error) {
	var resp struct {
		slackEnvelope
		User slackUser `json:"user"`
	}
	if err := c.call(ctx, token, "users.info", url.Values{"user": {userId}}, &resp); err != nil {
		return "", err
	}
	return resp.User.displayName(userId), nil
}

func rewriteMentions(text string, names map[string]string) string {
	return mentionPattern.ReplaceAllStringFunc(text, func(match string) string {
		id := mentionPattern.FindStringSubmatch(match)[1]
		if name, ok := names[id]; ok {
			return "@" + name
		}
		return match
	})
}

// parseSlackTimestamp converts "1712345678.000200" into a UTC time.
func parseSlackTimestamp(ts string) time.Time {
	sec, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var usec int64
	if frac != "" {
		usec, _ = strconv.ParseInt(frac, 10, 64)
	}
	return time.Unix(s, usec*int64(time.Microsecond)).UTC()
}

// call issues a GET against a Web API method and decodes the response.
// Non-2xx responses and ok=false payloads are returned as *slackError.
func (c *SlackClient) call(ctx context.Context, token, method string, params url.Values, result any) error {
	if err := c.opts.wait(ctx, types.ProviderSlack); err != nil {
		return err
	}

	reqURL := c.baseURL + "/" + method
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		c.opts.Metrics.RecordProviderRequest(types.ProviderSlack, method, 0)
		return fmt.Errorf("slack %s: %w", method, err)
	}
	defer resp.Body.Close()
	c.opts.Metrics.RecordProviderRequest(types.ProviderSlack, method, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("slack %s: read body: %w", method, err)
	}

	var env slackEnvelope
	_ = json.Unmarshal(body, &env)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := env.Error
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return slackAPIError(resp.StatusCode, msg)
	}
	if !env.OK {
		msg := env.Error
		if msg == "" {
			msg = "unknown_error"
		}
		return slackAPIError(resp.StatusCode, msg)
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("slack %s: decode: %w", method, err)
	}
	return nil
}

// slackError is a failed Web API call: a non-2xx status or ok=false.
type slackError struct {
	Status int
	Code   string
}

func (e *slackError) Error() string {
	return fmt.Sprintf("slack api error (%d): %s", e.Status, e.Code)
}

func slackAPIError(status int, code string) error {
	return &slackError{Status: status, Code: code}
}

// providerError converts slackError into ProviderAPIError for callers.
func providerError(err error) error {
	var se *slackError
	if errors.As(err, &se) {
		return types.NewProviderAPIError(types.ProviderSlack, se.Status, se.Code)
	}
	return err
}
