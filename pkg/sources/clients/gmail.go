package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/doxen-app/doxen/pkg/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	gmailUser          = "me"
	defaultGmailMax    = 20
	noSubject          = "(No subject)"
	unknownSender      = "Unknown"
	errorLoadingThread = "(Error loading)"
)

var threadMetadataHeaders = []string{"Subject", "From", "Date"}

// GmailClient reads threads and messages for the authenticated mailbox.
type GmailClient struct {
	opts     Options
	endpoint string
}

// NewGmailClient creates a Gmail client. endpoint overrides the API base URL
// and is empty in production.
func NewGmailClient(opts Options, endpoint string) *GmailClient {
	return &GmailClient{opts: opts.withDefaults(), endpoint: endpoint}
}

func (c *GmailClient) service(ctx context.Context, token string) (*gmail.Service, error) {
	base := c.opts.HTTPClient
	httpClient := &http.Client{
		Timeout: base.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   base.Transport,
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gmail: create service: %w", err)
	}
	return svc, nil
}

// ListThreads searches threads and fetches lightweight metadata for each of
// them. A failed metadata fetch degrades that entry to a placeholder.
func (c *GmailClient) ListThreads(ctx context.Context, token, query string, max int) (*types.GmailThreadList, error) {
	if max <= 0 || max > defaultGmailMax {
		max = defaultGmailMax
	}

	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := c.opts.wait(ctx, types.ProviderGmail); err != nil {
		return nil, err
	}

	call := svc.Users.Threads.List(gmailUser).MaxResults(int64(max)).Context(ctx)
	if query != "" {
		call = call.Q(query)
	}
	resp, err := call.Do()
	c.record("threads.list", err)
	if err != nil {
		return nil, gmailError(err)
	}

	threads := resp.Threads
	if len(threads) > max {
		threads = threads[:max]
	}

	summaries := make([]types.GmailThreadSummary, len(threads))
	g := new(errgroup.Group)
	g.SetLimit(c.opts.Concurrency)
	for i, t := range threads {
		g.Go(func() error {
			summaries[i] = c.threadSummary(ctx, svc, t)
			return nil
		})
	}
	_ = g.Wait()

	return &types.GmailThreadList{
		Threads:            summaries,
		ResultSizeEstimate: resp.ResultSizeEstimate,
	}, nil
}

func (c *GmailClient) threadSummary(ctx context.Context, svc *gmail.Service, ref *gmail.Thread) types.GmailThreadSummary {
	placeholder := types.GmailThreadSummary{Id: ref.Id, Snippet: ref.Snippet, Subject: errorLoadingThread}

	if err := c.opts.wait(ctx, types.ProviderGmail); err != nil {
		return placeholder
	}

	thread, err := svc.Users.Threads.Get(gmailUser, ref.Id).
		Format("metadata").
		MetadataHeaders(threadMetadataHeaders...).
		Context(ctx).
		Do()
	c.record("threads.get", err)
	if err != nil {
		log.Warn().Err(err).Str("thread_id", ref.Id).Msg("gmail thread metadata fetch failed")
		return placeholder
	}

	summary := types.GmailThreadSummary{
		Id:           ref.Id,
		Subject:      noSubject,
		From:         unknownSender,
		MessageCount: len(thread.Messages),
	}
	if len(thread.Messages) > 0 && thread.Messages[0] != nil {
		first := thread.Messages[0]
		summary.Snippet = first.Snippet
		if first.Payload != nil {
			summary.Subject = headerValue(first.Payload.Headers, "Subject", noSubject)
			summary.From = headerValue(first.Payload.Headers, "From", unknownSender)
			summary.Date = headerValue(first.Payload.Headers, "Date", "")
		}
	}
	return summary
}

// GetThread fetches a full thread with decoded message bodies.
func (c *GmailClient) GetThread(ctx context.Context, token, threadId string) (*types.GmailThread, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := c.opts.wait(ctx, types.ProviderGmail); err != nil {
		return nil, err
	}

	thread, err := svc.Users.Threads.Get(gmailUser, threadId).Format("full").Context(ctx).Do()
	c.record("threads.get", err)
	if err != nil {
		return nil, gmailError(err)
	}

	if len(thread.Messages) == 0 {
		return nil, types.NewIntegrationError(types.KindEmptyConversation, types.ProviderGmail, "Thread has no messages")
	}

	result := &types.GmailThread{
		Id:       threadId,
		Subject:  noSubject,
		Messages: make([]types.GmailMessage, 0, len(thread.Messages)),
	}
	if first := thread.Messages[0]; first != nil && first.Payload != nil {
		result.Subject = headerValue(first.Payload.Headers, "Subject", noSubject)
	}

	for _, msg := range thread.Messages {
		if msg == nil {
			continue
		}
		m := types.GmailMessage{Id: msg.Id, From: unknownSender}
		if msg.Payload != nil {
			m.From = headerValue(msg.Payload.Headers, "From", unknownSender)
			m.Date = headerValue(msg.Payload.Headers, "Date", "")
			m.Body = ExtractMessageBody(msg.Payload)
		}
		result.Messages = append(result.Messages, m)
	}

	return result, nil
}

// GetMessage fetches a single message.
func (c *GmailClient) GetMessage(ctx context.Context, token, messageId string) (*types.GmailEmail, error) {
	svc, err := c.service(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := c.opts.wait(ctx, types.ProviderGmail); err != nil {
		return nil, err
	}

	msg, err := svc.Users.Messages.Get(gmailUser, messageId).Format("full").Context(ctx).Do()
	c.record("messages.get", err)
	if err != nil {
		return nil, gmailError(err)
	}

	email := &types.GmailEmail{Id: msg.Id, Subject: noSubject, From: unknownSender}
	if msg.Payload != nil {
		email.Subject = headerValue(msg.Payload.Headers, "Subject", noSubject)
		email.From = headerValue(msg.Payload.Headers, "From", unknownSender)
		email.Date = headerValue(msg.Payload.Headers, "Date", "")
		email.Body = ExtractMessageBody(msg.Payload)
	}
	return email, nil
}

func (c *GmailClient) record(endpoint string, err error) {
	status := http.StatusOK
	if err != nil {
		status = 0
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			status = apiErr.Code
		}
	}
	c.opts.Metrics.RecordProviderRequest(types.ProviderGmail, endpoint, status)
}

// gmailError maps googleapi errors onto ProviderAPIError. Transport errors
// are returned wrapped.
func gmailError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.Code)
		}
		ie := types.NewProviderAPIError(types.ProviderGmail, apiErr.Code, msg)
		ie.Err = err
		return ie
	}
	return fmt.Errorf("gmail: %w", err)
}
