package sources

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doxen-app/doxen/pkg/common"
	"github.com/doxen-app/doxen/pkg/metrics"
	"github.com/doxen-app/doxen/pkg/repository"
	"github.com/doxen-app/doxen/pkg/sources/clients"
	"github.com/doxen-app/doxen/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const defaultImportLockTTL = 30 * time.Second

// Store is the persistence the import service needs.
type Store interface {
	repository.ConnectionRepository
	repository.ProjectRepository
	repository.SourceRepository
}

// Service lists provider conversations and imports them into projects.
// Every call is scoped to the calling user.
type Service struct {
	store   Store
	tokens  TokenSource
	gmail   GmailReader
	slack   SlackReader
	archive DocumentArchive   // nil when archiving is disabled
	lock    *common.RedisLock // nil in local mode
	metrics metrics.Recorder
	config  Config
	now     func() time.Time
}

type ServiceOpts struct {
	Store   Store
	Tokens  TokenSource
	Gmail   GmailReader
	Slack   SlackReader
	Archive DocumentArchive
	Lock    *common.RedisLock
	Metrics metrics.Recorder
	Config  Config
}

func NewService(opts ServiceOpts) *Service {
	cfg := opts.Config
	if cfg.GmailListMax <= 0 {
		cfg.GmailListMax = 20
	}
	if cfg.SlackMessageLimit <= 0 {
		cfg.SlackMessageLimit = clients.DefaultSlackLimit
	}
	if cfg.DedupPolicy == "" {
		cfg.DedupPolicy = types.DedupAllow
	}
	if cfg.ImportLockTTL <= 0 {
		cfg.ImportLockTTL = defaultImportLockTTL
	}

	recorder := opts.Metrics
	if recorder == nil {
		recorder = metrics.Nop{}
	}

	return &Service{
		store:   opts.Store,
		tokens:  opts.Tokens,
		gmail:   opts.Gmail,
		slack:   opts.Slack,
		archive: opts.Archive,
		lock:    opts.Lock,
		metrics: recorder,
		config:  cfg,
		now:     time.Now,
	}
}

// Requests

type GmailThreadImport struct {
	ProjectId string `json:"projectId"`
	ThreadId  string `json:"threadId"`
	Account   string `json:"account,omitempty"`
}

type GmailEmailImport struct {
	ProjectId string `json:"projectId"`
	MessageId string `json:"messageId"`
	Account   string `json:"account,omitempty"`
}

type SlackChannelImport struct {
	ProjectId    string `json:"projectId"`
	ChannelId    string `json:"channelId"`
	ChannelName  string `json:"channelName"`
	MessageLimit int    `json:"messageLimit,omitempty"`
	Account      string `json:"account,omitempty"`
}

// Connection lookup

// Connection returns the caller's connection for provider. An empty account
// selects the most recently updated one.
func (s *Service) Connection(ctx context.Context, userId, provider, account string) (*types.Connection, error) {
	conn, err := s.store.GetConnection(ctx, userId, provider, account)
	if err != nil {
		return nil, fmt.Errorf("load %s connection: %w", provider, err)
	}
	if conn == nil {
		return nil, types.NewNotConnectedError(provider)
	}
	return conn, nil
}

func (s *Service) accessToken(ctx context.Context, userId, provider, account string) (*types.Connection, string, error) {
	conn, err := s.Connection(ctx, userId, provider, account)
	if err != nil {
		return nil, "", err
	}
	token, err := s.tokens.GetValidAccessToken(ctx, conn)
	if err != nil {
		return nil, "", err
	}
	return conn, token, nil
}

func (s *Service) requireProject(ctx context.Context, userId, projectId string) (*types.Project, error) {
	project, err := s.store.GetProject(ctx, userId, projectId)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	if project == nil {
		return nil, types.NewIntegrationError(types.KindProjectNotFound, "", "Project not found")
	}
	return project, nil
}

// Gmail

func (s *Service) ListGmailThreads(ctx context.Context, userId, account, query string, max int) (*types.GmailThreadList, error) {
	if max <= 0 || max > s.config.GmailListMax {
		max = s.config.GmailListMax
	}

	_, token, err := s.accessToken(ctx, userId, types.ProviderGmail, account)
	if err != nil {
		return nil, err
	}
	return s.gmail.ListThreads(ctx, token, query, max)
}

func (s *Service) ImportGmailThread(ctx context.Context, userId string, req GmailThreadImport) (result *types.ImportResult, err error) {
	if req.ProjectId == "" || req.ThreadId == "" {
		return nil, types.NewIntegrationError(types.KindInvalidRequest, types.ProviderGmail, "projectId and threadId are required")
	}

	defer s.observe(types.ProviderGmail, s.now(), &result, &err)

	if _, err := s.requireProject(ctx, userId, req.ProjectId); err != nil {
		return nil, err
	}

	conn, token, err := s.accessToken(ctx, userId, types.ProviderGmail, req.Account)
	if err != nil {
		return nil, err
	}

	thread, err := s.gmail.GetThread(ctx, token, req.ThreadId)
	if err != nil {
		return nil, err
	}
	if len(thread.Messages) == 0 {
		return nil, types.NewIntegrationError(types.KindEmptyImport, types.ProviderGmail, "Thread has no messages")
	}

	account := conn.ExternalAccountId
	return s.persist(ctx, userId, &types.DataSource{
		ProjectId:  req.ProjectId,
		SourceType: types.SourceTypeGmail,
		Name:       "Gmail: " + thread.Subject,
		Content:    FormatGmailThread(thread, account),
		OriginId:   req.ThreadId,
		Metadata: map[string]any{
			"thread_id":     req.ThreadId,
			"subject":       thread.Subject,
			"message_count": len(thread.Messages),
			"gmail_account": account,
			"imported_at":   s.now().UTC().Format(time.RFC3339),
		},
	}, len(thread.Messages))
}

func (s *Service) ImportGmailEmail(ctx context.Context, userId string, req GmailEmailImport) (result *types.ImportResult, err error) {
	if req.ProjectId == "" || req.MessageId == "" {
		return nil, types.NewIntegrationError(types.KindInvalidRequest, types.ProviderGmail, "projectId and messageId are required")
	}

	defer s.observe(types.ProviderGmail, s.now(), &result, &err)

	if _, err := s.requireProject(ctx, userId, req.ProjectId); err != nil {
		return nil, err
	}

	conn, token, err := s.accessToken(ctx, userId, types.ProviderGmail, req.Account)
	if err != nil {
		return nil, err
	}

	email, err := s.gmail.GetMessage(ctx, token, req.MessageId)
	if err != nil {
		return nil, err
	}
	if email.Body == "" && email.Date == "" && email.From == "Unknown" {
		return nil, types.NewIntegrationError(types.KindEmptyImport, types.ProviderGmail, "Email has no content")
	}

	account := conn.ExternalAccountId
	return s.persist(ctx, userId, &types.DataSource{
		ProjectId:  req.ProjectId,
		SourceType: types.SourceTypeGmail,
		Name:       "Gmail: " + email.Subject,
		Content:    FormatGmailEmail(email, account),
		OriginId:   req.MessageId,
		Metadata: map[string]any{
			"message_id":    req.MessageId,
			"subject":       email.Subject,
			"from":          email.From,
			"gmail_account": account,
			"imported_at":   s.now().UTC().Format(time.RFC3339),
		},
	}, 1)
}

// Slack

func (s *Service) ListSlackChannels(ctx context.Context, userId, account string) ([]types.SlackChannelSummary, error) {
	_, token, err := s.accessToken(ctx, userId, types.ProviderSlack, account)
	if err != nil {
		return nil, err
	}
	return s.slack.ListChannels(ctx, token)
}

func (s *Service) ImportSlackChannel(ctx context.Context, userId string, req SlackChannelImport) (result *types.ImportResult, err error) {
	if req.ProjectId == "" || req.ChannelId == "" || req.ChannelName == "" {
		return nil, types.NewIntegrationError(types.KindInvalidRequest, types.ProviderSlack, "projectId, channelId, and channelName are required")
	}

	defer s.observe(types.ProviderSlack, s.now(), &result, &err)

	if _, err := s.requireProject(ctx, userId, req.ProjectId); err != nil {
		return nil, err
	}

	conn, token, err := s.accessToken(ctx, userId, types.ProviderSlack, req.Account)
	if err != nil {
		return nil, err
	}

	limit := req.MessageLimit
	if limit <= 0 {
		limit = s.config.SlackMessageLimit
	}

	conv, err := s.slack.FetchConversation(ctx, clients.SlackHistoryRequest{
		Token:       token,
		TeamId:      conn.ExternalAccountId,
		ChannelId:   req.ChannelId,
		ChannelName: req.ChannelName,
		Limit:       limit,
	})
	if err != nil {
		return nil, err
	}

	lines := FormatSlackLines(conv.Messages)
	if len(lines) == 0 {
		return nil, types.NewIntegrationError(types.KindEmptyImport, types.ProviderSlack, "No messages found in this channel (or channel is empty)")
	}

	return s.persist(ctx, userId, &types.DataSource{
		ProjectId:  req.ProjectId,
		SourceType: types.SourceTypeSlack,
		Name:       "Slack: #" + req.ChannelName,
		Content:    FormatSlackChannel(req.ChannelName, lines),
		OriginId:   req.ChannelId,
		Metadata: map[string]any{
			"channel_id":      req.ChannelId,
			"channel_name":    req.ChannelName,
			"slack_team":      conn.ExternalAccountId,
			"slack_team_name": conn.AccountName,
			"message_count":   len(lines),
			"imported_at":     s.now().UTC().Format(time.RFC3339),
		},
	}, len(lines))
}

// Sources

func (s *Service) ListSources(ctx context.Context, userId, projectId string) ([]types.DataSource, error) {
	if _, err := s.requireProject(ctx, userId, projectId); err != nil {
		return nil, err
	}
	return s.store.ListSources(ctx, projectId)
}

func (s *Service) DeleteSource(ctx context.Context, userId, projectId, sourceId string) error {
	if _, err := s.requireProject(ctx, userId, projectId); err != nil {
		return err
	}

	source, err := s.store.GetSource(ctx, projectId, sourceId)
	if err != nil {
		return err
	}
	if source == nil {
		return repository.ErrNotFound
	}
	return s.removeSource(ctx, source)
}

type archiveLinker interface {
	PresignDownload(ctx context.Context, key string, expires time.Duration) (string, error)
}

// SourceArchiveURL returns a short-lived download link for the archived copy
// of a source.
func (s *Service) SourceArchiveURL(ctx context.Context, userId, projectId, sourceId string) (string, error) {
	if _, err := s.requireProject(ctx, userId, projectId); err != nil {
		return "", err
	}

	source, err := s.store.GetSource(ctx, projectId, sourceId)
	if err != nil {
		return "", err
	}
	linker, ok := s.archive.(archiveLinker)
	if source == nil || source.FilePath == "" || !ok {
		return "", repository.ErrNotFound
	}
	return linker.PresignDownload(ctx, source.FilePath, 0)
}

func (s *Service) removeSource(ctx context.Context, source *types.DataSource) error {
	if err := s.store.DeleteSource(ctx, source.ProjectId, source.Id); err != nil {
		return err
	}
	if s.archive != nil && source.FilePath != "" {
		if err := s.archive.Delete(ctx, source.FilePath); err != nil {
			log.Warn().Err(err).Str("source_id", source.Id).Msg("failed to delete archived document")
		}
	}
	return nil
}

// persist applies the dedup policy, archives the document and stores it.
func (s *Service) persist(ctx context.Context, userId string, source *types.DataSource, messageCount int) (*types.ImportResult, error) {
	var replaced *types.DataSource
	if s.config.DedupPolicy != types.DedupAllow {
		release := s.lockOrigin(ctx, source)
		defer release()

		existing, err := s.store.FindSourceByOrigin(ctx, source.ProjectId, source.SourceType, source.OriginId)
		if err != nil {
			return nil, fmt.Errorf("find existing source: %w", err)
		}

		if existing != nil {
			switch s.config.DedupPolicy {
			case types.DedupSkip:
				return &types.ImportResult{
					Success:      true,
					Source:       existing,
					MessageCount: metadataInt(existing.Metadata, "message_count", messageCount),
					Skipped:      true,
				}, nil
			case types.DedupReplace:
				replaced = existing
			}
		}
	}

	source.Id = uuid.NewString()
	if s.archive != nil {
		key := fmt.Sprintf("%s/%s/%s.txt", userId, source.ProjectId, source.Id)
		if err := s.archive.Upload(ctx, key, []byte(source.Content)); err != nil {
			log.Warn().Err(err).Str("source_id", source.Id).Msg("failed to archive imported document")
		} else {
			source.FilePath = key
		}
	}

	created, err := s.store.CreateSource(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("failed to save source: %w", err)
	}

	// The previous copy goes only once its replacement is stored
	if replaced != nil {
		if err := s.removeSource(ctx, replaced); err != nil && !errors.Is(err, repository.ErrNotFound) {
			log.Warn().Err(err).Str("source_id", replaced.Id).Str("replacement_id", created.Id).Msg("failed to remove replaced source")
		}
	}

	log.Info().
		Str("project_id", created.ProjectId).
		Str("source_id", created.Id).
		Str("source_type", string(created.SourceType)).
		Int("message_count", messageCount).
		Msg("conversation imported")

	return &types.ImportResult{Success: true, Source: created, MessageCount: messageCount}, nil
}

// lockOrigin serializes dedup decisions for one conversation across
// gateways. Failing to lock is logged and the import continues.
func (s *Service) lockOrigin(ctx context.Context, source *types.DataSource) func() {
	if s.lock == nil {
		return func() {}
	}

	key := common.Keys.ImportLock(source.ProjectId, string(source.SourceType), source.OriginId)
	ttl := int(s.config.ImportLockTTL / time.Second)
	if err := s.lock.Acquire(ctx, key, common.RedisLockOptions{TtlS: ttl, Retries: 20}); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("import lock not obtained")
		return func() {}
	}
	return func() { _ = s.lock.Release(key) }
}

func (s *Service) observe(provider string, start time.Time, result **types.ImportResult, err *error) {
	outcome := metrics.ResultSuccess
	switch {
	case *err != nil:
		outcome = metrics.ResultFailure
	case *result != nil && (*result).Skipped:
		outcome = metrics.ResultSkipped
	}
	s.metrics.RecordImport(provider, outcome, s.now().Sub(start))
}

// metadataInt reads a numeric metadata value. JSON round trips turn ints
// into float64.
func metadataInt(m map[string]any, key string, fallback int) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return fallback
}
