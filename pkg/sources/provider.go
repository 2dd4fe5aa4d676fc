package sources

import (
	"context"
	"time"

	"github.com/doxen-app/doxen/pkg/sources/clients"
	"github.com/doxen-app/doxen/pkg/types"
)

// GmailReader reads conversations from a Gmail mailbox.
type GmailReader interface {
	ListThreads(ctx context.Context, token, query string, max int) (*types.GmailThreadList, error)
	GetThread(ctx context.Context, token, threadId string) (*types.GmailThread, error)
	GetMessage(ctx context.Context, token, messageId string) (*types.GmailEmail, error)
}

// SlackReader reads conversations from a Slack workspace.
type SlackReader interface {
	ListChannels(ctx context.Context, token string) ([]types.SlackChannelSummary, error)
	FetchConversation(ctx context.Context, req clients.SlackHistoryRequest) (*types.SlackConversation, error)
}

var (
	_ GmailReader = (*clients.GmailClient)(nil)
	_ SlackReader = (*clients.SlackClient)(nil)
)

// TokenSource hands out a currently valid access token for a connection,
// refreshing it first when needed.
type TokenSource interface {
	GetValidAccessToken(ctx context.Context, conn *types.Connection) (string, error)
}

// DocumentArchive stores a copy of each imported document outside the
// database. Optional.
type DocumentArchive interface {
	Upload(ctx context.Context, key string, content []byte) error
	Delete(ctx context.Context, key string) error
}

// Config tunes the import service.
type Config struct {
	GmailListMax      int
	SlackMessageLimit int
	DedupPolicy       types.DedupPolicy
	ImportLockTTL     time.Duration
}
