package repository

import (
	"context"
	"time"

	"github.com/doxen-app/doxen/pkg/types"
)

// ConnectionRepository is the token store. Connections are unique on
// (userId, provider, externalAccountId).
type ConnectionRepository interface {
	// SaveConnection inserts or updates the connection keyed by
	// (UserId, Provider, ExternalAccountId) as a single atomic write.
	SaveConnection(ctx context.Context, conn *types.Connection) (*types.Connection, error)
	// GetConnection returns nil, nil when no connection exists. An empty
	// externalAccountId selects the most recently updated connection.
	GetConnection(ctx context.Context, userId, provider, externalAccountId string) (*types.Connection, error)
	GetConnectionById(ctx context.Context, id string) (*types.Connection, error)
	ListConnections(ctx context.Context, userId, provider string) ([]types.Connection, error)
	// UpdateConnectionToken rotates the access token. An empty refreshToken
	// keeps the stored one.
	UpdateConnectionToken(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error
	// DeleteConnection returns ErrNotFound when the user owns no such connection.
	DeleteConnection(ctx context.Context, userId, id string) error
}

type ProjectRepository interface {
	CreateProject(ctx context.Context, userId, name string) (*types.Project, error)
	// GetProject returns nil, nil when the project is missing or owned by someone else.
	GetProject(ctx context.Context, userId, id string) (*types.Project, error)
	ListProjects(ctx context.Context, userId string) ([]types.Project, error)
}

type SourceRepository interface {
	CreateSource(ctx context.Context, source *types.DataSource) (*types.DataSource, error)
	GetSource(ctx context.Context, projectId, id string) (*types.DataSource, error)
	// ListSources returns sources newest first.
	ListSources(ctx context.Context, projectId string) ([]types.DataSource, error)
	FindSourceByOrigin(ctx context.Context, projectId string, sourceType types.SourceType, originId string) (*types.DataSource, error)
	DeleteSource(ctx context.Context, projectId, id string) error
}

// BackendRepository is everything the gateway persists.
type BackendRepository interface {
	ConnectionRepository
	ProjectRepository
	SourceRepository

	Ping(ctx context.Context) error
	Close() error
}
