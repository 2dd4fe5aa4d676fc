package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/doxen-app/doxen/pkg/types"
	"github.com/google/uuid"
)

var _ BackendRepository = (*MemoryBackend)(nil)

// MemoryBackend implements BackendRepository in process. Used in local mode
// and tests.
type MemoryBackend struct {
	mu          sync.RWMutex
	connections map[string]*types.Connection
	projects    map[string]*types.Project
	sources     map[string]*types.DataSource
	now         func() time.Time
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		connections: make(map[string]*types.Connection),
		projects:    make(map[string]*types.Project),
		sources:     make(map[string]*types.DataSource),
		now:         time.Now,
	}
}

func (m *MemoryBackend) Ping(ctx context.Context) error { return nil }
func (m *MemoryBackend) Close() error                   { return nil }

func copyConnection(c *types.Connection) *types.Connection {
	out := *c
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		out.ExpiresAt = &t
	}
	if c.Extra != nil {
		out.Extra = make(map[string]string, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return &out
}

func (m *MemoryBackend) findConnection(userId, provider, externalAccountId string) *types.Connection {
	for _, c := range m.connections {
		if c.UserId == userId && c.Provider == provider && c.ExternalAccountId == externalAccountId {
			return c
		}
	}
	return nil
}

func (m *MemoryBackend) SaveConnection(ctx context.Context, conn *types.Connection) (*types.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing := m.findConnection(conn.UserId, conn.Provider, conn.ExternalAccountId); existing != nil {
		refreshToken := conn.RefreshToken
		if refreshToken == "" {
			refreshToken = existing.RefreshToken
		}
		updated := copyConnection(conn)
		updated.Id = existing.Id
		updated.RefreshToken = refreshToken
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = now
		m.connections[existing.Id] = updated
		return copyConnection(updated), nil
	}

	created := copyConnection(conn)
	created.Id = uuid.New().String()
	created.CreatedAt = now
	created.UpdatedAt = now
	m.connections[created.Id] = created
	return copyConnection(created), nil
}

func (m *MemoryBackend) GetConnection(ctx context.Context, userId, provider, externalAccountId string) (*types.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if externalAccountId != "" {
		if c := m.findConnection(userId, provider, externalAccountId); c != nil {
			return copyConnection(c), nil
		}
		return nil, nil
	}

	var latest *types.Connection
	for _, c := range m.connections {
		if c.UserId != userId || c.Provider != provider {
			continue
		}
		if latest == nil || c.UpdatedAt.After(latest.UpdatedAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyConnection(latest), nil
}

func (m *MemoryBackend) GetConnectionById(ctx context.Context, id string) (*types.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if c, ok := m.connections[id]; ok {
		return copyConnection(c), nil
	}
	return nil, nil
}

func (m *MemoryBackend) ListConnections(ctx context.Context, userId, provider string) ([]types.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var conns []types.Connection
	for _, c := range m.connections {
		if c.UserId != userId || (provider != "" && c.Provider != provider) {
			continue
		}
		conns = append(conns, *copyConnection(c))
	}

	sort.Slice(conns, func(i, j int) bool {
		if conns[i].Provider != conns[j].Provider {
			return conns[i].Provider < conns[j].Provider
		}
		return conns[i].UpdatedAt.After(conns[j].UpdatedAt)
	})
	return conns, nil
}

func (m *MemoryBackend) UpdateConnectionToken(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.connections[id]
	if !ok {
		return ErrNotFound
	}

	c.AccessToken = accessToken
	if refreshToken != "" {
		c.RefreshToken = refreshToken
	}
	if expiresAt != nil {
		t := *expiresAt
		c.ExpiresAt = &t
	} else {
		c.ExpiresAt = nil
	}
	c.UpdatedAt = m.now()
	return nil
}

func (m *MemoryBackend) DeleteConnection(ctx context.Context, userId, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.connections[id]
	if !ok || c.UserId != userId {
		return ErrNotFound
	}
	delete(m.connections, id)
	return nil
}

// Projects

func (m *MemoryBackend) CreateProject(ctx context.Context, userId, name string) (*types.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := &types.Project{
		Id:        uuid.New().String(),
		UserId:    userId,
		Name:      name,
		CreatedAt: m.now(),
	}
	m.projects[p.Id] = p
	out := *p
	return &out, nil
}

func (m *MemoryBackend) GetProject(ctx context.Context, userId, id string) (*types.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[id]
	if !ok || p.UserId != userId {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (m *MemoryBackend) ListProjects(ctx context.Context, userId string) ([]types.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var projects []types.Project
	for _, p := range m.projects {
		if p.UserId == userId {
			projects = append(projects, *p)
		}
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return projects, nil
}

// Sources

func (m *MemoryBackend) CreateSource(ctx context.Context, source *types.DataSource) (*types.DataSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := *source
	if s.Id == "" {
		s.Id = uuid.New().String()
	}
	s.CreatedAt = m.now()
	m.sources[s.Id] = &s
	out := s
	return &out, nil
}

func (m *MemoryBackend) GetSource(ctx context.Context, projectId, id string) (*types.DataSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sources[id]
	if !ok || s.ProjectId != projectId {
		return nil, nil
	}
	out := *s
	return &out, nil
}

func (m *MemoryBackend) ListSources(ctx context.Context, projectId string) ([]types.DataSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sources []types.DataSource
	for _, s := range m.sources {
		if s.ProjectId == projectId {
			sources = append(sources, *s)
		}
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return sources[i].CreatedAt.After(sources[j].CreatedAt)
	})
	return sources, nil
}

func (m *MemoryBackend) FindSourceByOrigin(ctx context.Context, projectId string, sourceType types.SourceType, originId string) (*types.DataSource, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var found *types.DataSource
	for _, s := range m.sources {
		if s.ProjectId != projectId || s.SourceType != sourceType || s.OriginId != originId {
			continue
		}
		if found == nil || s.CreatedAt.After(found.CreatedAt) {
			found = s
		}
	}
	if found == nil {
		return nil, nil
	}
	out := *found
	return &out, nil
}

func (m *MemoryBackend) DeleteSource(ctx context.Context, projectId, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sources[id]
	if !ok || s.ProjectId != projectId {
		return ErrNotFound
	}
	delete(m.sources, id)
	return nil
}
