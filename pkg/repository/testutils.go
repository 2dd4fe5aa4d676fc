package repository

import (
	"github.com/alicebob/miniredis/v2"
	"github.com/doxen-app/doxen/pkg/common"
	"github.com/doxen-app/doxen/pkg/types"
)

// NewRedisClientForTest creates a Redis client backed by miniredis for testing
func NewRedisClientForTest() (*common.RedisClient, *miniredis.Miniredis, error) {
	s, err := miniredis.Run()
	if err != nil {
		return nil, nil, err
	}

	rdb, err := common.NewRedisClient(types.RedisConfig{
		Addrs: []string{s.Addr()},
		Mode:  types.RedisModeSingle,
	})
	if err != nil {
		s.Close()
		return nil, nil, err
	}

	return rdb, s, nil
}

// NewMemoryBackendForTest returns an empty in-memory backend seeded with one
// project owned by userId.
func NewMemoryBackendForTest(userId string) (*MemoryBackend, *types.Project) {
	m := NewMemoryBackend()
	project := &types.Project{Id: "project-1", UserId: userId, Name: "Test project", CreatedAt: m.now()}
	m.projects[project.Id] = project
	return m, project
}
