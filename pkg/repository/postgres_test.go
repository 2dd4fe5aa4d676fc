package repository

import (
	"net/url"
	"testing"
	"time"

	"github.com/doxen-app/doxen/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresSettingsDefaults(t *testing.T) {
	cfg, err := postgresSettings(types.PostgresConfig{User: "doxen"})
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Host)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, "doxen", cfg.Database)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, 20, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, cfg.ConnMaxLifetime)
}

func TestPostgresSettingsRejectsBadPool(t *testing.T) {
	tests := []struct {
		name string
		cfg  types.PostgresConfig
		want string
	}{
		{"idle above open", types.PostgresConfig{MaxOpenConns: 4, MaxIdleConns: 8}, "exceeds maxOpenConns"},
		{"negative open", types.PostgresConfig{MaxOpenConns: -1}, "maxOpenConns"},
		{"negative lifetime", types.PostgresConfig{ConnMaxLifetime: -time.Second}, "connMaxLifetime"},
		{"port out of range", types.PostgresConfig{Port: 70000}, "invalid postgres port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := postgresSettings(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestPostgresDSNEscapesCredentials(t *testing.T) {
	cfg, err := postgresSettings(types.PostgresConfig{
		Host:     "db.internal",
		User:     "doxen",
		Password: "p@ss word'",
		SSLMode:  "require",
	})
	require.NoError(t, err)

	u, err := url.Parse(postgresDSN(cfg))
	require.NoError(t, err)

	assert.Equal(t, "db.internal:5432", u.Host)
	assert.Equal(t, "/doxen", u.Path)
	password, _ := u.User.Password()
	assert.Equal(t, "p@ss word'", password)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
	assert.Equal(t, "doxen", u.Query().Get("application_name"))
}
