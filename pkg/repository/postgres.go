package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/doxen-app/doxen/pkg/types"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"github.com/rs/zerolog/log"

	_ "github.com/doxen-app/doxen/pkg/repository/backend_postgres_migrations"
)

const (
	postgresApplicationName = "doxen"
	postgresConnectTimeout  = 5 * time.Second

	defaultMaxOpenConns    = 20
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
)

var _ BackendRepository = (*PostgresBackend)(nil)

// PostgresBackend stores connections, projects and data sources in Postgres.
type PostgresBackend struct {
	db     *sql.DB
	config types.PostgresConfig
}

func NewPostgresBackend(cfg types.PostgresConfig) (*PostgresBackend, error) {
	cfg, err := postgresSettings(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), postgresConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres at %s: %w", net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)), err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Int("max_open_conns", cfg.MaxOpenConns).
		Dur("conn_max_lifetime", cfg.ConnMaxLifetime).
		Msg("connected to postgres")

	return &PostgresBackend{
		db:     db,
		config: cfg,
	}, nil
}

// postgresSettings fills defaults and rejects pool settings database/sql
// would silently reinterpret.
func postgresSettings(cfg types.PostgresConfig) (types.PostgresConfig, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.Database == "" {
		cfg.Database = "doxen"
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = defaultMaxOpenConns
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = defaultMaxIdleConns
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = defaultConnMaxLifetime
	}

	switch {
	case cfg.Port < 0 || cfg.Port > 65535:
		return cfg, fmt.Errorf("invalid postgres port %d", cfg.Port)
	case cfg.MaxOpenConns < 0:
		return cfg, fmt.Errorf("postgres maxOpenConns must be positive, got %d", cfg.MaxOpenConns)
	case cfg.MaxIdleConns < 0:
		return cfg, fmt.Errorf("postgres maxIdleConns must be positive, got %d", cfg.MaxIdleConns)
	case cfg.MaxIdleConns > cfg.MaxOpenConns:
		return cfg, fmt.Errorf("postgres maxIdleConns (%d) exceeds maxOpenConns (%d)", cfg.MaxIdleConns, cfg.MaxOpenConns)
	case cfg.ConnMaxLifetime < 0:
		return cfg, fmt.Errorf("postgres connMaxLifetime must be positive, got %s", cfg.ConnMaxLifetime)
	}

	return cfg, nil
}

// postgresDSN builds a URL DSN so credentials with spaces or quotes survive.
func postgresDSN(cfg types.PostgresConfig) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Path:   "/" + cfg.Database,
	}
	if cfg.User != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}

	q := url.Values{}
	q.Set("sslmode", cfg.SSLMode)
	q.Set("application_name", postgresApplicationName)
	q.Set("connect_timeout", strconv.Itoa(int(postgresConnectTimeout.Seconds())))
	u.RawQuery = q.Encode()

	return u.String()
}

func (b *PostgresBackend) DB() *sql.DB {
	return b.db
}

func (b *PostgresBackend) Close() error {
	return b.db.Close()
}

func (b *PostgresBackend) Ping(ctx context.Context) error {
	return b.db.PingContext(ctx)
}

// RunMigrations applies the Go migrations registered with goose and returns
// once the schema is at the latest version.
func (b *PostgresBackend) RunMigrations(ctx context.Context) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, b.db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, err := goose.GetDBVersionContext(ctx, b.db)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Info().Int64("version", version).Str("database", b.config.Database).Msg("migrations complete")
	return nil
}
