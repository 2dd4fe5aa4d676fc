package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doxen-app/doxen/pkg/types"
)

const connectionColumns = `id, user_id, provider, external_account_id, account_name, access_token, refresh_token, expires_at, scope, extra, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(row rowScanner) (*types.Connection, error) {
	var (
		c            types.Connection
		refreshToken sql.NullString
		extra        []byte
	)
	err := row.Scan(
		&c.Id, &c.UserId, &c.Provider, &c.ExternalAccountId, &c.AccountName, &c.AccessToken,
		&refreshToken, &c.ExpiresAt, &c.Scope, &extra, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	c.RefreshToken = refreshToken.String
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &c.Extra); err != nil {
			return nil, fmt.Errorf("unmarshal extra: %w", err)
		}
	}
	return &c, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// SaveConnection upserts on (user_id, provider, external_account_id). A
// missing refresh token on re-authorization keeps the stored one.
func (r *PostgresBackend) SaveConnection(ctx context.Context, conn *types.Connection) (*types.Connection, error) {
	extra, err := json.Marshal(conn.Extra)
	if err != nil {
		return nil, fmt.Errorf("marshal extra: %w", err)
	}
	if conn.Extra == nil {
		extra = []byte("{}")
	}

	query := `
		INSERT INTO connection (user_id, provider, external_account_id, account_name, access_token, refresh_token, expires_at, scope, extra)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, provider, external_account_id)
		DO UPDATE SET
			account_name = EXCLUDED.account_name,
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, connection.refresh_token),
			expires_at = EXCLUDED.expires_at,
			scope = EXCLUDED.scope,
			extra = EXCLUDED.extra,
			updated_at = CURRENT_TIMESTAMP
		RETURNING ` + connectionColumns

	row := r.db.QueryRowContext(ctx, query,
		conn.UserId, conn.Provider, conn.ExternalAccountId, conn.AccountName, conn.AccessToken,
		nullString(conn.RefreshToken), conn.ExpiresAt, conn.Scope, extra,
	)
	saved, err := scanConnection(row)
	if err != nil {
		return nil, fmt.Errorf("save connection: %w", err)
	}
	return saved, nil
}

func (r *PostgresBackend) GetConnection(ctx context.Context, userId, provider, externalAccountId string) (*types.Connection, error) {
	var row *sql.Row
	if externalAccountId == "" {
		row = r.db.QueryRowContext(ctx, `
			SELECT `+connectionColumns+` FROM connection
			WHERE user_id = $1 AND provider = $2
			ORDER BY updated_at DESC LIMIT 1
		`, userId, provider)
	} else {
		row = r.db.QueryRowContext(ctx, `
			SELECT `+connectionColumns+` FROM connection
			WHERE user_id = $1 AND provider = $2 AND external_account_id = $3
		`, userId, provider, externalAccountId)
	}

	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return c, nil
}

func (r *PostgresBackend) GetConnectionById(ctx context.Context, id string) (*types.Connection, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connection WHERE id = $1`, id)

	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get connection by id: %w", err)
	}
	return c, nil
}

func (r *PostgresBackend) ListConnections(ctx context.Context, userId, provider string) ([]types.Connection, error) {
	query := `SELECT ` + connectionColumns + ` FROM connection WHERE user_id = $1`
	args := []any{userId}
	if provider != "" {
		query += ` AND provider = $2`
		args = append(args, provider)
	}
	query += ` ORDER BY provider, updated_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var conns []types.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		conns = append(conns, *c)
	}
	return conns, rows.Err()
}

func (r *PostgresBackend) UpdateConnectionToken(ctx context.Context, id, accessToken, refreshToken string, expiresAt *time.Time) error {
	query := `
		UPDATE connection
		SET access_token = $2, refresh_token = COALESCE($3, refresh_token), expires_at = $4, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id, accessToken, nullString(refreshToken), expiresAt)
	if err != nil {
		return fmt.Errorf("update connection token: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresBackend) DeleteConnection(ctx context.Context, userId, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM connection WHERE id = $1 AND user_id = $2`, id, userId)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
