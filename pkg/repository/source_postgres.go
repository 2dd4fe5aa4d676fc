package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/doxen-app/doxen/pkg/types"
)

func (r *PostgresBackend) CreateProject(ctx context.Context, userId, name string) (*types.Project, error) {
	query := `INSERT INTO project (user_id, name) VALUES ($1, $2) RETURNING id, user_id, name, created_at`

	var p types.Project
	if err := r.db.QueryRowContext(ctx, query, userId, name).Scan(&p.Id, &p.UserId, &p.Name, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return &p, nil
}

func (r *PostgresBackend) GetProject(ctx context.Context, userId, id string) (*types.Project, error) {
	query := `SELECT id, user_id, name, created_at FROM project WHERE id = $1 AND user_id = $2`

	var p types.Project
	err := r.db.QueryRowContext(ctx, query, id, userId).Scan(&p.Id, &p.UserId, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	return &p, nil
}

func (r *PostgresBackend) ListProjects(ctx context.Context, userId string) ([]types.Project, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_id, name, created_at FROM project WHERE user_id = $1 ORDER BY created_at DESC`, userId)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []types.Project
	for rows.Next() {
		var p types.Project
		if err := rows.Scan(&p.Id, &p.UserId, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

const sourceColumns = `id, project_id, source_type, name, content, metadata, file_path, origin_id, created_at`

func scanSource(row rowScanner) (*types.DataSource, error) {
	var (
		s        types.DataSource
		metadata []byte
		filePath sql.NullString
	)
	if err := row.Scan(&s.Id, &s.ProjectId, &s.SourceType, &s.Name, &s.Content, &metadata, &filePath, &s.OriginId, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.FilePath = filePath.String
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &s.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &s, nil
}

// CreateSource inserts a data source. A caller supplied Id is kept so that
// archive keys can be derived before the row exists.
func (r *PostgresBackend) CreateSource(ctx context.Context, source *types.DataSource) (*types.DataSource, error) {
	metadata, err := json.Marshal(source.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if source.Metadata == nil {
		metadata = []byte("{}")
	}

	query := `
		INSERT INTO data_source (id, project_id, source_type, name, content, metadata, file_path, origin_id)
		VALUES (COALESCE(NULLIF($1, '')::uuid, uuid_generate_v4()), $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + sourceColumns

	row := r.db.QueryRowContext(ctx, query,
		source.Id, source.ProjectId, source.SourceType, source.Name, source.Content,
		metadata, nullString(source.FilePath), source.OriginId,
	)
	created, err := scanSource(row)
	if err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}
	return created, nil
}

func (r *PostgresBackend) GetSource(ctx context.Context, projectId, id string) (*types.DataSource, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM data_source WHERE id = $1 AND project_id = $2`, id, projectId)

	s, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return s, nil
}

func (r *PostgresBackend) ListSources(ctx context.Context, projectId string) ([]types.DataSource, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM data_source WHERE project_id = $1 ORDER BY created_at DESC`, projectId)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []types.DataSource
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, *s)
	}
	return sources, rows.Err()
}

func (r *PostgresBackend) FindSourceByOrigin(ctx context.Context, projectId string, sourceType types.SourceType, originId string) (*types.DataSource, error) {
	query := `
		SELECT ` + sourceColumns + ` FROM data_source
		WHERE project_id = $1 AND source_type = $2 AND origin_id = $3
		ORDER BY created_at DESC LIMIT 1
	`
	s, err := scanSource(r.db.QueryRowContext(ctx, query, projectId, sourceType, originId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find source by origin: %w", err)
	}
	return s, nil
}

func (r *PostgresBackend) DeleteSource(ctx context.Context, projectId, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM data_source WHERE id = $1 AND project_id = $2`, id, projectId)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}

	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
