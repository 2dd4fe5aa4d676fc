package backend_postgres_migrations

import (
	"database/sql"

	"github.com/pressly/goose/v3"
)

func init() {
	goose.AddMigration(upInitial, downInitial)
}

func upInitial(tx *sql.Tx) error {
	if _, err := tx.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`); err != nil {
		return err
	}

	createStatements := []string{
		`CREATE TABLE IF NOT EXISTS project (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);`,

		// One row per (user, provider, external account). Re-authorizing updates in place.
		`CREATE TABLE IF NOT EXISTS connection (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			user_id VARCHAR(255) NOT NULL,
			provider VARCHAR(32) NOT NULL,
			external_account_id VARCHAR(255) NOT NULL,
			account_name VARCHAR(255) NOT NULL DEFAULT '',
			access_token TEXT NOT NULL,
			refresh_token TEXT,
			expires_at TIMESTAMP WITH TIME ZONE,
			scope TEXT NOT NULL DEFAULT '',
			extra JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, provider, external_account_id)
		);`,

		`CREATE TABLE IF NOT EXISTS data_source (
			id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
			project_id UUID NOT NULL REFERENCES project(id) ON DELETE CASCADE,
			source_type VARCHAR(32) NOT NULL,
			name VARCHAR(512) NOT NULL,
			content TEXT NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			file_path TEXT,
			origin_id VARCHAR(255) NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);`,

		`CREATE INDEX idx_project_user_id ON project(user_id);`,
		`CREATE INDEX idx_connection_user_provider ON connection(user_id, provider, updated_at DESC);`,
		`CREATE INDEX idx_data_source_project ON data_source(project_id, created_at DESC);`,
		`CREATE INDEX idx_data_source_origin ON data_source(project_id, source_type, origin_id);`,
	}

	for _, stmt := range createStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

func downInitial(tx *sql.Tx) error {
	dropStatements := []string{
		"DROP TABLE IF EXISTS data_source;",
		"DROP TABLE IF EXISTS connection;",
		"DROP TABLE IF EXISTS project;",
	}

	for _, stmt := range dropStatements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
