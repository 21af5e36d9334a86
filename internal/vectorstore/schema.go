package vectorstore

import (
	"context"
	"fmt"
)

// EnsureSchema creates the pgvector extension and the repos/files/chunks
// tables if they do not exist. This is a startup bootstrap; production
// deployments manage the schema with their migration tooling.
//
// Ownership cascades: deleting a repository deletes its files, deleting a
// file deletes its chunks.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS repos (
			id             BIGSERIAL PRIMARY KEY,
			owner          TEXT NOT NULL,
			name           TEXT NOT NULL,
			default_branch TEXT,
			UNIQUE (owner, name)
		)`,
		`CREATE TABLE IF NOT EXISTS files (
			id           BIGSERIAL PRIMARY KEY,
			repo_id      BIGINT NOT NULL REFERENCES repos(id) ON DELETE CASCADE,
			path         TEXT NOT NULL,
			commit       TEXT,
			content_hash TEXT,
			UNIQUE (repo_id, path)
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id         BIGSERIAL PRIMARY KEY,
			file_id    BIGINT NOT NULL REFERENCES files(id) ON DELETE CASCADE,
			start_line INT NOT NULL,
			end_line   INT NOT NULL,
			embedding  vector(%d)
		)`, s.dim),
		`CREATE INDEX IF NOT EXISTS chunks_file_id_idx ON chunks (file_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}
