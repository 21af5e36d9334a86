package vectorstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"
)

// Config holds vector store configuration.
type Config struct {
	// DatabaseURL is the Postgres connection string.
	DatabaseURL string
	// Dimension is the fixed embedding dimension D enforced on every write
	// and query.
	Dimension int
}

// Store is the Postgres/pgvector-backed vector store. It is the sole
// authority for surrogate keys and uniqueness; callers never invent
// identifiers.
type Store struct {
	pool   *pgxpool.Pool
	dim    int
	logger *zap.Logger
}

// New connects to Postgres and returns a Store. pgvector types are
// registered on every pooled connection.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: database URL required", ErrInvalidConfig)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive, got %d", ErrInvalidConfig, cfg.Dimension)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing database URL: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	return &Store{pool: pool, dim: cfg.Dimension, logger: logger}, nil
}

// Dimension returns the configured embedding dimension D.
func (s *Store) Dimension() int {
	return s.dim
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// nullable maps the empty string to SQL NULL so COALESCE-merging upserts keep
// existing values.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// UpsertRepository inserts or updates a repository by its unique
// (owner, name) pair and returns its id. On conflict the default branch is
// merged: an absent new value keeps the existing one.
func (s *Store) UpsertRepository(ctx context.Context, owner, name, defaultBranch string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO repos (owner, name, default_branch)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner, name) DO UPDATE
		SET default_branch = COALESCE(EXCLUDED.default_branch, repos.default_branch)
		RETURNING id
	`, owner, name, nullable(defaultBranch)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting repository %s/%s: %w", owner, name, err)
	}
	return id, nil
}

// UpsertFile inserts or updates a file by its unique (repo_id, path) pair and
// returns its id. On conflict commit and content_hash are merged: absent new
// values keep the existing ones.
func (s *Store) UpsertFile(ctx context.Context, repoID int64, path, commit, contentHash string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO files (repo_id, path, commit, content_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (repo_id, path) DO UPDATE
		SET commit       = COALESCE(EXCLUDED.commit, files.commit),
		    content_hash = COALESCE(EXCLUDED.content_hash, files.content_hash)
		RETURNING id
	`, repoID, path, nullable(commit), nullable(contentHash)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting file %s: %w", path, err)
	}
	return id, nil
}

// InsertChunk appends a chunk row under fileID and returns its id.
func (s *Store) InsertChunk(ctx context.Context, fileID int64, startLine, endLine int, embedding []float32) (int64, error) {
	if len(embedding) != s.dim {
		return 0, fmt.Errorf("%w: got %d, expected %d", ErrDimension, len(embedding), s.dim)
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO chunks (file_id, start_line, end_line, embedding)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, fileID, startLine, endLine, pgvector.NewVector(embedding)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting chunk: %w", err)
	}
	return id, nil
}

// WriteChunk upserts the owning repository and file and inserts the chunk as
// one atomic unit; a failure partway leaves no partial triple.
func (s *Store) WriteChunk(ctx context.Context, w ChunkWrite) (ChunkIDs, error) {
	var ids ChunkIDs
	if len(w.Embedding) != s.dim {
		return ids, fmt.Errorf("%w: got %d, expected %d", ErrDimension, len(w.Embedding), s.dim)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ids, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	err = tx.QueryRow(ctx, `
		INSERT INTO repos (owner, name, default_branch)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner, name) DO UPDATE
		SET default_branch = COALESCE(EXCLUDED.default_branch, repos.default_branch)
		RETURNING id
	`, w.Owner, w.Name, nullable(w.Branch)).Scan(&ids.RepoID)
	if err != nil {
		return ChunkIDs{}, fmt.Errorf("upserting repository %s/%s: %w", w.Owner, w.Name, err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO files (repo_id, path, commit, content_hash)
		VALUES ($1, $2, NULL, NULL)
		ON CONFLICT (repo_id, path) DO UPDATE
		SET commit       = COALESCE(EXCLUDED.commit, files.commit),
		    content_hash = COALESCE(EXCLUDED.content_hash, files.content_hash)
		RETURNING id
	`, ids.RepoID, w.Path).Scan(&ids.FileID)
	if err != nil {
		return ChunkIDs{}, fmt.Errorf("upserting file %s: %w", w.Path, err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO chunks (file_id, start_line, end_line, embedding)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, ids.FileID, w.StartLine, w.EndLine, pgvector.NewVector(w.Embedding)).Scan(&ids.ChunkID)
	if err != nil {
		return ChunkIDs{}, fmt.Errorf("inserting chunk for %s: %w", w.Path, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return ChunkIDs{}, fmt.Errorf("committing chunk write: %w", err)
	}
	return ids, nil
}

// IndexedPaths returns the set of paths under (owner, name) that have at
// least one chunk.
func (s *Store) IndexedPaths(ctx context.Context, owner, name string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT f.path
		FROM files f
		JOIN repos r ON r.id = f.repo_id
		WHERE r.owner = $1 AND r.name = $2
		  AND EXISTS (SELECT 1 FROM chunks c WHERE c.file_id = f.id)
	`, owner, name)
	if err != nil {
		return nil, fmt.Errorf("querying indexed paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scanning path: %w", err)
		}
		paths[p] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading indexed paths: %w", err)
	}
	return paths, nil
}

// KNN returns the k chunks nearest to query under L2 distance, ascending,
// excluding chunks with a null embedding.
func (s *Store) KNN(ctx context.Context, query []float32, k int) ([]SearchResult, error) {
	if len(query) != s.dim {
		return nil, fmt.Errorf("%w: got %d, expected %d", ErrDimension, len(query), s.dim)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT f.path, c.start_line, c.end_line,
		       c.embedding <-> $1 AS dist,
		       c.id
		FROM chunks c
		JOIN files f ON f.id = c.file_id
		WHERE c.embedding IS NOT NULL
		ORDER BY c.embedding <-> $1
		LIMIT $2
	`, pgvector.NewVector(query), k)
	if err != nil {
		return nil, fmt.Errorf("querying knn: %w", err)
	}
	defer rows.Close()

	return scanSearchResults(rows)
}

// KNNFromLast runs KNN using the most recently inserted non-null embedding as
// the query vector. Smoke-testing aid only.
func (s *Store) KNNFromLast(ctx context.Context, k int) ([]SearchResult, error) {
	rows, err := s.pool.Query(ctx, `
		WITH q AS (
			SELECT embedding FROM chunks
			WHERE embedding IS NOT NULL
			ORDER BY id DESC
			LIMIT 1
		)
		SELECT f.path, c.start_line, c.end_line,
		       c.embedding <-> q.embedding AS dist,
		       c.id
		FROM chunks c
		CROSS JOIN q
		JOIN files f ON f.id = c.file_id
		WHERE c.embedding IS NOT NULL
		ORDER BY c.embedding <-> q.embedding
		LIMIT $1
	`, k)
	if err != nil {
		return nil, fmt.Errorf("querying knn from last: %w", err)
	}
	defer rows.Close()

	results, err := scanSearchResults(rows)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrNoEmbeddings
	}
	return results, nil
}

func scanSearchResults(rows pgx.Rows) ([]SearchResult, error) {
	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.StartLine, &r.EndLine, &r.Distance, &r.ChunkID); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search results: %w", err)
	}
	return results, nil
}

// UpdateFileMetadata sets a file's commit and content hash after its chunks
// are written. Callers treat a failure here as a non-critical side effect.
func (s *Store) UpdateFileMetadata(ctx context.Context, owner, name, path, commit, contentHash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE files f
		SET commit = $4, content_hash = $5
		FROM repos r
		WHERE f.repo_id = r.id
		  AND r.owner = $1 AND r.name = $2
		  AND f.path = $3
	`, owner, name, path, nullable(commit), nullable(contentHash))
	if err != nil {
		return fmt.Errorf("updating file metadata for %s: %w", path, err)
	}
	return nil
}

// PurgeRepositoryIndex deletes all chunks under the repository's files and
// clears each file's commit/content_hash, leaving repository and file rows
// intact. Returns the number of deleted chunks.
func (s *Store) PurgeRepositoryIndex(ctx context.Context, owner, name string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	tag, err := tx.Exec(ctx, `
		DELETE FROM chunks c
		USING files f, repos r
		WHERE c.file_id = f.id
		  AND f.repo_id = r.id
		  AND r.owner = $1 AND r.name = $2
	`, owner, name)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for %s/%s: %w", owner, name, err)
	}
	deleted := tag.RowsAffected()

	_, err = tx.Exec(ctx, `
		UPDATE files f
		SET commit = NULL, content_hash = NULL
		FROM repos r
		WHERE f.repo_id = r.id
		  AND r.owner = $1 AND r.name = $2
	`, owner, name)
	if err != nil {
		return 0, fmt.Errorf("clearing file metadata for %s/%s: %w", owner, name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("committing purge: %w", err)
	}

	s.logger.Info("purged repository index",
		zap.String("owner", owner),
		zap.String("name", name),
		zap.Int64("deleted_chunks", deleted))
	return deleted, nil
}
