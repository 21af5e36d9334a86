// Package vectorstore persists repositories, files, and embedded chunks in
// Postgres with pgvector, and serves nearest-neighbor queries over the chunk
// vectors.
package vectorstore

// Repository is a row in the repos table, identified by the unique
// (owner, name) pair.
type Repository struct {
	ID            int64  `json:"id"`
	Owner         string `json:"owner"`
	Name          string `json:"name"`
	DefaultBranch string `json:"default_branch,omitempty"`
}

// File is a row in the files table, identified by the unique
// (repo_id, path) pair. Commit and ContentHash are change-audit fields,
// cleared when the repository index is purged.
type File struct {
	ID          int64  `json:"id"`
	RepoID      int64  `json:"repo_id"`
	Path        string `json:"path"`
	Commit      string `json:"commit,omitempty"`
	ContentHash string `json:"content_hash,omitempty"`
}

// ChunkWrite is one chunk write tied to its owning (repository, file) pair.
// The store upserts the repository and file and inserts the chunk in a single
// transaction.
type ChunkWrite struct {
	Owner     string
	Name      string
	Branch    string
	Path      string
	StartLine int
	EndLine   int
	Embedding []float32
}

// ChunkIDs carries the surrogate keys assigned by a chunk write.
type ChunkIDs struct {
	RepoID  int64 `json:"repo_id"`
	FileID  int64 `json:"file_id"`
	ChunkID int64 `json:"chunk_id"`
}

// SearchResult is one nearest-neighbor hit, ascending by Distance.
type SearchResult struct {
	Path      string  `json:"path"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Distance  float64 `json:"distance"`
	ChunkID   int64   `json:"chunk_id"`
}
