// Package indexer orchestrates repository indexing runs: plan the file set,
// then fetch, chunk, embed, and persist each file with per-file failure
// isolation.
package indexer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/braind/internal/auth"
	"github.com/fyrsmithlabs/braind/internal/chunker"
	"github.com/fyrsmithlabs/braind/internal/config"
	"github.com/fyrsmithlabs/braind/internal/githubtree"
	"github.com/fyrsmithlabs/braind/internal/vectorstore"
)

// ErrPlanning marks a run that failed before its first file: the remote tree
// or the store was unavailable while building the file set.
var ErrPlanning = errors.New("index planning failed")

// DefaultHeartbeatEvery is the chunk-write interval between progress events.
const DefaultHeartbeatEvery = 50

// RepositoryRef names a repository by its unique (owner, name) pair.
type RepositoryRef struct {
	Owner string
	Name  string
}

func (r RepositoryRef) String() string {
	return r.Owner + "/" + r.Name
}

// TreeLister is the remote tree surface an indexing run consumes.
type TreeLister interface {
	RepoInfo(ctx context.Context, owner, name string) (*githubtree.RepoMeta, error)
	ResolveHead(ctx context.Context, owner, name, defaultBranch string) (string, string, error)
	ListBlobs(ctx context.Context, owner, name, headSHA string) ([]githubtree.BlobEntry, error)
	FetchText(ctx context.Context, owner, name, blobSHA string, size int) (string, bool, error)
}

// ListerFactory builds a TreeLister from a resolved credential. Runs build a
// fresh lister per request so credentials are never cached past a run.
type ListerFactory func(ctx context.Context, token config.Secret) (TreeLister, error)

// Embedder is the embedding surface an indexing run consumes.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Store is the persistence surface an indexing run consumes.
type Store interface {
	WriteChunk(ctx context.Context, w vectorstore.ChunkWrite) (vectorstore.ChunkIDs, error)
	IndexedPaths(ctx context.Context, owner, name string) (map[string]struct{}, error)
	UpdateFileMetadata(ctx context.Context, owner, name, path, commit, contentHash string) error
	PurgeRepositoryIndex(ctx context.Context, owner, name string) (int64, error)
}

// Config holds indexing-run tunables.
type Config struct {
	ChunkMaxChars     int
	ChunkOverlapChars int
	// SkipExtensions is the lowercased extension set never indexed.
	SkipExtensions map[string]bool
	// HeartbeatEvery is the chunk-write interval between progress events.
	HeartbeatEvery int
}

// Service runs indexing over a repository tree.
type Service struct {
	creds     auth.CredentialStore
	newLister ListerFactory
	embedder  Embedder
	store     Store
	cfg       Config
	logger    *zap.Logger
	metrics   *Metrics
}

// NewService creates an indexing service.
func NewService(creds auth.CredentialStore, newLister ListerFactory, embedder Embedder, store Store, cfg Config, logger *zap.Logger, metrics *Metrics) (*Service, error) {
	if creds == nil || newLister == nil || embedder == nil || store == nil {
		return nil, fmt.Errorf("credential store, lister factory, embedder and store are required")
	}
	if cfg.ChunkMaxChars == 0 {
		cfg.ChunkMaxChars = chunker.DefaultMaxChars
	}
	if cfg.ChunkOverlapChars == 0 {
		cfg.ChunkOverlapChars = chunker.DefaultOverlapChars
	}
	if cfg.HeartbeatEvery == 0 {
		cfg.HeartbeatEvery = DefaultHeartbeatEvery
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Service{
		creds:     creds,
		newLister: newLister,
		embedder:  embedder,
		store:     store,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// plan is a resolved run: the head revision and the bounded, ordered file set
// still to index.
type plan struct {
	runID  string
	ref    RepositoryRef
	branch string
	head   string
	total  int
	files  []githubtree.BlobEntry
	lister TreeLister
}

// buildPlan resolves the head revision and selects the files to index:
// already-indexed paths and skip-listed extensions are removed, then the list
// is truncated to limit in path order.
func (s *Service) buildPlan(ctx context.Context, ref RepositoryRef, limit int) (*plan, error) {
	token, err := s.creds.TokenFor(ctx, ref.Owner)
	if err != nil {
		return nil, err
	}
	lister, err := s.newLister(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: building tree lister: %v", ErrPlanning, err)
	}

	meta, err := lister.RepoInfo(ctx, ref.Owner, ref.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: fetching repository metadata: %v", ErrPlanning, err)
	}
	branch, head, err := lister.ResolveHead(ctx, ref.Owner, ref.Name, meta.DefaultBranch)
	if err != nil {
		return nil, fmt.Errorf("%w: resolving head: %v", ErrPlanning, err)
	}
	blobs, err := lister.ListBlobs(ctx, ref.Owner, ref.Name, head)
	if err != nil {
		return nil, fmt.Errorf("%w: listing tree: %v", ErrPlanning, err)
	}
	indexed, err := s.store.IndexedPaths(ctx, ref.Owner, ref.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: loading indexed paths: %v", ErrPlanning, err)
	}

	selected := make([]githubtree.BlobEntry, 0, len(blobs))
	for _, b := range blobs {
		if _, ok := indexed[b.Path]; ok {
			continue
		}
		if s.cfg.SkipExtensions[strings.ToLower(path.Ext(b.Path))] {
			continue
		}
		selected = append(selected, b)
	}
	if limit > 0 && len(selected) > limit {
		selected = selected[:limit]
	}

	return &plan{
		runID:  uuid.NewString(),
		ref:    ref,
		branch: branch,
		head:   head,
		total:  len(blobs),
		files:  selected,
		lister: lister,
	}, nil
}

// emitFunc delivers one event to the run's consumer. A non-nil return aborts
// the run (consumer disconnected).
type emitFunc func(Event) error

// Run executes a batch indexing run and returns its summary. Per-file
// failures are recorded in the summary, never escalated.
func (s *Service) Run(ctx context.Context, ref RepositoryRef, limit int) (*RunSummary, error) {
	p, err := s.buildPlan(ctx, ref, limit)
	if err != nil {
		s.metrics.runs.WithLabelValues("planning_failed").Inc()
		return nil, err
	}
	summary, err := s.run(ctx, p, func(Event) error { return nil })
	if err != nil {
		s.metrics.runs.WithLabelValues("aborted").Inc()
		return nil, err
	}
	s.metrics.runs.WithLabelValues("completed").Inc()
	return summary, nil
}

// Stream executes an indexing run and emits one event per transition. The
// channel is closed after the terminal done or error event; consumer
// disconnect via ctx stops the run promptly.
func (s *Service) Stream(ctx context.Context, ref RepositoryRef, limit int) <-chan Event {
	ch := make(chan Event, 16)
	go func() {
		defer close(ch)
		emit := func(ev Event) error {
			select {
			case ch <- ev:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		p, err := s.buildPlan(ctx, ref, limit)
		if err != nil {
			s.metrics.runs.WithLabelValues("planning_failed").Inc()
			_ = emit(Event{Kind: KindError, Payload: ErrorPayload{Message: err.Error()}})
			return
		}
		if _, err := s.run(ctx, p, emit); err != nil {
			s.metrics.runs.WithLabelValues("aborted").Inc()
			_ = emit(Event{Kind: KindError, Payload: ErrorPayload{Message: err.Error()}})
			return
		}
		s.metrics.runs.WithLabelValues("completed").Inc()
	}()
	return ch
}

// run drives the per-file pipeline over a plan. It returns an error only when
// the run as a whole must stop (context cancelled or consumer gone); the done
// event is emitted before return on success.
func (s *Service) run(ctx context.Context, p *plan, emit emitFunc) (*RunSummary, error) {
	summary := &RunSummary{
		RunID:      p.runID,
		Repo:       p.ref.String(),
		Branch:     p.branch,
		Head:       p.head,
		Considered: len(p.files),
	}
	log := s.logger.With(
		zap.String("run_id", p.runID),
		zap.String("repo", summary.Repo),
		zap.String("head", p.head))

	if err := emit(Event{Kind: KindStart, Payload: StartPayload{
		RunID:      p.runID,
		Repo:       summary.Repo,
		Branch:     p.branch,
		Head:       p.head,
		TotalBlobs: p.total,
		ToIndex:    len(p.files),
	}}); err != nil {
		return nil, err
	}
	log.Info("index run started",
		zap.Int("total_blobs", p.total),
		zap.Int("to_index", len(p.files)))

	sinceHeartbeat := 0
	for _, blob := range p.files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := emit(Event{Kind: KindFileStart, Payload: FileStartPayload{Path: blob.Path, SizeHint: blob.Size}}); err != nil {
			return nil, err
		}

		result, err := s.indexFile(ctx, p, blob, summary, &sinceHeartbeat, emit)
		if err != nil {
			return nil, err
		}
		summary.Files = append(summary.Files, result)
	}

	if err := emit(Event{Kind: KindProgress, Payload: ProgressPayload{
		Considered:    summary.Considered,
		FilesWritten:  summary.FilesWritten,
		ChunksWritten: summary.ChunksWritten,
		Errors:        summary.Errors,
	}}); err != nil {
		return nil, err
	}
	if err := emit(Event{Kind: KindDone, Payload: summary}); err != nil {
		return nil, err
	}
	log.Info("index run finished",
		zap.Int("files_written", summary.FilesWritten),
		zap.Int("chunks_written", summary.ChunksWritten),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errors", summary.Errors))
	return summary, nil
}

// indexFile moves one file through fetch, chunk, embed and write. A returned
// error aborts the run; file-level failures are folded into the result.
func (s *Service) indexFile(ctx context.Context, p *plan, blob githubtree.BlobEntry, summary *RunSummary, sinceHeartbeat *int, emit emitFunc) (FileResult, error) {
	skip := func(reason string) (FileResult, error) {
		summary.Skipped++
		s.metrics.filesSkipped.WithLabelValues(reason).Inc()
		err := emit(Event{Kind: KindFileSkip, Payload: FileSkipPayload{Path: blob.Path, Reason: reason}})
		return FileResult{Path: blob.Path, Skipped: reason}, err
	}
	fail := func(cause error) (FileResult, error) {
		if ctx.Err() != nil {
			return FileResult{}, ctx.Err()
		}
		summary.Errors++
		s.metrics.filesFailed.Inc()
		s.logger.Warn("file indexing failed", zap.String("path", blob.Path), zap.Error(cause))
		err := emit(Event{Kind: KindError, Payload: ErrorPayload{Path: blob.Path, Message: cause.Error()}})
		return FileResult{Path: blob.Path, Error: cause.Error()}, err
	}

	text, ok, err := p.lister.FetchText(ctx, p.ref.Owner, p.ref.Name, blob.SHA, blob.Size)
	if err != nil {
		return fail(err)
	}
	if !ok {
		return skip(SkipBinaryOrLarge)
	}

	chunks := chunker.Split(text, s.cfg.ChunkMaxChars, s.cfg.ChunkOverlapChars)
	if len(chunks) == 0 {
		return skip(SkipNoChunks)
	}
	if err := emit(Event{Kind: KindFileChunked, Payload: FileChunkedPayload{
		Path:       blob.Path,
		Chunks:     len(chunks),
		TotalLines: countLines(text),
		TotalChars: len(text),
	}}); err != nil {
		return FileResult{}, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fail(fmt.Errorf("embedding %d chunks: %w", len(chunks), err))
	}
	if err := emit(Event{Kind: KindFileEmbedded, Payload: FileEmbeddedPayload{Path: blob.Path, EmbedCount: len(vectors)}}); err != nil {
		return FileResult{}, err
	}

	written := 0
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return FileResult{}, err
		}
		_, err := s.store.WriteChunk(ctx, vectorstore.ChunkWrite{
			Owner:     p.ref.Owner,
			Name:      p.ref.Name,
			Branch:    p.branch,
			Path:      blob.Path,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Embedding: vectors[i],
		})
		if err != nil {
			return fail(fmt.Errorf("writing chunk %d/%d: %w", i+1, len(chunks), err))
		}
		written++
		summary.ChunksWritten++
		s.metrics.chunksWritten.Inc()

		*sinceHeartbeat++
		if *sinceHeartbeat >= s.cfg.HeartbeatEvery {
			*sinceHeartbeat = 0
			if err := emit(Event{Kind: KindProgress, Payload: ProgressPayload{
				Considered:    summary.Considered,
				FilesWritten:  summary.FilesWritten,
				ChunksWritten: summary.ChunksWritten,
				Errors:        summary.Errors,
			}}); err != nil {
				return FileResult{}, err
			}
		}
	}

	// Metadata is a side effect of a successful write, never a reason to
	// fail the file.
	if err := s.store.UpdateFileMetadata(ctx, p.ref.Owner, p.ref.Name, blob.Path, p.head, contentHash(text)); err != nil {
		s.logger.Warn("updating file metadata failed", zap.String("path", blob.Path), zap.Error(err))
	}

	summary.FilesWritten++
	s.metrics.filesWritten.Inc()
	if err := emit(Event{Kind: KindFileWritten, Payload: FileWrittenPayload{Path: blob.Path, ChunksWritten: written}}); err != nil {
		return FileResult{}, err
	}
	return FileResult{Path: blob.Path, OK: true, Chunks: written}, nil
}

// Purge removes every chunk under the repository and clears per-file
// metadata, returning the number of deleted chunks.
func (s *Service) Purge(ctx context.Context, ref RepositoryRef) (int64, error) {
	return s.store.PurgeRepositoryIndex(ctx, ref.Owner, ref.Name)
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

func contentHash(text string) string {
	sum := sha1.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}
