package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/braind/internal/auth"
	"github.com/fyrsmithlabs/braind/internal/config"
	"github.com/fyrsmithlabs/braind/internal/githubtree"
	"github.com/fyrsmithlabs/braind/internal/logging"
	"github.com/fyrsmithlabs/braind/internal/vectorstore"
)

const testDim = 4

type mockLister struct {
	defaultBranch string
	branch        string
	head          string
	blobs         []githubtree.BlobEntry
	texts         map[string]string
	binary        map[string]bool
	fetchErr      map[string]error
	repoInfoErr   error
	listErr       error
}

func (m *mockLister) RepoInfo(_ context.Context, owner, name string) (*githubtree.RepoMeta, error) {
	if m.repoInfoErr != nil {
		return nil, m.repoInfoErr
	}
	return &githubtree.RepoMeta{Owner: owner, Name: name, DefaultBranch: m.defaultBranch}, nil
}

func (m *mockLister) ResolveHead(_ context.Context, _, _, _ string) (string, string, error) {
	return m.branch, m.head, nil
}

func (m *mockLister) ListBlobs(_ context.Context, _, _, _ string) ([]githubtree.BlobEntry, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.blobs, nil
}

func (m *mockLister) FetchText(_ context.Context, _, _, sha string, _ int) (string, bool, error) {
	if err := m.fetchErr[sha]; err != nil {
		return "", false, err
	}
	if m.binary[sha] {
		return "", false, nil
	}
	return m.texts[sha], true, nil
}

type mockEmbedder struct {
	failSubstring string
	calls         int
}

func (m *mockEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	vectors := make([][]float32, len(texts))
	for i, t := range texts {
		if m.failSubstring != "" && strings.Contains(t, m.failSubstring) {
			return nil, errors.New("inference failed")
		}
		vectors[i] = []float32{float32(len(t)), 0, 0, 0}
	}
	return vectors, nil
}

func (m *mockEmbedder) Dimension() int { return testDim }

type mockStore struct {
	indexed       map[string]struct{}
	writes        []vectorstore.ChunkWrite
	failWritePath string
	metaPaths     []string
	metaErr       error
	purged        int64
}

func (m *mockStore) WriteChunk(_ context.Context, w vectorstore.ChunkWrite) (vectorstore.ChunkIDs, error) {
	if w.Path == m.failWritePath {
		return vectorstore.ChunkIDs{}, errors.New("write failed")
	}
	m.writes = append(m.writes, w)
	return vectorstore.ChunkIDs{RepoID: 1, FileID: 2, ChunkID: int64(len(m.writes))}, nil
}

func (m *mockStore) IndexedPaths(_ context.Context, _, _ string) (map[string]struct{}, error) {
	if m.indexed == nil {
		return map[string]struct{}{}, nil
	}
	return m.indexed, nil
}

func (m *mockStore) UpdateFileMetadata(_ context.Context, _, _, path, _, _ string) error {
	m.metaPaths = append(m.metaPaths, path)
	return m.metaErr
}

func (m *mockStore) PurgeRepositoryIndex(_ context.Context, _, _ string) (int64, error) {
	return m.purged, nil
}

func newTestService(t *testing.T, lister *mockLister, embedder *mockEmbedder, store *mockStore, cfg Config) *Service {
	t.Helper()
	factory := func(_ context.Context, _ config.Secret) (TreeLister, error) {
		return lister, nil
	}
	svc, err := NewService(auth.NewStaticStore("token"), factory, embedder, store, cfg, logging.NewTestLogger(t), nil)
	require.NoError(t, err)
	return svc
}

func testRef() RepositoryRef {
	return RepositoryRef{Owner: "acme", Name: "widgets"}
}

func TestRun_MixedOutcomes(t *testing.T) {
	lister := &mockLister{
		defaultBranch: "main",
		branch:        "main",
		head:          "abc123",
		blobs: []githubtree.BlobEntry{
			{Path: "a_binary.dat", SHA: "s1", Size: 9999},
			{Path: "b_empty.txt", SHA: "s2", Size: 0},
			{Path: "c_good.go", SHA: "s3", Size: 40},
			{Path: "d_bad.go", SHA: "s4", Size: 40},
		},
		texts: map[string]string{
			"s2": "",
			"s3": "line one\nline two\n",
			"s4": "POISON\n",
		},
		binary: map[string]bool{"s1": true},
	}
	embedder := &mockEmbedder{failSubstring: "POISON"}
	store := &mockStore{}
	svc := newTestService(t, lister, embedder, store, Config{ChunkMaxChars: 100, ChunkOverlapChars: 10})

	summary, err := svc.Run(context.Background(), testRef(), 0)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Considered)
	assert.Equal(t, 1, summary.FilesWritten)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.ChunksWritten)
	assert.Equal(t, "acme/widgets", summary.Repo)
	assert.Equal(t, "abc123", summary.Head)

	require.Len(t, summary.Files, 4)
	assert.Equal(t, SkipBinaryOrLarge, summary.Files[0].Skipped)
	assert.Equal(t, SkipNoChunks, summary.Files[1].Skipped)
	assert.True(t, summary.Files[2].OK)
	assert.Equal(t, 1, summary.Files[2].Chunks)
	assert.Contains(t, summary.Files[3].Error, "inference failed")

	// One triple write for the good file, carrying branch and line range.
	require.Len(t, store.writes, 1)
	w := store.writes[0]
	assert.Equal(t, "c_good.go", w.Path)
	assert.Equal(t, "main", w.Branch)
	assert.Equal(t, 1, w.StartLine)
	assert.Equal(t, 2, w.EndLine)
	assert.Len(t, w.Embedding, testDim)

	// Metadata recorded only for the written file.
	assert.Equal(t, []string{"c_good.go"}, store.metaPaths)
}

func TestRun_LimitTruncationIsStable(t *testing.T) {
	var blobs []githubtree.BlobEntry
	texts := map[string]string{}
	for i := 0; i < 5; i++ {
		sha := fmt.Sprintf("s%d", i)
		blobs = append(blobs, githubtree.BlobEntry{Path: fmt.Sprintf("f%d.go", i), SHA: sha, Size: 10})
		texts[sha] = "content\n"
	}
	lister := &mockLister{defaultBranch: "main", branch: "main", head: "h", blobs: blobs, texts: texts}
	store := &mockStore{}
	svc := newTestService(t, lister, &mockEmbedder{}, store, Config{})

	summary, err := svc.Run(context.Background(), testRef(), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Considered)
	assert.Equal(t, 2, summary.FilesWritten)
	require.Len(t, summary.Files, 2)
	assert.Equal(t, "f0.go", summary.Files[0].Path)
	assert.Equal(t, "f1.go", summary.Files[1].Path)
}

func TestRun_FiltersIndexedAndSkipExtensions(t *testing.T) {
	lister := &mockLister{
		defaultBranch: "main", branch: "main", head: "h",
		blobs: []githubtree.BlobEntry{
			{Path: "done.go", SHA: "s1", Size: 10},
			{Path: "logo.png", SHA: "s2", Size: 10},
			{Path: "new.go", SHA: "s3", Size: 10},
		},
		texts: map[string]string{"s3": "fresh\n"},
	}
	store := &mockStore{indexed: map[string]struct{}{"done.go": {}}}
	svc := newTestService(t, lister, &mockEmbedder{}, store, Config{
		SkipExtensions: map[string]bool{".png": true},
	})

	summary, err := svc.Run(context.Background(), testRef(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Considered)
	require.Len(t, summary.Files, 1)
	assert.Equal(t, "new.go", summary.Files[0].Path)
}

func TestRun_PlanningFailure(t *testing.T) {
	lister := &mockLister{repoInfoErr: errors.New("boom")}
	svc := newTestService(t, lister, &mockEmbedder{}, &mockStore{}, Config{})

	_, err := svc.Run(context.Background(), testRef(), 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPlanning)
}

func TestRun_NotConnected(t *testing.T) {
	factory := func(_ context.Context, _ config.Secret) (TreeLister, error) {
		t.Fatal("factory must not be called without a credential")
		return nil, nil
	}
	svc, err := NewService(auth.NewStaticStore(""), factory, &mockEmbedder{}, &mockStore{}, Config{}, logging.NewTestLogger(t), nil)
	require.NoError(t, err)

	_, err = svc.Run(context.Background(), testRef(), 0)
	assert.ErrorIs(t, err, auth.ErrNotConnected)
}

func TestStream_EventOrderAndTerminalDone(t *testing.T) {
	lister := &mockLister{
		defaultBranch: "main", branch: "main", head: "h",
		blobs: []githubtree.BlobEntry{{Path: "a.go", SHA: "s1", Size: 10}},
		texts: map[string]string{"s1": "hello\nworld\n"},
	}
	svc := newTestService(t, lister, &mockEmbedder{}, &mockStore{}, Config{})

	var kinds []Kind
	for ev := range svc.Stream(context.Background(), testRef(), 0) {
		kinds = append(kinds, ev.Kind)
	}

	assert.Equal(t, []Kind{
		KindStart,
		KindFileStart,
		KindFileChunked,
		KindFileEmbedded,
		KindFileWritten,
		KindProgress,
		KindDone,
	}, kinds)
}

func TestStream_PlanningFailureEmitsError(t *testing.T) {
	lister := &mockLister{repoInfoErr: errors.New("github down")}
	svc := newTestService(t, lister, &mockEmbedder{}, &mockStore{}, Config{})

	var events []Event
	for ev := range svc.Stream(context.Background(), testRef(), 0) {
		events = append(events, ev)
	}

	require.Len(t, events, 1)
	assert.Equal(t, KindError, events[0].Kind)
	payload, ok := events[0].Payload.(ErrorPayload)
	require.True(t, ok)
	assert.Contains(t, payload.Message, "github down")
}

func TestStream_ConsumerDisconnectStopsRun(t *testing.T) {
	lister := &mockLister{
		defaultBranch: "main", branch: "main", head: "h",
		blobs: []githubtree.BlobEntry{
			{Path: "a.go", SHA: "s1", Size: 10},
			{Path: "b.go", SHA: "s2", Size: 10},
		},
		texts: map[string]string{"s1": "one\n", "s2": "two\n"},
	}
	svc := newTestService(t, lister, &mockEmbedder{}, &mockStore{}, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	ch := svc.Stream(ctx, testRef(), 0)
	ev, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, KindStart, ev.Kind)
	cancel()

	// Channel must close promptly; no terminal done is required after a
	// disconnect.
	for range ch {
	}
}

func TestRun_HeartbeatEveryNChunks(t *testing.T) {
	// 12 lines of 10 chars with a 25-char ceiling produce 6 chunks.
	var sb strings.Builder
	for i := 0; i < 12; i++ {
		sb.WriteString(fmt.Sprintf("line %04d\n", i))
	}
	lister := &mockLister{
		defaultBranch: "main", branch: "main", head: "h",
		blobs: []githubtree.BlobEntry{{Path: "big.go", SHA: "s1", Size: 120}},
		texts: map[string]string{"s1": sb.String()},
	}
	svc := newTestService(t, lister, &mockEmbedder{}, &mockStore{}, Config{
		ChunkMaxChars:     25,
		ChunkOverlapChars: 5,
		HeartbeatEvery:    2,
	})

	progress := 0
	var last ProgressPayload
	for ev := range svc.Stream(context.Background(), testRef(), 0) {
		if ev.Kind == KindProgress {
			progress++
			last = ev.Payload.(ProgressPayload)
		}
	}

	// 6 chunks at an interval of 2, plus the final summary heartbeat.
	assert.Equal(t, 4, progress)
	assert.Equal(t, 6, last.ChunksWritten)
	assert.Equal(t, 1, last.FilesWritten)
}

func TestRun_WriteFailureIsolatedPerFile(t *testing.T) {
	lister := &mockLister{
		defaultBranch: "main", branch: "main", head: "h",
		blobs: []githubtree.BlobEntry{
			{Path: "bad.go", SHA: "s1", Size: 10},
			{Path: "good.go", SHA: "s2", Size: 10},
		},
		texts: map[string]string{"s1": "x\n", "s2": "y\n"},
	}
	store := &mockStore{failWritePath: "bad.go"}
	svc := newTestService(t, lister, &mockEmbedder{}, store, Config{})

	summary, err := svc.Run(context.Background(), testRef(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 1, summary.FilesWritten)
	require.Len(t, store.writes, 1)
	assert.Equal(t, "good.go", store.writes[0].Path)
}

func TestRun_MetadataFailureDoesNotFailFile(t *testing.T) {
	lister := &mockLister{
		defaultBranch: "main", branch: "main", head: "h",
		blobs: []githubtree.BlobEntry{{Path: "a.go", SHA: "s1", Size: 10}},
		texts: map[string]string{"s1": "content\n"},
	}
	store := &mockStore{metaErr: errors.New("metadata update failed")}
	svc := newTestService(t, lister, &mockEmbedder{}, store, Config{})

	summary, err := svc.Run(context.Background(), testRef(), 0)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.FilesWritten)
	assert.Zero(t, summary.Errors)
}

func TestPurge(t *testing.T) {
	store := &mockStore{purged: 42}
	svc := newTestService(t, &mockLister{}, &mockEmbedder{}, store, Config{})

	deleted, err := svc.Purge(context.Background(), testRef())
	require.NoError(t, err)
	assert.Equal(t, int64(42), deleted)
}

func TestSummaryCountsIndexed(t *testing.T) {
	lister := &mockLister{
		defaultBranch: "main", branch: "main", head: "h",
		blobs: []githubtree.BlobEntry{
			{Path: "a.go", SHA: "s1", Size: 10},
			{Path: "b.go", SHA: "s2", Size: 10},
			{Path: "c.go", SHA: "s3", Size: 10},
		},
	}
	store := &mockStore{indexed: map[string]struct{}{"a.go": {}, "c.go": {}}}
	svc := newTestService(t, lister, &mockEmbedder{}, store, Config{})

	summary, err := svc.Summary(context.Background(), testRef())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Indexed)
}

func TestListFilesMarksIndexedPaths(t *testing.T) {
	lister := &mockLister{
		defaultBranch: "main", branch: "main", head: "deadbeef",
		blobs: []githubtree.BlobEntry{
			{Path: "a.go", SHA: "s1", Size: 11},
			{Path: "b.go", SHA: "s2", Size: 22},
		},
	}
	store := &mockStore{indexed: map[string]struct{}{"b.go": {}}}
	svc := newTestService(t, lister, &mockEmbedder{}, store, Config{})

	page, err := svc.ListFiles(context.Background(), testRef())
	require.NoError(t, err)

	assert.Equal(t, "deadbeef", page.Head)
	require.Len(t, page.Files, 2)
	assert.False(t, page.Files[0].Indexed)
	assert.True(t, page.Files[1].Indexed)
}
