package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/braind/internal/auth"
	"github.com/fyrsmithlabs/braind/internal/indexer"
	"github.com/fyrsmithlabs/braind/internal/logging"
	"github.com/fyrsmithlabs/braind/internal/retrieval"
	"github.com/fyrsmithlabs/braind/internal/vectorstore"
)

type mockIndexer struct {
	summary   *indexer.RunSummary
	events    []indexer.Event
	page      *indexer.FilesPage
	counts    *indexer.FilesSummary
	purged    int64
	err       error
	lastLimit int
}

func (m *mockIndexer) Run(_ context.Context, _ indexer.RepositoryRef, limit int) (*indexer.RunSummary, error) {
	m.lastLimit = limit
	return m.summary, m.err
}

func (m *mockIndexer) Stream(_ context.Context, _ indexer.RepositoryRef, limit int) <-chan indexer.Event {
	m.lastLimit = limit
	ch := make(chan indexer.Event, len(m.events))
	for _, ev := range m.events {
		ch <- ev
	}
	close(ch)
	return ch
}

func (m *mockIndexer) ListFiles(_ context.Context, _ indexer.RepositoryRef) (*indexer.FilesPage, error) {
	return m.page, m.err
}

func (m *mockIndexer) Summary(_ context.Context, _ indexer.RepositoryRef) (*indexer.FilesSummary, error) {
	return m.counts, m.err
}

func (m *mockIndexer) Purge(_ context.Context, _ indexer.RepositoryRef) (int64, error) {
	return m.purged, m.err
}

type mockRetriever struct {
	results []vectorstore.SearchResult
	err     error
	lastK   int
}

func (m *mockRetriever) Search(_ context.Context, _ []float32, k int) ([]vectorstore.SearchResult, error) {
	m.lastK = k
	return m.results, m.err
}

func (m *mockRetriever) SearchText(_ context.Context, _ string, k int) ([]vectorstore.SearchResult, error) {
	m.lastK = k
	return m.results, m.err
}

func (m *mockRetriever) SearchLast(_ context.Context, k int) ([]vectorstore.SearchResult, error) {
	m.lastK = k
	return m.results, m.err
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

func newTestServer(t *testing.T, idx *mockIndexer, ret *mockRetriever, pinger *mockPinger) *Server {
	t.Helper()
	if idx == nil {
		idx = &mockIndexer{}
	}
	if ret == nil {
		ret = &mockRetriever{}
	}
	if pinger == nil {
		pinger = &mockPinger{}
	}
	cfg := Config{
		Host: "localhost",
		Port: 0,
		Limits: Limits{
			StreamDefault: 50,
			StreamMax:     1000,
			BatchDefault:  1000,
			BatchMax:      5000,
		},
	}
	s, err := NewServer(cfg, idx, ret, pinger, nil, logging.NewTestLogger(t))
	require.NoError(t, err)
	return s
}

func doRequest(s *Server, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealth_OK(t *testing.T) {
	s := newTestServer(t, nil, nil, &mockPinger{})
	rec := doRequest(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHealth_Degraded(t *testing.T) {
	s := newTestServer(t, nil, nil, &mockPinger{err: errors.New("connection refused")})
	rec := doRequest(s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"unreachable"`)
}

func TestIndex_DefaultLimit(t *testing.T) {
	idx := &mockIndexer{summary: &indexer.RunSummary{RunID: "r1", FilesWritten: 3}}
	s := newTestServer(t, idx, nil, nil)

	rec := doRequest(s, http.MethodPost, "/repos/acme/widgets/index", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1000, idx.lastLimit)

	var summary indexer.RunSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 3, summary.FilesWritten)
}

func TestIndex_LimitOutOfBounds(t *testing.T) {
	s := newTestServer(t, &mockIndexer{}, nil, nil)

	for _, limit := range []string{"0", "-1", "5001", "abc"} {
		rec := doRequest(s, http.MethodPost, "/repos/acme/widgets/index?limit="+limit, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}

func TestIndex_NotConnected(t *testing.T) {
	idx := &mockIndexer{err: auth.ErrNotConnected}
	s := newTestServer(t, idx, nil, nil)

	rec := doRequest(s, http.MethodPost, "/repos/acme/widgets/index", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestIndex_PlanningFailure(t *testing.T) {
	idx := &mockIndexer{err: fmt.Errorf("%w: github unreachable", indexer.ErrPlanning)}
	s := newTestServer(t, idx, nil, nil)

	rec := doRequest(s, http.MethodPost, "/repos/acme/widgets/index", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestIndexStream_EmitsSSEFrames(t *testing.T) {
	idx := &mockIndexer{events: []indexer.Event{
		{Kind: indexer.KindStart, Payload: indexer.StartPayload{Repo: "acme/widgets", ToIndex: 1}},
		{Kind: indexer.KindDone, Payload: &indexer.RunSummary{Repo: "acme/widgets"}},
	}}
	s := newTestServer(t, idx, nil, nil)

	rec := doRequest(s, http.MethodGet, "/repos/acme/widgets/index/stream", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no", rec.Header().Get("X-Accel-Buffering"))
	assert.Equal(t, 50, idx.lastLimit)

	body := rec.Body.String()
	assert.Contains(t, body, "event: start\n")
	assert.Contains(t, body, `"to_index":1`)
	assert.Contains(t, body, "event: done\n")
	assert.True(t, strings.HasSuffix(body, "\n\n"))
}

func TestIndexStream_LimitBounds(t *testing.T) {
	s := newTestServer(t, &mockIndexer{}, nil, nil)
	rec := doRequest(s, http.MethodGet, "/repos/acme/widgets/index/stream?limit=1001", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurge(t *testing.T) {
	idx := &mockIndexer{purged: 17}
	s := newTestServer(t, idx, nil, nil)

	rec := doRequest(s, http.MethodDelete, "/repos/acme/widgets/index", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted_chunks":17`)
	assert.Contains(t, rec.Body.String(), `"repo":"acme/widgets"`)
}

func TestListFiles(t *testing.T) {
	idx := &mockIndexer{page: &indexer.FilesPage{
		Repo: "acme/widgets",
		Head: "abc",
		Files: []indexer.FileStatus{
			{Path: "a.go", Size: 10, Indexed: true},
		},
	}}
	s := newTestServer(t, idx, nil, nil)

	rec := doRequest(s, http.MethodGet, "/repos/acme/widgets/files", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"indexed":true`)
}

func TestFilesSummary(t *testing.T) {
	idx := &mockIndexer{counts: &indexer.FilesSummary{Repo: "acme/widgets", Total: 9, Indexed: 4}}
	s := newTestServer(t, idx, nil, nil)

	rec := doRequest(s, http.MethodGet, "/repos/acme/widgets/files/summary", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":9`)
	assert.Contains(t, rec.Body.String(), `"indexed":4`)
}

func TestSearch_Vector(t *testing.T) {
	ret := &mockRetriever{results: []vectorstore.SearchResult{
		{Path: "a.go", StartLine: 1, EndLine: 4, Distance: 0.2, ChunkID: 3},
	}}
	s := newTestServer(t, nil, ret, nil)

	rec := doRequest(s, http.MethodPost, "/search", `{"vector":[0.1,0.2,0.3],"k":2}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, ret.lastK)
	assert.Contains(t, rec.Body.String(), `"path":"a.go"`)
}

func TestSearch_Text(t *testing.T) {
	ret := &mockRetriever{}
	s := newTestServer(t, nil, ret, nil)

	rec := doRequest(s, http.MethodPost, "/search", `{"text":"auth wiring","k":3}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, ret.lastK)
}

func TestSearch_DefaultK(t *testing.T) {
	ret := &mockRetriever{}
	s := newTestServer(t, nil, ret, nil)

	rec := doRequest(s, http.MethodPost, "/search", `{"text":"query"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, ret.lastK)
}

func TestSearch_RequiresVectorOrText(t *testing.T) {
	s := newTestServer(t, nil, &mockRetriever{}, nil)

	rec := doRequest(s, http.MethodPost, "/search", `{"k":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodPost, "/search", `{"vector":[1],"text":"both","k":3}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearch_BadQueryMapsTo400(t *testing.T) {
	ret := &mockRetriever{err: fmt.Errorf("%w: vector has dimension 2, expected 384", retrieval.ErrBadQuery)}
	s := newTestServer(t, nil, ret, nil)

	rec := doRequest(s, http.MethodPost, "/search", `{"vector":[0.1,0.2],"k":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchLast(t *testing.T) {
	ret := &mockRetriever{results: []vectorstore.SearchResult{{Path: "z.go"}}}
	s := newTestServer(t, nil, ret, nil)

	rec := doRequest(s, http.MethodGet, "/search/last?k=7", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 7, ret.lastK)
}

func TestSearchLast_NoEmbeddings(t *testing.T) {
	ret := &mockRetriever{err: vectorstore.ErrNoEmbeddings}
	s := newTestServer(t, nil, ret, nil)

	rec := doRequest(s, http.MethodGet, "/search/last", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
