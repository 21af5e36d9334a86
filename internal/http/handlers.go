package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/braind/internal/auth"
	"github.com/fyrsmithlabs/braind/internal/embeddings"
	"github.com/fyrsmithlabs/braind/internal/indexer"
	"github.com/fyrsmithlabs/braind/internal/retrieval"
	"github.com/fyrsmithlabs/braind/internal/vectorstore"
)

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.pinger.Ping(c.Request().Context()); err != nil {
		s.logger.Warn("health probe failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status":   "degraded",
			"database": "unreachable",
		})
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status":   "ok",
		"database": "ok",
	})
}

func (s *Server) handleListFiles(c echo.Context) error {
	page, err := s.indexer.ListFiles(c.Request().Context(), refFromPath(c))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, page)
}

func (s *Server) handleFilesSummary(c echo.Context) error {
	summary, err := s.indexer.Summary(c.Request().Context(), refFromPath(c))
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) handleIndex(c echo.Context) error {
	limit, err := parseLimit(c, s.cfg.Limits.BatchDefault, s.cfg.Limits.BatchMax)
	if err != nil {
		return err
	}
	summary, err := s.indexer.Run(c.Request().Context(), refFromPath(c), limit)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, summary)
}

func (s *Server) handleIndexStream(c echo.Context) error {
	limit, err := parseLimit(c, s.cfg.Limits.StreamDefault, s.cfg.Limits.StreamMax)
	if err != nil {
		return err
	}

	w := newSSEWriter(c.Response())
	w.prepare()

	ctx := c.Request().Context()
	for ev := range s.indexer.Stream(ctx, refFromPath(c), limit) {
		if err := w.writeEvent(ev); err != nil {
			// Consumer is gone; the producer stops via ctx.
			s.logger.Debug("sse write failed", zap.Error(err))
			return nil
		}
	}
	return nil
}

func (s *Server) handlePurge(c echo.Context) error {
	ref := refFromPath(c)
	deleted, err := s.indexer.Purge(c.Request().Context(), ref)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"repo":           ref.String(),
		"deleted_chunks": deleted,
	})
}

type searchRequest struct {
	Vector []float32 `json:"vector,omitempty"`
	Text   string    `json:"text,omitempty"`
	K      int       `json:"k"`
}

type searchResponse struct {
	Results []vectorstore.SearchResult `json:"results"`
}

func (s *Server) handleSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.K == 0 {
		req.K = 5
	}
	if len(req.Vector) > 0 && req.Text != "" {
		return echo.NewHTTPError(http.StatusBadRequest, "provide either vector or text, not both")
	}

	ctx := c.Request().Context()
	var (
		results []vectorstore.SearchResult
		err     error
	)
	switch {
	case len(req.Vector) > 0:
		results, err = s.retriever.Search(ctx, req.Vector, req.K)
	case req.Text != "":
		results, err = s.retriever.SearchText(ctx, req.Text, req.K)
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "vector or text is required")
	}
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, searchResponse{Results: results})
}

func (s *Server) handleSearchLast(c echo.Context) error {
	k := 5
	if raw := c.QueryParam("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return echo.NewHTTPError(http.StatusBadRequest, "k must be a positive integer")
		}
		k = parsed
	}
	results, err := s.retriever.SearchLast(c.Request().Context(), k)
	if err != nil {
		return s.mapError(err)
	}
	return c.JSON(http.StatusOK, searchResponse{Results: results})
}

func refFromPath(c echo.Context) indexer.RepositoryRef {
	return indexer.RepositoryRef{Owner: c.Param("owner"), Name: c.Param("name")}
}

// parseLimit reads the limit query parameter against mode bounds. Out-of-range
// values are a request error, not a silent clamp.
func parseLimit(c echo.Context, def, max int) (int, error) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "limit must be an integer")
	}
	if limit < 1 || limit > max {
		return 0, echo.NewHTTPError(http.StatusBadRequest,
			"limit must be between 1 and "+strconv.Itoa(max))
	}
	return limit, nil
}

// mapError translates domain sentinels to HTTP status codes.
func (s *Server) mapError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, auth.ErrNotConnected):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, indexer.ErrPlanning):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	case errors.Is(err, retrieval.ErrBadQuery),
		errors.Is(err, vectorstore.ErrDimension),
		errors.Is(err, embeddings.ErrDimensionMismatch),
		errors.Is(err, embeddings.ErrEmptyInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, vectorstore.ErrNoEmbeddings):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
