// Package handler serves the movie search API.
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/searcher/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
)

type Handler struct {
	searcher *Searcher
	cache    *cache.QueryCache
	logger   *slog.Logger
}

// New returns a Handler. queryCache may be nil; it should be the cache the
// searcher uses.
func New(searcher *Searcher, queryCache *cache.QueryCache) *Handler {
	return &Handler{
		searcher: searcher,
		cache:    queryCache,
		logger:   slog.Default().With("component", "search-handler"),
	}
}

// Register mounts the search routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/search", h.Search)
	mux.HandleFunc("GET /v1/movies/{id}", h.Movie)
	mux.HandleFunc("GET /v1/stats", h.Stats)
	mux.HandleFunc("GET /v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /v1/cache/invalidate", h.CacheInvalidate)
}

// Search handles GET /v1/search?q=&offset=&limit=&check_at_least=&facets=&sort=.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	params := r.URL.Query()

	req := Request{Query: params.Get("q"), Sort: params.Get("sort")}
	for name, dst := range map[string]*int{"offset": &req.Offset, "limit": &req.Limit, "check_at_least": &req.CheckAtLeast} {
		v := params.Get(name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("%s must be a non-negative integer", name))
			return
		}
		*dst = n
	}
	for _, f := range params["facets"] {
		for name := range strings.SplitSeq(f, ",") {
			if name = strings.TrimSpace(name); name != "" {
				req.Facets = append(req.Facets, name)
			}
		}
	}

	data, hit, err := h.searcher.Search(ctx, req)
	if err != nil {
		var qpErr *apperrors.QueryParserError
		if errors.As(err, &qpErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":    qpErr.Reason,
				"position": qpErr.Pos,
			})
			return
		}
		status := apperrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			log.Error("search failed", "query", req.Query, "error", err, "status_code", status)
			h.writeError(w, status, "search failed")
			return
		}
		h.writeError(w, status, err.Error())
		return
	}
	log.Info("search completed", "query", req.Query, "cache_hit", hit, "bytes", len(data))
	w.Header().Set("Content-Type", "application/json")
	if hit {
		w.Header().Set("X-Cache", "HIT")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

// Movie handles GET /v1/movies/{id}.
func (h *Handler) Movie(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "movie id must be a positive integer")
		return
	}
	movie, err := h.searcher.Movie(id)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, movie)
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.searcher.Stats()
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
		"breaker":  h.cache.BreakerState().String(),
	})
}

// CacheInvalidate drops cached results of the current database, or of
// every database with ?all=true.
func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}
	uuid := ""
	if r.URL.Query().Get("all") != "true" {
		stats, err := h.searcher.Stats()
		if err != nil {
			h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
			return
		}
		uuid = stats.UUID
	}
	if err := h.cache.Invalidate(r.Context(), uuid); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
