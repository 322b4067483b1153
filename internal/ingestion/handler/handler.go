// Package handler serves the movie submission API of the indexer:
// validated changes are handed to the publisher for asynchronous indexing.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/publisher"
	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/searchcore/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/searchcore/pkg/logger"
)

const maxBodySize = 4 << 20

type Handler struct {
	publisher *publisher.Publisher
	logger    *slog.Logger
}

func New(pub *publisher.Publisher) *Handler {
	return &Handler{
		publisher: pub,
		logger:    slog.Default().With("component", "ingestion-handler"),
	}
}

// Register mounts the submission routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/movies", h.Upsert)
	mux.HandleFunc("DELETE /v1/movies/{id}", h.Delete)
	mux.HandleFunc("GET /v1/movies/{id}/status", h.Status)
}

// Upsert accepts one movie and schedules it for (re)indexing.
func (h *Handler) Upsert(w http.ResponseWriter, r *http.Request) {
	var movie ingestion.Movie
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(&movie); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.submit(w, r, ingestion.IngestEvent{Op: ingestion.OpUpsert, Movie: movie})
}

// Delete schedules the removal of a movie from the index.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.movieID(w, r)
	if !ok {
		return
	}
	h.submit(w, r, ingestion.IngestEvent{Op: ingestion.OpDelete, Movie: ingestion.Movie{ID: id}})
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, event ingestion.IngestEvent) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	if err := validator.ValidateEvent(&event); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	event.IngestedAt = time.Now().UTC()

	resp, err := h.publisher.Submit(ctx, event)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("submission failed",
			"movie_id", event.Movie.ID,
			"op", event.Op,
			"error", err,
			"status_code", statusCode,
		)
		h.writeError(w, statusCode, "submission failed")
		return
	}
	log.Info("movie submitted",
		"movie_id", resp.MovieID,
		"op", resp.Op,
	)
	h.writeJSON(w, http.StatusAccepted, resp)
}

// Status reports the indexing status recorded for a movie.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	id, ok := h.movieID(w, r)
	if !ok {
		return
	}
	status, err := h.publisher.Status(r.Context(), id)
	if err != nil {
		h.writeError(w, apperrors.HTTPStatusCode(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

func (h *Handler) movieID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		h.writeError(w, http.StatusBadRequest, "movie id must be a positive integer")
		return 0, false
	}
	return id, true
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
