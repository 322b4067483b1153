// Package validator checks ingest events before they reach the index and
// reports every failing field at once.
package validator

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/searchcore/internal/ingestion"
)

const (
	maxTitleLength    = 1024
	maxOverviewLength = 1 << 20
	maxGenres         = 32
	maxGenreLength    = 64
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	slices.Sort(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s: %s", name, e.Fields[name]))
	}
	return strings.Join(parts, "; ")
}

// ValidateMovie checks the fields an upsert indexes.
func ValidateMovie(m *ingestion.Movie) error {
	errs := make(map[string]string)
	if m.ID <= 0 {
		errs["id"] = "id must be positive"
	}
	title := strings.TrimSpace(m.Title)
	if title == "" {
		errs["title"] = "title is required"
	} else if len(title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d bytes", maxTitleLength)
	}
	if len(m.Overview) > maxOverviewLength {
		errs["overview"] = fmt.Sprintf("overview must be at most %d bytes", maxOverviewLength)
	}
	if m.ReleaseDate < 0 {
		errs["release_date"] = "release date must not be before 1970"
	}
	if len(m.Genres) > maxGenres {
		errs["genres"] = fmt.Sprintf("at most %d genres", maxGenres)
	}
	for _, g := range m.Genres {
		if strings.TrimSpace(g) == "" || len(g) > maxGenreLength || strings.Contains(g, ",") {
			errs["genres"] = fmt.Sprintf("genre %q must be non-empty, at most %d bytes and free of commas", g, maxGenreLength)
			break
		}
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

// ValidateEvent checks an ingest event according to its operation.
func ValidateEvent(e *ingestion.IngestEvent) error {
	switch e.Op {
	case ingestion.OpUpsert:
		return ValidateMovie(&e.Movie)
	case ingestion.OpDelete:
		if e.Movie.ID <= 0 {
			return &ValidationError{Fields: map[string]string{"id": "id must be positive"}}
		}
		return nil
	}
	return &ValidationError{Fields: map[string]string{"op": fmt.Sprintf("unknown operation %q", e.Op)}}
}
