package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestTaxonomyWrapping(t *testing.T) {
	if !errors.Is(ErrDatabaseClosed, ErrInvalidOperation) {
		t.Error("ErrDatabaseClosed should be an invalid operation")
	}
	if !errors.Is(ErrIteratorInvalidated, ErrInvalidOperation) {
		t.Error("ErrIteratorInvalidated should be an invalid operation")
	}
	if errors.Is(ErrDatabaseClosed, ErrIteratorInvalidated) {
		t.Error("closed and invalidated must be distinguishable")
	}
}

func TestQueryParserError(t *testing.T) {
	err := fmt.Errorf("parse: %w", NewQueryParserError(7, "unbalanced %s", "parenthesis"))
	if !errors.Is(err, ErrQueryParser) {
		t.Fatal("expected ErrQueryParser in chain")
	}
	var qpe *QueryParserError
	if !errors.As(err, &qpe) {
		t.Fatal("expected *QueryParserError in chain")
	}
	if qpe.Pos != 7 {
		t.Errorf("Pos = %d, want 7", qpe.Pos)
	}
}

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrDocNotFound, http.StatusNotFound},
		{NewQueryParserError(0, "x"), http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", ErrInvalidArgument), http.StatusBadRequest},
		{ErrUnimplemented, http.StatusNotImplemented},
		{ErrDatabaseLock, http.StatusConflict},
		{ErrDatabaseClosed, http.StatusServiceUnavailable},
		{ErrDatabaseCorrupt, http.StatusInternalServerError},
		{New(ErrInvalidArgument, http.StatusTeapot, "custom"), http.StatusTeapot},
	}
	for _, tt := range tests {
		if got := HTTPStatusCode(tt.err); got != tt.want {
			t.Errorf("HTTPStatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
