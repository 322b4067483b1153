package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrDatabaseCorrupt  = errors.New("database corrupt")
	ErrDatabaseLock     = errors.New("database locked")
	ErrDatabaseNotFound = errors.New("database not found")
	ErrDatabaseOpening  = errors.New("database opening failed")
	ErrQueryParser      = errors.New("query parser error")
	ErrDocNotFound      = errors.New("document not found")
	ErrSerialisation    = errors.New("serialisation error")
	ErrUnimplemented    = errors.New("unimplemented")
	ErrTimeout          = errors.New("operation timed out")

	// ErrDatabaseClosed and ErrIteratorInvalidated are both invalid operations.
	ErrDatabaseClosed      = fmt.Errorf("%w: database closed", ErrInvalidOperation)
	ErrIteratorInvalidated = fmt.Errorf("%w: iterator invalidated", ErrInvalidOperation)
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// QueryParserError reports a malformed query together with the byte offset
// in the query string where parsing failed.
type QueryParserError struct {
	Pos    int
	Reason string
}

func (e *QueryParserError) Error() string {
	return fmt.Sprintf("%s at position %d: %s", ErrQueryParser.Error(), e.Pos, e.Reason)
}

func (e *QueryParserError) Unwrap() error {
	return ErrQueryParser
}

func NewQueryParserError(pos int, format string, args ...any) *QueryParserError {
	return &QueryParserError{Pos: pos, Reason: fmt.Sprintf(format, args...)}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocNotFound), errors.Is(err, ErrDatabaseNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrQueryParser),
		errors.Is(err, ErrSerialisation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnimplemented):
		return http.StatusNotImplemented
	case errors.Is(err, ErrDatabaseLock):
		return http.StatusConflict
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrDatabaseClosed),
		errors.Is(err, ErrDatabaseOpening):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
