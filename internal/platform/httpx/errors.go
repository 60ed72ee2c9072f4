// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/hearth-cms/hearth/internal/access"
)

// Sentinel errors for domain layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrValidation = errors.New("validation failed")
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique constraint failures.
const uniqueViolation = "23505"

// ValidationError lists per-field problems. It matches ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

// NewValidationError builds a ValidationError from field/message pairs.
func NewValidationError(pairs ...string) *ValidationError {
	fields := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		fields[pairs[i]] = pairs[i+1]
	}
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrValidation) hold.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// TranslateDuplicate maps a unique violation on constraint to ErrDuplicate,
// naming field in the error. Other errors pass through unchanged.
func TranslateDuplicate(err error, field string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, field)
	}
	return err
}

// RespondError maps domain errors to HTTP responses using RFC7807.
// Unexpected errors are logged and answered with no detail.
func RespondError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var denied *access.DenyError
	var invalid *ValidationError
	switch {
	case errors.As(err, &denied):
		respondDenied(w, denied)
	case errors.As(err, &invalid):
		JSON(w, http.StatusBadRequest, ProblemDetail{
			Title:  "Validation Failed",
			Status: http.StatusBadRequest,
			Detail: "one or more fields are invalid",
			Fields: invalid.Fields,
		})
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", "")
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		if logger != nil {
			logger.Error("request failed", slog.Any("error", err))
		}
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func respondDenied(w http.ResponseWriter, denied *access.DenyError) {
	status := denied.Status()
	problem := ProblemDetail{
		Title:  http.StatusText(status),
		Status: status,
		Reason: string(denied.Decision.Reason),
	}
	switch denied.Decision.Reason {
	case access.ReasonLocked:
		problem.Locked = true
		problem.Detail = "this content is password protected"
	case access.ReasonBadPassword:
		problem.Detail = "password is incorrect"
	case access.ReasonNotFound:
		problem.Detail = ""
	}
	JSON(w, status, problem)
}
