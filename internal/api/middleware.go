package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/veildb/veildb/internal/access"
	"github.com/veildb/veildb/internal/cohort"
	"github.com/veildb/veildb/internal/property"
	"github.com/veildb/veildb/internal/provider"
	"github.com/veildb/veildb/internal/query"
	"github.com/veildb/veildb/internal/schema"
	"github.com/veildb/veildb/internal/source"
	"github.com/veildb/veildb/internal/state"
)

// jsonResponse writes a JSON response.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("writing json response", "error", err)
	}
}

// errorResponse writes an error JSON response.
func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// errorStatus maps domain errors to HTTP status codes: malformed input and
// unusable sources are 400, revoked keys and inactive connections are 401,
// missing entities (unknown tokens included) are 404, everything else 500.
func errorStatus(err error) int {
	if errors.Is(err, access.ErrKeyRevoked) ||
		errors.Is(err, access.ErrConnectionInactive) {
		return http.StatusUnauthorized
	}

	var notFound *state.NotFoundError
	if errors.As(err, &notFound) ||
		errors.Is(err, access.ErrKeyNotFound) ||
		errors.Is(err, cohort.ErrNotFound) {
		return http.StatusNotFound
	}

	var unknownTable *schema.UnknownTableError
	var unknownColumn *schema.UnknownColumnError
	var noRelation *schema.NoRelationError
	var noPK *schema.NoPrimaryKeyError
	var malformed *query.MalformedFilterError
	var badSlice *query.InvalidSliceError
	var unknownCmd *query.UnknownCommandError
	var unknownProp *query.UnknownPropertyError
	var unknownProvider *property.UnknownProviderError
	var arity *property.ArgumentMismatchError
	var dup *property.DuplicateNameError
	var badBackend *source.UnsupportedBackendError
	var connect *source.ConnectError
	var badBirthday *provider.InvalidBirthdayError
	var badArg *provider.InvalidArgumentError
	if errors.As(err, &malformed) || errors.As(err, &badSlice) ||
		errors.As(err, &unknownCmd) || errors.As(err, &unknownProp) ||
		errors.As(err, &unknownProvider) || errors.As(err, &arity) ||
		errors.As(err, &dup) || errors.As(err, &badBackend) ||
		errors.As(err, &unknownTable) || errors.As(err, &unknownColumn) ||
		errors.As(err, &noRelation) || errors.As(err, &noPK) ||
		errors.As(err, &connect) || errors.As(err, &badBirthday) ||
		errors.As(err, &badArg) || errors.Is(err, source.ErrInvalidFile) {
		return http.StatusBadRequest
	}

	return http.StatusInternalServerError
}

// handleError writes a domain error with its mapped status.
func handleError(w http.ResponseWriter, err error) {
	errorResponse(w, errorStatus(err), err.Error())
}

// requestLogger is middleware that logs HTTP requests.
func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
