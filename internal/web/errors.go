package web

// errors.go provides unified error response handling for the web layer.
//
// Every error is:
//   - Logged with full technical details and the request ID
//   - Mapped via core.MapError to a message, an action and a support code
//   - Returned as JSON with a status derived from its kind
//
// A strict build that stops at a bad row also reports where the row is.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/csvtable/internal/core"
	"github.com/JonMunkholm/csvtable/internal/logging"
)

var (
	errSchemaNotFound   = errors.New("schema not found")
	errEmptyInput       = errors.New("empty input")
	errDatabaseDisabled = errors.New("database not configured")
	errCacheDisabled    = errors.New("cache not configured")
	errRateLimited      = errors.New("rate limit exceeded")
	errBadRequest       = errors.New("invalid request")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code, Kind) and human-readable (Message,
// Action) fields.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Action  string         `json:"action,omitempty"`
	Code    string         `json:"code"`
	Kind    core.ErrorKind `json:"kind,omitempty"`
	Failure *failureJSON   `json:"failure,omitempty"`
}

// failureJSON is a row failure on the wire.
type failureJSON struct {
	Row    int            `json:"row"`
	Line   int            `json:"line,omitempty"`
	Path   string         `json:"path,omitempty"`
	Column string         `json:"column,omitempty"`
	Raw    string         `json:"raw,omitempty"`
	Kind   core.ErrorKind `json:"kind"`
	Error  string         `json:"error"`
}

func newFailureJSON(f *core.Failure) failureJSON {
	return failureJSON{
		Row:    f.Row,
		Line:   f.Line,
		Path:   f.Path,
		Column: f.Column,
		Raw:    f.Raw,
		Kind:   f.Kind,
		Error:  f.Err.Error(),
	}
}

// statusFor picks the HTTP status of err.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, errSchemaNotFound):
		return http.StatusNotFound
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrTooManyBuilds), errors.Is(err, errDatabaseDisabled), errors.Is(err, errCacheDisabled):
		return http.StatusServiceUnavailable
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, errEmptyInput), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}

	switch core.KindOf(err) {
	case core.KindConfiguration:
		// Query options are validated on the way in, so this is a bad schema.
		return http.StatusInternalServerError
	case core.KindUnknown:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// respondError logs the technical error server-side and writes a JSON
// error response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	s.respondErrorStatus(w, r, err, statusFor(err))
}

func (s *Server) respondErrorStatus(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)
	kind := core.KindOf(err)
	if kind == core.KindUnknown {
		kind = ""
	}

	logging.With(r.Context(), s.log).Log(r.Context(), levelFor(statusCode), "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	resp := ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
		Kind:    kind,
	}
	var f *core.Failure
	if errors.As(err, &f) {
		fj := newFailureJSON(f)
		resp.Failure = &fj
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Warn("failed to encode error response", "error", err)
	}
}

// Client errors are routine; only server-side failures log at error level.
func levelFor(status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelError
	}
	return slog.LevelWarn
}
