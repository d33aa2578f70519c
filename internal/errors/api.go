package errors

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// Problem is an RFC 7807 problem document, the only error body the API
// returns
type Problem struct {
	Type       string   `json:"type"`
	Title      string   `json:"title"`
	Status     int      `json:"status"`
	Detail     string   `json:"detail,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
	Retryable  bool     `json:"retryable,omitempty"`
	RequestID  string   `json:"request_id,omitempty"`
}

func (p *Problem) Render(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "application/problem+json")
	render.Status(r, p.Status)
	return nil
}

// ToProblem maps a domain error to its problem document. Unrecognized
// errors become opaque 500s so internals never leak to clients.
func ToProblem(err error) *Problem {
	var dnf *DimensionNotFoundError
	var vf *ValidationFailure
	var qt *QueryTimeout
	switch {
	case errors.As(err, &dnf):
		if len(dnf.Candidates) > 0 {
			return &Problem{
				Type:       "ambiguous-label",
				Title:      "Ambiguous dimension label",
				Status:     http.StatusBadRequest,
				Detail:     dnf.Error(),
				Candidates: dnf.Candidates,
			}
		}
		return &Problem{
			Type:   "dimension-not-found",
			Title:  "Unknown dimension label",
			Status: http.StatusNotFound,
			Detail: dnf.Error(),
		}
	case errors.As(err, &vf):
		return &Problem{
			Type:   "validation-failure",
			Title:  "Invalid request",
			Status: http.StatusBadRequest,
			Detail: vf.Error(),
		}
	case errors.As(err, &qt):
		return &Problem{
			Type:      "query-timeout",
			Title:     "Query timed out",
			Status:    http.StatusGatewayTimeout,
			Detail:    qt.Error(),
			Retryable: true,
		}
	}
	return &Problem{
		Type:   "internal",
		Title:  "Internal server error",
		Status: http.StatusInternalServerError,
	}
}

// ErrorHandler renders domain errors as problem documents and logs the
// ones the client is not told about
type ErrorHandler struct {
	logger *slog.Logger
}

// NewErrorHandler creates a handler writing problem+json responses
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorHandler{logger: logger.With("component", "error_handler")}
}

// HandleError writes the problem document for err to w
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	problem := ToProblem(err)
	problem.RequestID = middleware.GetReqID(r.Context())

	if problem.Status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", problem.RequestID,
			"error", err)
	}

	if renderErr := render.Render(w, r, problem); renderErr != nil {
		h.logger.Error("problem render failed", "error", renderErr)
	}
}
