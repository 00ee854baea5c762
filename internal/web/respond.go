package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/vbonduro/segnalazioni/internal/rules"
	"github.com/vbonduro/segnalazioni/internal/service"
	"github.com/vbonduro/segnalazioni/internal/upload"
)

type errorResponse struct {
	Error string `json:"error"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps domain errors onto HTTP statuses. Anything
// unrecognised is a 500 carrying the error text.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *rules.ValidationError
	var mbe *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, rules.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid status")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "report not found")
	case errors.Is(err, service.ErrTransitionNotAllowed):
		writeError(w, http.StatusConflict, service.ErrTransitionNotAllowed.Error())
	case errors.Is(err, upload.ErrTooLarge), errors.As(err, &mbe):
		writeError(w, http.StatusRequestEntityTooLarge, upload.ErrTooLarge.Error())
	case errors.Is(err, upload.ErrUnsupportedType):
		writeError(w, http.StatusBadRequest, upload.ErrUnsupportedType.Error())
	case errors.Is(err, upload.ErrEmpty):
		writeError(w, http.StatusBadRequest, upload.ErrEmpty.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// closeWithLog closes c and logs any error, using label to identify the resource.
func closeWithLog(c io.Closer, label string, logger *slog.Logger) {
	if err := c.Close(); err != nil {
		logger.Error("failed to close resource", "label", label, "error", err)
	}
}
