package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mihaimyh/gotier/pkg/gotier"
)

const (
	codeForbidden        = "forbidden"
	codeForbiddenOrigin  = "forbidden_origin"
	codeUnsupportedMedia = "unsupported_media_type"
	codeInvalidTier      = "invalid_tier"
	codeInvalidBody      = "invalid_body"
	codeRateLimited      = "rate_limited"
	codeAlreadyFree      = "already_free"
	codeMissingSession   = "missing_session_id"
)

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError maps the error taxonomy onto a status and stable code
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status  int
		message string
	)
	switch {
	case errors.Is(err, gotier.ErrAuthRequired):
		status, message = http.StatusUnauthorized, "Authentication required"
	case errors.Is(err, gotier.ErrConflict):
		status, message = http.StatusConflict, "Resource already exists"
	case errors.Is(err, gotier.ErrNotFound):
		status, message = http.StatusNotFound, "Not found"
	case errors.Is(err, gotier.ErrUpstream):
		status, message = http.StatusBadGateway, "Payment provider unavailable, please try again"
	case errors.Is(err, gotier.ErrConfiguration):
		status, message = http.StatusInternalServerError, "Service misconfigured"
	default:
		status, message = http.StatusInternalServerError, "Internal server error"
	}

	if status >= http.StatusInternalServerError {
		h.config.Logger.Error("request failed",
			gotier.F("method", r.Method),
			gotier.F("path", r.URL.Path),
			gotier.F("error", err),
		)
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: gotier.ErrorCode(err)})
}

func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
