package handlers

import (
	"encoding/json"
	"net/http"

	"secondbrain/internal/contextutil"
	"secondbrain/internal/service"
)

// userHeader carries the caller identity. Authentication happens upstream;
// the API trusts this header.
const userHeader = "X-User-ID"

// ErrorResponse represents an error response.
//
// swagger:model ErrorResponse
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusForCode maps service error codes to HTTP statuses.
func statusForCode(code service.Code) int {
	switch code {
	case service.CodeValidation:
		return http.StatusBadRequest
	case service.CodeConflict:
		return http.StatusConflict
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeForbidden:
		return http.StatusForbidden
	case service.CodeProviderUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError maps a service error to an HTTP error response. Only the
// boundary-safe message is exposed; internal detail stays in the logs.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	code := service.CodeOf(err)
	status := statusForCode(code)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, "request failed", "code", code, "error", err)
	} else {
		logger.WarnContext(ctx, "request rejected", "code", code, "error", err)
	}

	writeJSON(w, r, status, ErrorResponse{
		Error: service.MessageOf(err),
		Code:  string(code),
	})
}

// writeError writes an error response with a literal message.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	var code service.Code
	switch status {
	case http.StatusNotFound:
		code = service.CodeNotFound
	case http.StatusForbidden:
		code = service.CodeForbidden
	case http.StatusConflict:
		code = service.CodeConflict
	default:
		code = service.CodeValidation
		if status >= http.StatusInternalServerError {
			code = service.CodeInternal
		}
	}
	writeJSON(w, r, status, ErrorResponse{Error: message, Code: string(code)})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		contextutil.LoggerFromContext(r.Context()).ErrorContext(r.Context(),
			"failed to encode response", "error", err)
	}
}

// callerID extracts the caller identity header, writing a 400 when absent.
func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(userHeader)
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, userHeader+" header is required")
		return "", false
	}
	return userID, true
}

// decodeBody decodes a JSON request body, writing a 400 on malformed input.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		contextutil.LoggerFromContext(r.Context()).WarnContext(r.Context(),
			"invalid request body", "error", err)
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
