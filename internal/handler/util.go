package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/chatty-app/chat-service/internal/middleware"
	"github.com/chatty-app/chat-service/internal/model"
	"github.com/chatty-app/chat-service/internal/service"
	"github.com/chatty-app/chat-service/pkg/logger"
)

const maxBodyBytes = 1 << 20

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind"`
}

var successBody = model.SuccessResponse{Success: true}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	kind := string(service.KindInvalid)
	switch status {
	case http.StatusNotFound:
		kind = string(service.KindNotFound)
	case http.StatusForbidden:
		kind = string(service.KindForbidden)
	case http.StatusUnprocessableEntity:
		kind = string(service.KindPolicy)
	case http.StatusUnauthorized:
		kind = "unauthorized"
	case http.StatusServiceUnavailable, http.StatusInternalServerError:
		kind = "internal"
	}
	writeJSON(w, status, errorResponse{Error: message, Kind: kind})
}

// writeServiceError maps service error kinds onto HTTP statuses. Unknown
// errors are logged and reported as 500 without leaking details.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		status := http.StatusBadRequest
		switch svcErr.Kind {
		case service.KindNotFound:
			status = http.StatusNotFound
		case service.KindForbidden:
			status = http.StatusForbidden
		case service.KindPolicy:
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, errorResponse{Error: svcErr.Message, Kind: string(svcErr.Kind)})
		return
	}

	middleware.RequestLogger(r.Context(), log).Error("request failed",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal error")
}

// decodeJSON reads a size-limited JSON body into v. An empty body is
// accepted when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// queryLimit parses the limit query parameter; zero means the service
// default.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	l := r.URL.Query().Get("limit")
	if l == "" {
		return 0, true
	}
	parsed, err := strconv.Atoi(l)
	if err != nil || parsed < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return 0, false
	}
	return parsed, true
}
