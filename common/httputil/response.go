// Package httputil holds the JSON:API response helpers shared by sentinel
// HTTP handlers.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const ContentTypeJSONAPI = "application/vnd.api+json"

// WriteJSON writes data as application/json with status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	write(w, "application/json", status, data)
}

// WriteJSONAPI writes a JSON:API document with status.
func WriteJSONAPI(w http.ResponseWriter, status int, data any) {
	write(w, ContentTypeJSONAPI, status, data)
}

func write(w http.ResponseWriter, contentType string, status int, data any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// ErrorObject is a single JSON:API error.
type ErrorObject struct {
	Status int    `json:"status"`
	Code   string `json:"code"`
	Title  string `json:"title"`
	Detail string `json:"detail,omitempty"`
}

// WriteJSONAPIError writes a JSON:API error document holding one error.
func WriteJSONAPIError(w http.ResponseWriter, status int, code, title, detail string) {
	WriteJSONAPI(w, status, map[string]any{
		"errors": []ErrorObject{{Status: status, Code: code, Title: title, Detail: detail}},
	})
}

func WriteJSONAPIValidationError(w http.ResponseWriter, detail string) {
	WriteJSONAPIError(w, http.StatusBadRequest, "validation_failed", "Validation Failed", detail)
}

func WriteJSONAPINotFoundError(w http.ResponseWriter, resourceType, id string) {
	WriteJSONAPIError(w, http.StatusNotFound, "not_found", "Resource Not Found",
		"The requested "+resourceType+" with ID '"+id+"' was not found")
}

func WriteJSONAPIConflictError(w http.ResponseWriter, detail string) {
	WriteJSONAPIError(w, http.StatusConflict, "conflict", "Conflict", detail)
}

// WriteJSONAPIInternalError writes a 500. Log the cause before calling it;
// detail is shown to the client.
func WriteJSONAPIInternalError(w http.ResponseWriter, detail string) {
	WriteJSONAPIError(w, http.StatusInternalServerError, "internal_error", "Internal Server Error", detail)
}
