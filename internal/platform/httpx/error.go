package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
)

// RequestIDHeader echoes the chi request id so clients can quote it in support requests.
const RequestIDHeader = "X-Request-Id"

// FieldMessage is a single entry in the error envelope. Field is omitted for request-level errors.
type FieldMessage struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Error represents the canonical JSON error envelope returned by the API.
type Error struct {
	Status   int
	Messages []FieldMessage
}

type errorEnvelope struct {
	Success bool           `json:"success"`
	Errors  []FieldMessage `json:"errors"`
}

// NewError constructs an envelope carrying one request-level message.
func NewError(message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Status:   status,
		Messages: []FieldMessage{{Message: sanitize(message, 512)}},
	}
}

// WithFields replaces the envelope messages with per-field entries.
func (e Error) WithFields(fields ...FieldMessage) Error {
	if len(fields) == 0 {
		return e
	}
	out := make([]FieldMessage, 0, len(fields))
	for _, f := range fields {
		out = append(out, FieldMessage{
			Field:   sanitize(f.Field, 80),
			Message: sanitize(f.Message, 512),
		})
	}
	e.Messages = out
	return e
}

// WriteError writes the structured error as JSON to the provided response writer.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	messages := err.Messages
	if len(messages) == 0 {
		messages = []FieldMessage{{Message: http.StatusText(status)}}
	}

	if requestID := sanitize(middleware.GetReqID(ctx), 80); requestID != "" {
		w.Header().Set(RequestIDHeader, requestID)
	}
	writeJSON(w, status, errorEnvelope{Success: false, Errors: messages})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func sanitize(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if len(value) > limit {
		value = value[:limit]
	}
	return value
}
