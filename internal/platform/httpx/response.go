package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DefaultBodyLimit caps JSON request bodies.
const DefaultBodyLimit int64 = 1 << 20

// ErrEmptyBody is returned by DecodeJSON when the request has no body.
var ErrEmptyBody = errors.New("request body is required")

// WriteSuccess writes {success:true, ...fields}.
func WriteSuccess(w http.ResponseWriter, status int, fields map[string]any) {
	payload := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		payload[k] = v
	}
	payload["success"] = true
	writeJSON(w, status, payload)
}

// WriteMessage writes {success:true, message}.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	WriteSuccess(w, status, map[string]any{"message": message})
}

// DecodeJSON decodes a bounded JSON body into dst. Unknown fields are ignored.
func DecodeJSON(r *http.Request, dst any, limit int64) error {
	if r.Body == nil || r.Body == http.NoBody {
		return ErrEmptyBody
	}
	if limit <= 0 {
		limit = DefaultBodyLimit
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return errors.New("request body too large")
	}
	if strings.TrimSpace(string(body)) == "" {
		return ErrEmptyBody
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.New("request body must be valid JSON")
	}
	return nil
}
