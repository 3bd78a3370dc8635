package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/sharashena/07.E-Commerce-server/internal/platform/auth"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/httpx"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/observability"
	"github.com/sharashena/07.E-Commerce-server/internal/services"
)

const (
	msgUnauthorized       = "unauthorized user"
	msgInternal           = "something went wrong, try again later"
	msgServiceUnavailable = "service unavailable"
)

var kindStatus = []struct {
	kind   error
	status int
}{
	{services.ErrNotFound, http.StatusNotFound},
	{services.ErrBadRequest, http.StatusBadRequest},
	{services.ErrConflict, http.StatusConflict},
	{services.ErrUnauthorized, http.StatusUnauthorized},
	{services.ErrForbidden, http.StatusForbidden},
	{services.ErrGateway, http.StatusBadGateway},
	{services.ErrUnavailable, http.StatusServiceUnavailable},
}

// writeServiceError maps a service failure onto the error envelope. Errors without a kind are
// logged and surface as 500 with a generic message.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	status := http.StatusInternalServerError
	for _, candidate := range kindStatus {
		if errors.Is(err, candidate.kind) {
			status = candidate.status
			break
		}
	}

	var svcErr *services.Error
	if status == http.StatusInternalServerError || !errors.As(err, &svcErr) {
		observability.FromContext(ctx).Error("unhandled service error", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError(msgInternal, http.StatusInternalServerError))
		return
	}
	if status >= http.StatusInternalServerError {
		observability.FromContext(ctx).Warn("service dependency failure", zap.Int("status", status), zap.Error(err))
	}

	envelope := httpx.NewError(svcErr.Message, status)
	if len(svcErr.Fields) > 0 {
		fields := make([]httpx.FieldMessage, 0, len(svcErr.Fields))
		for _, f := range svcErr.Fields {
			fields = append(fields, httpx.FieldMessage{Field: f.Field, Message: f.Message})
		}
		envelope = envelope.WithFields(fields...)
	}
	httpx.WriteError(ctx, w, envelope)
}

func writeBadRequest(ctx context.Context, w http.ResponseWriter, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(message, http.StatusBadRequest))
}

func writeUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError(msgServiceUnavailable, http.StatusServiceUnavailable))
}

// writeJSON writes payloads that do not use the success envelope, such as probe responses.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeBody decodes a JSON body and writes a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst, httpx.DefaultBodyLimit); err != nil {
		writeBadRequest(r.Context(), w, err.Error())
		return false
	}
	return true
}

// actorFromRequest returns the signed-in caller. RequireAuth guarantees an identity on every
// route that reads one; the 401 covers handlers mounted without it.
func actorFromRequest(w http.ResponseWriter, r *http.Request) (services.Actor, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.UserID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError(msgUnauthorized, http.StatusUnauthorized))
		return services.Actor{}, false
	}
	return services.Actor{UserID: identity.UserID, Role: identity.Role}, true
}
