package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sharashena/07.E-Commerce-server/internal/platform/auth"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/httpx"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/observability"
	"github.com/sharashena/07.E-Commerce-server/internal/services"
)

// InternalJobHandlers lets Cloud Scheduler trigger housekeeping on demand.
type InternalJobHandlers struct {
	cleanup services.CleanupService
}

// NewInternalJobHandlers constructs InternalJobHandlers.
func NewInternalJobHandlers(cleanup services.CleanupService) *InternalJobHandlers {
	return &InternalJobHandlers{cleanup: cleanup}
}

// Routes registers the /internal/jobs endpoints. Authentication is applied by the router.
func (h *InternalJobHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/jobs/cleanup", h.runCleanup)
}

func (h *InternalJobHandlers) runCleanup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.cleanup == nil {
		writeUnavailable(ctx, w)
		return
	}
	fields := []zap.Field{}
	if caller, ok := auth.ServiceIdentityFromContext(ctx); ok {
		fields = append(fields, zap.String("caller", caller.Email))
	}

	report, err := h.cleanup.Run(ctx)
	if err != nil {
		observability.FromContext(ctx).Error("cleanup job failed", append(fields, zap.Error(err))...)
		writeServiceError(ctx, w, err)
		return
	}
	observability.FromContext(ctx).Info("cleanup job triggered", append(fields,
		zap.Int("expiredTokensCleared", report.ExpiredTokensCleared),
		zap.Int("pendingOrdersDeleted", report.PendingOrdersDeleted),
	)...)
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{
		"expiredTokensCleared": report.ExpiredTokensCleared,
		"pendingOrdersDeleted": report.PendingOrdersDeleted,
		"startedAt":            formatTime(report.StartedAt),
		"durationMs":           report.Duration.Milliseconds(),
	})
}
