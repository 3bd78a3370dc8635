package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sharashena/07.E-Commerce-server/internal/repositories"
)

const defaultPendingRetention = 24 * time.Hour

// CleanupReport summarises one housekeeping sweep.
type CleanupReport struct {
	ExpiredTokensCleared int
	PendingOrdersDeleted int
	StartedAt            time.Time
	Duration             time.Duration
}

// CleanupServiceDeps bundles collaborators required to construct the cleanup service.
type CleanupServiceDeps struct {
	Users  repositories.UserRepository
	Orders OrderService
	// PendingRetention is how long an unpaid order survives before it is purged.
	PendingRetention time.Duration
	Clock            func() time.Time
	Logger           func(ctx context.Context, event string, fields map[string]any)
}

type cleanupService struct {
	users     repositories.UserRepository
	orders    OrderService
	retention time.Duration
	clock     func() time.Time
	logger    func(context.Context, string, map[string]any)
}

var _ CleanupService = (*cleanupService)(nil)

// NewCleanupService wires dependencies into a concrete CleanupService implementation.
func NewCleanupService(deps CleanupServiceDeps) (CleanupService, error) {
	if deps.Users == nil {
		return nil, errors.New("cleanup service: user repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("cleanup service: order service is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	retention := deps.PendingRetention
	if retention <= 0 {
		retention = defaultPendingRetention
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cleanupService{
		users:     deps.Users,
		orders:    deps.Orders,
		retention: retention,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Run clears expired emailed tokens and purges stale pending orders. Both steps run even when
// the first fails; the errors are joined.
func (s *cleanupService) Run(ctx context.Context) (CleanupReport, error) {
	start := s.clock()
	report := CleanupReport{StartedAt: start}

	var errs []error
	cleared, err := s.users.ClearExpiredTokens(ctx, start)
	report.ExpiredTokensCleared = cleared
	if err != nil {
		errs = append(errs, fmt.Errorf("clear expired tokens: %w", translateRepoError(err, userNotFoundMsg)))
	}

	deleted, err := s.orders.PurgeStalePending(ctx, s.retention)
	report.PendingOrdersDeleted = deleted
	if err != nil {
		errs = append(errs, fmt.Errorf("purge pending orders: %w", err))
	}

	report.Duration = s.clock().Sub(start)
	fields := map[string]any{
		"tokensCleared": report.ExpiredTokensCleared,
		"ordersDeleted": report.PendingOrdersDeleted,
		"durationMs":    report.Duration.Milliseconds(),
	}
	if err := errors.Join(errs...); err != nil {
		fields["severity"] = "ERROR"
		fields["error"] = err.Error()
		s.logger(ctx, "cleanup.run_failed", fields)
		return report, err
	}
	s.logger(ctx, "cleanup.completed", fields)
	return report, nil
}
