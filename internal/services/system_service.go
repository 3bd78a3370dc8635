package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/sharashena/07.E-Commerce-server/internal/domain"
	"github.com/sharashena/07.E-Commerce-server/internal/repositories"
)

// DefaultRequiredDependencies are the probes readiness cannot pass without.
var DefaultRequiredDependencies = []string{"firestore"}

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	Environment string
	StartedAt   time.Time
}

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	Clock            func() time.Time
	Build            BuildInfo
	// Required names dependencies that must be probed and healthy. Defaults to
	// DefaultRequiredDependencies.
	Required []string
	// SlowThreshold marks passing probes slower than this as degraded. Zero disables it.
	SlowThreshold time.Duration
}

type systemService struct {
	health   repositories.HealthRepository
	now      func() time.Time
	build    BuildInfo
	required []string
	slow     time.Duration
}

var _ SystemService = (*systemService)(nil)

// NewSystemService builds the readiness reporter.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	required := deps.Required
	if required == nil {
		required = DefaultRequiredDependencies
	}
	svc := &systemService{
		health:   deps.HealthRepository,
		now:      func() time.Time { return clock().UTC() },
		build:    deps.Build,
		required: required,
		slow:     deps.SlowThreshold,
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.now()
	}
	return svc, nil
}

// HealthReport collects the probes and grades them. A required dependency that is missing or
// failing turns the report to error; slow or optional failures only degrade it.
func (s *systemService) HealthReport(ctx context.Context) (HealthReport, error) {
	report, err := s.health.Collect(ctx)
	if err != nil {
		return HealthReport{}, fmt.Errorf("collect health: %w", err)
	}

	now := s.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	report.GeneratedAt = report.GeneratedAt.UTC()
	report.Version = s.build.Version
	report.Environment = s.build.Environment
	report.Uptime = now.Sub(s.build.StartedAt)

	checks := make(map[string]domain.DependencyHealth, len(report.Checks)+len(s.required))
	for name, check := range report.Checks {
		if s.slow > 0 && check.Status == domain.HealthStatusOK && check.Latency > s.slow {
			check.Status = domain.HealthStatusDegraded
			check.Detail = "slow: " + check.Latency.Round(time.Millisecond).String()
		}
		checks[name] = check
	}

	status := domain.HealthStatusOK
	if strings.TrimSpace(report.Status) != "" {
		status = report.Status
	}
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
		case domain.HealthStatusError:
			status = domain.HealthStatusError
		default:
			status = worseStatus(status, domain.HealthStatusDegraded)
		}
	}
	for _, name := range s.required {
		check, ok := checks[name]
		if !ok {
			checks[name] = domain.DependencyHealth{
				Status:    domain.HealthStatusError,
				Detail:    "not probed",
				CheckedAt: now,
			}
			status = domain.HealthStatusError
			continue
		}
		// A slow but answering dependency only degrades; a failed one blocks readiness.
		if check.Error != "" || check.Status == domain.HealthStatusError {
			status = domain.HealthStatusError
		}
	}

	report.Checks = checks
	report.Status = status
	return report, nil
}

func worseStatus(a, b string) string {
	rank := func(s string) int {
		switch s {
		case domain.HealthStatusError:
			return 2
		case domain.HealthStatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
