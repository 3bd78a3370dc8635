package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/sharashena/07.E-Commerce-server/internal/payments"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/config"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/observability"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/textutil"
	"github.com/sharashena/07.E-Commerce-server/internal/repositories"
	"github.com/sharashena/07.E-Commerce-server/internal/services"
)

const readinessSlowThreshold = time.Second

// Services bundles the service-layer contracts that handlers rely upon. Concrete implementations
// are assembled via dependency injection in NewContainer.
type Services struct {
	Auth     services.AuthService
	Users    services.UserService
	Products services.ProductService
	Reviews  services.ReviewService
	Orders   services.OrderService
	Cleanup  services.CleanupService
	System   services.SystemService
}

// Infrastructure carries the external collaborators built by the process entrypoint.
type Infrastructure struct {
	Payments payments.Gateway
	Images   services.ImageStore
	Mailer   services.Mailer
	Events   services.OrderEventPublisher
	Hasher   services.PasswordHasher
	Logger   *zap.Logger
	Meter    metric.Meter
	Build    services.BuildInfo
	Clock    func() time.Time
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// NewContainer constructs the runtime dependencies. Tests can supply in-memory registries and
// fake collaborators.
func NewContainer(cfg config.Config, reg repositories.Registry, infra Infrastructure) (*Container, error) {
	if reg == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(cfg, reg, infra)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: reg,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(cfg config.Config, reg repositories.Registry, infra Infrastructure) (Services, error) {
	var svc Services

	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}
	base := infra.Logger
	if base == nil {
		base = zap.NewNop()
	}
	logFor := func(name string) func(context.Context, string, map[string]any) {
		return observability.ServiceLogger(base.Named(name))
	}

	var err error
	svc.Auth, err = services.NewAuthService(services.AuthServiceDeps{
		Users:       reg.Users(),
		Hasher:      infra.Hasher,
		Mailer:      infra.Mailer,
		Sanitizer:   textutil.NormalizeName,
		FrontendURL: cfg.FrontendURL,
		TokenTTL:    cfg.Auth.EmailTokenTTL,
		Clock:       clock,
		Logger:      logFor("auth"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build auth service: %w", err)
	}

	svc.Users, err = services.NewUserService(services.UserServiceDeps{
		Users:       reg.Users(),
		Products:    reg.Products(),
		Reviews:     reg.Reviews(),
		Images:      infra.Images,
		Mailer:      infra.Mailer,
		Sanitizer:   textutil.NormalizeName,
		FrontendURL: cfg.FrontendURL,
		TokenTTL:    cfg.Auth.EmailTokenTTL,
		Clock:       clock,
		Logger:      logFor("users"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build user service: %w", err)
	}

	svc.Products, err = services.NewProductService(services.ProductServiceDeps{
		Products:  reg.Products(),
		Reviews:   reg.Reviews(),
		Images:    infra.Images,
		Sanitizer: textutil.StripTags,
		Clock:     clock,
		Logger:    logFor("products"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build product service: %w", err)
	}

	svc.Reviews, err = services.NewReviewService(services.ReviewServiceDeps{
		Reviews:   reg.Reviews(),
		Products:  reg.Products(),
		Users:     reg.Users(),
		Sanitizer: textutil.StripTags,
		Clock:     clock,
		Logger:    logFor("reviews"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build review service: %w", err)
	}

	svc.Orders, err = services.NewOrderService(services.OrderServiceDeps{
		Orders:   reg.Orders(),
		Payments: infra.Payments,
		Currency: cfg.Payments.Currency,
		Clock:    clock,
		Events:   infra.Events,
		Logger:   logFor("orders"),
		Meter:    infra.Meter,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}

	svc.Cleanup, err = services.NewCleanupService(services.CleanupServiceDeps{
		Users:            reg.Users(),
		Orders:           svc.Orders,
		PendingRetention: cfg.Cleanup.PendingRetention,
		Clock:            clock,
		Logger:           logFor("cleanup"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cleanup service: %w", err)
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		svc.System, err = services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            clock,
			Build:            infra.Build,
			Required:         services.DefaultRequiredDependencies,
			SlowThreshold:    readinessSlowThreshold,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
	}

	return svc, nil
}
