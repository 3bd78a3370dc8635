package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/sharashena/07.E-Commerce-server/internal/di"
	"github.com/sharashena/07.E-Commerce-server/internal/handlers"
	"github.com/sharashena/07.E-Commerce-server/internal/payments"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/auth"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/config"
	pfirestore "github.com/sharashena/07.E-Commerce-server/internal/platform/firestore"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/idempotency"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/jobs"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/mail"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/observability"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/ratelimit"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/requestctx"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/secrets"
	"github.com/sharashena/07.E-Commerce-server/internal/platform/storage"
	"github.com/sharashena/07.E-Commerce-server/internal/repositories"
	firestoreRepo "github.com/sharashena/07.E-Commerce-server/internal/repositories/firestore"
	"github.com/sharashena/07.E-Commerce-server/internal/services"
)

const (
	meterName             = "github.com/sharashena/07.E-Commerce-server"
	idempotencyCollection = "idempotency_keys"
	idempotencySweepLimit = 500
	redisProbeTimeout     = 2 * time.Second
	firestoreDialTimeout  = 10 * time.Second
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	level, _ := config.Lookup("LOG_LEVEL")
	baseLogger, err := observability.NewLogger(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("api")
	ctx = requestctx.WithLogger(ctx, logger)

	meter := otel.Meter(meterName)

	fetcher, err := newSecretFetcher(ctx, logger, meter)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets("Auth.JWTSecret", "Payments.StripeSecretKey", "Payments.StripeWebhookSecret"),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.Names()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(cfg, startedAt)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithDialTimeout(firestoreDialTimeout))
	firestoreClient, err := firestoreProvider.Client(ctx)
	if err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	var redisClient *redis.Client
	var probes []repositories.Probe
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}()
		probes = append(probes, repositories.Probe{
			Name:    "redis",
			Timeout: redisProbeTimeout,
			Check: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}

	registry, err := firestoreRepo.NewRegistry(firestoreProvider, probes...)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	gateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
		APIKey: cfg.Payments.StripeSecretKey,
		Logger: observability.ServiceLogger(logger.Named("stripe")),
	})
	if err != nil {
		logger.Fatal("failed to initialise stripe gateway", zap.Error(err))
	}
	webhookVerifier, err := payments.NewWebhookVerifier(cfg.Payments.StripeWebhookSecret)
	if err != nil {
		logger.Fatal("failed to initialise stripe webhook verifier", zap.Error(err))
	}

	images, closeImages, err := newImageStore(ctx, cfg, logger.Named("storage"))
	if err != nil {
		logger.Fatal("failed to initialise image store", zap.Error(err))
	}
	defer closeImages()

	var mailer services.Mailer
	if cfg.Mail.Enabled() {
		smtpMailer, err := mail.NewSMTPMailer(mail.Config{
			Host:     cfg.Mail.Host,
			Port:     cfg.Mail.Port,
			Username: cfg.Mail.Username,
			Password: cfg.Mail.Password,
			From:     cfg.Mail.From,
		}, logger.Named("mail"))
		if err != nil {
			logger.Fatal("failed to initialise smtp mailer", zap.Error(err))
		}
		mailer = smtpMailer
	} else {
		logger.Warn("mail: SMTP_HOST not configured; emails are logged only")
		mailer = mail.NewLogMailer(logger.Named("mail"))
	}

	var events services.OrderEventPublisher
	if topicName := strings.TrimSpace(cfg.PubSub.OrderTopic); topicName != "" {
		pubsubClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		defer func() {
			if err := pubsubClient.Close(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		publisher, err := jobs.NewPubSubOrderEventPublisher(pubsubClient.Topic(topicName))
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		defer publisher.Stop()
		events = publisher
	}

	container, err := di.NewContainer(cfg, registry, di.Infrastructure{
		Payments: gateway,
		Images:   images,
		Mailer:   mailer,
		Events:   events,
		Hasher:   auth.BcryptHasher{Cost: cfg.Auth.BcryptCost},
		Logger:   logger.Named("services"),
		Meter:    meter,
		Build:    buildInfo,
	})
	if err != nil {
		logger.Fatal("failed to build container", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("repository close error", zap.Error(err))
		}
	}()

	sessions, err := auth.NewSessionManager(auth.SessionConfig{
		Secret:       cfg.Auth.JWTSecret,
		TTL:          cfg.Auth.SessionTTL,
		Issuer:       cfg.Auth.Issuer,
		SecureCookie: cfg.Server.Production(),
	}, time.Now)
	if err != nil {
		logger.Fatal("failed to initialise session manager", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(sessions)

	var idempotencyStore idempotency.Store
	if redisClient != nil {
		redisStore, err := idempotency.NewRedisStore(redisClient, "")
		if err != nil {
			logger.Fatal("failed to initialise idempotency store", zap.Error(err))
		}
		idempotencyStore = redisStore
	} else {
		idempotencyStore = idempotency.NewFirestoreStore(firestoreClient, idempotencyCollection)
	}
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
	)

	globalLimiter, authLimiter := newRateLimiters(cfg, redisClient, logger)

	svc := container.Services
	authHandlers := handlers.NewAuthHandlers(svc.Auth, sessions)
	userHandlers := handlers.NewUserHandlers(authenticator, svc.Users, sessions)
	productHandlers := handlers.NewProductHandlers(authenticator, svc.Products)
	reviewHandlers := handlers.NewReviewHandlers(authenticator, svc.Reviews)
	orderHandlers := handlers.NewOrderHandlers(authenticator, svc.Orders, handlers.WithOrderIdempotency(idempotencyMiddleware))
	webhookHandlers := handlers.NewPaymentWebhookHandlers(webhookVerifier, svc.Orders)
	jobHandlers := handlers.NewInternalJobHandlers(svc.Cleanup)

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
		observability.SecurityHeaders(cfg.Server.Production()),
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", cfg.Idempotency.Header},
			ExposedHeaders:   []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		ratelimit.Middleware(globalLimiter, "global", ratelimit.ClientIP),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	var opts []handlers.Option
	opts = append(opts, handlers.WithMiddlewares(middlewares...))
	opts = append(opts, handlers.WithHealthHandlers(healthHandlers))
	opts = append(opts, handlers.WithAuthRoutes(authHandlers.Routes))
	opts = append(opts, handlers.WithAuthMiddlewares(ratelimit.Middleware(authLimiter, "auth", ratelimit.ClientIP)))
	opts = append(opts, handlers.WithUserRoutes(userHandlers.Routes))
	opts = append(opts, handlers.WithProductRoutes(productHandlers.Routes))
	opts = append(opts, handlers.WithReviewRoutes(reviewHandlers.Routes))
	opts = append(opts, handlers.WithOrderRoutes(orderHandlers.Routes))
	opts = append(opts, handlers.WithWebhookRoutes(webhookHandlers.Routes))
	if oidcMiddleware := buildOIDCMiddleware(logger, cfg, meter); oidcMiddleware != nil {
		opts = append(opts, handlers.WithInternalRoutes(jobHandlers.Routes))
		opts = append(opts, handlers.WithInternalMiddlewares(oidcMiddleware))
	}

	var scheduler *jobs.Scheduler
	if cfg.Cleanup.Enabled {
		sweeper, _ := idempotencyStore.(idempotency.Sweeper)
		scheduler, err = jobs.NewScheduler("cleanup", cfg.Cleanup.Interval, 0,
			cleanupTask(svc.Cleanup, sweeper), logger.Named("jobs"))
		if err != nil {
			logger.Fatal("failed to initialise cleanup scheduler", zap.Error(err))
		}
		scheduler.Start(ctx)
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("env", cfg.Server.Environment))
	go func() {
		serverLogger.Info("e-commerce api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(cfg config.Config, started time.Time) services.BuildInfo {
	version, _ := config.Lookup("APP_VERSION")
	version = strings.TrimSpace(version)
	if version == "" {
		version = "dev"
	}
	return services.BuildInfo{
		Version:     version,
		Environment: cfg.Server.Environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, meter metric.Meter) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		value, _ := config.Lookup(key)
		return strings.TrimSpace(value)
	}

	project := lookup("SECRETS_PROJECT_ID")
	if project == "" {
		project = lookup("FIRESTORE_PROJECT_ID")
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithMeter(meter),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if path := lookup("SECRETS_FALLBACK_FILE"); path != "" {
		opts = append(opts, secrets.WithFallbackFile(path))
	}
	if strings.EqualFold(lookup("APP_ENV"), "production") {
		opts = append(opts, secrets.WithoutFallback())
	}

	return secrets.NewFetcher(ctx, opts...)
}

// newImageStore returns the configured store and a func releasing its client.
func newImageStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (services.ImageStore, func(), error) {
	if cfg.Storage.Driver == "minio" {
		store, err := storage.NewMinioImageStore(storage.MinioConfig{
			Endpoint:      cfg.Storage.Minio.Endpoint,
			AccessKey:     cfg.Storage.Minio.AccessKey,
			SecretKey:     cfg.Storage.Minio.SecretKey,
			UseSSL:        cfg.Storage.Minio.UseSSL,
			Bucket:        cfg.Storage.Bucket,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}

	client, err := cloudstorage.NewClient(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("storage client: %w", err)
	}
	store, err := storage.NewGCSImageStore(client, storage.GCSConfig{
		Bucket:        cfg.Storage.Bucket,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	}, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, func() {
		if err := client.Close(); err != nil {
			logger.Warn("storage close error", zap.Error(err))
		}
	}, nil
}

// newRateLimiters prefers Redis so limits hold across instances.
func newRateLimiters(cfg config.Config, client *redis.Client, logger *zap.Logger) (ratelimit.Limiter, ratelimit.Limiter) {
	window := cfg.RateLimits.Window
	if client != nil {
		global, errGlobal := ratelimit.NewRedisLimiter(client, "ratelimit", cfg.RateLimits.Global, window, time.Now)
		authRoute, errAuth := ratelimit.NewRedisLimiter(client, "ratelimit", cfg.RateLimits.AuthRoute, window, time.Now)
		err := errors.Join(errGlobal, errAuth)
		if err == nil {
			return global, authRoute
		}
		logger.Warn("ratelimit: redis limiter unavailable; using in-memory counters", zap.Error(err))
	}
	return ratelimit.NewMemoryLimiter(cfg.RateLimits.Global, window, time.Now),
		ratelimit.NewMemoryLimiter(cfg.RateLimits.AuthRoute, window, time.Now)
}

func cleanupTask(cleanup services.CleanupService, sweeper idempotency.Sweeper) func(context.Context) error {
	return func(ctx context.Context) error {
		if _, err := cleanup.Run(ctx); err != nil {
			return err
		}
		if sweeper == nil {
			return nil
		}
		if _, err := sweeper.CleanupExpired(ctx, time.Now().UTC(), idempotencySweepLimit); err != nil {
			return fmt.Errorf("sweep idempotency keys: %w", err)
		}
		return nil
	}
}

func buildOIDCMiddleware(logger *zap.Logger, cfg config.Config, meter metric.Meter) func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		return nil
	}

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC_AUDIENCE not configured; internal job routes disabled")
		return nil
	}
	issuers := cfg.Security.OIDC.Issuers
	if len(issuers) == 0 {
		issuers = auth.GoogleIssuers
	}

	authLogger := logger.Named("auth")
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(authLogger))
	validator := auth.NewOIDCValidator(cache,
		auth.WithOIDCLogger(authLogger),
		auth.WithOIDCMetrics(observability.NewAuthMetrics(meter, authLogger)),
	)

	return validator.RequireOIDC(audience, issuers, cfg.Security.OIDC.ServiceAccounts)
}
