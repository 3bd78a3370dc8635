package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultEnvironment      = "development"
	defaultLogLevel         = "info"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultRequestTimeout   = 20 * time.Second
	defaultSessionTTL       = 24 * time.Hour
	defaultEmailTokenTTL    = 15 * time.Minute
	defaultCurrency         = "gel"
	defaultStorageDriver    = StorageDriverGCS
	defaultSMTPPort         = 587
	defaultRateWindow       = 15 * time.Minute
	defaultRateLimit        = 200
	defaultAuthRateLimit    = 20
	defaultIdempotencyKey   = "Idempotency-Key"
	defaultIdempotencyTTL   = 24 * time.Hour
	defaultCleanupInterval  = 30 * time.Minute
	defaultPendingRetention = 24 * time.Hour
	defaultOIDCJWKSURL      = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOIDCIssuer       = "https://accounts.google.com"
	minJWTSecretLength      = 32
)

// Storage drivers accepted by STORAGE_DRIVER.
const (
	StorageDriverGCS   = "gcs"
	StorageDriverMinio = "minio"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firestore   FirestoreConfig
	Auth        AuthConfig
	Payments    PaymentsConfig
	Storage     StorageConfig
	Mail        MailConfig
	Redis       RedisConfig
	RateLimits  RateLimitConfig
	Idempotency IdempotencyConfig
	Cleanup     CleanupConfig
	PubSub      PubSubConfig
	Security    SecurityConfig
	CORS        CORSConfig
	FrontendURL string
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port           string
	Environment    string
	LogLevel       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	RequestTimeout time.Duration
}

// Production reports whether the service runs with production cookie and header settings.
func (s ServerConfig) Production() bool {
	return s.Environment == "production"
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// AuthConfig configures sessions and emailed tokens.
type AuthConfig struct {
	JWTSecret     string
	SessionTTL    time.Duration
	EmailTokenTTL time.Duration
	Issuer        string
	BcryptCost    int
}

// PaymentsConfig collects Stripe settings.
type PaymentsConfig struct {
	StripeSecretKey     string
	StripeWebhookSecret string
	Currency            string
}

// StorageConfig selects the image store.
type StorageConfig struct {
	Driver        string
	Bucket        string
	PublicBaseURL string
	Minio         MinioConfig
}

// MinioConfig points at a self-hosted S3 compatible endpoint.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// MailConfig configures the SMTP relay.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether a relay is configured.
func (m MailConfig) Enabled() bool { return m.Host != "" }

// RedisConfig configures the shared Redis instance. An empty Addr disables Redis.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RateLimitConfig controls request throttling.
type RateLimitConfig struct {
	Window    time.Duration
	Global    int
	AuthRoute int
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// CleanupConfig schedules the housekeeping job.
type CleanupConfig struct {
	Enabled          bool
	Interval         time.Duration
	PendingRetention time.Duration
}

// PubSubConfig configures order event publishing. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID  string
	OrderTopic string
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	OIDC OIDCConfig
}

// OIDCConfig controls Google-signed token verification for internal job endpoints.
type OIDCConfig struct {
	JWKSURL         string
	Audience        string
	Issuers         []string
	ServiceAccounts []string
}

// CORSConfig lists browser origins allowed to call the API with credentials.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to nothing. The
// message carries hashed names only.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	redacted := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		redacted = append(redacted, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(redacted)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// Names returns the config field names of the missing secrets.
func (e *MissingSecretsError) Names() []string {
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap injects an explicit key/value map that wins over every other source.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for sm:// and secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks config fields (e.g. "Auth.JWTSecret") that must resolve to a value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// Lookup resolves a single key using Load's precedence. main uses it to read the Secret
// Manager project before the resolver exists.
func Lookup(key string, opts ...Option) (string, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	lookup, err := options.lookup()
	if err != nil {
		return "", err
	}
	value, _ := lookup(key)
	return value, nil
}

func defaultOptions() loaderOptions {
	return loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
			return "", errSecretResolverNotConfigured
		}),
	}
}

// lookup layers the explicit map over the process environment over the .env file.
func (o loaderOptions) lookup() (func(string) (string, bool), error) {
	dotEnv, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if value, ok := o.envMap[key]; ok {
			return value, true
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnv[key]
		return value, ok
	}, nil
}

// Load assembles the application configuration from defaults, the .env file, the process
// environment and Secret Manager references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	lookup, err := options.lookup()
	if err != nil {
		return Config{}, err
	}

	frontend := strings.TrimRight(stringWithDefault(lookup, "FRONTEND_URL", ""), "/")
	cfg := Config{
		Server: ServerConfig{
			Port:           stringWithDefault(lookup, "PORT", defaultPort),
			Environment:    strings.ToLower(stringWithDefault(lookup, "APP_ENV", defaultEnvironment)),
			LogLevel:       stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel),
			ReadTimeout:    durationWithDefault(lookup, "SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:   durationWithDefault(lookup, "SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:    durationWithDefault(lookup, "SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout: durationWithDefault(lookup, "SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "FIRESTORE_EMULATOR_HOST", ""),
		},
		Auth: AuthConfig{
			JWTSecret:     stringWithDefault(lookup, "JWT_SECRET", ""),
			SessionTTL:    durationWithDefault(lookup, "JWT_TTL", defaultSessionTTL),
			EmailTokenTTL: durationWithDefault(lookup, "EMAIL_TOKEN_TTL", defaultEmailTokenTTL),
			Issuer:        stringWithDefault(lookup, "JWT_ISSUER", ""),
			BcryptCost:    intWithDefault(lookup, "BCRYPT_COST", 0),
		},
		Payments: PaymentsConfig{
			StripeSecretKey:     stringWithDefault(lookup, "STRIPE_SECRET_KEY", ""),
			StripeWebhookSecret: stringWithDefault(lookup, "STRIPE_WEBHOOK_SECRET", ""),
			Currency:            strings.ToLower(stringWithDefault(lookup, "PAYMENT_CURRENCY", defaultCurrency)),
		},
		Storage: StorageConfig{
			Driver:        strings.ToLower(stringWithDefault(lookup, "STORAGE_DRIVER", defaultStorageDriver)),
			Bucket:        stringWithDefault(lookup, "STORAGE_BUCKET", ""),
			PublicBaseURL: strings.TrimRight(stringWithDefault(lookup, "STORAGE_PUBLIC_BASE_URL", ""), "/"),
			Minio: MinioConfig{
				Endpoint:  stringWithDefault(lookup, "MINIO_ENDPOINT", ""),
				AccessKey: stringWithDefault(lookup, "MINIO_ACCESS_KEY", ""),
				SecretKey: stringWithDefault(lookup, "MINIO_SECRET_KEY", ""),
				UseSSL:    boolWithDefault(lookup, "MINIO_USE_SSL", true),
			},
		},
		Mail: MailConfig{
			Host:     stringWithDefault(lookup, "SMTP_HOST", ""),
			Port:     intWithDefault(lookup, "SMTP_PORT", defaultSMTPPort),
			Username: stringWithDefault(lookup, "SMTP_USERNAME", ""),
			Password: stringWithDefault(lookup, "SMTP_PASSWORD", ""),
			From:     stringWithDefault(lookup, "SMTP_FROM", ""),
		},
		Redis: RedisConfig{
			Addr:     stringWithDefault(lookup, "REDIS_ADDR", ""),
			Password: stringWithDefault(lookup, "REDIS_PASSWORD", ""),
			DB:       intWithDefault(lookup, "REDIS_DB", 0),
		},
		RateLimits: RateLimitConfig{
			Window:    durationWithDefault(lookup, "RATE_LIMIT_WINDOW", defaultRateWindow),
			Global:    intWithDefault(lookup, "RATE_LIMIT_MAX", defaultRateLimit),
			AuthRoute: intWithDefault(lookup, "RATE_LIMIT_AUTH_MAX", defaultAuthRateLimit),
		},
		Idempotency: IdempotencyConfig{
			Header: stringWithDefault(lookup, "IDEMPOTENCY_HEADER", defaultIdempotencyKey),
			TTL:    durationWithDefault(lookup, "IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
		Cleanup: CleanupConfig{
			Enabled:          boolWithDefault(lookup, "CLEANUP_ENABLED", true),
			Interval:         durationWithDefault(lookup, "CLEANUP_INTERVAL", defaultCleanupInterval),
			PendingRetention: durationWithDefault(lookup, "CLEANUP_PENDING_RETENTION", defaultPendingRetention),
		},
		PubSub: PubSubConfig{
			ProjectID:  stringWithDefault(lookup, "PUBSUB_PROJECT_ID", ""),
			OrderTopic: stringWithDefault(lookup, "PUBSUB_ORDER_TOPIC", ""),
		},
		Security: SecurityConfig{
			OIDC: OIDCConfig{
				JWKSURL:         stringWithDefault(lookup, "OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience:        stringWithDefault(lookup, "OIDC_AUDIENCE", ""),
				Issuers:         csvWithDefault(lookup, "OIDC_ISSUERS"),
				ServiceAccounts: csvWithDefault(lookup, "OIDC_SERVICE_ACCOUNTS"),
			},
		},
		CORS: CORSConfig{
			AllowedOrigins: csvWithDefault(lookup, "CORS_ALLOWED_ORIGINS"),
		},
		FrontendURL: frontend,
	}

	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultOIDCIssuer, strings.TrimPrefix(defaultOIDCIssuer, "https://")}
	}
	if len(cfg.CORS.AllowedOrigins) == 0 && frontend != "" {
		cfg.CORS.AllowedOrigins = []string{frontend}
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Auth.JWTSecret", &cfg.Auth.JWTSecret},
		{"Payments.StripeSecretKey", &cfg.Payments.StripeSecretKey},
		{"Payments.StripeWebhookSecret", &cfg.Payments.StripeWebhookSecret},
		{"Storage.Minio.SecretKey", &cfg.Storage.Minio.SecretKey},
		{"Mail.Password", &cfg.Mail.Password},
		{"Redis.Password", &cfg.Redis.Password},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string
	add := func(cond bool, field string) {
		if cond {
			invalid = append(invalid, field)
		}
	}

	add(cfg.Server.Port == "", "Server.Port")
	add(cfg.Server.RequestTimeout <= 0, "Server.RequestTimeout")
	add(cfg.Firestore.ProjectID == "", "Firestore.ProjectID")
	add(len(cfg.Auth.JWTSecret) < minJWTSecretLength, "Auth.JWTSecret")
	add(cfg.Auth.SessionTTL <= 0, "Auth.SessionTTL")
	add(cfg.Auth.EmailTokenTTL <= 0, "Auth.EmailTokenTTL")
	add(len(cfg.Payments.Currency) != 3, "Payments.Currency")
	add(cfg.Storage.Bucket == "", "Storage.Bucket")
	switch cfg.Storage.Driver {
	case StorageDriverGCS:
	case StorageDriverMinio:
		add(cfg.Storage.Minio.Endpoint == "", "Storage.Minio.Endpoint")
		add(cfg.Storage.Minio.AccessKey == "", "Storage.Minio.AccessKey")
		add(cfg.Storage.Minio.SecretKey == "", "Storage.Minio.SecretKey")
	default:
		invalid = append(invalid, "Storage.Driver")
	}
	if cfg.Mail.Enabled() {
		add(cfg.Mail.From == "", "Mail.From")
		add(cfg.Mail.Port <= 0, "Mail.Port")
	}
	add(cfg.RateLimits.Window <= 0, "RateLimits.Window")
	add(cfg.RateLimits.Global <= 0, "RateLimits.Global")
	add(cfg.RateLimits.AuthRoute <= 0, "RateLimits.AuthRoute")
	add(strings.TrimSpace(cfg.Idempotency.Header) == "", "Idempotency.Header")
	add(cfg.Idempotency.TTL <= 0, "Idempotency.TTL")
	add(cfg.Cleanup.Interval <= 0, "Cleanup.Interval")
	add(cfg.Cleanup.PendingRetention <= 0, "Cleanup.PendingRetention")
	if u, err := url.Parse(cfg.FrontendURL); err != nil || u.Scheme == "" || u.Host == "" {
		invalid = append(invalid, "FrontendURL")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{})
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

// loadDotEnv reads the optional .env file. A missing file is not an error.
func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, _ := lookup(key)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
