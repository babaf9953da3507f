package config

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultEnvironment         = "local"
	defaultOIDCJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
	defaultOIDCIssuer          = "https://accounts.google.com"
	defaultProfilePollInterval = 2 * time.Second
	defaultIdempotencyHeader   = "Idempotency-Key"
	defaultIdempotencyTTL      = 24 * time.Hour
	defaultIdempotencyCleanup  = 15 * time.Minute
	defaultIdempotencyBatch    = 200
	defaultAuthTimeout         = 5 * time.Second
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Security    SecurityConfig
	Admin       AdminConfig
	Idempotency IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// FirebaseConfig stores Firebase project settings shared by the auth and realtime database clients.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	DatabaseURL     string
	AuthTimeout     time.Duration
}

// FirestoreConfig stores order and audit store parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig selects where order domain events are published. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID        string
	OrderEventsTopic string
}

// SecurityConfig groups service-to-service authentication and audit hashing settings.
type SecurityConfig struct {
	Environment   string
	OIDC          OIDCConfig
	AuditHashSalt string
}

// OIDCConfig controls Google-signed token verification for /internal routes.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// AdminConfig holds console policy switches.
type AdminConfig struct {
	// EnforceRoleHierarchy stops an admin from changing a superadmin or granting superadmin.
	EnforceRoleHierarchy   bool
	ProfilePollInterval    time.Duration
	SyncClaimsOnRoleChange bool
	RevokeSessionsOnBan    bool
}

// IdempotencyConfig controls replay protection for admin mutations.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
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

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for sm:// and secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// EnvironmentValues merges the dotenv file, the process environment and WithEnvMap values, later
// sources winning. main uses it to build the secret fetcher before Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return options.environment()
}

func (o loaderOptions) environment() (map[string]string, error) {
	values := map[string]string{}
	if o.envFile != "" {
		fromFile, err := godotenv.Read(o.envFile)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: unable to read %s: %w", o.envFile, err)
		default:
			maps.Copy(values, fromFile)
		}
	}
	if o.useSystemEnv {
		for _, entry := range os.Environ() {
			if key, value, ok := strings.Cut(entry, "="); ok && key != "" {
				values[key] = value
			}
		}
	}
	maps.Copy(values, o.envMap)
	return values, nil
}

// Load builds the Config from the merged environment and resolves the audit salt when it is a
// secret reference. Malformed numbers and durations fall back to their defaults.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}
	values, err := options.environment()
	if err != nil {
		return Config{}, err
	}
	e := env(values)
	firebaseProject := e.str("ADMIN_FIREBASE_PROJECT_ID", "")

	cfg := Config{
		Server: ServerConfig{
			Port:         e.str("ADMIN_SERVER_PORT", defaultPort),
			ReadTimeout:  e.duration("ADMIN_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: e.duration("ADMIN_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  e.duration("ADMIN_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       firebaseProject,
			CredentialsFile: e.str("ADMIN_FIREBASE_CREDENTIALS_FILE", ""),
			DatabaseURL:     e.str("ADMIN_FIREBASE_DATABASE_URL", ""),
			AuthTimeout:     e.duration("ADMIN_FIREBASE_AUTH_TIMEOUT", defaultAuthTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    e.str("ADMIN_FIRESTORE_PROJECT_ID", firebaseProject),
			EmulatorHost: e.str("ADMIN_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:        e.str("ADMIN_PUBSUB_PROJECT_ID", firebaseProject),
			OrderEventsTopic: e.str("ADMIN_PUBSUB_ORDER_EVENTS_TOPIC", ""),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(e.str("ADMIN_SECURITY_ENVIRONMENT", defaultEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:  e.str("ADMIN_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: e.str("ADMIN_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:  e.list("ADMIN_SECURITY_OIDC_ISSUERS", defaultOIDCIssuer),
			},
			AuditHashSalt: e.str("ADMIN_SECURITY_AUDIT_HASH_SALT", ""),
		},
		Admin: AdminConfig{
			EnforceRoleHierarchy:   e.flag("ADMIN_ENFORCE_ROLE_HIERARCHY", true),
			ProfilePollInterval:    e.duration("ADMIN_PROFILE_POLL_INTERVAL", defaultProfilePollInterval),
			SyncClaimsOnRoleChange: e.flag("ADMIN_SYNC_CLAIMS_ON_ROLE_CHANGE", true),
			RevokeSessionsOnBan:    e.flag("ADMIN_REVOKE_SESSIONS_ON_BAN", true),
		},
		Idempotency: IdempotencyConfig{
			Header:           e.str("ADMIN_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              e.duration("ADMIN_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  e.duration("ADMIN_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyCleanup),
			CleanupBatchSize: e.integer("ADMIN_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatch),
		},
	}

	if IsSecretReference(cfg.Security.AuditHashSalt) {
		ref := normalizeSecretReference(cfg.Security.AuditHashSalt)
		if options.secret == nil {
			return Config{}, &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}
		salt, err := options.secret.ResolveSecret(ctx, ref)
		if err != nil {
			return Config{}, &SecretError{Ref: ref, Err: err}
		}
		cfg.Security.AuditHashSalt = salt
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func defaultOptions() loaderOptions {
	return loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(context.Context, string) (string, error) {
			return "", errSecretResolverNotConfigured
		}),
	}
}

func (c Config) validate() error {
	checks := []struct {
		field string
		ok    bool
	}{
		{"Server.Port", c.Server.Port != ""},
		{"Firebase.ProjectID", c.Firebase.ProjectID != ""},
		{"Firebase.DatabaseURL", c.Firebase.DatabaseURL != ""},
		{"Admin.ProfilePollInterval", c.Admin.ProfilePollInterval > 0},
		{"Idempotency.TTL", c.Idempotency.TTL > 0},
	}
	var bad []string
	for _, check := range checks {
		if !check.ok {
			bad = append(bad, check.field)
		}
	}
	if len(bad) > 0 {
		return &ValidationError{fields: bad}
	}
	return nil
}

// IsSecretReference reports whether value points at Secret Manager rather than holding a literal.
func IsSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

// env reads typed settings; blank values count as unset.
type env map[string]string

func (e env) raw(key string) (string, bool) {
	value := strings.TrimSpace(e[key])
	return value, value != ""
}

func (e env) str(key, fallback string) string {
	if value, ok := e.raw(key); ok {
		return value
	}
	return fallback
}

func (e env) duration(key string, fallback time.Duration) time.Duration {
	if value, ok := e.raw(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (e env) integer(key string, fallback int) int {
	if value, ok := e.raw(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

// flag accepts strconv.ParseBool spellings plus yes/no and on/off.
func (e env) flag(key string, fallback bool) bool {
	value, ok := e.raw(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(value) {
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return fallback
}

// list splits a comma separated value, dropping blanks.
func (e env) list(key string, fallback ...string) []string {
	value, _ := e.raw(key)
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
