// Package secrets resolves secret:// configuration references against Secret Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// reference is a parsed secret://name?version=N&project=P.
type reference struct {
	name    string
	version string
	project string
}

func (r reference) String() string { return "secret://" + r.name }

func (r reference) cacheKey() string { return r.project + "/" + r.name + "@" + r.version }

func (r reference) resource(defaultProject string) string {
	project := r.project
	if project == "" {
		project = defaultProject
	}
	return "projects/" + project + "/secrets/" + r.name + "/versions/" + r.version
}

// Fetcher resolves references once per process. When Secret Manager denies or cannot be reached,
// values come from a dotenv file where secret audit-salt is read as AUDIT_SALT.
type Fetcher struct {
	remote      accessor
	ownsRemote  bool
	project     string
	logger      *zap.Logger
	fallback    string
	fallbackMap func() map[string]string

	mu     sync.RWMutex
	values map[string]string

	latency metric.Float64Histogram
}

type Option func(*Fetcher)

func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithProject sets the project for references without ?project=. Without one, only the
// fallback file is consulted.
func WithProject(projectID string) Option {
	return func(f *Fetcher) { f.project = strings.TrimSpace(projectID) }
}

// WithFallbackFile replaces the default .secrets.local; "" disables the fallback.
func WithFallbackFile(path string) Option {
	return func(f *Fetcher) { f.fallback = strings.TrimSpace(path) }
}

// WithSecretManagerClient supplies the Secret Manager client instead of dialing one.
func WithSecretManagerClient(client accessor) Option {
	return func(f *Fetcher) { f.remote = client }
}

// NewFetcher never fails on a Secret Manager dial error; the fetcher then serves the fallback
// file only.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	f := &Fetcher{logger: zap.NewNop(), fallback: ".secrets.local", values: map[string]string{}}
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	f.fallbackMap = sync.OnceValue(f.readFallback)

	histogram, err := otel.Meter("github.com/marketdesk/admin/internal/platform/secrets").Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Secret resolution latency by source"),
	)
	if err == nil {
		f.latency = histogram
	}

	if f.remote == nil && f.project != "" {
		client, err := secretmanager.NewClient(ctx)
		if err != nil {
			f.logger.Warn("secrets: secret manager unavailable, using fallback file only", zap.Error(err))
		} else {
			f.remote, f.ownsRemote = client, true
		}
	}
	return f, nil
}

// Close closes a client the fetcher dialed itself.
func (f *Fetcher) Close() error {
	if f == nil || !f.ownsRemote {
		return nil
	}
	return f.remote.Close()
}

// Resolve returns the value behind ref. sm:// is accepted as an alias of secret://.
func (f *Fetcher) Resolve(ctx context.Context, raw string) (string, error) {
	start := time.Now()
	ref, err := parseReference(raw)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	value, ok := f.values[ref.cacheKey()]
	f.mu.RUnlock()
	if ok {
		f.observe(ctx, start, "cache")
		return value, nil
	}

	value, source, err := f.lookup(ctx, ref)
	f.observe(ctx, start, source)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.values[ref.cacheKey()] = value
	f.mu.Unlock()
	return value, nil
}

func (f *Fetcher) lookup(ctx context.Context, ref reference) (string, string, error) {
	if f.remote != nil && (ref.project != "" || f.project != "") {
		name := ref.resource(f.project)
		resp, err := f.remote.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		switch {
		case err == nil && resp.GetPayload() != nil:
			return string(resp.GetPayload().GetData()), "remote", nil
		case err == nil:
			return "", "error", fmt.Errorf("secrets: %s has an empty payload", name)
		case !degraded(err):
			return "", "error", fmt.Errorf("secrets: access %s: %w", ref, err)
		}
		f.logger.Debug("secrets: secret manager degraded, trying fallback file", zap.Stringer("ref", ref), zap.Error(err))
	}
	if value, ok := f.fallbackMap()[fallbackKey(ref.name)]; ok {
		return value, "fallback", nil
	}
	return "", "error", fmt.Errorf("secrets: %s not found in fallback file", ref)
}

func (f *Fetcher) readFallback() map[string]string {
	if f.fallback == "" {
		return nil
	}
	values, err := godotenv.Read(f.fallback)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn("secrets: fallback file unreadable", zap.String("path", f.fallback), zap.Error(err))
		}
		return nil
	}
	return values
}

func (f *Fetcher) observe(ctx context.Context, start time.Time, source string) {
	if f.latency != nil {
		f.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000,
			metric.WithAttributes(attribute.String("source", source)))
	}
}

func parseReference(raw string) (reference, error) {
	raw = strings.TrimSpace(raw)
	if rest, ok := strings.CutPrefix(raw, "sm://"); ok {
		raw = "secret://" + rest
	}
	u, err := url.Parse(raw)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", raw, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported reference %q", raw)
	}
	ref := reference{
		name:    strings.Trim(u.Host+u.Path, "/"),
		version: strings.TrimSpace(u.Query().Get("version")),
		project: strings.TrimSpace(u.Query().Get("project")),
	}
	if ref.name == "" {
		return reference{}, fmt.Errorf("secrets: reference %q has no secret name", raw)
	}
	if ref.version == "" {
		ref.version = "latest"
	}
	return ref, nil
}

// fallbackKey upper-cases name and replaces anything outside [A-Z0-9] with '_'.
func fallbackKey(name string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, strings.ToUpper(name))
}

// degraded reports Secret Manager failures that should fall through to the local file.
func degraded(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}
