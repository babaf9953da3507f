package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marketdesk/admin/internal/platform/auth"
	"github.com/marketdesk/admin/internal/platform/httpx"
)

const (
	defaultHeader = "Idempotency-Key"
	replayHeader  = "Idempotent-Replayed"
	maxKeyLength  = 255
)

// Logger receives store failures that do not change the response.
type Logger interface {
	Printf(format string, args ...any)
}

type options struct {
	header string
	ttl    time.Duration
	clock  func() time.Time
	logger Logger
}

// Option customises Middleware.
type Option func(*options)

// WithHeader overrides the request header carrying the key.
func WithHeader(name string) Option {
	return func(o *options) {
		if name = strings.TrimSpace(name); name != "" {
			o.header = name
		}
	}
}

// WithTTL overrides how long completed responses are replayed.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger for store failures.
func WithLogger(logger Logger) Option {
	return func(o *options) { o.logger = logger }
}

// Middleware guards POST, PATCH and DELETE requests that carry a key. Requests without a key run
// normally. Only 2xx outcomes are stored; any other outcome releases the key so the operator can
// retry after fixing the request.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	cfg := options{header: defaultHeader, ttl: DefaultTTL, clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !guarded(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			key := strings.TrimSpace(r.Header.Get(cfg.header))
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if len(key) > maxKeyLength {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_idempotency_key", "idempotency key is too long", http.StatusBadRequest))
				return
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			requester := requesterID(ctx)
			scoped := key + "|" + requester
			fingerprint := fingerprintOf(r, body, requester)

			claim, err := store.Claim(ctx, scoped, fingerprint, cfg.clock(), cfg.ttl)
			if err != nil {
				if errors.Is(err, ErrKeyReused) {
					httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_reused", "idempotency key was used for a different request", http.StatusUnprocessableEntity))
					return
				}
				cfg.printf("idempotency: claim failed for %s: %v", requester, err)
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to check idempotency key", http.StatusServiceUnavailable))
				return
			}

			switch claim.State {
			case ClaimReplay:
				replay(w, claim.Entry)
				return
			case ClaimInFlight:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "a request with this idempotency key is still running", http.StatusConflict))
				return
			}

			rec := &bufferedWriter{header: make(http.Header)}
			next.ServeHTTP(rec, r)

			// the handler may have run past the request deadline
			storeCtx := context.WithoutCancel(ctx)
			if rec.status() >= 200 && rec.status() < 300 {
				resp := Response{Status: rec.status(), Header: rec.header, Body: rec.body.Bytes()}
				if err := store.Complete(storeCtx, scoped, fingerprint, resp, cfg.clock(), cfg.ttl); err != nil {
					cfg.printf("idempotency: storing response for %s failed: %v", requester, err)
				}
			} else if err := store.Release(storeCtx, scoped); err != nil {
				cfg.printf("idempotency: releasing key for %s failed: %v", requester, err)
			}
			rec.flushTo(w)
		})
	}
}

func (o options) printf(format string, args ...any) {
	if o.logger != nil {
		o.logger.Printf(format, args...)
	}
}

func guarded(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func requesterID(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && identity.UID != "" {
		return "user:" + identity.UID
	}
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok && svc != nil && svc.Subject != "" {
		return "service:" + svc.Subject
	}
	return "anonymous"
}

func fingerprintOf(r *http.Request, body []byte, requester string) string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte('\n')
	b.WriteString(r.URL.Path)
	b.WriteByte('\n')
	b.WriteString(r.URL.RawQuery)
	b.WriteByte('\n')
	b.WriteString(requester)
	b.WriteByte('\n')
	b.WriteString(sha256Hex(body))
	return sha256Hex([]byte(b.String()))
}

func replay(w http.ResponseWriter, entry Entry) {
	for name, values := range entry.Header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.Header().Set(replayHeader, "true")
	status := entry.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(entry.Body) > 0 {
		_, _ = w.Write(entry.Body)
	}
}

type bufferedWriter struct {
	header http.Header
	code   int
	body   bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(code int) {
	if b.code == 0 {
		b.code = code
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	if b.code == 0 {
		b.code = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedWriter) status() int {
	if b.code == 0 {
		return http.StatusOK
	}
	return b.code
}

func (b *bufferedWriter) flushTo(w http.ResponseWriter) {
	dst := w.Header()
	for name, values := range b.header {
		dst[name] = values
	}
	w.WriteHeader(b.status())
	if b.body.Len() > 0 {
		_, _ = w.Write(b.body.Bytes())
	}
}
