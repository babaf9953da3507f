package handlers

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marketdesk/admin/internal/platform/httpx"
	"github.com/marketdesk/admin/internal/platform/requestctx"
	"github.com/marketdesk/admin/internal/platform/textutil"
)

const (
	apiPrefix = "/api/v1"

	errorNotFoundCode         = "route_not_found"
	errorMethodNotAllowedCode = "method_not_allowed"
)

// RouteRegistrar mounts one group of routes.
type RouteRegistrar func(r chi.Router)

type mountPoint struct {
	register   RouteRegistrar
	middleware []func(http.Handler) http.Handler
}

type router struct {
	global []func(http.Handler) http.Handler
	health *HealthHandlers
	admin  mountPoint
	intern mountPoint
}

// Option configures NewRouter.
type Option func(*router)

// WithMiddlewares appends middleware that runs for every route, health checks included.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(rt *router) { rt.global = append(rt.global, mw...) }
}

func WithHealthHandlers(h *HealthHandlers) Option {
	return func(rt *router) { rt.health = h }
}

// WithAdminRoutes mounts reg under /api/v1/admin.
func WithAdminRoutes(reg RouteRegistrar) Option {
	return func(rt *router) { rt.admin.register = reg }
}

func WithAdminMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(rt *router) { rt.admin.middleware = append(rt.admin.middleware, mw...) }
}

// WithInternalRoutes mounts reg under /api/v1/internal, the scheduler-facing surface.
func WithInternalRoutes(reg RouteRegistrar) Option {
	return func(rt *router) { rt.intern.register = reg }
}

func WithInternalMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(rt *router) { rt.intern.middleware = append(rt.intern.middleware, mw...) }
}

// NewRouter builds the service mux: /healthz and /readyz at the root, everything else under
// /api/v1. Unknown routes and methods answer with the JSON error envelope.
func NewRouter(opts ...Option) chi.Router {
	rt := &router{}
	for _, opt := range opts {
		if opt != nil {
			opt(rt)
		}
	}
	if rt.health == nil {
		rt.health = NewHealthHandlers()
	}

	mux := chi.NewRouter()
	mux.Use(middleware.RequestID, middleware.RealIP, recordClient)
	for _, mw := range rt.global {
		if mw != nil {
			mux.Use(mw)
		}
	}
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(r.Context(), w, httpx.NewError(errorNotFoundCode, "no route for "+r.URL.Path, http.StatusNotFound))
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(r.Context(), w, httpx.NewError(errorMethodNotAllowedCode, r.Method+" is not allowed on "+r.URL.Path, http.StatusMethodNotAllowed))
	})

	mux.Get("/healthz", rt.health.Healthz)
	mux.Get("/readyz", rt.health.Readyz)
	mux.Route(apiPrefix, func(api chi.Router) {
		rt.admin.mount(api, "/admin")
		rt.intern.mount(api, "/internal")
	})
	return mux
}

func (m mountPoint) mount(parent chi.Router, path string) {
	if m.register == nil {
		return
	}
	parent.Route(path, func(group chi.Router) {
		for _, mw := range m.middleware {
			if mw != nil {
				group.Use(mw)
			}
		}
		m.register(group)
	})
}

// recordClient stores the request id and caller address for audit entries. RealIP has already
// resolved forwarded headers into RemoteAddr.
func recordClient(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		ctx := requestctx.WithClient(r.Context(), requestctx.ClientInfo{
			RequestID: middleware.GetReqID(r.Context()),
			IPAddress: ip,
			UserAgent: textutil.CleanLine(r.UserAgent(), 256),
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
