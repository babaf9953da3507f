package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/marketdesk/admin/internal/platform/auth"
	"github.com/marketdesk/admin/internal/platform/httpx"
	"github.com/marketdesk/admin/internal/platform/requestctx"
	"github.com/marketdesk/admin/internal/platform/textutil"
	"github.com/marketdesk/admin/internal/services"
)

const defaultAdminTimeout = 60 * time.Second

// AdminHandlers exposes the admin console API.
type AdminHandlers struct {
	authn   *auth.Authenticator
	authz   services.AuthorizationService
	orders  services.OrderService
	repair  services.OrderRepairService
	users   services.UserAdminService
	audit   services.AuditLogService
	timeout time.Duration

	idempotency      func(http.Handler) http.Handler
	enforceHierarchy bool
}

// AdminHandlersDeps bundles the services behind the admin API.
type AdminHandlersDeps struct {
	Authenticator *auth.Authenticator
	Authorization services.AuthorizationService
	Orders        services.OrderService
	Repair        services.OrderRepairService
	Users         services.UserAdminService
	Audit         services.AuditLogService
	// EnforceRoleHierarchy stops non-superadmins from touching superadmins.
	EnforceRoleHierarchy bool
	Timeout              time.Duration
	// Idempotency wraps mutations once the caller is known, so keys are scoped per admin.
	Idempotency func(http.Handler) http.Handler
}

// NewAdminHandlers constructs admin handlers.
func NewAdminHandlers(deps AdminHandlersDeps) *AdminHandlers {
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultAdminTimeout
	}
	return &AdminHandlers{
		authn:            deps.Authenticator,
		authz:            deps.Authorization,
		orders:           deps.Orders,
		repair:           deps.Repair,
		users:            deps.Users,
		audit:            deps.Audit,
		timeout:          timeout,
		idempotency:      deps.Idempotency,
		enforceHierarchy: deps.EnforceRoleHierarchy,
	}
}

// Routes registers the /admin endpoints. The user stream is kept outside the request timeout.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Use(h.requireAdmin)

	r.Get("/users:stream", h.streamUsers)

	r.Group(func(rt chi.Router) {
		rt.Use(middleware.Timeout(h.timeout))
		if h.idempotency != nil {
			rt.Use(h.idempotency)
		}

		rt.Post("/session", h.startSession)

		rt.Get("/orders", h.listOrders)
		rt.Get("/orders:counts", h.countOrders)
		rt.Post("/orders:repair", h.repairOrders)
		rt.Get("/orders/{orderID}", h.getOrder)
		rt.Post("/orders/{orderID}:set-status", h.setOrderStatus)
		rt.Post("/orders/{orderID}:mark-paid", h.markOrderPaid)
		rt.Post("/orders/{orderID}:cancel", h.cancelOrder)
		rt.Delete("/orders/{orderID}", h.deleteOrder)

		rt.Get("/users", h.listUsers)
		rt.Post("/users/{uid}:set-role", h.setUserRole)
		rt.Post("/users/{uid}:set-status", h.setUserStatus)

		rt.Get("/audit-logs", h.listAuditLogs)
		rt.Patch("/audit-logs/{logID}", h.updateAuditLog)
		rt.Delete("/audit-logs/{logID}", h.deleteAuditLog)
	})
}

type principalContextKey struct{}

func withPrincipal(ctx context.Context, principal services.AdminPrincipal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext returns the authorized admin attached by the admin middleware.
func PrincipalFromContext(ctx context.Context) (services.AdminPrincipal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(services.AdminPrincipal)
	return principal, ok
}

// requireAdmin resolves the verified identity against claims and profile. A denial tells the
// client to sign out because its session cannot become privileged without a new token.
func (h *AdminHandlers) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		identity, ok := auth.IdentityFromContext(ctx)
		if !ok || identity.UID == "" {
			httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
			return
		}
		if h.authz == nil {
			httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "authorization service unavailable", http.StatusServiceUnavailable))
			return
		}

		principal, err := h.authz.Authorize(ctx, services.AuthorizeCommand{
			UID:         identity.UID,
			Email:       identity.Email,
			TokenClaims: identity.Claims,
		})
		if err != nil {
			switch {
			case errors.Is(err, services.ErrAdminAccessDenied):
				httpx.WriteError(ctx, w, httpx.NewError("permission_denied", services.AccessDeniedMessage, http.StatusForbidden).
					WithDetails(map[string]any{"sign_out": true}))
			case errors.Is(err, services.ErrPermissionDenied):
				httpx.WriteError(ctx, w, httpx.NewError("permission_denied", err.Error(), http.StatusForbidden).
					WithDetails(map[string]any{"sign_out": true}))
			default:
				writeServiceError(ctx, w, err)
			}
			return
		}

		ctx = withPrincipal(ctx, principal)
		ctx = requestctx.WithLogger(ctx, requestctx.Logger(ctx).With(zap.String("uid", textutil.CleanLine(principal.UID, 64))))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFromRequest(r *http.Request) services.Actor {
	principal, _ := PrincipalFromContext(r.Context())
	return principal.Actor()
}

// writeServiceError maps service error kinds onto HTTP responses.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrValidation):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_state", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrPermissionDenied):
		httpx.WriteError(ctx, w, httpx.NewError("permission_denied", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", "backing store temporarily unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "request timed out", http.StatusGatewayTimeout))
	default:
		requestctx.Logger(ctx).Error("admin request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "failed to process request", http.StatusInternalServerError))
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	if err := httpx.DecodeJSON(r, dst, allowEmpty); err != nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return false
	}
	return true
}
