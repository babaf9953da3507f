package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/marketdesk/admin/internal/platform/httpx"
	"github.com/marketdesk/admin/internal/platform/requestctx"
	"github.com/marketdesk/admin/internal/services"
)

type sessionResponse struct {
	UID          string `json:"uid"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role"`
	ClaimAdmin   bool   `json:"claim_admin"`
	ProfileAdmin bool   `json:"profile_admin"`
	Reconciled   bool   `json:"reconciled"`
}

// startSession is called once after sign-in; it records the login and echoes the resolved role.
func (h *AdminHandlers) startSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := PrincipalFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}
	if err := h.authz.TouchLogin(ctx, principal.UID); err != nil {
		// no profile yet when reconciliation failed
		if !errors.Is(err, services.ErrNotFound) {
			writeServiceError(ctx, w, err)
			return
		}
		requestctx.Logger(ctx).Warn("session: profile missing, lastLoginAt not recorded", zap.Error(err))
	}
	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		UID:          principal.UID,
		Email:        principal.Email,
		Role:         string(principal.Role),
		ClaimAdmin:   principal.ClaimAdmin,
		ProfileAdmin: principal.ProfileAdmin,
		Reconciled:   principal.Reconciled,
	})
}
