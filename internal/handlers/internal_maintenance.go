package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/marketdesk/admin/internal/platform/auth"
	"github.com/marketdesk/admin/internal/platform/httpx"
	"github.com/marketdesk/admin/internal/platform/requestctx"
	"github.com/marketdesk/admin/internal/services"
)

// InternalMaintenanceHandlers serves scheduler-triggered jobs behind OIDC authentication.
type InternalMaintenanceHandlers struct {
	repair services.OrderRepairService
}

// NewInternalMaintenanceHandlers constructs the internal job handlers.
func NewInternalMaintenanceHandlers(repair services.OrderRepairService) *InternalMaintenanceHandlers {
	return &InternalMaintenanceHandlers{repair: repair}
}

// Routes registers /internal endpoints.
func (h *InternalMaintenanceHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/orders:repair", h.repairOrders)
}

func (h *InternalMaintenanceHandlers) repairOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.repair == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "repair service unavailable", http.StatusServiceUnavailable))
		return
	}
	var req repairRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	actor := services.Actor{ID: "system:scheduler"}
	if identity, ok := auth.ServiceIdentityFromContext(ctx); ok {
		actor = services.Actor{ID: "service:" + identity.Subject, Email: identity.Email}
	}
	report, err := h.repair.Repair(ctx, services.RepairOptions{Actor: actor, DryRun: req.DryRun})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	requestctx.Logger(ctx).Info("scheduled order repair finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("touched", report.Touched),
		zap.Int("failed", report.Failed),
	)
	httpx.WriteJSON(w, http.StatusOK, report)
}
