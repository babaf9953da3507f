package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/marketdesk/admin/internal/domain"
	"github.com/marketdesk/admin/internal/platform/httpx"
	"github.com/marketdesk/admin/internal/platform/pagination"
	"github.com/marketdesk/admin/internal/services"
)

type auditLogPayload struct {
	ID           string         `json:"id"`
	Action       string         `json:"action"`
	ActorID      string         `json:"actor_id"`
	ActorEmail   string         `json:"actor_email,omitempty"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Details      map[string]any `json:"details,omitempty"`
	Metadata     string         `json:"metadata,omitempty"`
	RequestID    string         `json:"request_id,omitempty"`
	IPHash       string         `json:"ip_hash,omitempty"`
	CreatedAt    string         `json:"created_at"`
}

type auditLogListResponse struct {
	Items         []auditLogPayload `json:"items"`
	NextPageToken string            `json:"next_page_token,omitempty"`
}

type updateAuditLogRequest struct {
	Metadata string `json:"metadata" validate:"max=2000"`
}

func (h *AdminHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	size, err := pagination.ParsePageSize(r.URL.Query())
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	page, err := h.audit.List(ctx, domain.Pagination{PageSize: size, PageToken: r.URL.Query().Get("page_token")})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := auditLogListResponse{Items: make([]auditLogPayload, 0, len(page.Items)), NextPageToken: page.NextPageToken}
	for _, entry := range page.Items {
		resp.Items = append(resp.Items, auditLogPayload{
			ID:           entry.ID,
			Action:       entry.Action,
			ActorID:      entry.ActorID,
			ActorEmail:   entry.ActorEmail,
			ResourceType: entry.ResourceType,
			ResourceID:   entry.ResourceID,
			Details:      entry.Details,
			Metadata:     entry.Metadata,
			RequestID:    entry.RequestID,
			IPHash:       entry.IPHash,
			CreatedAt:    formatTime(entry.CreatedAt),
		})
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AdminHandlers) updateAuditLog(w http.ResponseWriter, r *http.Request) {
	var req updateAuditLogRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	err := h.audit.UpdateMetadata(r.Context(), services.UpdateAuditMetadataCommand{
		Actor:    actorFromRequest(r),
		LogID:    chi.URLParam(r, "logID"),
		Metadata: req.Metadata,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) deleteAuditLog(w http.ResponseWriter, r *http.Request) {
	err := h.audit.Delete(r.Context(), services.DeleteAuditLogCommand{
		Actor: actorFromRequest(r),
		LogID: chi.URLParam(r, "logID"),
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
