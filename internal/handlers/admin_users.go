package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/marketdesk/admin/internal/domain"
	"github.com/marketdesk/admin/internal/platform/httpx"
	"github.com/marketdesk/admin/internal/platform/requestctx"
	"github.com/marketdesk/admin/internal/services"
)

const sseKeepAlive = 25 * time.Second

type userPayload struct {
	UID              string `json:"uid"`
	Email            string `json:"email,omitempty"`
	DisplayName      string `json:"display_name,omitempty"`
	PhotoURL         string `json:"photo_url,omitempty"`
	Role             string `json:"role"`
	Status           string `json:"status"`
	SuspensionReason string `json:"suspension_reason,omitempty"`
	SuspendedAt      string `json:"suspended_at,omitempty"`
	BanReason        string `json:"ban_reason,omitempty"`
	BannedAt         string `json:"banned_at,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
	LastLoginAt      string `json:"last_login_at,omitempty"`
}

type userListResponse struct {
	Items []userPayload `json:"items"`
}

type userResponse struct {
	User userPayload `json:"user"`
}

type setUserRoleRequest struct {
	Role string `json:"role" validate:"required,max=32"`
}

type setUserStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended banned"`
	Reason string `json:"reason" validate:"max=500"`
}

func (h *AdminHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	profiles, err := h.users.ListUsers(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userListResponse{Items: newUserPayloads(profiles)})
}

func (h *AdminHandlers) setUserRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req setUserRoleRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	uid := chi.URLParam(r, "uid")
	actor := actorFromRequest(r)
	if h.enforceHierarchy {
		role, ok := domain.ParseRole(req.Role)
		if !ok {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown role "+req.Role, http.StatusBadRequest))
			return
		}
		if !h.checkHierarchy(w, r, actor, uid, role) {
			return
		}
	}
	profile, err := h.users.SetRole(ctx, services.SetUserRoleCommand{Actor: actor, UID: uid, Role: req.Role})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse{User: newUserPayload(profile)})
}

func (h *AdminHandlers) setUserStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req setUserStatusRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	uid := chi.URLParam(r, "uid")
	actor := actorFromRequest(r)
	if h.enforceHierarchy && !h.checkHierarchy(w, r, actor, uid, "") {
		return
	}
	profile, err := h.users.SetStatus(ctx, services.SetUserStatusCommand{
		Actor:  actor,
		UID:    uid,
		Status: req.Status,
		Reason: req.Reason,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, userResponse{User: newUserPayload(profile)})
}

func (h *AdminHandlers) checkHierarchy(w http.ResponseWriter, r *http.Request, actor services.Actor, uid string, newRole domain.Role) bool {
	target, err := h.users.GetUser(r.Context(), uid)
	if err == nil {
		err = services.CheckHierarchy(actor, target, newRole)
	}
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return false
	}
	return true
}

// streamUsers pushes the full user list as Server-Sent Events whenever it changes.
func (h *AdminHandlers) streamUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rc := http.NewResponseController(w)

	sub, err := h.users.Subscribe(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	defer sub.Close()

	// Long-lived response; lift the server write deadline.
	_ = rc.SetWriteDeadline(time.Time{})
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		requestctx.Logger(ctx).Warn("users stream: flush unsupported", zap.Error(err))
		return
	}

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()
	seq := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
		case profiles, ok := <-sub.Updates():
			if !ok {
				return
			}
			data, err := json.Marshal(userListResponse{Items: newUserPayloads(profiles)})
			if err != nil {
				requestctx.Logger(ctx).Error("users stream: encode snapshot", zap.Error(err))
				return
			}
			seq++
			if _, err := fmt.Fprintf(w, "id: %d\nevent: users\ndata: %s\n\n", seq, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func newUserPayloads(profiles []domain.UserProfile) []userPayload {
	out := make([]userPayload, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, newUserPayload(p))
	}
	return out
}

func newUserPayload(p domain.UserProfile) userPayload {
	return userPayload{
		UID:              p.UID,
		Email:            p.Email,
		DisplayName:      p.DisplayName,
		PhotoURL:         p.PhotoURL,
		Role:             string(p.Role),
		Status:           string(p.EffectiveStatus()),
		SuspensionReason: p.SuspensionReason,
		SuspendedAt:      formatTimePtr(p.SuspendedAt),
		BanReason:        p.BanReason,
		BannedAt:         formatTimePtr(p.BannedAt),
		CreatedAt:        formatTime(p.CreatedAt),
		LastLoginAt:      formatTimePtr(p.LastLoginAt),
	}
}
