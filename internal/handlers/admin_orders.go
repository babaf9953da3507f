package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/marketdesk/admin/internal/domain"
	"github.com/marketdesk/admin/internal/platform/httpx"
	"github.com/marketdesk/admin/internal/platform/pagination"
	"github.com/marketdesk/admin/internal/services"
)

type orderListResponse struct {
	Items         []orderPayload `json:"items"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID            string             `json:"id"`
	OrderNumber   string             `json:"order_number"`
	CustomerName  string             `json:"customer_name"`
	CustomerEmail string             `json:"customer_email"`
	CustomerPhone string             `json:"customer_phone,omitempty"`
	Total         float64            `json:"total"`
	PaymentMethod string             `json:"payment_method"`
	PaymentStatus string             `json:"payment_status"`
	OrderStatus   string             `json:"order_status"`
	Bucket        string             `json:"bucket"`
	Items         []orderItemPayload `json:"items,omitempty"`
	CreatedAt     string             `json:"created_at,omitempty"`
	UpdatedAt     string             `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ProductName string  `json:"product_name"`
	Size        string  `json:"size,omitempty"`
	Color       string  `json:"color,omitempty"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
}

type setOrderStatusRequest struct {
	Status string `json:"status" validate:"required,max=64"`
}

type confirmRequest struct {
	Confirm bool `json:"confirm"`
}

type deleteOrderRequest struct {
	Confirm      bool   `json:"confirm"`
	ConfirmAgain bool   `json:"confirm_again"`
	Phrase       string `json:"phrase" validate:"max=32"`
}

type repairRequest struct {
	DryRun bool `json:"dry_run"`
}

func (h *AdminHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := services.OrderListFilter{}
	if raw := strings.TrimSpace(query.Get("bucket")); raw != "" {
		bucket, ok := domain.ParseStatusBucket(raw)
		if !ok && raw != string(domain.BucketUnknown) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unknown bucket "+raw, http.StatusBadRequest))
			return
		}
		if !ok {
			bucket = domain.BucketUnknown
		}
		filter.Bucket = bucket
	}
	size, err := pagination.ParsePageSize(query)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.Pagination = domain.Pagination{PageSize: size, PageToken: query.Get("page_token")}

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	resp := orderListResponse{Items: make([]orderPayload, 0, len(page.Items)), NextPageToken: page.NextPageToken}
	for _, view := range page.Items {
		resp.Items = append(resp.Items, newOrderPayload(view.Order))
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h *AdminHandlers) countOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	counts, err := h.orders.CountByBucket(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	total := 0
	payload := make(map[string]int, len(counts))
	for bucket, n := range counts {
		payload[string(bucket)] = n
		total += n
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"counts": payload, "total": total})
}

func (h *AdminHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.orders.GetOrder(ctx, chi.URLParam(r, "orderID"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: newOrderPayload(view.Order)})
}

func (h *AdminHandlers) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req setOrderStatusRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	order, err := h.orders.SetStatus(r.Context(), services.SetOrderStatusCommand{
		Actor:   actorFromRequest(r),
		OrderID: chi.URLParam(r, "orderID"),
		Status:  req.Status,
	})
	h.writeOrder(w, r, order, err)
}

func (h *AdminHandlers) markOrderPaid(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	order, err := h.orders.MarkPaid(r.Context(), services.MarkOrderPaidCommand{
		Actor:     actorFromRequest(r),
		OrderID:   chi.URLParam(r, "orderID"),
		Confirmed: req.Confirm,
	})
	h.writeOrder(w, r, order, err)
}

func (h *AdminHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	order, err := h.orders.Cancel(r.Context(), services.CancelOrderCommand{
		Actor:     actorFromRequest(r),
		OrderID:   chi.URLParam(r, "orderID"),
		Confirmed: req.Confirm,
	})
	h.writeOrder(w, r, order, err)
}

func (h *AdminHandlers) deleteOrder(w http.ResponseWriter, r *http.Request) {
	var req deleteOrderRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	err := h.orders.Delete(r.Context(), services.DeleteOrderCommand{
		Actor:          actorFromRequest(r),
		OrderID:        chi.URLParam(r, "orderID"),
		Confirmed:      req.Confirm,
		ConfirmedAgain: req.ConfirmAgain,
		Phrase:         req.Phrase,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandlers) repairOrders(w http.ResponseWriter, r *http.Request) {
	var req repairRequest
	if !decodeBody(w, r, &req, true) {
		return
	}
	report, err := h.repair.Repair(r.Context(), services.RepairOptions{
		Actor:  actorFromRequest(r),
		DryRun: req.DryRun,
	})
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, report)
}

func (h *AdminHandlers) writeOrder(w http.ResponseWriter, r *http.Request, order domain.Order, err error) {
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, orderResponse{Order: newOrderPayload(order)})
}

func newOrderPayload(order domain.Order) orderPayload {
	payload := orderPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
		Total:         order.Total,
		PaymentMethod: string(order.PaymentMethod),
		PaymentStatus: string(order.PaymentStatus),
		OrderStatus:   string(order.OrderStatus),
		Bucket:        string(order.Bucket()),
		CreatedAt:     formatTime(order.CreatedAt),
		UpdatedAt:     formatTime(order.UpdatedAt),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductName: item.ProductName,
			Size:        item.Size,
			Color:       item.Color,
			Quantity:    item.Quantity,
			Price:       item.Price,
		})
	}
	return payload
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
