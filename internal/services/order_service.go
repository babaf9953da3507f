package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/marketdesk/admin/internal/domain"
	"github.com/marketdesk/admin/internal/platform/pagination"
	"github.com/marketdesk/admin/internal/repositories"
)

const (
	orderEventStatusChanged = "order.status.changed"
	orderEventDeleted       = "order.deleted"
)

// OrderServiceDeps bundles constructor inputs for the order service.
type OrderServiceDeps struct {
	Orders repositories.OrderRepository
	Audit  AuditRecorder
	Events OrderEventPublisher
	Clock  func() time.Time
	Logger Logger
}

type orderService struct {
	orders      repositories.OrderRepository
	audit       AuditRecorder
	events      OrderEventPublisher
	now         func() time.Time
	logger      Logger
	transitions metric.Int64Counter
}

// NewOrderService wires the order transition engine.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &orderService{
		orders:      deps.Orders,
		audit:       deps.Audit,
		events:      deps.Events,
		now:         func() time.Time { return clock().UTC() },
		logger:      logger,
		transitions: newCounter("admin.orders.transitions", "Order transitions applied by operators"),
	}, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID string) (OrderView, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderView{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return OrderView{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	return OrderView{Order: order, Bucket: order.Bucket()}, nil
}

func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[OrderView], error) {
	if filter.Bucket != "" && !filter.Bucket.Known() && filter.Bucket != domain.BucketUnknown {
		return domain.CursorPage[OrderView]{}, fmt.Errorf("%w: unknown bucket %q", ErrOrderInvalidInput, filter.Bucket)
	}
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[OrderView]{}, fmt.Errorf("%w: %w", ErrOrderInvalidInput, err)
	}
	size := filter.Pagination.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}
	if size > pagination.MaxPageSize {
		size = pagination.MaxPageSize
	}

	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return domain.CursorPage[OrderView]{}, mapRepositoryError(err, nil)
	}
	sortNewestFirst(orders)

	views := make([]OrderView, 0, size)
	var next string
	for _, order := range orders {
		if !cursor.IsZero() && !after(order, cursor) {
			continue
		}
		bucket := order.Bucket()
		if filter.Bucket != "" && bucket != filter.Bucket {
			continue
		}
		if len(views) == size {
			last := views[len(views)-1].Order
			next = pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Token()
			break
		}
		views = append(views, OrderView{Order: order, Bucket: bucket})
	}
	return domain.CursorPage[OrderView]{Items: views, NextPageToken: next}, nil
}

// sortNewestFirst orders by createdAt then id, both descending, so page cursors are stable.
func sortNewestFirst(orders []domain.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
}

func after(order domain.Order, cursor pagination.Cursor) bool {
	if order.CreatedAt.Equal(cursor.CreatedAt) {
		return order.ID < cursor.ID
	}
	return order.CreatedAt.Before(cursor.CreatedAt)
}

func (s *orderService) CountByBucket(ctx context.Context) (map[domain.StatusBucket]int, error) {
	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return nil, mapRepositoryError(err, nil)
	}
	return domain.StatusCounts(orders), nil
}

func (s *orderService) SetStatus(ctx context.Context, cmd SetOrderStatusCommand) (order domain.Order, err error) {
	ctx, span := startSpan(ctx, "orders.SetStatus", attribute.String("order.id", cmd.OrderID))
	defer func() { endSpan(span, err) }()

	status, ok := domain.ParseOrderStatus(cmd.Status)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}
	order, err = s.load(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}

	update := repositories.OrderUpdate{OrderStatus: &status}
	// COD money is collected at the door, so completion implies payment.
	if order.PaymentMethod.IsCOD() && order.PaymentStatus == domain.PaymentStatusPending &&
		(status == domain.OrderStatusCompleted || status == domain.OrderStatusDelivered) {
		paid := domain.PaymentStatusPaid
		update.PaymentStatus = &paid
	}

	details := map[string]any{
		"field":    "orderStatus",
		"oldValue": string(order.OrderStatus),
		"newValue": string(status),
	}
	if update.PaymentStatus != nil {
		details["paymentStatus"] = string(*update.PaymentStatus)
	}
	return s.apply(ctx, "set_status", cmd.Actor, order, update, details)
}

func (s *orderService) MarkPaid(ctx context.Context, cmd MarkOrderPaidCommand) (order domain.Order, err error) {
	ctx, span := startSpan(ctx, "orders.MarkPaid", attribute.String("order.id", cmd.OrderID))
	defer func() { endSpan(span, err) }()

	if !cmd.Confirmed {
		return domain.Order{}, fmt.Errorf("%w: payment must be confirmed", ErrOrderInvalidInput)
	}
	order, err = s.load(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}

	paid := domain.PaymentStatusPaid
	update := repositories.OrderUpdate{PaymentStatus: &paid}
	details := map[string]any{
		"field":    "paymentStatus",
		"oldValue": string(order.PaymentStatus),
		"newValue": string(paid),
	}
	if order.OrderStatus == domain.OrderStatusPending || order.OrderStatus == domain.OrderStatusToPay {
		confirmed := domain.OrderStatusConfirmed
		update.OrderStatus = &confirmed
		details["orderStatus"] = string(confirmed)
	}
	return s.apply(ctx, "mark_paid", cmd.Actor, order, update, details)
}

func (s *orderService) Cancel(ctx context.Context, cmd CancelOrderCommand) (order domain.Order, err error) {
	ctx, span := startSpan(ctx, "orders.Cancel", attribute.String("order.id", cmd.OrderID))
	defer func() { endSpan(span, err) }()

	if !cmd.Confirmed {
		return domain.Order{}, fmt.Errorf("%w: cancellation must be confirmed", ErrOrderInvalidInput)
	}
	order, err = s.load(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}
	if bucket := order.Bucket(); bucket.Terminal() {
		return domain.Order{}, fmt.Errorf("%w: order is %s", ErrOrderInvalidState, bucket)
	}

	cancelled := domain.OrderStatusCancelled
	details := map[string]any{
		"field":    "orderStatus",
		"oldValue": string(order.OrderStatus),
		"newValue": string(cancelled),
	}
	return s.apply(ctx, "cancel", cmd.Actor, order, repositories.OrderUpdate{OrderStatus: &cancelled}, details)
}

func (s *orderService) Delete(ctx context.Context, cmd DeleteOrderCommand) (err error) {
	ctx, span := startSpan(ctx, "orders.Delete", attribute.String("order.id", cmd.OrderID))
	defer func() { endSpan(span, err) }()

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	if !cmd.Confirmed || !cmd.ConfirmedAgain {
		return fmt.Errorf("%w: deletion must be confirmed twice", ErrOrderInvalidInput)
	}
	if cmd.Phrase != DeleteConfirmationPhrase {
		return fmt.Errorf("%w: type %s to confirm deletion", ErrOrderInvalidInput, DeleteConfirmationPhrase)
	}

	var deleted domain.Order
	err = s.orders.Delete(ctx, orderID, func(order domain.Order) error {
		if order.OrderStatus != domain.OrderStatusCancelled {
			return fmt.Errorf("%w: only cancelled orders can be deleted (status %q)", ErrOrderInvalidState, order.OrderStatus)
		}
		deleted = order
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			return err
		}
		return mapRepositoryError(err, ErrOrderNotFound)
	}

	now := s.now()
	addCount(ctx, s.transitions, 1, attribute.String("op", "delete"))
	s.record(ctx, AuditRecord{
		Action:       domain.AuditActionDelete,
		ActorID:      cmd.Actor.ID,
		ActorEmail:   cmd.Actor.Email,
		ResourceType: domain.AuditResourceOrder,
		ResourceID:   orderID,
		Details: map[string]any{
			"orderNumber": deleted.OrderNumber,
			"orderStatus": string(deleted.OrderStatus),
			"total":       deleted.Total,
		},
	})
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventDeleted,
		OrderID:        orderID,
		OrderNumber:    deleted.OrderNumber,
		PreviousStatus: string(deleted.OrderStatus),
		ActorID:        cmd.Actor.ID,
		OccurredAt:     now,
	})
	return nil
}

func (s *orderService) load(ctx context.Context, orderID string) (domain.Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, mapRepositoryError(err, ErrOrderNotFound)
	}
	return order, nil
}

// apply writes update as one document update, then records the audit entry and event.
func (s *orderService) apply(ctx context.Context, op string, actor Actor, order domain.Order, update repositories.OrderUpdate, details map[string]any) (domain.Order, error) {
	now := s.now()
	update.UpdatedAt = now
	if err := s.orders.Update(ctx, order.ID, update); err != nil {
		return domain.Order{}, mapRepositoryError(err, ErrOrderNotFound)
	}

	previous := order.OrderStatus
	if update.OrderStatus != nil {
		order.OrderStatus = *update.OrderStatus
	}
	if update.PaymentStatus != nil {
		order.PaymentStatus = *update.PaymentStatus
	}
	order.UpdatedAt = now

	addCount(ctx, s.transitions, 1, attribute.String("op", op))
	details["operation"] = op
	s.record(ctx, AuditRecord{
		Action:       domain.AuditActionUpdate,
		ActorID:      actor.ID,
		ActorEmail:   actor.Email,
		ResourceType: domain.AuditResourceOrder,
		ResourceID:   order.ID,
		Details:      details,
	})
	s.publishEvent(ctx, OrderEvent{
		Type:           orderEventStatusChanged,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		PreviousStatus: string(previous),
		CurrentStatus:  string(order.OrderStatus),
		CurrentBucket:  string(order.Bucket()),
		PaymentStatus:  string(order.PaymentStatus),
		ActorID:        actor.ID,
		OccurredAt:     now,
	})
	return order, nil
}

func (s *orderService) record(ctx context.Context, record AuditRecord) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, record)
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"orderId": event.OrderID,
			"type":    event.Type,
			"error":   err.Error(),
		})
	}
}
