package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marketdesk/admin/internal/domain"
)

var orderNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestOrderService(t *testing.T, repo *stubOrderRepo) (OrderService, *captureRecorder, *stubPublisher, *captureEvents) {
	t.Helper()
	audit := &captureRecorder{}
	events := &stubPublisher{}
	logs := &captureEvents{}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders: repo,
		Audit:  audit,
		Events: events,
		Clock:  fixedClock(orderNow),
		Logger: logs.log,
	})
	if err != nil {
		t.Fatalf("new order service: %v", err)
	}
	return svc, audit, events, logs
}

func codOrder(id string, status domain.OrderStatus, payment domain.PaymentStatus) domain.Order {
	return domain.Order{
		ID:            id,
		OrderNumber:   "ORD-" + id,
		PaymentMethod: domain.PaymentMethodCashOnDelivery,
		PaymentStatus: payment,
		OrderStatus:   status,
		CreatedAt:     orderNow.Add(-time.Hour),
	}
}

func TestOrderServiceSetStatusCompletesCODPayment(t *testing.T) {
	repo := newStubOrderRepo(codOrder("o1", domain.OrderStatusToReceive, domain.PaymentStatusPending))
	svc, audit, events, _ := newTestOrderService(t, repo)

	order, err := svc.SetStatus(context.Background(), SetOrderStatusCommand{
		Actor:   Actor{ID: "admin-1", Email: "ops@example.com"},
		OrderID: "o1",
		Status:  "completed",
	})
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if order.OrderStatus != domain.OrderStatusCompleted || order.PaymentStatus != domain.PaymentStatusPaid {
		t.Fatalf("unexpected order state %s/%s", order.OrderStatus, order.PaymentStatus)
	}
	if len(repo.updates) != 1 {
		t.Fatalf("expected a single write, got %d", len(repo.updates))
	}
	update := repo.updates[0].Update
	if update.OrderStatus == nil || update.PaymentStatus == nil {
		t.Fatalf("expected status and payment in one update, got %+v", update)
	}
	if !update.UpdatedAt.Equal(orderNow) {
		t.Fatalf("expected updatedAt from clock, got %s", update.UpdatedAt)
	}
	if len(audit.records) != 1 || audit.records[0].ResourceID != "o1" || audit.records[0].Details["newValue"] != "completed" {
		t.Fatalf("unexpected audit records %+v", audit.records)
	}
	if len(events.events) != 1 || events.events[0].CurrentBucket != string(domain.BucketCompleted) {
		t.Fatalf("unexpected events %+v", events.events)
	}
}

func TestOrderServiceSetStatusLeavesCardPaymentAlone(t *testing.T) {
	order := codOrder("o1", domain.OrderStatusToReceive, domain.PaymentStatusPending)
	order.PaymentMethod = domain.PaymentMethodCard
	repo := newStubOrderRepo(order)
	svc, _, _, _ := newTestOrderService(t, repo)

	got, err := svc.SetStatus(context.Background(), SetOrderStatusCommand{OrderID: "o1", Status: "delivered"})
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if got.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected payment untouched, got %s", got.PaymentStatus)
	}
	if repo.updates[0].Update.PaymentStatus != nil {
		t.Fatalf("expected no payment write")
	}
}

func TestOrderServiceSetStatusRejectsUnknownStatus(t *testing.T) {
	repo := newStubOrderRepo(codOrder("o1", domain.OrderStatusToShip, domain.PaymentStatusPending))
	svc, _, _, _ := newTestOrderService(t, repo)

	_, err := svc.SetStatus(context.Background(), SetOrderStatusCommand{OrderID: "o1", Status: "teleported"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.updates) != 0 {
		t.Fatalf("expected no writes")
	}
}

func TestOrderServiceSetStatusNotFound(t *testing.T) {
	svc, audit, _, _ := newTestOrderService(t, newStubOrderRepo())

	_, err := svc.SetStatus(context.Background(), SetOrderStatusCommand{OrderID: "missing", Status: "to_ship"})
	if !errors.Is(err, ErrOrderNotFound) || !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if len(audit.records) != 0 {
		t.Fatalf("expected no audit on failure")
	}
}

func TestOrderServiceSetStatusSurfacesStoreError(t *testing.T) {
	repo := newStubOrderRepo(codOrder("o1", domain.OrderStatusToShip, domain.PaymentStatusPending))
	repo.updateErr["o1"] = repoError{unavailable: true}
	svc, audit, events, _ := newTestOrderService(t, repo)

	_, err := svc.SetStatus(context.Background(), SetOrderStatusCommand{OrderID: "o1", Status: "to_receive"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if len(audit.records) != 0 || len(events.events) != 0 {
		t.Fatalf("expected no side effects after failed write")
	}
}

func TestOrderServiceMarkPaid(t *testing.T) {
	card := domain.Order{ID: "o1", PaymentMethod: domain.PaymentMethodCard, PaymentStatus: domain.PaymentStatusPending, OrderStatus: domain.OrderStatusPending}
	repo := newStubOrderRepo(card)
	svc, _, _, _ := newTestOrderService(t, repo)

	if _, err := svc.MarkPaid(context.Background(), MarkOrderPaidCommand{OrderID: "o1"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected confirmation to be required, got %v", err)
	}

	order, err := svc.MarkPaid(context.Background(), MarkOrderPaidCommand{OrderID: "o1", Confirmed: true})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if order.PaymentStatus != domain.PaymentStatusPaid || order.OrderStatus != domain.OrderStatusConfirmed {
		t.Fatalf("unexpected order state %s/%s", order.OrderStatus, order.PaymentStatus)
	}
	if order.Bucket() != domain.BucketToShip {
		t.Fatalf("expected to_ship bucket, got %s", order.Bucket())
	}
}

func TestOrderServiceMarkPaidKeepsAdvancedStatus(t *testing.T) {
	repo := newStubOrderRepo(domain.Order{ID: "o1", PaymentMethod: domain.PaymentMethodGCash, PaymentStatus: domain.PaymentStatusPending, OrderStatus: domain.OrderStatusShipped})
	svc, _, _, _ := newTestOrderService(t, repo)

	order, err := svc.MarkPaid(context.Background(), MarkOrderPaidCommand{OrderID: "o1", Confirmed: true})
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if order.OrderStatus != domain.OrderStatusShipped {
		t.Fatalf("expected status untouched, got %s", order.OrderStatus)
	}
}

func TestOrderServiceCancel(t *testing.T) {
	tests := []struct {
		name    string
		status  domain.OrderStatus
		wantErr error
	}{
		{name: "to ship", status: domain.OrderStatusToShip},
		{name: "legacy pending", status: domain.OrderStatusPending},
		{name: "completed", status: domain.OrderStatusCompleted, wantErr: ErrInvalidState},
		{name: "delivered", status: domain.OrderStatusDelivered, wantErr: ErrInvalidState},
		{name: "returned", status: domain.OrderStatusReturned, wantErr: ErrInvalidState},
		{name: "cancelled", status: domain.OrderStatusCancelled, wantErr: ErrInvalidState},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := newStubOrderRepo(codOrder("o1", tc.status, domain.PaymentStatusPending))
			svc, _, _, _ := newTestOrderService(t, repo)

			order, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "o1", Confirmed: true})
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("cancel: %v", err)
			}
			if order.OrderStatus != domain.OrderStatusCancelled {
				t.Fatalf("expected cancelled, got %s", order.OrderStatus)
			}
		})
	}
}

func TestOrderServiceCancelRequiresConfirmation(t *testing.T) {
	repo := newStubOrderRepo(codOrder("o1", domain.OrderStatusToShip, domain.PaymentStatusPending))
	svc, _, _, _ := newTestOrderService(t, repo)

	if _, err := svc.Cancel(context.Background(), CancelOrderCommand{OrderID: "o1"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOrderServiceDelete(t *testing.T) {
	ctx := context.Background()
	repo := newStubOrderRepo(
		codOrder("live", domain.OrderStatusToShip, domain.PaymentStatusPending),
		codOrder("dead", domain.OrderStatusCancelled, domain.PaymentStatusPending),
	)
	svc, audit, events, _ := newTestOrderService(t, repo)

	full := DeleteOrderCommand{OrderID: "live", Confirmed: true, ConfirmedAgain: true, Phrase: "DELETE"}

	missingSecond := full
	missingSecond.ConfirmedAgain = false
	if err := svc.Delete(ctx, missingSecond); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for single confirmation, got %v", err)
	}
	wrongPhrase := full
	wrongPhrase.Phrase = "delete"
	if err := svc.Delete(ctx, wrongPhrase); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for phrase, got %v", err)
	}

	if err := svc.Delete(ctx, full); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected invalid state for live order, got %v", err)
	}
	if _, ok := repo.orders["live"]; !ok {
		t.Fatalf("live order must not be deleted")
	}

	full.OrderID = "dead"
	if err := svc.Delete(ctx, full); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := repo.orders["dead"]; ok {
		t.Fatalf("expected cancelled order removed")
	}
	if len(audit.records) != 1 || audit.records[0].Action != domain.AuditActionDelete {
		t.Fatalf("unexpected audit %+v", audit.records)
	}
	if len(events.events) != 1 || events.events[0].Type != orderEventDeleted {
		t.Fatalf("unexpected events %+v", events.events)
	}

	if err := svc.Delete(ctx, full); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}

func TestOrderServiceDeleteRefusesEveryNonCancelledStatus(t *testing.T) {
	statuses := []domain.OrderStatus{
		domain.OrderStatusPending,
		domain.OrderStatusProcessing,
		domain.OrderStatusConfirmed,
		domain.OrderStatusShipped,
		domain.OrderStatusDelivered,
		domain.OrderStatusToPay,
		domain.OrderStatusToShip,
		domain.OrderStatusToReceive,
		domain.OrderStatusCompleted,
		domain.OrderStatusReturned,
		"on_hold",
	}
	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			repo := newStubOrderRepo(codOrder("o1", status, domain.PaymentStatusPaid))
			svc, audit, events, _ := newTestOrderService(t, repo)

			err := svc.Delete(context.Background(), DeleteOrderCommand{OrderID: "o1", Confirmed: true, ConfirmedAgain: true, Phrase: "DELETE"})
			if !errors.Is(err, ErrInvalidState) {
				t.Fatalf("expected invalid state, got %v", err)
			}
			if _, ok := repo.orders["o1"]; !ok {
				t.Fatalf("order must not be deleted")
			}
			if len(audit.records) != 0 || len(events.events) != 0 {
				t.Fatalf("refused delete must not audit or publish")
			}
		})
	}
}

func TestOrderServiceEventFailureIsLoggedOnly(t *testing.T) {
	repo := newStubOrderRepo(codOrder("o1", domain.OrderStatusToShip, domain.PaymentStatusPending))
	svc, _, events, logs := newTestOrderService(t, repo)
	events.err = errBoom

	if _, err := svc.SetStatus(context.Background(), SetOrderStatusCommand{OrderID: "o1", Status: "to_receive"}); err != nil {
		t.Fatalf("expected success despite publish failure, got %v", err)
	}
	if !logs.has("order.event.publish.failed") {
		t.Fatalf("expected publish failure to be logged, got %v", logs.events)
	}
}

func TestOrderServiceListAndCount(t *testing.T) {
	base := orderNow.Add(-24 * time.Hour)
	repo := newStubOrderRepo(
		domain.Order{ID: "a", OrderStatus: domain.OrderStatusPending, PaymentMethod: domain.PaymentMethodCard, PaymentStatus: domain.PaymentStatusPending, CreatedAt: base.Add(5 * time.Minute)},
		domain.Order{ID: "b", OrderStatus: domain.OrderStatusPending, PaymentMethod: domain.PaymentMethodCashOnDelivery, PaymentStatus: domain.PaymentStatusPending, CreatedAt: base.Add(4 * time.Minute)},
		domain.Order{ID: "c", OrderStatus: domain.OrderStatusConfirmed, CreatedAt: base.Add(3 * time.Minute)},
		domain.Order{ID: "d", OrderStatus: domain.OrderStatusToShip, CreatedAt: base.Add(2 * time.Minute)},
		domain.Order{ID: "e", OrderStatus: "on_hold", CreatedAt: base.Add(time.Minute)},
	)
	svc, _, _, _ := newTestOrderService(t, repo)
	ctx := context.Background()

	counts, err := svc.CountByBucket(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[domain.BucketToPay] != 1 || counts[domain.BucketToShip] != 3 || counts[domain.BucketUnknown] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}

	page, err := svc.ListOrders(ctx, OrderListFilter{Bucket: domain.BucketToShip, Pagination: domain.Pagination{PageSize: 2}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].Order.ID != "b" || page.Items[1].Order.ID != "c" {
		t.Fatalf("unexpected first page %+v", page.Items)
	}
	if page.NextPageToken == "" {
		t.Fatalf("expected next page token")
	}

	page, err = svc.ListOrders(ctx, OrderListFilter{Bucket: domain.BucketToShip, Pagination: domain.Pagination{PageSize: 2, PageToken: page.NextPageToken}})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Order.ID != "d" || page.NextPageToken != "" {
		t.Fatalf("unexpected second page %+v next=%q", page.Items, page.NextPageToken)
	}

	if _, err := svc.ListOrders(ctx, OrderListFilter{Pagination: domain.Pagination{PageToken: "%%%"}}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected invalid token to be a validation error, got %v", err)
	}
}
