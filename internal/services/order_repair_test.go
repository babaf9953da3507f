package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marketdesk/admin/internal/domain"
)

func repairFixture() *stubOrderRepo {
	at := func(m int) time.Time { return orderNow.Add(-time.Duration(m) * time.Minute) }
	return newStubOrderRepo(
		domain.Order{ID: "paid-card", PaymentMethod: domain.PaymentMethodCard, PaymentStatus: domain.PaymentStatusPaid, OrderStatus: domain.OrderStatusPending, CreatedAt: at(1)},
		domain.Order{ID: "paid-topay", PaymentMethod: domain.PaymentMethodGrabPay, PaymentStatus: domain.PaymentStatusPaid, OrderStatus: domain.OrderStatusToPay, CreatedAt: at(2)},
		domain.Order{ID: "cod-pending", PaymentMethod: domain.PaymentMethodCashOnDelivery, PaymentStatus: domain.PaymentStatusPending, OrderStatus: domain.OrderStatusPending, CreatedAt: at(3)},
		domain.Order{ID: "cod-delivered", PaymentMethod: domain.PaymentMethodCashOnDelivery, PaymentStatus: domain.PaymentStatusPending, OrderStatus: domain.OrderStatusDelivered, CreatedAt: at(4)},
		domain.Order{ID: "cod-completed", PaymentMethod: domain.PaymentMethodCashOnDelivery, PaymentStatus: domain.PaymentStatusPending, OrderStatus: domain.OrderStatusCompleted, CreatedAt: at(5)},
		domain.Order{ID: "healthy", PaymentMethod: domain.PaymentMethodCard, PaymentStatus: domain.PaymentStatusPaid, OrderStatus: domain.OrderStatusToShip, CreatedAt: at(6)},
		domain.Order{ID: "unpaid-card", PaymentMethod: domain.PaymentMethodCard, PaymentStatus: domain.PaymentStatusPending, OrderStatus: domain.OrderStatusPending, CreatedAt: at(7)},
	)
}

func newTestRepairService(t *testing.T, repo *stubOrderRepo) (OrderRepairService, *captureRecorder) {
	t.Helper()
	audit := &captureRecorder{}
	svc, err := NewOrderRepairService(OrderRepairServiceDeps{Orders: repo, Audit: audit, Clock: fixedClock(orderNow)})
	if err != nil {
		t.Fatalf("new repair service: %v", err)
	}
	return svc, audit
}

func TestOrderRepairAppliesFirstMatchingRule(t *testing.T) {
	repo := repairFixture()
	svc, audit := newTestRepairService(t, repo)

	report, err := svc.Repair(context.Background(), RepairOptions{Actor: Actor{ID: "admin-1"}})
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if report.Scanned != 7 || report.Touched != 5 || report.Failed != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	want := map[string]struct {
		status  domain.OrderStatus
		payment domain.PaymentStatus
	}{
		"paid-card":     {domain.OrderStatusConfirmed, domain.PaymentStatusPaid},
		"paid-topay":    {domain.OrderStatusConfirmed, domain.PaymentStatusPaid},
		"cod-pending":   {domain.OrderStatusConfirmed, domain.PaymentStatusPending},
		"cod-delivered": {domain.OrderStatusDelivered, domain.PaymentStatusPaid},
		"cod-completed": {domain.OrderStatusCompleted, domain.PaymentStatusPaid},
		"healthy":       {domain.OrderStatusToShip, domain.PaymentStatusPaid},
		"unpaid-card":   {domain.OrderStatusPending, domain.PaymentStatusPending},
	}
	for id, w := range want {
		got := repo.orders[id]
		if got.OrderStatus != w.status || got.PaymentStatus != w.payment {
			t.Errorf("%s: got %s/%s want %s/%s", id, got.OrderStatus, got.PaymentStatus, w.status, w.payment)
		}
	}
	for _, call := range repo.updates {
		if !call.Update.UpdatedAt.Equal(orderNow) {
			t.Fatalf("expected updatedAt on every repair write")
		}
	}
	if len(audit.records) != 1 || audit.records[0].Action != domain.AuditActionRepair {
		t.Fatalf("expected one summary audit entry, got %+v", audit.records)
	}
}

func TestOrderRepairIsIdempotent(t *testing.T) {
	repo := repairFixture()
	svc, audit := newTestRepairService(t, repo)

	if _, err := svc.Repair(context.Background(), RepairOptions{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	writes := len(repo.updates)

	report, err := svc.Repair(context.Background(), RepairOptions{})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if report.Touched != 0 || len(repo.updates) != writes {
		t.Fatalf("expected second run to touch nothing, got %+v", report)
	}
	if len(audit.records) != 1 {
		t.Fatalf("expected no audit entry for an empty run, got %d", len(audit.records))
	}
}

func TestOrderRepairContinuesPastFailures(t *testing.T) {
	repo := repairFixture()
	repo.updateErr["cod-pending"] = errBoom
	svc, _ := newTestRepairService(t, repo)

	report, err := svc.Repair(context.Background(), RepairOptions{})
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if report.Failed != 1 || report.Touched != 4 {
		t.Fatalf("unexpected report %+v", report)
	}
	var failed RepairChange
	for _, change := range report.Changes {
		if change.OrderID == "cod-pending" {
			failed = change
		}
	}
	if failed.Applied || failed.Error == "" || failed.Rule != RuleCODPending {
		t.Fatalf("unexpected failed change %+v", failed)
	}
}

func TestOrderRepairDryRunWritesNothing(t *testing.T) {
	repo := repairFixture()
	svc, audit := newTestRepairService(t, repo)

	report, err := svc.Repair(context.Background(), RepairOptions{DryRun: true})
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if report.Touched != 5 || !report.DryRun {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(repo.updates) != 0 || len(audit.records) != 0 {
		t.Fatalf("dry run must not write")
	}
}

func TestOrderRepairListFailure(t *testing.T) {
	repo := newStubOrderRepo()
	repo.listErr = repoError{unavailable: true}
	svc, _ := newTestRepairService(t, repo)

	if _, err := svc.Repair(context.Background(), RepairOptions{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
