package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/marketdesk/admin/internal/domain"
	"github.com/marketdesk/admin/internal/repositories"
)

// Repair rule names, reported on each change.
const (
	RulePaidAwaitingConfirmation = "paid_awaiting_confirmation"
	RuleCODPending               = "cod_pending"
	RuleCODDeliveredUnpaid       = "cod_delivered_unpaid"
)

type repairRule struct {
	name    string
	matches func(domain.Order) bool
	fix     func(domain.Order) (repositories.OrderUpdate, RepairChange)
}

// repairRules are evaluated in order; only the first match is applied per order per run.
var repairRules = []repairRule{
	{
		name: RulePaidAwaitingConfirmation,
		matches: func(o domain.Order) bool {
			return (o.OrderStatus == domain.OrderStatusPending || o.OrderStatus == domain.OrderStatusToPay) &&
				o.PaymentStatus == domain.PaymentStatusPaid && !o.PaymentMethod.IsCOD()
		},
		fix: confirmOrder,
	},
	{
		name: RuleCODPending,
		matches: func(o domain.Order) bool {
			return o.PaymentMethod.IsCOD() && o.OrderStatus == domain.OrderStatusPending
		},
		fix: confirmOrder,
	},
	{
		name: RuleCODDeliveredUnpaid,
		matches: func(o domain.Order) bool {
			return o.PaymentMethod.IsCOD() && o.PaymentStatus == domain.PaymentStatusPending &&
				(o.OrderStatus == domain.OrderStatusDelivered || o.OrderStatus == domain.OrderStatusCompleted)
		},
		fix: func(o domain.Order) (repositories.OrderUpdate, RepairChange) {
			paid := domain.PaymentStatusPaid
			return repositories.OrderUpdate{PaymentStatus: &paid}, RepairChange{
				Field: "paymentStatus",
				From:  string(o.PaymentStatus),
				To:    string(paid),
			}
		},
	},
}

func confirmOrder(o domain.Order) (repositories.OrderUpdate, RepairChange) {
	confirmed := domain.OrderStatusConfirmed
	return repositories.OrderUpdate{OrderStatus: &confirmed}, RepairChange{
		Field: "orderStatus",
		From:  string(o.OrderStatus),
		To:    string(confirmed),
	}
}

// OrderRepairServiceDeps bundles constructor inputs for the repair job.
type OrderRepairServiceDeps struct {
	Orders repositories.OrderRepository
	Audit  AuditRecorder
	Clock  func() time.Time
	Logger Logger
}

type orderRepairService struct {
	orders  repositories.OrderRepository
	audit   AuditRecorder
	now     func() time.Time
	logger  Logger
	touched metric.Int64Counter
	failed  metric.Int64Counter
}

// NewOrderRepairService wires the bulk consistency repair job.
func NewOrderRepairService(deps OrderRepairServiceDeps) (OrderRepairService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order repair service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &orderRepairService{
		orders:  deps.Orders,
		audit:   deps.Audit,
		now:     func() time.Time { return clock().UTC() },
		logger:  logger,
		touched: newCounter("admin.orders.repair.touched", "Orders corrected by the consistency repair"),
		failed:  newCounter("admin.orders.repair.failed", "Order corrections that failed to write"),
	}, nil
}

// Repair scans every order and applies the first matching correction to each. A failed write
// is counted and the scan continues. Running it twice in a row touches nothing the second time.
func (s *orderRepairService) Repair(ctx context.Context, opts RepairOptions) (report RepairReport, err error) {
	ctx, span := startSpan(ctx, "orders.Repair", attribute.Bool("dry_run", opts.DryRun))
	defer func() { endSpan(span, err) }()

	orders, err := s.orders.ListAll(ctx)
	if err != nil {
		return RepairReport{}, mapRepositoryError(err, nil)
	}

	report = RepairReport{DryRun: opts.DryRun, Changes: []RepairChange{}}
	for _, order := range orders {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Scanned++

		rule, ok := firstMatch(order)
		if !ok {
			continue
		}
		update, change := rule.fix(order)
		change.OrderID = order.ID
		change.Rule = rule.name

		if opts.DryRun {
			report.Touched++
			report.Changes = append(report.Changes, change)
			continue
		}

		update.UpdatedAt = s.now()
		if err := s.orders.Update(ctx, order.ID, update); err != nil {
			report.Failed++
			change.Error = err.Error()
			report.Changes = append(report.Changes, change)
			s.logger(ctx, "order.repair.write.failed", map[string]any{
				"orderId": order.ID,
				"rule":    rule.name,
				"error":   err.Error(),
			})
			continue
		}
		change.Applied = true
		report.Touched++
		report.Changes = append(report.Changes, change)
	}

	if !opts.DryRun {
		addCount(ctx, s.touched, int64(report.Touched))
		addCount(ctx, s.failed, int64(report.Failed))
		if s.audit != nil && (report.Touched > 0 || report.Failed > 0) {
			s.audit.Record(ctx, AuditRecord{
				Action:       domain.AuditActionRepair,
				ActorID:      opts.Actor.ID,
				ActorEmail:   opts.Actor.Email,
				ResourceType: domain.AuditResourceBatch,
				ResourceID:   "orders",
				Details: map[string]any{
					"scanned": report.Scanned,
					"touched": report.Touched,
					"failed":  report.Failed,
				},
			})
		}
	}
	s.logger(ctx, "order.repair.completed", map[string]any{
		"scanned": report.Scanned,
		"touched": report.Touched,
		"failed":  report.Failed,
		"dryRun":  report.DryRun,
	})
	return report, nil
}

func firstMatch(order domain.Order) (repairRule, bool) {
	for _, rule := range repairRules {
		if rule.matches(order) {
			return rule, true
		}
	}
	return repairRule{}, false
}
