package services

import (
	"context"
	"time"

	"github.com/marketdesk/admin/internal/domain"
)

// Actor identifies the admin performing a mutation.
type Actor struct {
	ID    string
	Email string
	Role  domain.Role
}

// OrderView pairs an order with its resolved bucket.
type OrderView struct {
	Order  domain.Order
	Bucket domain.StatusBucket
}

// OrderListFilter selects orders by bucket; an empty bucket lists everything.
type OrderListFilter struct {
	Bucket     domain.StatusBucket
	Pagination domain.Pagination
}

// SetOrderStatusCommand writes a new raw status.
type SetOrderStatusCommand struct {
	Actor   Actor
	OrderID string
	Status  string
}

// MarkOrderPaidCommand records payment; Confirmed must be true.
type MarkOrderPaidCommand struct {
	Actor     Actor
	OrderID   string
	Confirmed bool
}

// CancelOrderCommand cancels a non-terminal order; Confirmed must be true.
type CancelOrderCommand struct {
	Actor     Actor
	OrderID   string
	Confirmed bool
}

// DeleteConfirmationPhrase must be typed verbatim to delete an order.
const DeleteConfirmationPhrase = "DELETE"

// DeleteOrderCommand hard-deletes a cancelled order after two confirmations and the phrase.
type DeleteOrderCommand struct {
	Actor          Actor
	OrderID        string
	Confirmed      bool
	ConfirmedAgain bool
	Phrase         string
}

// OrderService is the transition engine plus the read paths that share its bucket logic.
type OrderService interface {
	GetOrder(ctx context.Context, orderID string) (OrderView, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[OrderView], error)
	CountByBucket(ctx context.Context) (map[domain.StatusBucket]int, error)
	SetStatus(ctx context.Context, cmd SetOrderStatusCommand) (domain.Order, error)
	MarkPaid(ctx context.Context, cmd MarkOrderPaidCommand) (domain.Order, error)
	Cancel(ctx context.Context, cmd CancelOrderCommand) (domain.Order, error)
	Delete(ctx context.Context, cmd DeleteOrderCommand) error
}

// RepairOptions controls a consistency repair run.
type RepairOptions struct {
	Actor  Actor
	DryRun bool
}

// RepairChange describes one correction, applied or planned.
type RepairChange struct {
	OrderID string `json:"order_id"`
	Rule    string `json:"rule"`
	Field   string `json:"field"`
	From    string `json:"from"`
	To      string `json:"to"`
	Applied bool   `json:"applied"`
	Error   string `json:"error,omitempty"`
}

// RepairReport summarises a repair run.
type RepairReport struct {
	Scanned int            `json:"scanned"`
	Touched int            `json:"touched"`
	Failed  int            `json:"failed"`
	DryRun  bool           `json:"dry_run"`
	Changes []RepairChange `json:"changes"`
}

// OrderRepairService fixes orders whose status and payment fields disagree.
type OrderRepairService interface {
	Repair(ctx context.Context, opts RepairOptions) (RepairReport, error)
}

// AuditRecord is the input to the audit recorder.
type AuditRecord struct {
	Action       string
	ActorID      string
	ActorEmail   string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	Metadata     string
}

// AuditRecorder appends audit entries without ever failing the caller.
type AuditRecorder interface {
	Record(ctx context.Context, record AuditRecord)
}

// UpdateAuditMetadataCommand edits the free-text metadata of one entry.
type UpdateAuditMetadataCommand struct {
	Actor    Actor
	LogID    string
	Metadata string
}

// DeleteAuditLogCommand removes one entry.
type DeleteAuditLogCommand struct {
	Actor Actor
	LogID string
}

// AuditLogService records and maintains the audit trail.
type AuditLogService interface {
	AuditRecorder
	List(ctx context.Context, pagination domain.Pagination) (domain.CursorPage[domain.AuditLogEntry], error)
	UpdateMetadata(ctx context.Context, cmd UpdateAuditMetadataCommand) error
	Delete(ctx context.Context, cmd DeleteAuditLogCommand) error
}

// AuthorizeCommand carries a caller whose ID token has already been verified.
type AuthorizeCommand struct {
	UID         string
	Email       string
	TokenClaims map[string]any
}

// AdminPrincipal is the outcome of a successful authorization.
type AdminPrincipal struct {
	UID          string
	Email        string
	Role         domain.Role
	ClaimAdmin   bool
	ProfileAdmin bool
	// Reconciled is set when a missing profile was created from the claims.
	Reconciled bool
}

// Actor converts the principal into the actor recorded on mutations.
func (p AdminPrincipal) Actor() Actor {
	return Actor{ID: p.UID, Email: p.Email, Role: p.Role}
}

// AuthorizationService decides whether a caller may use the admin console.
type AuthorizationService interface {
	Authorize(ctx context.Context, cmd AuthorizeCommand) (AdminPrincipal, error)
	TouchLogin(ctx context.Context, uid string) error
}

// SetUserRoleCommand changes a user's role.
type SetUserRoleCommand struct {
	Actor Actor
	UID   string
	Role  string
}

// SetUserStatusCommand changes a user's standing.
type SetUserStatusCommand struct {
	Actor  Actor
	UID    string
	Status string
	Reason string
}

// UserAdminService is the role and status engine plus user listing and live updates.
type UserAdminService interface {
	GetUser(ctx context.Context, uid string) (domain.UserProfile, error)
	ListUsers(ctx context.Context) ([]domain.UserProfile, error)
	SetRole(ctx context.Context, cmd SetUserRoleCommand) (domain.UserProfile, error)
	SetStatus(ctx context.Context, cmd SetUserStatusCommand) (domain.UserProfile, error)
	Subscribe(ctx context.Context) (*Subscription, error)
}

// ClaimsManager reads and writes identity-service custom claims and sessions.
type ClaimsManager interface {
	CurrentClaims(ctx context.Context, uid string) (map[string]any, error)
	SetCustomClaims(ctx context.Context, uid string, claims map[string]any) error
	RevokeSessions(ctx context.Context, uid string) error
}

// OrderEvent is published after every successful order transition.
type OrderEvent struct {
	Type           string    `json:"type"`
	OrderID        string    `json:"orderId"`
	OrderNumber    string    `json:"orderNumber,omitempty"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	CurrentStatus  string    `json:"currentStatus,omitempty"`
	CurrentBucket  string    `json:"currentBucket,omitempty"`
	PaymentStatus  string    `json:"paymentStatus,omitempty"`
	ActorID        string    `json:"actorId,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// Logger is the structured event sink services report best-effort failures to.
type Logger func(ctx context.Context, event string, fields map[string]any)

func noopLogger(context.Context, string, map[string]any) {}
