package repositories

import (
	"context"
	"time"

	"github.com/marketdesk/admin/internal/domain"
	"github.com/marketdesk/admin/internal/platform/pagination"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderUpdate is a field-level patch applied to one order document in a single write.
// Nil fields are left untouched; UpdatedAt is always written.
type OrderUpdate struct {
	OrderStatus   *domain.OrderStatus
	PaymentStatus *domain.PaymentStatus
	UpdatedAt     time.Time
}

// Empty reports whether the patch changes nothing besides the timestamp.
func (u OrderUpdate) Empty() bool {
	return u.OrderStatus == nil && u.PaymentStatus == nil
}

// OrderRepository is the order store.
type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	// ListAll returns every order, newest first.
	ListAll(ctx context.Context) ([]domain.Order, error)
	// Update fails with a not-found RepositoryError when the order does not exist.
	Update(ctx context.Context, orderID string, update OrderUpdate) error
	// Delete re-reads the order and removes it only if guard returns nil, in one transaction.
	Delete(ctx context.Context, orderID string, guard func(domain.Order) error) error
}

// AuditLogQuery selects one page of audit entries, newest first.
type AuditLogQuery struct {
	PageSize int
	After    pagination.Cursor
}

// AuditLogRepository is the append-only log store plus its maintenance operations.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, query AuditLogQuery) (domain.CursorPage[domain.AuditLogEntry], error)
	UpdateMetadata(ctx context.Context, logID string, metadata string) error
	Delete(ctx context.Context, logID string) error
}

// ProfileStatusChange is written as a whole so the reason fields never disagree with the status.
// Nil reasons and timestamps delete the stored value.
type ProfileStatusChange struct {
	Status           domain.UserStatus
	SuspensionReason *string
	SuspendedAt      *time.Time
	BanReason        *string
	BannedAt         *time.Time
}

// ProfileSnapshot is one full read of the profile set with the version tag that produced it.
type ProfileSnapshot struct {
	Profiles []domain.UserProfile
	ETag     string
	Changed  bool
}

// ProfileRepository is the realtime profile store keyed by uid.
type ProfileRepository interface {
	FindByID(ctx context.Context, uid string) (domain.UserProfile, error)
	List(ctx context.Context) ([]domain.UserProfile, error)
	Insert(ctx context.Context, profile domain.UserProfile) error
	UpdateRole(ctx context.Context, uid string, role domain.Role) error
	UpdateStatus(ctx context.Context, uid string, change ProfileStatusChange) error
	TouchLogin(ctx context.Context, uid string, at time.Time) error
	// Snapshot reads the whole set unless it still matches etag, in which case Changed is false.
	Snapshot(ctx context.Context, etag string) (ProfileSnapshot, error)
}
