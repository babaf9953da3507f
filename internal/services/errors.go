package services

import (
	"errors"
	"fmt"

	"github.com/marketdesk/admin/internal/repositories"
)

// Error kinds. Every error returned by a service matches exactly one of these with errors.Is,
// except unclassified store failures which are returned wrapped but otherwise untouched.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidState     = errors.New("invalid state")
	ErrPermissionDenied = errors.New("permission denied")
	ErrValidation       = errors.New("validation failed")
	ErrUnavailable      = errors.New("store unavailable")
)

var (
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = fmt.Errorf("order %w", ErrNotFound)
	// ErrOrderInvalidState indicates the order is in the wrong state for the operation.
	ErrOrderInvalidState = fmt.Errorf("order: %w", ErrInvalidState)
	// ErrOrderInvalidInput signals a malformed command or a missing confirmation.
	ErrOrderInvalidInput = fmt.Errorf("order: %w", ErrValidation)

	// ErrUserNotFound indicates no profile exists for the uid.
	ErrUserNotFound = fmt.Errorf("user %w", ErrNotFound)
	// ErrUserInvalidInput signals an unknown role or status.
	ErrUserInvalidInput = fmt.Errorf("user: %w", ErrValidation)

	// ErrAuditLogNotFound indicates the audit entry does not exist.
	ErrAuditLogNotFound = fmt.Errorf("audit log %w", ErrNotFound)
)

// mapRepositoryError classifies store failures. Not-found becomes notFound; transient
// failures additionally match ErrUnavailable; the original error stays in the chain.
func mapRepositoryError(err error, notFound error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound() && notFound != nil:
			return fmt.Errorf("%w: %w", notFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
	}
	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
