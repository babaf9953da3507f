package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/marketdesk/admin/internal/domain"
	"github.com/marketdesk/admin/internal/platform/textutil"
	"github.com/marketdesk/admin/internal/repositories"
)

const (
	// NoReasonProvided is stored when a suspension or ban is applied without a reason.
	NoReasonProvided = "No reason provided"

	maxReasonRunes             = 500
	defaultProfilePollInterval = 5 * time.Second
)

// UserAdminServiceDeps bundles constructor inputs for the user role and status engine.
type UserAdminServiceDeps struct {
	Profiles repositories.ProfileRepository
	Claims   ClaimsManager
	Audit    AuditRecorder
	Clock    func() time.Time
	Logger   Logger
	// SyncClaimsOnRoleChange mirrors role changes into the identity token claims.
	SyncClaimsOnRoleChange bool
	// RevokeSessionsOnBan revokes refresh tokens when a user is suspended or banned.
	RevokeSessionsOnBan bool
	PollInterval        time.Duration
}

type userAdminService struct {
	profiles     repositories.ProfileRepository
	claims       ClaimsManager
	audit        AuditRecorder
	now          func() time.Time
	logger       Logger
	syncClaims   bool
	revokeOnBan  bool
	pollInterval time.Duration
}

// NewUserAdminService wires the user role and status engine.
func NewUserAdminService(deps UserAdminServiceDeps) (UserAdminService, error) {
	if deps.Profiles == nil {
		return nil, errors.New("user admin service: profile repository is required")
	}
	if (deps.SyncClaimsOnRoleChange || deps.RevokeSessionsOnBan) && deps.Claims == nil {
		return nil, errors.New("user admin service: claims manager is required for claim sync or session revocation")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	interval := deps.PollInterval
	if interval <= 0 {
		interval = defaultProfilePollInterval
	}
	return &userAdminService{
		profiles:     deps.Profiles,
		claims:       deps.Claims,
		audit:        deps.Audit,
		now:          func() time.Time { return clock().UTC() },
		logger:       logger,
		syncClaims:   deps.SyncClaimsOnRoleChange,
		revokeOnBan:  deps.RevokeSessionsOnBan,
		pollInterval: interval,
	}, nil
}

func (s *userAdminService) GetUser(ctx context.Context, uid string) (domain.UserProfile, error) {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return domain.UserProfile{}, fmt.Errorf("%w: uid is required", ErrUserInvalidInput)
	}
	profile, err := s.profiles.FindByID(ctx, uid)
	if err != nil {
		return domain.UserProfile{}, mapRepositoryError(err, ErrUserNotFound)
	}
	return profile, nil
}

func (s *userAdminService) ListUsers(ctx context.Context) ([]domain.UserProfile, error) {
	profiles, err := s.profiles.List(ctx)
	if err != nil {
		return nil, mapRepositoryError(err, nil)
	}
	return profiles, nil
}

func (s *userAdminService) SetRole(ctx context.Context, cmd SetUserRoleCommand) (domain.UserProfile, error) {
	role, ok := domain.ParseRole(cmd.Role)
	if !ok {
		return domain.UserProfile{}, fmt.Errorf("%w: unknown role %q", ErrUserInvalidInput, cmd.Role)
	}
	profile, err := s.GetUser(ctx, cmd.UID)
	if err != nil {
		return domain.UserProfile{}, err
	}

	if err := s.profiles.UpdateRole(ctx, profile.UID, role); err != nil {
		return domain.UserProfile{}, mapRepositoryError(err, ErrUserNotFound)
	}
	oldRole := profile.Role
	profile.Role = role

	s.record(ctx, cmd.Actor, profile.UID, map[string]any{
		"field":    "role",
		"oldValue": string(oldRole),
		"newValue": string(role),
	})
	if s.syncClaims {
		s.syncRoleClaims(ctx, profile.UID, role)
	}
	return profile, nil
}

// syncRoleClaims merges the role into the existing custom claims. Failures are logged only;
// the profile remains the source of truth and the resolver reads both.
func (s *userAdminService) syncRoleClaims(ctx context.Context, uid string, role domain.Role) {
	current, err := s.claims.CurrentClaims(ctx, uid)
	if err != nil {
		s.logger(ctx, "user.claims_sync.failed", map[string]any{"uid": uid, "stage": "read", "error": err.Error()})
		return
	}
	claims := maps.Clone(current)
	if claims == nil {
		claims = map[string]any{}
	}
	claims["admin"] = role.IsAdmin()
	claims["role"] = string(role)
	if err := s.claims.SetCustomClaims(ctx, uid, claims); err != nil {
		s.logger(ctx, "user.claims_sync.failed", map[string]any{"uid": uid, "stage": "write", "error": err.Error()})
	}
}

func (s *userAdminService) SetStatus(ctx context.Context, cmd SetUserStatusCommand) (domain.UserProfile, error) {
	status, ok := domain.ParseUserStatus(cmd.Status)
	if !ok {
		return domain.UserProfile{}, fmt.Errorf("%w: unknown status %q", ErrUserInvalidInput, cmd.Status)
	}
	profile, err := s.GetUser(ctx, cmd.UID)
	if err != nil {
		return domain.UserProfile{}, err
	}

	reason := textutil.CleanText(cmd.Reason, maxReasonRunes)
	if reason == "" {
		reason = NoReasonProvided
	}
	now := s.now()
	change := repositories.ProfileStatusChange{Status: status}
	switch status {
	case domain.UserStatusSuspended:
		change.SuspensionReason = &reason
		change.SuspendedAt = &now
	case domain.UserStatusBanned:
		change.BanReason = &reason
		change.BannedAt = &now
	}
	if err := s.profiles.UpdateStatus(ctx, profile.UID, change); err != nil {
		return domain.UserProfile{}, mapRepositoryError(err, ErrUserNotFound)
	}

	oldStatus := profile.EffectiveStatus()
	profile.Status = status
	profile.SuspensionReason, profile.SuspendedAt = "", nil
	profile.BanReason, profile.BannedAt = "", nil
	details := map[string]any{
		"field":    "status",
		"oldValue": string(oldStatus),
		"newValue": string(status),
	}
	switch status {
	case domain.UserStatusSuspended:
		profile.SuspensionReason, profile.SuspendedAt = reason, change.SuspendedAt
		details["reason"] = reason
	case domain.UserStatusBanned:
		profile.BanReason, profile.BannedAt = reason, change.BannedAt
		details["reason"] = reason
	}

	s.record(ctx, cmd.Actor, profile.UID, details)
	if s.revokeOnBan && status != domain.UserStatusActive {
		if err := s.claims.RevokeSessions(ctx, profile.UID); err != nil {
			s.logger(ctx, "user.session_revoke.failed", map[string]any{"uid": profile.UID, "error": err.Error()})
		}
	}
	return profile, nil
}

func (s *userAdminService) record(ctx context.Context, actor Actor, uid string, details map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditRecord{
		Action:       domain.AuditActionUpdate,
		ActorID:      actor.ID,
		ActorEmail:   actor.Email,
		ResourceType: domain.AuditResourceUser,
		ResourceID:   uid,
		Details:      details,
	})
}

// ErrHierarchyViolation is returned by CheckHierarchy.
var ErrHierarchyViolation = fmt.Errorf("only users and roles below your own role may be changed: %w", ErrPermissionDenied)

// CheckHierarchy applies the peer protection policy. A superadmin is unrestricted; anyone else
// may only modify users ranked strictly below them and only assign roles strictly below their
// own, so an admin cannot demote a peer admin or grant admin. newRole is empty for status changes.
func CheckHierarchy(actor Actor, target domain.UserProfile, newRole domain.Role) error {
	if actor.Role == domain.RoleSuperadmin {
		return nil
	}
	if target.Role.AtLeast(actor.Role) {
		return ErrHierarchyViolation
	}
	if newRole != "" && newRole.AtLeast(actor.Role) {
		return ErrHierarchyViolation
	}
	return nil
}
