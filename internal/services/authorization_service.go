package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/marketdesk/admin/internal/domain"
	"github.com/marketdesk/admin/internal/platform/auth"
	"github.com/marketdesk/admin/internal/repositories"
)

// AccessDeniedMessage explains the dual-source check to a caller that fails it.
const AccessDeniedMessage = "admin access requires either an admin claim on your sign-in token or an admin role on your user profile; neither was found, so please sign in again with an admin account"

var (
	// ErrAdminAccessDenied is returned when neither the token claims nor the profile grant access.
	ErrAdminAccessDenied = fmt.Errorf("%s: %w", AccessDeniedMessage, ErrPermissionDenied)
	// ErrAccountInactive is returned for suspended or banned profiles.
	ErrAccountInactive = fmt.Errorf("account is not active: %w", ErrPermissionDenied)
)

// AuthorizationServiceDeps bundles constructor inputs for the authorization resolver.
type AuthorizationServiceDeps struct {
	Profiles repositories.ProfileRepository
	Claims   ClaimsManager
	Clock    func() time.Time
	Logger   Logger
}

type authorizationService struct {
	profiles repositories.ProfileRepository
	claims   ClaimsManager
	now      func() time.Time
	logger   Logger
}

// NewAuthorizationService wires the dual-source authorization resolver.
func NewAuthorizationService(deps AuthorizationServiceDeps) (AuthorizationService, error) {
	if deps.Profiles == nil {
		return nil, errors.New("authorization service: profile repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &authorizationService{
		profiles: deps.Profiles,
		claims:   deps.Claims,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
	}, nil
}

// Authorize grants access when the current claims or the stored profile carry an admin role.
// A caller granted by claims alone gets a profile created from those claims.
func (s *authorizationService) Authorize(ctx context.Context, cmd AuthorizeCommand) (AdminPrincipal, error) {
	uid := strings.TrimSpace(cmd.UID)
	if uid == "" {
		return AdminPrincipal{}, fmt.Errorf("authorize: uid is required: %w", ErrValidation)
	}

	claims := s.currentClaims(ctx, uid, cmd.TokenClaims)
	claimRole := auth.ClaimRole(claims)
	claimAdmin := auth.ClaimAdmin(claims) || claimRole == string(domain.RoleAdmin) || claimRole == string(domain.RoleSuperadmin)

	profile, err := s.profiles.FindByID(ctx, uid)
	hasProfile := true
	if err != nil {
		if !isRepoNotFound(err) {
			return AdminPrincipal{}, mapRepositoryError(err, nil)
		}
		hasProfile = false
	}
	// a node without a recognised role (for example one holding only lastLoginAt) does not
	// count as a profile role; the claims decide and the role is repaired below
	roleKnown := false
	if hasProfile {
		profile.Role, roleKnown = domain.ParseRole(string(profile.Role))
	}
	profileAdmin := roleKnown && profile.Role.IsAdmin()

	if !claimAdmin && !profileAdmin {
		return AdminPrincipal{}, ErrAdminAccessDenied
	}
	if hasProfile && profile.EffectiveStatus() != domain.UserStatusActive {
		return AdminPrincipal{}, fmt.Errorf("%w (%s)", ErrAccountInactive, profile.EffectiveStatus())
	}

	principal := AdminPrincipal{
		UID:          uid,
		Email:        cmd.Email,
		ClaimAdmin:   claimAdmin,
		ProfileAdmin: profileAdmin,
	}
	if hasProfile && principal.Email == "" {
		principal.Email = profile.Email
	}
	switch {
	case roleKnown:
		principal.Role = profile.Role
	case claimRole == string(domain.RoleSuperadmin):
		principal.Role = domain.RoleSuperadmin
	default:
		principal.Role = domain.RoleAdmin
	}

	switch {
	case !hasProfile:
		principal.Reconciled = s.reconcile(ctx, principal)
	case !roleKnown:
		principal.Reconciled = s.repairRole(ctx, principal)
	}
	return principal, nil
}

// currentClaims loads the claims held by the identity service now, which is what a forced
// token refresh would return. On failure the verified token's claims are used.
func (s *authorizationService) currentClaims(ctx context.Context, uid string, tokenClaims map[string]any) map[string]any {
	if s.claims == nil {
		return tokenClaims
	}
	claims, err := s.claims.CurrentClaims(ctx, uid)
	if err != nil {
		s.logger(ctx, "authz.claims_refresh.failed", map[string]any{
			"uid":   uid,
			"error": err.Error(),
		})
		return tokenClaims
	}
	if claims == nil {
		return map[string]any{}
	}
	return claims
}

func (s *authorizationService) reconcile(ctx context.Context, principal AdminPrincipal) bool {
	profile := domain.UserProfile{
		UID:       principal.UID,
		Email:     principal.Email,
		Role:      principal.Role,
		Status:    domain.UserStatusActive,
		CreatedAt: s.now(),
	}
	if err := s.profiles.Insert(ctx, profile); err != nil {
		s.logger(ctx, "authz.profile_reconcile.failed", map[string]any{
			"uid":   principal.UID,
			"role":  string(principal.Role),
			"error": err.Error(),
		})
		return false
	}
	s.logger(ctx, "authz.profile_reconciled", map[string]any{
		"uid":  principal.UID,
		"role": string(principal.Role),
	})
	return true
}

// repairRole writes the claim-derived role onto an existing profile whose role is missing or
// unknown. Other fields, status included, are left alone.
func (s *authorizationService) repairRole(ctx context.Context, principal AdminPrincipal) bool {
	if err := s.profiles.UpdateRole(ctx, principal.UID, principal.Role); err != nil {
		s.logger(ctx, "authz.profile_reconcile.failed", map[string]any{
			"uid":   principal.UID,
			"role":  string(principal.Role),
			"stage": "role",
			"error": err.Error(),
		})
		return false
	}
	s.logger(ctx, "authz.profile_reconciled", map[string]any{
		"uid":  principal.UID,
		"role": string(principal.Role),
	})
	return true
}

func (s *authorizationService) TouchLogin(ctx context.Context, uid string) error {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return fmt.Errorf("touch login: uid is required: %w", ErrValidation)
	}
	if err := s.profiles.TouchLogin(ctx, uid, s.now()); err != nil {
		return mapRepositoryError(err, ErrUserNotFound)
	}
	return nil
}
