package domain

import (
	"strings"
	"time"
)

// Role is the privilege level stored on a user profile.
type Role string

const (
	RoleUser       Role = "user"
	RoleBuyer      Role = "buyer"
	RoleCreator    Role = "creator"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

var roleRanks = map[Role]int{
	RoleUser:       0,
	RoleBuyer:      0,
	RoleCreator:    1,
	RoleAdmin:      2,
	RoleSuperadmin: 3,
}

// ParseRole normalises and validates a role name.
func ParseRole(raw string) (Role, bool) {
	role := Role(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// Rank orders roles by privilege; user and buyer are aliases. Unknown roles rank below user.
func (r Role) Rank() int {
	rank, ok := roleRanks[r]
	if !ok {
		return -1
	}
	return rank
}

// AtLeast reports whether r carries at least the privilege of other.
func (r Role) AtLeast(other Role) bool {
	return r.Rank() >= other.Rank()
}

// IsAdmin reports whether the role grants console access.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperadmin
}

// UserStatus is the account standing of a user.
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusBanned    UserStatus = "banned"
)

// ParseUserStatus normalises and validates an account status.
func ParseUserStatus(raw string) (UserStatus, bool) {
	status := UserStatus(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case UserStatusActive, UserStatusSuspended, UserStatusBanned:
		return status, true
	default:
		return "", false
	}
}

// UserProfile is the mutable profile record kept in the realtime store.
type UserProfile struct {
	UID              string
	Email            string
	DisplayName      string
	PhotoURL         string
	Role             Role
	Status           UserStatus
	SuspensionReason string
	SuspendedAt      *time.Time
	BanReason        string
	BannedAt         *time.Time
	CreatedAt        time.Time
	LastLoginAt      *time.Time
}

// EffectiveStatus treats an unset status as active.
func (p UserProfile) EffectiveStatus() UserStatus {
	if p.Status == "" {
		return UserStatusActive
	}
	return p.Status
}
