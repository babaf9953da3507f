package auth

import (
	"context"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"
)

// Identity is a caller with a verified Firebase ID token. Console access is decided later,
// against the stored profile.
type Identity struct {
	UID    string
	Email  string
	Claims map[string]any

	token *firebaseauth.Token
}

func newIdentity(token *firebaseauth.Token) *Identity {
	claims := token.Claims
	if claims == nil {
		claims = map[string]any{}
	}
	email, _ := claims["email"].(string)
	return &Identity{UID: token.UID, Email: strings.TrimSpace(email), Claims: claims, token: token}
}

// Token is the decoded ID token, nil for identities built in tests.
func (i *Identity) Token() *firebaseauth.Token {
	if i == nil {
		return nil
	}
	return i.token
}

func (i *Identity) ClaimAdmin() bool { return i != nil && ClaimAdmin(i.Claims) }

func (i *Identity) ClaimRole() string {
	if i == nil {
		return ""
	}
	return ClaimRole(i.Claims)
}

// ClaimAdmin is the boolean "admin" custom claim.
func ClaimAdmin(claims map[string]any) bool {
	admin, _ := claims["admin"].(bool)
	return admin
}

// ClaimRole is the "role" custom claim, lower-cased and trimmed.
func ClaimRole(claims map[string]any) string {
	role, _ := claims["role"].(string)
	return strings.ToLower(strings.TrimSpace(role))
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*Identity)
	return identity, ok && identity != nil
}
