package auth

import (
	"context"
	"net/http"
	"strings"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/marketdesk/admin/internal/platform/httpx"
)

// TokenVerifier verifies Firebase ID tokens.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error)
}

// Authenticator turns a bearer ID token into an Identity on the request context.
type Authenticator struct {
	verifier TokenVerifier
}

func NewAuthenticator(verifier TokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// RequireFirebaseAuth answers 401 for a missing, expired, revoked or invalid token.
func (a *Authenticator) RequireFirebaseAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw, ok := extractBearerToken(r.Header.Get("Authorization"))
			switch {
			case !ok:
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization header missing or invalid")
				return
			case a == nil || a.verifier == nil:
				respondAuthError(ctx, w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			token, err := a.verifier.VerifyIDToken(ctx, raw)
			if err != nil {
				code, message := verificationFailure(err)
				respondAuthError(ctx, w, http.StatusUnauthorized, code, message)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(ctx, newIdentity(token))))
		})
	}
}

func verificationFailure(err error) (code, message string) {
	switch {
	case firebaseauth.IsIDTokenExpired(err):
		return "token_expired", "firebase id token expired"
	case firebaseauth.IsIDTokenRevoked(err), firebaseauth.IsUserDisabled(err):
		return "token_revoked", "firebase session revoked; sign in again"
	case firebaseauth.IsIDTokenInvalid(err):
		return "invalid_token", "firebase id token invalid"
	}
	return "invalid_token", "firebase id token verification failed"
}

// extractBearerToken accepts the scheme in any case.
func extractBearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func respondAuthError(ctx context.Context, w http.ResponseWriter, status int, code, message string) {
	httpx.WriteError(ctx, w, httpx.NewError(code, message, status))
}
