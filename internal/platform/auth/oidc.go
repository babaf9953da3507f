package auth

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	jwt "github.com/golang-jwt/jwt/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// ServiceIdentity is the verified caller of an internal route.
type ServiceIdentity struct {
	Subject string
	Email   string
	Issuer  string
}

type serviceIdentityKey struct{}

func WithServiceIdentity(ctx context.Context, identity *ServiceIdentity) context.Context {
	return context.WithValue(ctx, serviceIdentityKey{}, identity)
}

func ServiceIdentityFromContext(ctx context.Context) (*ServiceIdentity, bool) {
	identity, ok := ctx.Value(serviceIdentityKey{}).(*ServiceIdentity)
	return identity, ok && identity != nil
}

type schedulerClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// rejection is why a token was refused; reason doubles as the metric attribute.
type rejection struct {
	status  int
	reason  string
	message string
}

// OIDCValidator admits requests carrying a Google-signed OIDC token, which is how Cloud Scheduler
// calls the repair endpoint.
type OIDCValidator struct {
	keys     *JWKSCache
	parser   *jwt.Parser
	logger   *zap.Logger
	outcomes metric.Int64Counter
}

type OIDCOption func(*OIDCValidator)

func WithOIDCLogger(logger *zap.Logger) OIDCOption {
	return func(v *OIDCValidator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

func NewOIDCValidator(keys *JWKSCache, opts ...OIDCOption) *OIDCValidator {
	v := &OIDCValidator{
		keys:   keys,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()})),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	if counter, err := otel.Meter("github.com/marketdesk/admin/internal/platform/auth").Int64Counter(
		"auth.oidc.verifications",
		metric.WithDescription("OIDC verification outcomes by reason"),
	); err == nil {
		v.outcomes = counter
	}
	return v
}

// RequireOIDC rejects requests whose bearer token is not signed by the key set, not addressed to
// audience, or (when issuers is non-empty) not issued by one of issuers. An empty audience
// rejects everything with 503.
func (v *OIDCValidator) RequireOIDC(audience string, issuers []string) func(http.Handler) http.Handler {
	audience = strings.TrimSpace(audience)
	allowed := make([]string, 0, len(issuers))
	for _, issuer := range issuers {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			allowed = append(allowed, issuer)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			identity, rej := v.verify(r, audience, allowed)
			if rej != nil {
				v.record(ctx, rej.reason)
				respondAuthError(ctx, w, rej.status, "invalid_token", rej.message)
				return
			}
			v.record(ctx, "ok")
			next.ServeHTTP(w, r.WithContext(WithServiceIdentity(ctx, identity)))
		})
	}
}

func (v *OIDCValidator) verify(r *http.Request, audience string, issuers []string) (*ServiceIdentity, *rejection) {
	if v == nil || v.keys == nil || audience == "" {
		return nil, &rejection{http.StatusServiceUnavailable, "unavailable", "oidc verification not configured"}
	}
	raw, ok := extractBearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, &rejection{http.StatusUnauthorized, "token_missing", "oidc token missing"}
	}

	var claims schedulerClaims
	if _, err := v.parser.ParseWithClaims(raw, &claims, v.keys.Keyfunc); err != nil {
		rej := &rejection{http.StatusUnauthorized, "token_invalid", "oidc token verification failed"}
		if errors.Is(err, ErrJWKSFetchFailed) {
			rej = &rejection{http.StatusServiceUnavailable, "jwks_unavailable", "oidc keys unavailable"}
		}
		v.logger.Warn("oidc verification failed", zap.String("reason", rej.reason), zap.Error(err))
		return nil, rej
	}
	if len(issuers) > 0 && !slices.Contains(issuers, claims.Issuer) {
		v.logger.Warn("oidc issuer mismatch", zap.String("issuer", claims.Issuer))
		return nil, &rejection{http.StatusUnauthorized, "issuer_mismatch", "oidc issuer mismatch"}
	}
	if !claims.VerifyAudience(audience, true) {
		return nil, &rejection{http.StatusUnauthorized, "audience_mismatch", "oidc audience mismatch"}
	}
	return &ServiceIdentity{Subject: claims.Subject, Email: claims.Email, Issuer: claims.Issuer}, nil
}

func (v *OIDCValidator) record(ctx context.Context, reason string) {
	if v == nil || v.outcomes == nil {
		return
	}
	v.outcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}
