package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/marketdesk/admin/internal/platform/config"
	"google.golang.org/api/option"
)

const defaultAdminSDKTimeout = 5 * time.Second

var errServiceNotInitialised = errors.New("auth: firebase token service not initialised")

// NewFirebaseApp initialises the Admin SDK app shared by the auth and realtime database clients.
func NewFirebaseApp(ctx context.Context, cfg config.FirebaseConfig) (*firebase.App, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{
		ProjectID:   cfg.ProjectID,
		DatabaseURL: cfg.DatabaseURL,
	}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}
	return app, nil
}

// FirebaseTokenService bounds every Admin SDK auth call with a timeout.
type FirebaseTokenService struct {
	client  *firebaseauth.Client
	timeout time.Duration
}

// FirebaseOption customises FirebaseTokenService instances.
type FirebaseOption func(*FirebaseTokenService)

// WithFirebaseTimeout overrides the timeout used for Admin SDK calls.
func WithFirebaseTimeout(d time.Duration) FirebaseOption {
	return func(s *FirebaseTokenService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewFirebaseTokenService builds the service from an initialised app.
func NewFirebaseTokenService(ctx context.Context, app *firebase.App, opts ...FirebaseOption) (*FirebaseTokenService, error) {
	if app == nil {
		return nil, errors.New("firebase app is required")
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}
	svc := &FirebaseTokenService{client: client, timeout: defaultAdminSDKTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// VerifyIDToken checks the signature, expiry and revocation state of an ID token.
func (s *FirebaseTokenService) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if s == nil || s.client == nil {
		return nil, errServiceNotInitialised
	}
	ctx, cancel := s.contextWithTimeout(ctx)
	defer cancel()
	return s.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
}

// CurrentClaims returns the custom claims stored on the account right now, which may be
// newer than the claims embedded in a token minted earlier.
func (s *FirebaseTokenService) CurrentClaims(ctx context.Context, uid string) (map[string]any, error) {
	if s == nil || s.client == nil {
		return nil, errServiceNotInitialised
	}
	ctx, cancel := s.contextWithTimeout(ctx)
	defer cancel()
	record, err := s.client.GetUser(ctx, uid)
	if err != nil {
		return nil, err
	}
	if record.CustomClaims == nil {
		return map[string]any{}, nil
	}
	return record.CustomClaims, nil
}

// SetCustomClaims replaces the account's custom claims.
func (s *FirebaseTokenService) SetCustomClaims(ctx context.Context, uid string, claims map[string]any) error {
	if s == nil || s.client == nil {
		return errServiceNotInitialised
	}
	ctx, cancel := s.contextWithTimeout(ctx)
	defer cancel()
	return s.client.SetCustomUserClaims(ctx, uid, claims)
}

// RevokeSessions invalidates every refresh token issued to uid.
func (s *FirebaseTokenService) RevokeSessions(ctx context.Context, uid string) error {
	if s == nil || s.client == nil {
		return errServiceNotInitialised
	}
	ctx, cancel := s.contextWithTimeout(ctx)
	defer cancel()
	return s.client.RevokeRefreshTokens(ctx, uid)
}

func (s *FirebaseTokenService) contextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
