package auth

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	jwt "github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

// ErrJWKSFetchFailed marks a key set that could not be loaded, as opposed to a token that
// does not verify.
var ErrJWKSFetchFailed = errors.New("auth: jwks fetch failed")

const (
	jwksRefreshInterval = time.Hour
	jwksRefreshLimit    = 5 * time.Minute
	jwksFetchTimeout    = 10 * time.Second
)

// JWKSCache resolves signing keys for scheduler tokens. The key set is fetched on first use and
// refreshed in the background; an unknown kid triggers an early, rate-limited refresh so rotated
// keys are picked up.
type JWKSCache struct {
	url    string
	client *http.Client
	logger *zap.Logger

	mu   sync.Mutex
	jwks *keyfunc.JWKS
}

type JWKSOption func(*JWKSCache)

func WithJWKSHTTPClient(client *http.Client) JWKSOption {
	return func(c *JWKSCache) {
		if client != nil {
			c.client = client
		}
	}
}

// WithJWKSLogger receives background refresh failures.
func WithJWKSLogger(logger *zap.Logger) JWKSOption {
	return func(c *JWKSCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewJWKSCache(url string, opts ...JWKSOption) *JWKSCache {
	c := &JWKSCache{url: url, client: &http.Client{Timeout: jwksFetchTimeout}, logger: zap.NewNop()}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Keyfunc satisfies jwt.Keyfunc.
func (c *JWKSCache) Keyfunc(token *jwt.Token) (any, error) {
	jwks, err := c.load()
	if err != nil {
		return nil, err
	}
	return jwks.Keyfunc(token)
}

// Close stops the background refresh.
func (c *JWKSCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.jwks != nil {
		c.jwks.EndBackground()
		c.jwks = nil
	}
}

// load fetches the key set once. A failed fetch is returned to the caller and retried on the
// next token.
func (c *JWKSCache) load() (*keyfunc.JWKS, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.jwks != nil {
		return c.jwks, nil
	}
	jwks, err := keyfunc.Get(c.url, keyfunc.Options{
		Client:            c.client,
		RefreshInterval:   jwksRefreshInterval,
		RefreshRateLimit:  jwksRefreshLimit,
		RefreshTimeout:    jwksFetchTimeout,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			c.logger.Warn("jwks refresh failed", zap.String("url", c.url), zap.Error(err))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJWKSFetchFailed, err)
	}
	c.jwks = jwks
	return jwks, nil
}
