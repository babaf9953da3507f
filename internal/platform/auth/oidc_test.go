package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	jwt "github.com/golang-jwt/jwt/v4"
)

type oidcFixture struct {
	key      *rsa.PrivateKey
	requests *atomic.Int32
	server   *httptest.Server
}

func newOIDCFixture(t *testing.T) oidcFixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	jwk := jose.JSONWebKey{Key: &key.PublicKey, KeyID: "scheduler-1", Algorithm: "RS256", Use: "sig"}

	requests := &atomic.Int32{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{jwk}})
	}))
	t.Cleanup(server.Close)
	return oidcFixture{key: key, requests: requests, server: server}
}

func (f oidcFixture) sign(t *testing.T, mutate func(jwt.MapClaims)) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss":   "https://accounts.google.com",
		"aud":   "https://admin.example.com",
		"sub":   "1234",
		"email": "scheduler@shop-prod.iam.gserviceaccount.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Add(-time.Minute).Unix(),
	}
	if mutate != nil {
		mutate(claims)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = "scheduler-1"
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func serveWith(mw func(http.Handler) http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/orders:repair", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})).ServeHTTP(rec, req)
	return rec
}

func TestJWKSCacheFetchesOnce(t *testing.T) {
	f := newOIDCFixture(t)
	cache := NewJWKSCache(f.server.URL)
	t.Cleanup(cache.Close)
	mw := NewOIDCValidator(cache).RequireOIDC("https://admin.example.com", nil)

	for i := 0; i < 3; i++ {
		if rec := serveWith(mw, "Bearer "+f.sign(t, nil)); rec.Code != http.StatusNoContent {
			t.Fatalf("call %d: expected 204, got %d", i, rec.Code)
		}
	}
	if got := f.requests.Load(); got != 1 {
		t.Fatalf("expected one fetch, got %d", got)
	}
}

func TestJWKSCacheUnknownKid(t *testing.T) {
	f := newOIDCFixture(t)
	cache := NewJWKSCache(f.server.URL)
	t.Cleanup(cache.Close)
	mw := NewOIDCValidator(cache).RequireOIDC("https://admin.example.com", nil)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"aud": "https://admin.example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = "rotated-away"
	signed, err := token.SignedString(f.key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if rec := serveWith(mw, "Bearer "+signed); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestRequireOIDCWithUnreachableKeysIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	f := newOIDCFixture(t)
	cache := NewJWKSCache(url)
	t.Cleanup(cache.Close)
	mw := NewOIDCValidator(cache).RequireOIDC("https://admin.example.com", nil)
	if rec := serveWith(mw, "Bearer "+f.sign(t, nil)); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRequireOIDC(t *testing.T) {
	f := newOIDCFixture(t)
	cache := NewJWKSCache(f.server.URL)
	t.Cleanup(cache.Close)
	mw := NewOIDCValidator(cache).RequireOIDC("https://admin.example.com", []string{"https://accounts.google.com"})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid", header: "Bearer " + f.sign(t, nil), want: http.StatusNoContent},
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "wrong audience", header: "Bearer " + f.sign(t, func(c jwt.MapClaims) { c["aud"] = "https://other" }), want: http.StatusUnauthorized},
		{name: "wrong issuer", header: "Bearer " + f.sign(t, func(c jwt.MapClaims) { c["iss"] = "https://evil.example" }), want: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + f.sign(t, func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }), want: http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/internal/orders:repair", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				identity, ok := ServiceIdentityFromContext(r.Context())
				if !ok || identity.Email == "" {
					t.Fatalf("expected service identity")
				}
				w.WriteHeader(http.StatusNoContent)
			})).ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d (%s)", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestRequireOIDCWithoutAudienceIsUnavailable(t *testing.T) {
	validator := NewOIDCValidator(NewJWKSCache("http://127.0.0.1:0"))
	rec := httptest.NewRecorder()
	validator.RequireOIDC("", nil)(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
