// Package idempotency replays the stored outcome of an admin mutation when the console retries it
// with the same Idempotency-Key, so a double-clicked "mark paid" is applied and audited once.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultTTL bounds how long a completed mutation can be replayed.
const DefaultTTL = 24 * time.Hour

// ClaimState is the outcome of claiming a key.
type ClaimState int

const (
	// ClaimAcquired means the caller owns the key and must run the mutation.
	ClaimAcquired ClaimState = iota
	// ClaimReplay means a successful response is stored and should be written back.
	ClaimReplay
	// ClaimInFlight means another request holds the key and has not finished.
	ClaimInFlight
)

// Claim is returned by Store.Claim.
type Claim struct {
	State ClaimState
	Entry Entry
}

// Entry is one stored key.
type Entry struct {
	Key         string
	Fingerprint string
	Completed   bool
	Status      int
	Header      map[string][]string
	Body        []byte
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Response is the captured outcome of a successful mutation.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Store persists claims and completed responses.
type Store interface {
	Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error)
	Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	Purge(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrKeyReused is returned when a key is presented with a different request.
var ErrKeyReused = errors.New("idempotency: key already used for a different request")

func documentID(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// replayableHeaders drops hop-by-hop and per-response headers before storage.
func replayableHeaders(header http.Header) map[string][]string {
	out := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		switch canonical {
		case "Content-Length", "Date", "Connection", "Keep-Alive", "Transfer-Encoding", "Upgrade", "X-Request-Id":
			continue
		}
		out[canonical] = append([]string(nil), values...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
