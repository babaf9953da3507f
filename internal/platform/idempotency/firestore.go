package idempotency

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/marketdesk/admin/internal/platform/firestore"
)

const defaultCollection = "adminIdempotencyKeys"

// FirestoreStore shares keys across instances through a Firestore collection.
type FirestoreStore struct {
	provider *pfirestore.Provider
	keys     *pfirestore.Collection[keyDocument]
}

// NewFirestoreStore builds a store on the shared provider. An empty collection uses the default.
func NewFirestoreStore(provider *pfirestore.Provider, collection string) (*FirestoreStore, error) {
	if provider == nil {
		return nil, errors.New("idempotency: firestore provider is required")
	}
	if collection == "" {
		collection = defaultCollection
	}
	return &FirestoreStore{provider: provider, keys: pfirestore.NewCollection[keyDocument](provider, collection)}, nil
}

func (s *FirestoreStore) Claim(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Claim, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	ref, err := s.keys.Ref(ctx, documentID(key))
	if err != nil {
		return Claim{}, err
	}

	var claim Claim
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		fresh := keyDocument{Key: key, Fingerprint: fingerprint, CreatedAt: now, ExpiresAt: now.Add(ttl)}
		stored, err := s.keys.GetTx(tx, ref)
		if pfirestore.IsNotFound(err) {
			claim = Claim{State: ClaimAcquired, Entry: fresh.entry()}
			return tx.Set(ref, fresh)
		}
		if err != nil {
			return err
		}
		doc := stored.Data
		entry := doc.entry()
		if entry.expired(now) {
			claim = Claim{State: ClaimAcquired, Entry: fresh.entry()}
			return tx.Set(ref, fresh)
		}
		if doc.Fingerprint != fingerprint {
			return ErrKeyReused
		}
		if doc.Completed {
			claim = Claim{State: ClaimReplay, Entry: entry}
		} else {
			claim = Claim{State: ClaimInFlight, Entry: entry}
		}
		return nil
	})
	return claim, err
}

func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()
	ref, err := s.keys.Ref(ctx, documentID(key))
	if err != nil {
		return err
	}
	return s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc := keyDocument{Key: key, Fingerprint: fingerprint, CreatedAt: now}
		stored, err := s.keys.GetTx(tx, ref)
		switch {
		case pfirestore.IsNotFound(err):
		case err != nil:
			return err
		case stored.Data.Fingerprint != fingerprint:
			return ErrKeyReused
		default:
			doc = stored.Data
		}
		doc.Completed = true
		doc.Status = resp.Status
		doc.Header = replayableHeaders(resp.Header)
		doc.Body = append([]byte(nil), resp.Body...)
		doc.ExpiresAt = now.Add(ttl)
		return tx.Set(ref, doc)
	})
}

func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	if err := s.keys.Remove(ctx, documentID(key)); err != nil && !pfirestore.IsNotFound(err) {
		return err
	}
	return nil
}

// Purge deletes up to limit expired keys in one batch.
func (s *FirestoreStore) Purge(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	expired, err := s.keys.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("expiresAt", "<=", now.UTC()).Limit(limit)
	})
	if err != nil || len(expired) == 0 {
		return 0, err
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}
	batch := client.Batch()
	for _, doc := range expired {
		ref, err := s.keys.Ref(ctx, doc.ID)
		if err != nil {
			return 0, err
		}
		batch.Delete(ref)
	}
	if _, err := batch.Commit(ctx); err != nil {
		return 0, pfirestore.WrapError("idempotency.purge", err)
	}
	return len(expired), nil
}

type keyDocument struct {
	Key         string              `firestore:"key"`
	Fingerprint string              `firestore:"fingerprint"`
	Completed   bool                `firestore:"completed"`
	Status      int                 `firestore:"status"`
	Header      map[string][]string `firestore:"header"`
	Body        []byte              `firestore:"body"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func (d keyDocument) entry() Entry {
	return Entry{
		Key:         d.Key,
		Fingerprint: d.Fingerprint,
		Completed:   d.Completed,
		Status:      d.Status,
		Header:      d.Header,
		Body:        d.Body,
		CreatedAt:   d.CreatedAt,
		ExpiresAt:   d.ExpiresAt,
	}
}
