package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document is a decoded snapshot with its id and server timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// Collection binds a document struct to one collection. Every error it returns is classified
// through WrapError with an op of the form "<collection>.<action>".
type Collection[T any] struct {
	provider *Provider
	name     string
}

// NewCollection returns a typed handle on the named collection.
func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Ref resolves the document reference for id.
func (c *Collection[T]) Ref(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.op("ref"), errors.New("document id is required"))
	}
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

// Get reads and decodes one document.
func (c *Collection[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(c.op("get"), err)
	}
	return decode[T](snap)
}

// GetTx reads and decodes one document inside tx.
func (c *Collection[T]) GetTx(tx *firestore.Transaction, ref *firestore.DocumentRef) (Document[T], error) {
	snap, err := tx.Get(ref)
	if err != nil {
		return Document[T]{}, WrapError(c.op("tx.get"), err)
	}
	return decode[T](snap)
}

// Create writes a new document; an existing id is a conflict.
func (c *Collection[T]) Create(ctx context.Context, id string, data T) error {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, data); err != nil {
		return WrapError(c.op("create"), err)
	}
	return nil
}

// Patch applies field updates to an existing document; a missing one is not found.
func (c *Collection[T]) Patch(ctx context.Context, id string, updates []firestore.Update) error {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Update(ctx, updates, firestore.Exists); err != nil {
		return WrapError(c.op("patch"), err)
	}
	return nil
}

// Remove deletes an existing document; a missing one is not found.
func (c *Collection[T]) Remove(ctx context.Context, id string) error {
	ref, err := c.Ref(ctx, id)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx, firestore.Exists); err != nil {
		return WrapError(c.op("remove"), err)
	}
	return nil
}

// Query runs the query built by shape and decodes every result in order.
func (c *Collection[T]) Query(ctx context.Context, shape func(firestore.Query) firestore.Query) ([]Document[T], error) {
	coll, err := c.collection(ctx)
	if err != nil {
		return nil, err
	}
	q := coll.Query
	if shape != nil {
		q = shape(q)
	}
	iter := q.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, WrapError(c.op("query"), err)
		}
		doc, err := decode[T](snap)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
}

func (c *Collection[T]) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	if c == nil || c.provider == nil {
		return nil, WrapError(c.op("collection"), errors.New("provider is nil"))
	}
	if c.name == "" {
		return nil, WrapError(c.op("collection"), errors.New("collection name is required"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name), nil
}

func (c *Collection[T]) op(action string) string {
	if c == nil || c.name == "" {
		return "firestore." + action
	}
	return c.name + "." + action
}

func decode[T any](snap *firestore.DocumentSnapshot) (Document[T], error) {
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode %s: %w", snap.Ref.Path, err)
	}
	return Document[T]{ID: snap.Ref.ID, Data: data, CreateTime: snap.CreateTime, UpdateTime: snap.UpdateTime}, nil
}
