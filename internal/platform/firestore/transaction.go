package firestore

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
)

const (
	txMaxAttempts = 5
	txBudget      = 15 * time.Second
)

// TxFunc runs inside a transaction and may be retried on contention, so it must not have side
// effects outside tx.
type TxFunc func(ctx context.Context, tx *firestore.Transaction) error

// RunTransaction runs fn in a read-write transaction capped at txBudget. An error returned by fn
// reaches the caller unchanged; commit and contention failures are classified through WrapError.
func (p *Provider) RunTransaction(ctx context.Context, fn TxFunc) error {
	if fn == nil {
		return WrapError("transaction", errors.New("transaction function is nil"))
	}
	client, err := p.Client(ctx)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); !ok || time.Until(deadline) > txBudget {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, txBudget)
		defer cancel()
	}

	var last error
	err = client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		last = fn(ctx, tx)
		return last
	}, firestore.MaxAttempts(txMaxAttempts))
	if err != nil && last != nil && errors.Is(err, last) {
		return err
	}
	return WrapError("transaction", err)
}
