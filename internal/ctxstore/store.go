// Package ctxstore persists the mapping from a client order id to the
// trade context that created it, so execution reports arriving on the
// user stream can be attributed after the fact.
package ctxstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"trading-engine/pkg/db"
)

// ErrNotFound is returned when no context exists for an order id. The
// tracker treats this as a warning, not a failure: manual orders and
// orders placed before this store existed have no context.
var ErrNotFound = db.ErrNotFound

// SchemaVersion is stamped on every context written by this build.
const SchemaVersion = 1

// OrderContext ties an order back to the trade and edge that created it.
// Written once before submission, never mutated.
type OrderContext struct {
	TradeID string
	Edge    string
	Version int
}

// Store is a durable order-id -> OrderContext mapping over sqlite.
type Store struct {
	db *db.Database
}

// New creates a Store over an opened database.
func New(database *db.Database) *Store {
	return &Store{db: database}
}

// Set persists ctx under orderID. Must complete before the order is
// submitted: the user stream can race ahead of the submit call returning.
func (s *Store) Set(ctx context.Context, orderID string, oc OrderContext) error {
	if orderID == "" {
		return errors.New("ctxstore: empty order id")
	}
	if oc.Version == 0 {
		oc.Version = SchemaVersion
	}
	_, err := s.db.DB.ExecContext(ctx, `
		INSERT INTO order_contexts (order_id, trade_id, edge, version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(order_id) DO UPDATE SET
			trade_id = excluded.trade_id,
			edge = excluded.edge,
			version = excluded.version
	`, orderID, oc.TradeID, oc.Edge, oc.Version)
	if err != nil {
		return fmt.Errorf("ctxstore: set %s: %w", orderID, err)
	}
	return nil
}

// Get returns the context for orderID, or ErrNotFound.
func (s *Store) Get(ctx context.Context, orderID string) (OrderContext, error) {
	var oc OrderContext
	err := s.db.DB.QueryRowContext(ctx, `
		SELECT trade_id, edge, version FROM order_contexts WHERE order_id = ?
	`, orderID).Scan(&oc.TradeID, &oc.Edge, &oc.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return OrderContext{}, ErrNotFound
	}
	if err != nil {
		return OrderContext{}, fmt.Errorf("ctxstore: get %s: %w", orderID, err)
	}
	return oc, nil
}

// PruneBefore deletes contexts created before cutoff. Orders live minutes
// to days; callers should pass a conservative multiple of that.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.DB.ExecContext(ctx, `
		DELETE FROM order_contexts WHERE created_at < ?
	`, cutoff.UTC().Format("2006-01-02 15:04:05"))
	if err != nil {
		return 0, fmt.Errorf("ctxstore: prune: %w", err)
	}
	return res.RowsAffected()
}
