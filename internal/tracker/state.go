package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"trading-engine/pkg/db"
	"trading-engine/pkg/exchanges/common"
)

// OrderState is the authoritative local view of one order, derived from
// the venue's cumulative execution totals.
type OrderState struct {
	OrderID       string
	Symbol        string
	Side          common.Side
	Type          common.OrderType
	Status        common.OrderStatus
	ExecutedBase  decimal.Decimal
	ExecutedQuote decimal.Decimal
	Cancelled     bool
}

// AvgPrice is the volume-weighted execution price, zero before any fill.
func (s *OrderState) AvgPrice() decimal.Decimal {
	if s.ExecutedBase.IsZero() {
		return decimal.Zero
	}
	return s.ExecutedQuote.Div(s.ExecutedBase)
}

// StateStore persists order states keyed by client order id.
type StateStore struct {
	db *db.Database
}

// NewStateStore creates a StateStore over an opened database.
func NewStateStore(database *db.Database) *StateStore {
	return &StateStore{db: database}
}

// Get loads the state for orderID, or db.ErrNotFound.
func (s *StateStore) Get(ctx context.Context, orderID string) (OrderState, error) {
	var (
		st           OrderState
		base, quote  string
		cancelledInt int
	)
	err := s.db.DB.QueryRowContext(ctx, `
		SELECT order_id, symbol, side, order_type, status, executed_base, executed_quote, cancelled
		FROM order_states WHERE order_id = ?
	`, orderID).Scan(&st.OrderID, &st.Symbol, &st.Side, &st.Type, &st.Status, &base, &quote, &cancelledInt)
	if errors.Is(err, sql.ErrNoRows) {
		return OrderState{}, db.ErrNotFound
	}
	if err != nil {
		return OrderState{}, fmt.Errorf("tracker: get state %s: %w", orderID, err)
	}

	if st.ExecutedBase, err = decimal.NewFromString(base); err != nil {
		return OrderState{}, fmt.Errorf("tracker: state %s executed_base %q: %w", orderID, base, err)
	}
	if st.ExecutedQuote, err = decimal.NewFromString(quote); err != nil {
		return OrderState{}, fmt.Errorf("tracker: state %s executed_quote %q: %w", orderID, quote, err)
	}
	st.Cancelled = cancelledInt != 0
	return st, nil
}

// Put writes the state, replacing any previous row for the same order.
// Last writer wins per key; orders are independent units.
func (s *StateStore) Put(ctx context.Context, st OrderState) error {
	cancelled := 0
	if st.Cancelled {
		cancelled = 1
	}
	_, err := s.db.DB.ExecContext(ctx, `
		INSERT INTO order_states (order_id, symbol, side, order_type, status, executed_base, executed_quote, cancelled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(order_id) DO UPDATE SET
			symbol = excluded.symbol,
			side = excluded.side,
			order_type = excluded.order_type,
			status = excluded.status,
			executed_base = excluded.executed_base,
			executed_quote = excluded.executed_quote,
			cancelled = excluded.cancelled,
			updated_at = CURRENT_TIMESTAMP
	`, st.OrderID, st.Symbol, string(st.Side), string(st.Type), string(st.Status),
		st.ExecutedBase.String(), st.ExecutedQuote.String(), cancelled)
	if err != nil {
		return fmt.Errorf("tracker: put state %s: %w", st.OrderID, err)
	}
	return nil
}
