package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"trading-engine/internal/sizing"
	"trading-engine/pkg/db"
)

// PositionStore persists open positions so close commands and process
// restarts know the tracked size and live protective orders.
type PositionStore struct {
	db *db.Database
}

// NewPositionStore creates a PositionStore over an opened database.
func NewPositionStore(database *db.Database) *PositionStore {
	return &PositionStore{db: database}
}

// Get loads the position for symbol, or db.ErrNotFound.
func (s *PositionStore) Get(ctx context.Context, symbol string) (Position, error) {
	var (
		p   Position
		qty string
	)
	err := s.db.DB.QueryRowContext(ctx, `
		SELECT symbol, edge, direction, base_qty, take_profit_order_id, stop_order_id, oco_list_id
		FROM positions WHERE symbol = ?
	`, symbol).Scan(&p.Symbol, &p.Edge, (*string)(&p.Direction), &qty,
		&p.Exits.TakeProfitID, &p.Exits.StopID, &p.Exits.ListID)
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, db.ErrNotFound
	}
	if err != nil {
		return Position{}, fmt.Errorf("engine: get position %s: %w", symbol, err)
	}
	if p.BaseQty, err = decimal.NewFromString(qty); err != nil {
		return Position{}, fmt.Errorf("engine: position %s base_qty %q: %w", symbol, qty, err)
	}
	return p, nil
}

// Put writes the position, replacing any previous row for the symbol.
func (s *PositionStore) Put(ctx context.Context, p Position) error {
	_, err := s.db.DB.ExecContext(ctx, `
		INSERT INTO positions (symbol, edge, direction, base_qty, take_profit_order_id, stop_order_id, oco_list_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(symbol) DO UPDATE SET
			edge = excluded.edge,
			direction = excluded.direction,
			base_qty = excluded.base_qty,
			take_profit_order_id = excluded.take_profit_order_id,
			stop_order_id = excluded.stop_order_id,
			oco_list_id = excluded.oco_list_id,
			updated_at = CURRENT_TIMESTAMP
	`, p.Symbol, p.Edge, string(p.Direction), p.BaseQty.String(),
		p.Exits.TakeProfitID, p.Exits.StopID, p.Exits.ListID)
	if err != nil {
		return fmt.Errorf("engine: put position %s: %w", p.Symbol, err)
	}
	return nil
}

// Delete removes the position for symbol. Deleting a missing position is
// not an error.
func (s *PositionStore) Delete(ctx context.Context, symbol string) error {
	_, err := s.db.DB.ExecContext(ctx, `DELETE FROM positions WHERE symbol = ?`, symbol)
	if err != nil {
		return fmt.Errorf("engine: delete position %s: %w", symbol, err)
	}
	return nil
}

// List returns all open positions.
func (s *PositionStore) List(ctx context.Context) ([]Position, error) {
	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT symbol, edge, direction, base_qty, take_profit_order_id, stop_order_id, oco_list_id
		FROM positions ORDER BY symbol
	`)
	if err != nil {
		return nil, fmt.Errorf("engine: list positions: %w", err)
	}
	defer rows.Close()

	var positions []Position
	for rows.Next() {
		var (
			p         Position
			qty       string
			direction string
		)
		if err := rows.Scan(&p.Symbol, &p.Edge, &direction, &qty,
			&p.Exits.TakeProfitID, &p.Exits.StopID, &p.Exits.ListID); err != nil {
			return nil, fmt.Errorf("engine: scan position: %w", err)
		}
		p.Direction = sizing.Direction(direction)
		if p.BaseQty, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("engine: position %s base_qty %q: %w", p.Symbol, qty, err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}
