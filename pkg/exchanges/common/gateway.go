package common

import (
	"context"

	"github.com/shopspring/decimal"
)

// Gateway abstracts a trading venue.
type Gateway interface {
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	SubmitOCO(ctx context.Context, req OCORequest) (OCOResult, error)
	CancelOrder(ctx context.Context, symbol, clientOrderID string) error
	CancelOCO(ctx context.Context, symbol, listID string) error
	ExchangeInfo(ctx context.Context) (*ExchangeRules, error)
	Prices(ctx context.Context) (map[string]decimal.Decimal, error)
}
