package common

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side denotes order side.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the closing side for a position opened with s.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType denotes the order types this engine submits.
type OrderType string

const (
	OrderTypeMarket           OrderType = "MARKET"
	OrderTypeLimit            OrderType = "LIMIT"
	OrderTypeStopLossLimit    OrderType = "STOP_LOSS_LIMIT"
	OrderTypeStopMarket       OrderType = "STOP_MARKET"
	OrderTypeTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// TimeInForce captures TIF semantics.
type TimeInForce string

const (
	TIFGTC TimeInForce = "GTC" // Good Till Cancelled
	TIFIOC TimeInForce = "IOC" // Immediate Or Cancel
	TIFFOK TimeInForce = "FOK" // Fill Or Kill
)

// OrderStatus normalizes exchange status into a small set.
type OrderStatus string

const (
	StatusNew      OrderStatus = "NEW"
	StatusPartial  OrderStatus = "PARTIALLY_FILLED"
	StatusFilled   OrderStatus = "FILLED"
	StatusCanceled OrderStatus = "CANCELED"
	StatusRejected OrderStatus = "REJECTED"
	StatusExpired  OrderStatus = "EXPIRED"
	StatusUnknown  OrderStatus = "UNKNOWN"
)

// Terminal reports whether no further execution reports are expected.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// OrderRequest captures an order intent to be sent to an exchange.
// All prices and quantities are decimal; a zero Price on a market order
// means "no price", never a literal zero quote.
type OrderRequest struct {
	Symbol      string
	Side        Side
	Type        OrderType
	Qty         decimal.Decimal
	Price       decimal.Decimal // required for LIMIT
	StopPrice   decimal.Decimal // required for stop / take-profit types
	TimeInForce TimeInForce
	ClientID    string // client order id, correlation key
	ReduceOnly  bool   // close-only protective orders
}

// OrderResult returns the exchange ack, including immediate execution
// information for orders that fill synchronously (FOK/market).
type OrderResult struct {
	ExchangeOrderID string
	ClientID        string
	Status          OrderStatus
	ExecutedQty     decimal.Decimal
	CumQuoteQty     decimal.Decimal
}

// OCORequest asks the venue for a native one-cancels-the-other pair.
type OCORequest struct {
	Symbol          string
	Side            Side
	Qty             decimal.Decimal
	TakeProfitPrice decimal.Decimal // limit leg
	StopPrice       decimal.Decimal // stop trigger
	StopLimitPrice  decimal.Decimal // stop limit leg price
	TakeProfitID    string          // client order id for the limit leg
	StopID          string          // client order id for the stop leg
}

// OCOResult is the ack for an OCO construction.
type OCOResult struct {
	ListID       string
	TakeProfitID string
	StopID       string
}

// SymbolRules holds the numeric constraints one symbol's orders must obey.
type SymbolRules struct {
	Symbol      string
	TickSize    decimal.Decimal
	MinPrice    decimal.Decimal
	StepSize    decimal.Decimal
	MinQty      decimal.Decimal
	MinNotional decimal.Decimal
}

// ExchangeRules is the full per-symbol rule set returned by the venue's
// exchange-info endpoint.
type ExchangeRules struct {
	Symbols   map[string]SymbolRules
	FetchedAt time.Time
}

// Rules returns the rule set for one symbol.
func (r *ExchangeRules) Rules(symbol string) (SymbolRules, bool) {
	s, ok := r.Symbols[symbol]
	return s, ok
}
