package events

import (
	"time"

	"github.com/shopspring/decimal"

	"trading-engine/pkg/exchanges/common"
)

// Event enumerates order state transitions published by the tracker.
// Consumers subscribe to the transitions they care about; an absent
// subscriber is a no-op by construction.
type Event string

const (
	EventOrderCreated         Event = "order.created"
	EventOrderFilled          Event = "order.filled"
	EventOrderPartiallyFilled Event = "order.filled_or_partially_filled"
	EventOrderCancelled       Event = "order.cancelled"
	EventOrderExpired         Event = "order.expired"
)

// ExecutionReport is a decoded user-stream execution report. Quantities
// are the venue's cumulative totals, which makes replays idempotent.
type ExecutionReport struct {
	Symbol        string
	Side          common.Side
	OrderType     common.OrderType
	Status        common.OrderStatus
	ClientOrderID string
	ExchangeID    int64
	Price         decimal.Decimal
	LastQty       decimal.Decimal
	LastPrice     decimal.Decimal
	CumBase       decimal.Decimal
	CumQuote      decimal.Decimal
	TradeTime     time.Time
}

// OrderEvent is the payload for every order transition. Edge and TradeID
// are empty when attribution failed (no stored context for the order).
type OrderEvent struct {
	Report  ExecutionReport
	Edge    string
	TradeID string

	// Authoritative post-transition totals.
	ExecutedBase  decimal.Decimal
	ExecutedQuote decimal.Decimal
	AvgPrice      decimal.Decimal
	Cancelled     bool
}
