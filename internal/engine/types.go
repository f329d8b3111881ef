package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"trading-engine/internal/sizing"
)

// Action is what the intent asks the engine to do.
type Action string

const (
	ActionOpen  Action = "open"
	ActionClose Action = "close"
)

// TradeIntent is the immutable input produced by an external signal
// source.
type TradeIntent struct {
	Edge         string
	Base         string
	Quote        string
	Direction    sizing.Direction
	Action       Action
	TriggerPrice decimal.Decimal // optional; zero means "use market price"
	SignalTime   time.Time
}

// Symbol resolves the exchange symbol for the intent's market.
func (i TradeIntent) Symbol() string {
	return i.Base + i.Quote
}

// Status is the engine's result taxonomy.
type Status string

const (
	StatusSuccess             Status = "SUCCESS"
	StatusEntryFailedToFill   Status = "ENTRY_FAILED_TO_FILL"
	StatusAlreadyInPosition   Status = "ALREADY_IN_POSITION"
	StatusUnauthorised        Status = "UNAUTHORISED"
	StatusAssetProhibited     Status = "TRADING_IN_ASSET_PROHIBITED"
	StatusInsufficientBalance Status = "INSUFFICIENT_BALANCE"
	StatusAbortedFailedExits  Status = "ABORTED_FAILED_TO_CREATE_EXIT_ORDERS"
	StatusTooManyRequests     Status = "TOO_MANY_REQUESTS"
	StatusBadInputs           Status = "BAD_INPUTS"
	StatusInternalServerError Status = "INTERNAL_SERVER_ERROR"
)

// ExitOrders identifies the live protective construction for a position.
// ListID is set only when the venue gave us a native OCO.
type ExitOrders struct {
	TakeProfitID string
	StopID       string
	ListID       string
}

// Result is returned for every command. It always carries enough of the
// original intent for correlation, even on failure.
type Result struct {
	Status     Status
	Edge       string
	Base       string
	Quote      string
	TradeID    string
	Executed   decimal.Decimal // base quantity filled
	AvgPrice   decimal.Decimal
	Exits      ExitOrders
	RetryAfter time.Duration // set with StatusTooManyRequests
	Err        error         // retained for diagnostics
}

func (i TradeIntent) result(s Status) Result {
	return Result{Status: s, Edge: i.Edge, Base: i.Base, Quote: i.Quote}
}

// Position is the engine's tracked open position per symbol.
type Position struct {
	Symbol    string
	Edge      string
	Direction sizing.Direction
	BaseQty   decimal.Decimal
	Exits     ExitOrders
}
