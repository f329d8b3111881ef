// Package tracker consumes the venue's private execution-report stream
// and turns it into persisted order state plus typed events on the bus.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"trading-engine/internal/ctxstore"
	"trading-engine/internal/events"
	"trading-engine/pkg/db"
	"trading-engine/pkg/exchanges/common"
)

// ErrUnexpectedOrderStatus flags a status value outside the local model.
// It is surfaced loudly rather than swallowed: the gap must be visible.
var ErrUnexpectedOrderStatus = errors.New("unexpected order status")

// Tracker applies execution reports to persisted order state and
// publishes one event per state transition.
type Tracker struct {
	contexts *ctxstore.Store
	states   *StateStore
	bus      *events.Bus
	logger   *zap.Logger
}

// New creates a Tracker.
func New(contexts *ctxstore.Store, states *StateStore, bus *events.Bus, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{contexts: contexts, states: states, bus: bus, logger: logger}
}

// ProcessMessage routes one raw stream message. Failures handling a
// message are logged and absorbed so the subscription keeps consuming.
func (t *Tracker) ProcessMessage(ctx context.Context, msg []byte) {
	var probe struct {
		EventType string `json:"e"`
		// EventTime must be declared so the venue's "E" key binds here
		// exactly; otherwise encoding/json's case-insensitive fallback
		// matches it to "e" and the unmarshal fails on the number.
		EventTime int64 `json:"E"`
	}
	if err := json.Unmarshal(msg, &probe); err != nil {
		t.logger.Warn("stream message parse error", zap.Error(err))
		return
	}

	switch probe.EventType {
	case "executionReport":
		rep, err := decodeExecutionReport(msg)
		if err != nil {
			t.logger.Error("execution report decode failed", zap.Error(err))
			return
		}
		if err := t.HandleReport(ctx, rep); err != nil {
			t.logger.Error("execution report handling failed",
				zap.String("order_id", rep.ClientOrderID),
				zap.String("symbol", rep.Symbol),
				zap.String("status", string(rep.Status)),
				zap.Error(err))
		}
	default:
		// balance and account events are not ours to handle
	}
}

// HandleReport applies one decoded report: resolve context, update the
// persisted state from the venue's cumulative totals, publish events.
// Duplicate or replayed reports converge to the same state because the
// totals are authoritative, not counted locally.
func (t *Tracker) HandleReport(ctx context.Context, rep events.ExecutionReport) error {
	edge, tradeID := t.resolveContext(ctx, rep)

	state, err := t.states.Get(ctx, rep.ClientOrderID)
	if errors.Is(err, db.ErrNotFound) {
		state = OrderState{
			OrderID: rep.ClientOrderID,
			Symbol:  rep.Symbol,
			Side:    rep.Side,
			Type:    rep.OrderType,
		}
	} else if err != nil {
		return err
	}

	switch rep.Status {
	case common.StatusNew:
		state.Status = common.StatusNew
		if err := t.states.Put(ctx, state); err != nil {
			return err
		}
		t.publish(events.EventOrderCreated, rep, state, edge, tradeID)
		return nil

	case common.StatusPartial:
		state.Status = common.StatusPartial
		state.ExecutedBase = rep.CumBase
		state.ExecutedQuote = rep.CumQuote
		if err := t.states.Put(ctx, state); err != nil {
			return err
		}
		t.publish(events.EventOrderPartiallyFilled, rep, state, edge, tradeID)
		return nil

	case common.StatusFilled:
		state.Status = common.StatusFilled
		state.ExecutedBase = rep.CumBase
		state.ExecutedQuote = rep.CumQuote
		if err := t.states.Put(ctx, state); err != nil {
			return err
		}
		t.publish(events.EventOrderPartiallyFilled, rep, state, edge, tradeID)
		t.publish(events.EventOrderFilled, rep, state, edge, tradeID)
		return nil

	case common.StatusCanceled:
		state.Status = common.StatusCanceled
		state.Cancelled = true
		state.ExecutedBase = rep.CumBase
		state.ExecutedQuote = rep.CumQuote
		if err := t.states.Put(ctx, state); err != nil {
			return err
		}
		t.publish(events.EventOrderCancelled, rep, state, edge, tradeID)
		return nil

	case common.StatusExpired:
		state.Status = common.StatusExpired
		state.ExecutedBase = rep.CumBase
		state.ExecutedQuote = rep.CumQuote
		if err := t.states.Put(ctx, state); err != nil {
			return err
		}
		t.publish(events.EventOrderExpired, rep, state, edge, tradeID)
		return nil

	case common.StatusRejected:
		// Terminal; the venue never executed anything. Persist for the
		// record, no transition event fires.
		state.Status = common.StatusRejected
		if err := t.states.Put(ctx, state); err != nil {
			return err
		}
		t.logger.Warn("order rejected by venue",
			zap.String("order_id", rep.ClientOrderID), zap.String("symbol", rep.Symbol))
		return nil
	}

	return fmt.Errorf("%w: %q for order %s", ErrUnexpectedOrderStatus, rep.Status, rep.ClientOrderID)
}

// resolveContext attributes a report to the trade that caused it. A miss
// is a warning, never fatal: manual or pre-migration orders have none.
func (t *Tracker) resolveContext(ctx context.Context, rep events.ExecutionReport) (edge, tradeID string) {
	oc, err := t.contexts.Get(ctx, rep.ClientOrderID)
	if errors.Is(err, ctxstore.ErrNotFound) {
		t.logger.Warn("no order context for execution report",
			zap.String("order_id", rep.ClientOrderID),
			zap.String("symbol", rep.Symbol))
		return "", ""
	}
	if err != nil {
		t.logger.Error("order context lookup failed",
			zap.String("order_id", rep.ClientOrderID), zap.Error(err))
		return "", ""
	}
	return oc.Edge, oc.TradeID
}

func (t *Tracker) publish(e events.Event, rep events.ExecutionReport, state OrderState, edge, tradeID string) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(e, events.OrderEvent{
		Report:        rep,
		Edge:          edge,
		TradeID:       tradeID,
		ExecutedBase:  state.ExecutedBase,
		ExecutedQuote: state.ExecutedQuote,
		AvgPrice:      state.AvgPrice(),
		Cancelled:     state.Cancelled,
	})
}
