// Package engine turns sized, munged trade intents into exchange order
// submissions, including composite protective exits and fail-safe unwind
// when those exits cannot be created.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"trading-engine/internal/ctxstore"
	"trading-engine/internal/munge"
	"trading-engine/internal/rules"
	"trading-engine/internal/sizing"
	"trading-engine/pkg/db"
	"trading-engine/pkg/exchanges/common"
)

var hundred = decimal.NewFromInt(100)

// Config tunes the engine's exit construction and retry behaviour.
type Config struct {
	// UseOCO asks the venue for a native one-cancels-the-other pair;
	// when false the two protective legs are submitted independently.
	UseOCO bool
	// StopPct / TargetPct are adverse / favourable percentages applied
	// to the entry price to place the protective legs.
	StopPct   decimal.Decimal
	TargetPct decimal.Decimal
	// RetryAttempts bounds rate-limit retries; RetryDelay is the fixed
	// wait between attempts. 11s clears typical exchange rate windows.
	RetryAttempts uint
	RetryDelay    time.Duration
}

// DefaultConfig returns the production retry budget and a 5%/10% exit
// bracket.
func DefaultConfig() Config {
	return Config{
		UseOCO:        true,
		StopPct:       decimal.NewFromInt(5),
		TargetPct:     decimal.NewFromInt(10),
		RetryAttempts: 3,
		RetryDelay:    11 * time.Second,
	}
}

// Engine composes the munger, sizer, context store and rules cache into
// exchange calls.
type Engine struct {
	gateway   common.Gateway
	rules     *rules.Cache
	contexts  *ctxstore.Store
	sizer     *sizing.Sizer
	positions *PositionStore
	cfg       Config
	logger    *zap.Logger
}

// New creates an Engine. The gateway is an explicit dependency; there is
// no ambient client state.
func New(gateway common.Gateway, rulesCache *rules.Cache, contexts *ctxstore.Store,
	sizer *sizing.Sizer, positions *PositionStore, cfg Config, logger *zap.Logger) *Engine {
	if cfg.RetryAttempts == 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 11 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		gateway:   gateway,
		rules:     rulesCache,
		contexts:  contexts,
		sizer:     sizer,
		positions: positions,
		cfg:       cfg,
		logger:    logger,
	}
}

// Open runs the entry flow: size, munge, submit a fill-or-kill entry and
// construct protective exits for whatever filled. Callers own the overall
// timeout via ctx; a submission already in flight may still complete
// server-side after ctx expires, and the user stream reconciles it.
func (e *Engine) Open(ctx context.Context, intent TradeIntent) Result {
	quoteAmount, err := e.sizer.Size(intent.Edge, intent.Base, intent.Quote, intent.Direction)
	if errors.Is(err, sizing.ErrUnknownEdge) {
		return intent.result(StatusUnauthorised)
	}
	if err != nil {
		return e.internalError(intent, err)
	}

	symbol := intent.Symbol()
	if _, err := e.positions.Get(ctx, symbol); err == nil {
		return intent.result(StatusAlreadyInPosition)
	} else if !errors.Is(err, db.ErrNotFound) {
		return e.internalError(intent, err)
	}

	symRules, ok, err := e.rules.SymbolRules(ctx, symbol)
	if err != nil {
		return e.internalError(intent, err)
	}
	if !ok {
		return intent.result(StatusAssetProhibited)
	}

	entry, err := e.entryPrice(ctx, intent, symRules)
	if err != nil {
		return e.mapFailure(intent, err)
	}
	stop, target, err := e.exitPrices(intent.Direction, symRules, entry)
	if err != nil {
		return e.mapFailure(intent, err)
	}

	qty, err := munge.AmountAndCheckNotionals(symRules, quoteAmount.Div(entry), entry, stop, target)
	if err != nil {
		return e.mapFailure(intent, err)
	}

	tradeID := uuid.NewString()
	entryID := uuid.NewString()
	// Context must be durable before submission: the execution-report
	// stream can race ahead of the submit call returning.
	if err := e.contexts.Set(ctx, entryID, ctxstore.OrderContext{TradeID: tradeID, Edge: intent.Edge}); err != nil {
		return e.internalError(intent, err)
	}

	entrySide := common.SideBuy
	if intent.Direction == sizing.DirectionShort {
		entrySide = common.SideSell
	}
	res, err := retrySubmit(ctx, e.cfg, func() (common.OrderResult, error) {
		return e.gateway.SubmitOrder(ctx, common.OrderRequest{
			Symbol:      symbol,
			Side:        entrySide,
			Type:        common.OrderTypeLimit,
			Qty:         qty,
			Price:       entry,
			TimeInForce: common.TIFFOK,
			ClientID:    entryID,
		})
	})
	if err != nil {
		return e.mapFailure(intent, err)
	}

	if res.ExecutedQty.IsZero() {
		e.logger.Info("entry failed to fill",
			zap.String("symbol", symbol), zap.String("edge", intent.Edge))
		r := intent.result(StatusEntryFailedToFill)
		r.TradeID = tradeID
		return r
	}
	filled := res.ExecutedQty

	exits, err := e.createExits(ctx, intent, tradeID, symbol, entrySide, filled, stop, target)
	if err != nil {
		return e.unwind(ctx, intent, tradeID, symbol, entrySide, filled, err)
	}

	pos := Position{
		Symbol:    symbol,
		Edge:      intent.Edge,
		Direction: intent.Direction,
		BaseQty:   filled,
		Exits:     exits,
	}
	if err := e.positions.Put(ctx, pos); err != nil {
		e.logger.Error("position persist failed after successful open",
			zap.String("symbol", symbol), zap.Error(err))
	}

	r := intent.result(StatusSuccess)
	r.TradeID = tradeID
	r.Executed = filled
	if !res.CumQuoteQty.IsZero() {
		r.AvgPrice = res.CumQuoteQty.Div(filled)
	}
	r.Exits = exits
	return r
}

// Close cancels any known protective orders for the position, then
// market-closes the full tracked size.
func (e *Engine) Close(ctx context.Context, intent TradeIntent) Result {
	if !e.sizer.Authorised(intent.Edge) {
		return intent.result(StatusUnauthorised)
	}

	symbol := intent.Symbol()
	pos, err := e.positions.Get(ctx, symbol)
	if errors.Is(err, db.ErrNotFound) {
		return intent.result(StatusBadInputs)
	}
	if err != nil {
		return e.internalError(intent, err)
	}

	// Best-effort: an exit leg may already have fired and be gone.
	e.cancelExits(ctx, symbol, pos.Exits)

	symRules, ok, err := e.rules.SymbolRules(ctx, symbol)
	if err != nil {
		return e.internalError(intent, err)
	}
	if !ok {
		return intent.result(StatusAssetProhibited)
	}
	qty, err := munge.Quantity(symRules, pos.BaseQty)
	if err != nil {
		return e.mapFailure(intent, err)
	}

	closeSide := common.SideSell
	if pos.Direction == sizing.DirectionShort {
		closeSide = common.SideBuy
	}
	closeID := uuid.NewString()
	tradeID := uuid.NewString()
	if err := e.contexts.Set(ctx, closeID, ctxstore.OrderContext{TradeID: tradeID, Edge: intent.Edge}); err != nil {
		return e.internalError(intent, err)
	}

	res, err := retrySubmit(ctx, e.cfg, func() (common.OrderResult, error) {
		return e.gateway.SubmitOrder(ctx, common.OrderRequest{
			Symbol:   symbol,
			Side:     closeSide,
			Type:     common.OrderTypeMarket,
			Qty:      qty,
			ClientID: closeID,
		})
	})
	if err != nil {
		return e.mapFailure(intent, err)
	}

	if err := e.positions.Delete(ctx, symbol); err != nil {
		e.logger.Error("position delete failed after close",
			zap.String("symbol", symbol), zap.Error(err))
	}

	r := intent.result(StatusSuccess)
	r.TradeID = tradeID
	r.Executed = res.ExecutedQty
	if !res.CumQuoteQty.IsZero() && !res.ExecutedQty.IsZero() {
		r.AvgPrice = res.CumQuoteQty.Div(res.ExecutedQty)
	}
	return r
}

// Prices returns the venue's latest price per symbol.
func (e *Engine) Prices(ctx context.Context) (map[string]decimal.Decimal, error) {
	return e.gateway.Prices(ctx)
}

// Positions lists open tracked positions.
func (e *Engine) Positions(ctx context.Context) ([]Position, error) {
	return e.positions.List(ctx)
}

// entryPrice picks the caller's trigger price when supplied, otherwise
// the venue's current market price, munged to tick granularity.
func (e *Engine) entryPrice(ctx context.Context, intent TradeIntent, symRules common.SymbolRules) (decimal.Decimal, error) {
	price := intent.TriggerPrice
	if price.IsZero() {
		prices, err := e.gateway.Prices(ctx)
		if err != nil {
			return decimal.Zero, err
		}
		p, ok := prices[intent.Symbol()]
		if !ok || p.IsZero() {
			return decimal.Zero, fmt.Errorf("no market price for %s", intent.Symbol())
		}
		price = p
	}
	return munge.Price(symRules, price)
}

// exitPrices places the protective bracket around the entry price.
func (e *Engine) exitPrices(direction sizing.Direction, symRules common.SymbolRules, entry decimal.Decimal) (stop, target decimal.Decimal, err error) {
	stopDelta := entry.Mul(e.cfg.StopPct).Div(hundred)
	targetDelta := entry.Mul(e.cfg.TargetPct).Div(hundred)
	if direction == sizing.DirectionShort {
		stop, target = entry.Add(stopDelta), entry.Sub(targetDelta)
	} else {
		stop, target = entry.Sub(stopDelta), entry.Add(targetDelta)
	}
	if stop, err = munge.Price(symRules, stop); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if target, err = munge.Price(symRules, target); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return stop, target, nil
}

// createExits constructs the protective stop and take-profit for a filled
// entry. Every leg gets its own persisted context before submission.
func (e *Engine) createExits(ctx context.Context, intent TradeIntent, tradeID, symbol string,
	entrySide common.Side, qty, stop, target decimal.Decimal) (ExitOrders, error) {

	exitSide := entrySide.Opposite()
	tpID := uuid.NewString()
	stopID := uuid.NewString()
	oc := ctxstore.OrderContext{TradeID: tradeID, Edge: intent.Edge}
	if err := e.contexts.Set(ctx, tpID, oc); err != nil {
		return ExitOrders{}, err
	}
	if err := e.contexts.Set(ctx, stopID, oc); err != nil {
		return ExitOrders{}, err
	}

	if e.cfg.UseOCO {
		res, err := retrySubmit(ctx, e.cfg, func() (common.OCOResult, error) {
			return e.gateway.SubmitOCO(ctx, common.OCORequest{
				Symbol:          symbol,
				Side:            exitSide,
				Qty:             qty,
				TakeProfitPrice: target,
				StopPrice:       stop,
				StopLimitPrice:  stop,
				TakeProfitID:    tpID,
				StopID:          stopID,
			})
		})
		if err != nil {
			return ExitOrders{}, err
		}
		return ExitOrders{TakeProfitID: tpID, StopID: stopID, ListID: res.ListID}, nil
	}

	// No native OCO: independent stop-market and take-profit-market legs,
	// tracked separately; the sibling is expired venue-side when one fires.
	if _, err := retrySubmit(ctx, e.cfg, func() (common.OrderResult, error) {
		return e.gateway.SubmitOrder(ctx, common.OrderRequest{
			Symbol:     symbol,
			Side:       exitSide,
			Type:       common.OrderTypeStopMarket,
			Qty:        qty,
			StopPrice:  stop,
			ClientID:   stopID,
			ReduceOnly: true,
		})
	}); err != nil {
		return ExitOrders{}, err
	}
	if _, err := retrySubmit(ctx, e.cfg, func() (common.OrderResult, error) {
		return e.gateway.SubmitOrder(ctx, common.OrderRequest{
			Symbol:     symbol,
			Side:       exitSide,
			Type:       common.OrderTypeTakeProfitMarket,
			Qty:        qty,
			StopPrice:  target,
			ClientID:   tpID,
			ReduceOnly: true,
		})
	}); err != nil {
		// The stop leg is live; cancel it so the unwind does not race
		// a dangling protective order.
		if cerr := e.gateway.CancelOrder(ctx, symbol, stopID); cerr != nil {
			e.logger.Warn("cancel of lone stop leg failed",
				zap.String("symbol", symbol), zap.String("order_id", stopID), zap.Error(cerr))
		}
		return ExitOrders{}, err
	}
	return ExitOrders{TakeProfitID: tpID, StopID: stopID}, nil
}

// unwind market-closes a filled entry whose protective exits could not be
// created. The position must never be left open without at least an
// attempted protective order; an unwind failure leaves the system in an
// unknown-risk state and is surfaced loudly, never silently retried.
func (e *Engine) unwind(ctx context.Context, intent TradeIntent, tradeID, symbol string,
	entrySide common.Side, filled decimal.Decimal, cause error) Result {

	e.logger.Error("exit construction failed, unwinding position",
		zap.String("symbol", symbol), zap.String("edge", intent.Edge),
		zap.String("filled", filled.String()), zap.Error(cause))

	unwindID := uuid.NewString()
	if err := e.contexts.Set(ctx, unwindID, ctxstore.OrderContext{TradeID: tradeID, Edge: intent.Edge}); err != nil {
		e.logger.Error("unwind context persist failed, submitting anyway",
			zap.String("symbol", symbol), zap.Error(err))
	}

	_, err := e.gateway.SubmitOrder(ctx, common.OrderRequest{
		Symbol:   symbol,
		Side:     entrySide.Opposite(),
		Type:     common.OrderTypeMarket,
		Qty:      filled,
		ClientID: unwindID,
	})
	if err != nil {
		e.logger.Error("FAILSAFE UNWIND FAILED: position open with no protective orders",
			zap.String("symbol", symbol), zap.String("edge", intent.Edge),
			zap.String("qty", filled.String()), zap.Error(err))
		r := e.internalError(intent, fmt.Errorf("unwind after exit failure: %w", err))
		r.TradeID = tradeID
		r.Executed = filled
		return r
	}

	r := intent.result(StatusAbortedFailedExits)
	r.TradeID = tradeID
	r.Executed = filled
	r.Err = cause
	return r
}

// cancelExits best-effort cancels a position's protective construction.
func (e *Engine) cancelExits(ctx context.Context, symbol string, exits ExitOrders) {
	if exits.ListID != "" {
		if err := e.gateway.CancelOCO(ctx, symbol, exits.ListID); err != nil {
			e.logger.Warn("cancel OCO failed, continuing",
				zap.String("symbol", symbol), zap.String("list_id", exits.ListID), zap.Error(err))
		}
		return
	}
	for _, id := range []string{exits.StopID, exits.TakeProfitID} {
		if id == "" {
			continue
		}
		if err := e.gateway.CancelOrder(ctx, symbol, id); err != nil {
			e.logger.Warn("cancel exit order failed, continuing",
				zap.String("symbol", symbol), zap.String("order_id", id), zap.Error(err))
		}
	}
}

// mapFailure converts submission and validation errors into the result
// taxonomy. Validation and authorization failures are results, never
// thrown past this boundary.
func (e *Engine) mapFailure(intent TradeIntent, err error) Result {
	if wait, ok := common.IsTooManyRequests(err); ok {
		r := intent.result(StatusTooManyRequests)
		r.RetryAfter = wait
		if r.RetryAfter == 0 {
			r.RetryAfter = e.cfg.RetryDelay
		}
		r.Err = err
		return r
	}
	switch {
	case errors.Is(err, common.ErrInsufficientBalance):
		r := intent.result(StatusInsufficientBalance)
		r.Err = err
		return r
	case errors.Is(err, common.ErrTradingProhibited):
		r := intent.result(StatusAssetProhibited)
		r.Err = err
		return r
	case errors.Is(err, munge.ErrBelowMinimum):
		r := intent.result(StatusBadInputs)
		r.Err = err
		return r
	}
	return e.internalError(intent, err)
}

func (e *Engine) internalError(intent TradeIntent, err error) Result {
	e.logger.Error("internal error",
		zap.String("symbol", intent.Symbol()), zap.String("edge", intent.Edge), zap.Error(err))
	r := intent.result(StatusInternalServerError)
	r.Err = err
	return r
}

// retrySubmit retries op on rate-limit rejections with a fixed delay and
// bounded attempts; all other errors are permanent. The sleep holds no
// locks, so other symbols proceed while one call waits out a 429.
func retrySubmit[T any](ctx context.Context, cfg Config, op func() (T, error)) (T, error) {
	return backoff.Retry(ctx, func() (T, error) {
		res, err := op()
		if err != nil {
			if _, ok := common.IsTooManyRequests(err); ok {
				return res, err
			}
			return res, backoff.Permanent(err)
		}
		return res, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(cfg.RetryDelay)),
		backoff.WithMaxTries(cfg.RetryAttempts),
	)
}
