package tracker_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-engine/internal/ctxstore"
	"trading-engine/internal/events"
	"trading-engine/internal/tracker"
	"trading-engine/pkg/db"
	"trading-engine/pkg/exchanges/common"
)

type fixture struct {
	tracker  *tracker.Tracker
	contexts *ctxstore.Store
	states   *tracker.StateStore
	bus      *events.Bus
}

func newFixture(t *testing.T) *fixture {
	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	contexts := ctxstore.New(database)
	states := tracker.NewStateStore(database)
	bus := events.NewBus()
	return &fixture{
		tracker:  tracker.New(contexts, states, bus, nil),
		contexts: contexts,
		states:   states,
		bus:      bus,
	}
}

func report(orderID string, status common.OrderStatus, cumBase, cumQuote string) events.ExecutionReport {
	return events.ExecutionReport{
		Symbol:        "BTCUSDT",
		Side:          common.SideBuy,
		OrderType:     common.OrderTypeLimit,
		Status:        status,
		ClientOrderID: orderID,
		CumBase:       decimal.RequireFromString(cumBase),
		CumQuote:      decimal.RequireFromString(cumQuote),
	}
}

func TestFillSequenceAveragePriceAndSingleFilledEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.contexts.Set(ctx, "ord-1", ctxstore.OrderContext{TradeID: "t1", Edge: "edge60"}))

	filled, unsub := f.bus.Subscribe(events.EventOrderFilled, 10)
	defer unsub()
	partial, unsubP := f.bus.Subscribe(events.EventOrderPartiallyFilled, 10)
	defer unsubP()

	require.NoError(t, f.tracker.HandleReport(ctx, report("ord-1", common.StatusNew, "0", "0")))
	require.NoError(t, f.tracker.HandleReport(ctx, report("ord-1", common.StatusPartial, "3", "60000")))
	require.NoError(t, f.tracker.HandleReport(ctx, report("ord-1", common.StatusFilled, "10", "200500")))

	state, err := f.states.Get(ctx, "ord-1")
	require.NoError(t, err)
	assert.Equal(t, common.StatusFilled, state.Status)
	assert.True(t, decimal.RequireFromString("10").Equal(state.ExecutedBase))
	// avg price == cumulative quote / cumulative base
	assert.True(t, decimal.RequireFromString("20050").Equal(state.AvgPrice()), "got %s", state.AvgPrice())

	assert.Len(t, filled, 1, "order_filled must fire exactly once")
	assert.Len(t, partial, 2, "partial event fires on PARTIAL and on FILLED")

	ev := <-filled
	assert.Equal(t, "edge60", ev.Edge)
	assert.Equal(t, "t1", ev.TradeID)
}

func TestReplayedReportsConverge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rep := report("ord-2", common.StatusFilled, "10", "200000")
	require.NoError(t, f.tracker.HandleReport(ctx, rep))
	require.NoError(t, f.tracker.HandleReport(ctx, rep)) // duplicate delivery

	state, err := f.states.Get(ctx, "ord-2")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("10").Equal(state.ExecutedBase), "replays must not double-count")
}

func TestMissingContextIsNonFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, unsub := f.bus.Subscribe(events.EventOrderCreated, 1)
	defer unsub()

	err := f.tracker.HandleReport(ctx, report("manual-order", common.StatusNew, "0", "0"))
	require.NoError(t, err)

	// State still created; attribution is simply empty.
	state, err := f.states.Get(ctx, "manual-order")
	require.NoError(t, err)
	assert.Equal(t, common.StatusNew, state.Status)

	ev := <-created
	assert.Empty(t, ev.Edge)
}

func TestCancelledOrderMarksFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cancelled, unsub := f.bus.Subscribe(events.EventOrderCancelled, 1)
	defer unsub()

	require.NoError(t, f.tracker.HandleReport(ctx, report("ord-3", common.StatusNew, "0", "0")))
	require.NoError(t, f.tracker.HandleReport(ctx, report("ord-3", common.StatusCanceled, "0", "0")))

	state, err := f.states.Get(ctx, "ord-3")
	require.NoError(t, err)
	assert.True(t, state.Cancelled)
	assert.Len(t, cancelled, 1)
}

func TestCancelAfterLostPartialReportCarriesTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// The PARTIALLY_FILLED report is lost across a reconnect; the cancel
	// report's cumulative totals are still authoritative.
	require.NoError(t, f.tracker.HandleReport(ctx, report("ord-7", common.StatusNew, "0", "0")))
	require.NoError(t, f.tracker.HandleReport(ctx, report("ord-7", common.StatusCanceled, "4", "80000")))

	state, err := f.states.Get(ctx, "ord-7")
	require.NoError(t, err)
	assert.True(t, state.Cancelled)
	assert.True(t, decimal.RequireFromString("4").Equal(state.ExecutedBase))
	assert.True(t, decimal.RequireFromString("20000").Equal(state.AvgPrice()))
}

func TestExpiredOrderFiresExpiredEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired, unsub := f.bus.Subscribe(events.EventOrderExpired, 1)
	defer unsub()

	require.NoError(t, f.tracker.HandleReport(ctx, report("ord-4", common.StatusExpired, "0", "0")))
	assert.Len(t, expired, 1)
}

func TestUnexpectedStatusIsHardError(t *testing.T) {
	f := newFixture(t)

	err := f.tracker.HandleReport(context.Background(), report("ord-5", common.OrderStatus("PENDING_WIZARDRY"), "0", "0"))
	assert.ErrorIs(t, err, tracker.ErrUnexpectedOrderStatus)
}

func TestProcessMessageDecodesExecutionReport(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	msg := []byte(`{
		"e": "executionReport", "E": 1700000000000,
		"s": "BTCUSDT", "c": "ws-ord-1", "S": "BUY", "o": "LIMIT",
		"x": "TRADE", "X": "FILLED", "i": 12345,
		"p": "20000.00", "l": "0.5", "L": "20000.00",
		"z": "0.5", "Z": "10000.00", "T": 1700000000000
	}`)
	f.tracker.ProcessMessage(ctx, msg)

	state, err := f.states.Get(ctx, "ws-ord-1")
	require.NoError(t, err)
	assert.Equal(t, common.StatusFilled, state.Status)
	assert.True(t, decimal.RequireFromString("20000").Equal(state.AvgPrice()))
}

func TestProcessMessageSurvivesGarbage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.tracker.ProcessMessage(ctx, []byte(`not json at all`))
	f.tracker.ProcessMessage(ctx, []byte(`{"e": "outboundAccountPosition"}`))
	f.tracker.ProcessMessage(ctx, []byte(`{"e": "executionReport", "X": "NONSENSE", "c": "x"}`))

	// Still able to process a good report afterwards.
	require.NoError(t, f.tracker.HandleReport(ctx, report("ord-6", common.StatusNew, "0", "0")))
}
