package ctxstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-engine/internal/ctxstore"
	"trading-engine/pkg/db"
)

func newStore(t *testing.T) *ctxstore.Store {
	database, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return ctxstore.New(database)
}

func TestSetGetRoundtrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	oc := ctxstore.OrderContext{TradeID: "trade-1", Edge: "edge60"}
	require.NoError(t, store.Set(ctx, "order-abc", oc))

	got, err := store.Get(ctx, "order-abc")
	require.NoError(t, err)
	assert.Equal(t, "trade-1", got.TradeID)
	assert.Equal(t, "edge60", got.Edge)
	assert.Equal(t, ctxstore.SchemaVersion, got.Version)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	store := newStore(t)

	_, err := store.Get(context.Background(), "never-written")
	assert.ErrorIs(t, err, ctxstore.ErrNotFound)
}

func TestSetEmptyOrderIDRejected(t *testing.T) {
	store := newStore(t)

	err := store.Set(context.Background(), "", ctxstore.OrderContext{TradeID: "t"})
	assert.Error(t, err)
}

func TestPruneBefore(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "old-order", ctxstore.OrderContext{TradeID: "t1", Edge: "e"}))

	// Everything was written just now, so a cutoff in the past removes nothing.
	n, err := store.PruneBefore(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	// A cutoff in the future removes the row.
	n, err = store.PruneBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = store.Get(ctx, "old-order")
	assert.ErrorIs(t, err, ctxstore.ErrNotFound)
}
