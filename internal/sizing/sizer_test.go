package sizing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-engine/internal/sizing"
)

func testSizer(t *testing.T) *sizing.Sizer {
	s, err := sizing.NewSizer(sizing.PolicyFile{
		DefaultAmount: "100",
		Edges: []sizing.Rule{
			{Edge: "edge60"},
			{Edge: "edge61", Amount: "250"},
			{Edge: "edge62", Long: "300", Short: "150"},
		},
	})
	require.NoError(t, err)
	return s
}

func TestSizeDefaultForListedEdge(t *testing.T) {
	s := testSizer(t)

	got, err := s.Size("edge60", "BTC", "USDT", sizing.DirectionLong)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100").Equal(got))
}

func TestSizePerEdgeAmount(t *testing.T) {
	s := testSizer(t)

	got, err := s.Size("edge61", "ETH", "USDT", sizing.DirectionShort)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("250").Equal(got))
}

func TestSizePerDirection(t *testing.T) {
	s := testSizer(t)

	long, err := s.Size("edge62", "BTC", "USDT", sizing.DirectionLong)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("300").Equal(long))

	short, err := s.Size("edge62", "BTC", "USDT", sizing.DirectionShort)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("150").Equal(short))
}

func TestSizeUnknownEdgeRejected(t *testing.T) {
	s := testSizer(t)

	_, err := s.Size("edge99", "BTC", "USDT", sizing.DirectionLong)
	assert.ErrorIs(t, err, sizing.ErrUnknownEdge)
	assert.False(t, s.Authorised("edge99"))
}

func TestNewSizerRejectsBadAmounts(t *testing.T) {
	_, err := sizing.NewSizer(sizing.PolicyFile{
		DefaultAmount: "100",
		Edges:         []sizing.Rule{{Edge: "bad", Amount: "not-a-number"}},
	})
	assert.Error(t, err)
}
