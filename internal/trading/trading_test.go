package trading

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradesim/paper-api/internal/database"
	"github.com/tradesim/paper-api/internal/ledger"
	"github.com/tradesim/paper-api/internal/money"
	"github.com/tradesim/paper-api/internal/quotes"
	"github.com/tradesim/paper-api/internal/types"
)

// fixedSource quotes a fixed price per venue:symbol key, or fails when no
// price is configured.
type fixedSource struct {
	prices map[string]float64
}

func (f *fixedSource) GetPrice(_ context.Context, venue, symbol string) (types.Quote, error) {
	price, ok := f.prices[venue+":"+symbol]
	if !ok {
		return types.Quote{}, quotes.ErrQuoteUnavailable
	}
	return types.Quote{Venue: venue, Symbol: symbol, Price: price, Bid: price, Ask: price, Rate: 1}, nil
}

func newTestService(t *testing.T, prices map[string]float64) (*Service, *ledger.Book) {
	t.Helper()
	db, err := database.NewDatabase(":memory:")
	require.NoError(t, err)

	book := ledger.NewBook()
	svc := NewService(db, book, &fixedSource{prices: prices}, NewModes())
	return svc, book
}

func TestSubmitValidation(t *testing.T) {
	svc, _ := newTestService(t, nil)

	cases := []SubmitRequest{
		{Symbol: "BTC", Side: types.SideBuy, Quantity: 1},
		{Venue: types.VenueCrypto, Side: types.SideBuy, Quantity: 1},
		{Venue: types.VenueCrypto, Symbol: "BTC", Quantity: 1},
		{Venue: types.VenueCrypto, Symbol: "BTC", Side: "HODL", Quantity: 1},
		{Venue: types.VenueCrypto, Symbol: "BTC", Side: types.SideBuy},
		{Venue: types.VenueCrypto, Symbol: "BTC", Side: types.SideBuy, Quantity: -2},
		{Venue: types.VenueCrypto, Symbol: "BTC", Side: types.SideBuy, Quantity: math.NaN()},
		{Venue: types.VenueCrypto, Symbol: "BTC", Side: types.SideBuy, Quantity: math.Inf(1)},
	}
	for _, req := range cases {
		_, err := svc.Submit(context.Background(), "client", req)
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr, "request %+v", req)
	}
}

func TestSubmitQuoteFailureLeavesStateUntouched(t *testing.T) {
	svc, book := newTestService(t, nil)

	_, err := svc.Submit(context.Background(), "client", SubmitRequest{
		Venue:    types.VenueCrypto,
		Symbol:   "BTC",
		Side:     types.SideBuy,
		Quantity: 1,
	})
	assert.ErrorIs(t, err, quotes.ErrQuoteUnavailable)
	assert.Empty(t, book.Summary())
}

func TestSubmitOpeningFill(t *testing.T) {
	svc, book := newTestService(t, map[string]float64{"stock:AAPL": 150.00})

	result, err := svc.Submit(context.Background(), "client", SubmitRequest{
		Venue:    types.VenueStock,
		Symbol:   "AAPL",
		Side:     types.SideBuy,
		Quantity: 10,
	})
	require.NoError(t, err)

	assert.Equal(t, result.Order.OrderID, result.Fill.OrderID)
	assert.Equal(t, types.ModePaper, result.Order.Mode)
	// Fee = 150.00 x 10 x 0.0005 = 0.75; opening fills book no P/L.
	assert.Equal(t, "0.75", result.Fill.Fee)
	assert.Equal(t, "0.00", result.Fill.RealizedPL)

	summary := book.Summary()
	assert.InDelta(t, 10.0, summary["stock:AAPL"].Quantity, 1e-9)
	assert.Equal(t, int64(15000), summary["stock:AAPL"].AveragePriceMinor)
}

func TestSubmitClosingFillRealizesFIFO(t *testing.T) {
	source := &fixedSource{prices: map[string]float64{"stock:AAPL": 10.00}}
	db, err := database.NewDatabase(":memory:")
	require.NoError(t, err)
	book := ledger.NewBook()
	svc := NewService(db, book, source, NewModes())

	ctx := context.Background()
	_, err = svc.Submit(ctx, "client", SubmitRequest{Venue: "stock", Symbol: "AAPL", Side: types.SideBuy, Quantity: 5})
	require.NoError(t, err)

	source.prices["stock:AAPL"] = 12.00
	_, err = svc.Submit(ctx, "client", SubmitRequest{Venue: "stock", Symbol: "AAPL", Side: types.SideBuy, Quantity: 5})
	require.NoError(t, err)

	source.prices["stock:AAPL"] = 11.00
	result, err := svc.Submit(ctx, "client", SubmitRequest{Venue: "stock", Symbol: "AAPL", Side: types.SideSell, Quantity: 7})
	require.NoError(t, err)

	// FIFO: 5 x (11-10) + 2 x (11-12) = 3.00, minus fee 11 x 7 x 0.0005 = 0.04.
	feeMinor := money.MulToMinor(11.00, 7, FeeRate, money.DefaultPlaces)
	assert.Equal(t, int64(4), feeMinor)
	assert.Equal(t, "2.96", result.Fill.RealizedPL)
	assert.Equal(t, int64(296), book.TotalRealized())
}

func TestSubmitShortAndCoverSides(t *testing.T) {
	svc, book := newTestService(t, map[string]float64{"crypto:ETH": 2000.00})

	ctx := context.Background()
	// COVER opens lots, SHORT closes them, same as BUY/SELL.
	_, err := svc.Submit(ctx, "client", SubmitRequest{Venue: "crypto", Symbol: "ETH", Side: types.SideCover, Quantity: 2})
	require.NoError(t, err)

	result, err := svc.Submit(ctx, "client", SubmitRequest{Venue: "crypto", Symbol: "ETH", Side: types.SideShort, Quantity: 2})
	require.NoError(t, err)

	// Flat price, so the delta is just the fee: 2000 x 2 x 0.0005 = 2.00.
	assert.Equal(t, "-2.00", result.Fill.RealizedPL)
	assert.Zero(t, book.Summary()["crypto:ETH"].Quantity)
}

func TestSubmitPersistsOrderAndFill(t *testing.T) {
	db, err := database.NewDatabase(":memory:")
	require.NoError(t, err)
	book := ledger.NewBook()
	svc := NewService(db, book, &fixedSource{prices: map[string]float64{"crypto:BTC": 50000}}, NewModes())

	result, err := svc.Submit(context.Background(), "client-1", SubmitRequest{
		Venue:    "crypto",
		Symbol:   "BTC",
		Side:     types.SideBuy,
		Quantity: 0.5,
	})
	require.NoError(t, err)

	var order types.Order
	require.NoError(t, db.Where("order_id = ?", result.Order.OrderID).First(&order).Error)
	assert.Equal(t, "client-1", order.ClientID)

	var fill types.Fill
	require.NoError(t, db.Where("order_id = ?", result.Order.OrderID).First(&fill).Error)
	assert.Equal(t, result.Fill.FillID, fill.FillID)
}

func TestModes(t *testing.T) {
	modes := NewModes()
	assert.Equal(t, types.ModeResponse{Crypto: "paper", Stocks: "paper"}, modes.Get())

	require.NoError(t, modes.Set("live", ""))
	assert.Equal(t, "live", modes.ForVenue(types.VenueCrypto))
	assert.Equal(t, "paper", modes.ForVenue(types.VenueStock))

	assert.Error(t, modes.Set("margin", ""))
	// Rejected updates leave both flags alone.
	assert.Equal(t, types.ModeResponse{Crypto: "live", Stocks: "paper"}, modes.Get())
}
