// Package quotes provides the price source capability consumed by the fill
// engine and the broadcast scheduler, plus the USD→local currency rate
// cache.
package quotes

import (
	"context"
	"errors"

	"github.com/tradesim/paper-api/internal/types"
)

// ErrQuoteUnavailable is returned when an upstream fetch fails, the
// response is malformed, the credential is missing, or the price is not
// positive. Callers must never substitute a zero price.
var ErrQuoteUnavailable = errors.New("quote unavailable")

// Source fetches the current quote for a venue/symbol pair in USD.
type Source interface {
	GetPrice(ctx context.Context, venue, symbol string) (types.Quote, error)
}

// Bid/ask spread schedule per venue, applied by the price source (not the
// ledger) when the upstream does not supply its own bid and ask.
const (
	cryptoSpread = 0.0006 // 0.06%
	stockSpread  = 0.0008 // 0.08%
)

func venueSpread(venue string) float64 {
	if venue == types.VenueStock {
		return stockSpread
	}
	return cryptoSpread
}

func spreadQuote(venue, symbol string, price, rate float64) types.Quote {
	half := venueSpread(venue) / 2
	return types.Quote{
		Venue:  venue,
		Symbol: symbol,
		Price:  price,
		Bid:    price * (1 - half),
		Ask:    price * (1 + half),
		Rate:   rate,
	}
}
