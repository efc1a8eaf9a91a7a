package quotes

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"

	"github.com/tradesim/paper-api/internal/types"
)

// Reference prices for common symbols; anything else gets a price derived
// from a hash of the symbol so distinct symbols stay distinguishable.
var simBasePrices = map[string]float64{
	"BTC":   61250.00,
	"ETH":   2480.00,
	"SOL":   142.50,
	"DOGE":  0.12,
	"AAPL":  187.40,
	"GOOGL": 141.80,
	"MSFT":  412.20,
	"AMZN":  178.90,
	"META":  510.30,
}

// SimSource is a deterministic-seedable random-walk quote generator used
// when no upstream provider is configured. Each key walks independently,
// stepping at most ±0.5% per fetch; bid/ask come from the venue spread
// schedule.
type SimSource struct {
	mu     sync.Mutex
	rng    *rand.Rand
	prices map[string]float64
	fx     *FxCache
}

// NewSimSource creates a simulated quote source with the given seed.
func NewSimSource(seed int64, fx *FxCache) *SimSource {
	return &SimSource{
		rng:    rand.New(rand.NewSource(seed)),
		prices: make(map[string]float64),
		fx:     fx,
	}
}

func basePrice(symbol string) float64 {
	if price, ok := simBasePrices[symbol]; ok {
		return price
	}
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return 10.0 + float64(h.Sum32()%99000)/100.0
}

// GetPrice returns the next step of the symbol's random walk. It never
// fails; simulated quotes are always available.
func (s *SimSource) GetPrice(_ context.Context, venue, symbol string) (types.Quote, error) {
	key := venue + ":" + symbol

	s.mu.Lock()
	price, ok := s.prices[key]
	if !ok {
		price = basePrice(symbol)
	}
	price *= 1 + (s.rng.Float64()-0.5)*0.01
	s.prices[key] = price
	s.mu.Unlock()

	return spreadQuote(venue, symbol, price, s.fx.Rate()), nil
}
