// Package ledger implements the FIFO lot book backing paper execution.
//
// Each venue:symbol key owns an ordered sequence of open lots (oldest
// first) and a cumulative realized P/L accumulator. All money amounts are
// integer minor units; quantities are positive reals since crypto venues
// trade fractional sizes.
package ledger

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/tradesim/paper-api/internal/money"
)

// qtyEpsilon is the threshold below which a remaining lot quantity is
// treated as fully consumed.
const qtyEpsilon = 1e-9

// Lot is a discrete batch of acquired quantity at a fixed price.
type Lot struct {
	Quantity   float64
	PriceMinor int64
	FeeMinor   int64
}

// Entry is the state of one venue:symbol key: open lots in acquisition
// order plus the cumulative realized P/L in minor units.
type Entry struct {
	Lots          []Lot
	RealizedMinor int64
}

// Position summarizes the open side of one entry.
type Position struct {
	Quantity          float64
	AveragePriceMinor int64
}

// Key builds the ledger key for a venue and symbol.
func Key(venue, symbol string) string {
	return venue + ":" + symbol
}

// Book is the process-wide trading ledger. It is safe for concurrent use;
// every mutation runs under a single lock so two closing fills against the
// same entry can never interleave lot consumption. Construct one per
// process (or per test) and inject it; there is no package-level instance.
type Book struct {
	mu      sync.Mutex
	entries map[string]*Entry
}

// NewBook creates an empty ledger.
func NewBook() *Book {
	return &Book{
		entries: make(map[string]*Entry),
	}
}

// ensure returns the entry for key, creating an empty one if needed.
// Callers must hold b.mu.
func (b *Book) ensure(key string) *Entry {
	entry, ok := b.entries[key]
	if !ok {
		entry = &Entry{}
		b.entries[key] = entry
	}
	return entry
}

// Ensure creates an empty entry for key if none exists and returns a copy
// of the entry's current state. Idempotent; malformed keys simply get a
// fresh empty entry.
func (b *Book) Ensure(key string) Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := b.ensure(key)
	snapshot := Entry{
		Lots:          make([]Lot, len(entry.Lots)),
		RealizedMinor: entry.RealizedMinor,
	}
	copy(snapshot.Lots, entry.Lots)
	return snapshot
}

// ApplyOpen appends a new lot to the entry's lot sequence. No quantity
// limit is enforced.
func (b *Book) ApplyOpen(key string, quantity float64, priceMinor, feeMinor int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := b.ensure(key)
	entry.Lots = append(entry.Lots, Lot{
		Quantity:   quantity,
		PriceMinor: priceMinor,
		FeeMinor:   feeMinor,
	})
}

// ApplyClose consumes lots from the front of the sequence and returns the
// realized P/L delta in minor units: for each consumed slice,
// (closePrice - lotPrice) x closedQuantity, with the fee subtracted once
// per call rather than per lot. The delta is added to the entry's
// cumulative realized P/L.
//
// Closing more than the total open quantity books the remainder against
// zero-cost lots; there is no short-inventory tracking.
func (b *Book) ApplyClose(key string, quantity float64, priceMinor, feeMinor int64) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry := b.ensure(key)

	var delta int64
	remaining := quantity
	for len(entry.Lots) > 0 && remaining > qtyEpsilon {
		lot := &entry.Lots[0]
		closed := remaining
		if lot.Quantity < closed {
			closed = lot.Quantity
		}

		delta += money.ScaleMinor(priceMinor-lot.PriceMinor, closed)
		lot.Quantity -= closed
		remaining -= closed

		if lot.Quantity <= qtyEpsilon {
			entry.Lots = entry.Lots[1:]
		}
	}

	// Over-close: the remainder never matched a lot, so its full proceeds
	// count as realized P/L.
	if remaining > qtyEpsilon {
		delta += money.ScaleMinor(priceMinor, remaining)
	}

	delta -= feeMinor
	entry.RealizedMinor += delta
	return delta
}

// Summary returns the open position per key: remaining quantity and the
// volume-weighted average acquisition price rounded to minor units, or
// zero when no quantity remains. Every known key appears, including ones
// whose position has been fully closed.
func (b *Book) Summary() map[string]Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]Position, len(b.entries))
	for key, entry := range b.entries {
		var qty decimal.Decimal
		var cost decimal.Decimal
		for _, lot := range entry.Lots {
			q := decimal.NewFromFloat(lot.Quantity)
			qty = qty.Add(q)
			cost = cost.Add(decimal.NewFromInt(lot.PriceMinor).Mul(q))
		}

		pos := Position{}
		if qty.IsPositive() {
			pos.Quantity, _ = qty.Float64()
			pos.AveragePriceMinor = cost.Div(qty).Round(0).IntPart()
		}
		out[key] = pos
	}
	return out
}

// SortedKeys returns the ledger keys in lexical order, for stable API
// output.
func (b *Book) SortedKeys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make([]string, 0, len(b.entries))
	for key := range b.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// TotalRealized returns the sum of every entry's cumulative realized P/L
// in minor units.
func (b *Book) TotalRealized() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	var total int64
	for _, entry := range b.entries {
		total += entry.RealizedMinor
	}
	return total
}
