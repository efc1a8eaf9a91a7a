package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradesim/paper-api/internal/quotes"
	"github.com/tradesim/paper-api/internal/types"
)

// countingSource serves fixed prices and counts fetches; keys listed in
// failing return ErrQuoteUnavailable.
type countingSource struct {
	mu      sync.Mutex
	fetches int
	failing map[string]bool
}

func (s *countingSource) GetPrice(_ context.Context, venue, symbol string) (types.Quote, error) {
	s.mu.Lock()
	s.fetches++
	fail := s.failing[venue+":"+symbol]
	s.mu.Unlock()

	if fail {
		return types.Quote{}, fmt.Errorf("%w: upstream status 502", quotes.ErrQuoteUnavailable)
	}
	return types.Quote{Venue: venue, Symbol: symbol, Price: 100, Bid: 99.9, Ask: 100.1, Rate: 1}, nil
}

func (s *countingSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// recordingSender captures delivered frames per connection.
type recordingSender struct {
	mu     sync.Mutex
	frames map[string][][]byte
}

func newRecordingSender() *recordingSender {
	return &recordingSender{frames: make(map[string][][]byte)}
}

func (r *recordingSender) Send(connID string, message []byte) {
	r.mu.Lock()
	r.frames[connID] = append(r.frames[connID], message)
	r.mu.Unlock()
}

func (r *recordingSender) for_(connID string) [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames[connID]
}

func decodeTick(t *testing.T, message []byte) TickFrame {
	t.Helper()
	var frame TickFrame
	require.NoError(t, json.Unmarshal(message, &frame))
	require.Equal(t, "tick", frame.Type)
	return frame
}

func decodeError(t *testing.T, message []byte) ErrorFrame {
	t.Helper()
	var frame ErrorFrame
	require.NoError(t, json.Unmarshal(message, &frame))
	require.Equal(t, "error", frame.Type)
	return frame
}

func TestTickWithNoSubscriptionsFetchesNothing(t *testing.T) {
	source := &countingSource{}
	sender := newRecordingSender()
	sched := NewScheduler(NewRegistry(), source, sender, time.Second)

	sched.Tick(context.Background())

	assert.Zero(t, source.count())
	assert.Empty(t, sender.frames)
}

func TestTickDeliversOnlyToInterestedConnections(t *testing.T) {
	reg := NewRegistry()
	reg.Subscribe("conn-btc", []Item{{Venue: "crypto", Symbol: "BTC"}})
	reg.Subscribe("conn-aapl", []Item{{Venue: "stock", Symbol: "AAPL"}})
	reg.Subscribe("conn-both", []Item{
		{Venue: "crypto", Symbol: "BTC"},
		{Venue: "stock", Symbol: "AAPL"},
	})

	source := &countingSource{}
	sender := newRecordingSender()
	sched := NewScheduler(reg, source, sender, time.Second)

	sched.Tick(context.Background())

	// One fetch per wanted key, not per subscriber.
	assert.Equal(t, 2, source.count())
	assert.Len(t, sender.for_("conn-btc"), 1)
	assert.Len(t, sender.for_("conn-aapl"), 1)
	assert.Len(t, sender.for_("conn-both"), 2)

	tick := decodeTick(t, sender.for_("conn-btc")[0])
	assert.Equal(t, "BTC", tick.Symbol)
	assert.Equal(t, 100.0, tick.Price)

	// Both subscribers to a key receive the identical encoding.
	assert.Contains(t, sender.for_("conn-both"), sender.for_("conn-btc")[0])
}

func TestTickIsolatesPerKeyFailures(t *testing.T) {
	reg := NewRegistry()
	reg.Subscribe("conn-x", []Item{{Venue: "crypto", Symbol: "XXX"}})
	reg.Subscribe("conn-y", []Item{{Venue: "crypto", Symbol: "ETH"}})

	source := &countingSource{failing: map[string]bool{"crypto:XXX": true}}
	sender := newRecordingSender()
	sched := NewScheduler(reg, source, sender, time.Second)

	sched.Tick(context.Background())

	// The failing key yields an error frame for its subscribers.
	require.Len(t, sender.for_("conn-x"), 1)
	errFrame := decodeError(t, sender.for_("conn-x")[0])
	assert.Equal(t, "XXX", errFrame.Symbol)
	assert.NotEmpty(t, errFrame.Message)

	// The healthy key still ticks.
	require.Len(t, sender.for_("conn-y"), 1)
	tick := decodeTick(t, sender.for_("conn-y")[0])
	assert.Equal(t, "ETH", tick.Symbol)
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	reg := NewRegistry()
	source := &countingSource{}
	sched := NewScheduler(reg, source, newRecordingSender(), time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Start(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}
