package stream

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradesim/paper-api/internal/quotes"
)

// TickFrame is pushed to subscribers when a quote fetch succeeds.
type TickFrame struct {
	Type      string  `json:"type"`
	Venue     string  `json:"venue"`
	Symbol    string  `json:"symbol"`
	Rate      float64 `json:"rate"`
	Price     float64 `json:"price"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Timestamp int64   `json:"timestamp"`
}

// ErrorFrame is pushed to subscribers when a quote fetch fails.
type ErrorFrame struct {
	Type      string `json:"type"`
	Venue     string `json:"venue"`
	Symbol    string `json:"symbol"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// Sender delivers an encoded frame to one connection. Implemented by Hub;
// tests substitute a recorder.
type Sender interface {
	Send(connID string, message []byte)
}

// Scheduler fetches one quote per wanted key on a fixed period and fans
// the resulting frames out to interested connections.
type Scheduler struct {
	registry *Registry
	source   quotes.Source
	sender   Sender
	interval time.Duration
}

// NewScheduler creates a broadcast scheduler.
func NewScheduler(registry *Registry, source quotes.Source, sender Sender, interval time.Duration) *Scheduler {
	return &Scheduler{
		registry: registry,
		source:   source,
		sender:   sender,
		interval: interval,
	}
}

// Start runs the broadcast loop until ctx is cancelled. Each tick's work
// runs to completion before the next ticker fire is consumed, so ticks
// never overlap.
func (s *Scheduler) Start(ctx context.Context) {
	logger := log.With().Str("component", "broadcast_scheduler").Logger()
	logger.Info().Dur("interval", s.interval).Msg("starting broadcast scheduler")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down broadcast scheduler")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one broadcast cycle: compute the wanted-key union, fetch each
// key's quote in parallel, and deliver tick or error frames to the
// connections interested in that key. An empty union skips the cycle
// without touching the upstream. One key's failure never affects the
// others.
func (s *Scheduler) Tick(ctx context.Context) {
	keys := s.registry.WantedKeys()
	if len(keys) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			s.broadcastKey(ctx, key)
		}(key)
	}
	wg.Wait()
}

func (s *Scheduler) broadcastKey(ctx context.Context, key string) {
	venue, symbol, _ := strings.Cut(key, ":")
	now := time.Now().UnixMilli()

	var frame interface{}
	quote, err := s.source.GetPrice(ctx, venue, symbol)
	if err != nil {
		log.Debug().Err(err).Str("key", key).Msg("tick quote fetch failed")
		frame = ErrorFrame{
			Type:      "error",
			Venue:     venue,
			Symbol:    symbol,
			Message:   err.Error(),
			Timestamp: now,
		}
	} else {
		frame = TickFrame{
			Type:      "tick",
			Venue:     venue,
			Symbol:    symbol,
			Rate:      quote.Rate,
			Price:     quote.Price,
			Bid:       quote.Bid,
			Ask:       quote.Ask,
			Timestamp: now,
		}
	}

	// Subscribers to the same key all receive the identical frame, so it
	// is encoded once per key per tick.
	message, err := json.Marshal(frame)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("failed to marshal broadcast frame")
		return
	}
	for _, connID := range s.registry.ConnIDsFor(key) {
		s.sender.Send(connID, message)
	}
}
