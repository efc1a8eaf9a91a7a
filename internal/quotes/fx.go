package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FxCache holds the USD→local currency conversion rate, refreshed on a
// fixed interval. Refresh failures are fully absorbed: the previously
// cached rate is retained indefinitely and no error surfaces to readers.
type FxCache struct {
	url      string
	currency string
	client   *http.Client

	mu   sync.RWMutex
	rate float64
}

// NewFxCache creates a rate cache starting at 1.0 (identity). An empty
// url disables refreshing entirely.
func NewFxCache(url, currency string) *FxCache {
	return &FxCache{
		url:      url,
		currency: currency,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		rate: 1.0,
	}
}

// Rate returns the most recently cached conversion rate.
func (f *FxCache) Rate() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.rate
}

// Start runs the refresh loop until ctx is cancelled. The first refresh
// happens immediately so the cache does not sit at the identity rate for a
// full interval.
func (f *FxCache) Start(ctx context.Context, interval time.Duration) {
	if f.url == "" {
		return
	}

	logger := log.With().Str("component", "fx_cache").Str("currency", f.currency).Logger()
	logger.Info().Dur("interval", interval).Msg("starting fx refresher")

	f.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down fx refresher")
			return
		case <-ticker.C:
			f.Refresh(ctx)
		}
	}
}

type fxPayload struct {
	Rates map[string]float64 `json:"rates"`
}

// Refresh fetches the current rate once; on any failure the stale value
// is kept.
func (f *FxCache) Refresh(ctx context.Context) {
	rate, err := f.fetch(ctx)
	if err != nil {
		log.Debug().Err(err).Str("component", "fx_cache").Msg("fx refresh failed, keeping stale rate")
		return
	}

	f.mu.Lock()
	f.rate = rate
	f.mu.Unlock()
}

func (f *FxCache) fetch(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fx upstream status %d", resp.StatusCode)
	}

	var payload fxPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, err
	}

	rate, ok := payload.Rates[f.currency]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("no usable rate for %s", f.currency)
	}
	return rate, nil
}
