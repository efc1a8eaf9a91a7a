package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradesim/paper-api/internal/types"
)

// HTTPConfig holds the upstream quote provider endpoints. The crypto
// endpoint is public; the stock endpoint requires an API token.
type HTTPConfig struct {
	CryptoURL string
	StockURL  string
	StockKey  string
}

// HTTPSource fetches quotes from per-venue upstream HTTP providers.
type HTTPSource struct {
	cfg    HTTPConfig
	fx     *FxCache
	client *http.Client
}

// NewHTTPSource creates a quote source backed by upstream HTTP providers.
func NewHTTPSource(cfg HTTPConfig, fx *FxCache) *HTTPSource {
	return &HTTPSource{
		cfg: cfg,
		fx:  fx,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// quotePayload is the upstream ticker response shape.
type quotePayload struct {
	Price float64 `json:"price"`
	Bid   float64 `json:"bid"`
	Ask   float64 `json:"ask"`
}

// GetPrice fetches the current quote for venue/symbol. All failure modes
// (missing credential, transport error, non-2xx status, malformed body,
// non-positive price) surface as ErrQuoteUnavailable.
func (s *HTTPSource) GetPrice(ctx context.Context, venue, symbol string) (types.Quote, error) {
	base := s.cfg.CryptoURL
	key := ""
	if venue == types.VenueStock {
		base = s.cfg.StockURL
		key = s.cfg.StockKey
		if key == "" {
			return types.Quote{}, fmt.Errorf("%w: missing stock API credential", ErrQuoteUnavailable)
		}
	}
	if base == "" {
		return types.Quote{}, fmt.Errorf("%w: no upstream configured for venue %s", ErrQuoteUnavailable, venue)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?symbol="+url.QueryEscape(symbol), nil)
	if err != nil {
		return types.Quote{}, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return types.Quote{}, fmt.Errorf("%w: %v", ErrQuoteUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Debug().
			Str("venue", venue).
			Str("symbol", symbol).
			Int("status", resp.StatusCode).
			Msg("upstream quote request rejected")
		return types.Quote{}, fmt.Errorf("%w: upstream status %d", ErrQuoteUnavailable, resp.StatusCode)
	}

	var payload quotePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return types.Quote{}, fmt.Errorf("%w: malformed upstream response: %v", ErrQuoteUnavailable, err)
	}
	if payload.Price <= 0 {
		return types.Quote{}, fmt.Errorf("%w: non-positive price for %s:%s", ErrQuoteUnavailable, venue, symbol)
	}

	quote := types.Quote{
		Venue:  venue,
		Symbol: symbol,
		Price:  payload.Price,
		Bid:    payload.Bid,
		Ask:    payload.Ask,
		Rate:   s.fx.Rate(),
	}
	// Providers that only publish a last price get the venue spread applied.
	if payload.Bid <= 0 || payload.Ask <= 0 {
		quote = spreadQuote(venue, symbol, payload.Price, s.fx.Rate())
	}
	return quote, nil
}
