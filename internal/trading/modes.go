package trading

import (
	"fmt"
	"sync"

	"github.com/tradesim/paper-api/internal/types"
)

// Modes holds the advisory execution mode per venue group. The engine
// always fills on paper; the flag is carried on orders as metadata only.
type Modes struct {
	mu     sync.RWMutex
	crypto string
	stocks string
}

// NewModes creates mode flags, both starting on paper.
func NewModes() *Modes {
	return &Modes{
		crypto: types.ModePaper,
		stocks: types.ModePaper,
	}
}

// Get returns the current flags.
func (m *Modes) Get() types.ModeResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return types.ModeResponse{
		Crypto: m.crypto,
		Stocks: m.stocks,
	}
}

// Set updates the flags. An empty value leaves the corresponding flag
// unchanged; anything other than paper or live is rejected.
func (m *Modes) Set(crypto, stocks string) error {
	if err := validMode(crypto); err != nil {
		return err
	}
	if err := validMode(stocks); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if crypto != "" {
		m.crypto = crypto
	}
	if stocks != "" {
		m.stocks = stocks
	}
	return nil
}

// ForVenue returns the flag applying to a venue.
func (m *Modes) ForVenue(venue string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if venue == types.VenueStock {
		return m.stocks
	}
	return m.crypto
}

func validMode(mode string) error {
	if mode == "" || mode == types.ModePaper || mode == types.ModeLive {
		return nil
	}
	return fmt.Errorf("unknown mode %q", mode)
}
