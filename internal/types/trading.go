package types

import (
	"gorm.io/gorm"
)

// Order sides. BUY and COVER open lots; SELL and SHORT close them.
const (
	SideBuy   = "BUY"
	SideSell  = "SELL"
	SideShort = "SHORT"
	SideCover = "COVER"
)

// Venues recognized by the fee and spread schedules.
const (
	VenueCrypto = "crypto"
	VenueStock  = "stock"
)

// Execution modes. The engine always fills on paper; the mode flag is
// advisory metadata carried on orders.
const (
	ModePaper = "paper"
	ModeLive  = "live"
)

// Order is an immutable order intent. Timestamp is epoch milliseconds so
// report window queries can filter directly on the column.
type Order struct {
	gorm.Model `json:"-"`
	OrderID    string  `gorm:"uniqueIndex" json:"order_id"`
	ClientID   string  `json:"client_id"`
	Venue      string  `json:"venue"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	Mode       string  `json:"mode"`
	Timestamp  int64   `json:"timestamp"`
}

// Fill is a materialized order: the order fields plus the computed fee and
// the realized P/L delta booked by the fill. Fee and RealizedPL are decimal
// strings rendered from minor units; opening fills carry a zero delta.
type Fill struct {
	gorm.Model `json:"-"`
	FillID     string  `gorm:"uniqueIndex" json:"fill_id"`
	OrderID    string  `json:"order_id"`
	Venue      string  `json:"venue"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Quantity   float64 `json:"quantity"`
	Price      float64 `json:"price"`
	Fee        string  `json:"fee"`
	RealizedPL string  `json:"realized_pl"`
	Timestamp  int64   `json:"timestamp"`
}

// Quote is an ephemeral upstream price snapshot. Rate is the USD→local
// currency conversion rate cached at fetch time; quotes are never persisted.
type Quote struct {
	Venue  string  `json:"venue"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Rate   float64 `json:"rate"`
}

// IsOpeningSide reports whether a side creates lots.
func IsOpeningSide(side string) bool {
	return side == SideBuy || side == SideCover
}

// IsClosingSide reports whether a side consumes lots.
func IsClosingSide(side string) bool {
	return side == SideSell || side == SideShort
}

// ValidSide reports whether side is one of the four recognized sides.
func ValidSide(side string) bool {
	return IsOpeningSide(side) || IsClosingSide(side)
}
