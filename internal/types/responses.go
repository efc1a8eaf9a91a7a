package types

// SubmitResponse is returned by the order submission endpoint: the recorded
// order together with its paper fill.
type SubmitResponse struct {
	Order *Order `json:"order"`
	Fill  *Fill  `json:"fill"`
}

// Position is one entry of the position summary: remaining open quantity
// and the volume-weighted average acquisition price as a decimal string.
type Position struct {
	Venue        string  `json:"venue"`
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AveragePrice string  `json:"average_price"`
}

// ReportResponse is the reports endpoint payload. Orders, fills and
// positions are present depending on the requested report type.
// TotalRealized is the all-time realized P/L across every ledger entry,
// rendered from minor units; it is not filtered by the query window.
type ReportResponse struct {
	From          int64      `json:"from"`
	To            int64      `json:"to"`
	Orders        []Order    `json:"orders,omitempty"`
	Fills         []Fill     `json:"fills,omitempty"`
	Positions     []Position `json:"positions,omitempty"`
	TotalRealized string     `json:"total_realized"`
}

// ModeResponse reports the advisory execution mode per venue group.
type ModeResponse struct {
	Crypto string `json:"crypto"`
	Stocks string `json:"stocks"`
}
