package trading

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tradesim/paper-api/internal/auth"
	"github.com/tradesim/paper-api/internal/ledger"
	"github.com/tradesim/paper-api/internal/money"
	"github.com/tradesim/paper-api/internal/quotes"
	"github.com/tradesim/paper-api/internal/types"
	"github.com/tradesim/paper-api/pkg/response"
)

// FeeRate is the flat fee schedule: 0.0005 of notional per order,
// independent of the bid/ask spread already embedded in the quote.
const FeeRate = 0.0005

// ValidationError marks a submission rejected before any engine work.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return "missing or invalid field: " + e.Field
}

// SubmitRequest is the order submission payload.
type SubmitRequest struct {
	Venue    string  `json:"venue"`
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
}

// Service is the paper fill engine: it turns an order intent plus the
// current quote into a fill against the ledger.
type Service struct {
	db     *Database
	book   *ledger.Book
	source quotes.Source
	modes  *Modes
}

// NewService creates a trading service. The ledger book and quote source
// are injected so tests run against fresh state.
func NewService(gormDB *gorm.DB, book *ledger.Book, source quotes.Source, modes *Modes) *Service {
	return &Service{
		db:     NewDatabase(gormDB),
		book:   book,
		source: source,
		modes:  modes,
	}
}

// validate checks the four required fields. The HTTP layer rejects on the
// returned error before the engine touches any state.
func validate(req SubmitRequest) error {
	switch {
	case req.Venue == "":
		return &ValidationError{Field: "venue"}
	case req.Symbol == "":
		return &ValidationError{Field: "symbol"}
	case !types.ValidSide(req.Side):
		return &ValidationError{Field: "side"}
	// Inverted comparison so NaN fails validation too.
	case !(req.Quantity > 0) || math.IsInf(req.Quantity, 0):
		return &ValidationError{Field: "quantity"}
	}
	return nil
}

// Submit executes an order intent on paper:
//  1. validate the request,
//  2. fetch the current quote (quote failures propagate untouched; no
//     retry here),
//  3. compute the flat notional fee,
//  4. open or close lots on the ledger,
//  5. record the order and fill in the append-only log.
//
// The quote fetch happens before the ledger lock is taken; a failed fetch
// leaves every piece of state untouched.
func (s *Service) Submit(ctx context.Context, clientID string, req SubmitRequest) (*types.SubmitResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	logger := log.With().
		Str("service", "trading").
		Str("venue", req.Venue).
		Str("symbol", req.Symbol).
		Str("side", req.Side).
		Float64("quantity", req.Quantity).
		Logger()

	quote, err := s.source.GetPrice(ctx, req.Venue, req.Symbol)
	if err != nil {
		logger.Warn().Err(err).Msg("quote fetch failed, order rejected")
		return nil, err
	}

	now := time.Now().UnixMilli()
	key := ledger.Key(req.Venue, req.Symbol)
	priceMinor := money.ToMinorDefault(quote.Price)
	feeMinor := money.MulToMinor(quote.Price, req.Quantity, FeeRate, money.DefaultPlaces)

	var realizedMinor int64
	if types.IsOpeningSide(req.Side) {
		s.book.ApplyOpen(key, req.Quantity, priceMinor, feeMinor)
	} else {
		realizedMinor = s.book.ApplyClose(key, req.Quantity, priceMinor, feeMinor)
	}

	order := &types.Order{
		OrderID:   uuid.New().String(),
		ClientID:  clientID,
		Venue:     req.Venue,
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Price:     quote.Price,
		Mode:      s.modes.ForVenue(req.Venue),
		Timestamp: now,
	}
	fill := &types.Fill{
		FillID:     uuid.New().String(),
		OrderID:    order.OrderID,
		Venue:      req.Venue,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Price:      quote.Price,
		Fee:        money.FromMinorDefault(feeMinor),
		RealizedPL: money.FromMinorDefault(realizedMinor),
		Timestamp:  now,
	}

	// The ledger already holds the fill; a failed audit write is logged
	// rather than surfaced as a partial failure.
	if err := s.db.RecordFill(order, fill); err != nil {
		logger.Error().Err(err).Str("order_id", order.OrderID).Msg("failed to persist order and fill")
	}

	logger.Info().
		Str("order_id", order.OrderID).
		Float64("price", quote.Price).
		Str("fee", fill.Fee).
		Str("realized_pl", fill.RealizedPL).
		Msg("order filled on paper")

	return &types.SubmitResponse{Order: order, Fill: fill}, nil
}

// GinHandlers contains HTTP handlers for order submission and mode flags.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates the trading endpoint handlers.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// SubmitOrderHandler handles POST requests to submit orders.
// Missing required fields are rejected before any engine call; quote
// failures map to an upstream error status.
func (h *GinHandlers) SubmitOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		claims, _ := c.Get("claims")
		clientID := auth.GetClientID(claims)

		result, err := h.service.Submit(c.Request.Context(), clientID, req)
		var vErr *ValidationError
		switch {
		case errors.As(err, &vErr):
			response.BadRequest(c, vErr.Error())
		case errors.Is(err, quotes.ErrQuoteUnavailable):
			response.BadGateway(c, err.Error())
		default:
			response.Handle(c, result, err)
		}
	}
}

// GetModesHandler handles GET requests for the execution mode flags.
func (h *GinHandlers) GetModesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.service.modes.Get())
	}
}

// SetModesHandler handles PUT requests updating the execution mode flags.
// Modes are advisory only; the engine fills on paper regardless.
func (h *GinHandlers) SetModesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req types.ModeResponse
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		if err := h.service.modes.Set(req.Crypto, req.Stocks); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		response.Success(c, h.service.modes.Get())
	}
}
