// Package reports exposes the time-windowed read-only view over orders,
// fills and the position summary.
package reports

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/tradesim/paper-api/internal/ledger"
	"github.com/tradesim/paper-api/internal/money"
	"github.com/tradesim/paper-api/internal/types"
	"github.com/tradesim/paper-api/pkg/response"
)

// Report kinds.
const (
	KindOrders    = "orders"
	KindFills     = "fills"
	KindPositions = "positions"
	KindAll       = "all"
)

// Service answers report queries from the audit log and the ledger.
type Service struct {
	db   *Database
	book *ledger.Book
}

// NewService creates a report service over the given store and ledger.
func NewService(gormDB *gorm.DB, book *ledger.Book) *Service {
	return &Service{
		db:   NewDatabase(gormDB),
		book: book,
	}
}

// Query returns the report for the inclusive window [from, to]. kind
// selects which sections are included. The total realized figure always
// covers every ledger entry's full history, regardless of the window.
func (s *Service) Query(from, to int64, kind string) (*types.ReportResponse, error) {
	result := &types.ReportResponse{
		From:          from,
		To:            to,
		TotalRealized: money.FromMinorDefault(s.book.TotalRealized()),
	}

	var err error
	switch kind {
	case KindOrders:
		result.Orders, err = s.db.OrdersInWindow(from, to)
	case KindFills:
		result.Fills, err = s.db.FillsInWindow(from, to)
	case KindPositions:
		result.Positions = s.positions()
	case KindAll, "":
		if result.Orders, err = s.db.OrdersInWindow(from, to); err != nil {
			return nil, err
		}
		if result.Fills, err = s.db.FillsInWindow(from, to); err != nil {
			return nil, err
		}
		result.Positions = s.positions()
	default:
		return nil, fmt.Errorf("unknown report type %q", kind)
	}
	if err != nil {
		return nil, err
	}

	return result, nil
}

// positions renders the ledger summary in stable key order.
func (s *Service) positions() []types.Position {
	summary := s.book.Summary()

	out := make([]types.Position, 0, len(summary))
	for _, key := range s.book.SortedKeys() {
		pos := summary[key]
		venue, symbol, _ := strings.Cut(key, ":")
		out = append(out, types.Position{
			Venue:        venue,
			Symbol:       symbol,
			Quantity:     pos.Quantity,
			AveragePrice: money.FromMinorDefault(pos.AveragePriceMinor),
		})
	}
	return out
}

// GinHandlers contains HTTP handlers for report queries.
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates the report endpoint handlers.
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// QueryHandler handles GET requests for reports. Query parameters: from
// and to as epoch milliseconds (defaulting to 0 and now), type as one of
// orders, fills, positions or all.
func (h *GinHandlers) QueryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		from, err := windowParam(c, "from", 0)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		to, err := windowParam(c, "to", time.Now().UnixMilli())
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		kind := c.DefaultQuery("type", KindAll)
		result, err := h.service.Query(from, to, kind)
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		response.Success(c, result)
	}
}

func windowParam(c *gin.Context, name string, fallback int64) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter: %s", name, raw)
	}
	return value, nil
}
