package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tradesim/paper-api/internal/auth"
	"github.com/tradesim/paper-api/internal/database"
	"github.com/tradesim/paper-api/internal/ledger"
	"github.com/tradesim/paper-api/internal/quotes"
	"github.com/tradesim/paper-api/internal/reports"
	"github.com/tradesim/paper-api/internal/stream"
	"github.com/tradesim/paper-api/internal/trading"
	"github.com/tradesim/paper-api/internal/types"
	"github.com/tradesim/paper-api/pkg/middleware"
)

const (
	minOrders     = 15
	maxOrders     = 150
	numWorkers    = 5
	serverAddress = "http://localhost:8080"
	streamAddress = "ws://localhost:8080/api/v1/stream"
)

var venueSymbols = map[string][]string{
	types.VenueCrypto: {"BTC", "ETH", "SOL"},
	types.VenueStock:  {"AAPL", "GOOGL", "MSFT", "AMZN", "META"},
}

var sides = []string{types.SideBuy, types.SideSell, types.SideShort, types.SideCover}

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the trading API
type simulationClient struct {
	baseURL   string
	authToken string
	client    *http.Client
	stats     map[string]*routeStats
}

// newSimulationClient creates and initializes a new simulation client
// It authenticates with the API and prepares performance tracking
func newSimulationClient() (*simulationClient, error) {
	client := &http.Client{
		Timeout: 10 * time.Second,
	}

	sc := &simulationClient{
		baseURL: serverAddress,
		client:  client,
		stats: map[string]*routeStats{
			"auth":   {name: "Authentication"},
			"submit": {name: "Submit Order"},
			"report": {name: "Report Query"},
		},
	}

	token, err := sc.authenticate()
	if err != nil {
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	sc.authToken = token

	return sc, nil
}

// authenticate performs API authentication and returns a JWT token
func (sc *simulationClient) authenticate() (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	credentials := map[string]string{
		"api_key":    auth.DemoAPIKey,
		"api_secret": auth.DemoAPISecret,
	}

	body, err := json.Marshal(credentials)
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Data struct {
			Token string `json:"jwt_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.Token, nil
}

// submitOrder submits a new order to the API
// Returns the resulting fill on success
func (sc *simulationClient) submitOrder(req trading.SubmitRequest) (*types.SubmitResponse, error) {
	start := time.Now()
	defer func() {
		sc.stats["submit"].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(
		http.MethodPost,
		fmt.Sprintf("%s/api/v1/orders", sc.baseURL),
		bytes.NewBuffer(body),
	)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().Str("response", string(respBody)).Msg("Submit order response")

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		sc.stats["submit"].failures++
		return nil, fmt.Errorf("submit order failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool                 `json:"success"`
		Data    types.SubmitResponse `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	if result.Data.Order == nil || result.Data.Order.OrderID == "" {
		return nil, fmt.Errorf("no order ID in response: %s", string(respBody))
	}

	return &result.Data, nil
}

// queryReport fetches the full report for the simulation run
func (sc *simulationClient) queryReport(from int64) (*types.ReportResponse, error) {
	start := time.Now()
	defer func() {
		sc.stats["report"].addDuration(time.Since(start))
	}()

	req, err := http.NewRequest(
		http.MethodGet,
		fmt.Sprintf("%s/api/v1/reports?from=%d&type=all", sc.baseURL, from),
		nil,
	)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", sc.authToken))

	resp, err := sc.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		sc.stats["report"].failures++
		return nil, fmt.Errorf("report query failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var result struct {
		Success bool                 `json:"success"`
		Data    types.ReportResponse `json:"data"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}

	return &result.Data, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// watchStream subscribes to a handful of keys over the websocket endpoint
// and counts the frames pushed during the simulation
func watchStream(done <-chan struct{}, counts *streamCounts) {
	conn, _, err := websocket.DefaultDialer.Dial(streamAddress, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open stream connection")
		return
	}
	defer conn.Close()

	subscribe := map[string]interface{}{
		"type": "subscribe",
		"items": []map[string]string{
			{"venue": "crypto", "symbol": "BTC"},
			{"venue": "stock", "symbol": "AAPL"},
		},
	}
	if err := conn.WriteJSON(subscribe); err != nil {
		log.Error().Err(err).Msg("Failed to send subscribe message")
		return
	}

	go func() {
		<-done
		conn.Close()
	}()

	for {
		var frame struct {
			Type string `json:"type"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}

		counts.mu.Lock()
		switch frame.Type {
		case "subscribed":
			counts.acks++
		case "tick":
			counts.ticks++
		case "error":
			counts.errors++
		}
		counts.mu.Unlock()
	}
}

type streamCounts struct {
	mu     sync.Mutex
	acks   int
	ticks  int
	errors int
}

// main runs the paper trading simulation
// It starts a local API server, streams prices for a couple of keys, and
// submits randomized orders from concurrent workers
func main() {
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	simClient, err := newSimulationClient()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize simulation client")
	}

	simStart := time.Now().UnixMilli()

	// Watch the price stream while orders flow.
	streamDone := make(chan struct{})
	counts := &streamCounts{}
	go watchStream(streamDone, counts)

	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().Int("target_orders", targetOrders).Msg("Starting simulation")

	stats := struct {
		TotalFills   int
		FailedOrders int
		Symbols      map[string]int
		Sides        map[string]int
		mu           sync.Mutex
	}{
		Symbols: make(map[string]int),
		Sides:   make(map[string]int),
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for j := 0; j < targetOrders/numWorkers; j++ {
				venue := types.VenueCrypto
				if rand.Intn(2) == 0 {
					venue = types.VenueStock
				}
				symbols := venueSymbols[venue]

				req := trading.SubmitRequest{
					Venue:    venue,
					Symbol:   symbols[rand.Intn(len(symbols))],
					Side:     sides[rand.Intn(len(sides))],
					Quantity: float64(rand.Intn(100) + 1),
				}

				result, err := simClient.submitOrder(req)
				if err != nil {
					log.Error().Err(err).
						Int("worker_id", workerID).
						Str("symbol", req.Symbol).
						Msg("Failed to submit order")
					stats.mu.Lock()
					stats.FailedOrders++
					stats.mu.Unlock()
					continue
				}

				stats.mu.Lock()
				stats.TotalFills++
				stats.Symbols[req.Symbol]++
				stats.Sides[req.Side]++
				stats.mu.Unlock()

				log.Info().
					Int("worker_id", workerID).
					Str("order_id", result.Order.OrderID).
					Str("symbol", req.Symbol).
					Str("side", req.Side).
					Float64("price", result.Fill.Price).
					Str("fee", result.Fill.Fee).
					Str("realized_pl", result.Fill.RealizedPL).
					Msg("Order filled")

				time.Sleep(time.Duration(rand.Intn(500)) * time.Millisecond)
			}
		}(i)
	}

	wg.Wait()

	// Leave the stream open long enough for a few more broadcast ticks.
	time.Sleep(4 * time.Second)
	close(streamDone)

	report, err := simClient.queryReport(simStart)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to query report")
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("PAPER TRADING SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Printf(`
Order Statistics
----------------
Filled Orders:    %d
Failed Orders:    %d
Reported Orders:  %d
Reported Fills:   %d
Open Positions:   %d
Total Realized:   %s

Stream Statistics
-----------------
Acks:             %d
Tick Frames:      %d
Error Frames:     %d

Symbol Distribution
-------------------
`, stats.TotalFills, stats.FailedOrders, len(report.Orders), len(report.Fills),
		len(report.Positions), report.TotalRealized,
		counts.acks, counts.ticks, counts.errors)

	maxSymbolCount := 0
	for _, count := range stats.Symbols {
		if count > maxSymbolCount {
			maxSymbolCount = count
		}
	}
	for symbol, count := range stats.Symbols {
		barLength := int(float64(count) / float64(maxSymbolCount) * 20)
		fmt.Printf("%-6s: %s (%d)\n", symbol, strings.Repeat("#", barLength), count)
	}

	fmt.Println("\nSide Distribution")
	fmt.Println("-----------------")
	for side, count := range stats.Sides {
		barLength := int(float64(count) / float64(stats.TotalFills) * 20)
		fmt.Printf("%-5s: %s (%d)\n", side, strings.Repeat("#", barLength), count)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))

	simClient.printPerformanceStats()
}

// startServer initializes and starts the trading API server
// Sets up all required services, handlers and routes with the simulated
// quote feed
func startServer() error {
	db, err := database.NewDatabase(":memory:")
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	fx := quotes.NewFxCache("", "EUR")
	source := quotes.NewSimSource(time.Now().UnixNano(), fx)
	book := ledger.NewBook()

	authService := auth.NewService("paper-secret-key")
	authService.RegisterAPICredentials(auth.DemoAPIKey, auth.DemoAPISecret)

	tradingService := trading.NewService(db, book, source, trading.NewModes())
	reportService := reports.NewService(db, book)

	registry := stream.NewRegistry()
	hub := stream.NewHub(registry)
	scheduler := stream.NewScheduler(registry, source, hub, time.Second)
	go scheduler.Start(context.Background())

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	authHandlers := auth.NewGinHandlers(authService)
	tradingHandlers := trading.NewGinHandlers(tradingService)
	reportHandlers := reports.NewGinHandlers(reportService)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/token", authHandlers.GenerateTokenHandler())
		v1.GET("/stream", func(c *gin.Context) {
			hub.HandleConn(c.Writer, c.Request)
		})

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth("paper-secret-key"))
		{
			protected.POST("/orders", tradingHandlers.SubmitOrderHandler())
			protected.GET("/reports", reportHandlers.QueryHandler())
		}
	}

	return router.Run(":8080")
}
