package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/gin-gonic/gin"

	"github.com/tradesim/paper-api/internal/auth"
	"github.com/tradesim/paper-api/internal/database"
	"github.com/tradesim/paper-api/internal/ledger"
	"github.com/tradesim/paper-api/internal/quotes"
	"github.com/tradesim/paper-api/internal/reports"
	"github.com/tradesim/paper-api/internal/stream"
	"github.com/tradesim/paper-api/internal/trading"
	"github.com/tradesim/paper-api/pkg/middleware"
)

// init configures logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func envOr(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		zlog.Warn().Str("var", name).Str("value", raw).Msg("invalid duration, using default")
		return fallback
	}
	return d
}

// main initializes and runs the paper trading server with graceful
// shutdown support: database, ledger, quote sources, streaming hub and
// broadcast scheduler, and the API routes.
func main() {
	db, err := database.NewDatabase(envOr("DB_PATH", "paper.db"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// FX refresher: stale-but-available rate cache.
	fx := quotes.NewFxCache(os.Getenv("FX_URL"), envOr("FX_CURRENCY", "EUR"))

	// Quote source: upstream HTTP providers when configured, otherwise the
	// built-in simulated feed.
	var source quotes.Source
	if os.Getenv("QUOTE_CRYPTO_URL") != "" || os.Getenv("QUOTE_STOCK_URL") != "" {
		source = quotes.NewHTTPSource(quotes.HTTPConfig{
			CryptoURL: os.Getenv("QUOTE_CRYPTO_URL"),
			StockURL:  os.Getenv("QUOTE_STOCK_URL"),
			StockKey:  os.Getenv("QUOTE_STOCK_KEY"),
		}, fx)
	} else {
		zlog.Info().Msg("no upstream quote providers configured, using simulated feed")
		source = quotes.NewSimSource(time.Now().UnixNano(), fx)
	}

	// Trading state: the ledger book is the single owned mutable state.
	book := ledger.NewBook()
	modes := trading.NewModes()

	jwtSecret := envOr("JWT_SECRET", "paper-secret-key")
	authService := auth.NewService(jwtSecret)
	authService.RegisterAPICredentials(auth.DemoAPIKey, auth.DemoAPISecret)
	authHandlers := auth.NewGinHandlers(authService)

	tradingService := trading.NewService(db, book, source, modes)
	tradingHandlers := trading.NewGinHandlers(tradingService)

	reportService := reports.NewService(db, book)
	reportHandlers := reports.NewGinHandlers(reportService)

	registry := stream.NewRegistry()
	hub := stream.NewHub(registry)
	scheduler := stream.NewScheduler(registry, source, hub, envDuration("BROADCAST_INTERVAL", 3*time.Second))

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go scheduler.Start(workerCtx)
	go fx.Start(workerCtx, envDuration("FX_INTERVAL", 5*time.Minute))

	router := gin.Default()
	router.Use(middleware.RateLimit())
	setupRoutes(router, jwtSecret, authHandlers, tradingHandlers, reportHandlers, hub)

	srv := &http.Server{
		Addr:    ":" + envOr("PORT", "8080"),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")
	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures all API endpoints:
// - Auth routes: public token endpoint
// - Order/mode/report routes: protected by JWT authentication
// - Stream route: public websocket endpoint for price subscriptions
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	tradingHandlers *trading.GinHandlers,
	reportHandlers *reports.GinHandlers,
	hub *stream.Hub,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(jwtSecret))
		{
			protected.POST("/orders", tradingHandlers.SubmitOrderHandler())
			protected.GET("/modes", tradingHandlers.GetModesHandler())
			protected.PUT("/modes", tradingHandlers.SetModesHandler())
			protected.GET("/reports", reportHandlers.QueryHandler())
		}

		v1.GET("/stream", func(c *gin.Context) {
			hub.HandleConn(c.Writer, c.Request)
		})
	}
}
