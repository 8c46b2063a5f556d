package main

import (
	"context"
	"log"
	"net/http"

	"github.com/stockfolio/stockfolio/internal/api"
	"github.com/stockfolio/stockfolio/internal/auth"
	"github.com/stockfolio/stockfolio/internal/config"
	"github.com/stockfolio/stockfolio/internal/db"
	"github.com/stockfolio/stockfolio/internal/engine"
	"github.com/stockfolio/stockfolio/internal/quotes"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.LogFile == "" {
		return zap.NewProduction()
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}),
		zapcore.InfoLevel,
	)
	return zap.New(core), nil
}

// Main entry point: sets up database, quote client, engine, and HTTP server
func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	// Initialize database connection
	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		sugar.Fatalw("failed to connect to database", "error", err)
	}
	defer database.Close(ctx)

	// Initialize quote provider client
	quoteClient := quotes.NewClient(cfg.QuoteURL, cfg.QuoteAPIKey, cfg.QuoteTimeout)

	// Initialize trading engine and auth service
	eng := engine.New(database, quoteClient, sugar)
	authService := auth.NewAuthService(database, cfg.JWTSecret)

	// Initialize API handlers
	handler := api.NewHandler(eng, authService, sugar)

	// Set up HTTP router
	r := chi.NewRouter()

	// Enable CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public endpoints
	r.Post("/auth/register", handler.Register)
	r.Post("/auth/login", handler.Login)

	// WebSocket portfolio stream (token authenticated via query string)
	r.Get("/ws", handler.PortfolioStream)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(handler.JWTAuthMiddleware)
		r.Get("/portfolio", handler.GetPortfolio)
		r.Get("/quote", handler.GetQuote)
		r.Post("/buy", handler.Buy)
		r.Post("/sell", handler.Sell)
		r.Get("/history", handler.GetHistory)
	})

	// Start server
	sugar.Infow("starting server", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, r); err != nil {
		sugar.Fatalw("server failed", "error", err)
	}
}
