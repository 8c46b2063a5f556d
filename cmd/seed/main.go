package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/stockfolio/stockfolio/internal/config"
	"github.com/stockfolio/stockfolio/internal/db"
)

// demoPassword is the shared login password for all seeded demo accounts.
const demoPassword = "password"

func demoPasswordHash() (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type seedTrade struct {
	symbol string
	name   string
	shares int64
	price  decimal.Decimal
}

// Seed the database with the schema and demo accounts
func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(ctx)

	// Apply the schema if not already applied
	migration, err := os.ReadFile("migrations/001_init.sql")
	if err != nil {
		log.Fatalf("Failed to read migration: %v", err)
	}
	if _, err := database.Pool.Exec(ctx, string(migration)); err != nil &&
		!strings.Contains(err.Error(), "already exists") {
		log.Fatalf("Failed to apply migration: %v", err)
	}

	demoHash, err := demoPasswordHash()
	if err != nil {
		log.Fatalf("Failed to hash demo password: %v", err)
	}

	seeds := map[string][]seedTrade{
		"trader1": {
			{symbol: "NVDA", name: "NVIDIA Corporation", shares: 10, price: decimal.NewFromInt(100)},
			{symbol: "AAPL", name: "Apple Inc.", shares: 5, price: decimal.NewFromFloat(180.50)},
		},
		"trader2": {
			{symbol: "MSFT", name: "Microsoft Corporation", shares: 8, price: decimal.NewFromFloat(410.25)},
		},
	}

	for username, trades := range seeds {
		user, err := database.CreateUser(ctx, username, demoHash)
		if err != nil {
			if errors.Is(err, db.ErrDuplicateUsername) {
				fmt.Printf("User %s already exists, skipping\n", username)
				continue
			}
			log.Fatalf("Failed to create user %s: %v", username, err)
		}

		// Booking seed positions through ExecuteTrade keeps cash, holdings,
		// and history consistent with each other.
		for _, t := range trades {
			if _, err := database.ExecuteTrade(ctx, user.ID, t.symbol, t.name, t.shares, t.price); err != nil {
				log.Fatalf("Failed to seed trade for %s: %v", username, err)
			}
		}
		fmt.Printf("Seeded user %s with %d positions\n", username, len(trades))
	}

	fmt.Println("Successfully seeded the database!")
}
