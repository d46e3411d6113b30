package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	"github.com/xtrntr/papertrade/internal/apperr"
	"github.com/xtrntr/papertrade/internal/auth"
	"github.com/xtrntr/papertrade/internal/config"
	"github.com/xtrntr/papertrade/internal/db"
	"github.com/xtrntr/papertrade/internal/models"
)

// demoPassword is shared by every seeded account
const demoPassword = "password123"

var demoUsers = []struct {
	username   string
	experience string
	profit     string
}{
	{"trader1", "beginner", "120.50"},
	{"trader2", "beginner", "-42.10"},
	{"trader3", "beginner", "0.00"},
	{"analyst1", "intermediate", "870.00"},
	{"analyst2", "intermediate", "310.25"},
	{"quant1", "expert", "5400.00"},
	{"quant2", "expert", "5400.00"},
}

// Seed the database with demo users and leaderboard profits
func main() {
	if err := run(context.Background()); err != nil {
		slog.Error("Seed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if errors.Is(err, config.ErrMissingAPIKey) {
		// seeding never calls the quote provider
		cfg, err = config.FromEnv(func(key string) string {
			if key == "FINNHUB_API_KEY" {
				return "unused"
			}
			return os.Getenv(key)
		})
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	database, err := db.NewDB(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(ctx)

	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate: %w", err)
	}

	authService := auth.NewAuthService(database, nil, cfg.StartingCash)

	created := 0
	for _, u := range demoUsers {
		user, err := authService.Register(ctx, u.username, demoPassword, u.experience)
		switch {
		case errors.Is(err, apperr.ErrDuplicateUsername):
			user, err = database.UserByUsername(ctx, u.username)
			if err != nil {
				return fmt.Errorf("failed to get %s: %w", u.username, err)
			}
		case err != nil:
			return fmt.Errorf("failed to create %s: %w", u.username, err)
		default:
			created++
		}

		if err := setProfit(ctx, database, user, u.profit); err != nil {
			return err
		}
	}

	fmt.Printf("Seeded %d demo users (%d new). Password for all: %s\n", len(demoUsers), created, demoPassword)
	return nil
}

func setProfit(ctx context.Context, database *db.DB, user *models.User, profit string) error {
	p, err := decimal.NewFromString(profit)
	if err != nil {
		return fmt.Errorf("bad profit %q for %s: %w", profit, user.Username, err)
	}
	if err := database.SetProfit(ctx, user.ID, p); err != nil {
		return fmt.Errorf("failed to set profit for %s: %w", user.Username, err)
	}
	return nil
}
