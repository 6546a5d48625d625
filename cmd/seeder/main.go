// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/unclebandit/retention-backend/internal/config"
	"github.com/unclebandit/retention-backend/internal/db"
	"github.com/unclebandit/retention-backend/internal/middleware"
	"github.com/unclebandit/retention-backend/internal/model"
	"github.com/unclebandit/retention-backend/internal/repository"
)

var demoCustomers = []model.Customer{
	{Name: "Amina Otieno", Email: "amina@example.com", Phone: "+254700000001"},
	{Name: "Brian Mwangi", Email: "brian@example.com", Phone: "+254700000002"},
	{Name: "Carol Njeri", Email: "carol@example.com"},
	{Name: "David Kiprop", Phone: "+254700000004"},
}

var demoCampaigns = []model.Campaign{
	{Name: "Spring Sale", Type: "promotional", Message: "Hi {name}, everything is 20% off this week.", Channel: model.ChannelEmail},
	{Name: "We Miss You", Type: "win_back", Message: "Hi {name}, come back for a free delivery.", Channel: model.ChannelSMS},
	{Name: "Loyalty Points", Type: "loyalty", Message: "Hi {name}, your points are waiting.", Channel: model.ChannelWhatsApp},
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}
	userID := flag.String("user", "demo-user", "owner of the seeded rows")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()

	customers, campaigns, err := seed(ctx,
		&repository.CustomerRepository{DB: conn},
		&repository.CampaignRepository{DB: conn},
		*userID,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("seeding failed")
	}
	log.Info().Int("customers", customers).Int("campaigns", campaigns).Str("user_id", *userID).Msg("database seeding completed")

	if cfg.Auth.JWTSecret != "" {
		token, err := middleware.GenerateToken(cfg.Auth.JWTSecret, *userID, 24*time.Hour)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to sign demo token")
		}
		fmt.Println(token)
	}
}

// seed inserts the demo rows for userID and returns how many of each were written.
func seed(ctx context.Context, customers repository.CustomerRepositoryInterface, campaigns repository.CampaignRepositoryInterface, userID string) (int, int, error) {
	for _, c := range demoCustomers {
		c.UserID = userID
		if err := customers.Create(ctx, &c); err != nil {
			return 0, 0, fmt.Errorf("seed customer %s: %w", c.Name, err)
		}
	}
	for _, c := range demoCampaigns {
		c.UserID = userID
		if err := campaigns.Create(ctx, &c); err != nil {
			return len(demoCustomers), 0, fmt.Errorf("seed campaign %s: %w", c.Name, err)
		}
	}
	return len(demoCustomers), len(demoCampaigns), nil
}
