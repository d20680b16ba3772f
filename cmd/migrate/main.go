package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"ms-enrollment/internal/config"
	"ms-enrollment/internal/database/migrations"
	"ms-enrollment/internal/logger"
	"ms-enrollment/internal/models"
	"ms-enrollment/internal/order/db"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

func main() {
	action := flag.String("action", "up", "up | down | to | seed")
	version := flag.Uint("version", 0, "target version for -action=to")
	flag.Parse()

	log := logger.NewLogger()
	defer log.Close()

	_ = godotenv.Load()
	cfg := config.Load()
	if cfg.Database.DSN == "" {
		log.Fatal("CONFIG", "POSTGRES_DSN not set")
	}

	if *action == "seed" {
		if err := seed(cfg.Database.DSN, log); err != nil {
			log.Fatal("DATABASE", fmt.Sprintf("Seeding failed: %v", err))
		}
		return
	}

	runner := migrations.NewRunner(cfg.Database.DSN, log)
	defer runner.Close()

	var err error
	switch *action {
	case "up":
		err = runner.MigrateUp()
	case "down":
		err = runner.MigrateDown()
	case "to":
		err = runner.MigrateTo(*version)
	default:
		fmt.Fprintf(os.Stderr, "unknown action %q\n", *action)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal("DATABASE", err.Error())
	}
	log.Info("DATABASE", fmt.Sprintf("Migration %q done", *action))
}

// seed loads demo buyers for local development.
func seed(dsn string, log *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	bunDB := bun.NewDB(sqldb, pgdialect.New())
	defer bunDB.Close()
	store := &db.DB{Bun: bunDB}

	now := time.Now().UTC()
	profiles := []models.Profile{
		{UserID: "demo-email-buyer", FullName: "Demo Email Buyer", AuthProvider: models.AuthProviderEmail, CreatedAt: now},
		{UserID: "demo-push-buyer", FullName: "Demo Push Buyer", AuthProvider: models.AuthProviderPush, PushChannelID: "U-demo", CreatedAt: now},
	}
	for i := range profiles {
		if err := store.UpsertProfile(ctx, &profiles[i]); err != nil {
			return fmt.Errorf("seed %s: %w", profiles[i].UserID, err)
		}
		log.LogDatabase("SEED", "profiles", fmt.Sprintf("%s → student #%d", profiles[i].UserID, profiles[i].StudentID))
	}
	return nil
}
