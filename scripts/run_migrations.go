package main

import (
	"log"
	"os"

	"github.com/safar/fashion-store/internal/config"
	"github.com/safar/fashion-store/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}

	direction := database.MigrateDirection(os.Args[1])
	if direction != database.MigrateUp && direction != database.MigrateDown {
		log.Fatal("Direction must be 'up' or 'down'")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db, cfg.Database.MigrationsPath, direction); err != nil {
		log.Fatalf("Migrate %s: %v", direction, err)
	}

	log.Printf("Migrations %s completed", direction)
}
