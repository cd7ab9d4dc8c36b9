package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/travelhub/booking-backend/internal/config"
	"github.com/travelhub/booking-backend/internal/database"
)

// tables are listed children first so the row counts read naturally
var tables = []string{
	"audit_logs",
	"refresh_tokens",
	"bookings",
	"trips",
	"users",
}

func main() {
	var dbURLFlag string
	var keepUsers bool
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.BoolVar(&keepUsers, "keep-users", false, "Keep user accounts and their refresh tokens")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	// Build minimal database config without loading full app config
	db, err := database.NewConnection(config.DatabaseConfig{
		URL:                dbURL,
		Driver:             os.Getenv("DATABASE_DRIVER"),
		MaxConnections:     5,
		MaxIdleConnections: 2,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	targets := tables
	if keepUsers {
		targets = []string{"audit_logs", "bookings", "trips"}
	}

	fmt.Printf("Connected to database. Truncating %v...\n", targets)

	truncateSQL := "TRUNCATE TABLE "
	for i, t := range targets {
		if i > 0 {
			truncateSQL += ", "
		}
		truncateSQL += t
	}
	truncateSQL += " RESTART IDENTITY CASCADE"

	if _, err := db.Exec(truncateSQL); err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	fmt.Println("Data cleared successfully (tables truncated, identities reset).")

	fmt.Println("Post-clear row counts:")
	for _, t := range tables {
		var count int
		if err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", t)).Scan(&count); err != nil {
			fmt.Printf("  %s: error: %v\n", t, err)
			continue
		}
		fmt.Printf("  %s: %d\n", t, count)
	}
}
