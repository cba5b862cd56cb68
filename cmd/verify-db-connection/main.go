package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/kimtwitch/object-sync-for-salesforce/internal/config"

	_ "github.com/lib/pq"
)

// Verifies the database DSN and checks that the sync tables exist, using
// plain database/sql so it works before the server has ever migrated.
func main() {
	fmt.Println("Verifying database connection...")

	if err := config.LoadConfig(os.Getenv("CONFIG_PATH")); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	sqlDB, err := sql.Open("postgres", config.AppConfig.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	var dbName string
	if err := sqlDB.QueryRow("SELECT current_database()").Scan(&dbName); err != nil {
		log.Fatalf("Failed to get database name: %v", err)
	}
	fmt.Printf("Connected to database: %s\n", dbName)

	tables := []string{"fieldmaps", "object_maps", "transients", "sync_events", "settings"}
	for _, table := range tables {
		var exists bool
		err := sqlDB.QueryRow(`
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = 'public' AND table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil {
			log.Fatalf("Failed to check table %s: %v", table, err)
		}
		if exists {
			var count int64
			if err := sqlDB.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&count); err != nil {
				log.Fatalf("Failed to count rows in %s: %v", table, err)
			}
			fmt.Printf("  %-12s present (%d rows)\n", table, count)
		} else {
			fmt.Printf("  %-12s missing (run the server once to migrate)\n", table)
		}
	}

	fmt.Println("Database verification complete")
}
