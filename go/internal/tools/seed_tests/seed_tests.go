package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mcdev12/prepaired/go/internal/catalog"
	"github.com/mcdev12/prepaired/go/internal/dbconfig"
)

// Upserts the mock tests of a catalog file into mock_tests so the postgres
// catalog driver serves the same durations as the file driver.
func main() {
	path := "catalog.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the catalog file
	fileCatalog, err := catalog.LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load catalog: %v\n", err)
		os.Exit(1)
	}
	tests := fileCatalog.Tests()

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Upsert and count
	var (
		total    = len(tests)
		upserted int
		errs     int
	)

	for _, t := range tests {
		_, err := pool.Exec(ctx, `
            INSERT INTO mock_tests (id, name, duration_seconds)
            VALUES ($1, $2, $3)
            ON CONFLICT (id) DO UPDATE
              SET name = EXCLUDED.name,
                  duration_seconds = EXCLUDED.duration_seconds
        `, t.ID, t.Name, t.DurationSeconds)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error upserting mock test %s: %v\n", t.ID, err)
			errs++
			continue
		}
		upserted++
	}

	// 4) Wake gateways listening for catalog changes
	if upserted > 0 {
		if _, err := pool.Exec(ctx, `SELECT pg_notify($1, '')`, getEnv("CATALOG_NOTIFY_CHANNEL", "mock_tests_changed")); err != nil {
			fmt.Fprintf(os.Stderr, "notify: %v\n", err)
		}
	}

	fmt.Printf(
		"Mock tests seed complete: %d total, %d upserted, %d errors\n",
		total, upserted, errs,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
