// Command seed runs the bulk import against the configured database and
// exits. It shares the importer with the api startup path, including the
// skip-if-nonempty guard.
package main

import (
	"context"
	"database/sql"
	"flag"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"example.com/checkin/internal/config"
	"example.com/checkin/internal/importer"
	persistence "example.com/checkin/internal/persistence/postgres"
	"example.com/checkin/internal/persistence/postgres/migrations"
)

func main() {
	datasetPath := flag.String("dataset", "", "path to the JSON dataset (defaults to DATASET_PATH)")
	flag.Parse()

	cfg := config.Load()
	path := *datasetPath
	if path == "" {
		path = cfg.DatasetPath
	}
	if path == "" {
		log.Fatal("no dataset: pass -dataset or set DATASET_PATH")
	}

	ctx := context.Background()

	db, err := sql.Open("pgx", cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to open postgres: %v", err)
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		log.Fatalf("failed to migrate database: %v", err)
	}
	db.Close()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	if err := importer.New(persistence.NewRepository(pool)).LoadFile(ctx, path); err != nil {
		log.Fatalf("bulk import failed: %v", err)
	}
}
