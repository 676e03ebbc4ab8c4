// Package storage opens the core's single Postgres connection and runs
// schema migrations, mirroring the teacher's common/mpostgres.
// PostgresConnection. The financial core has no read-replica split (it has
// no reporting surface that would benefit from one and every balance read
// must be transactionally consistent with recent writes), so this is
// intentionally a single-pool version of the teacher's primary/replica
// resolver.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connection wraps the pool and whether migrations have been applied.
type Connection struct {
	DB        *sql.DB
	Connected bool
}

// Connect opens dsn via the pgx stdlib driver, runs pending migrations, and
// pings to confirm connectivity.
func Connect(ctx context.Context, dsn string) (*Connection, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if err := migrateUp(db); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Connection{DB: db, Connected: true}, nil
}

func migrateUp(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("building migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "chally", driver)
	if err != nil {
		return fmt.Errorf("constructing migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
