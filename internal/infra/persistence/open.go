// Package persistence selects a persistent entity store backend.
package persistence

import (
	"context"
	"fmt"
	"os"

	"entitysync/internal/infra/persistence/memory"
	"entitysync/internal/infra/persistence/postgres"
	"entitysync/internal/infra/persistence/sqlite"
	"entitysync/pkg/domain"
)

// Driver identifies a concrete persistent storage implementation.
type Driver string

const (
	DriverMemory   Driver = "memory"   // in-memory only (tests / ephemeral)
	DriverSQLite   Driver = "sqlite"   // embedded sqlite file
	DriverPostgres Driver = "postgres" // PostgreSQL server
)

// Environment variables read by Open.
const (
	EnvDriver      = "ENTITYSYNC_STORAGE_DRIVER"
	EnvSQLitePath  = "ENTITYSYNC_SQLITE_PATH"
	EnvPostgresDSN = "ENTITYSYNC_POSTGRES_DSN"
)

// Open selects a backend using environment variables. Defaults to sqlite
// when unset.
//
//	ENTITYSYNC_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	ENTITYSYNC_SQLITE_PATH: path to sqlite file (default ./entitysync.db)
//	ENTITYSYNC_POSTGRES_DSN: postgres DSN when driver=postgres
func Open(ctx context.Context, engine *domain.RulesEngine) (domain.PersistentStore, error) {
	driver := os.Getenv(EnvDriver)
	if driver == "" {
		driver = string(DriverSQLite)
	}
	switch Driver(driver) {
	case DriverMemory:
		return memory.NewStore(engine), nil
	case DriverSQLite:
		s, err := sqlite.NewStore(os.Getenv(EnvSQLitePath), engine)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		ps, err := postgres.NewStore(ctx, os.Getenv(EnvPostgresDSN), engine)
		if err != nil {
			return nil, err
		}
		return ps, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
