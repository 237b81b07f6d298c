package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/parkscout/internal/store"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "parkscout.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initPostgresStore is for the PostGIS-only commands.
func initPostgresStore(ctx context.Context) (*store.PostgresStore, error) {
	if cfg.Store.Driver != "postgres" {
		return nil, eris.Errorf("command requires the postgres driver, have %s", cfg.Store.Driver)
	}
	return store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Pool)
}
