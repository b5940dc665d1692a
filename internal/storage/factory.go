package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Config controls how the cache backend is opened.
type Config struct {
	// Driver is one of file (default), memory, sqlite, postgres, postgrespool.
	Driver string
	DSN    string
	// Dir is the directory of the file driver; empty selects DefaultCacheDir.
	Dir string
}

// Open constructs a ResourceCache based on the given configuration.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (ResourceCache, error) {
	if log == nil {
		log = zap.NewNop()
	}
	drv := cfg.Driver
	if drv == "" {
		drv = "file"
	}
	switch drv {
	case "file":
		c, err := NewFileCache(cfg.Dir)
		if err != nil {
			return nil, err
		}
		log.Info("storage: using file backend", zap.String("dir", c.Dir()))
		return c, nil

	case "memory":
		log.Info("storage: using in-memory backend")
		return NewMemory(), nil

	case "sqlite", "postgres":
		log.Info("storage: using gorm backend", zap.String("driver", drv))
		st, err := NewGormCache(drv, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("storage migrate: %w", err)
		}
		return st, nil

	case "postgrespool":
		log.Info("storage: using pgx pool backend")
		st, err := OpenPgxCache(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("storage migrate: %w", err)
		}
		return st, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", drv)
	}
}
