package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"time"

	_ "github.com/glebarez/go-sqlite"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations
var embedMigrations embed.FS

// MigrationStatus is one row of Status output.
type MigrationStatus struct {
	Version   int64
	Path      string
	Applied   bool
	AppliedAt time.Time
}

// Migrator applies the resource cache schema with goose.
type Migrator struct {
	db       *sql.DB
	provider *goose.Provider
	log      *zap.Logger
}

func dialect(driver string) (goose.Dialect, string, error) {
	switch driver {
	case "", "sqlite", "sqlite3":
		return goose.DialectSQLite3, "sqlite", nil
	case "postgres", "pgx", "postgrespool":
		return goose.DialectPostgres, "postgres", nil
	default:
		return "", "", fmt.Errorf("unsupported driver for goose: %s", driver)
	}
}

func openDB(driver, dsn string) (*sql.DB, error) {
	switch driver {
	case "", "sqlite", "sqlite3":
		if dsn == "" {
			dsn = "fxratemanager.db"
		}
		return sql.Open("sqlite", dsn)
	default:
		// Map custom driver names to the pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/fxratemanager?sslmode=disable"
		}
		return sql.Open("pgx", dsn)
	}
}

// New opens the database named by driver and dsn, which use the same values
// as the storage configuration.
func New(driver, dsn string, log *zap.Logger) (*Migrator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	d, dir, err := dialect(driver)
	if err != nil {
		return nil, err
	}
	sub, err := fs.Sub(embedMigrations, "migrations/"+dir)
	if err != nil {
		return nil, err
	}
	db, err := openDB(driver, dsn)
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(d, db, sub)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Migrator{db: db, provider: p, log: log.Named("migrate")}, nil
}

func (m *Migrator) Close() error { return m.db.Close() }

// Up applies all pending migrations and returns the number applied.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	results, err := m.provider.Up(ctx)
	for _, r := range results {
		m.log.Info("applied migration",
			zap.Int64("version", r.Source.Version),
			zap.String("path", r.Source.Path),
			zap.Duration("duration", r.Duration))
	}
	if err != nil {
		return len(results), fmt.Errorf("migrate up: %w", err)
	}
	return len(results), nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	r, err := m.provider.Down(ctx)
	if err != nil {
		return fmt.Errorf("migrate down: %w", err)
	}
	if r != nil {
		m.log.Info("rolled back migration",
			zap.Int64("version", r.Source.Version),
			zap.String("path", r.Source.Path))
	}
	return nil
}

// Version returns the current schema version, zero when nothing is applied.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	return m.provider.GetDBVersion(ctx)
}

func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	rows, err := m.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate status: %w", err)
	}
	out := make([]MigrationStatus, 0, len(rows))
	for _, r := range rows {
		out = append(out, MigrationStatus{
			Version:   r.Source.Version,
			Path:      r.Source.Path,
			Applied:   r.State == goose.StateApplied,
			AppliedAt: r.AppliedAt,
		})
	}
	return out, nil
}
