// Package migrate applies the embedded auth schema migrations using golang-migrate.
package migrate

import (
	"errors"
	"fmt"

	"workforce-auth/internal/db"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

// Result reports the schema version after a run.
type Result struct {
	Version uint
	Dirty   bool
}

// Run applies migrations in the given direction using the provided DSN.
// direction must be "up" or "down". steps > 0 limits the run to that many migrations; 0 means all.
// Already being at the target version is not an error.
func Run(dsn, direction string, steps int) (*Result, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is not set; create a .env or set DATABASE_URL")
	}
	if direction != "up" && direction != "down" {
		return nil, fmt.Errorf("direction must be up or down, got %q", direction)
	}
	if steps < 0 {
		return nil, fmt.Errorf("steps must be >= 0, got %d", steps)
	}

	sourceDriver, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch {
	case steps > 0 && direction == "up":
		err = m.Steps(steps)
	case steps > 0:
		err = m.Steps(-steps)
	case direction == "up":
		err = m.Up()
	default:
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, err
	}

	version, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return nil, fmt.Errorf("migrate version: %w", err)
	}
	return &Result{Version: version, Dirty: dirty}, nil
}
