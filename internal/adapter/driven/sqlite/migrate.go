package sqlite

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// RunMigrations applies every pending embedded migration. Migrations are
// additive (new tables, nullable columns, indexes) so running this on each
// start against an older schema only brings it forward. A credentials table
// that predates migration tracking is stamped with its version first.
func RunMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := adoptUnversionedSchema(db, m); err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}

	if version, dirty, err := m.Version(); err == nil {
		slog.Debug("schema version", "version", version, "dirty", dirty)
	}

	return nil
}

// configColumns are the columns added by migration 2.
var configColumns = []string{"notion_database_id", "notion_page_id", "config"}

// adoptUnversionedSchema handles databases whose notion_credentials table was
// created before migrations were tracked. Such a table is stamped with the
// version its columns match so Up does not replay DDL that already ran.
func adoptUnversionedSchema(db *sql.DB, m *migrate.Migrate) error {
	_, _, err := m.Version()
	if err == nil {
		return nil
	}
	if !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("read schema version: %w", err)
	}

	columns, err := tableColumns(db, "notion_credentials")
	if err != nil {
		return err
	}
	if len(columns) == 0 {
		return nil
	}

	present := 0
	for _, c := range configColumns {
		if columns[c] {
			present++
		}
	}

	var version int
	switch present {
	case 0:
		version = 1
	case len(configColumns):
		version = 2
	default:
		return fmt.Errorf("unversioned notion_credentials has %d of %d configuration columns; finish or revert that upgrade by hand", present, len(configColumns))
	}

	slog.Info("adopting unversioned schema", "version", version)
	if err := m.Force(version); err != nil {
		return fmt.Errorf("stamp schema version %d: %w", version, err)
	}
	return nil
}

// tableColumns returns the column names of table, empty when it does not exist.
func tableColumns(db *sql.DB, table string) (map[string]bool, error) {
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", table, err)
	}
	defer rows.Close()

	columns := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column of %s: %w", table, err)
		}
		columns[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("inspect table %s: %w", table, err)
	}
	return columns, nil
}
