package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// legacyTables are left behind by the earlier dataframe exporter, which
// never set user_version and used an incompatible column layout.
var legacyTables = []string{"messages", "referrals", "failures"}

// schemaVersion reads PRAGMA user_version.
func schemaVersion(conn *sqlx.DB) (int, error) {
	var version int
	if err := conn.Get(&version, "PRAGMA user_version"); err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return version, nil
}

// presentTables returns which of names exist in the database.
func presentTables(conn *sqlx.DB, names []string) ([]string, error) {
	query, args, err := sqlx.In(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name IN (?) ORDER BY name", names)
	if err != nil {
		return nil, err
	}
	var found []string
	if err := conn.Select(&found, conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	return found, nil
}

// dropLegacy removes unversioned tables so the migrations can recreate
// them. The next ingestion refills them from the raw export.
func dropLegacy(conn *sqlx.DB) error {
	found, err := presentTables(conn, legacyTables)
	if err != nil {
		return err
	}
	for _, name := range found {
		if _, err := conn.Exec("DROP TABLE IF EXISTS " + name); err != nil {
			return fmt.Errorf("dropping legacy table %s: %w", name, err)
		}
	}
	return nil
}

// migrate brings the schema up to latestVersion, one transaction per step.
func migrate(conn *sqlx.DB) error {
	current, err := schemaVersion(conn)
	if err != nil {
		return err
	}
	if current == 0 {
		if err := dropLegacy(conn); err != nil {
			return err
		}
	}
	if current >= latestVersion() {
		return nil
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := apply(conn, m); err != nil {
			return err
		}
	}
	return nil
}

func apply(conn *sqlx.DB, m Migration) error {
	tx, err := conn.Beginx()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	if err := m.Up(tx); err != nil {
		tx.Rollback() //nolint: errcheck
		return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}

	// modernc/sqlite rejects user_version inside a transaction. The DDL is
	// idempotent, so a crash before this line only re-runs the step.
	if _, err := conn.Exec(fmt.Sprintf("PRAGMA user_version = %d", m.Version)); err != nil {
		return fmt.Errorf("setting version %d: %w", m.Version, err)
	}
	return nil
}
