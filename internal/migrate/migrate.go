// Package migrate applies the embedded PostgreSQL schema with golang-migrate.
package migrate

import (
	"database/sql"
	"errors"
	"fmt"

	"securefiles/server/migrations"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

func open(databaseURL string) (*migrate.Migrate, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening database connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating migrate driver: %w", err)
	}

	src, err := iofs.New(migrations.Postgres, "postgres")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating migrate instance: %w", err)
	}
	return m, nil
}

// Up applies every pending migration. An up-to-date schema is not an error.
func Up(databaseURL string) (uint, error) {
	m, err := open(databaseURL)
	if err != nil {
		return 0, err
	}
	defer m.Close()

	_, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, fmt.Errorf("checking migration version: %w", err)
	}
	if dirty {
		return 0, errors.New("database is in a dirty state, force a version first")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("applying migrations: %w", err)
	}

	v, _, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("reading migration version: %w", err)
	}
	return v, nil
}

// Down rolls back steps migrations, or all of them when steps <= 0.
func Down(databaseURL string, steps int) error {
	m, err := open(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	if steps > 0 {
		err = m.Steps(-steps)
	} else {
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rolling back migrations: %w", err)
	}
	return nil
}

// Version reports the applied version; 0 when nothing was applied yet.
func Version(databaseURL string) (uint, bool, error) {
	m, err := open(databaseURL)
	if err != nil {
		return 0, false, err
	}
	defer m.Close()

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Force sets the version without running migrations, clearing the dirty flag.
func Force(databaseURL string, version int) error {
	m, err := open(databaseURL)
	if err != nil {
		return err
	}
	defer m.Close()

	return m.Force(version)
}
