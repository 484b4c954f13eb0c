package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// RunMigrations brings the voice schema up to date. It opens its own
// database/sql handle because goose drives migrations through that
// interface; the runtime path stays on pgx.
func RunMigrations(dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("store: open migration handle: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(fmt.Errorf("store: set dialect: %w", err), db.Close())
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return errors.Join(fmt.Errorf("store: migrate: %w", err), db.Close())
	}
	return db.Close()
}
