// Package migrations embeds and applies the central and tenant database
// schemas. The central schema runs once at boot; the tenant schema runs on
// first acquisition of each tenant database.
package migrations

import (
	"context"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed central/*.sql
var centralFS embed.FS

//go:embed tenantdb/*.sql
var tenantFS embed.FS

// RunCentral applies the central database schema through the given pool.
func RunCentral(ctx context.Context, pool *pgxpool.Pool) error {
	return run(centralFS, "central", pool)
}

// RunTenant applies the tenant database schema through the given pool. It is
// the MigrateFunc handed to the tenant context manager.
func RunTenant(ctx context.Context, pool *pgxpool.Pool) error {
	return run(tenantFS, "tenantdb", pool)
}

func run(fsys embed.FS, dir string, pool *pgxpool.Pool) error {
	src, err := iofs.New(fsys, dir)
	if err != nil {
		return err
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
