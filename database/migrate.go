package database

import (
	"context"
	iofs "io/fs"
	"slices"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// MigrateUp executes every embedded up migration in order without version tracking.
// Tests use it against throwaway databases; deployments go through NewFromConnectionString.
func MigrateUp(ctx context.Context, pool *pgxpool.Pool) error {
	return execAll(ctx, pool, ".up.sql", false)
}

// MigrateDown executes every embedded down migration in reverse order.
func MigrateDown(ctx context.Context, pool *pgxpool.Pool) error {
	return execAll(ctx, pool, ".down.sql", true)
}

func execAll(ctx context.Context, pool *pgxpool.Pool, suffix string, reverse bool) error {
	names, err := globMigrations(suffix)
	if err != nil {
		return err
	}
	if reverse {
		slices.Reverse(names)
	}
	for _, name := range names {
		body, err := fs.ReadFile(name)
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(body)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(body)); err != nil {
			return err
		}
	}
	return nil
}

func globMigrations(suffix string) ([]string, error) {
	names, err := iofs.Glob(fs, "migrations/*"+suffix)
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}
