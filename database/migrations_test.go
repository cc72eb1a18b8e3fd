package database

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/titan?sslmode=disable", migrateURL("postgres://u:p@db:5432/titan?sslmode=disable"))
	require.Equal(t, "pgx5://u@db/titan", migrateURL("postgresql://u@db/titan"))
	require.Equal(t, "pgx5://u@db/titan", migrateURL("pgx5://u@db/titan"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := globMigrations(".up.sql")
	require.NoError(t, err)
	downs, err := globMigrations(".down.sql")
	require.NoError(t, err)
	require.Len(t, ups, 3)
	require.Len(t, downs, len(ups))
}
