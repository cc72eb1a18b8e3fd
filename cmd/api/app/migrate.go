package app

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qiuhuiming/titan-track/database"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	cmd.PersistentFlags().String("postgres", "", "Postgres connection string; overrides POSTGRES_URL")
	cmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")
	cmd.PersistentFlags().UintP("num-steps", "n", 0, "Number of steps to migrate (0 applies all)")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE:  runMigrateUp,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE:  runMigrateDown,
	})
	return cmd
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	m, logger, numSteps, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if numSteps == 0 {
		err = m.Up()
	} else {
		err = m.Steps(int(numSteps))
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to apply")
	}
	return displayMigrationVersion(m, logger)
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	yes, _ := cmd.Flags().GetBool("yes")
	if !yes && !confirm(cmd, "WARNING: rolling back migrations may drop synced data. Continue?") {
		return nil
	}

	m, logger, numSteps, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if numSteps == 0 {
		err = m.Down()
	} else {
		err = m.Steps(-1 * int(numSteps))
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no migrations to roll back")
	}
	return displayMigrationVersion(m, logger)
}

func openMigrator(cmd *cobra.Command) (database.Migrator, *zap.Logger, uint, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, 0, err
	}
	if cfg.PostgresURL == "" {
		return nil, nil, 0, errors.New("POSTGRES_URL is required")
	}
	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return nil, nil, 0, err
	}
	m, err := database.NewFromConnectionString(cfg.PostgresURL)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("open migrator: %w", err)
	}
	return m, logger, numSteps, nil
}

func displayMigrationVersion(m database.Migrator, logger *zap.Logger) error {
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		logger.Info("database has no migrations applied")
		return nil
	}
	if err != nil {
		return fmt.Errorf("read migration version: %w", err)
	}
	logger.Info("database schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}

func confirm(cmd *cobra.Command, prompt string) bool {
	cmd.Printf("%s [y/N]: ", prompt)
	answer, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}
