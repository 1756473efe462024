package main

import (
	"fmt"
	"os"

	"budgetPilot/business/changequeue"
	psqlRepo "budgetPilot/internal/repository/postgres"
	"budgetPilot/pkg/config"
	"budgetPilot/pkg/database"
	"budgetPilot/pkg/logger"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func main() {
	rootCmd := newRootCmd(openPostgres)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// opener connects to the store backing the queue; closeFn releases it.
type opener func() (svc *changequeue.Service, migrate func() error, closeFn func(), err error)

func openPostgres() (*changequeue.Service, func() error, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.Init(cfg.App.Environment)

	db, err := database.InitPostgres(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect database: %w", err)
	}
	closeFn := func() { closeDB(db) }
	svc := changequeue.NewService(psqlRepo.NewChangeStore(db), cfg.Tuning.Queue)
	return svc, func() error { return database.Migrate(db) }, closeFn, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func newRootCmd(open opener) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "budget-pilot",
		Short:         "Operator tool for the budget pilot change queue",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd(open))
	rootCmd.AddCommand(queueCmd(open))
	return rootCmd
}

func migrateCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, migrate, closeFn, err := open()
			if err != nil {
				return err
			}
			defer closeFn()

			if err := migrate(); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}
