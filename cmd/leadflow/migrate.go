package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/memohai/leadflow/internal/db"
	"github.com/memohai/leadflow/internal/logger"
)

func newMigrateCmd(resolve func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(resolve(), func(m *db.Migrator) error { return m.Up() })
			},
		},
		&cobra.Command{
			Use:   "down [steps]",
			Short: "Roll back migrations (default one step)",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				steps := 1
				if len(args) == 1 {
					n, err := strconv.Atoi(args[0])
					if err != nil || n <= 0 {
						return fmt.Errorf("steps must be a positive integer")
					}
					steps = n
				}
				return withMigrator(resolve(), func(m *db.Migrator) error { return m.Down(steps) })
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withMigrator(resolve(), func(m *db.Migrator) error {
					v, dirty, err := m.Version()
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "version %d dirty=%t\n", v, dirty)
					return nil
				})
			},
		},
	)
	return cmd
}

func withMigrator(path string, fn func(*db.Migrator) error) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	m, err := db.NewMigrator(logger.New(cfg.Log.Level, cfg.Log.Format), cfg.Postgres)
	if err != nil {
		return err
	}
	defer m.Close()
	return fn(m)
}
