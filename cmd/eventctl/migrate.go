package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prohmpiriya/event-registration/pkg/config"
	"github.com/prohmpiriya/event-registration/pkg/database"
)

func (c *cli) newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back the PostgreSQL schema",
	}

	migrateCmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withMigrator(cmd, func(mg *database.Migrator) error {
					return mg.Up()
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withMigrator(cmd, func(mg *database.Migrator) error {
					return mg.Down()
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.withMigrator(cmd, func(mg *database.Migrator) error {
					return nil
				})
			},
		},
	)
	return migrateCmd
}

// withMigrator runs fn and prints the resulting schema version
func (c *cli) withMigrator(cmd *cobra.Command, fn func(mg *database.Migrator) error) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	if cfg.Store.Driver != config.StoreDriverPostgres {
		return fmt.Errorf("migrations apply to the postgres store only, store is %q", cfg.Store.Driver)
	}
	if err := cfg.ValidateDatabase(); err != nil {
		return err
	}

	mg, err := database.NewMigrator(cfg.Database.URL())
	if err != nil {
		return err
	}
	defer mg.Close()

	if err := fn(mg); err != nil {
		return err
	}

	v, dirty, err := mg.Version()
	if err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}
	out := cmd.OutOrStdout()
	if dirty {
		fmt.Fprintf(out, "schema version %d (dirty)\n", v)
		return nil
	}
	fmt.Fprintf(out, "schema version %d\n", v)
	return nil
}
