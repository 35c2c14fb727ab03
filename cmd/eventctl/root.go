package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/prohmpiriya/event-registration/pkg/config"
	"github.com/prohmpiriya/event-registration/pkg/logger"
)

var version = "dev"

// cli carries the viper instance the subcommands resolve config from
type cli struct {
	v       *viper.Viper
	envFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "eventctl",
		Short:         "Operate the event registration service",
		Long:          `Run schema migrations, seed sample events and mint development tokens for the event registration service.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&c.envFile, "env-file", "e", "",
		"env file to read (default: .env when present)")
	rootCmd.PersistentFlags().String("store", "",
		"store driver: postgres, mongo or memory (overrides STORE_DRIVER)")
	rootCmd.PersistentFlags().String("log-level", "",
		"log level (overrides APP_LOG_LEVEL)")

	// Bind flags to viper
	_ = c.v.BindPFlag("STORE_DRIVER", rootCmd.PersistentFlags().Lookup("store"))
	_ = c.v.BindPFlag("APP_LOG_LEVEL", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(
		c.newMigrateCmd(),
		c.newSeedCmd(),
		c.newTokenCmd(),
		c.newWatchCmd(),
	)
	return rootCmd
}

// loadConfig resolves flags, the env file and the environment, then sets up
// the global logger
func (c *cli) loadConfig() (*config.Config, error) {
	path := c.envFile
	if path == "" {
		path = ".env"
	}
	c.v.SetConfigFile(path)
	c.v.SetConfigType("env")
	if err := c.v.ReadInConfig(); err != nil && c.envFile != "" {
		return nil, fmt.Errorf("reading %s: %w", c.envFile, err)
	}

	cfg, err := config.LoadFromViper(c.v)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(&logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "eventctl",
		Development: true,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}
