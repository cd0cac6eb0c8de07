package main

import (
	"github.com/MrEthical07/authx/internal/config"
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var (
	configFile string
	envFile    string
)

// NewRootCmd creates the root command for the authx CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "authx",
		Short: "Auth-X credential authentication service",
		Long: `Auth-X registers accounts, verifies email addresses with one-time codes,
issues cookie sessions, and resets passwords.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file path")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", ".env file path (default ./.env when present)")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.Options{
		File:   configFile,
		DotEnv: envFile,
		Flags:  cmd.Flags(),
	})
}
