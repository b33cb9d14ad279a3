package main

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultEnvFile = ".env"

// envFile is the dotenv file read before the environment is parsed.
var envFile string

// NewRootCmd creates the root command. Without a subcommand it serves.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "account-service",
		Short:        "User account service with JWT sessions",
		SilenceUsage: true,
		RunE:         runServe,
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", envFileDefault(), "dotenv file to load before reading the environment")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())

	return cmd
}

func envFileDefault() string {
	if path := os.Getenv("ENV_FILE"); path != "" {
		return path
	}
	return defaultEnvFile
}
