package main

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/memohai/leadflow/internal/auth"
	"github.com/memohai/leadflow/internal/config"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "leadflow",
		Short:         "Instagram direct message lead assistant",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// a missing .env is normal in deployed environments
			_ = godotenv.Load()
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config.toml (default $CONFIG_PATH or config.toml)")

	resolve := func() string {
		if configPath != "" {
			return configPath
		}
		if env := os.Getenv("CONFIG_PATH"); env != "" {
			return env
		}
		return config.DefaultConfigPath
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the webhook server and the workers",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runApp(resolve(), true)
			},
		},
		&cobra.Command{
			Use:   "worker",
			Short: "Run the workers only",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runApp(resolve(), false)
			},
		},
		newMigrateCmd(resolve),
		newTokenCmd(resolve),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), "leadflow", version)
			},
		},
	)
	return root
}

func newTokenCmd(resolve func() string) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an operator token for the admin endpoints",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(resolve())
			if err != nil {
				return err
			}
			signed, expiresAt, err := auth.GenerateToken(subject, cfg.Auth.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signed)
			fmt.Fprintln(cmd.ErrOrStderr(), "expires at", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
