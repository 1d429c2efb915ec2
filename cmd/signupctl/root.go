package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"signupflow/config"
	"signupflow/logging"
)

type rootOptions struct {
	envFile string
	cfg     *config.Config
	logger  zerolog.Logger
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "signupctl",
		Short: "Registration workflow operations",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.envFile)
			if err != nil {
				return err
			}
			opts.cfg = cfg
			opts.logger = logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format}, os.Stderr)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newRegisterCmd(opts))

	return cmd
}
