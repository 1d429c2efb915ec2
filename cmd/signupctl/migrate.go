package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"signupflow/db"
	"signupflow/migrations"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, opts.cfg.Database.URL, db.PoolConfig{MaxConns: 2})
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := db.Migrate(ctx, pool, migrations.FS())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "Database is up to date")
				return nil
			}
			for _, name := range applied {
				opts.logger.Info().Str("migration", name).Msg("applied")
				fmt.Fprintf(out, "Applied %s\n", name)
			}
			return nil
		},
	}
}
