package main

import (
	"errors"
	"fmt"

	migrations "github.com/PaulFidika/contentgate/migrations/postgres"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var withRiver bool

	cmd := &cobra.Command{
		Use:       "migrate up|down",
		Short:     "Apply or roll back the database schema",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"up", "down"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Database.URL == "" {
				return errors.New("migrate: database.url is not set")
			}
			log := ctx.logger()
			pool, err := openPool(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			sqldb := stdlib.OpenDBFromPool(pool)
			defer sqldb.Close()

			switch args[0] {
			case "up":
				if err := migrations.Up(cmd.Context(), sqldb, log); err != nil {
					return err
				}
				if withRiver {
					return migrations.River(cmd.Context(), pool, log)
				}
				return nil
			case "down":
				return migrations.Down(cmd.Context(), sqldb, log)
			default:
				return fmt.Errorf("migrate: unknown direction %q", args[0])
			}
		},
	}
	cmd.Flags().BoolVar(&withRiver, "river", false, "Also install the job queue tables used by tracking.mode=river")
	return cmd
}
