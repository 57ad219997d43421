package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fieldtrack/fieldtrack/storage/database"
)

var gooseRunFunc = database.RunGoose // mockable

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "migrate COMMAND [ARGS...]",
		Short:              "Run a goose command (up, up-by-one, up-to, down, down-to, redo, reset, status, version, fix, create)",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return helpRunE(cmd, args)
			}
			return cli.migrate(cmd.Context(), args)
		},
	}
}

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return gooseRunFunc(ctx, args[0], cli.db, cli.conf.Database.Engine, args[1:]...)
}
