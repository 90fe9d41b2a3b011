package cmd

import (
	"fmt"

	"github.com/spigell/collab-matcher/internal/database/migration"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		log, err := newLogger()
		if err != nil {
			return err
		}
		defer log.Sync()

		config, err := getConfig()
		if err != nil {
			return err
		}
		// The command itself migrates; avoid running it twice on connect.
		config.Database.Migrate = false

		svc := &services{cfg: config, log: log}
		defer svc.close()

		db, err := svc.connectDB(ctx)
		if err != nil {
			return err
		}

		applied, err := migration.Runner{Logger: log.Named("migrate")}.Run(ctx, db)
		if err != nil {
			return err
		}
		for _, m := range applied {
			fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", m.Filename)
		}
		log.Info("schema is up to date", zap.Int("applied", len(applied)))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
