package main

import (
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/internal/database"
)

func newMigrateCommand(cmdCtx *commandContext) *cobra.Command {
	var version uint
	var force int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := cmdCtx.ensure()
			if err != nil {
				return err
			}

			db, err := database.Connect(cmd.Context(), cfg.Database(), logger)
			if err != nil {
				return err
			}
			defer db.Close()

			migration := cfg.Migration()
			if cmd.Flags().Changed("version") {
				migration.Version = version
			}
			if cmd.Flags().Changed("force") {
				migration.Force = force
			}
			return database.NewMigrationService(logger, migration).MigratePostgres(db, cfg.DatabaseName)
		},
	}

	cmd.Flags().UintVar(&version, "version", 0, "Migrate to this schema version instead of the latest")
	cmd.Flags().IntVar(&force, "force", 0, "Mark the schema clean at this version before migrating")
	return cmd
}
