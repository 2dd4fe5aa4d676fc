package cli

import (
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		backend, err := openPostgres(cfg)
		if err != nil {
			return err
		}
		defer backend.Close()

		if err := backend.RunMigrations(cmd.Context()); err != nil {
			return err
		}

		if !PrintJSON(map[string]bool{"ok": true}) {
			PrintSuccess("Migrations applied")
		}
		return nil
	},
}
