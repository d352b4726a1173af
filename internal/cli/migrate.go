package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/logsweep/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var err error
		switch cfg.Store.Driver {
		case "postgres":
			err = store.RunMigrations(cfg.Store.URL)
		case "sqlite":
			err = store.RunSQLiteMigrations(cfg.Store.SQLitePath)
		default:
			err = fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
		}
		if err != nil {
			return err
		}
		slog.Info("migrations applied", "driver", cfg.Store.Driver)
		return nil
	},
}
