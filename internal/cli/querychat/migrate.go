package querychat

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/duckmesh/querychat/internal/app"
	"github.com/duckmesh/querychat/internal/migrations"
)

func newMigrateCmd(opts Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:       "migrate up|down|status",
		Short:     "Apply, roll back or list query history migrations",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			if steps < 0 {
				return fmt.Errorf("steps must be >= 0, got %d", steps)
			}
			cfg, err := opts.LoadConfig("querychat-migrate")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.History.DSN == "" {
				return fmt.Errorf("QUERYCHAT_HISTORY_DSN is required")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			db, err := app.OpenHistoryDB(ctx, cfg.History)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			runner := migrations.NewRunner()
			switch args[0] {
			case "up":
				applied, err := runner.Up(ctx, db, steps)
				if err != nil {
					return fmt.Errorf("migration up failed: %w", err)
				}
				_, _ = fmt.Fprintf(opts.Stdout, "applied %d migration(s)\n", applied)
				return nil
			case "status":
				statuses, err := runner.Status(ctx, db)
				if err != nil {
					return fmt.Errorf("migration status failed: %w", err)
				}
				printMigrationStatus(opts.Stdout, statuses)
				return nil
			}
			rolledBack, err := runner.Down(ctx, db, steps)
			if err != nil {
				return fmt.Errorf("migration down failed: %w", err)
			}
			_, _ = fmt.Fprintf(opts.Stdout, "rolled back %d migration(s)\n", rolledBack)
			return nil
		},
	}
	cmd.Flags().Int("steps", 0, "number of migration steps; 0 means all for up, 1 for down")
	return cmd
}

func printMigrationStatus(w io.Writer, statuses []migrations.Status) {
	for _, status := range statuses {
		state := "pending"
		if status.Applied {
			state = "applied " + status.AppliedAt.UTC().Format(time.RFC3339)
		}
		_, _ = fmt.Fprintf(w, "%06d  %-32s %s\n", status.Version, status.Name, state)
	}
}
