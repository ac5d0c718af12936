package querychat

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/duckmesh/querychat/internal/app"
	"github.com/duckmesh/querychat/internal/demo"
)

func newSeedDemoCmd(opts Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed-demo",
		Short: "Generate a demo users/events dataset for the duckdb backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataset, _ := cmd.Flags().GetString("dataset")
			users, _ := cmd.Flags().GetInt("users")
			events, _ := cmd.Flags().GetInt("events")
			seed, _ := cmd.Flags().GetInt64("seed")
			if users <= 0 || events < 0 {
				return fmt.Errorf("users must be > 0 and events >= 0")
			}

			cfg, err := opts.LoadConfig("querychat")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			store, err := app.OpenObjectStore(cmd.Context(), cfg.ObjectStore)
			if err != nil {
				return err
			}
			infos, err := demo.Seed(cmd.Context(), store, demo.NewGenerator(seed, users), demo.Options{Dataset: dataset, Events: events})
			for _, info := range infos {
				_, _ = fmt.Fprintf(opts.Stdout, "uploaded %s (%d bytes)\n", info.Key, info.Size)
			}
			return err
		},
	}
	cmd.Flags().String("dataset", "demo", "dataset to write the demo tables into")
	cmd.Flags().Int("users", 200, "number of users")
	cmd.Flags().Int("events", 5000, "number of events")
	cmd.Flags().Int64("seed", time.Now().UTC().UnixNano(), "random seed")
	return cmd
}
