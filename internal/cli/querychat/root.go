// Package querychat holds the cobra command tree of the querychat binary.
package querychat

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/duckmesh/querychat/internal/app"
	"github.com/duckmesh/querychat/internal/config"
	"github.com/duckmesh/querychat/internal/console"
	"github.com/duckmesh/querychat/internal/observability"
)

type Options struct {
	Stdout     io.Writer
	Stderr     io.Writer
	LoadConfig func(serviceName string) (config.Config, error)
}

func (o Options) withDefaults() Options {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.LoadConfig == nil {
		o.LoadConfig = config.LoadFromEnv
	}
	return o
}

// NewRootCmd creates the root command. Without a subcommand it starts an
// interactive chat.
func NewRootCmd(opts Options) *cobra.Command {
	opts = opts.withDefaults()

	rootCmd := &cobra.Command{
		Use:   "querychat",
		Short: "Ask questions about a warehouse dataset in plain language",
		Long: `querychat turns questions into SQL with a language model, runs the SQL
against the configured warehouse and summarizes the result.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataset, _ := cmd.Flags().GetString("dataset")
			return runChat(cmd.Context(), opts, dataset)
		},
	}
	rootCmd.SetOut(opts.Stdout)
	rootCmd.SetErr(opts.Stderr)
	rootCmd.Flags().String("dataset", "", "dataset to start with (defaults to QUERYCHAT_WAREHOUSE_DEFAULT_DATASET)")

	rootCmd.AddCommand(newChatCmd(opts))
	rootCmd.AddCommand(newLoadCmd(opts))
	rootCmd.AddCommand(newMigrateCmd(opts))
	rootCmd.AddCommand(newSeedDemoCmd(opts))
	return rootCmd
}

func newChatCmd(opts Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dataset, _ := cmd.Flags().GetString("dataset")
			return runChat(cmd.Context(), opts, dataset)
		},
	}
	cmd.Flags().String("dataset", "", "dataset to start with (defaults to QUERYCHAT_WAREHOUSE_DEFAULT_DATASET)")
	return cmd
}

func runChat(ctx context.Context, opts Options, dataset string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := opts.LoadConfig("querychat")
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewLogger(cfg, opts.Stderr)

	components, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := components.Close(); err != nil {
			logger.Warn("close components failed", slog.Any("error", err))
		}
	}()

	session, err := components.Sessions.Create(dataset)
	if err != nil {
		return err
	}
	defer func() { _ = components.Sessions.End(session.ID) }()

	repl := &console.REPL{
		Chat:     components.Chat,
		Datasets: components.Sessions.Datasets(),
		Prompter: console.NewSurveyPrompter(),
		Renderer: console.NewRenderer(opts.Stdout, console.DefaultWidth, console.DefaultDisplayRows),
	}
	if components.History != nil {
		repl.History = components.History
	}
	return repl.Run(ctx, session)
}
