package cmd

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/lanes/internal/logging"
	"github.com/Iron-Ham/lanes/internal/pool"
	"github.com/Iron-Ham/lanes/internal/tui"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Generate load and watch the lanes live",
	Long: `Watch submits a synthetic mix of IO, Compute and Sequential tasks and
renders lane stats in a terminal dashboard. The dashboard's event loop is the
coordinator: every task reaction runs on it.

Keys: p/space pause, +/- change the submit rate, q quit.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

var (
	watchRate int
	watchSeed uint64
)

func init() {
	watchCmd.Flags().IntVar(&watchRate, "rate", 20, "tasks submitted per refresh tick (0 starts paused)")
	watchCmd.Flags().Uint64Var(&watchSeed, "seed", 0, "seed for the load generator (0 picks one)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("watch requires an interactive terminal")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Log lines on stderr would tear the dashboard, so only log to a file.
	logger := logging.NopLogger()
	if cfg.Logging.Dir != "" {
		if logger, err = newLogger(cfg); err != nil {
			return err
		}
	}
	defer logger.Close()

	dispatcher := tui.NewProgramDispatcher(logger)
	reg, err := newRegistry(cfg, logger, pool.WithDispatcher(dispatcher))
	if err != nil {
		return err
	}

	watchConfig(logger)

	app := tui.New(reg, dispatcher, tui.Options{
		Refresh: cfg.Watch.RefreshInterval(),
		Rate:    watchRate,
		Seed:    watchSeed,
	})
	runErr := app.Run(cmd.Context())

	if err := shutdownRegistry(cmd.Context(), reg, cfg); err != nil {
		logger.Warn("registry shutdown", "error", err)
	}
	return runErr
}
