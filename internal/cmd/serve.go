package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Iron-Ham/lanes/internal/api"
	"github.com/Iron-Ham/lanes/internal/lane"
	"github.com/Iron-Ham/lanes/internal/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the task API and Prometheus metrics",
	Long: `Serve an HTTP API that submits synthetic tasks to the lanes and reports
their outcomes, together with lane stats and Prometheus metrics.

Endpoints:
  GET  /healthz
  GET  /metrics
  GET  /v1/stats?lane=GLOB
  POST /v1/tasks
  GET  /v1/tasks/{id}`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default is metrics.listen_addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()

	reg, err := newRegistry(cfg, logger)
	if err != nil {
		return err
	}

	rec := metrics.NewRecorder(cfg.Metrics.Namespace)
	rec.Attach(reg.Bus())
	defer rec.Detach()
	if err := rec.WatchStats(cfg.Metrics.Namespace, func() []lane.Stats { return reg.Stats().Lanes }); err != nil {
		logger.Warn("lane stats collector", "error", err)
	}

	watchConfig(logger)

	addr := serveAddr
	if addr == "" {
		addr = cfg.Metrics.ListenAddr
	}
	srv := api.NewServer(addr, reg, rec, logger)
	serveErr := srv.Run(cmd.Context())

	if err := shutdownRegistry(cmd.Context(), reg, cfg); err != nil {
		logger.Warn("registry shutdown", "error", err)
	}
	return serveErr
}
