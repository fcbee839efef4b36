package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/lanes/internal/api"
	"github.com/Iron-Ham/lanes/internal/config"
	"github.com/Iron-Ham/lanes/internal/lane"
	"github.com/Iron-Ham/lanes/internal/logging"
	"github.com/Iron-Ham/lanes/internal/metrics"
	"github.com/Iron-Ham/lanes/internal/ops"
	"github.com/Iron-Ham/lanes/internal/pool"
	"github.com/Iron-Ham/lanes/internal/task"
	"github.com/Iron-Ham/lanes/internal/tui"
)

var runCmd = &cobra.Command{
	Use:   "run FILE...",
	Short: "Summarize CSV files across the lanes",
	Long: `Summarize the numeric columns of one or more CSV files.

Each file is read on the IO lane, summarized on the Compute lane under a
timeout budget, and optionally recorded in a report file on the Sequential
lane. Results are collected on the coordinator and printed with lane stats.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var (
	runTimeout     time.Duration
	runReport      string
	runJSON        bool
	runLanes       string
	runMetricsAddr string
	runDelimiter   string
	runNoHeader    bool
)

func init() {
	runCmd.Flags().DurationVar(&runTimeout, "timeout", ops.DefaultPerformTimeout, "budget for summarizing each file")
	runCmd.Flags().StringVar(&runReport, "report", "", "append one line per file to this report")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "output results as JSON")
	runCmd.Flags().StringVar(&runLanes, "lanes", "", "only show stats for lanes matching this glob")
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve /metrics on this address while running")
	runCmd.Flags().StringVarP(&runDelimiter, "delimiter", "d", ",", "field delimiter")
	runCmd.Flags().BoolVar(&runNoHeader, "no-header", false, "treat the first row as data")
	rootCmd.AddCommand(runCmd)
}

// fileResult is the outcome for one input file.
type fileResult struct {
	Path      string              `json:"path"`
	Rows      int                 `json:"rows"`
	Columns   []ops.ColumnSummary `json:"columns,omitempty"`
	ErrorKind string              `json:"error_kind,omitempty"`
	Error     string              `json:"error,omitempty"`
	ReadMS    int64               `json:"read_ms"`
	ComputeMS int64               `json:"compute_ms"`
}

func (r *fileResult) fail(kind fmt.Stringer, err error) {
	r.ErrorKind = kind.String()
	r.Error = err.Error()
}

func (r *fileResult) reportLine() string {
	if r.Error != "" {
		return fmt.Sprintf("%s\terror=%s\t%s", r.Path, r.ErrorKind, r.Error)
	}
	return fmt.Sprintf("%s\trows=%d\tcolumns=%d", r.Path, r.Rows, len(r.Columns))
}

type runOutput struct {
	Files []fileResult `json:"files"`
	Stats pool.Stats   `json:"stats"`
}

func runRun(cmd *cobra.Command, args []string) error {
	readOpts, err := readOptions()
	if err != nil {
		return err
	}
	if _, err := (pool.Stats{}).Filter(runLanes); err != nil {
		return err
	}

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

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	var metricsDone <-chan error
	if runMetricsAddr != "" {
		metricsDone = serveMetrics(ctx, runMetricsAddr, reg, cfg, logger)
	}

	results, err := processFiles(ctx, reg, args, readOpts)
	stats := reg.Stats()

	if shutdownErr := shutdownRegistry(ctx, reg, cfg); shutdownErr != nil {
		logger.Warn("registry shutdown", "error", shutdownErr)
	}
	cancel()
	if metricsDone != nil {
		if merr := <-metricsDone; merr != nil {
			logger.Warn("metrics server", "error", merr)
		}
	}
	if err != nil {
		return err
	}

	stats, _ = stats.Filter(runLanes)
	if runJSON {
		return printRunJSON(cmd.OutOrStdout(), results, stats)
	}
	printRunText(cmd.OutOrStdout(), results, stats)
	return nil
}

func readOptions() (ops.ReadOptions, error) {
	delim, size := utf8.DecodeRuneInString(runDelimiter)
	if delim == utf8.RuneError || size != len(runDelimiter) {
		return ops.ReadOptions{}, fmt.Errorf("delimiter must be a single character, got %q", runDelimiter)
	}
	return ops.ReadOptions{Delimiter: delim, Header: !runNoHeader}, nil
}

// processFiles chains read, summarize and report for every file. Results are
// written only by reactions, which all run on the coordinator.
func processFiles(ctx context.Context, reg *pool.Registry, paths []string, opts ops.ReadOptions) ([]fileResult, error) {
	results := make([]fileResult, len(paths))
	var wg sync.WaitGroup
	wg.Add(len(paths))

	for i, path := range paths {
		res := &results[i]
		res.Path = path

		finish := func() {
			if runReport == "" {
				wg.Done()
				return
			}
			ops.AppendLine(reg, runReport, res.reportLine()).OnComplete(func(env task.Envelope[struct{}]) {
				if !env.Success {
					res.fail(env.Kind(), fmt.Errorf("report: %w", env.Err))
				}
				wg.Done()
			})
		}

		ops.ReadCSV(reg, path, opts).OnComplete(func(read task.Envelope[ops.Table]) {
			res.ReadMS = read.Elapsed.Milliseconds()
			if !read.Success {
				res.fail(read.Kind(), read.Err)
				finish()
				return
			}

			table := read.Value
			ops.Perform(reg, runTimeout, func() (ops.Summary, error) {
				return ops.Summarize(table), nil
			}).OnComplete(func(sum task.Envelope[ops.Summary]) {
				res.ComputeMS = sum.Elapsed.Milliseconds()
				if !sum.Success {
					res.fail(sum.Kind(), sum.Err)
				} else {
					res.Rows = sum.Value.Rows
					res.Columns = sum.Value.Columns
				}
				finish()
			})
		})
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// serveMetrics serves the API on addr until ctx is done. The returned channel
// yields the server's exit error.
func serveMetrics(ctx context.Context, addr string, reg *pool.Registry, cfg *config.Config, logger *logging.Logger) <-chan error {
	rec := metrics.NewRecorder(cfg.Metrics.Namespace)
	rec.Attach(reg.Bus())
	if err := rec.WatchStats(cfg.Metrics.Namespace, func() []lane.Stats { return reg.Stats().Lanes }); err != nil {
		logger.Warn("lane stats collector", "error", err)
	}

	srv := api.NewServer(addr, reg, rec, logger)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()
	return errCh
}

func printRunJSON(w io.Writer, results []fileResult, stats pool.Stats) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(runOutput{Files: results, Stats: stats})
}

func printRunText(w io.Writer, results []fileResult, stats pool.Stats) {
	for _, r := range results {
		fmt.Fprintf(w, "%s\n", filepath.Base(r.Path))
		if r.Error != "" {
			fmt.Fprintf(w, "  error (%s): %s\n\n", r.ErrorKind, r.Error)
			continue
		}
		fmt.Fprintf(w, "  %d rows, read %dms, summarized %dms\n", r.Rows, r.ReadMS, r.ComputeMS)
		for _, c := range r.Columns {
			fmt.Fprintf(w, "  %-20s n=%-6d min=%-10.4g max=%-10.4g mean=%.4g\n", c.Name, c.Count, c.Min, c.Max, c.Mean)
		}
		fmt.Fprintln(w)
	}

	width := 0
	if f, ok := w.(*os.File); ok {
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil {
			width = tw
		}
	}
	fmt.Fprintln(w, tui.RenderStats(stats, width))
}
