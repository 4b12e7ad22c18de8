package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/quotefeed/harvester/internal/api"
	"github.com/quotefeed/harvester/internal/batch"
	"github.com/quotefeed/harvester/internal/clock/system"
	"github.com/quotefeed/harvester/internal/config"
	"github.com/quotefeed/harvester/internal/engine"
	idgen "github.com/quotefeed/harvester/internal/id/uuid"
	"github.com/quotefeed/harvester/internal/journal"
	"github.com/quotefeed/harvester/internal/metrics"
)

type runFlags struct {
	symbols    string
	jobType    string
	startDate  string
	endDate    string
	output     string
	logPath    string
	batchSize  int
	sortMode   string
	headerless bool
}

// newRunCmd creates and configures the 'run' subcommand, which drives
// the full count -> plan -> launch -> merge -> sort pipeline.
func newRunCmd() *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Runs a batched collection job",
		Long: `Splits the symbol set into fixed-size batches, invokes the crawl
engine once per batch, merges the batch outputs into the configured
output file and optionally sorts it.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRunCommand(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.symbols, "symbols", "", "comma-separated symbol list or path to a symbols file (required)")
	cmd.Flags().StringVar(&flags.jobType, "job-type", "quotes", "engine job type")
	cmd.Flags().StringVar(&flags.startDate, "start-date", "", "inclusive start date passed to the engine")
	cmd.Flags().StringVar(&flags.endDate, "end-date", "", "inclusive end date passed to the engine")
	cmd.Flags().StringVar(&flags.output, "output", "", "final output file path (overrides batch.output_path)")
	cmd.Flags().StringVar(&flags.logPath, "log-path", "", "per-batch engine log path prefix")
	cmd.Flags().IntVar(&flags.batchSize, "batch-size", 0, "symbols per engine invocation (overrides batch.size)")
	cmd.Flags().StringVar(&flags.sortMode, "sort", "", "post-merge sort: none, lines or csv (overrides batch.sort)")
	cmd.Flags().BoolVar(&flags.headerless, "headerless", false, "treat outputs as headerless (plain concatenation on merge)")
	_ = cmd.MarkFlagRequired("symbols")

	return cmd
}

func runRunCommand(cmd *cobra.Command, flags *runFlags) error {
	cfg, err := loadRunConfig(cmd, flags)
	if err != nil {
		return err
	}

	logger, err := buildLogger(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	metrics.Init()

	launcher, err := engine.NewSubprocess(engine.Config{
		Binary:   cfg.Engine.Binary,
		BaseArgs: cfg.Engine.BaseArgs,
		WorkDir:  cfg.Engine.WorkDir,
		Timeout:  cfg.EngineTimeout(),
	}, logger)
	if err != nil {
		return fmt.Errorf("init engine launcher: %w", err)
	}

	clk := system.New()
	var jrnl *journal.SQLite
	if cfg.Journal.Enabled {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o750); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
		jrnl, err = journal.Open(cfg.Journal.Path, clk)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer func() {
			if cerr := jrnl.Close(); cerr != nil {
				logger.Warn("close journal failed", zap.Error(cerr))
			}
		}()
	}

	if cfg.Server.Port > 0 && jrnl != nil {
		stop := startStatusServer(cfg.Server.Port, jrnl, logger)
		defer stop()
	}

	sortMode, err := batch.ParseSortMode(cfg.Batch.Sort)
	if err != nil {
		return err
	}
	header := batch.HeaderSkipAfterFirst
	if cfg.Batch.Headerless {
		header = batch.HeaderNone
	}

	job := batch.Job{
		JobType:    flags.jobType,
		Symbols:    flags.symbols,
		StartDate:  flags.startDate,
		EndDate:    flags.endDate,
		OutputPath: cfg.Batch.OutputPath,
		LogPath:    cfg.Batch.LogPath,
		BatchSize:  cfg.Batch.Size,
		Header:     header,
		Sort:       sortMode,
	}

	// A typed nil inside the interface would defeat the runner's nil
	// journal checks, so only assign when the journal is open.
	var bookkeeping batch.Journal
	if jrnl != nil {
		bookkeeping = jrnl
	}
	runner := batch.NewRunner(launcher, bookkeeping, idgen.NewUUIDGenerator(), clk, logger)

	report, runErr := runner.Run(cmd.Context(), job)
	printReport(cmd, report)
	if runErr != nil {
		if errors.Is(runErr, batch.ErrIncompleteRun) {
			return fmt.Errorf("output %s is missing batches %v: %w", report.OutputPath, report.FailedBatches, batch.ErrIncompleteRun)
		}
		return runErr
	}
	return nil
}

// loadRunConfig loads the config file and applies flag overrides, then
// re-validates so misconfiguration fails before any batch launches.
func loadRunConfig(cmd *cobra.Command, flags *runFlags) (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, err
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.Batch.Size = flags.batchSize
	}
	if cmd.Flags().Changed("output") {
		cfg.Batch.OutputPath = flags.output
	}
	if cmd.Flags().Changed("log-path") {
		cfg.Batch.LogPath = flags.logPath
	}
	if cmd.Flags().Changed("sort") {
		cfg.Batch.Sort = flags.sortMode
	}
	if cmd.Flags().Changed("headerless") {
		cfg.Batch.Headerless = flags.headerless
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func startStatusServer(port int, runs api.RunStore, logger *zap.Logger) func() {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           api.NewServer(runs, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("status server stopped", zap.Error(err))
		}
	}()
	logger.Info("status server listening", zap.Int("port", port))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Warn("status server shutdown failed", zap.Error(err))
		}
	}
}

func printReport(cmd *cobra.Command, report batch.Report) {
	if report.RunID == "" {
		return
	}
	cmd.Printf("run %s: %d symbols in %d batches -> %s (%.1fs)\n",
		report.RunID, report.TotalSymbols, report.WindowCount, report.OutputPath, report.Elapsed.Seconds())
	if report.OutputDigest != "" {
		cmd.Printf("output sha256: %s\n", report.OutputDigest)
	}
	if !report.Complete() {
		cmd.Printf("FAILED batches: %v\n", report.FailedBatches)
	}
}
