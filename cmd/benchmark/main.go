package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/anizozina/nestjs-als-vs-request-scope/cmd/benchmark/scenarios"
	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark"
	"github.com/anizozina/nestjs-als-vs-request-scope/internal/benchmark/cgroup"
	"github.com/anizozina/nestjs-als-vs-request-scope/internal/config"
	"github.com/anizozina/nestjs-als-vs-request-scope/internal/container"
	"github.com/anizozina/nestjs-als-vs-request-scope/internal/display"
	"github.com/anizozina/nestjs-als-vs-request-scope/internal/export"
	"github.com/anizozina/nestjs-als-vs-request-scope/internal/loadgen"
	"github.com/anizozina/nestjs-als-vs-request-scope/internal/logging"
	"github.com/anizozina/nestjs-als-vs-request-scope/internal/runner"
	"github.com/anizozina/nestjs-als-vs-request-scope/internal/store"
	"github.com/anizozina/nestjs-als-vs-request-scope/internal/target"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		logrus.WithError(err).Error("benchmark failed")
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "benchmark",
		Short: "Compare request-context propagation strategies under HTTP load",
		Long: `Runs the endpoint suite one endpoint at a time: reset, settle, warm-up, measure.
Container CPU and memory are read from cgroup files while the load runs, and a JSON
report comparing every endpoint against the first one is written at the end.

All settings come from BENCH_* environment variables, optionally loaded from .env files.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.DefaultEnvFiles)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}

func run(ctx context.Context, cfg *config.Configuration, out io.Writer) error {
	log := logging.New(cfg.LogLevel, os.Stderr)

	endpoints, err := scenarios.Load(cfg.SuiteFile)
	if err != nil {
		return fmt.Errorf("load suite: %w", err)
	}

	client := target.New(cfg.Load.BaseURL, cfg.Timing.CollaboratorTimeout, log)

	if cfg.ComposeFile != "" {
		lifecycle := container.New(container.Config{
			Name:        "service under test",
			ComposeFile: cfg.ComposeFile,
			WaitForReady: func(ctx context.Context) error {
				return client.WaitForReady(ctx, cfg.Timing.ReadyTimeout)
			},
		}, container.ExecRunner, log)
		if err := lifecycle.Start(ctx); err != nil {
			return err
		}
		defer lifecycle.Stop(context.Background())
	} else if cfg.Timing.ReadyTimeout > 0 {
		if err := client.WaitForReady(ctx, cfg.Timing.ReadyTimeout); err != nil {
			log.WithError(err).Warn("target not ready, continuing")
		}
	}

	probe := cgroup.New(cfg.CgroupRoot, log)
	log.WithField("cgroup", probe.DetectVersion()).Debug("resource probe ready")

	driver := loadgen.New(loadgen.Config{
		RequestIDHeader: cfg.Load.RequestIDHeader,
		RequestTimeout:  loadgen.DefaultRequestTimeout,
	})
	seq := runner.New(driver, client, probe, cfg.RunnerConfig(), log)

	printHeader(out, cfg, endpoints)
	log.WithFields(logrus.Fields{
		"endpoints":   len(endpoints),
		"connections": cfg.Load.Connections,
		"duration":    cfg.LoadConfig().Duration(),
	}).Info("starting benchmark suite")

	results := seq.RunSuite(ctx, endpoints)
	report := benchmark.NewReport(cfg.SuiteConfig(endpoints), results, time.Now())

	display.Summary(out, report.Results)
	display.Comparison(out, report.Results, report.Comparison)
	display.Table(out, report.Results)

	opts := export.Options{
		Dir:         cfg.Report.Dir,
		FileName:    cfg.Report.FileName,
		Timestamped: cfg.Report.Timestamped,
	}
	path, err := export.PersistJSON(opts, report)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Results saved to: %s\n", path)

	if cfg.Report.CSV {
		csvPath := opts.CSVPath(report)
		if err := export.ResultsToCSV(report.Results, csvPath); err != nil {
			return err
		}
		fmt.Fprintf(out, "CSV exported to: %s\n", csvPath)
	}

	if cfg.HistoryDSN != "" {
		saveHistory(ctx, cfg.HistoryDSN, report, log)
	}

	return nil
}

func printHeader(out io.Writer, cfg *config.Configuration, endpoints []benchmark.EndpointSpec) {
	fmt.Fprintln(out, "Context Propagation Benchmark")
	fmt.Fprintln(out, strings.Repeat("=", 60))
	fmt.Fprintf(out, "Target:       %s\n", cfg.Load.BaseURL)
	fmt.Fprintf(out, "Connections:  %d\n", cfg.Load.Connections)
	fmt.Fprintf(out, "Duration:     %ds\n", cfg.Load.DurationSeconds)
	fmt.Fprintf(out, "Pipelining:   %d\n", cfg.Load.Pipelining)
	fmt.Fprintf(out, "Warm-up:      %d connections, %ds\n", cfg.Load.WarmupConnections, cfg.Load.WarmupDurationSeconds)
	names := make([]string, len(endpoints))
	for i, ep := range endpoints {
		names[i] = ep.Name
	}
	fmt.Fprintf(out, "Endpoints:    %s\n", strings.Join(names, ", "))
	fmt.Fprintln(out)
}

// saveHistory is best-effort; failures are logged and the run still succeeds
func saveHistory(ctx context.Context, dsn string, report benchmark.Report, log logrus.FieldLogger) {
	history, err := store.Open(ctx, dsn)
	if err != nil {
		log.WithError(err).Error("history store unavailable")
		return
	}
	defer history.Close()

	if err := history.EnsureSchema(ctx); err != nil {
		log.WithError(err).Error("history schema")
		return
	}
	if err := history.SaveReport(ctx, report); err != nil {
		log.WithError(err).Error("history write failed")
		return
	}
	log.WithField("run_id", report.RunID).Info("run recorded in history")
}
