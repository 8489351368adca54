// Command consolidate merges each dataset folder of raw .csv and line-JSON
// files into one gzip-compressed NDJSON artifact, resuming interrupted runs
// from per-dataset checkpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"consolidate/internal/checkpoint"
	"consolidate/internal/config"
	"consolidate/internal/datasource/file"
	"consolidate/internal/metrics"
	"consolidate/internal/metrics/datadog"
	"consolidate/internal/metrics/prompush"
	"consolidate/internal/pipeline"
	"consolidate/internal/runlog"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type flags struct {
	cfgPath        string
	input          string
	output         string
	logDir         string
	datasets       string
	datasetsFile   string
	validate       bool
	verbose        bool
	metricsBackend string
	pushGatewayURL string
	dogstatsdAddr  string
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("consolidate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.cfgPath, "config", "", "run config JSON path (optional)")
	fs.StringVar(&f.input, "input", "", "input root holding one folder per dataset (overrides input_root)")
	fs.StringVar(&f.output, "output", "", "output directory for artifacts and checkpoints (overrides output_dir)")
	fs.StringVar(&f.logDir, "logs", "", "directory for the run log file (overrides log_dir)")
	fs.StringVar(&f.datasets, "datasets", "", "comma-separated dataset names (overrides datasets)")
	fs.StringVar(&f.datasetsFile, "datasets-file", "", "file listing dataset names, one per line")
	fs.BoolVar(&f.validate, "validate", false, "validate the configuration and exit")
	fs.BoolVar(&f.verbose, "v", false, "mirror the run log to stderr")
	fs.StringVar(&f.metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog or none (overrides env METRICS_BACKEND)")
	fs.StringVar(&f.pushGatewayURL, "pushgateway-url", "", "Pushgateway base URL (overrides env PUSHGATEWAY_URL)")
	fs.StringVar(&f.dogstatsdAddr, "dogstatsd-addr", "", "DogStatsD address (overrides env DOGSTATSD_ADDR)")
	err := fs.Parse(args)
	return f, err
}

// loadRun merges the optional config file with flag overrides.
func loadRun(f flags) (config.Run, error) {
	var r config.Run
	if f.cfgPath != "" {
		var err error
		if r, err = config.Load(f.cfgPath); err != nil {
			return r, err
		}
	}
	if f.input != "" {
		r.InputRoot = f.input
	}
	if f.output != "" {
		r.OutputDir = f.output
	}
	if f.logDir != "" {
		r.LogDir = f.logDir
	}
	if f.datasets != "" {
		r.Datasets = file.SplitNames(f.datasets)
	}
	if f.datasetsFile != "" {
		names, err := file.ReadList(f.datasetsFile)
		if err != nil {
			return r, fmt.Errorf("read datasets file: %w", err)
		}
		r.Datasets = append(r.Datasets, names...)
	}
	r.ApplyDefaults()
	return r, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}

	cfg, err := loadRun(f)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	issues := config.ValidateRun(cfg)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		fmt.Fprintf(stderr, "configuration is invalid\n")
		return 1
	}
	if f.validate {
		fmt.Fprintf(stdout, "configuration is valid\n")
		return 0
	}

	opt, err := pipeline.OptionsFromConfig(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		fmt.Fprintf(stderr, "create output dir: %v\n", err)
		return 1
	}

	var mirror io.Writer
	if f.verbose {
		mirror = stderr
	}
	rl, err := runlog.Open(cfg.LogDir, time.Now(), mirror)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer rl.Close()
	logger := rl.Logger

	rejects, err := runlog.OpenRejects(cfg.LogDir, rl.Start())
	if err != nil {
		logger.Printf("rejects: %v", err)
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer rejects.Close()
	opt.Rejects = rejects

	if flush := setupMetrics(f, cfg.Job, logger); flush != nil {
		defer flush()
	}

	store, err := checkpoint.Open(ctx, checkpoint.Config{
		Kind: cfg.Checkpoint.Kind,
		Dir:  cfg.OutputDir,
		DSN:  cfg.Checkpoint.DSN,
	})
	if err != nil {
		logger.Printf("checkpoint: %v", err)
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer store.Close()

	orch := pipeline.NewOrchestrator(pipeline.NewProcessor(opt, store, logger), logger)
	results := orch.Run(ctx, cfg.Datasets)
	if counts := rejects.Counts(); len(counts) > 0 {
		logger.Printf("job: rejected records %s written to %s", strings.Join(counts, " "), rejects.Path())
	}
	pipeline.WriteSummary(stdout, results, rl.Path(), rejects.Path())

	if pipeline.Failed(results) > 0 {
		return 1
	}
	return 0
}

// setupMetrics installs the selected backend (flag → env → none) and returns
// its flush function, or nil when metrics are disabled.
func setupMetrics(f flags, job string, logger *log.Logger) func() {
	name := f.metricsBackend
	if name == "" {
		name = os.Getenv("METRICS_BACKEND")
	}

	var (
		b   metrics.Backend
		err error
	)
	switch name {
	case "pushgateway":
		url := f.pushGatewayURL
		if url == "" {
			url = os.Getenv("PUSHGATEWAY_URL")
		}
		if url == "" {
			url = "http://localhost:9091"
		}
		b, err = prompush.NewBackend(job, url)
		if err == nil {
			logger.Printf("metrics: backend=pushgateway url=%s job=%s", url, job)
		}

	case "datadog":
		addr := f.dogstatsdAddr
		if addr == "" {
			addr = os.Getenv("DOGSTATSD_ADDR")
		}
		if addr == "" {
			addr = "127.0.0.1:8125"
		}
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "consolidate.",
			GlobalTags: []string{"job:" + job},
		})
		if err == nil {
			logger.Printf("metrics: backend=datadog addr=%s job=%s", addr, job)
		}

	case "", "none":
		return nil

	default:
		logger.Printf("metrics: unknown backend %q; metrics disabled", name)
		return nil
	}

	if err != nil {
		logger.Printf("metrics: %v; using nop", err)
		return nil
	}
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			logger.Printf("metrics: flush error: %v", err)
		}
	}
}
