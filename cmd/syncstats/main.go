// Command syncstats reconciles Redis visitor counters into PostgreSQL on demand.
//
//	syncstats                         # yesterday
//	syncstats --date 2024-01-14       # one date
//	syncstats --date 2024-01-14 --days 7
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"techblog/internal/config"
	"techblog/internal/container"
	"techblog/internal/domain"
	"techblog/internal/service"
	"techblog/pkg/logger"
)

const (
	exitOK      = 0
	exitFailed  = 1
	exitInvalid = 2
)

type options struct {
	date string
	days int
}

func main() {
	opts, err := parseArgs(os.Args[1:], os.Stderr)
	if err != nil {
		if err == pflag.ErrHelp {
			os.Exit(exitOK)
		}
		fmt.Fprintf(os.Stderr, "syncstats: %v\n", err)
		os.Exit(exitInvalid)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(exitInvalid)
	}

	log, err := logger.New(logger.Options{
		Level:       cfg.LogLevel,
		Service:     "syncstats",
		Environment: cfg.Environment,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(exitFailed)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, cfg.SyncTimeout)
	defer cancel()

	c, err := container.New(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Error("Failed to initialize dependencies")
		os.Exit(exitFailed)
	}

	code := run(ctx, c.GetSyncService(), c.GetStatsService().Today(), opts, os.Stdout)
	if err := c.Close(); err != nil {
		log.WithError(err).Warn("Failed to close connections")
	}
	if code != exitOK {
		_ = log.Sync()
		os.Exit(code)
	}
}

func parseArgs(args []string, output io.Writer) (options, error) {
	var opts options

	fs := pflag.NewFlagSet("syncstats", pflag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVarP(&opts.date, "date", "d", "", "last date to reconcile as YYYY-MM-DD (default yesterday)")
	fs.IntVarP(&opts.days, "days", "n", 1, "number of consecutive dates ending at --date")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if opts.days < 1 || opts.days > service.MaxRangeDays {
		return opts, fmt.Errorf("--days must be between 1 and %d", service.MaxRangeDays)
	}
	if opts.date != "" {
		if _, err := domain.ParseDate(opts.date); err != nil {
			return opts, err
		}
	}

	return opts, nil
}

// run reconciles the requested dates and prints one line per date.
// It returns the process exit code.
func run(ctx context.Context, sync service.SyncService, today time.Time, opts options, out io.Writer) int {
	end := today.AddDate(0, 0, -1)
	if opts.date != "" {
		end, _ = domain.ParseDate(opts.date)
	}

	report, err := sync.SyncRange(ctx, end, opts.days)
	if err != nil {
		fmt.Fprintf(out, "syncstats: %v\n", err)
		return exitInvalid
	}

	for _, r := range report.Results {
		if r.Success {
			fmt.Fprintf(out, "%s  ok      %-8s visitors=%d unique=%d\n", r.Date, r.Action, r.VisitorCount, r.UniqueVisitorCount)
		} else {
			fmt.Fprintf(out, "%s  FAILED  %s: %s\n", r.Date, r.Message, r.Error)
		}
	}
	fmt.Fprintf(out, "requested=%d succeeded=%d failed=%d\n", report.Requested, report.Succeeded, report.Failed)

	if report.Failed > 0 {
		return exitFailed
	}
	return exitOK
}
