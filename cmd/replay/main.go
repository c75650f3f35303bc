package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	app "github.com/okian/cadence/internal/app"
	"github.com/okian/cadence/internal/config"
	"github.com/okian/cadence/internal/replay"
	"github.com/okian/cadence/pkg/logger"
)

const defaultReplayTimeout = 30 * time.Minute

func main() {
	var (
		source  = flag.String("source", "", "Attempt log (.xlsx, .csv or .json); empty generates one")
		sheet   = flag.String("sheet", "", "Spreadsheet sheet (default: the active sheet)")
		baseURL = flag.String("url", "", "Service URL; empty replays in process")
		workers = flag.Int("workers", replay.DefaultWorkers, "Users replayed concurrently")
		timeout = flag.Duration("timeout", replay.DefaultTimeout, "HTTP request timeout")
		output  = flag.String("output", "", "File for the final snapshots (JSON)")
		users   = flag.Int("users", 20, "Generated users")
		perUser = flag.Int("per-user", 200, "Generated attempts per user")
		seed    = flag.Uint64("seed", 1, "Generation seed")
		export  = flag.String("export", "", "Write the attempt log to this .xlsx file and exit")
		verbose = flag.Bool("verbose", false, "Enable verbose logging")
		gap     = flag.Duration("session-gap", replay.DefaultSessionGap, "Idle time that starts a new practice session")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultReplayTimeout)
	defer cancel()

	cfg := &replay.Config{
		Source:     *source,
		SheetName:  *sheet,
		BaseURL:    *baseURL,
		Workers:    *workers,
		Timeout:    *timeout,
		Output:     *output,
		Verbose:    *verbose,
		SessionGap: *gap,
		Users:      *users,
		PerUser:    *perUser,
		Seed:       *seed,
	}

	if *export != "" {
		attempts, err := replay.Attempts(cfg, &replay.Stats{})
		if err == nil {
			err = replay.WriteXLSX(*export, *sheet, attempts)
		}
		if err != nil {
			log.Error(ctx, "export failed", logger.Error(err))
			os.Exit(1)
		}
		log.Info(ctx, "attempt log written", logger.String("path", *export), logger.Int("attempts", len(attempts)))
		return
	}

	// Engine settings come from the same configuration as the server.
	svcCfg, err := config.Load(ctx)
	if err != nil {
		log.Error(ctx, "failed to load config", logger.Error(err))
		os.Exit(1)
	}
	svcCfg.Sanitize(ctx)
	opts := append(app.FromConfig(svcCfg), app.WithLogger(log.Named("service")))

	stats, snaps, err := replay.Run(ctx, cfg, opts...)
	if err != nil {
		log.Error(ctx, "replay failed", logger.Error(err))
		os.Exit(1)
	}
	replay.Summarize(ctx, stats, snaps)
}
