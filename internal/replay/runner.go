package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	service "github.com/okian/cadence/internal/app"
	"github.com/okian/cadence/internal/domain/model"
	"github.com/okian/cadence/internal/engine"
	"github.com/okian/cadence/pkg/logger"
)

// Run executes a complete replay. Without cfg.BaseURL the attempts go
// through an in-process service built with opts.
func Run(ctx context.Context, cfg *Config, opts ...service.Option) (*Stats, map[string]engine.Snapshot, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()

	attempts, err := Attempts(cfg, stats)
	if err != nil {
		return stats, nil, fmt.Errorf("failed to load attempts: %w", err)
	}
	log.Info(ctx, "starting replay",
		logger.String("source", cfg.Source),
		logger.String("target", cfg.BaseURL),
		logger.Int("attempts", len(attempts)),
		logger.Int("workers", cfg.Workers),
	)

	var target Target
	if cfg.BaseURL != "" {
		ht := NewHTTPTarget(cfg.BaseURL, cfg.Timeout)
		if err := ht.CheckHealth(ctx); err != nil {
			return stats, nil, fmt.Errorf("service health check failed: %w", err)
		}
		target = ht
	} else {
		svc := service.New(opts...)
		if err := svc.Start(ctx); err != nil {
			return stats, nil, fmt.Errorf("failed to start service: %w", err)
		}
		defer svc.Stop()
		target = NewServiceTarget(svc)
	}

	snaps, err := Replay(ctx, target, attempts, cfg.Workers, cfg.SessionGap, cfg.Verbose, stats)
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	if err != nil {
		return stats, nil, err
	}

	if cfg.Output != "" {
		if err := SaveSnapshots(cfg.Output, snaps); err != nil {
			log.Warn(ctx, "failed to save snapshots", logger.Error(err))
		}
	}
	return stats, snaps, nil
}

// Attempts loads cfg.Source, or generates a log when it is empty, and
// returns the attempts in chronological order.
func Attempts(cfg *Config, stats *Stats) ([]model.AttemptEvent, error) {
	var attempts []model.AttemptEvent
	if cfg.Source == "" {
		at := cfg.GeneratedAt
		if at.IsZero() {
			at = time.Now().UTC().Add(-24 * time.Hour)
		}
		attempts = Generate(cfg.Seed, cfg.Users, cfg.PerUser, at)
	} else {
		var err error
		attempts, stats.RowErrors, err = Load(cfg.Source, cfg.SheetName)
		if err != nil {
			return nil, err
		}
	}
	SortChronological(attempts)
	stats.Loaded = len(attempts)
	return attempts, nil
}

// Replay submits attempts to target. Each user's attempts go in order on
// one goroutine; up to workers users run at once. Attempts more than gap
// apart start a new session, and every session's summary is submitted after
// its attempts. It returns the final snapshot of every user.
func Replay(ctx context.Context, target Target, attempts []model.AttemptEvent, workers int, gap time.Duration, verbose bool, stats *Stats) (map[string]engine.Snapshot, error) {
	log := logger.Get()
	if workers < 1 {
		workers = DefaultWorkers
	}

	byUser := make(map[string][]model.AttemptEvent)
	var users []string
	for _, a := range attempts {
		if _, ok := byUser[a.UserID]; !ok {
			users = append(users, a.UserID)
		}
		byUser[a.UserID] = append(byUser[a.UserID], a)
	}
	sort.Strings(users)
	stats.Users = len(users)

	var submitted, processed, duplicates, failed, sessions atomic.Int64
	jobs := make(chan string)
	var wg sync.WaitGroup
	for w := 0; w < min(workers, len(users)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for user := range jobs {
				for _, group := range SplitSessions(byUser[user], gap) {
					done := make([]model.AttemptEvent, 0, len(group))
					for _, a := range group {
						if ctx.Err() != nil {
							return
						}
						submitted.Add(1)
						dup, err := target.Submit(ctx, a)
						switch {
						case err != nil:
							failed.Add(1)
							log.Warn(ctx, "attempt failed",
								logger.String("userID", a.UserID),
								logger.String("attemptID", a.ID),
								logger.Error(err),
							)
						case dup:
							duplicates.Add(1)
						default:
							processed.Add(1)
							done = append(done, a)
							if verbose {
								log.Debug(ctx, "attempt replayed",
									logger.String("userID", a.UserID),
									logger.String("item", a.Item.Key()),
									logger.Bool("correct", a.Correct),
								)
							}
						}
					}

					sum, ok := SummarizeSession(done)
					if !ok {
						continue
					}
					if err := target.SubmitSession(ctx, sum); err != nil {
						log.Warn(ctx, "session failed",
							logger.String("userID", user),
							logger.Time("start", sum.Start),
							logger.Error(err),
						)
						continue
					}
					sessions.Add(1)
				}
			}
		}()
	}

feed:
	for _, u := range users {
		select {
		case jobs <- u:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Processed = int(processed.Load())
	stats.Duplicates = int(duplicates.Load())
	stats.Failed = int(failed.Load())
	stats.Sessions = int(sessions.Load())
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("replay interrupted: %w", err)
	}

	snaps := make(map[string]engine.Snapshot, len(users))
	for _, u := range users {
		snap, err := target.Snapshot(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("snapshot for %s: %w", u, err)
		}
		snaps[u] = snap
	}
	return snaps, nil
}

// SaveSnapshots writes snaps as indented JSON.
func SaveSnapshots(path string, snaps map[string]engine.Snapshot) error {
	data, err := json.MarshalIndent(snaps, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshots: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), directoryPermission); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, filePermission); err != nil {
		return fmt.Errorf("failed to write snapshots: %w", err)
	}
	return nil
}

// Summarize logs the final statistics and one line per learner.
func Summarize(ctx context.Context, stats *Stats, snaps map[string]engine.Snapshot) {
	log := logger.Get()
	log.Info(ctx, "replay finished",
		logger.Int("loaded", stats.Loaded),
		logger.Int("rowErrors", len(stats.RowErrors)),
		logger.Int("users", stats.Users),
		logger.Int("submitted", stats.Submitted),
		logger.Int("processed", stats.Processed),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("failed", stats.Failed),
		logger.Int("sessions", stats.Sessions),
		logger.Duration("duration", stats.Duration),
	)
	for _, e := range stats.RowErrors {
		log.Warn(ctx, "skipped row", logger.String("detail", e))
	}

	users := make([]string, 0, len(snaps))
	for u := range snaps {
		users = append(users, u)
	}
	sort.Strings(users)
	for _, u := range users {
		s := snaps[u]
		log.Info(ctx, "learner state",
			logger.String("userID", u),
			logger.Int("attempts", s.Attempts),
			logger.Int("sessions", s.Temporal.Sessions),
			logger.String("flow", s.Flow.State.String()),
			logger.String("momentum", s.Momentum.Type.String()),
			logger.Float64("confidence", s.Confidence.Overall),
			logger.Int("cards", s.Scheduling.Cards),
			logger.Int("due", s.Scheduling.Due),
		)
	}
}
