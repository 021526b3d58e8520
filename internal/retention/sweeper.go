package retention

import (
	"context"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/marketlink/marketlink/core/logger"
	"github.com/marketlink/marketlink/internal/store"
	"log/slog"
)

// Store is the repository slice the sweeper reads and cleans.
type Store interface {
	ListArtifactRefs(ctx context.Context) ([]store.ArtifactRef, error)
	ClearOrderProof(ctx context.Context, id int64) error
	ClearPaymentProof(ctx context.Context, id int64) error
}

// Blobs is the artifact-store slice the sweeper needs.
type Blobs interface {
	ModTime(path string) (time.Time, error)
	Remove(path string) error
}

// Sweeper bounds artifact growth: proof images older than the retention
// window are deleted and their references cleared. Each pass is re-entrant;
// per-item failures are skipped and retried on the next pass.
type Sweeper struct {
	store  Store
	blobs  Blobs
	window time.Duration
	now    func() time.Time

	cron *cron.Cron
}

// NewSweeper builds a Sweeper. now is optional and defaults to time.Now.
func NewSweeper(st Store, blobs Blobs, window time.Duration, now func() time.Time) *Sweeper {
	if now == nil {
		now = time.Now
	}
	return &Sweeper{store: st, blobs: blobs, window: window, now: now}
}

// Sweep runs a single reclamation pass.
func (s *Sweeper) Sweep(ctx context.Context) {
	start := s.now()
	cutoff := start.Add(-s.window)

	refs, err := s.store.ListArtifactRefs(ctx)
	if err != nil {
		logger.Error(ctx, "retention", "sweep.failed",
			slog.String("err", err.Error()),
		)
		return
	}

	var removed, cleared, skipped int
	for _, ref := range refs {
		modTime, err := s.blobs.ModTime(ref.Path)
		if os.IsNotExist(err) {
			// File already gone: only the dangling reference remains.
			if err := s.clearRef(ctx, ref); err != nil {
				skipped++
				continue
			}
			cleared++
			continue
		}
		if err != nil {
			logger.Warn(ctx, "retention", "artifact.stat_failed",
				slog.String("artifact", ref.Path),
				slog.String("err", err.Error()),
			)
			skipped++
			continue
		}
		if !modTime.Before(cutoff) {
			continue
		}
		if err := s.blobs.Remove(ref.Path); err != nil {
			logger.Warn(ctx, "retention", "artifact.remove_failed",
				slog.String("artifact", ref.Path),
				slog.String("err", err.Error()),
			)
			skipped++
			continue
		}
		if err := s.clearRef(ctx, ref); err != nil {
			skipped++
			continue
		}
		removed++
	}

	logger.Info(ctx, "retention", "sweep.complete",
		slog.Int("count", len(refs)),
		slog.Int("removed", removed),
		slog.Int("cleared", cleared),
		slog.Int("skipped", skipped),
		slog.Int64("duration_ms", logger.RoundMS(s.now().Sub(start)).Milliseconds()),
	)
}

func (s *Sweeper) clearRef(ctx context.Context, ref store.ArtifactRef) error {
	var err error
	if ref.Kind == "order" {
		err = s.store.ClearOrderProof(ctx, ref.ID)
	} else {
		err = s.store.ClearPaymentProof(ctx, ref.ID)
	}
	if err != nil {
		logger.Warn(ctx, "retention", "ref.clear_failed",
			slog.String("kind", ref.Kind),
			slog.String("artifact", ref.Path),
			slog.String("err", err.Error()),
		)
	}
	return err
}

// Start schedules a first pass after the given delay and a daily pass
// afterwards. It returns immediately; Stop ends the schedule.
func (s *Sweeper) Start(ctx context.Context, startDelay time.Duration) error {
	s.cron = cron.New()
	if _, err := s.cron.AddFunc("@daily", func() { s.Sweep(ctx) }); err != nil {
		return err
	}
	s.cron.Start()

	go func() {
		select {
		case <-time.After(startDelay):
			s.Sweep(ctx)
		case <-ctx.Done():
		}
	}()

	logger.Info(ctx, "retention", "sweep.scheduled",
		slog.String("cadence", "@daily"),
		slog.Int64("start_delay_ms", startDelay.Milliseconds()),
	)
	return nil
}

// Stop halts the schedule; a pass already in flight finishes on its own.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
}
