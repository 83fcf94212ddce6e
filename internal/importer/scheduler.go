package importer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	corerrors "github.com/closelab/ledgerstats/internal/core/errors"
)

// Scheduler keeps the store caught up with the live ledger stream. Each tick
// reads the import checkpoint, discovers the most recently closed ledger and
// imports the gap. It is stateless between ticks.
type Scheduler struct {
	interval time.Duration
	importer *Importer
	source   Source
	store    Store
	startSeq uint32
}

// NewScheduler creates a polling scheduler around an importer. startSeq picks
// the first ledger of a fresh deployment (no checkpoint yet); zero means
// start at the live tip.
func NewScheduler(interval time.Duration, imp *Importer, source Source, store Store, startSeq uint32) *Scheduler {
	return &Scheduler{
		interval: interval,
		importer: imp,
		source:   source,
		store:    store,
		startSeq: startSeq,
	}
}

// Start begins periodic catch-up. Runs until the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("[Scheduler] Starting import scheduler", "interval", s.interval)

	s.catchUp(ctx)

	for {
		select {
		case <-ticker.C:
			s.catchUp(ctx)
		case <-ctx.Done():
			slog.Info("[Scheduler] Stopping (context cancelled)")
			return nil
		}
	}
}

// catchUp imports everything between the checkpoint and the latest closed
// ledger. Integrity violations stop the run and are surfaced loudly: the gap
// stays open rather than skipping a bad ledger.
func (s *Scheduler) catchUp(ctx context.Context) {
	checkpoint, err := s.store.ReadCheckpoint(ctx, CheckpointStream)
	if err != nil {
		slog.Error("[Scheduler] Failed to read checkpoint", "error", err)
		return
	}

	tip, err := s.source.FetchLedger(ctx, RefClosed())
	if err != nil {
		slog.Error("[Scheduler] Failed to discover closed ledger", "error", err)
		return
	}

	if tip.Sequence <= checkpoint {
		slog.Debug("[Scheduler] Nothing to import", "checkpoint", checkpoint, "tip", tip.Sequence)
		return
	}

	from := checkpoint + 1
	if checkpoint == 0 {
		from = tip.Sequence
		if s.startSeq > 0 {
			from = s.startSeq
		}
	}

	last, err := s.importer.ImportRange(ctx, from, tip.Sequence)
	if err != nil {
		if errors.Is(err, corerrors.ErrIntegrity) {
			slog.Error("[Scheduler] Integrity violation, halting import run",
				"error", err,
				"checkpointed_through", last,
			)
			return
		}
		slog.Error("[Scheduler] Import run failed",
			"error", err,
			"checkpointed_through", last,
		)
		return
	}

	slog.Info("[Scheduler] Caught up", "through", last)
}
