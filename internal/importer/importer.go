// Package importer walks the ledger stream, extracts events and flushes
// depth-6 rollups to the bucket store.
//
// Extraction is pure, so ledgers are processed concurrently; commutativity of
// the combiners makes cross-ledger emission order irrelevant. The importer
// owns the retry policy that the core deliberately does not have.
package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	corerrors "github.com/closelab/ledgerstats/internal/core/errors"
	"github.com/closelab/ledgerstats/internal/core/extract"
	"github.com/closelab/ledgerstats/internal/core/storage"
	"github.com/closelab/ledgerstats/internal/ledger"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// CheckpointStream names the import progress row in the store.
const CheckpointStream = "ledger-import"

const (
	defaultWorkerCount  = 8
	defaultBatchSize    = 64
	defaultRetryAttempt = 5
	defaultRetryBackoff = 500 * time.Millisecond
)

// Options control importer throughput and retry behavior.
type Options struct {
	WorkerCount   int
	BatchSize     int
	RetryAttempts int
	RetryBackoff  time.Duration
}

func (o Options) normalized() Options {
	n := o
	if n.WorkerCount <= 0 {
		n.WorkerCount = defaultWorkerCount
	}
	if n.BatchSize <= 0 {
		n.BatchSize = defaultBatchSize
	}
	if n.RetryAttempts <= 0 {
		n.RetryAttempts = defaultRetryAttempt
	}
	if n.RetryBackoff <= 0 {
		n.RetryBackoff = defaultRetryBackoff
	}
	return n
}

// Store is the persistence the importer needs: rollup upserts plus the
// import checkpoint.
type Store interface {
	storage.BucketStore
	storage.CheckpointStore
}

// Importer pulls ledgers from a Source and flushes their rollups.
type Importer struct {
	source Source
	store  Store
	opts   Options
}

// New creates an importer.
func New(source Source, store Store, opts Options) *Importer {
	return &Importer{source: source, store: store, opts: opts.normalized()}
}

// ImportRange imports ledgers [from, to] in sequence batches. Each batch is
// fetched and extracted concurrently, flushed, and only then checkpointed, so
// a crash replays at most one batch. Returns the last checkpointed sequence.
func (i *Importer) ImportRange(ctx context.Context, from, to uint32) (uint32, error) {
	if from > to {
		return 0, fmt.Errorf("invalid import range [%d, %d]", from, to)
	}

	runID := uuid.New().String()
	slog.Info("[Importer] Starting import run",
		"run_id", runID,
		"from", from,
		"to", to,
		"workers", i.opts.WorkerCount,
		"batch_size", i.opts.BatchSize,
	)

	last := from - 1
	for batchStart := from; batchStart <= to; {
		batchEnd := batchStart + uint32(i.opts.BatchSize) - 1
		if batchEnd > to {
			batchEnd = to
		}

		if err := i.importBatch(ctx, batchStart, batchEnd); err != nil {
			return last, fmt.Errorf("import batch [%d, %d]: %w", batchStart, batchEnd, err)
		}

		if err := i.store.WriteCheckpoint(ctx, CheckpointStream, batchEnd); err != nil {
			return last, err
		}
		last = batchEnd
		batchStart = batchEnd + 1
	}

	slog.Info("[Importer] Import run complete", "run_id", runID, "through", last)
	return last, nil
}

// importBatch fans the batch's sequences out over the worker pool. Every
// ledger is flushed independently; the batch fails fast on the first
// non-recoverable error.
func (i *Importer) importBatch(ctx context.Context, from, to uint32) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.opts.WorkerCount)

	for seq := from; seq <= to; seq++ {
		seq := seq
		g.Go(func() error {
			return i.importOne(gctx, seq)
		})
	}
	return g.Wait()
}

// importOne fetches, verifies, extracts and flushes a single ledger.
// Integrity violations halt the ledger and propagate; they are never retried
// and never produce partial aggregates.
func (i *Importer) importOne(ctx context.Context, seq uint32) error {
	c, err := i.fetchWithRetry(ctx, RefBySequence(seq))
	if err != nil {
		return err
	}
	_, err = i.Ingest(ctx, c)
	return err
}

// Ingest verifies, extracts and flushes a single fully-formed ledger close.
// This is the shared sink for the pull path and for ledgers submitted over
// HTTP. No aggregate is written when the transaction set hash does not match.
func (i *Importer) Ingest(ctx context.Context, c *ledger.Close) (*Flush, error) {
	if err := c.VerifyTxSetHash(); err != nil {
		return nil, corerrors.Integrity("ledger %d: %v", c.Sequence, err)
	}

	set := extract.Extract(c)
	if set.Empty() {
		return &Flush{}, nil
	}

	flush, err := FoldSet(set)
	if err != nil {
		return nil, fmt.Errorf("fold ledger %d: %w", c.Sequence, err)
	}

	if err := i.store.UpsertTradeRollups(ctx, flush.Trades); err != nil {
		return nil, err
	}
	if err := i.store.UpsertBalanceRollups(ctx, flush.Balances); err != nil {
		return nil, err
	}
	if err := i.store.UpsertCounterRollups(ctx, flush.Counters); err != nil {
		return nil, err
	}

	slog.Debug("[Importer] Ledger flushed",
		"sequence", c.Sequence,
		"trades", len(flush.Trades),
		"balances", len(flush.Balances),
		"counters", len(flush.Counters),
	)
	return flush, nil
}

// fetchWithRetry retries transient source failures with exponential backoff.
// NotFound and every other failure propagate immediately.
func (i *Importer) fetchWithRetry(ctx context.Context, ref Ref) (*ledger.Close, error) {
	backoff := i.opts.RetryBackoff

	var lastErr error
	for attempt := 0; attempt < i.opts.RetryAttempts; attempt++ {
		c, err := i.source.FetchLedger(ctx, ref)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, corerrors.ErrTransient) {
			return nil, err
		}
		lastErr = err

		slog.Warn("[Importer] Transient fetch failure, backing off",
			"ref", ref,
			"attempt", attempt+1,
			"backoff", backoff,
			"error", err,
		)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("fetch %v: retries exhausted: %w", ref, lastErr)
}
