package storage

import (
	"context"

	"github.com/closelab/ledgerstats/internal/core/stats"
)

// BucketStore is the sorted keyed store for rollups. Rows are keyed by
// (subject ++ encoded timestamp key) at full depth; range scans return rows
// in ascending bucket-key order, which is all the query layer needs to group
// by truncated prefix and rereduce.
//
// Upserts merge with existing rows through the stats combiners inside one
// transaction — the store never re-derives a rollup from raw events.
type BucketStore interface {
	UpsertTradeRollups(ctx context.Context, rollups []stats.TradeRollup) error
	UpsertBalanceRollups(ctx context.Context, rollups []stats.BalanceRollup) error
	UpsertCounterRollups(ctx context.Context, rollups []stats.CounterRollup) error

	// ScanTradeRollups returns stored depth-6 rollups for one pair with
	// startKey <= bucket key < endKey, ascending.
	ScanTradeRollups(ctx context.Context, pair string, startKey, endKey string) ([]stats.TradeRollup, error)

	// ScanBalanceRollups returns stored rollups for one (subject, currency),
	// all counterparties, within the key range, ascending.
	ScanBalanceRollups(ctx context.Context, subject, currency string, startKey, endKey string) ([]stats.BalanceRollup, error)

	// ScanCounterRollups returns stored rollups for one counter kind within
	// the key range, ascending.
	ScanCounterRollups(ctx context.Context, kind stats.CounterKind, startKey, endKey string) ([]stats.CounterRollup, error)
}

// CheckpointStore persists the importer's progress: the highest ledger
// sequence whose rollups are durably flushed.
type CheckpointStore interface {
	ReadCheckpoint(ctx context.Context, stream string) (uint32, error)
	WriteCheckpoint(ctx context.Context, stream string, sequence uint32) error
}
