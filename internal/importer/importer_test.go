package importer

import (
	"context"
	"sync"
	"testing"
	"time"

	corerrors "github.com/closelab/ledgerstats/internal/core/errors"
	"github.com/closelab/ledgerstats/internal/core/extract"
	"github.com/closelab/ledgerstats/internal/core/stats"
	"github.com/closelab/ledgerstats/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu        sync.Mutex
	ledgers   map[uint32]*ledger.Close
	failures  map[uint32]int // remaining transient failures per sequence
	fetched   []uint32
	closedSeq uint32
}

func (f *fakeSource) FetchLedger(_ context.Context, ref Ref) (*ledger.Close, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ref.Closed {
		return f.ledgers[f.closedSeq], nil
	}
	if f.failures[ref.Sequence] > 0 {
		f.failures[ref.Sequence]--
		return nil, corerrors.Transient("ledger %d unavailable", ref.Sequence)
	}
	c, ok := f.ledgers[ref.Sequence]
	if !ok {
		return nil, corerrors.NotFound("ledger %d", ref.Sequence)
	}
	f.fetched = append(f.fetched, ref.Sequence)
	return c, nil
}

type fakeStore struct {
	mu          sync.Mutex
	trades      []stats.TradeRollup
	balances    []stats.BalanceRollup
	counters    []stats.CounterRollup
	checkpoints map[string]uint32
}

func newFakeStore() *fakeStore {
	return &fakeStore{checkpoints: make(map[string]uint32)}
}

func (f *fakeStore) UpsertTradeRollups(_ context.Context, rs []stats.TradeRollup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, rs...)
	return nil
}

func (f *fakeStore) UpsertBalanceRollups(_ context.Context, rs []stats.BalanceRollup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances = append(f.balances, rs...)
	return nil
}

func (f *fakeStore) UpsertCounterRollups(_ context.Context, rs []stats.CounterRollup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters = append(f.counters, rs...)
	return nil
}

func (f *fakeStore) ScanTradeRollups(context.Context, string, string, string) ([]stats.TradeRollup, error) {
	return nil, nil
}

func (f *fakeStore) ScanBalanceRollups(context.Context, string, string, string, string) ([]stats.BalanceRollup, error) {
	return nil, nil
}

func (f *fakeStore) ScanCounterRollups(context.Context, stats.CounterKind, string, string) ([]stats.CounterRollup, error) {
	return nil, nil
}

func (f *fakeStore) ReadCheckpoint(_ context.Context, stream string) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkpoints[stream], nil
}

func (f *fakeStore) WriteCheckpoint(_ context.Context, stream string, seq uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoints[stream] = seq
	return nil
}

func tradeClose(seq uint32, at time.Time) *ledger.Close {
	c := &ledger.Close{
		Sequence:     seq,
		Hash:         "LEDGER",
		CloseTimeUTC: at,
		Transactions: []ledger.Transaction{{
			Hash:   "TX1",
			Type:   ledger.TxPayment,
			Result: ledger.ResultSuccess,
			Affected: []ledger.EntryDelta{{
				Kind:   ledger.EntryOffer,
				Change: ledger.ChangeModified,
				Previous: map[string]interface{}{
					"TakerPays": map[string]interface{}{"currency": "USD", "issuer": "rI", "value": "100"},
					"TakerGets": "6000000",
				},
				Final: map[string]interface{}{
					"TakerPays": map[string]interface{}{"currency": "USD", "issuer": "rI", "value": "40"},
					"TakerGets": "1000000",
				},
			}},
		}},
	}
	c.TxSetHash = c.ComputeTxSetHash()
	return c
}

func TestImportRange_FlushesAndCheckpoints(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	src := &fakeSource{ledgers: map[uint32]*ledger.Close{}}
	for seq := uint32(100); seq <= 110; seq++ {
		src.ledgers[seq] = tradeClose(seq, at.Add(time.Duration(seq)*time.Second))
	}
	store := newFakeStore()

	imp := New(src, store, Options{WorkerCount: 4, BatchSize: 4})
	last, err := imp.ImportRange(context.Background(), 100, 110)
	require.NoError(t, err)
	require.Equal(t, uint32(110), last)
	require.Equal(t, uint32(110), store.checkpoints[CheckpointStream])

	// 11 ledgers, each with one trade emitted under both pair orientations.
	require.Len(t, store.trades, 22)
}

func TestImportRange_RetriesTransient(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	src := &fakeSource{
		ledgers:  map[uint32]*ledger.Close{100: tradeClose(100, at)},
		failures: map[uint32]int{100: 2},
	}
	store := newFakeStore()

	imp := New(src, store, Options{RetryAttempts: 3, RetryBackoff: time.Millisecond})
	last, err := imp.ImportRange(context.Background(), 100, 100)
	require.NoError(t, err)
	require.Equal(t, uint32(100), last)
}

func TestImportRange_NotFoundNotRetried(t *testing.T) {
	src := &fakeSource{ledgers: map[uint32]*ledger.Close{}}
	store := newFakeStore()

	imp := New(src, store, Options{RetryBackoff: time.Millisecond})
	_, err := imp.ImportRange(context.Background(), 100, 100)
	require.ErrorIs(t, err, corerrors.ErrNotFound)
	require.Equal(t, uint32(0), store.checkpoints[CheckpointStream], "no checkpoint on failure")
}

func TestImportRange_IntegrityViolationHalts(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	bad := tradeClose(100, at)
	bad.TxSetHash = "DEADBEEF"
	src := &fakeSource{ledgers: map[uint32]*ledger.Close{100: bad}}
	store := newFakeStore()

	imp := New(src, store, Options{})
	_, err := imp.ImportRange(context.Background(), 100, 100)
	require.ErrorIs(t, err, corerrors.ErrIntegrity)
	require.Empty(t, store.trades, "a tampered ledger must not produce aggregates")
}

func TestFoldSet_GroupsBySubjectAndSecond(t *testing.T) {
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	set := extract.Extract(tradeClose(100, at))
	require.Len(t, set.Trades, 2)

	flush, err := FoldSet(set)
	require.NoError(t, err)
	require.Len(t, flush.Trades, 2, "one rollup per pair orientation per second")

	for _, r := range flush.Trades {
		require.Equal(t, int64(1), r.TradeCount)
		require.Len(t, r.Key, 6)
	}
	require.True(t, flush.Trades[0].VolumeBase.Equal(decimal.NewFromInt(60)))
}
