package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/closelab/ledgerstats/internal/core/partition"
	"github.com/closelab/ledgerstats/internal/core/stats"
)

// Upserts merge incoming rollups with stored rows through the stats
// combiners, inside one transaction per batch. Rows are locked FOR UPDATE and
// visited in (partition, subject, bucket key) order so concurrent importer
// workers acquire locks in the same sequence.

func (a *Adapter) UpsertTradeRollups(ctx context.Context, rollups []stats.TradeRollup) error {
	if len(rollups) == 0 {
		return nil
	}

	sorted := make([]stats.TradeRollup, len(rollups))
	copy(sorted, rollups)
	sort.Slice(sorted, func(i, j int) bool {
		pi, pj := sorted[i].Pair.String(), sorted[j].Pair.String()
		if partition.For(pi) != partition.For(pj) {
			return partition.For(pi) < partition.For(pj)
		}
		if pi != pj {
			return pi < pj
		}
		return sorted[i].Key.String() < sorted[j].Key.String()
	})

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin trade upsert tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, r := range sorted {
		pairKey := r.Pair.String()
		bucketKey := r.Key.String()

		existing, found, err := selectTradeForUpdate(ctx, tx, pairKey, bucketKey, r)
		if err != nil {
			return err
		}

		merged := r
		if found {
			merged, err = stats.CombineTradeRollups(r.Key, []stats.TradeRollup{existing, r})
			if err != nil {
				return fmt.Errorf("merge trade rollup %s %s: %w", pairKey, bucketKey, err)
			}
		}

		_, err = tx.ExecContext(ctx, queryUpsertTrade,
			partition.For(pairKey), pairKey, bucketKey,
			merged.OpenTime.String(), merged.CloseTime.String(),
			merged.Open, merged.Close, merged.High, merged.Low,
			merged.VolumeNumerator, merged.VolumeBase, merged.VolumeCounter,
			merged.TradeCount, now,
		)
		if err != nil {
			return fmt.Errorf("upsert trade rollup %s %s: %w", pairKey, bucketKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit trade upsert tx: %w", err)
	}
	return nil
}

func selectTradeForUpdate(ctx context.Context, tx *sql.Tx, pairKey, bucketKey string, template stats.TradeRollup) (stats.TradeRollup, bool, error) {
	var (
		r                   stats.TradeRollup
		openTime, closeTime string
	)
	err := tx.QueryRowContext(ctx, querySelectTradeForUpdate, pairKey, bucketKey).Scan(
		&openTime, &closeTime,
		&r.Open, &r.Close, &r.High, &r.Low,
		&r.VolumeNumerator, &r.VolumeBase, &r.VolumeCounter, &r.TradeCount,
	)
	if err == sql.ErrNoRows {
		return stats.TradeRollup{}, false, nil
	}
	if err != nil {
		return stats.TradeRollup{}, false, fmt.Errorf("select trade rollup %s %s: %w", pairKey, bucketKey, err)
	}

	r.Pair = template.Pair
	r.Key = template.Key
	if r.OpenTime, err = parseKeyColumn(openTime); err != nil {
		return stats.TradeRollup{}, false, err
	}
	if r.CloseTime, err = parseKeyColumn(closeTime); err != nil {
		return stats.TradeRollup{}, false, err
	}
	return r, true, nil
}

func (a *Adapter) UpsertBalanceRollups(ctx context.Context, rollups []stats.BalanceRollup) error {
	if len(rollups) == 0 {
		return nil
	}

	sorted := make([]stats.BalanceRollup, len(rollups))
	copy(sorted, rollups)
	sort.Slice(sorted, func(i, j int) bool {
		si := balanceSubjectKey(sorted[i])
		sj := balanceSubjectKey(sorted[j])
		if partition.For(si) != partition.For(sj) {
			return partition.For(si) < partition.For(sj)
		}
		if si != sj {
			return si < sj
		}
		return sorted[i].Key.String() < sorted[j].Key.String()
	})

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin balance upsert tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, r := range sorted {
		bucketKey := r.Key.String()

		existing, found, err := selectBalanceForUpdate(ctx, tx, r)
		if err != nil {
			return err
		}

		merged := r
		if found {
			merged, err = stats.CombineBalanceRollups(r.Key, []stats.BalanceRollup{existing, r})
			if err != nil {
				return fmt.Errorf("merge balance rollup %s %s: %w", balanceSubjectKey(r), bucketKey, err)
			}
		}

		_, err = tx.ExecContext(ctx, queryUpsertBalance,
			partition.For(balanceSubjectKey(r)),
			r.Subject, r.Currency, r.Counterparty, bucketKey,
			merged.Latest, merged.LatestTime.String(),
			merged.ChangeSum, merged.ChangeCount, now,
		)
		if err != nil {
			return fmt.Errorf("upsert balance rollup %s %s: %w", balanceSubjectKey(r), bucketKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit balance upsert tx: %w", err)
	}
	return nil
}

func balanceSubjectKey(r stats.BalanceRollup) string {
	return r.Subject + "|" + r.Currency + "|" + r.Counterparty
}

func selectBalanceForUpdate(ctx context.Context, tx *sql.Tx, template stats.BalanceRollup) (stats.BalanceRollup, bool, error) {
	var (
		r          stats.BalanceRollup
		latestTime string
	)
	err := tx.QueryRowContext(ctx, querySelectBalanceForUpdate,
		template.Subject, template.Currency, template.Counterparty, template.Key.String(),
	).Scan(&r.Latest, &latestTime, &r.ChangeSum, &r.ChangeCount)
	if err == sql.ErrNoRows {
		return stats.BalanceRollup{}, false, nil
	}
	if err != nil {
		return stats.BalanceRollup{}, false, fmt.Errorf("select balance rollup: %w", err)
	}

	r.Subject = template.Subject
	r.Currency = template.Currency
	r.Counterparty = template.Counterparty
	r.Key = template.Key
	if r.LatestTime, err = parseKeyColumn(latestTime); err != nil {
		return stats.BalanceRollup{}, false, err
	}
	return r, true, nil
}

func (a *Adapter) UpsertCounterRollups(ctx context.Context, rollups []stats.CounterRollup) error {
	if len(rollups) == 0 {
		return nil
	}

	sorted := make([]stats.CounterRollup, len(rollups))
	copy(sorted, rollups)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Kind != sorted[j].Kind {
			return sorted[i].Kind < sorted[j].Kind
		}
		return sorted[i].Key.String() < sorted[j].Key.String()
	})

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin counter upsert tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, r := range sorted {
		bucketKey := r.Key.String()

		existing, found, err := selectCounterForUpdate(ctx, tx, r)
		if err != nil {
			return err
		}

		merged := r
		if found {
			merged, err = stats.CombineCounterRollups(r.Key, []stats.CounterRollup{existing, r})
			if err != nil {
				return fmt.Errorf("merge counter rollup %s %s: %w", r.Kind, bucketKey, err)
			}
		}

		_, err = tx.ExecContext(ctx, queryUpsertCounter,
			partition.For(string(r.Kind)), string(r.Kind), bucketKey,
			merged.Count, merged.LastValue, merged.LatestTime.String(), now,
		)
		if err != nil {
			return fmt.Errorf("upsert counter rollup %s %s: %w", r.Kind, bucketKey, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit counter upsert tx: %w", err)
	}
	return nil
}

func selectCounterForUpdate(ctx context.Context, tx *sql.Tx, template stats.CounterRollup) (stats.CounterRollup, bool, error) {
	var (
		r          stats.CounterRollup
		latestTime string
	)
	err := tx.QueryRowContext(ctx, querySelectCounterForUpdate,
		string(template.Kind), template.Key.String(),
	).Scan(&r.Count, &r.LastValue, &latestTime)
	if err == sql.ErrNoRows {
		return stats.CounterRollup{}, false, nil
	}
	if err != nil {
		return stats.CounterRollup{}, false, fmt.Errorf("select counter rollup: %w", err)
	}

	r.Kind = template.Kind
	r.Key = template.Key
	if r.LatestTime, err = parseKeyColumn(latestTime); err != nil {
		return stats.CounterRollup{}, false, err
	}
	return r, true, nil
}

// ReadCheckpoint returns 0 when no checkpoint row exists yet.
func (a *Adapter) ReadCheckpoint(ctx context.Context, stream string) (uint32, error) {
	var seq int64
	err := a.db.QueryRowContext(ctx, queryReadCheckpoint, stream).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read checkpoint %q: %w", stream, err)
	}
	return uint32(seq), nil
}

func (a *Adapter) WriteCheckpoint(ctx context.Context, stream string, sequence uint32) error {
	_, err := a.db.ExecContext(ctx, queryWriteCheckpoint, stream, int64(sequence), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write checkpoint %q: %w", stream, err)
	}
	return nil
}
