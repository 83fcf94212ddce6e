package postgres

import (
	"context"
	"fmt"

	"github.com/closelab/ledgerstats/internal/core/stats"
	"github.com/closelab/ledgerstats/internal/core/timekey"
	"github.com/closelab/ledgerstats/internal/ledger"
)

func parseKeyColumn(s string) (timekey.Key, error) {
	k, err := timekey.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("stored bucket key is corrupt: %w", err)
	}
	return k, nil
}

// ScanTradeRollups returns stored rollups for one pair in ascending
// bucket-key order.
func (a *Adapter) ScanTradeRollups(ctx context.Context, pair string, startKey, endKey string) ([]stats.TradeRollup, error) {
	parsedPair, err := parsePairKey(pair)
	if err != nil {
		return nil, err
	}

	rows, err := a.stmtScanTrades.QueryContext(ctx, pair, startKey, endKey)
	if err != nil {
		return nil, fmt.Errorf("scan trade rollups %q: %w", pair, err)
	}
	defer rows.Close()

	var out []stats.TradeRollup
	for rows.Next() {
		var (
			r                              stats.TradeRollup
			bucketKey, openTime, closeTime string
		)
		if err := rows.Scan(
			&bucketKey, &openTime, &closeTime,
			&r.Open, &r.Close, &r.High, &r.Low,
			&r.VolumeNumerator, &r.VolumeBase, &r.VolumeCounter, &r.TradeCount,
		); err != nil {
			return nil, fmt.Errorf("scan trade rollup row: %w", err)
		}
		r.Pair = parsedPair
		if r.Key, err = parseKeyColumn(bucketKey); err != nil {
			return nil, err
		}
		if r.OpenTime, err = parseKeyColumn(openTime); err != nil {
			return nil, err
		}
		if r.CloseTime, err = parseKeyColumn(closeTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func parsePairKey(pair string) (stats.Pair, error) {
	var p stats.Pair
	baseStr, counterStr, ok := cutPair(pair)
	if !ok {
		return p, fmt.Errorf("invalid pair key %q", pair)
	}
	base, err := ledger.ParseAsset(baseStr)
	if err != nil {
		return p, err
	}
	counter, err := ledger.ParseAsset(counterStr)
	if err != nil {
		return p, err
	}
	return stats.Pair{Base: base, Counter: counter}, nil
}

func cutPair(pair string) (string, string, bool) {
	for i := 0; i < len(pair); i++ {
		if pair[i] == '/' {
			return pair[:i], pair[i+1:], true
		}
	}
	return "", "", false
}

// ScanBalanceRollups returns stored rollups for one (subject, currency)
// across all counterparties, ascending by bucket key.
func (a *Adapter) ScanBalanceRollups(ctx context.Context, subject, currency string, startKey, endKey string) ([]stats.BalanceRollup, error) {
	rows, err := a.stmtScanBalances.QueryContext(ctx, subject, currency, startKey, endKey)
	if err != nil {
		return nil, fmt.Errorf("scan balance rollups %s/%s: %w", subject, currency, err)
	}
	defer rows.Close()

	var out []stats.BalanceRollup
	for rows.Next() {
		var (
			r                     stats.BalanceRollup
			bucketKey, latestTime string
		)
		if err := rows.Scan(&r.Counterparty, &bucketKey, &r.Latest, &latestTime, &r.ChangeSum, &r.ChangeCount); err != nil {
			return nil, fmt.Errorf("scan balance rollup row: %w", err)
		}
		r.Subject = subject
		r.Currency = currency
		if r.Key, err = parseKeyColumn(bucketKey); err != nil {
			return nil, err
		}
		if r.LatestTime, err = parseKeyColumn(latestTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ScanCounterRollups returns stored rollups for one counter kind, ascending
// by bucket key.
func (a *Adapter) ScanCounterRollups(ctx context.Context, kind stats.CounterKind, startKey, endKey string) ([]stats.CounterRollup, error) {
	rows, err := a.stmtScanCounters.QueryContext(ctx, string(kind), startKey, endKey)
	if err != nil {
		return nil, fmt.Errorf("scan counter rollups %s: %w", kind, err)
	}
	defer rows.Close()

	var out []stats.CounterRollup
	for rows.Next() {
		var (
			r                     stats.CounterRollup
			bucketKey, latestTime string
		)
		if err := rows.Scan(&bucketKey, &r.Count, &r.LastValue, &latestTime); err != nil {
			return nil, fmt.Errorf("scan counter rollup row: %w", err)
		}
		r.Kind = kind
		if r.Key, err = parseKeyColumn(bucketKey); err != nil {
			return nil, err
		}
		if r.LatestTime, err = parseKeyColumn(latestTime); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
