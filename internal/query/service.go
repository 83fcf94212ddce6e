// Package query turns time-range requests into bucket-key range scans plus a
// client-side rereduce of the returned partials.
package query

import (
	"context"
	"fmt"
	"time"

	corerrors "github.com/closelab/ledgerstats/internal/core/errors"
	"github.com/closelab/ledgerstats/internal/core/pairs"
	"github.com/closelab/ledgerstats/internal/core/stats"
	"github.com/closelab/ledgerstats/internal/core/storage"
	"github.com/closelab/ledgerstats/internal/core/timekey"
)

// Granularity names accepted by the API, mapped to truncation depths.
var granularities = map[string]int{
	"all":    timekey.DepthAll,
	"year":   timekey.DepthYear,
	"month":  timekey.DepthMonth,
	"day":    timekey.DepthDay,
	"hour":   timekey.DepthHour,
	"minute": timekey.DepthMinute,
	"second": timekey.DepthSecond,
}

// ParseGranularity maps a granularity name to its truncation depth.
// Empty defaults to "all".
func ParseGranularity(s string) (int, error) {
	if s == "" {
		return timekey.DepthAll, nil
	}
	depth, ok := granularities[s]
	if !ok {
		return 0, fmt.Errorf("unknown granularity %q", s)
	}
	return depth, nil
}

// Service answers statistics queries from stored depth-6 rollups.
type Service struct {
	store   storage.BucketStore
	markets *pairs.Registry
}

// NewService creates a query service.
func NewService(store storage.BucketStore, markets *pairs.Registry) *Service {
	return &Service{store: store, markets: markets}
}

// Candles returns one rollup per bucket at the requested depth for the pair
// over [start, end). Stored partials finer than the requested depth are
// folded with the trade combiner in canonical order. An empty range returns
// an empty slice — the combiner is never invoked on an empty bucket.
func (s *Service) Candles(ctx context.Context, pair stats.Pair, start, end time.Time, depth int, descending bool) ([]stats.TradeRollup, error) {
	if !s.markets.Allowed(pair) {
		return nil, corerrors.NotFound("pair %s is not tracked", pair)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("end must be after start")
	}

	startKey, endKey := timekey.RangeBounds(start, end)
	rows, err := s.store.ScanTradeRollups(ctx, pair.String(), startKey, endKey)
	if err != nil {
		return nil, err
	}

	grouped, err := groupKeys(rowKeys(rows), depth)
	if err != nil {
		return nil, err
	}

	out := make([]stats.TradeRollup, 0, len(grouped))
	for _, g := range grouped {
		bucket, err := rows[g.start].Key.Truncate(depth)
		if err != nil {
			return nil, err
		}
		folded, err := stats.CombineTradeRollups(bucket, rows[g.start:g.end])
		if err != nil {
			return nil, err
		}
		out = append(out, folded)
	}
	if descending {
		reverse(out)
	}
	return out, nil
}

// Balances returns balance rollups for one (account, currency) at the
// requested depth. Trustline rollups for distinct counterparties fold into
// one bucket per counterparty; pass an empty counterparty filter to keep
// them separate.
func (s *Service) Balances(ctx context.Context, account, currency string, start, end time.Time, depth int, descending bool) ([]stats.BalanceRollup, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("end must be after start")
	}

	startKey, endKey := timekey.RangeBounds(start, end)
	rows, err := s.store.ScanBalanceRollups(ctx, account, currency, startKey, endKey)
	if err != nil {
		return nil, err
	}

	// Partition per counterparty first: mixed subjects never share a combine.
	byParty := make(map[string][]stats.BalanceRollup)
	var order []string
	for _, r := range rows {
		if _, seen := byParty[r.Counterparty]; !seen {
			order = append(order, r.Counterparty)
		}
		byParty[r.Counterparty] = append(byParty[r.Counterparty], r)
	}

	var out []stats.BalanceRollup
	for _, party := range order {
		partyRows := byParty[party]
		grouped, err := groupKeys(balanceKeys(partyRows), depth)
		if err != nil {
			return nil, err
		}
		for _, g := range grouped {
			bucket, err := partyRows[g.start].Key.Truncate(depth)
			if err != nil {
				return nil, err
			}
			folded, err := stats.CombineBalanceRollups(bucket, partyRows[g.start:g.end])
			if err != nil {
				return nil, err
			}
			out = append(out, folded)
		}
	}
	if descending {
		reverse(out)
	}
	return out, nil
}

// Counters returns counter rollups for one kind at the requested depth.
func (s *Service) Counters(ctx context.Context, kind stats.CounterKind, start, end time.Time, depth int, descending bool) ([]stats.CounterRollup, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("end must be after start")
	}

	startKey, endKey := timekey.RangeBounds(start, end)
	rows, err := s.store.ScanCounterRollups(ctx, kind, startKey, endKey)
	if err != nil {
		return nil, err
	}

	grouped, err := groupKeys(counterKeys(rows), depth)
	if err != nil {
		return nil, err
	}

	out := make([]stats.CounterRollup, 0, len(grouped))
	for _, g := range grouped {
		bucket, err := rows[g.start].Key.Truncate(depth)
		if err != nil {
			return nil, err
		}
		folded, err := stats.CombineCounterRollups(bucket, rows[g.start:g.end])
		if err != nil {
			return nil, err
		}
		out = append(out, folded)
	}
	if descending {
		reverse(out)
	}
	return out, nil
}

// span is a half-open index range into an already-sorted row slice.
type span struct {
	start, end int
}

// groupKeys slices ascending rows into runs sharing a truncated key prefix.
// Scan results arrive ascending, so runs are contiguous.
func groupKeys(keys []timekey.Key, depth int) ([]span, error) {
	var out []span
	for i := 0; i < len(keys); {
		prefix, err := keys[i].Truncate(depth)
		if err != nil {
			return nil, err
		}
		j := i + 1
		for ; j < len(keys); j++ {
			next, err := keys[j].Truncate(depth)
			if err != nil {
				return nil, err
			}
			cmp, err := timekey.Compare(prefix, next)
			if err != nil {
				return nil, err
			}
			if cmp != 0 {
				break
			}
		}
		out = append(out, span{start: i, end: j})
		i = j
	}
	return out, nil
}

func rowKeys(rows []stats.TradeRollup) []timekey.Key {
	keys := make([]timekey.Key, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
	}
	return keys
}

func balanceKeys(rows []stats.BalanceRollup) []timekey.Key {
	keys := make([]timekey.Key, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
	}
	return keys
}

func counterKeys(rows []stats.CounterRollup) []timekey.Key {
	keys := make([]timekey.Key, len(rows))
	for i, r := range rows {
		keys[i] = r.Key
	}
	return keys
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
