package importer

import (
	"fmt"

	"github.com/closelab/ledgerstats/internal/core/extract"
	"github.com/closelab/ledgerstats/internal/core/stats"
	"github.com/closelab/ledgerstats/internal/core/timekey"
)

// Flush is one ledger's events folded into the stored unit: depth-6
// (per-second) rollups, one per subject. Coarser granularities are never
// materialized here — they are derived by rereduce at query time.
type Flush struct {
	Trades   []stats.TradeRollup
	Balances []stats.BalanceRollup
	Counters []stats.CounterRollup
}

// FoldSet groups a ledger's events by subject and second bucket and combines
// each group. All events of one ledger share a close time, so the bucket key
// computation runs once.
func FoldSet(set *extract.Set) (*Flush, error) {
	out := &Flush{}

	tradeGroups := make(map[string][]stats.TradeEvent)
	var tradeOrder []string
	for _, e := range set.Trades {
		k := e.Pair.String() + "#" + e.Key.String()
		if _, seen := tradeGroups[k]; !seen {
			tradeOrder = append(tradeOrder, k)
		}
		tradeGroups[k] = append(tradeGroups[k], e)
	}
	for _, k := range tradeOrder {
		group := tradeGroups[k]
		bucket, err := group[0].Key.Truncate(timekey.DepthSecond)
		if err != nil {
			return nil, err
		}
		r, err := stats.CombineTradeEvents(bucket, group)
		if err != nil {
			return nil, fmt.Errorf("fold trades for %s: %w", k, err)
		}
		out.Trades = append(out.Trades, r)
	}

	balanceGroups := make(map[string][]stats.BalanceChangeEvent)
	var balanceOrder []string
	for _, e := range set.Balances {
		k := e.Subject + "|" + e.Currency + "|" + e.Counterparty + "#" + e.Key.String()
		if _, seen := balanceGroups[k]; !seen {
			balanceOrder = append(balanceOrder, k)
		}
		balanceGroups[k] = append(balanceGroups[k], e)
	}
	for _, k := range balanceOrder {
		group := balanceGroups[k]
		bucket, err := group[0].Key.Truncate(timekey.DepthSecond)
		if err != nil {
			return nil, err
		}
		r, err := stats.CombineBalanceEvents(bucket, group)
		if err != nil {
			return nil, fmt.Errorf("fold balances for %s: %w", k, err)
		}
		out.Balances = append(out.Balances, r)
	}

	counterGroups := make(map[string][]stats.CounterEvent)
	var counterOrder []string
	for _, e := range set.Counters {
		k := string(e.Kind) + "#" + e.Key.String()
		if _, seen := counterGroups[k]; !seen {
			counterOrder = append(counterOrder, k)
		}
		counterGroups[k] = append(counterGroups[k], e)
	}
	for _, k := range counterOrder {
		group := counterGroups[k]
		bucket, err := group[0].Key.Truncate(timekey.DepthSecond)
		if err != nil {
			return nil, err
		}
		r, err := stats.CombineCounterEvents(bucket, group)
		if err != nil {
			return nil, fmt.Errorf("fold counters for %s: %w", k, err)
		}
		out.Counters = append(out.Counters, r)
	}

	return out, nil
}
