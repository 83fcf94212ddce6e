package stats

import (
	"fmt"
	"sort"

	"github.com/closelab/ledgerstats/internal/core/timekey"
	"github.com/shopspring/decimal"
)

// The combiners are pure folds. Both entry points of each family reduce their
// inputs to the same synthetic sample shape and share one field-update helper,
// so an event-combine and a rollup-combine can never drift apart in field
// semantics. combineRollups must stay associative and commutative over its
// result type: the bucket store folds partials in arbitrary tree shapes.
//
// Open/close ties are broken by earliest-processed, which is deterministic
// only because every entry point first sorts its input into the canonical
// fold order: ascending timestamp key, then ledger sequence, then
// transaction index (events), or ascending bucket key then open time
// (rollups).

// sample is the common shape both combine paths fold over.
type sample struct {
	openTime  timekey.Key
	closeTime timekey.Key
	open      decimal.Decimal
	close     decimal.Decimal
	high      decimal.Decimal
	low       decimal.Decimal
	volNum    decimal.Decimal
	volBase   decimal.Decimal
	volCnt    decimal.Decimal
	count     int64
}

// foldSample merges one sample into the rollup. Strict < / > comparisons keep
// the earlier-seen value on ties.
func (r *TradeRollup) foldSample(s sample) error {
	cmpOpen, err := timekey.Compare(s.openTime, r.OpenTime)
	if err != nil {
		return err
	}
	if cmpOpen < 0 {
		r.OpenTime = s.openTime
		r.Open = s.open
	}
	cmpClose, err := timekey.Compare(s.closeTime, r.CloseTime)
	if err != nil {
		return err
	}
	if cmpClose > 0 {
		r.CloseTime = s.closeTime
		r.Close = s.close
	}
	if s.high.GreaterThan(r.High) {
		r.High = s.high
	}
	if s.low.LessThan(r.Low) {
		r.Low = s.low
	}
	r.VolumeNumerator = r.VolumeNumerator.Add(s.volNum)
	r.VolumeBase = r.VolumeBase.Add(s.volBase)
	r.VolumeCounter = r.VolumeCounter.Add(s.volCnt)
	r.TradeCount += s.count
	return nil
}

func seedTradeRollup(pair Pair, bucket timekey.Key, s sample) TradeRollup {
	return TradeRollup{
		Pair:            pair,
		Key:             bucket,
		OpenTime:        s.openTime,
		CloseTime:       s.closeTime,
		Open:            s.open,
		Close:           s.close,
		High:            s.high,
		Low:             s.low,
		VolumeNumerator: s.volNum,
		VolumeBase:      s.volBase,
		VolumeCounter:   s.volCnt,
		TradeCount:      s.count,
	}
}

func tradeEventSample(e TradeEvent) sample {
	return sample{
		openTime:  e.Key,
		closeTime: e.Key,
		open:      e.Rate,
		close:     e.Rate,
		high:      e.Rate,
		low:       e.Rate,
		volNum:    e.Rate.Mul(e.BaseAmount),
		volBase:   e.BaseAmount,
		volCnt:    e.CounterAmount,
		count:     1,
	}
}

func tradeRollupSample(r TradeRollup) sample {
	return sample{
		openTime:  r.OpenTime,
		closeTime: r.CloseTime,
		open:      r.Open,
		close:     r.Close,
		high:      r.High,
		low:       r.Low,
		volNum:    r.VolumeNumerator,
		volBase:   r.VolumeBase,
		volCnt:    r.VolumeCounter,
		count:     r.TradeCount,
	}
}

// checkBucketMember verifies the member key truncates onto the bucket key.
func checkBucketMember(bucket, member timekey.Key) error {
	if len(member) < len(bucket) {
		return fmt.Errorf("member key depth %d shallower than bucket depth %d", len(member), len(bucket))
	}
	prefix, err := member.Truncate(len(bucket))
	if err != nil {
		return err
	}
	cmp, err := timekey.Compare(prefix, bucket)
	if err != nil {
		return err
	}
	if cmp != 0 {
		return fmt.Errorf("key %s does not belong to bucket %s", member, bucket)
	}
	return nil
}

// CombineTradeEvents folds same-pair trade events into one rollup for the
// given bucket key. Every event's timestamp key must truncate onto the bucket
// key. An empty input is a caller error.
func CombineTradeEvents(bucket timekey.Key, events []TradeEvent) (TradeRollup, error) {
	if len(events) == 0 {
		return TradeRollup{}, fmt.Errorf("combine called with no trade events")
	}

	sorted := make([]TradeEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		cmp, err := timekey.Compare(sorted[i].Key, sorted[j].Key)
		if err == nil && cmp != 0 {
			return cmp < 0
		}
		if sorted[i].LedgerSeq != sorted[j].LedgerSeq {
			return sorted[i].LedgerSeq < sorted[j].LedgerSeq
		}
		return sorted[i].TxIndex < sorted[j].TxIndex
	})

	pair := sorted[0].Pair
	for _, e := range sorted {
		if e.Pair != pair {
			return TradeRollup{}, fmt.Errorf("mixed pairs in one combine call: %s vs %s", pair, e.Pair)
		}
		if err := checkBucketMember(bucket, e.Key); err != nil {
			return TradeRollup{}, err
		}
	}

	out := seedTradeRollup(pair, bucket, tradeEventSample(sorted[0]))
	for _, e := range sorted[1:] {
		if err := out.foldSample(tradeEventSample(e)); err != nil {
			return TradeRollup{}, err
		}
	}
	return out, nil
}

// CombineTradeRollups folds finer same-pair rollups into one rollup for the
// given parent bucket key. Inputs may be any partition of the parent bucket:
// associativity and commutativity guarantee the result is grouping-invariant.
func CombineTradeRollups(bucket timekey.Key, rollups []TradeRollup) (TradeRollup, error) {
	if len(rollups) == 0 {
		return TradeRollup{}, fmt.Errorf("combine called with no trade rollups")
	}

	sorted := make([]TradeRollup, len(rollups))
	copy(sorted, rollups)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := lessKey(sorted[i].Key, sorted[j].Key); c != 0 {
			return c < 0
		}
		return lessKey(sorted[i].OpenTime, sorted[j].OpenTime) < 0
	})

	pair := sorted[0].Pair
	for _, r := range sorted {
		if r.Pair != pair {
			return TradeRollup{}, fmt.Errorf("mixed pairs in one combine call: %s vs %s", pair, r.Pair)
		}
		if err := checkBucketMember(bucket, r.Key); err != nil {
			return TradeRollup{}, err
		}
	}

	out := seedTradeRollup(pair, bucket, tradeRollupSample(sorted[0]))
	for _, r := range sorted[1:] {
		if err := out.foldSample(tradeRollupSample(r)); err != nil {
			return TradeRollup{}, err
		}
	}
	return out, nil
}

// lessKey orders possibly different-length keys by their encoded form.
// Only used for canonical input sorting, where a stable total order is all
// that matters; semantic comparisons still go through timekey.Compare.
func lessKey(a, b timekey.Key) int {
	as, bs := a.String(), b.String()
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

// CombineBalanceEvents folds balance-change events for one
// (subject, currency, counterparty) into a bucket rollup.
func CombineBalanceEvents(bucket timekey.Key, events []BalanceChangeEvent) (BalanceRollup, error) {
	if len(events) == 0 {
		return BalanceRollup{}, fmt.Errorf("combine called with no balance events")
	}

	sorted := make([]BalanceChangeEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		cmp, err := timekey.Compare(sorted[i].Key, sorted[j].Key)
		if err == nil && cmp != 0 {
			return cmp < 0
		}
		if sorted[i].LedgerSeq != sorted[j].LedgerSeq {
			return sorted[i].LedgerSeq < sorted[j].LedgerSeq
		}
		return sorted[i].TxIndex < sorted[j].TxIndex
	})

	first := sorted[0]
	for _, e := range sorted {
		if e.Subject != first.Subject || e.Currency != first.Currency || e.Counterparty != first.Counterparty {
			return BalanceRollup{}, fmt.Errorf("mixed balance subjects in one combine call")
		}
		if err := checkBucketMember(bucket, e.Key); err != nil {
			return BalanceRollup{}, err
		}
	}

	out := BalanceRollup{
		Subject:      first.Subject,
		Currency:     first.Currency,
		Counterparty: first.Counterparty,
		Key:          bucket,
		Latest:       first.FinalBalance,
		LatestTime:   first.Key,
		ChangeSum:    first.Delta,
		ChangeCount:  1,
	}
	for _, e := range sorted[1:] {
		cmp, err := timekey.Compare(e.Key, out.LatestTime)
		if err != nil {
			return BalanceRollup{}, err
		}
		if cmp > 0 {
			out.Latest = e.FinalBalance
			out.LatestTime = e.Key
		}
		out.ChangeSum = out.ChangeSum.Add(e.Delta)
		out.ChangeCount++
	}
	return out, nil
}

// CombineBalanceRollups folds finer balance rollups into a parent bucket:
// change sums add as scalars, the partial with the latest LatestTime wins the
// latest-balance fields.
func CombineBalanceRollups(bucket timekey.Key, rollups []BalanceRollup) (BalanceRollup, error) {
	if len(rollups) == 0 {
		return BalanceRollup{}, fmt.Errorf("combine called with no balance rollups")
	}

	sorted := make([]BalanceRollup, len(rollups))
	copy(sorted, rollups)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := lessKey(sorted[i].Key, sorted[j].Key); c != 0 {
			return c < 0
		}
		return lessKey(sorted[i].LatestTime, sorted[j].LatestTime) < 0
	})

	first := sorted[0]
	for _, r := range sorted {
		if r.Subject != first.Subject || r.Currency != first.Currency || r.Counterparty != first.Counterparty {
			return BalanceRollup{}, fmt.Errorf("mixed balance subjects in one combine call")
		}
		if err := checkBucketMember(bucket, r.Key); err != nil {
			return BalanceRollup{}, err
		}
	}

	out := first
	out.Key = bucket
	for _, r := range sorted[1:] {
		cmp, err := timekey.Compare(r.LatestTime, out.LatestTime)
		if err != nil {
			return BalanceRollup{}, err
		}
		if cmp > 0 {
			out.Latest = r.Latest
			out.LatestTime = r.LatestTime
		}
		out.ChangeSum = out.ChangeSum.Add(r.ChangeSum)
		out.ChangeCount += r.ChangeCount
	}
	return out, nil
}

// CombineCounterEvents folds same-kind counter events into a bucket rollup.
func CombineCounterEvents(bucket timekey.Key, events []CounterEvent) (CounterRollup, error) {
	if len(events) == 0 {
		return CounterRollup{}, fmt.Errorf("combine called with no counter events")
	}

	sorted := make([]CounterEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		cmp, err := timekey.Compare(sorted[i].Key, sorted[j].Key)
		if err == nil && cmp != 0 {
			return cmp < 0
		}
		if sorted[i].LedgerSeq != sorted[j].LedgerSeq {
			return sorted[i].LedgerSeq < sorted[j].LedgerSeq
		}
		return sorted[i].TxIndex < sorted[j].TxIndex
	})

	kind := sorted[0].Kind
	if err := checkBucketMember(bucket, sorted[0].Key); err != nil {
		return CounterRollup{}, err
	}
	out := CounterRollup{Kind: kind, Key: bucket, LatestTime: sorted[0].Key, LastValue: sorted[0].Value, Count: 1}
	for _, e := range sorted[1:] {
		if e.Kind != kind {
			return CounterRollup{}, fmt.Errorf("mixed counter kinds in one combine call: %s vs %s", kind, e.Kind)
		}
		if err := checkBucketMember(bucket, e.Key); err != nil {
			return CounterRollup{}, err
		}
		cmp, err := timekey.Compare(e.Key, out.LatestTime)
		if err != nil {
			return CounterRollup{}, err
		}
		if cmp > 0 {
			out.LatestTime = e.Key
			out.LastValue = e.Value
		}
		out.Count++
	}
	return out, nil
}

// CombineCounterRollups folds finer counter rollups into a parent bucket.
func CombineCounterRollups(bucket timekey.Key, rollups []CounterRollup) (CounterRollup, error) {
	if len(rollups) == 0 {
		return CounterRollup{}, fmt.Errorf("combine called with no counter rollups")
	}

	sorted := make([]CounterRollup, len(rollups))
	copy(sorted, rollups)
	sort.SliceStable(sorted, func(i, j int) bool {
		if c := lessKey(sorted[i].Key, sorted[j].Key); c != 0 {
			return c < 0
		}
		return lessKey(sorted[i].LatestTime, sorted[j].LatestTime) < 0
	})

	kind := sorted[0].Kind
	out := sorted[0]
	out.Key = bucket
	if err := checkBucketMember(bucket, sorted[0].Key); err != nil {
		return CounterRollup{}, err
	}
	for _, r := range sorted[1:] {
		if r.Kind != kind {
			return CounterRollup{}, fmt.Errorf("mixed counter kinds in one combine call: %s vs %s", kind, r.Kind)
		}
		if err := checkBucketMember(bucket, r.Key); err != nil {
			return CounterRollup{}, err
		}
		cmp, err := timekey.Compare(r.LatestTime, out.LatestTime)
		if err != nil {
			return CounterRollup{}, err
		}
		if cmp > 0 {
			out.LatestTime = r.LatestTime
			out.LastValue = r.LastValue
		}
		out.Count += r.Count
	}
	return out, nil
}
