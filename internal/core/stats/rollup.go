package stats

import (
	"github.com/closelab/ledgerstats/internal/core/timekey"
	"github.com/shopspring/decimal"
)

// TradeRollup is the stored summary of all trades for one pair in one time
// bucket. Key is the bucket's (possibly truncated) timestamp key. OpenTime and
// CloseTime keep full depth so coarser re-combines can still order partials.
type TradeRollup struct {
	Pair      Pair
	Key       timekey.Key
	OpenTime  timekey.Key
	CloseTime timekey.Key
	Open      decimal.Decimal
	Close     decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal

	// VolumeNumerator accumulates rate*base per trade for VWAP.
	VolumeNumerator decimal.Decimal
	VolumeBase      decimal.Decimal
	VolumeCounter   decimal.Decimal
	TradeCount      int64
}

// VWAP returns the volume-weighted average price. The second return is false
// when base volume is zero: VWAP is undefined then, never zero.
func (r TradeRollup) VWAP() (decimal.Decimal, bool) {
	if r.VolumeBase.IsZero() {
		return decimal.Decimal{}, false
	}
	return r.VolumeNumerator.Div(r.VolumeBase), true
}

// BalanceRollup is the stored summary of balance changes for one
// (subject, currency, counterparty) in one time bucket: the latest observed
// balance and the net change over the bucket.
type BalanceRollup struct {
	Subject      string
	Currency     string
	Counterparty string
	Key          timekey.Key
	Latest       decimal.Decimal
	LatestTime   timekey.Key

	// ChangeSum is a scalar: re-combining adds the partials' scalars.
	ChangeSum   decimal.Decimal
	ChangeCount int64
}

// CounterRollup is the stored summary of one counter kind in one time bucket.
type CounterRollup struct {
	Kind       CounterKind
	Key        timekey.Key
	Count      int64
	LastValue  string
	LatestTime timekey.Key
}
