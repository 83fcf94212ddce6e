package query

import (
	"time"

	"github.com/closelab/ledgerstats/internal/core/stats"
)

// CandlePoint is one OHLCV bucket in an API response. VWAP is null when the
// bucket has no base volume: the average price is undefined, never zero.
type CandlePoint struct {
	Bucket        string  `json:"bucket"`
	OpenTime      string  `json:"open_time"`
	CloseTime     string  `json:"close_time"`
	Open          string  `json:"open"`
	Close         string  `json:"close"`
	High          string  `json:"high"`
	Low           string  `json:"low"`
	BaseVolume    string  `json:"base_volume"`
	CounterVolume string  `json:"counter_volume"`
	VWAP          *string `json:"vwap"`
	TradeCount    int64   `json:"trade_count"`
}

// CandlesResponse is the body of GET /v1/markets/:base/:counter/candles.
type CandlesResponse struct {
	Base        string        `json:"base"`
	Counter     string        `json:"counter"`
	Granularity string        `json:"granularity"`
	Start       time.Time     `json:"start"`
	End         time.Time     `json:"end"`
	Candles     []CandlePoint `json:"candles"`
}

// BalancePoint is one balance bucket in an API response.
type BalancePoint struct {
	Bucket       string `json:"bucket"`
	Counterparty string `json:"counterparty,omitempty"`
	Latest       string `json:"latest"`
	LatestTime   string `json:"latest_time"`
	ChangeSum    string `json:"change_sum"`
	ChangeCount  int64  `json:"change_count"`
}

// BalancesResponse is the body of GET /v1/accounts/:account/balances.
type BalancesResponse struct {
	Account     string         `json:"account"`
	Currency    string         `json:"currency"`
	Granularity string         `json:"granularity"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	Balances    []BalancePoint `json:"balances"`
}

// CounterPoint is one network counter bucket in an API response.
type CounterPoint struct {
	Bucket     string `json:"bucket"`
	Count      int64  `json:"count"`
	LastValue  string `json:"last_value,omitempty"`
	LatestTime string `json:"latest_time"`
}

// CountersResponse is the body of GET /v1/stats/counters.
type CountersResponse struct {
	Kind        string         `json:"kind"`
	Granularity string         `json:"granularity"`
	Start       time.Time      `json:"start"`
	End         time.Time      `json:"end"`
	Counters    []CounterPoint `json:"counters"`
}

// IngestResponse is the body of a successful POST /v1/ledgers.
type IngestResponse struct {
	Sequence uint32 `json:"sequence"`
	Trades   int    `json:"trades"`
	Balances int    `json:"balances"`
	Counters int    `json:"counters"`
}

func newCandlePoint(r stats.TradeRollup) CandlePoint {
	p := CandlePoint{
		Bucket:        r.Key.String(),
		OpenTime:      r.OpenTime.String(),
		CloseTime:     r.CloseTime.String(),
		Open:          r.Open.String(),
		Close:         r.Close.String(),
		High:          r.High.String(),
		Low:           r.Low.String(),
		BaseVolume:    r.VolumeBase.String(),
		CounterVolume: r.VolumeCounter.String(),
		TradeCount:    r.TradeCount,
	}
	if vwap, ok := r.VWAP(); ok {
		s := vwap.String()
		p.VWAP = &s
	}
	return p
}

func newBalancePoint(r stats.BalanceRollup) BalancePoint {
	return BalancePoint{
		Bucket:       r.Key.String(),
		Counterparty: r.Counterparty,
		Latest:       r.Latest.String(),
		LatestTime:   r.LatestTime.String(),
		ChangeSum:    r.ChangeSum.String(),
		ChangeCount:  r.ChangeCount,
	}
}

func newCounterPoint(r stats.CounterRollup) CounterPoint {
	return CounterPoint{
		Bucket:     r.Key.String(),
		Count:      r.Count,
		LastValue:  r.LastValue,
		LatestTime: r.LatestTime.String(),
	}
}
