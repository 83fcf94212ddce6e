package stats

import (
	"github.com/closelab/ledgerstats/internal/core/timekey"
	"github.com/closelab/ledgerstats/internal/ledger"
	"github.com/shopspring/decimal"
)

// Pair is an ordered asset pair: Base is the asset the taker paid out,
// Counter is the asset the taker received. Every trade is emitted under both
// orderings so either side's series is independently queryable.
type Pair struct {
	Base    ledger.Asset
	Counter ledger.Asset
}

// Invert swaps the pair's orientation.
func (p Pair) Invert() Pair {
	return Pair{Base: p.Counter, Counter: p.Base}
}

// String renders "BASE/COUNTER" using the assets' stable forms; this embeds
// into bucket-store subject keys.
func (p Pair) String() string {
	return p.Base.String() + "/" + p.Counter.String()
}

// TradeEvent is one exercised offer leg, keyed by asset pair and timestamp.
// Rate is BaseAmount per CounterAmount. LedgerSeq and TxIndex record the
// canonical position of the originating transaction; they only matter for
// deterministic tie-breaks when several trades share a timestamp key.
type TradeEvent struct {
	Pair          Pair
	Key           timekey.Key
	BaseAmount    decimal.Decimal
	CounterAmount decimal.Decimal
	Rate          decimal.Decimal
	LedgerSeq     uint32
	TxIndex       int
}

// Mirror returns the double-entry counterpart: pair inverted, amounts
// swapped, rate inverted.
func (e TradeEvent) Mirror() TradeEvent {
	m := e
	m.Pair = e.Pair.Invert()
	m.BaseAmount = e.CounterAmount
	m.CounterAmount = e.BaseAmount
	if !e.Rate.IsZero() {
		m.Rate = decimal.NewFromInt(1).Div(e.Rate)
	}
	return m
}

// BalanceChangeEvent is one side of a balance movement: a trustline balance
// change or a native (capitalization) change. Counterparty is empty for
// native balances. Delta carries the canonical sign for Subject's view.
type BalanceChangeEvent struct {
	Subject      string
	Currency     string
	Counterparty string
	Key          timekey.Key
	Delta        decimal.Decimal
	FinalBalance decimal.Decimal
	LedgerSeq    uint32
	TxIndex      int
}

// Mirror returns the counterparty's view: subject and counterparty swapped,
// delta and balance negated.
func (e BalanceChangeEvent) Mirror() BalanceChangeEvent {
	m := e
	m.Subject = e.Counterparty
	m.Counterparty = e.Subject
	m.Delta = e.Delta.Neg()
	m.FinalBalance = e.FinalBalance.Neg()
	return m
}

// CounterKind names a countable ledger occurrence.
type CounterKind string

const (
	CountAccountCreated  CounterKind = "accounts_created"
	CountTrustlineAdded  CounterKind = "trustlines_created"
	CountTrustlineRemove CounterKind = "trustlines_removed"
	CountOfferCreated    CounterKind = "offers_created"
	CountOfferCancelled  CounterKind = "offers_cancelled"
)

// CounterEvent is a single countable occurrence. Value carries the subject of
// the occurrence (e.g. the newly funded account) when one exists.
type CounterEvent struct {
	Kind      CounterKind
	Key       timekey.Key
	Value     string
	LedgerSeq uint32
	TxIndex   int
}
