// Package extract turns one ledger close into typed, keyed economic events.
//
// Extraction is total and best-effort: entry deltas that are malformed or
// irrelevant to a rule are skipped silently, never surfaced as errors. A bad
// delta must not abort processing of the ledger it arrived in.
package extract

import (
	"github.com/closelab/ledgerstats/internal/core/stats"
	"github.com/closelab/ledgerstats/internal/core/timekey"
	"github.com/closelab/ledgerstats/internal/ledger"
	"github.com/shopspring/decimal"
)

// Set is the extractor's output for one ledger: every event family, already
// double-entry expanded.
type Set struct {
	Trades   []stats.TradeEvent
	Balances []stats.BalanceChangeEvent
	Counters []stats.CounterEvent
}

// Empty reports whether extraction produced no events at all.
func (s *Set) Empty() bool {
	return len(s.Trades) == 0 && len(s.Balances) == 0 && len(s.Counters) == 0
}

// txContext carries the per-transaction inputs every handler needs.
type txContext struct {
	key       timekey.Key
	ledgerSeq uint32
	txIndex   int
	tx        *ledger.Transaction
	out       *Set
}

// handlerKey dispatches on the delta's tagged kind pair. One handler per
// (entry kind, change kind) that can yield an event; anything unlisted is
// skipped.
type handlerKey struct {
	entry  ledger.EntryKind
	change ledger.ChangeKind
}

type handler func(ctx *txContext, d *ledger.EntryDelta)

var handlers = map[handlerKey]handler{
	{ledger.EntryOffer, ledger.ChangeModified}:       offerExercised,
	{ledger.EntryOffer, ledger.ChangeDeleted}:        offerDeleted,
	{ledger.EntryOffer, ledger.ChangeCreated}:        offerCreated,
	{ledger.EntryRippleState, ledger.ChangeCreated}:  trustlineCreated,
	{ledger.EntryRippleState, ledger.ChangeModified}: trustlineModified,
	{ledger.EntryRippleState, ledger.ChangeDeleted}:  trustlineDeleted,
	{ledger.EntryAccountRoot, ledger.ChangeCreated}:  accountCreated,
	{ledger.EntryAccountRoot, ledger.ChangeModified}: accountModified,
}

// Extract walks the ledger's transactions in canonical order and emits the
// events of every successful transaction. Pure: safe to call concurrently for
// different ledgers.
func Extract(c *ledger.Close) *Set {
	out := &Set{}
	key := timekey.FromTime(c.CloseTimeUTC)

	for i := range c.Transactions {
		tx := &c.Transactions[i]
		if !tx.Succeeded() {
			continue
		}
		ctx := &txContext{
			key:       key,
			ledgerSeq: c.Sequence,
			txIndex:   i,
			tx:        tx,
			out:       out,
		}
		for j := range tx.Affected {
			d := &tx.Affected[j]
			if h, ok := handlers[handlerKey{d.Kind, d.Change}]; ok {
				h(ctx, d)
			}
		}
	}
	return out
}

// offerExercised handles a partially filled offer: PreviousFields carrying
// both TakerPays and TakerGets means the offer was consumed by this
// transaction, not merely placed or bumped.
func offerExercised(ctx *txContext, d *ledger.EntryDelta) {
	emitTrade(ctx, d)
}

// offerDeleted handles a fully consumed or cancelled offer. A consumed offer
// still carries TakerPays/TakerGets in PreviousFields; a plain cancellation
// does not and only counts.
func offerDeleted(ctx *txContext, d *ledger.EntryDelta) {
	emitTrade(ctx, d)
	if ctx.tx.Type == ledger.TxOfferCancel {
		ctx.out.Counters = append(ctx.out.Counters, stats.CounterEvent{
			Kind:      stats.CountOfferCancelled,
			Key:       ctx.key,
			LedgerSeq: ctx.ledgerSeq,
			TxIndex:   ctx.txIndex,
		})
	}
}

func offerCreated(ctx *txContext, d *ledger.EntryDelta) {
	ctx.out.Counters = append(ctx.out.Counters, stats.CounterEvent{
		Kind:      stats.CountOfferCreated,
		Key:       ctx.key,
		LedgerSeq: ctx.ledgerSeq,
		TxIndex:   ctx.txIndex,
	})
}

func emitTrade(ctx *txContext, d *ledger.EntryDelta) {
	prevPays, okPays := ledger.AmountField(d.Previous, "TakerPays")
	prevGets, okGets := ledger.AmountField(d.Previous, "TakerGets")
	if !okPays || !okGets {
		return
	}

	finalPays, ok := ledger.AmountField(d.Final, "TakerPays")
	if !ok {
		finalPays = ledger.Amount{Value: decimal.Zero, Asset: prevPays.Asset}
	}
	finalGets, ok := ledger.AmountField(d.Final, "TakerGets")
	if !ok {
		finalGets = ledger.Amount{Value: decimal.Zero, Asset: prevGets.Asset}
	}

	paid := prevPays.Value.Sub(finalPays.Value)
	got := prevGets.Value.Sub(finalGets.Value)
	if paid.Sign() <= 0 || got.Sign() <= 0 {
		return
	}

	rate := tradeRate(d, paid, got, prevPays.Asset, prevGets.Asset)

	ev := stats.TradeEvent{
		Pair:          stats.Pair{Base: prevPays.Asset, Counter: prevGets.Asset},
		Key:           ctx.key,
		BaseAmount:    paid,
		CounterAmount: got,
		Rate:          rate,
		LedgerSeq:     ctx.ledgerSeq,
		TxIndex:       ctx.txIndex,
	}
	ctx.out.Trades = append(ctx.out.Trades, ev, ev.Mirror())
}

// tradeRate prefers the entry's own exchange-rate field when present: it is
// authoritative over the amount quotient, but carries raw ledger units and
// needs the drops scaling re-applied when one leg is native.
func tradeRate(d *ledger.EntryDelta, paid, got decimal.Decimal, pays, gets ledger.Asset) decimal.Decimal {
	if raw, ok := ledger.DecimalField(d.Final, "ExchangeRate"); ok && !raw.IsZero() {
		switch {
		case pays.IsNative() && !gets.IsNative():
			return raw.Div(ledger.DropsPerUnit)
		case gets.IsNative() && !pays.IsNative():
			return raw.Mul(ledger.DropsPerUnit)
		default:
			return raw
		}
	}
	return paid.Div(got)
}

func trustlineCreated(ctx *txContext, d *ledger.EntryDelta) {
	ctx.out.Counters = append(ctx.out.Counters, stats.CounterEvent{
		Kind:      stats.CountTrustlineAdded,
		Key:       ctx.key,
		LedgerSeq: ctx.ledgerSeq,
		TxIndex:   ctx.txIndex,
	})

	balance, ok := ledger.AmountField(d.Final, "Balance")
	if !ok || balance.Value.IsZero() {
		return
	}
	emitTrustBalance(ctx, d, balance.Value, balance.Value, balance.Asset.Currency)
}

func trustlineModified(ctx *txContext, d *ledger.EntryDelta) {
	prev, ok := ledger.AmountField(d.Previous, "Balance")
	if !ok {
		return
	}
	final, ok := ledger.AmountField(d.Final, "Balance")
	if !ok {
		return
	}
	delta := final.Value.Sub(prev.Value)
	emitTrustBalance(ctx, d, delta, final.Value, final.Asset.Currency)
}

func trustlineDeleted(ctx *txContext, d *ledger.EntryDelta) {
	ctx.out.Counters = append(ctx.out.Counters, stats.CounterEvent{
		Kind:      stats.CountTrustlineRemove,
		Key:       ctx.key,
		LedgerSeq: ctx.ledgerSeq,
		TxIndex:   ctx.txIndex,
	})
}

// emitTrustBalance emits the double-entry pair for one trustline movement.
// The stored balance sign is the low-limit party's perspective; the high
// party's view is the exact negation.
func emitTrustBalance(ctx *txContext, d *ledger.EntryDelta, delta, final decimal.Decimal, currency string) {
	low, okLow := limitIssuer(d.Final, "LowLimit")
	high, okHigh := limitIssuer(d.Final, "HighLimit")
	if !okLow || !okHigh {
		return
	}

	ev := stats.BalanceChangeEvent{
		Subject:      low,
		Currency:     currency,
		Counterparty: high,
		Key:          ctx.key,
		Delta:        delta,
		FinalBalance: final,
		LedgerSeq:    ctx.ledgerSeq,
		TxIndex:      ctx.txIndex,
	}
	ctx.out.Balances = append(ctx.out.Balances, ev, ev.Mirror())
}

// limitIssuer pulls the account out of a LowLimit/HighLimit amount field.
func limitIssuer(fields map[string]interface{}, name string) (string, bool) {
	amt, ok := ledger.AmountField(fields, name)
	if !ok || amt.Asset.Issuer == "" {
		return "", false
	}
	return amt.Asset.Issuer, true
}

func accountCreated(ctx *txContext, d *ledger.EntryDelta) {
	account, ok := ledger.StringField(d.Final, "Account")
	if !ok {
		return
	}
	ctx.out.Counters = append(ctx.out.Counters, stats.CounterEvent{
		Kind:      stats.CountAccountCreated,
		Key:       ctx.key,
		Value:     account,
		LedgerSeq: ctx.ledgerSeq,
		TxIndex:   ctx.txIndex,
	})

	balance, ok := ledger.AmountField(d.Final, "Balance")
	if !ok || !balance.Asset.IsNative() {
		return
	}
	ctx.out.Balances = append(ctx.out.Balances, stats.BalanceChangeEvent{
		Subject:      account,
		Currency:     ledger.NativeCurrency,
		Key:          ctx.key,
		Delta:        balance.Value,
		FinalBalance: balance.Value,
		LedgerSeq:    ctx.ledgerSeq,
		TxIndex:      ctx.txIndex,
	})
}

// accountModified emits the native balance (capitalization) change. The raw
// balance delta already includes the fee debit for the sending account, so no
// separate fee adjustment happens here.
func accountModified(ctx *txContext, d *ledger.EntryDelta) {
	prev, ok := ledger.AmountField(d.Previous, "Balance")
	if !ok {
		return
	}
	final, ok := ledger.AmountField(d.Final, "Balance")
	if !ok || !final.Asset.IsNative() {
		return
	}
	account, ok := ledger.StringField(d.Final, "Account")
	if !ok {
		return
	}

	ctx.out.Balances = append(ctx.out.Balances, stats.BalanceChangeEvent{
		Subject:      account,
		Currency:     ledger.NativeCurrency,
		Key:          ctx.key,
		Delta:        final.Value.Sub(prev.Value),
		FinalBalance: final.Value,
		LedgerSeq:    ctx.ledgerSeq,
		TxIndex:      ctx.txIndex,
	})
}
