package extract

import (
	"testing"
	"time"

	"github.com/closelab/ledgerstats/internal/core/stats"
	"github.com/closelab/ledgerstats/internal/core/timekey"
	"github.com/closelab/ledgerstats/internal/ledger"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var closeTime = time.Date(2026, 4, 2, 9, 15, 30, 0, time.UTC)

func issuedAmount(value, currency, issuer string) map[string]interface{} {
	return map[string]interface{}{"currency": currency, "issuer": issuer, "value": value}
}

func newClose(txs ...ledger.Transaction) *ledger.Close {
	c := &ledger.Close{
		Sequence:     7_500_000,
		Hash:         "ABCD",
		CloseTimeUTC: closeTime,
		Transactions: txs,
	}
	c.TxSetHash = c.ComputeTxSetHash()
	return c
}

// Offer fully filled: previous TakerPays USD 100 -> 40 (paid 60), previous
// TakerGets 6,000,000 drops -> 1,000,000 (got 5.0). Expect the mirrored pair
// (USD,XRP) 60/5.0 rate 12 and (XRP,USD) 5.0/60 rate 1/12.
func TestExtract_OfferFill(t *testing.T) {
	c := newClose(ledger.Transaction{
		Hash:    "TX1",
		Account: "rTaker",
		Type:    ledger.TxPayment,
		Result:  ledger.ResultSuccess,
		Affected: []ledger.EntryDelta{{
			Kind:   ledger.EntryOffer,
			Change: ledger.ChangeModified,
			Previous: map[string]interface{}{
				"TakerPays": issuedAmount("100", "USD", "rIssuer"),
				"TakerGets": "6000000",
			},
			Final: map[string]interface{}{
				"TakerPays": issuedAmount("40", "USD", "rIssuer"),
				"TakerGets": "1000000",
			},
		}},
	})

	set := Extract(c)
	require.Len(t, set.Trades, 2)

	fwd := set.Trades[0]
	require.Equal(t, "USD.rIssuer/XRP", fwd.Pair.String())
	require.True(t, fwd.BaseAmount.Equal(decimal.NewFromInt(60)))
	require.True(t, fwd.CounterAmount.Equal(decimal.NewFromInt(5)))
	require.True(t, fwd.Rate.Equal(decimal.NewFromInt(12)))
	require.Equal(t, timekey.FromTime(closeTime), fwd.Key)

	mir := set.Trades[1]
	require.Equal(t, "XRP/USD.rIssuer", mir.Pair.String())
	require.True(t, mir.BaseAmount.Equal(decimal.NewFromInt(5)))
	require.True(t, mir.CounterAmount.Equal(decimal.NewFromInt(60)))
	wantInv := decimal.NewFromInt(1).Div(decimal.NewFromInt(12))
	require.True(t, mir.Rate.Equal(wantInv))
}

func TestExtract_NativeScalingRoundTrip(t *testing.T) {
	// One native leg of 1,000,000 drops extracts as exactly 1.0 units.
	c := newClose(ledger.Transaction{
		Hash:   "TX1",
		Type:   ledger.TxPayment,
		Result: ledger.ResultSuccess,
		Affected: []ledger.EntryDelta{{
			Kind:   ledger.EntryOffer,
			Change: ledger.ChangeModified,
			Previous: map[string]interface{}{
				"TakerPays": "2000000",
				"TakerGets": issuedAmount("10", "USD", "rIssuer"),
			},
			Final: map[string]interface{}{
				"TakerPays": "1000000",
				"TakerGets": issuedAmount("5", "USD", "rIssuer"),
			},
		}},
	})

	set := Extract(c)
	require.Len(t, set.Trades, 2)
	require.True(t, set.Trades[0].BaseAmount.Equal(decimal.NewFromInt(1)))
	require.True(t, set.Trades[0].Rate.Equal(decimal.NewFromFloat(0.2)))
}

func TestExtract_AuthoritativeExchangeRateScaling(t *testing.T) {
	raw := decimal.NewFromFloat(0.0000125)

	mk := func(pays, gets interface{}, finalPays, finalGets interface{}) *ledger.Close {
		return newClose(ledger.Transaction{
			Hash:   "TX1",
			Type:   ledger.TxPayment,
			Result: ledger.ResultSuccess,
			Affected: []ledger.EntryDelta{{
				Kind:   ledger.EntryOffer,
				Change: ledger.ChangeModified,
				Previous: map[string]interface{}{
					"TakerPays": pays,
					"TakerGets": gets,
				},
				Final: map[string]interface{}{
					"TakerPays":    finalPays,
					"TakerGets":    finalGets,
					"ExchangeRate": raw.String(),
				},
			}},
		})
	}

	// Issued base, native counter: adjusted rate is raw * 1e6.
	c := mk(issuedAmount("100", "USD", "rIssuer"), "6000000",
		issuedAmount("40", "USD", "rIssuer"), "1000000")
	set := Extract(c)
	require.Len(t, set.Trades, 2)
	require.True(t, set.Trades[0].Rate.Equal(raw.Mul(decimal.NewFromInt(1_000_000))))

	// Native base, issued counter: adjusted rate is raw * 1e-6.
	c = mk("6000000", issuedAmount("100", "USD", "rIssuer"),
		"1000000", issuedAmount("40", "USD", "rIssuer"))
	set = Extract(c)
	require.Len(t, set.Trades, 2)
	require.True(t, set.Trades[0].Rate.Equal(raw.Div(decimal.NewFromInt(1_000_000))))
}

func TestExtract_FailedTransactionYieldsNothing(t *testing.T) {
	c := newClose(ledger.Transaction{
		Hash:   "TX1",
		Type:   ledger.TxPayment,
		Result: ledger.TxResult("tecPATH_DRY"),
		Affected: []ledger.EntryDelta{{
			Kind:   ledger.EntryOffer,
			Change: ledger.ChangeModified,
			Previous: map[string]interface{}{
				"TakerPays": issuedAmount("100", "USD", "rIssuer"),
				"TakerGets": "6000000",
			},
			Final: map[string]interface{}{
				"TakerPays": issuedAmount("40", "USD", "rIssuer"),
				"TakerGets": "1000000",
			},
		}},
	})

	require.True(t, Extract(c).Empty())
}

func TestExtract_OfferCreatedNotATrade(t *testing.T) {
	// A merely created offer has no PreviousFields amounts: counts, no trade.
	c := newClose(ledger.Transaction{
		Hash:   "TX1",
		Type:   ledger.TxOfferCreate,
		Result: ledger.ResultSuccess,
		Affected: []ledger.EntryDelta{{
			Kind:   ledger.EntryOffer,
			Change: ledger.ChangeCreated,
			Final: map[string]interface{}{
				"TakerPays": issuedAmount("100", "USD", "rIssuer"),
				"TakerGets": "6000000",
			},
		}},
	})

	set := Extract(c)
	require.Empty(t, set.Trades)
	require.Len(t, set.Counters, 1)
	require.Equal(t, stats.CountOfferCreated, set.Counters[0].Kind)
}

func TestExtract_TrustlineBalanceChange(t *testing.T) {
	c := newClose(ledger.Transaction{
		Hash:   "TX1",
		Type:   ledger.TxPayment,
		Result: ledger.ResultSuccess,
		Affected: []ledger.EntryDelta{{
			Kind:   ledger.EntryRippleState,
			Change: ledger.ChangeModified,
			Previous: map[string]interface{}{
				"Balance": issuedAmount("70", "USD", ""),
			},
			Final: map[string]interface{}{
				"Balance":   issuedAmount("100", "USD", ""),
				"LowLimit":  issuedAmount("0", "USD", "rLow"),
				"HighLimit": issuedAmount("500", "USD", "rHigh"),
			},
		}},
	})

	set := Extract(c)
	require.Len(t, set.Balances, 2)

	low := set.Balances[0]
	require.Equal(t, "rLow", low.Subject)
	require.Equal(t, "rHigh", low.Counterparty)
	require.True(t, low.Delta.Equal(decimal.NewFromInt(30)))
	require.True(t, low.FinalBalance.Equal(decimal.NewFromInt(100)))

	high := set.Balances[1]
	require.Equal(t, "rHigh", high.Subject)
	require.Equal(t, "rLow", high.Counterparty)
	require.True(t, high.Delta.Equal(decimal.NewFromInt(-30)), "mirrored delta is the exact negation")
	require.True(t, high.FinalBalance.Equal(decimal.NewFromInt(-100)))
}

func TestExtract_TrustlineCreated(t *testing.T) {
	c := newClose(ledger.Transaction{
		Hash:   "TX1",
		Type:   ledger.TxTrustSet,
		Result: ledger.ResultSuccess,
		Affected: []ledger.EntryDelta{{
			Kind:   ledger.EntryRippleState,
			Change: ledger.ChangeCreated,
			Final: map[string]interface{}{
				"Balance":   issuedAmount("25", "USD", ""),
				"LowLimit":  issuedAmount("0", "USD", "rLow"),
				"HighLimit": issuedAmount("500", "USD", "rHigh"),
			},
		}},
	})

	set := Extract(c)
	require.Len(t, set.Balances, 2)
	require.True(t, set.Balances[0].Delta.Equal(decimal.NewFromInt(25)), "created line's opening balance is the delta")

	require.Len(t, set.Counters, 1)
	require.Equal(t, stats.CountTrustlineAdded, set.Counters[0].Kind)
}

func TestExtract_TrustlineCreatedZeroBalanceOnlyCounts(t *testing.T) {
	c := newClose(ledger.Transaction{
		Hash:   "TX1",
		Type:   ledger.TxTrustSet,
		Result: ledger.ResultSuccess,
		Affected: []ledger.EntryDelta{{
			Kind:   ledger.EntryRippleState,
			Change: ledger.ChangeCreated,
			Final: map[string]interface{}{
				"Balance":   issuedAmount("0", "USD", ""),
				"LowLimit":  issuedAmount("0", "USD", "rLow"),
				"HighLimit": issuedAmount("500", "USD", "rHigh"),
			},
		}},
	})

	set := Extract(c)
	require.Empty(t, set.Balances)
	require.Len(t, set.Counters, 1)
}

func TestExtract_AccountCreated(t *testing.T) {
	c := newClose(ledger.Transaction{
		Hash:   "TX1",
		Type:   ledger.TxPayment,
		Result: ledger.ResultSuccess,
		Affected: []ledger.EntryDelta{{
			Kind:   ledger.EntryAccountRoot,
			Change: ledger.ChangeCreated,
			Final: map[string]interface{}{
				"Account": "rNewAccount",
				"Balance": "200000000",
			},
		}},
	})

	set := Extract(c)
	require.Len(t, set.Counters, 1)
	require.Equal(t, stats.CountAccountCreated, set.Counters[0].Kind)
	require.Equal(t, "rNewAccount", set.Counters[0].Value)

	require.Len(t, set.Balances, 1)
	require.True(t, set.Balances[0].Delta.Equal(decimal.NewFromInt(200)))
}

func TestExtract_NativeBalanceIncludesFee(t *testing.T) {
	// Sender paid 10 XRP plus a 12-drop fee: the raw balance delta already
	// carries both, so the extracted delta is -10.000012 with no separate fee
	// adjustment.
	c := newClose(ledger.Transaction{
		Hash:    "TX1",
		Account: "rSender",
		Type:    ledger.TxPayment,
		Result:  ledger.ResultSuccess,
		Fee:     12,
		Affected: []ledger.EntryDelta{{
			Kind:   ledger.EntryAccountRoot,
			Change: ledger.ChangeModified,
			Previous: map[string]interface{}{
				"Balance": "100000000",
			},
			Final: map[string]interface{}{
				"Account": "rSender",
				"Balance": "89999988",
			},
		}},
	})

	set := Extract(c)
	require.Len(t, set.Balances, 1)
	require.True(t, set.Balances[0].Delta.Equal(decimal.NewFromFloat(-10.000012)))
	require.Equal(t, ledger.NativeCurrency, set.Balances[0].Currency)
}

func TestExtract_MalformedDeltasSkipped(t *testing.T) {
	c := newClose(ledger.Transaction{
		Hash:   "TX1",
		Type:   ledger.TxPayment,
		Result: ledger.ResultSuccess,
		Affected: []ledger.EntryDelta{
			{
				Kind:     ledger.EntryOffer,
				Change:   ledger.ChangeModified,
				Previous: map[string]interface{}{"TakerPays": issuedAmount("100", "USD", "rI")},
				Final:    map[string]interface{}{},
			},
			{
				Kind:     ledger.EntryRippleState,
				Change:   ledger.ChangeModified,
				Previous: map[string]interface{}{"Flags": float64(0)},
				Final:    map[string]interface{}{"Balance": issuedAmount("1", "USD", "")},
			},
			{
				Kind:   ledger.EntryKind("DirectoryNode"),
				Change: ledger.ChangeModified,
			},
		},
	})

	require.True(t, Extract(c).Empty())
}

func TestExtract_DoubleEntrySymmetry(t *testing.T) {
	c := newClose(ledger.Transaction{
		Hash:   "TX1",
		Type:   ledger.TxPayment,
		Result: ledger.ResultSuccess,
		Affected: []ledger.EntryDelta{{
			Kind:   ledger.EntryOffer,
			Change: ledger.ChangeModified,
			Previous: map[string]interface{}{
				"TakerPays": issuedAmount("30", "EUR", "rE"),
				"TakerGets": issuedAmount("10", "USD", "rU"),
			},
			Final: map[string]interface{}{
				"TakerPays": issuedAmount("0", "EUR", "rE"),
				"TakerGets": issuedAmount("0", "USD", "rU"),
			},
		}},
	})

	set := Extract(c)
	require.Len(t, set.Trades, 2)
	a, b := set.Trades[0], set.Trades[1]
	require.Equal(t, a.Pair.Invert(), b.Pair)
	require.True(t, a.BaseAmount.Equal(b.CounterAmount))
	require.True(t, a.CounterAmount.Equal(b.BaseAmount))
	require.True(t, a.Rate.Mul(b.Rate).Sub(decimal.NewFromInt(1)).Abs().LessThan(decimal.NewFromFloat(1e-12)))
}
