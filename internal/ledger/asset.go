package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// NativeCurrency is the ledger's native asset code. Native amounts travel on
// the wire as integer drops: one display unit is 1e6 drops.
const NativeCurrency = "XRP"

// DropsPerUnit converts between the native minor unit and display units.
var DropsPerUnit = decimal.NewFromInt(1_000_000)

// Asset identifies a currency and its issuing account.
// An empty issuer means the native asset.
type Asset struct {
	Currency string
	Issuer   string
}

// Native is the native asset.
var Native = Asset{Currency: NativeCurrency}

// IsNative reports whether the asset is the ledger's native asset.
func (a Asset) IsNative() bool {
	return a.Issuer == "" && a.Currency == NativeCurrency
}

// String renders "XRP" for native and "CUR.issuer" for issued assets.
// The form is stable and embeds into bucket-store keys.
func (a Asset) String() string {
	if a.IsNative() {
		return NativeCurrency
	}
	return a.Currency + "." + a.Issuer
}

// ParseAsset decodes the String form.
func ParseAsset(s string) (Asset, error) {
	if s == NativeCurrency {
		return Native, nil
	}
	cur, issuer, ok := strings.Cut(s, ".")
	if !ok || cur == "" || issuer == "" {
		return Asset{}, fmt.Errorf("invalid asset %q (want XRP or CUR.issuer)", s)
	}
	return Asset{Currency: cur, Issuer: issuer}, nil
}

// Amount pairs a value with its asset. Native values are always held in
// display units inside the engine; the drops scaling happens exactly once,
// at decode time.
type Amount struct {
	Value decimal.Decimal
	Asset Asset
}

// amountFromField decodes a ledger amount field. Issued amounts arrive as
// {"currency": ..., "issuer": ..., "value": ...}; native amounts arrive as a
// bare string or number of drops and are scaled to display units here.
func amountFromField(v interface{}) (Amount, bool) {
	switch val := v.(type) {
	case string:
		d, err := decimal.NewFromString(val)
		if err != nil {
			return Amount{}, false
		}
		return Amount{Value: d.Div(DropsPerUnit), Asset: Native}, true
	case float64:
		return Amount{Value: decimal.NewFromFloat(val).Div(DropsPerUnit), Asset: Native}, true
	case map[string]interface{}:
		cur, _ := val["currency"].(string)
		if cur == "" {
			return Amount{}, false
		}
		issuer, _ := val["issuer"].(string)
		raw := val["value"]
		var d decimal.Decimal
		switch rv := raw.(type) {
		case string:
			parsed, err := decimal.NewFromString(rv)
			if err != nil {
				return Amount{}, false
			}
			d = parsed
		case float64:
			d = decimal.NewFromFloat(rv)
		default:
			return Amount{}, false
		}
		return Amount{Value: d, Asset: Asset{Currency: cur, Issuer: issuer}}, true
	}
	return Amount{}, false
}

// AmountField extracts an amount-typed field from an entry delta field map.
func AmountField(fields map[string]interface{}, name string) (Amount, bool) {
	v, ok := fields[name]
	if !ok {
		return Amount{}, false
	}
	return amountFromField(v)
}

// DecimalField extracts a plain numeric field from an entry delta field map.
func DecimalField(fields map[string]interface{}, name string) (decimal.Decimal, bool) {
	v, ok := fields[name]
	if !ok {
		return decimal.Decimal{}, false
	}
	switch val := v.(type) {
	case string:
		d, err := decimal.NewFromString(val)
		if err != nil {
			return decimal.Decimal{}, false
		}
		return d, true
	case float64:
		return decimal.NewFromFloat(val), true
	}
	return decimal.Decimal{}, false
}

// StringField extracts a string field from an entry delta field map.
func StringField(fields map[string]interface{}, name string) (string, bool) {
	v, ok := fields[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
