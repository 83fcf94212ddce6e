package pairs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/closelab/ledgerstats/internal/core/stats"
	"github.com/closelab/ledgerstats/internal/ledger"
	"github.com/stretchr/testify/require"
)

func writeMarket(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func mustPair(t *testing.T, base, counter string) stats.Pair {
	t.Helper()
	b, err := ledger.ParseAsset(base)
	require.NoError(t, err)
	c, err := ledger.ParseAsset(counter)
	require.NoError(t, err)
	return stats.Pair{Base: b, Counter: c}
}

func TestRegistry_LoadsMarketsBothOrientations(t *testing.T) {
	dir := t.TempDir()
	writeMarket(t, dir, "xrpusd.yaml", "name: XRP/USD\nbase: XRP\ncounter: USD.rGateway\n")
	writeMarket(t, dir, "eurusd.yml", "base: EUR.rGateway\ncounter: USD.rGateway\n")
	writeMarket(t, dir, "notes.txt", "ignored")

	reg, err := NewFileSystemRegistry(dir)
	require.NoError(t, err)
	require.Equal(t, 4, reg.Len())

	p := mustPair(t, "XRP", "USD.rGateway")
	require.True(t, reg.Allowed(p))
	require.True(t, reg.Allowed(p.Invert()))
	require.False(t, reg.Allowed(mustPair(t, "BTC.rOther", "XRP")))
}

func TestRegistry_EmptyAllowsEverything(t *testing.T) {
	reg, err := NewFileSystemRegistry(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	require.Zero(t, reg.Len())
	require.True(t, reg.Allowed(mustPair(t, "BTC.rOther", "XRP")))
}

func TestRegistry_RejectsDuplicateAndDegeneratePairs(t *testing.T) {
	dir := t.TempDir()
	writeMarket(t, dir, "a.yaml", "base: XRP\ncounter: USD.rGateway\n")
	writeMarket(t, dir, "b.yaml", "base: XRP\ncounter: USD.rGateway\n")

	_, err := NewFileSystemRegistry(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate pair")

	dir = t.TempDir()
	writeMarket(t, dir, "same.yaml", "base: USD.rGateway\ncounter: USD.rGateway\n")
	_, err = NewFileSystemRegistry(dir)
	require.Error(t, err)
	require.Contains(t, err.Error(), "same asset")

	dir = t.TempDir()
	writeMarket(t, dir, "bad.yaml", "base: USD\ncounter: XRP\n")
	_, err = NewFileSystemRegistry(dir)
	require.Error(t, err)
}

func TestRegistry_ListNamesDefaultToPairString(t *testing.T) {
	dir := t.TempDir()
	writeMarket(t, dir, "unnamed.yaml", "base: XRP\ncounter: USD.rGateway\n")

	reg, err := NewFileSystemRegistry(dir)
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, m := range reg.List() {
		names[m.Name] = true
	}
	require.True(t, names["XRP/USD.rGateway"])
}
