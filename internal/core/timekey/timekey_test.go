package timekey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFromTime_ZeroBasedMonth(t *testing.T) {
	k := FromTime(time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC))
	require.Equal(t, Key{2026, 0, 2, 3, 4, 5}, k)

	k = FromTime(time.Date(2025, time.December, 31, 23, 59, 59, 0, time.UTC))
	require.Equal(t, Key{2025, 11, 31, 23, 59, 59}, k)
}

func TestFromTime_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	k := FromTime(time.Date(2026, time.March, 1, 2, 0, 0, 0, loc))
	require.Equal(t, Key{2026, 1, 28, 21, 0, 0}, k)
}

func TestTruncate(t *testing.T) {
	k := Key{2026, 5, 15, 10, 30, 45}

	tests := []struct {
		depth int
		want  Key
	}{
		{DepthAll, Key{}},
		{DepthYear, Key{2026}},
		{DepthMonth, Key{2026, 5}},
		{DepthDay, Key{2026, 5, 15}},
		{DepthSecond, Key{2026, 5, 15, 10, 30, 45}},
	}
	for _, tc := range tests {
		got, err := k.Truncate(tc.depth)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}

	_, err := k.Truncate(7)
	require.Error(t, err)
	_, err = k.Truncate(-1)
	require.Error(t, err)
}

func TestCompare(t *testing.T) {
	a := Key{2026, 5, 15}
	b := Key{2026, 5, 16}

	cmp, err := Compare(a, b)
	require.NoError(t, err)
	require.Equal(t, -1, cmp)

	cmp, err = Compare(b, a)
	require.NoError(t, err)
	require.Equal(t, 1, cmp)

	cmp, err = Compare(a, a)
	require.NoError(t, err)
	require.Equal(t, 0, cmp)
}

func TestCompare_LengthMismatchRejected(t *testing.T) {
	// The length mismatch must fail loudly, never silently compare as equal.
	_, err := Compare(Key{2026, 5}, Key{2026, 5, 15})
	require.Error(t, err)
	require.Contains(t, err.Error(), "different lengths")
}

func TestString_OrderMatchesChronology(t *testing.T) {
	earlier := FromTime(time.Date(2026, time.February, 9, 23, 59, 59, 0, time.UTC))
	later := FromTime(time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC))
	require.Less(t, earlier.String(), later.String())

	require.Equal(t, "2026-01-09-23-59-59", earlier.String())
}

func TestParse_RoundTrip(t *testing.T) {
	for _, k := range []Key{
		{},
		{2026},
		{2026, 0},
		{2026, 11, 31, 23, 59, 59},
	} {
		parsed, err := Parse(k.String())
		require.NoError(t, err)
		require.Equal(t, k, parsed)
	}

	_, err := Parse("2026-01-02-03-04-05-06")
	require.Error(t, err)
}

func TestHistoricalRoundTrip(t *testing.T) {
	ts := time.Date(2013, time.July, 4, 12, 0, 30, 0, time.UTC)
	k := FromTime(ts)
	back, err := k.Time()
	require.NoError(t, err)
	require.True(t, ts.Equal(back))

	_, err = Key{2013, 6}.Time()
	require.Error(t, err)
}
