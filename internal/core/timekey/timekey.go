package timekey

import (
	"fmt"
	"strings"
	"time"
)

// Depth selects how many leading components of a key are significant.
// DepthAll collapses everything into a single bucket; DepthSecond keeps
// the full six-component key.
const (
	DepthAll    = 0
	DepthYear   = 1
	DepthMonth  = 2
	DepthDay    = 3
	DepthHour   = 4
	DepthMinute = 5
	DepthSecond = 6
)

// Key is an ordered timestamp tuple: [year, month, day, hour, minute, second],
// always UTC. Month is zero-based — it is an ordering component, not a display
// value, and must never be renormalized to one-based.
// A Key may hold fewer than six components after truncation; two keys compare
// only when their lengths match.
type Key []int

// FromTime builds a full-depth key from an absolute instant.
func FromTime(t time.Time) Key {
	u := t.UTC()
	return Key{u.Year(), int(u.Month()) - 1, u.Day(), u.Hour(), u.Minute(), u.Second()}
}

// Truncate returns the key prefix of length depth. Depth must be between
// DepthAll and the key's own length.
func (k Key) Truncate(depth int) (Key, error) {
	if depth < DepthAll || depth > len(k) {
		return nil, fmt.Errorf("invalid truncation depth %d for key of length %d", depth, len(k))
	}
	out := make(Key, depth)
	copy(out, k[:depth])
	return out, nil
}

// Compare orders two keys of equal length lexicographically.
// Returns -1, 0 or 1. Comparing keys of different lengths is a programmer
// error and is rejected rather than silently treated as "not less".
func Compare(a, b Key) (int, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("cannot compare timestamp keys of different lengths (%d vs %d)", len(a), len(b))
	}
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1, nil
		case a[i] > b[i]:
			return 1, nil
		}
	}
	return 0, nil
}

// Time converts a full-depth key back to its UTC instant.
func (k Key) Time() (time.Time, error) {
	if len(k) != DepthSecond {
		return time.Time{}, fmt.Errorf("cannot convert key of length %d to a time", len(k))
	}
	return time.Date(k[0], time.Month(k[1]+1), k[2], k[3], k[4], k[5], 0, time.UTC), nil
}

// String encodes the key as fixed-width zero-padded components joined by '-',
// e.g. "2026-06-30-19-21-05" (month zero-based). Lexicographic order of the
// encoding equals the key's own order, which is what lets a sorted keyed
// store range-scan buckets by string prefix.
func (k Key) String() string {
	parts := make([]string, len(k))
	for i, c := range k {
		if i == 0 {
			parts[i] = fmt.Sprintf("%04d", c)
			continue
		}
		parts[i] = fmt.Sprintf("%02d", c)
	}
	return strings.Join(parts, "-")
}

// Parse decodes a key produced by String. The inverse is lossless at any depth.
func Parse(s string) (Key, error) {
	if s == "" {
		return Key{}, nil
	}
	parts := strings.Split(s, "-")
	if len(parts) > DepthSecond {
		return nil, fmt.Errorf("timestamp key %q has %d components, max %d", s, len(parts), DepthSecond)
	}
	k := make(Key, len(parts))
	for i, p := range parts {
		var v int
		if _, err := fmt.Sscanf(p, "%d", &v); err != nil {
			return nil, fmt.Errorf("timestamp key %q: bad component %q: %w", s, p, err)
		}
		k[i] = v
	}
	return k, nil
}

// RangeBounds returns the inclusive start and exclusive end encoded keys
// covering [start, end) at full depth, for use as a store scan range.
func RangeBounds(start, end time.Time) (string, string) {
	return FromTime(start).String(), FromTime(end).String()
}
