package partition

import "hash/fnv"

// Count is the fixed number of logical partitions.
// Never changes after initial deployment — it's a capacity decision, not a scaling decision.
const Count = 256

// For returns the partition ID for a given subject key (asset pair, account
// or counter kind). Stable and deterministic: the same subject always maps to
// the same partition. Uses FNV-32a (stdlib, fast, well-distributed).
//
// Upserts are applied in (partition, bucket key) order so concurrent import
// workers take row locks in a consistent sequence.
func For(subject string) int {
	h := fnv.New32a()
	h.Write([]byte(subject))
	return int(h.Sum32()) % Count
}
