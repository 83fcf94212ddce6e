package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// TxResult is the engine result of a settled transaction. Only successful
// transactions contribute to statistics; everything else is discarded.
type TxResult string

const (
	ResultSuccess TxResult = "tesSUCCESS"
)

// TxType is the transaction's declared operation.
type TxType string

const (
	TxPayment     TxType = "Payment"
	TxOfferCreate TxType = "OfferCreate"
	TxOfferCancel TxType = "OfferCancel"
	TxTrustSet    TxType = "TrustSet"
)

// EntryKind tags which ledger entry a delta describes.
type EntryKind string

const (
	EntryOffer       EntryKind = "Offer"
	EntryAccountRoot EntryKind = "AccountRoot"
	EntryRippleState EntryKind = "RippleState"
)

// ChangeKind tags how the entry changed within the transaction.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "CreatedNode"
	ChangeModified ChangeKind = "ModifiedNode"
	ChangeDeleted  ChangeKind = "DeletedNode"
)

// EntryDelta is a before/after snapshot of one ledger entry.
// Final holds the entry's fields after the transaction applied; Previous holds
// only the fields that changed, with their prior values. For Created entries
// Final carries the new fields and Previous is empty.
// Field values are decoded JSON: strings, float64, or amount objects
// (map[string]interface{} with currency/issuer/value).
type EntryDelta struct {
	Kind     EntryKind
	Change   ChangeKind
	Final    map[string]interface{}
	Previous map[string]interface{}
}

// Transaction is one settled transaction inside a ledger close.
type Transaction struct {
	Hash     string
	Account  string
	Type     TxType
	Result   TxResult
	Fee      int64 // drops, debited from Account's native balance
	Affected []EntryDelta
}

// Succeeded reports whether the transaction is eligible for event extraction.
func (t *Transaction) Succeeded() bool {
	return t.Result == ResultSuccess
}

// Close is one ledger close: an ordered settlement batch of transactions.
// Immutable once constructed.
type Close struct {
	Sequence     uint32
	Hash         string
	TxSetHash    string // declared hash of the transaction set
	CloseTimeUTC time.Time
	Transactions []Transaction
}

// Validate checks the structural fields required before extraction.
func (c *Close) Validate() error {
	if c.Sequence == 0 {
		return fmt.Errorf("ledger sequence is required")
	}
	if c.CloseTimeUTC.IsZero() {
		return fmt.Errorf("ledger close time is required")
	}
	for i := range c.Transactions {
		if c.Transactions[i].Hash == "" {
			return fmt.Errorf("transaction %d has no hash", i)
		}
	}
	return nil
}

// ComputeTxSetHash recomputes the transaction-set hash from the member
// transaction hashes: SHA-256 over the sorted, uppercased hash list.
func (c *Close) ComputeTxSetHash() string {
	hashes := make([]string, len(c.Transactions))
	for i := range c.Transactions {
		hashes[i] = strings.ToUpper(c.Transactions[i].Hash)
	}
	sort.Strings(hashes)

	h := sha256.New()
	for _, th := range hashes {
		h.Write([]byte(th))
	}
	return strings.ToUpper(hex.EncodeToString(h.Sum(nil)))
}

// VerifyTxSetHash compares the recomputed transaction-set hash against the
// declared one. A mismatch is an integrity violation: the ledger must not be
// handed to the extractor.
func (c *Close) VerifyTxSetHash() error {
	if c.TxSetHash == "" {
		return fmt.Errorf("ledger %d declares no transaction-set hash", c.Sequence)
	}
	got := c.ComputeTxSetHash()
	if !strings.EqualFold(got, c.TxSetHash) {
		return fmt.Errorf("ledger %d transaction-set hash mismatch: declared %s, computed %s",
			c.Sequence, c.TxSetHash, got)
	}
	return nil
}
