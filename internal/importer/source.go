package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	corerrors "github.com/closelab/ledgerstats/internal/core/errors"
	"github.com/closelab/ledgerstats/internal/ledger"
	jsoniter "github.com/json-iterator/go"
)

// Ref identifies one ledger to fetch: by sequence, by hash, or the sentinel
// "most recently closed".
type Ref struct {
	Sequence uint32
	Hash     string
	Closed   bool
}

// RefBySequence references a ledger by its sequence number.
func RefBySequence(seq uint32) Ref { return Ref{Sequence: seq} }

// RefByHash references a ledger by its hash.
func RefByHash(hash string) Ref { return Ref{Hash: hash} }

// RefClosed references the most recently closed ledger.
func RefClosed() Ref { return Ref{Closed: true} }

// Source provides ledger closes. Implementations distinguish permanent
// absence (errors.ErrNotFound) from retryable failure (errors.ErrTransient);
// the source itself never retries.
type Source interface {
	FetchLedger(ctx context.Context, ref Ref) (*ledger.Close, error)
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// HTTPSource fetches ledgers from a rippled-style JSON-RPC endpoint.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates a source against the given JSON-RPC URL.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type rpcRequest struct {
	Method string                   `json:"method"`
	Params []map[string]interface{} `json:"params"`
}

type rpcResponse struct {
	Result struct {
		Status string         `json:"status"`
		Error  string         `json:"error"`
		Ledger *ledgerPayload `json:"ledger"`
	} `json:"result"`
}

type ledgerPayload struct {
	Sequence        uint32      `json:"ledger_index,string"`
	Hash            string      `json:"ledger_hash"`
	TransactionHash string      `json:"transaction_hash"`
	CloseTime       int64       `json:"close_time"`
	Transactions    []txPayload `json:"transactions"`
}

type txPayload struct {
	Hash     string `json:"hash"`
	Account  string `json:"Account"`
	Type     string `json:"TransactionType"`
	Fee      string `json:"Fee"`
	MetaData struct {
		TransactionResult string        `json:"TransactionResult"`
		AffectedNodes     []nodePayload `json:"AffectedNodes"`
	} `json:"metaData"`
}

type nodePayload map[string]struct {
	LedgerEntryType string                 `json:"LedgerEntryType"`
	FinalFields     map[string]interface{} `json:"FinalFields"`
	NewFields       map[string]interface{} `json:"NewFields"`
	PreviousFields  map[string]interface{} `json:"PreviousFields"`
}

// rippleEpochOffset converts ledger close times (seconds since 2000-01-01)
// to Unix seconds.
const rippleEpochOffset = 946684800

// FetchLedger issues a ledger RPC and decodes the result into the domain
// model. HTTP transport faults and 5xx map to ErrTransient; an unknown
// ledger maps to ErrNotFound.
func (s *HTTPSource) FetchLedger(ctx context.Context, ref Ref) (*ledger.Close, error) {
	params := map[string]interface{}{
		"transactions": true,
		"expand":       true,
	}
	switch {
	case ref.Closed:
		params["ledger_index"] = "closed"
	case ref.Hash != "":
		params["ledger_hash"] = ref.Hash
	default:
		params["ledger_index"] = ref.Sequence
	}

	body, err := json.Marshal(rpcRequest{Method: "ledger", Params: []map[string]interface{}{params}})
	if err != nil {
		return nil, fmt.Errorf("encode ledger request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ledger request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, corerrors.Transient("fetch ledger %v", ref)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, corerrors.Transient("fetch ledger %v: upstream status %d", ref, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch ledger %v: unexpected status %d", ref, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, corerrors.Transient("read ledger response for %v", ref)
	}

	var rpc rpcResponse
	if err := json.Unmarshal(raw, &rpc); err != nil {
		return nil, fmt.Errorf("decode ledger response for %v: %w", ref, err)
	}
	if rpc.Result.Error == "lgrNotFound" || rpc.Result.Ledger == nil {
		return nil, corerrors.NotFound("ledger %v", ref)
	}
	if rpc.Result.Status != "success" {
		return nil, corerrors.Transient("ledger %v: upstream result %q", ref, rpc.Result.Error)
	}

	return decodeLedger(rpc.Result.Ledger)
}

// DecodeClose decodes a raw ledger payload (the RPC wire shape, without the
// JSON-RPC envelope) into the domain model. Ledgers submitted over HTTP use
// the same format the upstream RPC returns.
func DecodeClose(raw []byte) (*ledger.Close, error) {
	var p ledgerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode ledger payload: %w", err)
	}
	return decodeLedger(&p)
}

func decodeLedger(p *ledgerPayload) (*ledger.Close, error) {
	c := &ledger.Close{
		Sequence:     p.Sequence,
		Hash:         p.Hash,
		TxSetHash:    p.TransactionHash,
		CloseTimeUTC: time.Unix(p.CloseTime+rippleEpochOffset, 0).UTC(),
	}

	for _, tp := range p.Transactions {
		tx := ledger.Transaction{
			Hash:    tp.Hash,
			Account: tp.Account,
			Type:    ledger.TxType(tp.Type),
			Result:  ledger.TxResult(tp.MetaData.TransactionResult),
		}
		if tp.Fee != "" {
			fmt.Sscanf(tp.Fee, "%d", &tx.Fee)
		}
		for _, node := range tp.MetaData.AffectedNodes {
			for change, entry := range node {
				final := entry.FinalFields
				if final == nil {
					final = entry.NewFields
				}
				tx.Affected = append(tx.Affected, ledger.EntryDelta{
					Kind:     ledger.EntryKind(entry.LedgerEntryType),
					Change:   ledger.ChangeKind(change),
					Final:    final,
					Previous: entry.PreviousFields,
				})
			}
		}
		c.Transactions = append(c.Transactions, tx)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("decoded ledger invalid: %w", err)
	}
	return c, nil
}
