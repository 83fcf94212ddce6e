package query

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	httperr "github.com/closelab/ledgerstats/internal/core/errors"
	"github.com/closelab/ledgerstats/internal/core/stats"
	"github.com/closelab/ledgerstats/internal/importer"
	"github.com/closelab/ledgerstats/internal/ledger"
	"github.com/gin-gonic/gin"
)

// defaultMaxLedgerBytes bounds POST /v1/ledgers request bodies.
const defaultMaxLedgerBytes = 8 << 20

// Ingestor accepts a fully-formed ledger close for immediate flush.
type Ingestor interface {
	Ingest(ctx context.Context, c *ledger.Close) (*importer.Flush, error)
}

// Handler exposes the query service and the push ingestion path over HTTP.
type Handler struct {
	svc            *Service
	ingest         Ingestor
	maxLedgerBytes int64
}

// NewHandler creates an HTTP handler. ingest may be nil, in which case
// POST /v1/ledgers is not registered.
func NewHandler(svc *Service, ingest Ingestor) *Handler {
	return &Handler{svc: svc, ingest: ingest, maxLedgerBytes: defaultMaxLedgerBytes}
}

// RegisterRoutes registers all API routes on the given router.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/markets/:base/:counter/candles", h.HandleCandles)
	r.GET("/v1/accounts/:account/balances", h.HandleBalances)
	r.GET("/v1/stats/counters", h.HandleCounters)
	if h.ingest != nil {
		r.POST("/v1/ledgers", h.HandleIngestLedger)
	}
}

// rangeQuery is the query-string shape shared by all read endpoints.
// Granularity defaults to "all"; descending flips the bucket order.
type rangeQuery struct {
	Start       time.Time `form:"start" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	End         time.Time `form:"end" binding:"required" time_format:"2006-01-02T15:04:05Z07:00"`
	Granularity string    `form:"granularity"`
	Descending  bool      `form:"descending"`
}

// HandleCandles handles GET /v1/markets/:base/:counter/candles
func (h *Handler) HandleCandles(c *gin.Context) {
	var uri struct {
		Base    string `uri:"base" binding:"required"`
		Counter string `uri:"counter" binding:"required"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		writeBadRequest(c, "Invalid path parameters", err)
		return
	}

	query, depth, ok := bindRangeQuery(c)
	if !ok {
		return
	}

	base, err := ledger.ParseAsset(uri.Base)
	if err != nil {
		writeBadRequest(c, "Invalid base asset", err)
		return
	}
	counter, err := ledger.ParseAsset(uri.Counter)
	if err != nil {
		writeBadRequest(c, "Invalid counter asset", err)
		return
	}

	pair := stats.Pair{Base: base, Counter: counter}
	rollups, err := h.svc.Candles(c.Request.Context(), pair, query.Start, query.End, depth, query.Descending)
	if err != nil {
		writeServiceError(c, "Failed to query candles", err)
		return
	}

	resp := CandlesResponse{
		Base:        base.String(),
		Counter:     counter.String(),
		Granularity: granularityName(query.Granularity),
		Start:       query.Start,
		End:         query.End,
		Candles:     make([]CandlePoint, 0, len(rollups)),
	}
	for _, r := range rollups {
		resp.Candles = append(resp.Candles, newCandlePoint(r))
	}
	c.JSON(http.StatusOK, resp)
}

// HandleBalances handles GET /v1/accounts/:account/balances
// Query parameters: currency (required), start, end, granularity, descending
func (h *Handler) HandleBalances(c *gin.Context) {
	var uri struct {
		Account string `uri:"account" binding:"required"`
	}
	if err := c.ShouldBindUri(&uri); err != nil {
		writeBadRequest(c, "Invalid path parameters", err)
		return
	}

	currency := c.Query("currency")
	if currency == "" {
		writeBadRequest(c, "Missing currency parameter", errors.New("currency is required"))
		return
	}

	query, depth, ok := bindRangeQuery(c)
	if !ok {
		return
	}

	rollups, err := h.svc.Balances(c.Request.Context(), uri.Account, currency, query.Start, query.End, depth, query.Descending)
	if err != nil {
		writeServiceError(c, "Failed to query balances", err)
		return
	}

	resp := BalancesResponse{
		Account:     uri.Account,
		Currency:    currency,
		Granularity: granularityName(query.Granularity),
		Start:       query.Start,
		End:         query.End,
		Balances:    make([]BalancePoint, 0, len(rollups)),
	}
	for _, r := range rollups {
		resp.Balances = append(resp.Balances, newBalancePoint(r))
	}
	c.JSON(http.StatusOK, resp)
}

// HandleCounters handles GET /v1/stats/counters
// Query parameters: kind (required), start, end, granularity, descending
func (h *Handler) HandleCounters(c *gin.Context) {
	kind := c.Query("kind")
	if kind == "" {
		writeBadRequest(c, "Missing kind parameter", errors.New("kind is required"))
		return
	}

	query, depth, ok := bindRangeQuery(c)
	if !ok {
		return
	}

	rollups, err := h.svc.Counters(c.Request.Context(), stats.CounterKind(kind), query.Start, query.End, depth, query.Descending)
	if err != nil {
		writeServiceError(c, "Failed to query counters", err)
		return
	}

	resp := CountersResponse{
		Kind:        kind,
		Granularity: granularityName(query.Granularity),
		Start:       query.Start,
		End:         query.End,
		Counters:    make([]CounterPoint, 0, len(rollups)),
	}
	for _, r := range rollups {
		resp.Counters = append(resp.Counters, newCounterPoint(r))
	}
	c.JSON(http.StatusOK, resp)
}

// HandleIngestLedger handles POST /v1/ledgers. The body is one ledger in the
// upstream RPC wire shape. The close is verified against its transaction set
// hash before anything is written; a mismatch is rejected without partial
// aggregates.
func (h *Handler) HandleIngestLedger(c *gin.Context) {
	limited := io.LimitReader(c.Request.Body, h.maxLedgerBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		slog.Error("Failed to read ledger body", "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to read request body",
			Details:   err.Error(),
		})
		return
	}
	if int64(len(raw)) > h.maxLedgerBytes {
		c.JSON(http.StatusRequestEntityTooLarge, httperr.ErrorResponse{
			ErrorType: httperr.HttpBadRequestError,
			Message:   "Ledger payload too large",
		})
		return
	}

	cl, err := importer.DecodeClose(raw)
	if err != nil {
		writeBadRequest(c, "Invalid ledger payload", err)
		return
	}

	flush, err := h.ingest.Ingest(c.Request.Context(), cl)
	if err != nil {
		if errors.Is(err, httperr.ErrIntegrity) {
			c.JSON(http.StatusUnprocessableEntity, httperr.ErrorResponse{
				ErrorType: httperr.HttpIntegrityError,
				Message:   "Ledger failed integrity verification",
				Details:   err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to ingest ledger",
			Details:   err.Error(),
		})
		return
	}

	slog.Info("Ledger ingested",
		"sequence", cl.Sequence,
		"trades", len(flush.Trades),
		"balances", len(flush.Balances),
		"counters", len(flush.Counters),
	)
	c.JSON(http.StatusAccepted, IngestResponse{
		Sequence: cl.Sequence,
		Trades:   len(flush.Trades),
		Balances: len(flush.Balances),
		Counters: len(flush.Counters),
	})
}

// bindRangeQuery binds and validates the shared range parameters. On failure
// the error response has already been written and ok is false.
func bindRangeQuery(c *gin.Context) (rangeQuery, int, bool) {
	var query rangeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		writeBadRequest(c, "Invalid query parameters", err)
		return rangeQuery{}, 0, false
	}
	if !query.End.After(query.Start) {
		writeBadRequest(c, "Invalid time range", errors.New("end must be after start"))
		return rangeQuery{}, 0, false
	}
	depth, err := ParseGranularity(query.Granularity)
	if err != nil {
		writeBadRequest(c, "Invalid granularity", err)
		return rangeQuery{}, 0, false
	}
	return query, depth, true
}

func granularityName(s string) string {
	if s == "" {
		return "all"
	}
	return s
}

func writeBadRequest(c *gin.Context, msg string, err error) {
	c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
		ErrorType: httperr.HttpInvalidJsonError,
		Message:   msg,
		Details:   err.Error(),
	})
}

func writeServiceError(c *gin.Context, msg string, err error) {
	if errors.Is(err, httperr.ErrNotFound) {
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   msg,
			Details:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
		ErrorType: httperr.HttpInternalError,
		Message:   msg,
		Details:   err.Error(),
	})
}
