package httpserver

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/mselser95/lmsr-amm/internal/engine"
	"github.com/mselser95/lmsr-amm/internal/market"
	"github.com/mselser95/lmsr-amm/pkg/wad"
	"go.uber.org/zap"
)

// maxBodyBytes bounds a transaction request body.
const maxBodyBytes = 64 << 10

// Backend is the ledger the API reads and submits to.
type Backend interface {
	Markets() ([]engine.Snapshot, error)
	Market(id string) (engine.Snapshot, error)
	Quote(id, side string, o market.Outcome, shares *big.Int) (engine.Quote, error)
	Price(id string) (yes, no *big.Int, err error)
	Position(id string, holder common.Address) (*market.Position, error)
	Positions(id string) ([]*market.Position, error)
	Balance(holder common.Address) *big.Int
	Submit(ctx context.Context, tx engine.Tx) (engine.Receipt, error)
}

// API handles the /api routes.
type API struct {
	backend Backend
	logger  *zap.Logger
}

// NewAPI creates the API handlers.
func NewAPI(backend Backend, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{backend: backend, logger: logger}
}

// Routes registers the API on r.
func (a *API) Routes(r chi.Router) {
	r.Get("/markets", a.handleMarkets)
	r.Route("/markets/{id}", func(r chi.Router) {
		r.Get("/", a.handleMarket)
		r.Get("/price", a.handlePrice)
		r.Get("/quote", a.handleQuote)
		r.Get("/positions", a.handlePositions)
		r.Get("/positions/{holder}", a.handlePosition)
	})
	r.Get("/accounts/{holder}", a.handleAccount)
	r.Post("/transactions", a.handleSubmit)
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// PriceResponse is the body of GET /api/markets/{id}/price.
type PriceResponse struct {
	MarketID string   `json:"market_id"`
	PriceYes *big.Int `json:"price_yes"`
	PriceNo  *big.Int `json:"price_no"`
}

// AccountResponse is the body of GET /api/accounts/{holder}.
type AccountResponse struct {
	Holder  common.Address `json:"holder"`
	Balance *big.Int       `json:"balance"`
}

// TxRequest is the body of POST /api/transactions. Amounts are decimal
// strings such as "12.5".
type TxRequest struct {
	ID           string    `json:"id,omitempty"`
	Op           string    `json:"op"`
	Sender       string    `json:"sender"`
	MarketID     string    `json:"market_id,omitempty"`
	Outcome      string    `json:"outcome,omitempty"`
	Amount       string    `json:"amount,omitempty"`
	Limit        string    `json:"limit,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	MetadataHash string    `json:"metadata_hash,omitempty"`
	MetadataURI  string    `json:"metadata_uri,omitempty"`
}

// Tx converts the request into a ledger transaction.
func (r *TxRequest) Tx() (engine.Tx, error) {
	tx := engine.Tx{
		ID:           r.ID,
		MarketID:     r.MarketID,
		ExpiresAt:    r.ExpiresAt,
		MetadataHash: r.MetadataHash,
		MetadataURI:  r.MetadataURI,
	}

	known := false
	for _, op := range engine.Ops() {
		if string(op) == r.Op {
			known = true
			break
		}
	}
	if !known {
		return tx, fmt.Errorf("unknown op %q", r.Op)
	}
	tx.Op = engine.Op(r.Op)

	if !common.IsHexAddress(r.Sender) {
		return tx, fmt.Errorf("sender %q is not an address", r.Sender)
	}
	tx.Sender = common.HexToAddress(r.Sender)

	o, err := market.ParseOutcome(r.Outcome)
	if err != nil {
		return tx, err
	}
	tx.Outcome = o

	if r.Amount != "" {
		tx.Amount, err = wad.Parse(r.Amount)
		if err != nil {
			return tx, fmt.Errorf("amount: %w", err)
		}
	}
	if r.Limit != "" {
		tx.Limit, err = wad.Parse(r.Limit)
		if err != nil {
			return tx, fmt.Errorf("limit: %w", err)
		}
	}
	return tx, nil
}

func (a *API) handleMarkets(w http.ResponseWriter, r *http.Request) {
	snaps, err := a.backend.Markets()
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, snaps)
}

func (a *API) handleMarket(w http.ResponseWriter, r *http.Request) {
	snap, err := a.backend.Market(chi.URLParam(r, "id"))
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, snap)
}

func (a *API) handlePrice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	yes, no, err := a.backend.Price(id)
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, PriceResponse{MarketID: id, PriceYes: yes, PriceNo: no})
}

// handleQuote handles GET /api/markets/{id}/quote?side=buy&outcome=YES&shares=10.
func (a *API) handleQuote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	side := q.Get("side")
	if side == "" {
		side = "buy"
	}
	o, err := market.ParseOutcome(q.Get("outcome"))
	if err != nil {
		a.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if q.Get("shares") == "" {
		a.writeError(w, "missing required query parameter: shares", http.StatusBadRequest)
		return
	}
	shares, err := wad.Parse(q.Get("shares"))
	if err != nil {
		a.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	quote, err := a.backend.Quote(chi.URLParam(r, "id"), side, o, shares)
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, quote)
}

func (a *API) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := a.backend.Positions(chi.URLParam(r, "id"))
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, positions)
}

func (a *API) handlePosition(w http.ResponseWriter, r *http.Request) {
	holder, ok := a.address(w, chi.URLParam(r, "holder"))
	if !ok {
		return
	}
	pos, err := a.backend.Position(chi.URLParam(r, "id"), holder)
	if err != nil {
		a.writeLedgerError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, pos)
}

func (a *API) handleAccount(w http.ResponseWriter, r *http.Request) {
	holder, ok := a.address(w, chi.URLParam(r, "holder"))
	if !ok {
		return
	}
	a.writeJSON(w, http.StatusOK, AccountResponse{Holder: holder, Balance: a.backend.Balance(holder)})
}

func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req TxRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	err := dec.Decode(&req)
	if err != nil {
		a.writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := req.Tx()
	if err != nil {
		a.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	rcpt, err := a.backend.Submit(r.Context(), tx)
	if err != nil {
		a.logger.Debug("transaction-submission-failed",
			zap.String("op", string(tx.Op)),
			zap.String("market-id", tx.MarketID),
			zap.Error(err))
		a.writeLedgerError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, rcpt)
}

func (a *API) address(w http.ResponseWriter, s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		a.writeError(w, fmt.Sprintf("%q is not an address", s), http.StatusBadRequest)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

// StatusFor maps a ledger error to an HTTP status.
func StatusFor(err error) int {
	var lerr *market.Error
	if !errors.As(err, &lerr) {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return http.StatusGatewayTimeout
		case errors.Is(err, context.Canceled):
			return http.StatusRequestTimeout
		}
		return http.StatusServiceUnavailable
	}

	switch lerr.Kind {
	case market.KindMarketNotFound:
		return http.StatusNotFound
	case market.KindInvalidArgument, market.KindInvalidOutcome:
		return http.StatusBadRequest
	case market.KindNotCreator, market.KindNotEligible, market.KindUnauthorized:
		return http.StatusForbidden
	case market.KindMarketExists, market.KindMarketNotTrading, market.KindMarketExpired,
		market.KindInvalidTransition, market.KindDisputePeriodOver, market.KindDisputePeriodActive,
		market.KindAlreadyDisputed, market.KindVotingClosed, market.KindQuorumNotMet:
		return http.StatusConflict
	case market.KindInsufficientShares, market.KindInsufficientFunds, market.KindSlippageExceeded,
		market.KindBelowMinSubsidy, market.KindFeeTooLow, market.KindNothingToClaim, market.KindDomainError:
		return http.StatusUnprocessableEntity
	case market.KindReentrant:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

func (a *API) writeLedgerError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	if kind := market.KindOf(err); kind != "" {
		resp.Kind = string(kind)
	}
	a.writeJSON(w, StatusFor(err), resp)
}

func (a *API) writeError(w http.ResponseWriter, message string, status int) {
	a.writeJSON(w, status, ErrorResponse{Error: message})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		a.logger.Error("response-encode-failed", zap.Error(err))
	}
}
