// src/handlers/portfolio_handler.go
package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/username/stakeledger/src/logger"
	"github.com/username/stakeledger/src/models"
	"github.com/username/stakeledger/src/processors"
	"github.com/username/stakeledger/src/security/validation"
	"github.com/username/stakeledger/src/services"
)

type PortfolioHandler struct {
	portfolio services.PortfolioService
	imports   services.ImportService
	ledger    services.LedgerService
}

func NewPortfolioHandler(portfolio services.PortfolioService, imports services.ImportService, ledger services.LedgerService) *PortfolioHandler {
	return &PortfolioHandler{
		portfolio: portfolio,
		imports:   imports,
		ledger:    ledger,
	}
}

type statusResponse struct {
	Records      int                   `json:"records"`
	Symbols      []string              `json:"symbols"`
	Freshness    *models.Freshness     `json:"freshness,omitempty"`
	LastImports  []models.ImportRecord `json:"last_imports"`
	FreshnessErr string                `json:"freshness_error,omitempty"`
}

type balanceResponse struct {
	Symbol  string          `json:"symbol"`
	Balance decimal.Decimal `json:"balance"`
}

type transactionsResponse struct {
	Symbol       string               `json:"symbol"`
	Transactions []models.Transaction `json:"transactions"`
}

type seriesResponse struct {
	Symbol string            `json:"symbol"`
	Bins   string            `json:"bins"`
	Series []models.BinTotal `json:"series"`
}

// symbolParam reads and validates the {symbol} path segment.
func symbolParam(r *http.Request) (string, error) {
	symbol := strings.ToUpper(validation.SanitizeField(chi.URLParam(r, "symbol")))
	if err := validation.ValidateSymbol(symbol); err != nil {
		return "", err
	}
	return symbol, nil
}

func (h *PortfolioHandler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := h.ledger.Count(ctx)
	if err != nil {
		sendJSONError(w, r, "Error reading ledger", http.StatusInternalServerError)
		return
	}
	symbols, err := h.portfolio.Symbols(ctx)
	if err != nil {
		sendJSONError(w, r, "Error reading ledger", http.StatusInternalServerError)
		return
	}
	history, err := h.ledger.History(ctx, 5)
	if err != nil {
		sendJSONError(w, r, "Error reading import history", http.StatusInternalServerError)
		return
	}

	resp := statusResponse{Records: count, Symbols: symbols, LastImports: history}
	if resp.Symbols == nil {
		resp.Symbols = []string{}
	}
	if resp.LastImports == nil {
		resp.LastImports = []models.ImportRecord{}
	}
	if fresh, err := h.imports.Freshness(ctx); err != nil {
		resp.FreshnessErr = err.Error()
	} else {
		resp.Freshness = &fresh
	}
	sendJSON(w, resp)
}

func (h *PortfolioHandler) HandleGetTransactions(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(validation.SanitizeField(r.URL.Query().Get("symbol")))
	if symbol != "" {
		if err := validation.ValidateSymbol(symbol); err != nil {
			sendJSONError(w, r, err.Error(), http.StatusBadRequest)
			return
		}
	}
	txs, err := h.portfolio.Filter(r.Context(), symbol, services.PredicateForType(r.URL.Query().Get("type")))
	if err != nil {
		sendJSONError(w, r, "Error retrieving transactions", http.StatusInternalServerError)
		return
	}
	if txs == nil {
		txs = []models.Transaction{}
	}
	sendJSON(w, txs)
}

func (h *PortfolioHandler) HandleGetBalance(w http.ResponseWriter, r *http.Request) {
	symbol, err := symbolParam(r)
	if err != nil {
		sendJSONError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	balance, err := h.portfolio.Balance(r.Context(), symbol)
	if err != nil {
		sendJSONError(w, r, "Error computing balance", http.StatusInternalServerError)
		return
	}
	sendJSON(w, balanceResponse{Symbol: symbol, Balance: balance})
}

func (h *PortfolioHandler) HandleGetRewards(w http.ResponseWriter, r *http.Request) {
	h.handleSeries(w, r, services.IsReward)
}

func (h *PortfolioHandler) HandleGetTransfers(w http.ResponseWriter, r *http.Request) {
	h.handleSeries(w, r, services.IsTransfer)
}

// handleSeries answers with the matching records, or with binned sums when the
// bins query parameter is week or month.
func (h *PortfolioHandler) handleSeries(w http.ResponseWriter, r *http.Request, pred services.TxPredicate) {
	symbol, err := symbolParam(r)
	if err != nil {
		sendJSONError(w, r, err.Error(), http.StatusBadRequest)
		return
	}
	width, err := processors.ParseBinWidth(r.URL.Query().Get("bins"))
	if err != nil {
		sendJSONError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	if width == processors.BinNone {
		txs, err := h.portfolio.Filter(r.Context(), symbol, pred)
		if err != nil {
			sendJSONError(w, r, "Error retrieving transactions", http.StatusInternalServerError)
			return
		}
		if txs == nil {
			txs = []models.Transaction{}
		}
		sendJSON(w, transactionsResponse{Symbol: symbol, Transactions: txs})
		return
	}

	series, err := h.portfolio.Series(r.Context(), symbol, pred, width)
	if err != nil && !errors.Is(err, models.ErrEmptyRange) {
		sendJSONError(w, r, "Error computing series", http.StatusInternalServerError)
		return
	}
	if series == nil {
		series = []models.BinTotal{}
	}
	sendJSON(w, seriesResponse{Symbol: symbol, Bins: string(width), Series: series})
}

func (h *PortfolioHandler) HandleGetValue(w http.ResponseWriter, r *http.Request) {
	symbol, err := symbolParam(r)
	if err != nil {
		sendJSONError(w, r, err.Error(), http.StatusBadRequest)
		return
	}

	var valued *models.ValuedTotal
	if view := r.URL.Query().Get("type"); view != "" {
		valued, err = h.portfolio.ValuedTotal(r.Context(), symbol, services.PredicateForType(view))
	} else {
		valued, err = h.portfolio.ValuedBalance(r.Context(), symbol)
	}
	if err != nil {
		if errors.Is(err, models.ErrPriceUnavailable) {
			sendJSONError(w, r, "Price unavailable for "+symbol, http.StatusServiceUnavailable)
			return
		}
		logger.FromContext(r.Context()).Error("Valuation failed", "symbol", symbol, "error", err)
		sendJSONError(w, r, "Error computing value", http.StatusInternalServerError)
		return
	}
	sendJSON(w, valued)
}
