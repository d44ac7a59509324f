package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/isinprofit/internal/domain"
	"github.com/efreitasn/isinprofit/internal/engine"
	"github.com/efreitasn/isinprofit/internal/service"
)

// ExecutionHandler handles HTTP requests for ledger endpoints.
type ExecutionHandler struct {
	ledgerSvc *service.LedgerService
	profitSvc *service.ProfitService
	logger    *slog.Logger
}

// NewExecutionHandler creates a new ExecutionHandler.
func NewExecutionHandler(ledgerSvc *service.LedgerService, profitSvc *service.ProfitService, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{ledgerSvc: ledgerSvc, profitSvc: profitSvc, logger: logger}
}

// recordExecutionRequest is the JSON request body for POST /executions.
// Quantity and price accept JSON numbers or decimal strings.
type recordExecutionRequest struct {
	ID        string          `json:"id"`
	ISIN      string          `json:"isin"`
	Side      string          `json:"side"`
	Quantity  decimal.Decimal `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	TradeDate *string         `json:"trade_date"`
	ExecTime  string          `json:"exec_time"`
}

type executionResponse struct {
	ID        string      `json:"id"`
	ISIN      string      `json:"isin"`
	Side      string      `json:"side"`
	Quantity  json.Number `json:"quantity"`
	Price     json.Number `json:"price"`
	TradeDate string      `json:"trade_date"`
	ExecTime  string      `json:"exec_time"`
}

type lotResponse struct {
	BuyID     string      `json:"buy_id"`
	TradeDate string      `json:"trade_date"`
	ExecTime  string      `json:"exec_time"`
	Quantity  json.Number `json:"quantity"`
	BuyPrice  json.Number `json:"buy_price"`
	Profit    json.Number `json:"profit"`
	Phase     string      `json:"phase"`
}

type matchResponse struct {
	SellID    string        `json:"sell_id"`
	ISIN      string        `json:"isin"`
	TradeDate string        `json:"trade_date"`
	Profit    json.Number   `json:"profit"`
	Matched   json.Number   `json:"matched"`
	Unmatched json.Number   `json:"unmatched"`
	Exhausted bool          `json:"exhausted"`
	Floor     string        `json:"window_floor"`
	Ceiling   string        `json:"window_ceiling"`
	Lots      []lotResponse `json:"lots"`
}

// Record handles POST /executions.
func (h *ExecutionHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req recordExecutionRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	execTime, err := time.Parse(time.RFC3339Nano, req.ExecTime)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "exec_time must be a valid RFC 3339 timestamp")
		return
	}

	var tradeDate domain.Date
	if req.TradeDate != nil {
		d, ok := parseDateParam(w, "trade_date", *req.TradeDate)
		if !ok {
			return
		}
		tradeDate = d
	}

	e, err := h.ledgerSvc.Record(r.Context(), service.RecordExecutionRequest{
		ID:        req.ID,
		ISIN:      req.ISIN,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Price:     req.Price,
		TradeDate: tradeDate,
		ExecTime:  execTime,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildExecutionResponse(e))
}

// Get handles GET /executions/{execution_id}.
func (h *ExecutionHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.ledgerSvc.Get(r.Context(), chi.URLParam(r, "execution_id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildExecutionResponse(e))
}

// List handles GET /executions?side=&date=[&isin=].
func (h *ExecutionHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date, ok := parseDateParam(w, "date", q.Get("date"))
	if !ok {
		return
	}

	execs, err := h.ledgerSvc.List(r.Context(), q.Get("isin"), domain.Side(q.Get("side")), date)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := make([]executionResponse, len(execs))
	for i, e := range execs {
		resp[i] = buildExecutionResponse(e)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// Match handles GET /executions/{execution_id}/match.
func (h *ExecutionHandler) Match(w http.ResponseWriter, r *http.Request) {
	res, err := h.profitSvc.MatchExecution(r.Context(), chi.URLParam(r, "execution_id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildMatchResponse(res))
}

func buildExecutionResponse(e domain.Execution) executionResponse {
	return executionResponse{
		ID:        e.ID,
		ISIN:      e.ISIN,
		Side:      string(e.Side),
		Quantity:  number(e.Quantity),
		Price:     number(e.Price),
		TradeDate: e.TradeDate.String(),
		ExecTime:  e.ExecTime.Format(time.RFC3339Nano),
	}
}

func buildMatchResponse(res *engine.MatchResult) matchResponse {
	lots := make([]lotResponse, len(res.Lots))
	for i, l := range res.Lots {
		lots[i] = lotResponse{
			BuyID:     l.BuyID,
			TradeDate: l.TradeDate.String(),
			ExecTime:  l.ExecTime.Format(time.RFC3339Nano),
			Quantity:  number(l.Quantity),
			BuyPrice:  number(l.BuyPrice),
			Profit:    number(l.Profit),
			Phase:     string(l.Phase),
		}
	}
	return matchResponse{
		SellID:    res.SellID,
		ISIN:      res.ISIN,
		TradeDate: res.TradeDate.String(),
		Profit:    number(res.Profit),
		Matched:   number(res.Matched),
		Unmatched: number(res.Unmatched),
		Exhausted: res.Exhausted(),
		Floor:     res.Window.Floor.String(),
		Ceiling:   res.Window.Ceiling.String(),
		Lots:      lots,
	}
}
