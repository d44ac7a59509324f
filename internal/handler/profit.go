package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/efreitasn/isinprofit/internal/domain"
	"github.com/efreitasn/isinprofit/internal/service"
)

// ProfitHandler handles HTTP requests for profit endpoints.
type ProfitHandler struct {
	profitSvc *service.ProfitService
	logger    *slog.Logger
}

// NewProfitHandler creates a new ProfitHandler.
func NewProfitHandler(profitSvc *service.ProfitService, logger *slog.Logger) *ProfitHandler {
	return &ProfitHandler{profitSvc: profitSvc, logger: logger}
}

// dailyProfitResponse is the JSON response for GET /profit?date=.
type dailyProfitResponse struct {
	Date      string                 `json:"date"`
	Profit    map[string]json.Number `json:"profit"`
	Unmatched map[string]json.Number `json:"unmatched"`
	Total     json.Number            `json:"total"`
	SellCount int                    `json:"sell_count"`
	Skipped   int                    `json:"skipped"`
}

// rangeProfitResponse is the JSON response for GET /profit?from=&to=.
type rangeProfitResponse struct {
	From      string                 `json:"from"`
	To        string                 `json:"to"`
	Profit    map[string]json.Number `json:"profit"`
	Total     json.Number            `json:"total"`
	SellCount int                    `json:"sell_count"`
}

// GetProfit handles GET /profit. Either date, or both from and to, must be
// given.
func (h *ProfitHandler) GetProfit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	dateParam, fromParam, toParam := q.Get("date"), q.Get("from"), q.Get("to")

	switch {
	case dateParam != "" && fromParam == "" && toParam == "":
		date, ok := parseDateParam(w, "date", dateParam)
		if !ok {
			return
		}
		day, err := h.profitSvc.ProfitForDate(r.Context(), date)
		if err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, buildDailyProfitResponse(day))

	case dateParam == "" && fromParam != "" && toParam != "":
		from, ok := parseDateParam(w, "from", fromParam)
		if !ok {
			return
		}
		to, ok := parseDateParam(w, "to", toParam)
		if !ok {
			return
		}
		rng, err := h.profitSvc.ProfitForRange(r.Context(), from, to)
		if err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
		WriteJSON(w, http.StatusOK, rangeProfitResponse{
			From:      rng.From.String(),
			To:        rng.To.String(),
			Profit:    numbers(rng.ByDate, domain.Date.String),
			Total:     number(rng.Total),
			SellCount: rng.SellCount,
		})

	default:
		WriteError(w, http.StatusBadRequest, "validation_error",
			"either date or both from and to are required")
	}
}

func buildDailyProfitResponse(day *service.DailyProfit) dailyProfitResponse {
	isin := func(s string) string { return s }
	return dailyProfitResponse{
		Date:      day.Date.String(),
		Profit:    numbers(day.ByISIN, isin),
		Unmatched: numbers(day.UnmatchedByISIN, isin),
		Total:     number(day.Total),
		SellCount: day.SellCount,
		Skipped:   day.Skipped,
	}
}

// parseDateParam parses a YYYY-MM-DD query parameter, writing a 400 when
// it is malformed.
func parseDateParam(w http.ResponseWriter, name, value string) (domain.Date, bool) {
	d, err := domain.ParseDate(value)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", name+" must be a date in YYYY-MM-DD format")
		return domain.Date{}, false
	}
	return d, true
}
