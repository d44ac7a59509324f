package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/efreitasn/isinprofit/internal/engine"
	"github.com/efreitasn/isinprofit/internal/service"
	"github.com/efreitasn/isinprofit/internal/store"
)

const testISIN = "US0378331005"

var testNow = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

// testEnv bundles all dependencies for handler integration tests.
type testEnv struct {
	router    http.Handler
	ledger    *store.MemoryLedger
	profitSvc *service.ProfitService
	ledgerSvc *service.LedgerService
}

func newTestEnv() *testEnv {
	ledger := store.NewMemoryLedger()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	matcher := engine.NewLotMatcher(ledger, engine.DefaultEpochFloor, func() time.Time { return testNow })

	profitSvc := service.NewProfitService(ledger, matcher, service.ProfitOptions{
		Workers:      4,
		MaxRangeDays: 31,
	}, logger)
	ledgerSvc := service.NewLedgerService(ledger, logger)

	return &testEnv{
		router:    NewRouter(profitSvc, ledgerSvc, logger),
		ledger:    ledger,
		profitSvc: profitSvc,
		ledgerSvc: ledgerSvc,
	}
}

// doJSON sends a JSON request and returns the recorder.
func (env *testEnv) doJSON(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// doRaw sends a raw request with optional content-type override.
func (env *testEnv) doRaw(t *testing.T, method, path, contentType, rawBody string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(rawBody))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

// decodeJSON decodes the response body into v.
func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, rr.Body.String())
	}
}

// record posts an execution at "YYYY-MM-DDTHH:MM:SSZ" and fails the test
// unless it is created.
func (env *testEnv) record(t *testing.T, id, side, execTime string, qty, price float64) map[string]any {
	t.Helper()
	rr := env.doJSON(t, "POST", "/executions", map[string]any{
		"id":        id,
		"isin":      testISIN,
		"side":      side,
		"quantity":  qty,
		"price":     price,
		"exec_time": execTime,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("record %s: expected 201, got %d: %s", id, rr.Code, rr.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	return resp
}

// assertError checks the status and error code of an error response.
func assertError(t *testing.T, rr *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
	var resp errorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error != code {
		t.Fatalf("expected error %q, got %q", code, resp.Error)
	}
}

// --- Healthz ---

func TestHealthz(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "GET", "/healthz", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "ok" {
		t.Fatalf("expected status ok, got %s", resp["status"])
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Fatalf("expected application/json, got %s", ct)
	}
}

// --- Execution Endpoints ---

func TestExecution_Record_Success(t *testing.T) {
	env := newTestEnv()
	resp := env.record(t, "buy-1", "buy", "2024-06-03T09:00:00Z", 10, 90.5)

	if resp["id"] != "buy-1" {
		t.Fatalf("expected id buy-1, got %v", resp["id"])
	}
	if resp["trade_date"] != "2024-06-03" {
		t.Fatalf("expected trade_date 2024-06-03, got %v", resp["trade_date"])
	}
	if resp["price"] != 90.5 {
		t.Fatalf("expected price 90.5, got %v", resp["price"])
	}
	if resp["quantity"] != 10.0 {
		t.Fatalf("expected quantity 10, got %v", resp["quantity"])
	}
}

func TestExecution_Record_GeneratesID(t *testing.T) {
	env := newTestEnv()
	resp := env.record(t, "", "sell", "2024-06-03T09:00:00Z", 1, 1)
	if id, _ := resp["id"].(string); id == "" {
		t.Fatalf("expected generated id, got %v", resp["id"])
	}
}

func TestExecution_Record_DecimalStrings(t *testing.T) {
	env := newTestEnv()
	rr := env.doRaw(t, "POST", "/executions", "application/json",
		`{"isin":"`+testISIN+`","side":"buy","quantity":"2.5","price":"100.10","exec_time":"2024-06-03T09:00:00Z","trade_date":"2024-06-02"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["quantity"] != 2.5 || resp["trade_date"] != "2024-06-02" {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestExecution_Record_Duplicate(t *testing.T) {
	env := newTestEnv()
	env.record(t, "dup", "buy", "2024-06-03T09:00:00Z", 1, 1)

	rr := env.doJSON(t, "POST", "/executions", map[string]any{
		"id": "dup", "isin": testISIN, "side": "buy", "quantity": 1, "price": 1,
		"exec_time": "2024-06-03T10:00:00Z",
	})
	assertError(t, rr, http.StatusConflict, "execution_already_exists")
}

func TestExecution_Record_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad side", map[string]any{"isin": testISIN, "side": "hold", "quantity": 1, "price": 1, "exec_time": "2024-06-03T09:00:00Z"}},
		{"zero quantity", map[string]any{"isin": testISIN, "side": "buy", "quantity": 0, "price": 1, "exec_time": "2024-06-03T09:00:00Z"}},
		{"negative price", map[string]any{"isin": testISIN, "side": "buy", "quantity": 1, "price": -1, "exec_time": "2024-06-03T09:00:00Z"}},
		{"missing isin", map[string]any{"side": "buy", "quantity": 1, "price": 1, "exec_time": "2024-06-03T09:00:00Z"}},
		{"bad exec_time", map[string]any{"isin": testISIN, "side": "buy", "quantity": 1, "price": 1, "exec_time": "yesterday"}},
		{"bad trade_date", map[string]any{"isin": testISIN, "side": "buy", "quantity": 1, "price": 1, "exec_time": "2024-06-03T09:00:00Z", "trade_date": "03/06/2024"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			rr := env.doJSON(t, "POST", "/executions", tt.body)
			assertError(t, rr, http.StatusBadRequest, "validation_error")
		})
	}
}

func TestExecution_Record_MalformedJSON(t *testing.T) {
	env := newTestEnv()
	rr := env.doRaw(t, "POST", "/executions", "application/json", `{"isin":`)
	assertError(t, rr, http.StatusBadRequest, "invalid_request")
}

func TestExecution_Get(t *testing.T) {
	env := newTestEnv()
	env.record(t, "buy-1", "buy", "2024-06-03T09:00:00Z", 10, 90)

	rr := env.doJSON(t, "GET", "/executions/buy-1", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp map[string]any
	decodeJSON(t, rr, &resp)
	if resp["isin"] != testISIN || resp["side"] != "buy" {
		t.Fatalf("unexpected response: %v", resp)
	}
}

func TestExecution_Get_NotFound(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "GET", "/executions/missing", nil)
	assertError(t, rr, http.StatusNotFound, "execution_not_found")
}

func TestExecution_List(t *testing.T) {
	env := newTestEnv()
	env.record(t, "late", "buy", "2024-06-03T11:00:00Z", 1, 1)
	env.record(t, "early", "buy", "2024-06-03T09:00:00Z", 1, 1)
	env.record(t, "sell", "sell", "2024-06-03T10:00:00Z", 1, 1)
	env.record(t, "other-day", "buy", "2024-06-04T09:00:00Z", 1, 1)

	rr := env.doJSON(t, "GET", "/executions?isin="+testISIN+"&side=buy&date=2024-06-03", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp []map[string]any
	decodeJSON(t, rr, &resp)
	if len(resp) != 2 || resp[0]["id"] != "early" || resp[1]["id"] != "late" {
		t.Fatalf("unexpected list: %v", resp)
	}
}

func TestExecution_List_EmptyIsArray(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "GET", "/executions?side=sell&date=2024-06-03", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Fatalf("expected [], got %s", body)
	}
}

func TestExecution_List_ValidationErrors(t *testing.T) {
	env := newTestEnv()
	for _, path := range []string{
		"/executions?side=buy",
		"/executions?side=buy&date=June",
		"/executions?side=short&date=2024-06-03",
	} {
		rr := env.doJSON(t, "GET", path, nil)
		assertError(t, rr, http.StatusBadRequest, "validation_error")
	}
}

func TestExecution_Match(t *testing.T) {
	env := newTestEnv()
	env.record(t, "old", "buy", "2024-06-02T09:00:00Z", 6, 80)
	env.record(t, "sell", "sell", "2024-06-03T10:00:00Z", 10, 100)
	env.record(t, "late", "buy", "2024-06-03T11:00:00Z", 4, 85)

	rr := env.doJSON(t, "GET", "/executions/sell/match", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp matchResponse
	decodeJSON(t, rr, &resp)
	if resp.Profit != "180" {
		t.Fatalf("expected profit 180, got %v", resp.Profit)
	}
	if resp.Exhausted || resp.Unmatched != "0" || resp.Matched != "10" {
		t.Fatalf("unexpected quantities: %+v", resp)
	}
	if len(resp.Lots) != 2 || resp.Lots[0].BuyID != "late" || resp.Lots[1].BuyID != "old" {
		t.Fatalf("unexpected lots: %+v", resp.Lots)
	}
	if resp.Floor != "2000-01-01" || resp.Ceiling != "2024-06-30" {
		t.Fatalf("unexpected window: %s..%s", resp.Floor, resp.Ceiling)
	}
}

func TestExecution_Match_Exhausted(t *testing.T) {
	env := newTestEnv()
	env.record(t, "sell", "sell", "2024-06-03T10:00:00Z", 5, 100)

	rr := env.doJSON(t, "GET", "/executions/sell/match", nil)
	var resp matchResponse
	decodeJSON(t, rr, &resp)
	if !resp.Exhausted || resp.Unmatched != "5" || resp.Profit != "0" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Lots == nil {
		t.Fatal("expected empty lots array, got null")
	}
}

func TestExecution_Match_NotASell(t *testing.T) {
	env := newTestEnv()
	env.record(t, "buy", "buy", "2024-06-03T09:00:00Z", 1, 1)

	rr := env.doJSON(t, "GET", "/executions/buy/match", nil)
	assertError(t, rr, http.StatusBadRequest, "not_a_sell")
}

func TestExecution_Match_NotFound(t *testing.T) {
	env := newTestEnv()
	rr := env.doJSON(t, "GET", "/executions/missing/match", nil)
	assertError(t, rr, http.StatusNotFound, "execution_not_found")
}

// --- Profit Endpoints ---

func TestProfit_ForDate(t *testing.T) {
	env := newTestEnv()
	env.record(t, "buy", "buy", "2024-06-03T09:00:00Z", 10, 90)
	env.record(t, "sell", "sell", "2024-06-03T10:00:00Z", 10, 100)

	rr := env.doJSON(t, "GET", "/profit?date=2024-06-03", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp dailyProfitResponse
	decodeJSON(t, rr, &resp)
	if resp.Profit[testISIN] != "100" || resp.Total != "100" || resp.SellCount != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.Unmatched) != 0 {
		t.Fatalf("expected no unmatched, got %v", resp.Unmatched)
	}
}

func TestProfit_ForDate_NoSells(t *testing.T) {
	env := newTestEnv()
	env.record(t, "buy", "buy", "2024-06-03T09:00:00Z", 10, 90)

	rr := env.doJSON(t, "GET", "/profit?date=2024-06-03", nil)
	assertError(t, rr, http.StatusNotFound, "no_sell_executions")
}

func TestProfit_ForRange(t *testing.T) {
	env := newTestEnv()
	env.record(t, "buy-1", "buy", "2024-06-03T09:00:00Z", 10, 90)
	env.record(t, "sell-1", "sell", "2024-06-03T10:00:00Z", 10, 100)
	env.record(t, "buy-2", "buy", "2024-06-05T09:00:00Z", 10, 70)
	env.record(t, "sell-2", "sell", "2024-06-05T10:00:00Z", 10, 75)

	rr := env.doJSON(t, "GET", "/profit?from=2024-06-01&to=2024-06-07", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp rangeProfitResponse
	decodeJSON(t, rr, &resp)
	if resp.Profit["2024-06-03"] != "100" || resp.Profit["2024-06-05"] != "50" {
		t.Fatalf("unexpected per-date profit: %v", resp.Profit)
	}
	if resp.Total != "150" || resp.SellCount != 2 {
		t.Fatalf("unexpected totals: %+v", resp)
	}
}

func TestProfit_ValidationErrors(t *testing.T) {
	env := newTestEnv()
	for _, path := range []string{
		"/profit",
		"/profit?date=2024-13-01",
		"/profit?from=2024-06-01",
		"/profit?date=2024-06-01&from=2024-06-01&to=2024-06-02",
		"/profit?from=2024-06-10&to=2024-06-01",
		"/profit?from=2024-01-01&to=2024-06-01",
	} {
		t.Run(path, func(t *testing.T) {
			rr := env.doJSON(t, "GET", path, nil)
			assertError(t, rr, http.StatusBadRequest, "validation_error")
		})
	}
}

// --- Content-Type Validation ---

func TestContentType_MissingOnPost(t *testing.T) {
	env := newTestEnv()
	rr := env.doRaw(t, "POST", "/executions", "", `{"isin":"X"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing Content-Type, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestContentType_WrongOnPost(t *testing.T) {
	env := newTestEnv()
	rr := env.doRaw(t, "POST", "/executions", "text/plain", `{"isin":"X"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for wrong Content-Type, got %d: %s", rr.Code, rr.Body.String())
	}
}

// --- Response Format Validation ---

func TestResponseFormat_SnakeCaseFields(t *testing.T) {
	env := newTestEnv()
	env.record(t, "sell", "sell", "2024-06-03T10:00:00Z", 1, 1)

	rr := env.doJSON(t, "GET", "/executions/sell/match", nil)
	body := rr.Body.String()

	for _, field := range []string{"sell_id", "trade_date", "window_floor", "window_ceiling"} {
		if !strings.Contains(body, fmt.Sprintf(`"%s"`, field)) {
			t.Fatalf("response missing snake_case field %q: %s", field, body)
		}
	}
}
