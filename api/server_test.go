package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"gridsim/manager"
	"gridsim/store"
)

const (
	testSecret = "test-secret"
	testWallet = "0x5555555555555555555555555555555555555555"
)

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	sessions := manager.NewSessionManager(st.Session(), st.Profit(), nil, manager.Options{})
	return NewServer(sessions, testSecret, 0)
}

func doJSON(t *testing.T, srv *Server, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func issueToken(t *testing.T, srv *Server) string {
	t.Helper()
	w := doJSON(t, srv, http.MethodPost, "/api/auth/token", "", map[string]string{"wallet": testWallet})
	if w.Code != http.StatusOK {
		t.Fatalf("token issuance failed: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp.Token
}

func startSession(t *testing.T, srv *Server, token, item string) {
	t.Helper()
	w := doJSON(t, srv, http.MethodPost, "/api/sessions", token, map[string]interface{}{
		"item":                 item,
		"wallet":               testWallet,
		"base_price":           100,
		"step_pct":             1,
		"levels_per_side":      2,
		"total_investment_usd": 1000,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("start session failed: %d %s", w.Code, w.Body.String())
	}
}

func TestHealth(t *testing.T) {
	srv := setupTestServer(t)
	w := doJSON(t, srv, http.MethodGet, "/api/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health = %d, want 200", w.Code)
	}
}

func TestIssueTokenValidation(t *testing.T) {
	srv := setupTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/auth/token", "", map[string]string{"wallet": "not-hex"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad wallet = %d, want 400", w.Code)
	}

	w = doJSON(t, srv, http.MethodPost, "/api/auth/token", "", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing wallet = %d, want 400", w.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := setupTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/sessions", "", map[string]string{"item": "BTC"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("no token = %d, want 401", w.Code)
	}

	w = doJSON(t, srv, http.MethodPost, "/api/sessions", "garbage-token", map[string]string{"item": "BTC"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("bad token = %d, want 401", w.Code)
	}

	// Read endpoints stay public
	w = doJSON(t, srv, http.MethodGet, "/api/sessions", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("public list = %d, want 200", w.Code)
	}
}

func TestSessionFlow(t *testing.T) {
	srv := setupTestServer(t)
	token := issueToken(t, srv)
	startSession(t, srv, token, "BTC")

	// Duplicate running session is a client error
	w := doJSON(t, srv, http.MethodPost, "/api/sessions", token, map[string]interface{}{
		"item": "BTC", "base_price": 100,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("duplicate = %d, want 400", w.Code)
	}

	// Tick through the first BUY rung
	w = doJSON(t, srv, http.MethodPost, "/api/sessions/BTC/tick", token, map[string]float64{"price": 98.5})
	if w.Code != http.StatusOK {
		t.Fatalf("tick = %d %s", w.Code, w.Body.String())
	}
	var tickResp struct {
		Filled int `json:"filled"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &tickResp); err != nil {
		t.Fatal(err)
	}
	if tickResp.Filled != 1 {
		t.Errorf("filled = %d, want 1", tickResp.Filled)
	}

	// Empty body ticks without a price
	w = doJSON(t, srv, http.MethodPost, "/api/sessions/BTC/tick", token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("no-price tick = %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, http.MethodGet, "/api/sessions/BTC", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get session = %d", w.Code)
	}
	var snap struct {
		TickCount int `json:"tick_count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.TickCount != 2 {
		t.Errorf("tick_count = %d, want 2", snap.TickCount)
	}

	w = doJSON(t, srv, http.MethodGet, "/api/sessions/BTC/fills?limit=10", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("fills = %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodGet, "/api/sessions/BTC/budget", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("budget = %d", w.Code)
	}

	w = doJSON(t, srv, http.MethodPost, "/api/sessions/BTC/stop", token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("stop = %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodDelete, "/api/sessions/BTC", token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("reset = %d", w.Code)
	}
	w = doJSON(t, srv, http.MethodGet, "/api/sessions/BTC", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("deleted session = %d, want 404", w.Code)
	}
}

func TestManualOrderFlow(t *testing.T) {
	srv := setupTestServer(t)
	token := issueToken(t, srv)
	startSession(t, srv, token, "ETH")

	w := doJSON(t, srv, http.MethodPost, "/api/sessions/ETH/orders", token, map[string]interface{}{
		"side": "BUY", "price": 90, "usd_notional": 200,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("add order = %d %s", w.Code, w.Body.String())
	}
	var order struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &order); err != nil {
		t.Fatal(err)
	}

	// Budget overdraw maps to 400
	w = doJSON(t, srv, http.MethodPost, "/api/sessions/ETH/orders", token, map[string]interface{}{
		"side": "BUY", "price": 90, "usd_notional": 5000,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("overdraw = %d, want 400", w.Code)
	}

	w = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/sessions/ETH/orders/%s", order.ID), token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("cancel = %d %s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, http.MethodDelete, "/api/sessions/ETH/orders/unknown-id", token, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("cancel unknown = %d, want 404", w.Code)
	}

	w = doJSON(t, srv, http.MethodPost, "/api/sessions/ETH/cancel-all", token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("cancel-all = %d", w.Code)
	}
}

func TestSeriesAndProfitEndpoints(t *testing.T) {
	srv := setupTestServer(t)
	token := issueToken(t, srv)
	startSession(t, srv, token, "SOL")

	w := doJSON(t, srv, http.MethodPost, "/api/sessions/SOL/series", token, map[string]interface{}{
		"series": []float64{98.5, 101.5},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("attach series = %d %s", w.Code, w.Body.String())
	}

	// Two ticks consume the whole series
	for i := 0; i < 2; i++ {
		w = doJSON(t, srv, http.MethodPost, "/api/sessions/SOL/tick", token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("tick %d = %d", i, w.Code)
		}
	}

	w = doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/profit/%s/record", testWallet), token, map[string]interface{}{
		"item": "SOL", "fill_id": "ext-fill-1", "side": "SELL", "delta": 1500,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("record pnl = %d %s", w.Code, w.Body.String())
	}
	var rec struct {
		Recorded bool    `json:"recorded"`
		Fee      float64 `json:"fee"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &rec); err != nil {
		t.Fatal(err)
	}
	if !rec.Recorded || rec.Fee != 15 {
		t.Errorf("record result = %+v, want recorded with fee 15", rec)
	}

	w = doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/profit/%s", testWallet), "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get profit = %d", w.Code)
	}
	var state struct {
		LifetimeProfitUSD float64 `json:"lifetime_profit_usd"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &state); err != nil {
		t.Fatal(err)
	}
	if state.LifetimeProfitUSD != 1500 {
		t.Errorf("lifetime profit = %v, want 1500", state.LifetimeProfitUSD)
	}
}

func TestUnknownItemMapsTo404(t *testing.T) {
	srv := setupTestServer(t)
	token := issueToken(t, srv)

	paths := []struct {
		method string
		path   string
		body   interface{}
	}{
		{http.MethodGet, "/api/sessions/NOPE", nil},
		{http.MethodGet, "/api/sessions/NOPE/orders", nil},
		{http.MethodGet, "/api/sessions/NOPE/budget", nil},
		{http.MethodPost, "/api/sessions/NOPE/tick", map[string]float64{"price": 1}},
		{http.MethodPost, "/api/sessions/NOPE/stop", nil},
	}
	for _, p := range paths {
		w := doJSON(t, srv, p.method, p.path, token, p.body)
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s = %d, want 404", p.method, p.path, w.Code)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := setupTestServer(t)
	w := doJSON(t, srv, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("metrics = %d, want 200", w.Code)
	}
}
