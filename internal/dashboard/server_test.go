package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romanzzaa/dhan-trigger-bot/internal/activitylog"
	"github.com/romanzzaa/dhan-trigger-bot/internal/domain"
	"github.com/romanzzaa/dhan-trigger-bot/internal/instruments"
	"github.com/romanzzaa/dhan-trigger-bot/internal/monitor"
	"github.com/romanzzaa/dhan-trigger-bot/internal/usecase"
)

// --- Fakes ---

type stubQuotes struct{}

func (stubQuotes) GetQuote(context.Context, domain.Credentials, string) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("no quote in tests")
}

type stubGateway struct {
	cancelled []string
	modified  map[string]decimal.Decimal
}

func (g *stubGateway) PlaceOrder(context.Context, domain.Credentials, domain.OrderTicket) (domain.BrokerReply, error) {
	return domain.BrokerReply{StatusCode: 200, Body: "{}"}, nil
}

func (g *stubGateway) CancelOrder(_ context.Context, _ domain.Credentials, orderID string) (domain.BrokerReply, error) {
	g.cancelled = append(g.cancelled, orderID)
	return domain.BrokerReply{StatusCode: 200, Body: `{"status":"cancelled"}`}, nil
}

func (g *stubGateway) ModifyStopLoss(_ context.Context, _ domain.Credentials, orderID string, price decimal.Decimal) (domain.BrokerReply, error) {
	if g.modified == nil {
		g.modified = map[string]decimal.Decimal{}
	}
	g.modified[orderID] = price
	return domain.BrokerReply{StatusCode: 200, Body: "{}"}, nil
}

type stubClock struct{}

func (stubClock) NextOpen(now time.Time) time.Time { return now }

// --- Setup ---

type env struct {
	srv      *httptest.Server
	gateway  *stubGateway
	manager  *monitor.Manager
	activity *activitylog.Log
	store    *instruments.Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	activity := activitylog.New()
	gateway := &stubGateway{}
	store := instruments.NewStore("http://unused", http.DefaultClient, logger)

	executor := usecase.NewOrderExecutor(gateway, activity, nil, logger)
	manager := monitor.NewManager(stubQuotes{}, executor, stubClock{}, activity, logger, time.Minute)
	t.Cleanup(manager.StopAll)

	s := NewServer(store, manager, gateway, activity, logger, activitylog.DefaultTail)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	return &env{srv: srv, gateway: gateway, manager: manager, activity: activity, store: store}
}

func (e *env) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, reader)
	require.NoError(t, err)
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (e *env) loadInstruments(t *testing.T) {
	t.Helper()
	_, err := e.store.Load(strings.NewReader("tradingsymbol,securityid\nRELIANCE,2885\nTCS,11536\n"))
	require.NoError(t, err)
}

func (e *env) setToken(t *testing.T) {
	t.Helper()
	resp, _ := e.do(t, "POST", "/api/v1/session/token", `{"accessToken":"tok"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

const startBody = `{"symbol":"RELIANCE","entryPrice":"2500.00","quantity":1,"orderType":"MARKET","pollIntervalSeconds":1}`

// --- Tests ---

func TestStartRequiresToken(t *testing.T) {
	e := newEnv(t)
	e.loadInstruments(t)

	resp, body := e.do(t, "POST", "/api/v1/monitor", startBody)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "access token")
}

func TestStartRequiresInstrumentList(t *testing.T) {
	e := newEnv(t)
	e.setToken(t)

	resp, body := e.do(t, "POST", "/api/v1/monitor", startBody)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "instruments")
}

func TestStartRejectsBadSymbolOrEntry(t *testing.T) {
	e := newEnv(t)
	e.setToken(t)
	e.loadInstruments(t)

	resp, _ := e.do(t, "POST", "/api/v1/monitor", `{"symbol":"","entryPrice":"100"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = e.do(t, "POST", "/api/v1/monitor", `{"symbol":"RELIANCE","entryPrice":"0"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStartUnknownSymbol(t *testing.T) {
	e := newEnv(t)
	e.setToken(t)
	e.loadInstruments(t)

	resp, body := e.do(t, "POST", "/api/v1/monitor", `{"symbol":"ZOMATO","entryPrice":"100"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body["error"], "not found")
}

func TestStartAndDuplicateConflict(t *testing.T) {
	e := newEnv(t)
	e.setToken(t)
	e.loadInstruments(t)

	resp, body := e.do(t, "POST", "/api/v1/monitor", startBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "MONITORING", body["state"])

	resp, _ = e.do(t, "POST", "/api/v1/monitor", startBody)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestStopRun(t *testing.T) {
	e := newEnv(t)
	e.setToken(t)
	e.loadInstruments(t)

	_, body := e.do(t, "POST", "/api/v1/monitor", startBody)
	runID := body["id"].(string)

	resp, _ := e.do(t, "POST", "/api/v1/monitor/"+runID+"/stop", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = e.do(t, "POST", "/api/v1/monitor/no-such-run/stop", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestResolveEndpoint(t *testing.T) {
	e := newEnv(t)
	e.loadInstruments(t)

	resp, body := e.do(t, "GET", "/api/v1/instruments/resolve?q=tcs", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "TCS", body["symbol"])
	assert.Equal(t, "11536", body["securityId"])

	resp, _ = e.do(t, "GET", "/api/v1/instruments/resolve?q=nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUploadInstruments(t *testing.T) {
	e := newEnv(t)

	resp, body := e.do(t, "POST", "/api/v1/instruments/upload", "symbol,secid\nINFY,99914\n")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["count"])
	assert.True(t, e.store.Loaded())
}

func TestSetTokenValidation(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.do(t, "POST", "/api/v1/session/token", `{"accessToken":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestManualCancelAndModify(t *testing.T) {
	e := newEnv(t)
	e.setToken(t)

	resp, _ := e.do(t, "POST", "/api/v1/orders/ord-7/cancel", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"ord-7"}, e.gateway.cancelled)

	resp, _ = e.do(t, "PATCH", "/api/v1/orders/ord-7", `{"stopLossPrice":"2480.5"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, e.gateway.modified["ord-7"].Equal(decimal.RequireFromString("2480.5")))

	// Отрицательный SL отклоняется до похода к брокеру
	resp, _ = e.do(t, "PATCH", "/api/v1/orders/ord-7", `{"stopLossPrice":"-1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestManualActionsRequireToken(t *testing.T) {
	e := newEnv(t)

	resp, _ := e.do(t, "POST", "/api/v1/orders/ord-7/cancel", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Empty(t, e.gateway.cancelled)
}

func TestLogTailEndpoint(t *testing.T) {
	e := newEnv(t)
	e.activity.Append("one")
	e.activity.Append("two")

	req, _ := http.NewRequest("GET", e.srv.URL+"/api/v1/log?limit=1", nil)
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var entries []activitylog.Entry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "two", entries[0].Message)
}

func TestSessionStatus(t *testing.T) {
	e := newEnv(t)

	_, body := e.do(t, "GET", "/api/v1/session", "")
	assert.Equal(t, false, body["hasToken"])
	assert.Equal(t, false, body["instrumentsLoaded"])

	e.setToken(t)
	e.loadInstruments(t)

	_, body = e.do(t, "GET", "/api/v1/session", "")
	assert.Equal(t, true, body["hasToken"])
	assert.Equal(t, float64(2), body["instrumentCount"])
}

func TestLogStreamWebsocket(t *testing.T) {
	e := newEnv(t)
	e.activity.Append("backlog entry")

	wsURL := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws/log"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Сначала приходит хвост журнала
	var entry activitylog.Entry
	require.NoError(t, conn.ReadJSON(&entry))
	assert.Equal(t, "backlog entry", entry.Message)

	// Затем живые записи (даем серверу время оформить подписку)
	time.Sleep(100 * time.Millisecond)
	e.activity.Append("live entry")
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&entry))
	assert.Equal(t, "live entry", entry.Message)
}
