// Package dashboard - операторская панель: HTTP API, встроенная
// страница и live-поток журнала по WebSocket.
package dashboard

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"

	"github.com/romanzzaa/dhan-trigger-bot/internal/activitylog"
	"github.com/romanzzaa/dhan-trigger-bot/internal/domain"
	"github.com/romanzzaa/dhan-trigger-bot/internal/instruments"
	"github.com/romanzzaa/dhan-trigger-bot/internal/monitor"
)

type Server struct {
	store    *instruments.Store
	manager  *monitor.Manager
	gateway  domain.OrderGateway
	activity *activitylog.Log
	logger   *slog.Logger
	logTail  int
	router   *mux.Router

	// Сессионные креды: токен вставляют раз в день, живет только в памяти
	mu    sync.RWMutex
	creds domain.Credentials
}

func NewServer(
	store *instruments.Store,
	manager *monitor.Manager,
	gateway domain.OrderGateway,
	activity *activitylog.Log,
	logger *slog.Logger,
	logTail int,
) *Server {
	s := &Server{
		store:    store,
		manager:  manager,
		gateway:  gateway,
		activity: activity,
		logger:   logger.With(slog.String("component", "dashboard")),
		logTail:  logTail,
		router:   mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Session
	api.HandleFunc("/session/token", s.handleSetToken).Methods("POST")
	api.HandleFunc("/session", s.handleSession).Methods("GET")

	// Instruments
	api.HandleFunc("/instruments/download", s.handleDownloadInstruments).Methods("POST")
	api.HandleFunc("/instruments/upload", s.handleUploadInstruments).Methods("POST")
	api.HandleFunc("/instruments/resolve", s.handleResolve).Methods("GET")

	// Monitor runs
	api.HandleFunc("/monitor", s.handleStartMonitor).Methods("POST")
	api.HandleFunc("/monitor", s.handleListRuns).Methods("GET")
	api.HandleFunc("/monitor/{id}/stop", s.handleStopRun).Methods("POST")

	// Manual order actions (после исполнения, по brokerOrderID)
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleModifyOrder).Methods("PATCH")

	// Activity log
	api.HandleFunc("/log", s.handleLogTail).Methods("GET")

	// Live-поток журнала
	s.router.HandleFunc("/ws/log", s.handleLogStream)

	// Встроенная страница
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

// Handler - корневой обработчик с CORS (дашборд могут открывать с другого origin).
func (s *Server) Handler() http.Handler {
	return cors.AllowAll().Handler(s.router)
}

// --- Session ---

func (s *Server) handleSetToken(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(body.AccessToken) == "" {
		s.writeError(w, http.StatusBadRequest, "accessToken is required")
		return
	}

	s.mu.Lock()
	s.creds = domain.Credentials{AccessToken: strings.TrimSpace(body.AccessToken)}
	s.mu.Unlock()

	s.activity.Append("Access token updated.")
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"hasToken":          s.credentials().AccessToken != "",
		"instrumentsLoaded": s.store.Loaded(),
		"instrumentCount":   s.store.Count(),
	})
}

// --- Instruments ---

func (s *Server) handleDownloadInstruments(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.Download(r.Context())
	if err != nil {
		s.activity.Append("Failed to download instruments CSV: %v", err)
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("download failed: %v", err))
		return
	}
	s.activity.Append("Downloaded instruments list (%d rows).", n)
	s.writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) handleUploadInstruments(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	n, err := s.store.Load(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("csv parse failed: %v", err))
		return
	}
	s.activity.Append("Uploaded instruments.csv loaded (%d rows).", n)
	s.writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.store.Resolve(r.URL.Query().Get("q"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "symbol not found in instruments list")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"symbol":     inst.Symbol,
		"securityId": inst.SecurityID,
	})
}

// --- Monitor runs ---

type startMonitorRequest struct {
	Symbol              string          `json:"symbol"`
	EntryPrice          decimal.Decimal `json:"entryPrice"`
	Quantity            int             `json:"quantity"`
	OrderType           string          `json:"orderType"`
	StopLossPercent     decimal.Decimal `json:"stopLossPercent"`
	TargetPercent       decimal.Decimal `json:"targetPercent"`
	PollIntervalSeconds int             `json:"pollIntervalSeconds"`
	WaitForMarketOpen   bool            `json:"waitForMarketOpen"`
}

// handleStartMonitor - синхронная валидация и запуск фонового прогона.
// Все проверки до запуска отвечают inline-ошибкой; после запуска любые
// сбои видны только через журнал (в UI-поток они не поднимаются).
func (s *Server) handleStartMonitor(w http.ResponseWriter, r *http.Request) {
	var body startMonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	creds := s.credentials()
	if creds.AccessToken == "" {
		s.writeError(w, http.StatusBadRequest, "provide access token first")
		return
	}
	if !s.store.Loaded() {
		s.writeError(w, http.StatusBadRequest, "load instruments list first (download or upload)")
		return
	}
	if strings.TrimSpace(body.Symbol) == "" || !body.EntryPrice.IsPositive() {
		s.writeError(w, http.StatusBadRequest, "provide valid symbol and entry price")
		return
	}

	inst, ok := s.store.Resolve(body.Symbol)
	if !ok {
		s.writeError(w, http.StatusNotFound, "symbol not found in instruments list, check symbol or upload correct CSV")
		return
	}

	if body.Quantity <= 0 {
		body.Quantity = 1
	}
	if body.PollIntervalSeconds <= 0 {
		body.PollIntervalSeconds = 2
	}
	if body.OrderType == "" {
		body.OrderType = string(domain.OrderTypeMarket)
	}

	req := domain.WatchRequest{
		Instrument:      inst,
		EntryPrice:      body.EntryPrice,
		OrderType:       domain.OrderType(strings.ToUpper(body.OrderType)),
		Quantity:        body.Quantity,
		StopLossPercent: body.StopLossPercent,
		TargetPercent:   body.TargetPercent,
		PollInterval:    time.Duration(body.PollIntervalSeconds) * time.Second,
		WaitForOpen:     body.WaitForMarketOpen,
	}

	info, err := s.manager.Start(creds, req)
	if err != nil {
		status := http.StatusBadRequest
		if err == monitor.ErrDuplicateRun {
			status = http.StatusConflict
		}
		s.writeError(w, status, err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.Runs())
}

func (s *Server) handleStopRun(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.manager.Stop(id); err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

// --- Manual order actions ---

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	creds := s.credentials()
	if creds.AccessToken == "" {
		s.writeError(w, http.StatusBadRequest, "provide access token first")
		return
	}

	orderID := mux.Vars(r)["id"]
	reply, err := s.gateway.CancelOrder(r.Context(), creds, orderID)
	if err != nil {
		s.activity.Append("Cancel API transport error: %v", err)
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.activity.Append("Cancel API: status=%d body=%s", reply.StatusCode, reply.Body)
	s.writeJSON(w, http.StatusOK, map[string]any{"brokerStatus": reply.StatusCode, "body": reply.Body})
}

func (s *Server) handleModifyOrder(w http.ResponseWriter, r *http.Request) {
	creds := s.credentials()
	if creds.AccessToken == "" {
		s.writeError(w, http.StatusBadRequest, "provide access token first")
		return
	}

	var body struct {
		StopLossPrice decimal.Decimal `json:"stopLossPrice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !body.StopLossPrice.IsPositive() {
		s.writeError(w, http.StatusBadRequest, "stopLossPrice must be positive")
		return
	}

	orderID := mux.Vars(r)["id"]
	reply, err := s.gateway.ModifyStopLoss(r.Context(), creds, orderID, body.StopLossPrice)
	if err != nil {
		s.activity.Append("Modify API transport error: %v", err)
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.activity.Append("Modify API: status=%d body=%s", reply.StatusCode, reply.Body)
	s.writeJSON(w, http.StatusOK, map[string]any{"brokerStatus": reply.StatusCode, "body": reply.Body})
}

// --- Activity log ---

func (s *Server) handleLogTail(w http.ResponseWriter, r *http.Request) {
	limit := s.logTail
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	s.writeJSON(w, http.StatusOK, s.activity.Tail(limit))
}

// --- Helpers ---

func (s *Server) credentials() domain.Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("write response", slog.String("err", err.Error()))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
