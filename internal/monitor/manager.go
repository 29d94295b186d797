package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/romanzzaa/dhan-trigger-bot/internal/activitylog"
	"github.com/romanzzaa/dhan-trigger-bot/internal/domain"
	"github.com/romanzzaa/dhan-trigger-bot/internal/usecase"
)

var (
	ErrDuplicateRun = errors.New("a monitor is already active for this instrument")
	ErrRunNotFound  = errors.New("run not found")
)

// RunInfo - снимок состояния прогона для отображения оператору.
type RunInfo struct {
	ID         string            `json:"id"`
	Instrument domain.Instrument `json:"instrument"`
	State      domain.RunState   `json:"state"`
	StartedAt  time.Time         `json:"startedAt"`
	EntryPrice string            `json:"entryPrice"`
	Side       string            `json:"side,omitempty"`
}

type run struct {
	info   RunInfo
	key    string // Ключ дедупликации (securityId либо символ)
	cancel context.CancelFunc
}

// Manager - реестр прогонов. Держит не более одного активного прогона
// на инструмент, выдает ручку отмены и переживаемые снапшоты статусов.
// Завершенные прогоны остаются в списке со своим терминальным состоянием.
type Manager struct {
	quotes   domain.QuoteSource
	executor *usecase.OrderExecutor
	clock    marketClock
	activity *activitylog.Log
	logger   *slog.Logger
	budget   time.Duration

	mu   sync.Mutex
	runs map[string]*run
	wg   sync.WaitGroup
}

func NewManager(
	quotes domain.QuoteSource,
	executor *usecase.OrderExecutor,
	clock marketClock,
	activity *activitylog.Log,
	logger *slog.Logger,
	budget time.Duration,
) *Manager {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Manager{
		quotes:   quotes,
		executor: executor,
		clock:    clock,
		activity: activity,
		logger:   logger.With(slog.String("component", "monitor")),
		budget:   budget,
		runs:     make(map[string]*run),
	}
}

// Start запускает фоновый прогон для запроса. Второй старт по тому же
// инструменту отклоняется, пока первый не завершился.
//
// Контекст прогона создается от Background сознательно: воркер обязан
// пережить HTTP-запрос, который его запустил (fire-and-forget + ручка
// отмены в реестре).
func (m *Manager) Start(creds domain.Credentials, req domain.WatchRequest) (RunInfo, error) {
	if err := req.Validate(); err != nil {
		return RunInfo{}, err
	}

	key := req.Instrument.SecurityID
	if key == "" {
		key = strings.ToLower(req.Instrument.Symbol)
	}

	m.mu.Lock()
	for _, r := range m.runs {
		if r.key == key && !r.info.State.Terminal() {
			m.mu.Unlock()
			return RunInfo{}, ErrDuplicateRun
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	rn := &run{
		info: RunInfo{
			ID:         uuid.NewString(),
			Instrument: req.Instrument,
			State:      domain.RunStateMonitoring,
			StartedAt:  time.Now(),
			EntryPrice: req.EntryPrice.String(),
		},
		key:    key,
		cancel: cancel,
	}
	if req.WaitForOpen {
		rn.info.State = domain.RunStateAwaitingStart
	}
	m.runs[rn.info.ID] = rn
	m.mu.Unlock()

	m.activity.Append("Prepared to monitor %s (secId=%s).", req.Instrument.Symbol, req.Instrument.SecurityID)
	m.logger.Info("run started",
		slog.String("run_id", rn.info.ID),
		slog.String("symbol", req.Instrument.Symbol),
		slog.String("entry", req.EntryPrice.String()))

	runner := NewRunner(req, creds, m.quotes, m.executor, m.clock, m.activity, m.logger, m.budget,
		func(s domain.RunState) { m.setState(rn.info.ID, s) })

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		runner.Run(ctx)
	}()

	return rn.info, nil
}

// Stop отменяет прогон по его ID. Остановка уже завершенного прогона -
// не ошибка: отмена просто ни на что не повлияет.
func (m *Manager) Stop(runID string) error {
	m.mu.Lock()
	rn, ok := m.runs[runID]
	m.mu.Unlock()
	if !ok {
		return ErrRunNotFound
	}
	rn.cancel()
	return nil
}

// StopAll отменяет все прогоны и дожидается выхода воркеров
// (используется при останове процесса).
func (m *Manager) StopAll() {
	m.mu.Lock()
	for _, rn := range m.runs {
		rn.cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// Runs - снапшот всех прогонов, новые сверху.
func (m *Manager) Runs() []RunInfo {
	m.mu.Lock()
	out := make([]RunInfo, 0, len(m.runs))
	for _, rn := range m.runs {
		out = append(out, rn.info)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// Run возвращает снапшот одного прогона.
func (m *Manager) Run(runID string) (RunInfo, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rn, ok := m.runs[runID]
	if !ok {
		return RunInfo{}, false
	}
	return rn.info, true
}

func (m *Manager) setState(runID string, s domain.RunState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rn, ok := m.runs[runID]; ok {
		// Терминальное состояние не перезаписываем: гонка между отменой
		// и естественным завершением решается в пользу первого финала.
		if !rn.info.State.Terminal() {
			rn.info.State = s
		}
	}
}
