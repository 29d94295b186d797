// Package monitor - ядро: машина состояний одного прогона наблюдения
// за ценой и реестр активных прогонов.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/romanzzaa/dhan-trigger-bot/internal/activitylog"
	"github.com/romanzzaa/dhan-trigger-bot/internal/domain"
	"github.com/romanzzaa/dhan-trigger-bot/internal/usecase"
)

// DefaultBudget - жесткий предохранитель: прогон без триггера
// завершается сам через 6 часов.
const DefaultBudget = 6 * time.Hour

// maxOpenSleep ограничивает шаг ожидания открытия рынка, чтобы ожидание
// оставалось прерываемым и наблюдаемым, а не одним длинным сном.
const maxOpenSleep = 5 * time.Second

// marketClock сужает domain.MarketClock до того, что нужно раннеру
// (и позволяет подменять часы в тестах).
type marketClock interface {
	NextOpen(now time.Time) time.Time
}

// Runner ведет один прогон: AWAITING_START -> MONITORING ->
// {SUBMITTED | TIMED_OUT | STOPPED}. Терминальные состояния финальны,
// возобновления нет. Ровно один Runner владеет своим WatchRequest.
type Runner struct {
	req      domain.WatchRequest
	creds    domain.Credentials
	quotes   domain.QuoteSource
	executor *usecase.OrderExecutor
	clock    marketClock
	activity *activitylog.Log
	logger   *slog.Logger

	budget  time.Duration
	now     func() time.Time
	onState func(domain.RunState) // Колбэк реестра; может быть nil
}

func NewRunner(
	req domain.WatchRequest,
	creds domain.Credentials,
	quotes domain.QuoteSource,
	executor *usecase.OrderExecutor,
	clock marketClock,
	activity *activitylog.Log,
	logger *slog.Logger,
	budget time.Duration,
	onState func(domain.RunState),
) *Runner {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Runner{
		req:      req,
		creds:    creds,
		quotes:   quotes,
		executor: executor,
		clock:    clock,
		activity: activity,
		logger:   logger.With(slog.String("component", "runner"), slog.String("symbol", req.Instrument.Symbol)),
		budget:   budget,
		now:      time.Now,
		onState:  onState,
	}
}

// Run выполняет прогон до терминального состояния и возвращает его.
// Ошибки наружу не поднимаются никогда: всё, что случается внутри
// фонового воркера, видно только через журнал активности.
func (r *Runner) Run(ctx context.Context) domain.RunState {
	if r.req.WaitForOpen {
		r.setState(domain.RunStateAwaitingStart)
		r.activity.Append("Auto-start at market open enabled. Waiting for market open (09:15 IST).")
		if !r.waitForOpen(ctx) {
			return r.stopped()
		}
		r.activity.Append("Market open reached. Starting quote monitoring.")
	} else {
		r.activity.Append("Starting immediate quote monitoring (no wait for market open).")
	}

	r.setState(domain.RunStateMonitoring)
	return r.poll(ctx)
}

// waitForOpen спит короткими ограниченными шагами до момента открытия,
// примерно раз в минуту отмечая в журнале оставшееся время.
// false = прогон отменен во время ожидания.
func (r *Runner) waitForOpen(ctx context.Context) bool {
	target := r.clock.NextOpen(r.now())
	nextAnnounce := r.now()

	for {
		remaining := target.Sub(r.now())
		if remaining <= 0 {
			return true
		}

		if !r.now().Before(nextAnnounce) {
			r.activity.Append("Time to market open: %d minutes", int(remaining.Minutes()))
			nextAnnounce = r.now().Add(time.Minute)
		}

		step := maxOpenSleep
		if remaining < step {
			step = remaining
		}
		if !r.sleep(ctx, step) {
			return false
		}
	}
}

// poll - цикл опроса котировок. Бюджет стены (6ч) проверяется каждую
// итерацию и перекрывает любые исходы опроса. Лимита на число подряд
// неудачных запросов нет - только общий бюджет.
func (r *Runner) poll(ctx context.Context) domain.RunState {
	start := r.now()

	for {
		if r.now().Sub(start) >= r.budget {
			r.logger.Warn("monitoring budget exhausted", slog.Duration("budget", r.budget))
			r.activity.Append("Monitoring ended: no execution (timeout after %s).", r.budget)
			return r.terminal(domain.RunStateTimedOut)
		}
		if ctx.Err() != nil {
			return r.stopped()
		}

		price, err := r.quotes.GetQuote(ctx, r.creds, r.req.Instrument.SecurityID)
		if err != nil {
			if ctx.Err() != nil {
				return r.stopped()
			}
			r.activity.Append("Quote fetch error: %v", err)
			if !r.sleep(ctx, r.req.PollInterval) {
				return r.stopped()
			}
			continue
		}

		tick := domain.Tick{LastPrice: price, At: r.now()}
		r.activity.Append("Tick: %s", price.String())

		// Сработал триггер - отправляем немедленно, без финального сна,
		// и выходим: не более одного ордера на прогон.
		if side, ok := domain.EvaluateTrigger(price, r.req.EntryPrice); ok {
			signal := domain.TriggerSignal{Side: side, Tick: tick}
			r.executor.Execute(ctx, r.creds, r.req, signal)
			r.activity.Append("Stopped monitoring after placing %s order.", side)
			return r.terminal(domain.RunStateSubmitted)
		}

		if !r.sleep(ctx, r.req.PollInterval) {
			return r.stopped()
		}
	}
}

// sleep - прерываемый сон; false при отмене контекста.
func (r *Runner) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (r *Runner) stopped() domain.RunState {
	r.activity.Append("Monitoring stopped by operator; no order was placed.")
	return r.terminal(domain.RunStateStopped)
}

func (r *Runner) terminal(s domain.RunState) domain.RunState {
	r.setState(s)
	r.logger.Info("run finished", slog.String("state", string(s)))
	return s
}

func (r *Runner) setState(s domain.RunState) {
	if r.onState != nil {
		r.onState(s)
	}
}
