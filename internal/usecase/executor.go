package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/romanzzaa/dhan-trigger-bot/internal/activitylog"
	"github.com/romanzzaa/dhan-trigger-bot/internal/domain"
)

// OrderExecutor превращает сработавший триггер в ровно одну отправку ордера.
type OrderExecutor struct {
	gateway  domain.OrderGateway
	activity *activitylog.Log
	notifier domain.Notifier // Может быть nil
	logger   *slog.Logger
}

func NewOrderExecutor(gateway domain.OrderGateway, activity *activitylog.Log, notifier domain.Notifier, logger *slog.Logger) *OrderExecutor {
	return &OrderExecutor{
		gateway:  gateway,
		activity: activity,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "executor")),
	}
}

// BuildTicket собирает ордер из конфигурации прогона и сигнала триггера.
// LimitPrice заполняется входной ценой только для LIMIT-ордеров.
func BuildTicket(req domain.WatchRequest, signal domain.TriggerSignal) domain.OrderTicket {
	ticket := domain.OrderTicket{
		Instrument:      req.Instrument,
		Side:            signal.Side,
		Quantity:        req.Quantity,
		OrderType:       req.OrderType,
		StopLossPercent: req.StopLossPercent,
		TargetPercent:   req.TargetPercent,
		CorrelationID:   uuid.NewString(),
	}
	if req.OrderType == domain.OrderTypeLimit {
		ticket.LimitPrice = req.EntryPrice
	}
	return ticket
}

// Execute отправляет ордер один раз и фиксирует сырой исход в журнале.
// Ответ брокера не классифицируется: и application-ошибка в теле, и
// транспортный сбой - терминальный исход "отправлено" для прогона.
// Повторов и отката нет.
func (e *OrderExecutor) Execute(ctx context.Context, creds domain.Credentials, req domain.WatchRequest, signal domain.TriggerSignal) domain.OrderTicket {
	ticket := BuildTicket(req, signal)

	log := e.logger.With(
		slog.String("symbol", ticket.Instrument.Symbol),
		slog.String("side", string(ticket.Side)),
		slog.String("correlation_id", ticket.CorrelationID),
	)
	log.Info("🚀 trigger hit, placing order",
		slog.String("last_price", signal.Tick.LastPrice.String()),
		slog.String("entry", req.EntryPrice.String()))

	e.activity.Append("Entry touched at %s. Triggered side: %s. Placing %s order...",
		signal.Tick.LastPrice.String(), ticket.Side, ticket.OrderType)

	reply, err := e.gateway.PlaceOrder(ctx, creds, ticket)
	if err != nil {
		log.Error("order transport failure", slog.String("err", err.Error()))
		e.activity.Append("Place order transport error: %v", err)
		e.notify("⚠️ %s %s x%d: order request failed in transit: %v",
			ticket.Side, ticket.Instrument.Symbol, ticket.Quantity, err)
		return ticket
	}

	log.Info("order response received", slog.Int("status", reply.StatusCode))
	e.activity.Append("Place order response: status=%d body=%s", reply.StatusCode, reply.Body)
	e.notify("✅ %s %s x%d sent, broker status %d",
		ticket.Side, ticket.Instrument.Symbol, ticket.Quantity, reply.StatusCode)

	return ticket
}

func (e *OrderExecutor) notify(format string, args ...any) {
	if e.notifier == nil {
		return
	}
	if err := e.notifier.Notify(fmt.Sprintf(format, args...)); err != nil {
		e.logger.Warn("notification failed", slog.String("err", err.Error()))
	}
}
