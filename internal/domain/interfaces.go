package domain

import (
	"context"

	"github.com/shopspring/decimal"
)

// QuoteSource - источник последней цены сделки.
// Вызывается один раз за итерацию опроса. Любая ошибка для вызывающего -
// транзиентная: залогировать и повторить на следующем тике. Сам источник
// НЕ ретраит.
type QuoteSource interface {
	GetQuote(ctx context.Context, creds Credentials, securityID string) (decimal.Decimal, error)
}

// OrderGateway - адаптер к брокеру (Dhan REST).
// PlaceOrder отправляет ордер ровно один раз и возвращает сырой ответ
// без интерпретации; никаких повторов.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, creds Credentials, ticket OrderTicket) (BrokerReply, error)

	// Ручные действия оператора после исполнения (по brokerOrderID)
	CancelOrder(ctx context.Context, creds Credentials, orderID string) (BrokerReply, error)
	ModifyStopLoss(ctx context.Context, creds Credentials, orderID string, stopLossPrice decimal.Decimal) (BrokerReply, error)
}

// Notifier - push-уведомления оператору (Telegram).
// Опционален: nil-реализация допустима, вызывающие обязаны это учитывать.
type Notifier interface {
	Notify(message string) error
}
