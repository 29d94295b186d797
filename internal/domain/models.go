package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// --- Enums & Constants ---

type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// RunState - состояние одного прогона монитора.
// Терминальные состояния: SUBMITTED, TIMED_OUT, STOPPED. Возврата из них нет.
type RunState string

const (
	RunStateAwaitingStart RunState = "AWAITING_START" // Ждем открытия рынка
	RunStateMonitoring    RunState = "MONITORING"     // Опрашиваем котировки
	RunStateSubmitted     RunState = "SUBMITTED"      // Ордер отправлен (не "исполнен"!)
	RunStateTimedOut      RunState = "TIMED_OUT"      // 6 часов без триггера
	RunStateStopped       RunState = "STOPPED"        // Остановлен оператором
)

// Terminal сообщает, завершен ли прогон окончательно.
func (s RunState) Terminal() bool {
	return s == RunStateSubmitted || s == RunStateTimedOut || s == RunStateStopped
}

// --- Entities ---

// Instrument - торгуемый инструмент. Идентичность определяет SecurityID,
// Symbol - только отображаемая метка.
type Instrument struct {
	Symbol     string `json:"symbol"`
	SecurityID string `json:"securityId"` // Может быть пустым, если в CSV не нашлось колонки с ID
}

// Credentials - токен доступа Dhan. Оператор вставляет его раз в день,
// храним только в памяти процесса.
type Credentials struct {
	AccessToken string
}

// WatchRequest - неизменяемая конфигурация одного прогона монитора.
// Создается при старте, принадлежит ровно одному Runner'у.
type WatchRequest struct {
	Instrument      Instrument
	EntryPrice      decimal.Decimal
	OrderType       OrderType
	Quantity        int
	StopLossPercent decimal.Decimal
	TargetPercent   decimal.Decimal
	PollInterval    time.Duration
	WaitForOpen     bool
}

// --- Value Objects ---

// Tick - одно наблюдение цены. Потребляется сразу, нигде не хранится.
type Tick struct {
	LastPrice decimal.Decimal
	At        time.Time
}

// TriggerSignal - результат срабатывания триггера. Не более одного на прогон.
type TriggerSignal struct {
	Side Side
	Tick Tick
}

// OrderTicket - DTO для отправки ордера брокеру.
// Строится из WatchRequest + TriggerSignal и отправляется ровно один раз.
type OrderTicket struct {
	Instrument      Instrument
	Side            Side
	Quantity        int
	OrderType       OrderType
	LimitPrice      decimal.Decimal // Заполняется только для LIMIT (= entry price)
	StopLossPercent decimal.Decimal
	TargetPercent   decimal.Decimal
	CorrelationID   string // Idempotency key
}

// BrokerReply - сырой ответ брокера без какой-либо интерпретации.
// Успех/неуспех ордера мы НЕ классифицируем: "отправлено" значит
// "запрос ушел и ответ (или транспортная ошибка) записан в журнал".
type BrokerReply struct {
	StatusCode int
	Body       string
}
