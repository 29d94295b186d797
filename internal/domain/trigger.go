package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// EvaluateTrigger решает, сработал ли входной уровень на данном тике.
//
// Порядок веток фиксирован и ВАЖЕН: условия пересекаются в точке last == entry,
// и при точном касании побеждает SELL, потому что проверяется первым.
// Это осознанный tie-break, а не недосмотр - не "чинить" на else.
func EvaluateTrigger(last, entry decimal.Decimal) (Side, bool) {
	if last.GreaterThanOrEqual(entry) {
		return SideSell, true
	}
	if last.LessThanOrEqual(entry) {
		return SideBuy, true
	}
	// Для вещественных чисел недостижимо, но правило кодируем
	// именно двумя явными ветками, без else.
	return "", false
}

// Validate проверяет запрос перед стартом мониторинга.
// Ошибки валидации блокируют старт синхронно (см. dashboard),
// внутрь фонового воркера невалидный запрос попасть не должен.
func (r WatchRequest) Validate() error {
	if r.Instrument.Symbol == "" {
		return errors.New("instrument symbol is empty")
	}
	if !r.EntryPrice.IsPositive() {
		return errors.New("entry price must be positive")
	}
	if r.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	if r.OrderType != OrderTypeMarket && r.OrderType != OrderTypeLimit {
		return errors.New("order type must be MARKET or LIMIT")
	}
	if r.StopLossPercent.IsNegative() {
		return errors.New("stop loss percent must be >= 0")
	}
	if r.TargetPercent.IsNegative() {
		return errors.New("target percent must be >= 0")
	}
	if r.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}
