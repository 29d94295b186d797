package dhan

// QuoteFailKind - классификация неудачного запроса котировки.
// Для монитора все эти неудачи транзиентны: лог + повтор на следующем тике.
type QuoteFailKind string

const (
	QuoteFailTransport   QuoteFailKind = "network"      // Не доехали до брокера
	QuoteFailStatus      QuoteFailKind = "status"       // Ответ не 200
	QuoteFailMalformed   QuoteFailKind = "malformed"    // Тело не разобралось как JSON
	QuoteFailPriceAbsent QuoteFailKind = "price_absent" // Ни один алиас цены не нашелся
)

// QuoteError - структурированная причина неудачи GetQuote.
type QuoteError struct {
	Kind   QuoteFailKind
	Detail string
}

func (e *QuoteError) Error() string {
	return string(e.Kind) + ": " + e.Detail
}

// Алиасы ключа последней цены. Формат ответа Dhan меняется, цена может
// лежать на верхнем уровне, под обёрткой "data" или во вложенном объекте
// по символу - ищем неглубоко по известным именам.
var priceAliases = []string{"lastPrice", "last", "ltp", "lastTradedPrice"}
