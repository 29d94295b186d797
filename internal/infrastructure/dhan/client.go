// Package dhan - REST-адаптер к брокеру Dhan.
package dhan

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/romanzzaa/dhan-trigger-bot/internal/domain"
)

const (
	DefaultBaseURL = "https://api.dhan.co/v1"

	quotePath  = "/market/quote"
	ordersPath = "/orders"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// --- Implementation of domain.QuoteSource ---

// GetQuote возвращает последнюю цену сделки по securityId.
// Любая неудача приходит как *QuoteError с причиной; ретраев здесь нет -
// политика повторов целиком на стороне монитора.
func (c *Client) GetQuote(ctx context.Context, creds domain.Credentials, securityID string) (decimal.Decimal, error) {
	fullURL := c.baseURL + quotePath + "?securityId=" + url.QueryEscape(securityID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return decimal.Zero, &QuoteError{Kind: QuoteFailTransport, Detail: err.Error()}
	}
	c.setHeaders(req, creds)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, &QuoteError{Kind: QuoteFailTransport, Detail: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Zero, &QuoteError{Kind: QuoteFailTransport, Detail: err.Error()}
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, &QuoteError{
			Kind:   QuoteFailStatus,
			Detail: fmt.Sprintf("quote_status_%d: %s", resp.StatusCode, truncate(body, 200)),
		}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return decimal.Zero, &QuoteError{Kind: QuoteFailMalformed, Detail: err.Error()}
	}

	price, ok := extractLastPrice(raw)
	if !ok {
		return decimal.Zero, &QuoteError{
			Kind:   QuoteFailPriceAbsent,
			Detail: "no last price field in quote body",
		}
	}
	return price, nil
}

// extractLastPrice ищет цену неглубоко: на верхнем уровне, под "data"
// и на один уровень внутри любого вложенного объекта. Нечисловое
// значение считается отсутствующим.
func extractLastPrice(raw map[string]json.RawMessage) (decimal.Decimal, bool) {
	if price, ok := priceFromObject(raw); ok {
		return price, true
	}

	// Обёртка {"data": {...}} - самый частый вариант
	if data, ok := raw["data"]; ok {
		var nested map[string]json.RawMessage
		if json.Unmarshal(data, &nested) == nil {
			if price, ok := priceFromObject(nested); ok {
				return price, true
			}
		}
	}

	// Вложение по символу: {"RELIANCE": {"lastPrice": ...}}
	for _, v := range raw {
		var nested map[string]json.RawMessage
		if json.Unmarshal(v, &nested) != nil {
			continue
		}
		if price, ok := priceFromObject(nested); ok {
			return price, true
		}
	}
	return decimal.Zero, false
}

func priceFromObject(obj map[string]json.RawMessage) (decimal.Decimal, bool) {
	for _, key := range priceAliases {
		v, ok := obj[key]
		if !ok {
			continue
		}
		if price, ok := decodePrice(v); ok {
			return price, true
		}
	}
	return decimal.Zero, false
}

func decodePrice(raw json.RawMessage) (decimal.Decimal, bool) {
	var num json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&num); err == nil {
		if price, err := decimal.NewFromString(num.String()); err == nil {
			return price, true
		}
		return decimal.Zero, false
	}

	// Цена может прийти строкой: "2500.50"
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if price, err := decimal.NewFromString(s); err == nil {
			return price, true
		}
	}
	return decimal.Zero, false
}

// --- Implementation of domain.OrderGateway ---

// PlaceOrder отправляет ордер ровно один раз и возвращает сырой ответ.
// Ответ НЕ интерпретируется: успех здесь значит "запрос ушел, ответ получен".
func (c *Client) PlaceOrder(ctx context.Context, creds domain.Credentials, ticket domain.OrderTicket) (domain.BrokerReply, error) {
	payload := map[string]interface{}{
		"exchangeSegment": "NSE",
		"symbol":          ticket.Instrument.Symbol,
		"securityId":      ticket.Instrument.SecurityID,
		"transactionType": string(ticket.Side),
		"quantity":        ticket.Quantity,
		"orderType":       string(ticket.OrderType),
		"productCode":     "INTRADAY",
		"validity":        "DAY",
		"correlationId":   ticket.CorrelationID,
		// SL/target уходят процентами; брокер может ожидать абсолютные
		// цены - известный риск адаптации, оставлен интегратору
		"stopLossPercent": ticket.StopLossPercent.InexactFloat64(),
		"targetPercent":   ticket.TargetPercent.InexactFloat64(),
	}
	if ticket.OrderType == domain.OrderTypeLimit {
		payload["price"] = ticket.LimitPrice.InexactFloat64()
	}

	return c.send(ctx, creds, http.MethodPost, c.baseURL+ordersPath, payload)
}

// CancelOrder - ручная отмена по brokerOrderID.
func (c *Client) CancelOrder(ctx context.Context, creds domain.Credentials, orderID string) (domain.BrokerReply, error) {
	endpoint := fmt.Sprintf("%s%s/%s/cancel", c.baseURL, ordersPath, url.PathEscape(orderID))
	return c.send(ctx, creds, http.MethodPost, endpoint, nil)
}

// ModifyStopLoss - ручная корректировка SL. Тут брокер ждет уже
// АБСОЛЮТНУЮ цену, не процент.
func (c *Client) ModifyStopLoss(ctx context.Context, creds domain.Credentials, orderID string, stopLossPrice decimal.Decimal) (domain.BrokerReply, error) {
	endpoint := fmt.Sprintf("%s%s/%s", c.baseURL, ordersPath, url.PathEscape(orderID))
	payload := map[string]interface{}{
		"stopLossPrice": stopLossPrice.InexactFloat64(),
	}
	return c.send(ctx, creds, http.MethodPatch, endpoint, payload)
}

// --- Private Helpers ---

func (c *Client) send(ctx context.Context, creds domain.Credentials, method, endpoint string, payload map[string]interface{}) (domain.BrokerReply, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonBytes, err := json.Marshal(payload)
		if err != nil {
			return domain.BrokerReply{}, err
		}
		reqBody = bytes.NewReader(jsonBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return domain.BrokerReply{}, err
	}
	c.setHeaders(req, creds)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.BrokerReply{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.BrokerReply{StatusCode: resp.StatusCode}, err
	}

	return domain.BrokerReply{StatusCode: resp.StatusCode, Body: string(body)}, nil
}

func (c *Client) setHeaders(req *http.Request, creds domain.Credentials) {
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
