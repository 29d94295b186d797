package domain

import (
	"fmt"
	"time"
)

// MarketClock знает, когда открывается биржа.
// NSE открывается в 09:15 по Asia/Kolkata каждый торговый день.
type MarketClock struct {
	loc        *time.Location
	openHour   int
	openMinute int
}

func NewMarketClock(timezone string, openHour, openMinute int) (*MarketClock, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load market timezone: %w", err)
	}
	return &MarketClock{loc: loc, openHour: openHour, openMinute: openMinute}, nil
}

// NextOpen возвращает ближайший момент открытия рынка.
// Если сейчас уже 09:15 или позже (по времени биржи) - целимся в завтрашние 09:15.
// Выходные и праздники сознательно НЕ обрабатываются - это известное упрощение
// исходного дизайна, сохраняем как есть.
func (c *MarketClock) NextOpen(now time.Time) time.Time {
	local := now.In(c.loc)
	open := time.Date(local.Year(), local.Month(), local.Day(), c.openHour, c.openMinute, 0, 0, c.loc)
	if !local.Before(open) {
		open = open.AddDate(0, 0, 1)
	}
	return open
}

// Location - часовой пояс биржи.
func (c *MarketClock) Location() *time.Location {
	return c.loc
}
