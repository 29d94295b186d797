package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config - глобальная конфигурация сервиса
type Config struct {
	Env        string // "local", "prod"
	ListenAddr string // Адрес дашборда

	Dhan struct {
		BaseURL        string        // REST API Dhan
		ScripMasterURL string        // CSV со списком инструментов
		QuoteTimeout   time.Duration // Таймаут запроса котировки
		OrderTimeout   time.Duration // Таймаут ордерных запросов
		CSVTimeout     time.Duration // Таймаут скачивания скрип-мастера
	}

	Market struct {
		Timezone   string // Часовой пояс биржи
		OpenHour   int    // Час открытия (локальное время биржи)
		OpenMinute int
	}

	Monitor struct {
		Budget  time.Duration // Жесткий предохранитель прогона
		LogTail int           // Сколько записей журнала показывать
	}

	Telegram struct {
		BotToken string // Пусто = уведомления выключены
		ChatID   int64
	}
}

// LoadConfig загружает настройки из окружения (.env подхватывает
// godotenv/autoload в main). Все значения имеют рабочие дефолты,
// обязательных переменных нет - токен Dhan оператор вводит в дашборде.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Env:        getEnv("APP_ENV", "local"),
		ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
	}

	cfg.Dhan.BaseURL = getEnv("DHAN_BASE_URL", "https://api.dhan.co/v1")
	cfg.Dhan.ScripMasterURL = getEnv("DHAN_SCRIP_MASTER_URL", "https://images.dhan.co/api-data/api-scrip-master-detailed.csv")

	var err error
	if cfg.Dhan.QuoteTimeout, err = getDuration("DHAN_QUOTE_TIMEOUT", 8*time.Second); err != nil {
		return nil, err
	}
	if cfg.Dhan.OrderTimeout, err = getDuration("DHAN_ORDER_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Dhan.CSVTimeout, err = getDuration("DHAN_CSV_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	cfg.Market.Timezone = getEnv("MARKET_TIMEZONE", "Asia/Kolkata")
	if cfg.Market.OpenHour, err = getInt("MARKET_OPEN_HOUR", 9); err != nil {
		return nil, err
	}
	if cfg.Market.OpenMinute, err = getInt("MARKET_OPEN_MINUTE", 15); err != nil {
		return nil, err
	}

	if cfg.Monitor.Budget, err = getDuration("MONITOR_BUDGET", 6*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Monitor.LogTail, err = getInt("LOG_TAIL", 400); err != nil {
		return nil, err
	}

	cfg.Telegram.BotToken = getEnv("TELEGRAM_BOT_TOKEN", "")
	if cfg.Telegram.ChatID, err = getInt64("TELEGRAM_CHAT_ID", 0); err != nil {
		return nil, err
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getInt64(key string, def int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}
