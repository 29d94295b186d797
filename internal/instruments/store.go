// Package instruments - загрузка и нормализация скрип-мастера Dhan
// плюс резолвер "текст оператора -> торгуемый инструмент".
package instruments

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/gocarina/gocsv"

	"github.com/romanzzaa/dhan-trigger-bot/internal/domain"
)

// Кандидаты колонок скрип-мастера. Dhan меняет формат выгрузки,
// поэтому ищем по списку псевдонимов без учета регистра.
var (
	symbolColumns     = []string{"tradingsymbol", "symbol"}
	securityIDColumns = []string{"secid", "securityid", "token", "instrument_token", "security_id", "instrumentid", "instrument_id"}
)

// Store - in-memory хранилище инструментов на время жизни процесса.
// Персистентности нет сознательно: список скачивается (или загружается
// оператором) заново при каждом запуске.
type Store struct {
	csvURL     string
	httpClient *http.Client
	logger     *slog.Logger

	mu   sync.RWMutex
	list []record
}

// record держит символ уже нормализованным, чтобы Resolve не
// опускал регистр всего списка на каждый запрос.
type record struct {
	instrument domain.Instrument
	symbolLC   string
}

func NewStore(csvURL string, httpClient *http.Client, logger *slog.Logger) *Store {
	return &Store{
		csvURL:     csvURL,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "instruments")),
	}
}

// Download скачивает скрип-мастер по HTTP и замещает текущий список.
func (s *Store) Download(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.csvURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download instruments csv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download instruments csv: unexpected status %d", resp.StatusCode)
	}

	return s.Load(resp.Body)
}

// Load разбирает CSV (скачанный или загруженный оператором вручную)
// и нормализует его в список инструментов. Возвращает число строк.
//
// Если колонка security id не нашлась - это деградация, а не ошибка:
// инструменты получают пустой SecurityID, и ордер уйдет с пустым
// идентификатором (видимая вызывающему деградация, не падение).
func (s *Store) Load(r io.Reader) (int, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return 0, fmt.Errorf("read instruments csv: %w", err)
	}

	// Заголовок читаем отдельно: нужен порядок колонок для фолбэка
	// "символ = первая колонка".
	header, err := csv.NewReader(bytes.NewReader(raw)).Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}

	rows, err := gocsv.CSVToMaps(bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("parse instruments csv: %w", err)
	}

	symbolCol := pickColumn(header, symbolColumns)
	if symbolCol == "" {
		symbolCol = header[0]
	}
	secCol := pickColumn(header, securityIDColumns)
	if secCol == "" {
		s.logger.Warn("no security id column found, orders will carry an empty securityId",
			slog.Any("header", header))
	}

	list := make([]record, 0, len(rows))
	for _, row := range rows {
		sym := strings.TrimSpace(row[symbolCol])
		if sym == "" {
			continue
		}
		var secID string
		if secCol != "" {
			secID = strings.TrimSpace(row[secCol])
		}
		list = append(list, record{
			instrument: domain.Instrument{Symbol: sym, SecurityID: secID},
			symbolLC:   strings.ToLower(sym),
		})
	}

	s.mu.Lock()
	s.list = list
	s.mu.Unlock()

	s.logger.Info("instrument list loaded",
		slog.Int("count", len(list)),
		slog.String("symbol_column", symbolCol),
		slog.String("security_id_column", secCol))

	return len(list), nil
}

// Resolve находит инструмент по свободному тексту оператора.
// Сначала точное совпадение нормализованного символа, потом первая
// строка с подстрокой. "Не найдено" - нормальный результат, не ошибка.
func (s *Store) Resolve(query string) (domain.Instrument, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return domain.Instrument{}, false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.list {
		if rec.symbolLC == q {
			return rec.instrument, true
		}
	}
	for _, rec := range s.list {
		if strings.Contains(rec.symbolLC, q) {
			return rec.instrument, true
		}
	}
	return domain.Instrument{}, false
}

// Count - размер загруженного списка (0 = список не загружен).
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.list)
}

// Loaded проверяет, что оператор уже загрузил список.
func (s *Store) Loaded() bool {
	return s.Count() > 0
}

func pickColumn(header []string, candidates []string) string {
	for _, want := range candidates {
		for _, col := range header {
			if strings.EqualFold(strings.TrimSpace(col), want) {
				return col
			}
		}
	}
	return ""
}
