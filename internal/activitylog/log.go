// Package activitylog - журнал действий, который видит оператор.
// Append-only на все время жизни процесса; кап применяется только
// при чтении для отображения, записи не теряются.
package activitylog

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTail - сколько последних записей показываем по умолчанию.
const DefaultTail = 400

type Entry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Log безопасен для конкурентной записи из фоновых воркеров
// и чтения из HTTP-обработчиков.
type Log struct {
	mu      sync.RWMutex
	entries []Entry
	subs    map[chan Entry]struct{}
	now     func() time.Time
}

func New() *Log {
	return &Log{
		subs: make(map[chan Entry]struct{}),
		now:  time.Now,
	}
}

// Append добавляет запись и рассылает её подписчикам.
// Медленный подписчик теряет записи, но никогда не блокирует писателя.
func (l *Log) Append(format string, args ...any) {
	entry := Entry{At: l.now(), Message: fmt.Sprintf(format, args...)}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	for ch := range l.subs {
		select {
		case ch <- entry:
		default:
		}
	}
	l.mu.Unlock()
}

// Tail возвращает последние n записей (копию).
// n <= 0 трактуем как DefaultTail.
func (l *Log) Tail(n int) []Entry {
	if n <= 0 {
		n = DefaultTail
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	start := 0
	if len(l.entries) > n {
		start = len(l.entries) - n
	}
	out := make([]Entry, len(l.entries)-start)
	copy(out, l.entries[start:])
	return out
}

// Len - полное число записей (без капа отображения).
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Subscribe отдает канал новых записей и функцию отписки.
func (l *Log) Subscribe() (<-chan Entry, func()) {
	ch := make(chan Entry, 64)

	l.mu.Lock()
	l.subs[ch] = struct{}{}
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		if _, ok := l.subs[ch]; ok {
			delete(l.subs, ch)
			close(ch)
		}
		l.mu.Unlock()
	}
	return ch, cancel
}
