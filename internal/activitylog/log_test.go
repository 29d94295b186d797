package activitylog

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndTail(t *testing.T) {
	l := New()

	l.Append("first")
	l.Append("tick: %s", "101.5")

	entries := l.Tail(0)
	require.Len(t, entries, 2)
	assert.Equal(t, "first", entries[0].Message)
	assert.Equal(t, "tick: 101.5", entries[1].Message)
	assert.False(t, entries[0].At.IsZero())
}

func TestTailCapsForDisplayOnly(t *testing.T) {
	l := New()
	for i := 0; i < 10; i++ {
		l.Append("entry %d", i)
	}

	tail := l.Tail(3)
	require.Len(t, tail, 3)
	assert.Equal(t, "entry 7", tail[0].Message)
	assert.Equal(t, "entry 9", tail[2].Message)

	// Кап - политика отображения, хранилище не усекается
	assert.Equal(t, 10, l.Len())
}

func TestConcurrentAppendAndRead(t *testing.T) {
	l := New()
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.Append("writer %d entry %d", id, j)
				_ = l.Tail(10)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 8*50, l.Len())
}

func TestSubscribeReceivesNewEntries(t *testing.T) {
	l := New()
	ch, cancel := l.Subscribe()
	defer cancel()

	l.Append("hello")

	entry := <-ch
	assert.Equal(t, "hello", entry.Message)
}

func TestSlowSubscriberDoesNotBlockWriter(t *testing.T) {
	l := New()
	_, cancel := l.Subscribe()
	defer cancel()

	// Канал подписчика буферизован на 64; пишем больше и никого не читаем
	for i := 0; i < 200; i++ {
		l.Append(fmt.Sprintf("burst %d", i))
	}

	assert.Equal(t, 200, l.Len())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	l := New()
	ch, cancel := l.Subscribe()
	cancel()

	_, open := <-ch
	assert.False(t, open)

	// Повторная отписка безопасна
	cancel()
}
