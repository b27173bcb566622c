// Package clock абстрагирует текущее время, чтобы поздние отмены и
// напоминания можно было проверять в тестах на фиксированном времени.
package clock

import (
	"sync"
	"time"
)

// Clock источник текущего времени
type Clock interface {
	Now() time.Time
}

// Real возвращает часы на основе пакета time
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Fixed часы, которые стоят на месте, пока их не передвинут
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixed создаёт часы, показывающие now
func NewFixed(now time.Time) *Fixed {
	return &Fixed{now: now}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance передвигает часы на d
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set устанавливает время
func (f *Fixed) Set(now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}
