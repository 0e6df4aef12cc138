// Package ratelimit реализует ограничение частоты чувствительных операций
// по ключу (субъект+IP, действие) в скользящем окне.
//
// Проверка выполняется до охраняемого действия, инкремент — всегда,
// независимо от исхода: повторные попытки наказываются и при ответах вида
// «аккаунт не найден», что сохраняет защиту от перебора.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// UnknownIP общий бакет для запросов без разрешимого адреса.
// Отказоустойчиво в сторону запрета: анонимный пул не обходит лимиты,
// но и разделяет один бакет на всех — известное слабое место.
const UnknownIP = "unknown"

// Key идентифицирует бакет лимитера.
type Key struct {
	Subject string // Почта либо внутренний id
	IP      string // Адрес клиента, пустой схлопывается в UnknownIP
	Action  string // Охраняемое действие
}

func (k Key) bucket() string {
	ip := k.IP
	if ip == "" {
		ip = UnknownIP
	}
	return k.Action + ":" + k.Subject + ":" + ip
}

// Limiter описывает операции ограничителя частоты.
type Limiter interface {
	// Check сообщает, допустима ли сейчас попытка для ключа.
	Check(key Key) bool
	// Increment фиксирует попытку независимо от её исхода.
	Increment(key Key)
}

// SlidingWindow процессный лимитер: N попыток на окно для каждого бакета.
type SlidingWindow struct {
	mu       sync.Mutex
	buckets  map[string]*entry
	attempts int
	window   time.Duration
}

type entry struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewSlidingWindow создаёт лимитер с порогом attempts за window.
// Неположительные значения из незаполненного конфига схлопываются
// в самый строгий режим: одна попытка в минуту, а не паника деления
// на ноль и не отключённый лимит.
func NewSlidingWindow(attempts int, window time.Duration) *SlidingWindow {
	if attempts < 1 {
		attempts = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &SlidingWindow{
		buckets:  make(map[string]*entry),
		attempts: attempts,
		window:   window,
	}
}

func (s *SlidingWindow) get(key Key) *entry {
	bucket := key.bucket()
	e, ok := s.buckets[bucket]
	if !ok {
		e = &entry{lim: rate.NewLimiter(rate.Every(s.window/time.Duration(s.attempts)), s.attempts)}
		s.buckets[bucket] = e
	}
	e.seen = time.Now()
	return e
}

// Check сообщает, остались ли у бакета токены, не расходуя их.
func (s *SlidingWindow) Check(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(key).lim.Tokens() >= 1
}

// Increment расходует один токен бакета и попутно вычищает простаивающие бакеты.
func (s *SlidingWindow) Increment(key Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(key).lim.Allow()

	cutoff := time.Now().Add(-2 * s.window)
	for bucket, e := range s.buckets {
		if e.seen.Before(cutoff) {
			delete(s.buckets, bucket)
		}
	}
}
