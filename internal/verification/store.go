// Package verification реализует выдачу и проверку короткоживущих кодов
// подтверждения. Хранилище кодов вынесено за интерфейс Store, чтобы замена
// процессной памяти на общий redis не трогала вызывающий код.
package verification

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/magabrotheeeer/subscription-reconciler/internal/cache"
	"github.com/magabrotheeeer/subscription-reconciler/internal/models"
)

// Store описывает хранилище кодов подтверждения.
// Ключ — композиция назначения и субъекта (почта либо внутренний id).
type Store interface {
	// Set сохраняет код, перезаписывая предыдущий для того же ключа.
	Set(ctx context.Context, key string, code models.VerificationCode) error
	// CompareAndDelete атомарно сверяет кандидата с сохранённым кодом и при
	// совпадении удаляет запись. Сравнение и удаление — одна операция:
	// из конкурентных проверок одного кода успешной будет ровно одна.
	// Несовпадение запись не трогает.
	CompareAndDelete(ctx context.Context, key, candidate string, now time.Time) (bool, error)
	// Sweep удаляет истёкшие записи, ограничивая рост хранилища.
	Sweep(ctx context.Context, now time.Time) error
}

// MemoryStore процессное хранилище кодов. Лучшее из возможного только для
// одного работающего инстанса: не разделяется и не переживает рестарт.
type MemoryStore struct {
	mu    sync.Mutex
	codes map[string]models.VerificationCode
}

// NewMemoryStore создаёт пустое процессное хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{codes: make(map[string]models.VerificationCode)}
}

// Set сохраняет код, перезаписывая предыдущий.
func (s *MemoryStore) Set(_ context.Context, key string, code models.VerificationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[key] = code
	return nil
}

// CompareAndDelete сверяет и удаляет код под одной блокировкой.
// Истёкшая запись удаляется независимо от кандидата и не проходит проверку.
func (s *MemoryStore) CompareAndDelete(_ context.Context, key, candidate string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[key]
	if !ok {
		return false, nil
	}
	if code.Expired(now) {
		delete(s.codes, key)
		return false, nil
	}
	if code.Code != candidate {
		return false, nil
	}
	delete(s.codes, key)
	return true, nil
}

// Sweep удаляет истёкшие записи.
func (s *MemoryStore) Sweep(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, code := range s.codes {
		if code.Expired(now) {
			delete(s.codes, key)
		}
	}
	return nil
}

// RunSweeper запускает фоновую очистку с заданным интервалом до отмены контекста.
func RunSweeper(ctx context.Context, store Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			_ = store.Sweep(ctx, now)
		}
	}
}

// compareAndDeleteScript сверяет поле Code сохранённой записи с кандидатом
// и удаляет ключ при совпадении. Скрипт выполняется в redis атомарно:
// между чтением и удалением не вклинится другая проверка.
var compareAndDeleteScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then
	return 0
end
local record = cjson.decode(v)
if record.Code == ARGV[1] then
	redis.call('DEL', KEYS[1])
	return 1
end
return 0
`)

// RedisStore хранилище кодов поверх redis. TTL записи контролирует сам redis,
// Sweep поэтому ничего не делает.
type RedisStore struct {
	cache *cache.Cache
}

// NewRedisStore создаёт хранилище поверх подключённого кеша.
func NewRedisStore(c *cache.Cache) *RedisStore {
	return &RedisStore{cache: c}
}

// Set сохраняет код с TTL до момента истечения.
func (s *RedisStore) Set(ctx context.Context, key string, code models.VerificationCode) error {
	ttl := time.Until(code.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return s.cache.Set(ctx, "verification:"+key, code, ttl)
}

// CompareAndDelete сверяет и удаляет код одним вызовом Lua-скрипта.
// Истечение обеспечивает TTL ключа, параметр now не используется.
func (s *RedisStore) CompareAndDelete(ctx context.Context, key, candidate string, _ time.Time) (bool, error) {
	res, err := compareAndDeleteScript.Run(ctx, s.cache.Db, []string{"verification:" + key}, candidate).Int()
	if err != nil {
		return false, err
	}
	return res == 1, nil
}

// Sweep не нужен: redis удаляет истёкшие ключи сам.
func (s *RedisStore) Sweep(_ context.Context, _ time.Time) error {
	return nil
}
