// Package cache содержит хранилище ключей идемпотентности в Redis.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mmeshcher/gamecodes-store/internal/model"
)

const (
	keyPrefix = "idem:"
	// pendingMarker хранится под ключом, пока заказ по нему ещё оформляется.
	pendingMarker = "pending"
	defaultTTL    = 24 * time.Hour
)

// Значение ключа имеет вид "<отпечаток запроса>|<pending или id заказа>".

// reserveScript занимает ключ или возвращает его текущее значение.
// Пустая строка в ответе означает, что ключ занят этим вызовом.
var reserveScript = redis.NewScript(`
if redis.call('SET', KEYS[1], ARGV[1], 'NX', 'EX', ARGV[2]) then
	return ''
end
return redis.call('GET', KEYS[1])
`)

// IdempotencyStore хранит соответствие ключа идемпотентности и созданного заказа.
type IdempotencyStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewIdempotencyStore создаёт хранилище поверх клиента Redis.
// Ключи живут ttl; при ttl <= 0 используются сутки.
func NewIdempotencyStore(client *redis.Client, ttl time.Duration) *IdempotencyStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &IdempotencyStore{client: client, ttl: ttl}
}

// Reserve занимает ключ key в пространстве scope для запроса с отпечатком fingerprint.
// Если ключ уже занят запросом с другим отпечатком, возвращается model.ErrIdempotencyKeyReused.
func (s *IdempotencyStore) Reserve(ctx context.Context, scope, key, fingerprint string) (string, bool, error) {
	val, err := reserveScript.Run(ctx, s.client,
		[]string{redisKey(scope, key)},
		entry(fingerprint, pendingMarker), int64(s.ttl/time.Second),
	).Text()
	if err != nil {
		return "", false, fmt.Errorf("reserve key: %w", err)
	}
	if val == "" {
		return "", true, nil
	}

	stored, state, _ := strings.Cut(val, "|")
	if stored != fingerprint {
		return "", false, model.ErrIdempotencyKeyReused
	}
	if state == pendingMarker {
		return "", false, nil
	}
	return state, false, nil
}

// Complete связывает ключ с созданным заказом.
func (s *IdempotencyStore) Complete(ctx context.Context, scope, key, fingerprint, orderID string) error {
	if err := s.client.Set(ctx, redisKey(scope, key), entry(fingerprint, orderID), s.ttl).Err(); err != nil {
		return fmt.Errorf("complete key: %w", err)
	}
	return nil
}

// Release освобождает ключ после неудачной попытки, чтобы клиент мог повторить запрос.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, redisKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("release key: %w", err)
	}
	return nil
}

// Ping проверяет доступность Redis.
func (s *IdempotencyStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func redisKey(scope, key string) string {
	return keyPrefix + scope + ":" + key
}

func entry(fingerprint, state string) string {
	return fingerprint + "|" + state
}
