package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrSessionNotFound = errors.New("wizard session not found")

// Store — хранилище сессий мастера по непрозрачному ключу из cookie.
type Store interface {
	Get(ctx context.Context, key string) (*Session, error)
	Save(ctx context.Context, key string, s *Session) error
	Clear(ctx context.Context, key string) error
}

// KV — минимум операций ключ/значение с TTL; Get возвращает ErrSessionNotFound при промахе.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// KVStore хранит сессии JSON-ом поверх KV.
type KVStore struct {
	kv     KV
	ttl    time.Duration
	prefix string
}

func NewKVStore(kv KV, ttl time.Duration) *KVStore {
	return &KVStore{kv: kv, ttl: ttl, prefix: "phoneprov:wizard:"}
}

func (s *KVStore) Get(ctx context.Context, key string) (*Session, error) {
	raw, err := s.kv.Get(ctx, s.prefix+key)
	if err != nil {
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("decode wizard session: %w", err)
	}
	return &sess, nil
}

func (s *KVStore) Save(ctx context.Context, key string, sess *Session) error {
	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode wizard session: %w", err)
	}
	return s.kv.Set(ctx, s.prefix+key, string(raw), s.ttl)
}

func (s *KVStore) Clear(ctx context.Context, key string) error {
	return s.kv.Del(ctx, s.prefix+key)
}

// RedisKV — KV поверх go-redis.
type RedisKV struct {
	client *redis.Client
}

func NewRedisKV(client *redis.Client) *RedisKV { return &RedisKV{client: client} }

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSessionNotFound
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// MemoryKV — KV в памяти процесса, для одного инстанса и тестов.
type MemoryKV struct {
	mu    sync.Mutex
	items map[string]memItem
	now   func() time.Time
}

type memItem struct {
	value   string
	expires time.Time
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{items: make(map[string]memItem), now: time.Now}
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[key]
	if !ok {
		return "", ErrSessionNotFound
	}
	if !it.expires.IsZero() && m.now().After(it.expires) {
		delete(m.items, key)
		return "", ErrSessionNotFound
	}
	return it.value, nil
}

func (m *MemoryKV) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := memItem{value: value}
	if ttl > 0 {
		it.expires = m.now().Add(ttl)
	}
	m.items[key] = it
	return nil
}

func (m *MemoryKV) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
