package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var conversationCASScript = redis.NewScript(casScript)

type RedisConfig struct {
	Addr     string `envconfig:"ADDR" default:"localhost:6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
}

// RedisStore persists conversations in a self-hosted Redis through go-redis.
type RedisStore struct {
	client redis.UniversalClient
	opts   kvOptions
}

func NewRedisStore(cfg RedisConfig, opts ...StoreOption) (*RedisStore, error) {
	addr := strings.TrimSpace(cfg.Addr)
	if addr == "" {
		return nil, errors.New("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewRedisStoreFromClient(client, opts...)
}

func NewRedisStoreFromClient(client redis.UniversalClient, opts ...StoreOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	o := defaultKVOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.ttl < 0 {
		return nil, errors.New("ttl must be >= 0")
	}
	return &RedisStore{client: client, opts: o}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	key, err := s.opts.conversationKey(id)
	if err != nil {
		return nil, err
	}
	raw, ok, err := s.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	return decodeConversation(raw)
}

func (s *RedisStore) AtomicUpdateCart(ctx context.Context, id string, op CartOp, item CartItem) (CartTotals, error) {
	conv, err := casUpdate(ctx, s, s.opts, id, cartMutation(op, item))
	if err != nil {
		return CartTotals{}, err
	}
	return conv.Totals(), nil
}

func (s *RedisStore) AtomicUpdateState(ctx context.Context, id string, newState ConversationState, patch Metadata) error {
	_, err := casUpdate(ctx, s, s.opts, id, stateMutation(newState, patch, s.opts.now))
	return err
}

func (s *RedisStore) GetRecentHistory(ctx context.Context, id string, n int) ([]Message, error) {
	key, err := s.opts.historyKey(id)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = s.opts.historyLimit
	}
	raws, err := s.client.LRange(ctx, key, int64(-n), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}
	return decodeMessages(raws)
}

func (s *RedisStore) AppendMessages(ctx context.Context, id string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	key, err := s.opts.historyKey(id)
	if err != nil {
		return err
	}
	values, err := encodeMessages(msgs, s.opts.now())
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-s.opts.historyLimit), -1)
	if s.opts.ttl > 0 {
		pipe.Expire(ctx, key, time.Duration(s.opts.ttlSeconds())*time.Second)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append history: %w", err)
	}
	return nil
}

func (s *RedisStore) SaveOrder(ctx context.Context, order Order) error {
	if err := validateOrder(order); err != nil {
		return err
	}
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	if err := s.client.Set(ctx, s.opts.orderKey(order.ID), payload, 0).Err(); err != nil {
		return fmt.Errorf("redis save order: %w", err)
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, key string) (string, bool, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return raw, true, nil
}

func (s *RedisStore) compareAndSwap(ctx context.Context, key, old, next string) (bool, error) {
	res, err := conversationCASScript.Run(ctx, s.client, []string{key}, old, next, s.opts.ttlSeconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis cas: %w", err)
	}
	return res == 1, nil
}
