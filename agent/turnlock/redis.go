package turnlock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
)

const (
	defaultLockPrefix = "chative:lock:"
	defaultLockTTL    = 2 * time.Minute
	defaultRetryEvery = 50 * time.Millisecond
)

// unlockScript deletes KEYS[1] only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisConfig struct {
	Prefix     string        `envconfig:"PREFIX" split_words:"true" default:"chative:lock:"`
	TTL        time.Duration `envconfig:"TTL" split_words:"true" default:"2m"`
	Wait       time.Duration `envconfig:"WAIT" split_words:"true" default:"10s"`
	RetryEvery time.Duration `envconfig:"RETRY_EVERY" split_words:"true" default:"50ms"`
}

// RedisLocker serializes turns across replicas with SET NX PX.
type RedisLocker struct {
	client redis.UniversalClient
	cfg    RedisConfig
}

var _ Locker = (*RedisLocker)(nil)

func NewRedisLocker(client redis.UniversalClient, cfg RedisConfig) (*RedisLocker, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if strings.TrimSpace(cfg.Prefix) == "" {
		cfg.Prefix = defaultLockPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultLockTTL
	}
	if cfg.RetryEvery <= 0 {
		cfg.RetryEvery = defaultRetryEvery
	}
	return &RedisLocker{client: client, cfg: cfg}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, conversationID string) (func(), error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return nil, fmt.Errorf("%w: conversation id is empty", contractx.ErrValidation)
	}
	key := l.cfg.Prefix + id
	token := uuid.NewString()
	deadline := time.Now().Add(l.cfg.Wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.cfg.TTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire turn lock: %w", err)
		}
		if ok {
			break
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: conversation=%s", contractx.ErrConversationBusy, id)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.cfg.RetryEvery):
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// The turn context may already be cancelled; the lock must still go.
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := unlockScript.Run(unlockCtx, l.client, []string{key}, token).Err(); err != nil {
			log.Warn().Err(err).Str("conversation_id", id).Msg("release turn lock failed")
		}
	}, nil
}
