package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrNilConversation      = errors.New("conversation is nil")
	ErrCartConflict         = errors.New("concurrent conversation update")
	ErrInvalidOrder         = errors.New("invalid order")
)

const (
	defaultStoreKeyPrefix = "chative:conv:"
	defaultStoreTTL       = 7 * 24 * time.Hour
	defaultHistoryLimit   = 200
	maxCASAttempts        = 5
)

// Store is the persistence contract used by the orchestrator and the tool executor.
// Cart mutations are atomic per conversation; everything else is last-write-wins.
type Store interface {
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	AtomicUpdateCart(ctx context.Context, id string, op CartOp, item CartItem) (CartTotals, error)
	AtomicUpdateState(ctx context.Context, id string, newState ConversationState, patch Metadata) error
	GetRecentHistory(ctx context.Context, id string, n int) ([]Message, error)
	AppendMessages(ctx context.Context, id string, msgs ...Message) error
	SaveOrder(ctx context.Context, order Order) error
}

// StoreOption customizes the key/value backed stores.
type StoreOption func(*kvOptions)

type kvOptions struct {
	keyPrefix    string
	ttl          time.Duration
	historyLimit int
	now          func() time.Time
	httpClient   *http.Client
}

func defaultKVOptions() kvOptions {
	return kvOptions{
		keyPrefix:    defaultStoreKeyPrefix,
		ttl:          defaultStoreTTL,
		historyLimit: defaultHistoryLimit,
		now:          time.Now,
	}
}

func WithKeyPrefix(prefix string) StoreOption {
	return func(o *kvOptions) {
		trimmed := strings.TrimSpace(prefix)
		if trimmed != "" {
			o.keyPrefix = trimmed
		}
	}
}

func WithTTL(ttl time.Duration) StoreOption {
	return func(o *kvOptions) {
		o.ttl = ttl
	}
}

func WithHistoryLimit(n int) StoreOption {
	return func(o *kvOptions) {
		if n > 0 {
			o.historyLimit = n
		}
	}
}

func WithClock(now func() time.Time) StoreOption {
	return func(o *kvOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithHTTPClient overrides the client used by the REST backed store.
func WithHTTPClient(client *http.Client) StoreOption {
	return func(o *kvOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

func (o kvOptions) conversationKey(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", ErrInvalidConversation
	}
	return o.keyPrefix + id, nil
}

func (o kvOptions) historyKey(id string) (string, error) {
	key, err := o.conversationKey(id)
	if err != nil {
		return "", err
	}
	return key + ":history", nil
}

func (o kvOptions) orderKey(orderID string) string {
	return o.keyPrefix + "order:" + orderID
}

func (o kvOptions) ttlSeconds() int64 {
	if o.ttl <= 0 {
		return 0
	}
	return ttlSeconds(o.ttl)
}

// casScript swaps KEYS[1] from ARGV[1] to ARGV[2] only if nobody wrote in between.
// An empty ARGV[1] means "the key must not exist yet". ARGV[3] is a TTL in seconds (0 = none).
const casScript = `
local current = redis.call("GET", KEYS[1])
if (current == false and ARGV[1] == "") or current == ARGV[1] then
  local ttl = tonumber(ARGV[3])
  if ttl and ttl > 0 then
    redis.call("SET", KEYS[1], ARGV[2], "EX", ttl)
  else
    redis.call("SET", KEYS[1], ARGV[2])
  end
  return 1
end
return 0
`

// casBackend is the minimal primitive a key/value store needs for atomic conversation updates.
type casBackend interface {
	get(ctx context.Context, key string) (string, bool, error)
	compareAndSwap(ctx context.Context, key, old, next string) (bool, error)
}

// casUpdate runs a conditional read-modify-write, retrying when a concurrent writer wins.
func casUpdate(
	ctx context.Context,
	b casBackend,
	opts kvOptions,
	id string,
	mutate func(*Conversation) error,
) (*Conversation, error) {
	key, err := opts.conversationKey(id)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		raw, exists, err := b.get(ctx, key)
		if err != nil {
			return nil, err
		}

		conv := NewConversation(id, opts.now())
		if exists {
			decoded, err := decodeConversation(raw)
			if err != nil {
				return nil, err
			}
			conv = decoded
		} else {
			raw = ""
		}

		if err := mutate(conv); err != nil {
			return nil, err
		}
		conv.Version++
		conv.Touch(opts.now())

		payload, err := json.Marshal(conv)
		if err != nil {
			return nil, fmt.Errorf("marshal conversation: %w", err)
		}

		swapped, err := b.compareAndSwap(ctx, key, raw, string(payload))
		if err != nil {
			return nil, err
		}
		if swapped {
			return conv, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: conversation=%s", ErrCartConflict, id)
}

func decodeConversation(raw string) (*Conversation, error) {
	var conv Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		return nil, fmt.Errorf("unmarshal conversation: %w", err)
	}
	conv.EnsureMetadata()
	if err := conv.Validate(); err != nil {
		return nil, fmt.Errorf("invalid conversation loaded from store: %w", err)
	}
	return &conv, nil
}

func cartMutation(op CartOp, item CartItem) func(*Conversation) error {
	return func(conv *Conversation) error {
		next, err := ApplyCartOp(conv.Cart, op, item)
		if err != nil {
			return err
		}
		conv.Cart = next
		return nil
	}
}

func stateMutation(newState ConversationState, patch Metadata, now func() time.Time) func(*Conversation) error {
	return func(conv *Conversation) error {
		return conv.applyState(newState, patch, now())
	}
}

func validateOrder(order Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return fmt.Errorf("%w: order id is empty", ErrInvalidOrder)
	}
	if strings.TrimSpace(order.ConversationID) == "" {
		return ErrInvalidConversation
	}
	if len(order.Items) == 0 {
		return fmt.Errorf("%w: order has no items", ErrInvalidOrder)
	}
	return nil
}

func encodeMessages(msgs []Message, now time.Time) ([]any, error) {
	values := make([]any, 0, len(msgs))
	for _, msg := range msgs {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now.UTC()
		}
		raw, err := json.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("marshal message: %w", err)
		}
		values = append(values, string(raw))
	}
	return values, nil
}

func decodeMessages(raws []string) ([]Message, error) {
	out := make([]Message, 0, len(raws))
	for _, raw := range raws {
		var msg Message
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return nil, fmt.Errorf("unmarshal message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func ttlSeconds(ttl time.Duration) int64 {
	seconds := ttl / time.Second
	if seconds <= 0 {
		return 1
	}
	if ttl%time.Second != 0 {
		seconds++
	}
	return int64(seconds)
}
