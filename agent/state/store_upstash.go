package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseSizeBytes = 2 << 20

// UpstashRedisStore persists conversations in Upstash Redis via its REST API.
// Cart and state updates go through EVAL with the shared compare-and-swap script.
type UpstashRedisStore struct {
	baseURL    string
	token      string
	httpClient *http.Client
	opts       kvOptions
}

type redisRESTResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type UpstashRedisConfig struct {
	URL     string        `envconfig:"URL" split_words:"true" required:"true"`
	Token   string        `envconfig:"TOKEN" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

func NewUpstashRedisStore(cfg UpstashRedisConfig, opts ...StoreOption) (*UpstashRedisStore, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("upstash redis url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid redis rest url: %w", err)
	}

	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("upstash redis token is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
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

	client := o.httpClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	return &UpstashRedisStore{
		baseURL:    baseURL,
		token:      token,
		httpClient: client,
		opts:       o,
	}, nil
}

func (s *UpstashRedisStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
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

func (s *UpstashRedisStore) AtomicUpdateCart(ctx context.Context, id string, op CartOp, item CartItem) (CartTotals, error) {
	conv, err := casUpdate(ctx, s, s.opts, id, cartMutation(op, item))
	if err != nil {
		return CartTotals{}, err
	}
	return conv.Totals(), nil
}

func (s *UpstashRedisStore) AtomicUpdateState(ctx context.Context, id string, newState ConversationState, patch Metadata) error {
	_, err := casUpdate(ctx, s, s.opts, id, stateMutation(newState, patch, s.opts.now))
	return err
}

func (s *UpstashRedisStore) GetRecentHistory(ctx context.Context, id string, n int) ([]Message, error) {
	key, err := s.opts.historyKey(id)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		n = s.opts.historyLimit
	}

	resp, err := s.exec(ctx, []any{"LRANGE", key, -n, -1})
	if err != nil {
		return nil, err
	}
	var raws []string
	if len(resp.Result) > 0 && string(resp.Result) != "null" {
		if err := json.Unmarshal(resp.Result, &raws); err != nil {
			return nil, fmt.Errorf("decode redis list result: %w", err)
		}
	}
	return decodeMessages(raws)
}

func (s *UpstashRedisStore) AppendMessages(ctx context.Context, id string, msgs ...Message) error {
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

	cmd := append([]any{"RPUSH", key}, values...)
	if _, err := s.exec(ctx, cmd); err != nil {
		return err
	}
	if _, err := s.exec(ctx, []any{"LTRIM", key, -s.opts.historyLimit, -1}); err != nil {
		return err
	}
	if ttl := s.opts.ttlSeconds(); ttl > 0 {
		if _, err := s.exec(ctx, []any{"EXPIRE", key, ttl}); err != nil {
			return err
		}
	}
	return nil
}

func (s *UpstashRedisStore) SaveOrder(ctx context.Context, order Order) error {
	if err := validateOrder(order); err != nil {
		return err
	}
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}
	_, err = s.exec(ctx, []any{"SET", s.opts.orderKey(order.ID), string(payload)})
	return err
}

func (s *UpstashRedisStore) get(ctx context.Context, key string) (string, bool, error) {
	resp, err := s.exec(ctx, []any{"GET", key})
	if err != nil {
		return "", false, err
	}
	if len(resp.Result) == 0 || string(resp.Result) == "null" {
		return "", false, nil
	}
	var encoded string
	if err := json.Unmarshal(resp.Result, &encoded); err != nil {
		return "", false, fmt.Errorf("decode redis get result: %w", err)
	}
	return encoded, true, nil
}

func (s *UpstashRedisStore) compareAndSwap(ctx context.Context, key, old, next string) (bool, error) {
	resp, err := s.exec(ctx, []any{"EVAL", casScript, 1, key, old, next, s.opts.ttlSeconds()})
	if err != nil {
		return false, err
	}
	var swapped int64
	if err := json.Unmarshal(resp.Result, &swapped); err != nil {
		return false, fmt.Errorf("decode redis eval result: %w", err)
	}
	return swapped == 1, nil
}

func (s *UpstashRedisStore) exec(ctx context.Context, command []any) (*redisRESTResponse, error) {
	if s == nil {
		return nil, errors.New("nil store")
	}
	if len(command) == 0 {
		return nil, errors.New("empty redis command")
	}

	body, err := json.Marshal(command)
	if err != nil {
		return nil, fmt.Errorf("marshal redis command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build redis request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute redis request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("read redis response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("redis http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed redisRESTResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode redis response: %w", err)
	}
	if parsed.Error != "" {
		return nil, errors.New(parsed.Error)
	}
	return &parsed, nil
}
