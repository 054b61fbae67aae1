package state

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps conversations in process. Used by tests and the local chat command.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[string]*Conversation
	history       map[string][]Message
	orders        map[string]Order
	historyLimit  int
	now           func() time.Time
}

func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	o := defaultKVOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return &MemoryStore{
		conversations: make(map[string]*Conversation),
		history:       make(map[string][]Message),
		orders:        make(map[string]Order),
		historyLimit:  o.historyLimit,
		now:           o.now,
	}
}

func (m *MemoryStore) GetConversation(_ context.Context, id string) (*Conversation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidConversation
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, id)
	}
	return conv.Clone(), nil
}

func (m *MemoryStore) AtomicUpdateCart(_ context.Context, id string, op CartOp, item CartItem) (CartTotals, error) {
	conv, err := m.update(id, cartMutation(op, item))
	if err != nil {
		return CartTotals{}, err
	}
	return conv.Totals(), nil
}

func (m *MemoryStore) AtomicUpdateState(_ context.Context, id string, newState ConversationState, patch Metadata) error {
	_, err := m.update(id, stateMutation(newState, patch, m.now))
	return err
}

func (m *MemoryStore) GetRecentHistory(_ context.Context, id string, n int) ([]Message, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidConversation
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.history[id]
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return append([]Message(nil), msgs...), nil
}

func (m *MemoryStore) AppendMessages(_ context.Context, id string, msgs ...Message) error {
	if strings.TrimSpace(id) == "" {
		return ErrInvalidConversation
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	for _, msg := range msgs {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		m.history[id] = append(m.history[id], msg)
	}
	if m.historyLimit > 0 && len(m.history[id]) > m.historyLimit {
		m.history[id] = m.history[id][len(m.history[id])-m.historyLimit:]
	}
	return nil
}

func (m *MemoryStore) SaveOrder(_ context.Context, order Order) error {
	if err := validateOrder(order); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	order.Items = append(Cart(nil), order.Items...)
	m.orders[order.ID] = order
	return nil
}

// Orders returns the orders saved for a conversation, for inspection.
func (m *MemoryStore) Orders(conversationID string) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Order
	for _, order := range m.orders {
		if order.ConversationID == conversationID {
			out = append(out, order)
		}
	}
	return out
}

// Put seeds or replaces a conversation.
func (m *MemoryStore) Put(conv *Conversation) error {
	if conv == nil {
		return ErrNilConversation
	}
	conv.EnsureMetadata()
	if err := conv.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conversations[conv.ID] = conv.Clone()
	return nil
}

func (m *MemoryStore) update(id string, mutate func(*Conversation) error) (*Conversation, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrInvalidConversation
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[id]
	if !ok {
		conv = NewConversation(id, m.now())
	}
	next := conv.Clone()
	if err := mutate(next); err != nil {
		return nil, err
	}
	next.Version++
	next.Touch(m.now())
	m.conversations[id] = next
	return next.Clone(), nil
}
