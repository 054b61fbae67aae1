// Package turnlock serializes turns per conversation.
package turnlock

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
)

const DefaultWait = 10 * time.Second

// Locker hands out one slot per conversation. The returned release func is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, conversationID string) (release func(), err error)
}

type slot struct {
	ch   chan struct{}
	refs int
}

// LocalLocker queues turns in process. Waiters give up after wait with ErrConversationBusy.
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
	wait  time.Duration
}

var _ Locker = (*LocalLocker)(nil)

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{
		slots: map[string]*slot{},
		wait:  wait,
	}
}

func (l *LocalLocker) Acquire(ctx context.Context, conversationID string) (func(), error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return nil, fmt.Errorf("%w: conversation id is empty", contractx.ErrValidation)
	}

	s := l.ref(id)
	if err := l.take(ctx, s); err != nil {
		l.unref(id, s)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: conversation=%s", contractx.ErrConversationBusy, id)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(id, s)
		})
	}, nil
}

func (l *LocalLocker) take(ctx context.Context, s *slot) error {
	if l.wait <= 0 {
		select {
		case s.ch <- struct{}{}:
			return nil
		default:
			return contractx.ErrConversationBusy
		}
	}

	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	select {
	case s.ch <- struct{}{}:
		return nil
	case <-timer.C:
		return contractx.ErrConversationBusy
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *LocalLocker) ref(id string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[id]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.refs++
	return s
}

func (l *LocalLocker) unref(id string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs <= 0 {
		delete(l.slots, id)
	}
}

// held reports how many conversations currently have a slot allocated.
func (l *LocalLocker) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
