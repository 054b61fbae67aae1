package state

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func fixedNow() time.Time {
	return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
}

// runStoreContract exercises the behaviour every Store backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing conversation", func(t *testing.T) {
		store := newStore(t)
		_, err := store.GetConversation(ctx, "missing")
		if !errors.Is(err, ErrConversationNotFound) {
			t.Fatalf("GetConversation() error = %v, want ErrConversationNotFound", err)
		}
	})

	t.Run("empty id", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.GetConversation(ctx, "  "); !errors.Is(err, ErrInvalidConversation) {
			t.Fatalf("GetConversation() error = %v, want ErrInvalidConversation", err)
		}
	})

	t.Run("cart updates create the conversation", func(t *testing.T) {
		store := newStore(t)
		totals, err := store.AtomicUpdateCart(ctx, "c-1", CartOpAdd, CartItem{ProductName: "Classic Burger", Quantity: 2, UnitPrice: 8.5})
		if err != nil {
			t.Fatalf("AtomicUpdateCart() error = %v", err)
		}
		if totals.Total != 17 || totals.Count != 1 {
			t.Fatalf("totals = %+v, want 17/1", totals)
		}

		totals, err = store.AtomicUpdateCart(ctx, "c-1", CartOpAdd, CartItem{ProductName: "Cola", Quantity: 1, UnitPrice: 2})
		if err != nil {
			t.Fatalf("AtomicUpdateCart() error = %v", err)
		}
		if totals.Total != 19 || totals.Count != 2 {
			t.Fatalf("totals = %+v, want 19/2", totals)
		}

		conv, err := store.GetConversation(ctx, "c-1")
		if err != nil {
			t.Fatalf("GetConversation() error = %v", err)
		}
		if conv.State != StateGreeting {
			t.Fatalf("state = %s, want GREETING", conv.State)
		}
		if conv.Cart.Count() != 2 || conv.Version != 2 {
			t.Fatalf("conversation = %+v", conv)
		}
	})

	t.Run("failed cart op leaves cart untouched", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.AtomicUpdateCart(ctx, "c-2", CartOpAdd, CartItem{ProductName: "Cola", Quantity: 1, UnitPrice: 2}); err != nil {
			t.Fatalf("add error = %v", err)
		}
		_, err := store.AtomicUpdateCart(ctx, "c-2", CartOpRemove, CartItem{ProductName: "Pizza"})
		if !errors.Is(err, ErrItemNotInCart) {
			t.Fatalf("remove error = %v, want ErrItemNotInCart", err)
		}
		conv, _ := store.GetConversation(ctx, "c-2")
		if conv.Cart.Count() != 1 {
			t.Fatalf("cart = %+v", conv.Cart)
		}
	})

	t.Run("state update merges metadata", func(t *testing.T) {
		store := newStore(t)
		if err := store.AtomicUpdateState(ctx, "c-3", StateDiscovery, Metadata{MetaGreeted: true}); err != nil {
			t.Fatalf("AtomicUpdateState() error = %v", err)
		}
		if err := store.AtomicUpdateState(ctx, "c-3", StateBrowsingMenu, Metadata{MetaPaymentMethod: "cash"}); err != nil {
			t.Fatalf("AtomicUpdateState() error = %v", err)
		}
		conv, err := store.GetConversation(ctx, "c-3")
		if err != nil {
			t.Fatalf("GetConversation() error = %v", err)
		}
		if conv.State != StateBrowsingMenu {
			t.Fatalf("state = %s", conv.State)
		}
		if !conv.Metadata.Bool(MetaGreeted) || conv.Metadata.String(MetaPaymentMethod) != "cash" {
			t.Fatalf("metadata = %+v", conv.Metadata)
		}
	})

	t.Run("terminal state is absorbing", func(t *testing.T) {
		store := newStore(t)
		if err := store.AtomicUpdateState(ctx, "c-4", StateOrderPlaced, nil); err != nil {
			t.Fatalf("AtomicUpdateState() error = %v", err)
		}
		err := store.AtomicUpdateState(ctx, "c-4", StateBuildingOrder, nil)
		if !errors.Is(err, ErrTerminalState) {
			t.Fatalf("AtomicUpdateState() error = %v, want ErrTerminalState", err)
		}
	})

	t.Run("history keeps insertion order", func(t *testing.T) {
		store := newStore(t)
		err := store.AppendMessages(ctx, "c-5",
			Message{Role: RoleCustomer, Content: "one"},
			Message{Role: RoleAssistant, Content: "two"},
			Message{Role: RoleCustomer, Content: "three"},
		)
		if err != nil {
			t.Fatalf("AppendMessages() error = %v", err)
		}
		msgs, err := store.GetRecentHistory(ctx, "c-5", 2)
		if err != nil {
			t.Fatalf("GetRecentHistory() error = %v", err)
		}
		if len(msgs) != 2 || msgs[0].Content != "two" || msgs[1].Content != "three" {
			t.Fatalf("history = %+v", msgs)
		}
		if msgs[0].CreatedAt.IsZero() {
			t.Fatalf("created_at not stamped")
		}
	})

	t.Run("concurrent adds are not lost", func(t *testing.T) {
		store := newStore(t)
		names := []string{"A", "B", "C", "D"}
		var wg sync.WaitGroup
		errs := make(chan error, len(names))
		for _, name := range names {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				_, err := store.AtomicUpdateCart(ctx, "c-6", CartOpAdd, CartItem{ProductName: name, Quantity: 1, UnitPrice: 1})
				errs <- err
			}(name)
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			if err == nil {
				succeeded++
			} else if !errors.Is(err, ErrCartConflict) {
				t.Fatalf("AtomicUpdateCart() error = %v", err)
			}
		}
		conv, err := store.GetConversation(ctx, "c-6")
		if err != nil {
			t.Fatalf("GetConversation() error = %v", err)
		}
		if conv.Cart.Count() != succeeded {
			t.Fatalf("cart has %d lines, %d adds succeeded", conv.Cart.Count(), succeeded)
		}
	})

	t.Run("save order", func(t *testing.T) {
		store := newStore(t)
		err := store.SaveOrder(ctx, Order{ID: "o-1", ConversationID: "c-7", Items: Cart{{ProductName: "Cola", Quantity: 1, UnitPrice: 2}}, Total: 2})
		if err != nil {
			t.Fatalf("SaveOrder() error = %v", err)
		}
		if err := store.SaveOrder(ctx, Order{ID: "o-2", ConversationID: "c-7"}); !errors.Is(err, ErrInvalidOrder) {
			t.Fatalf("SaveOrder(empty) error = %v, want ErrInvalidOrder", err)
		}
	})
}
