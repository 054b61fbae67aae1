package state

import "testing"

func TestMemoryStoreContract(t *testing.T) {
	t.Parallel()

	runStoreContract(t, func(*testing.T) Store {
		return NewMemoryStore(WithClock(fixedNow))
	})
}

func TestMemoryStoreHistoryLimit(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore(WithHistoryLimit(2))
	for _, text := range []string{"a", "b", "c"} {
		if err := store.AppendMessages(t.Context(), "c-1", Message{Role: RoleCustomer, Content: text}); err != nil {
			t.Fatalf("AppendMessages() error = %v", err)
		}
	}
	msgs, _ := store.GetRecentHistory(t.Context(), "c-1", 10)
	if len(msgs) != 2 || msgs[0].Content != "b" {
		t.Fatalf("history = %+v", msgs)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	if _, err := store.AtomicUpdateCart(t.Context(), "c-1", CartOpAdd, CartItem{ProductName: "Cola", Quantity: 1, UnitPrice: 2}); err != nil {
		t.Fatalf("AtomicUpdateCart() error = %v", err)
	}
	conv, _ := store.GetConversation(t.Context(), "c-1")
	conv.Cart[0].Quantity = 99
	conv.Metadata["x"] = "y"

	again, _ := store.GetConversation(t.Context(), "c-1")
	if again.Cart[0].Quantity != 1 {
		t.Fatalf("caller mutation leaked into store")
	}
	if _, ok := again.Metadata["x"]; ok {
		t.Fatalf("metadata mutation leaked into store")
	}
}

func TestMemoryStoreOrders(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	order := Order{ID: "o-1", ConversationID: "c-1", Items: Cart{{ProductName: "Cola", Quantity: 1, UnitPrice: 2}}}
	if err := store.SaveOrder(t.Context(), order); err != nil {
		t.Fatalf("SaveOrder() error = %v", err)
	}
	if got := store.Orders("c-1"); len(got) != 1 || got[0].ID != "o-1" {
		t.Fatalf("Orders() = %+v", got)
	}
}
