package state

import (
	"errors"
	"testing"
)

func TestApplyCartOpAddMergesByIdentityKey(t *testing.T) {
	t.Parallel()

	cart, err := ApplyCartOp(nil, CartOpAdd, CartItem{ProductName: "Classic Burger", Quantity: 1, UnitPrice: 8.5})
	if err != nil {
		t.Fatalf("add error = %v", err)
	}
	cart, err = ApplyCartOp(cart, CartOpAdd, CartItem{ProductName: "  classic   BURGER ", Quantity: 3, UnitPrice: 9})
	if err != nil {
		t.Fatalf("re-add error = %v", err)
	}

	if got := cart.Count(); got != 1 {
		t.Fatalf("Count() = %d, want 1", got)
	}
	if cart[0].ProductName != "Classic Burger" {
		t.Fatalf("product name = %q, want original casing kept", cart[0].ProductName)
	}
	if cart[0].Quantity != 3 || cart[0].UnitPrice != 9 {
		t.Fatalf("line = %+v, want qty 3 price 9", cart[0])
	}
}

func TestApplyCartOpAddIsIdempotent(t *testing.T) {
	t.Parallel()

	item := CartItem{ProductName: "Fries", Quantity: 2, UnitPrice: 3.25}
	once, _ := ApplyCartOp(nil, CartOpAdd, item)
	twice, _ := ApplyCartOp(once, CartOpAdd, item)

	if once.Total() != twice.Total() || once.Count() != twice.Count() {
		t.Fatalf("re-adding changed totals: %v/%d vs %v/%d", once.Total(), once.Count(), twice.Total(), twice.Count())
	}
}

func TestApplyCartOpAddRejectsInvalidItems(t *testing.T) {
	t.Parallel()

	cases := []CartItem{
		{ProductName: "  ", Quantity: 1, UnitPrice: 1},
		{ProductName: "Cola", Quantity: 0, UnitPrice: 1},
		{ProductName: "Cola", Quantity: 1, UnitPrice: -2},
	}
	for _, item := range cases {
		if _, err := ApplyCartOp(nil, CartOpAdd, item); !errors.Is(err, ErrInvalidCartItem) {
			t.Fatalf("ApplyCartOp(%+v) error = %v, want ErrInvalidCartItem", item, err)
		}
	}
}

func TestApplyCartOpUpdateToZeroRemoves(t *testing.T) {
	t.Parallel()

	cart := Cart{{ProductName: "Cola", Quantity: 2, UnitPrice: 2}, {ProductName: "Fries", Quantity: 1, UnitPrice: 3}}
	out, err := ApplyCartOp(cart, CartOpUpdate, CartItem{ProductName: "cola", Quantity: 0})
	if err != nil {
		t.Fatalf("update error = %v", err)
	}
	if out.Count() != 1 || out[0].ProductName != "Fries" {
		t.Fatalf("cart = %+v, want only Fries", out)
	}
	if cart.Count() != 2 {
		t.Fatalf("input cart was mutated: %+v", cart)
	}
}

func TestApplyCartOpRemoveUnknownItem(t *testing.T) {
	t.Parallel()

	cart := Cart{{ProductName: "Cola", Quantity: 2, UnitPrice: 2}}
	out, err := ApplyCartOp(cart, CartOpRemove, CartItem{ProductName: "Pizza"})
	if !errors.Is(err, ErrItemNotInCart) {
		t.Fatalf("remove error = %v, want ErrItemNotInCart", err)
	}
	if out.Count() != 1 {
		t.Fatalf("cart changed on failed remove: %+v", out)
	}
}

func TestApplyCartOpClearAndUnknownOp(t *testing.T) {
	t.Parallel()

	cart := Cart{{ProductName: "Cola", Quantity: 2, UnitPrice: 2}}
	out, err := ApplyCartOp(cart, CartOpClear, CartItem{})
	if err != nil || out.Count() != 0 {
		t.Fatalf("clear = %+v, %v", out, err)
	}
	if _, err := ApplyCartOp(cart, CartOp("explode"), CartItem{}); !errors.Is(err, ErrInvalidCartOp) {
		t.Fatalf("unknown op error = %v", err)
	}
}

func TestCartTotalIsExactToTwoDecimals(t *testing.T) {
	t.Parallel()

	cart := Cart{
		{ProductName: "A", Quantity: 3, UnitPrice: 0.1},
		{ProductName: "B", Quantity: 1, UnitPrice: 0.2},
	}
	if got := cart.Total(); got != 0.5 {
		t.Fatalf("Total() = %v, want 0.5", got)
	}
	if got := cart.Quantity(); got != 4 {
		t.Fatalf("Quantity() = %d, want 4", got)
	}
}

func TestMetadataMergeAndDiff(t *testing.T) {
	t.Parallel()

	base := Metadata{MetaGreeted: true, MetaPaymentMethod: "cash"}
	next := base.Merge(Metadata{MetaPaymentMethod: "card", MetaDeliveryType: DeliveryPickup, MetaGreeted: nil})

	if _, ok := next[MetaGreeted]; ok {
		t.Fatalf("nil patch value should delete key")
	}
	if base.String(MetaPaymentMethod) != "cash" {
		t.Fatalf("Merge mutated the receiver")
	}

	diff := next.Diff(base)
	if diff[MetaPaymentMethod] != "card" || diff[MetaDeliveryType] != DeliveryPickup {
		t.Fatalf("diff = %+v", diff)
	}
	if v, ok := diff[MetaGreeted]; !ok || v != nil {
		t.Fatalf("diff should carry nil for removed key, got %+v", diff)
	}
	if !next.DeliveryResolved() {
		t.Fatalf("pickup should resolve delivery")
	}
}

func TestMetadataDeliveryResolvedNeedsValidatedAddress(t *testing.T) {
	t.Parallel()

	meta := Metadata{MetaDeliveryType: DeliveryDelivery}
	if meta.DeliveryResolved() {
		t.Fatalf("delivery without validated address must not resolve")
	}
	meta[MetaAddressValidated] = true
	if !meta.DeliveryResolved() {
		t.Fatalf("delivery with validated address should resolve")
	}
}

func TestConversationApplyStateFreezesTerminalStates(t *testing.T) {
	t.Parallel()

	conv := NewConversation("c-1", fixedNow())
	conv.State = StateOrderPlaced

	err := conv.applyState(StateBuildingOrder, nil, fixedNow())
	if !errors.Is(err, ErrTerminalState) {
		t.Fatalf("applyState error = %v, want ErrTerminalState", err)
	}
	if err := conv.applyState("", Metadata{MetaLastOrderID: "o-1"}, fixedNow()); err != nil {
		t.Fatalf("metadata-only update on terminal state error = %v", err)
	}
	if conv.Metadata.String(MetaLastOrderID) != "o-1" {
		t.Fatalf("metadata patch not applied")
	}
}
