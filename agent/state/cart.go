package state

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/cases"
)

var (
	ErrInvalidCartItem = errors.New("invalid cart item")
	ErrItemNotInCart   = errors.New("item is not in cart")
	ErrInvalidCartOp   = errors.New("invalid cart operation")
)

type CartOp string

const (
	CartOpAdd    CartOp = "add"
	CartOpRemove CartOp = "remove"
	CartOpUpdate CartOp = "update"
	CartOpClear  CartOp = "clear"
)

type CartItem struct {
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Notes       string  `json:"notes,omitempty"`
}

// Key is the product identity used to de-duplicate line items.
func (i CartItem) Key() string {
	return IdentityKey(i.ProductName)
}

func (i CartItem) Validate() error {
	if i.Key() == "" {
		return fmt.Errorf("%w: product name is empty", ErrInvalidCartItem)
	}
	if i.Quantity <= 0 {
		return fmt.Errorf("%w: quantity must be > 0 for %q", ErrInvalidCartItem, i.ProductName)
	}
	if i.UnitPrice < 0 || math.IsNaN(i.UnitPrice) || math.IsInf(i.UnitPrice, 0) {
		return fmt.Errorf("%w: unit price must be >= 0 for %q", ErrInvalidCartItem, i.ProductName)
	}
	return nil
}

// LineTotal is quantity x unit price at minor-unit precision.
func (i CartItem) LineTotal() float64 {
	return float64(int64(i.Quantity)*minorUnits(i.UnitPrice)) / 100
}

// Cart is an ordered list of line items with unique identity keys.
type Cart []CartItem

type CartTotals struct {
	Total float64 `json:"total"`
	Count int     `json:"count"`
}

// Count is the number of line items.
func (c Cart) Count() int {
	return len(c)
}

// Quantity is the number of units across all lines.
func (c Cart) Quantity() int {
	n := 0
	for _, item := range c {
		n += item.Quantity
	}
	return n
}

// Total sums quantity x unit price in minor units, so it is exact to two decimals.
func (c Cart) Total() float64 {
	var cents int64
	for _, item := range c {
		cents += int64(item.Quantity) * minorUnits(item.UnitPrice)
	}
	return float64(cents) / 100
}

func (c Cart) Find(name string) (int, bool) {
	key := IdentityKey(name)
	if key == "" {
		return -1, false
	}
	for idx, item := range c {
		if item.Key() == key {
			return idx, true
		}
	}
	return -1, false
}

// ApplyCartOp is the one definition of cart mutation semantics shared by every store backend.
// Re-adding a product with the same identity key replaces its quantity and price in place.
func ApplyCartOp(cart Cart, op CartOp, item CartItem) (Cart, error) {
	out := append(Cart(nil), cart...)

	switch op {
	case CartOpAdd:
		item.ProductName = strings.TrimSpace(item.ProductName)
		if err := item.Validate(); err != nil {
			return cart, err
		}
		if idx, ok := out.Find(item.ProductName); ok {
			out[idx].Quantity = item.Quantity
			out[idx].UnitPrice = item.UnitPrice
			if strings.TrimSpace(item.Notes) != "" {
				out[idx].Notes = strings.TrimSpace(item.Notes)
			}
			return out, nil
		}
		item.Notes = strings.TrimSpace(item.Notes)
		return append(out, item), nil

	case CartOpUpdate:
		idx, ok := out.Find(item.ProductName)
		if !ok {
			return cart, fmt.Errorf("%w: %q", ErrItemNotInCart, item.ProductName)
		}
		if item.Quantity <= 0 {
			return append(out[:idx], out[idx+1:]...), nil
		}
		out[idx].Quantity = item.Quantity
		return out, nil

	case CartOpRemove:
		idx, ok := out.Find(item.ProductName)
		if !ok {
			return cart, fmt.Errorf("%w: %q", ErrItemNotInCart, item.ProductName)
		}
		return append(out[:idx], out[idx+1:]...), nil

	case CartOpClear:
		return Cart{}, nil

	default:
		return cart, fmt.Errorf("%w: %q", ErrInvalidCartOp, op)
	}
}

// IdentityKey case-folds and collapses whitespace so "Classic  Burger" and "classic burger" match.
func IdentityKey(name string) string {
	collapsed := strings.Join(strings.Fields(name), " ")
	if collapsed == "" {
		return ""
	}
	return cases.Fold().String(collapsed)
}

func minorUnits(price float64) int64 {
	return int64(math.Round(price * 100))
}
