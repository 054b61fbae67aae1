package tool

import (
	"context"
	"errors"
	"fmt"

	"github.com/tanpawarit/chative-commerce/agent/catalog"
	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

type LineView struct {
	ProductName string  `json:"product_name"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	LineTotal   float64 `json:"line_total"`
	Notes       string  `json:"notes,omitempty"`
}

type CartView struct {
	Items    []LineView `json:"items"`
	Total    float64    `json:"total"`
	Count    int        `json:"count"`
	Currency string     `json:"currency"`
}

func viewCart(cart statex.Cart, currency string) CartView {
	items := make([]LineView, 0, len(cart))
	for _, item := range cart {
		items = append(items, LineView{
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			LineTotal:   item.LineTotal(),
			Notes:       item.Notes,
		})
	}
	return CartView{Items: items, Total: cart.Total(), Count: cart.Count(), Currency: currency}
}

// mutateCart runs one atomic cart operation and mirrors it onto the turn context.
func mutateCart(ctx context.Context, env *Env, op statex.CartOp, item statex.CartItem) (*contractx.CartSnapshot, contractx.ToolResult, bool) {
	totals, err := env.Store.AtomicUpdateCart(ctx, env.Scope.ConversationID, op, item)
	if err != nil {
		switch {
		case errors.Is(err, statex.ErrItemNotInCart):
			return nil, contractx.FailedResult("", contractx.CodeItemNotInCart,
				fmt.Sprintf("%s is not in the order", item.ProductName)), false
		case errors.Is(err, statex.ErrInvalidCartItem):
			return nil, contractx.FailedResult("", contractx.CodeInvalidArgument, err.Error()), false
		default:
			return nil, contractx.FailedResult("", contractx.CodeStoreError, "the order could not be updated"), false
		}
	}

	items, err := statex.ApplyCartOp(env.Context().Cart, op, item)
	if err != nil {
		items = env.Context().Cart
	}
	return &contractx.CartSnapshot{Items: items, Total: totals.Total, Count: totals.Count}, contractx.ToolResult{}, true
}

// resolveName maps a customer phrase onto the canonical catalog name when possible.
func resolveName(env *Env, name string) string {
	if p, err := env.Catalog.Lookup(name); err == nil {
		return p.Name
	}
	return name
}

func addItem(ctx context.Context, env *Env, args map[string]any) contractx.ToolResult {
	name, err := stringArg(args, "product_name", true)
	if err != nil {
		return invalidArg(ToolAddItem, err)
	}
	qty, err := intArg(args, "quantity", 1, false)
	if err != nil {
		return invalidArg(ToolAddItem, err)
	}
	if qty <= 0 {
		return contractx.FailedResult(ToolAddItem, contractx.CodeInvalidArgument, "quantity must be at least 1")
	}
	notes, _ := stringArg(args, "notes", false)

	product, err := env.Catalog.Lookup(name)
	if err != nil {
		return contractx.FailedResult(ToolAddItem, contractx.CodeProductNotFound,
			fmt.Sprintf("%q is not on the menu", name))
	}
	if !product.InStock() {
		return contractx.FailedResult(ToolAddItem, contractx.CodeProductUnavailable,
			fmt.Sprintf("%s is not available right now", product.Name))
	}

	item := statex.CartItem{ProductName: product.Name, Quantity: qty, UnitPrice: product.Price, Notes: notes}
	snapshot, failed, ok := mutateCart(ctx, env, statex.CartOpAdd, item)
	if !ok {
		return failed
	}
	return contractx.ToolResult{
		Success: true,
		Message: fmt.Sprintf("%d x %s in the order", qty, product.Name),
		Data: map[string]any{
			"product_name": product.Name,
			"quantity":     qty,
			"unit_price":   product.Price,
			"line_total":   item.LineTotal(),
			"cart_total":   snapshot.Total,
			"cart_count":   snapshot.Count,
			"currency":     env.Catalog.Currency,
		},
		Cart: snapshot,
	}
}

func removeItem(ctx context.Context, env *Env, args map[string]any) contractx.ToolResult {
	name, err := stringArg(args, "product_name", true)
	if err != nil {
		return invalidArg(ToolRemoveItem, err)
	}
	item := statex.CartItem{ProductName: resolveName(env, name)}
	snapshot, failed, ok := mutateCart(ctx, env, statex.CartOpRemove, item)
	if !ok {
		return failed
	}
	return contractx.ToolResult{
		Success: true,
		Message: fmt.Sprintf("%s removed", item.ProductName),
		Data:    viewCart(snapshot.Items, env.Catalog.Currency),
		Cart:    snapshot,
	}
}

func updateQuantity(ctx context.Context, env *Env, args map[string]any) contractx.ToolResult {
	name, err := stringArg(args, "product_name", true)
	if err != nil {
		return invalidArg(ToolUpdateQuantity, err)
	}
	qty, err := intArg(args, "quantity", 0, true)
	if err != nil {
		return invalidArg(ToolUpdateQuantity, err)
	}
	item := statex.CartItem{ProductName: resolveName(env, name), Quantity: qty}
	snapshot, failed, ok := mutateCart(ctx, env, statex.CartOpUpdate, item)
	if !ok {
		return failed
	}
	msg := fmt.Sprintf("%s quantity set to %d", item.ProductName, qty)
	if qty <= 0 {
		msg = fmt.Sprintf("%s removed", item.ProductName)
	}
	return contractx.ToolResult{
		Success: true,
		Message: msg,
		Data:    viewCart(snapshot.Items, env.Catalog.Currency),
		Cart:    snapshot,
	}
}

func clearOrder(ctx context.Context, env *Env, _ map[string]any) contractx.ToolResult {
	snapshot, failed, ok := mutateCart(ctx, env, statex.CartOpClear, statex.CartItem{})
	if !ok {
		return failed
	}
	return contractx.ToolResult{
		Success: true,
		Message: "order cleared",
		Data:    viewCart(nil, env.Catalog.Currency),
		Cart:    snapshot,
	}
}

func orderSummary(_ context.Context, env *Env, _ map[string]any) contractx.ToolResult {
	view := viewCart(env.Context().Cart, env.Catalog.Currency)
	msg := fmt.Sprintf("%d line(s), total %.2f %s", view.Count, view.Total, view.Currency)
	if view.Count == 0 {
		msg = "the order is empty"
	}
	return contractx.ToolResult{Success: true, Message: msg, Data: view}
}

type addonView struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Category string  `json:"category"`
}

func suggestAddon(_ context.Context, env *Env, _ map[string]any) contractx.ToolResult {
	cart := env.Context().Cart
	if cart.Count() == 0 {
		return contractx.FailedResult(ToolSuggestAddon, contractx.CodeEmptyCart, "nothing in the order to pair with")
	}

	attempts := env.Context().Metadata.Int(statex.MetaUpsellAttempts)
	if attempts >= statex.MaxUpsellAttempts {
		return contractx.FailedResult(ToolSuggestAddon, contractx.CodeUpsellLimit, "add-ons were already offered enough times")
	}
	suggestions := toAddonViews(env.Catalog.AddonSuggestions(cart))
	if len(suggestions) == 0 {
		return contractx.ToolResult{
			Success: true,
			Message: "no add-ons to suggest",
			Data:    map[string]any{"suggestions": suggestions, "upsell_attempts": attempts},
		}
	}
	attempts++
	return contractx.ToolResult{
		Success:       true,
		Message:       fmt.Sprintf("%d add-on(s) available", len(suggestions)),
		Data:          map[string]any{"suggestions": suggestions, "upsell_attempts": attempts},
		MetadataPatch: statex.Metadata{statex.MetaUpsellAttempts: attempts},
	}
}

func toAddonViews(products []catalog.Product) []addonView {
	out := make([]addonView, 0, len(products))
	for _, p := range products {
		out = append(out, addonView{Name: p.Name, Price: p.Price, Category: p.Category})
	}
	return out
}
