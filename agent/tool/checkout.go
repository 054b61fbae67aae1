package tool

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

// missingForCheckout lists what still blocks order creation, in the order it should be asked for.
func missingForCheckout(data *contractx.ContextualData) []string {
	var missing []string
	if data.Cart.Count() == 0 {
		missing = append(missing, "items")
	}
	if data.Metadata.String(statex.MetaDeliveryType) == "" {
		missing = append(missing, "delivery_type")
	} else if !data.Metadata.DeliveryResolved() {
		missing = append(missing, "delivery_address")
	}
	if data.Metadata.String(statex.MetaPaymentMethod) == "" {
		missing = append(missing, "payment_method")
	}
	return missing
}

func checkoutSummary(_ context.Context, env *Env, _ map[string]any) contractx.ToolResult {
	data := env.Context()
	if data.Cart.Count() == 0 {
		return contractx.FailedResult(ToolGetCheckoutSummary, contractx.CodeEmptyCart, "the order is empty")
	}
	missing := missingForCheckout(data)
	msg := "ready to place the order"
	if len(missing) > 0 {
		msg = fmt.Sprintf("still missing: %v", missing)
	}
	return contractx.ToolResult{
		Success: true,
		Message: msg,
		Data: map[string]any{
			"order":            viewCart(data.Cart, env.Catalog.Currency),
			"delivery_type":    data.Metadata.String(statex.MetaDeliveryType),
			"delivery_address": data.Metadata.String(statex.MetaDeliveryAddress),
			"payment_method":   data.Metadata.String(statex.MetaPaymentMethod),
			"missing":          missing,
		},
	}
}

func createOrder(ctx context.Context, env *Env, _ map[string]any) contractx.ToolResult {
	data := env.Context()
	switch {
	case data.Cart.Count() == 0:
		return contractx.FailedResult(ToolCreateOrder, contractx.CodeEmptyCart, "the order is empty")
	case !data.Metadata.DeliveryResolved():
		return contractx.FailedResult(ToolCreateOrder, contractx.CodeMissingDelivery, "pickup or a validated delivery address is required")
	case data.Metadata.String(statex.MetaPaymentMethod) == "":
		return contractx.FailedResult(ToolCreateOrder, contractx.CodeMissingPayment, "a payment method is required")
	}

	order := statex.Order{
		ID:             env.NewID(),
		ConversationID: env.Scope.ConversationID,
		Items:          append(statex.Cart(nil), data.Cart...),
		Total:          data.Cart.Total(),
		DeliveryType:   data.Metadata.String(statex.MetaDeliveryType),
		PaymentMethod:  data.Metadata.String(statex.MetaPaymentMethod),
		CreatedAt:      env.Now().UTC(),
	}
	if order.DeliveryType == statex.DeliveryDelivery {
		order.Address = data.Metadata.String(statex.MetaDeliveryAddress)
	}
	if err := env.Store.SaveOrder(ctx, order); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("conversation_id", order.ConversationID).Msg("save order failed")
		return contractx.FailedResult(ToolCreateOrder, contractx.CodeStoreError, "the order could not be placed")
	}

	result := contractx.ToolResult{
		Success: true,
		Message: fmt.Sprintf("order %s placed", order.ID),
		Data: map[string]any{
			"order_id":       order.ID,
			"order":          viewCart(order.Items, env.Catalog.Currency),
			"delivery_type":  order.DeliveryType,
			"address":        order.Address,
			"payment_method": order.PaymentMethod,
		},
		MetadataPatch: statex.Metadata{statex.MetaLastOrderID: order.ID},
	}

	// The order is committed; a failed clear leaves the cart for the next turn instead of failing the order.
	snapshot, _, ok := mutateCart(ctx, env, statex.CartOpClear, statex.CartItem{})
	if !ok {
		log.Ctx(ctx).Warn().Str("conversation_id", order.ConversationID).Msg("cart not cleared after order")
		return result
	}
	result.Cart = snapshot
	return result
}
