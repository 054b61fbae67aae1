package statemachine

import (
	"slices"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

// ConversationContext is the state machine input, rebuilt every turn and never persisted verbatim.
type ConversationContext struct {
	CurrentState         statex.ConversationState `json:"current_state"`
	CartItemCount        int                      `json:"cart_item_count"`
	CartTotal            float64                  `json:"cart_total"`
	HasAddress           bool                     `json:"has_address"`
	HasPaymentMethod     bool                     `json:"has_payment_method"`
	LastCapabilityCalled contractx.Capability     `json:"last_capability_called,omitempty"`
	ToolsExecuted        []string                 `json:"tools_executed,omitempty"`
	ToolResults          []contractx.ToolResult   `json:"tool_results,omitempty"`
	Metadata             statex.Metadata          `json:"metadata,omitempty"`
}

// NewContext derives the state machine input from the turn's working data.
func NewContext(data contractx.ContextualData, last contractx.Capability, results []contractx.ToolResult) ConversationContext {
	tools := make([]string, 0, len(results))
	for _, r := range results {
		tools = append(tools, r.Tool)
	}
	meta := data.Metadata.Clone()
	return ConversationContext{
		CurrentState:         data.State,
		CartItemCount:        data.Cart.Count(),
		CartTotal:            data.Cart.Total(),
		HasAddress:           meta.Bool(statex.MetaAddressValidated) && meta.String(statex.MetaDeliveryAddress) != "",
		HasPaymentMethod:     meta.String(statex.MetaPaymentMethod) != "",
		LastCapabilityCalled: last,
		ToolsExecuted:        tools,
		ToolResults:          slices.Clone(results),
		Metadata:             meta,
	}
}

// Succeeded reports whether the named tool ran successfully this turn.
func (c ConversationContext) Succeeded(tool string) bool {
	for _, r := range c.ToolResults {
		if r.Tool == tool && r.Success {
			return true
		}
	}
	return false
}

func (c ConversationContext) DeliveryResolved() bool {
	return c.Metadata.DeliveryResolved()
}

func (c ConversationContext) CartEmpty() bool {
	return c.CartItemCount == 0
}

// AddressMarkedValid reports whether address validation this turn actually accepted the address.
func (c ConversationContext) AddressMarkedValid() bool {
	for _, r := range c.ToolResults {
		if r.Tool == "validate_delivery_address" && r.Success && r.MetadataPatch.Bool(statex.MetaAddressValidated) {
			return true
		}
	}
	return false
}
