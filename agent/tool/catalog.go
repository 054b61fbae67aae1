package tool

import (
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
)

const (
	ToolAddItem             = "add_item_to_order"
	ToolRemoveItem          = "remove_item_from_order"
	ToolUpdateQuantity      = "update_item_quantity"
	ToolClearOrder          = "clear_order"
	ToolGetOrderSummary     = "get_order_summary"
	ToolSuggestAddon        = "suggest_addon"
	ToolGetMenu             = "get_menu"
	ToolSendMenuLink        = "send_menu_link"
	ToolCheckAvailability   = "check_product_availability"
	ToolGetCheckoutSummary  = "get_checkout_summary"
	ToolCreateOrder         = "create_order"
	ToolSetDeliveryType     = "set_delivery_type"
	ToolValidateAddress     = "validate_delivery_address"
	ToolSetPaymentMethod    = "set_payment_method"
	ToolSearchFAQ           = "search_faq"
	ToolRequestHumanHandoff = "request_human_handoff"
)

// Definition binds one tool schema to its owning capability and handler.
type Definition struct {
	Info        *schema.ToolInfo
	Capability  contractx.Capability
	Handler     Handler
	MutatesCart bool
}

func params(p map[string]*schema.ParameterInfo) *schema.ParamsOneOf {
	if len(p) == 0 {
		return nil
	}
	return schema.NewParamsOneOfByParams(p)
}

// Definitions is the static dispatch table. Each tool belongs to exactly one capability.
func Definitions() []Definition {
	return []Definition{
		{
			Capability:  contractx.CapabilitySales,
			Handler:     addItem,
			MutatesCart: true,
			Info: &schema.ToolInfo{
				Name: ToolAddItem,
				Desc: "Add a menu product to the customer's order. Re-adding a product sets its quantity.",
				ParamsOneOf: params(map[string]*schema.ParameterInfo{
					"product_name": {Type: schema.String, Desc: "Product name as the customer said it", Required: true},
					"quantity":     {Type: schema.Integer, Desc: "Number of units, defaults to 1"},
					"notes":        {Type: schema.String, Desc: "Preparation notes, e.g. no onions"},
				}),
			},
		},
		{
			Capability:  contractx.CapabilitySales,
			Handler:     removeItem,
			MutatesCart: true,
			Info: &schema.ToolInfo{
				Name: ToolRemoveItem,
				Desc: "Remove a product line from the order.",
				ParamsOneOf: params(map[string]*schema.ParameterInfo{
					"product_name": {Type: schema.String, Desc: "Product to remove", Required: true},
				}),
			},
		},
		{
			Capability:  contractx.CapabilitySales,
			Handler:     updateQuantity,
			MutatesCart: true,
			Info: &schema.ToolInfo{
				Name: ToolUpdateQuantity,
				Desc: "Change the quantity of a product already in the order. Zero removes it.",
				ParamsOneOf: params(map[string]*schema.ParameterInfo{
					"product_name": {Type: schema.String, Desc: "Product to change", Required: true},
					"quantity":     {Type: schema.Integer, Desc: "New quantity", Required: true},
				}),
			},
		},
		{
			Capability:  contractx.CapabilitySales,
			Handler:     clearOrder,
			MutatesCart: true,
			Info: &schema.ToolInfo{
				Name: ToolClearOrder,
				Desc: "Empty the order when the customer wants to start over.",
			},
		},
		{
			Capability: contractx.CapabilitySales,
			Handler:    orderSummary,
			Info: &schema.ToolInfo{
				Name: ToolGetOrderSummary,
				Desc: "Read the current order lines and total.",
			},
		},
		{
			Capability: contractx.CapabilitySales,
			Handler:    suggestAddon,
			Info: &schema.ToolInfo{
				Name: ToolSuggestAddon,
				Desc: "Get add-on suggestions that go with the current order.",
			},
		},
		{
			Capability: contractx.CapabilityMenu,
			Handler:    getMenu,
			Info: &schema.ToolInfo{
				Name: ToolGetMenu,
				Desc: "List menu products with prices, optionally for one category.",
				ParamsOneOf: params(map[string]*schema.ParameterInfo{
					"category": {Type: schema.String, Desc: "Menu category such as burgers, pizza, sides, drinks"},
				}),
			},
		},
		{
			Capability: contractx.CapabilityMenu,
			Handler:    sendMenuLink,
			Info: &schema.ToolInfo{
				Name: ToolSendMenuLink,
				Desc: "Get the link to the full online menu.",
			},
		},
		{
			Capability: contractx.CapabilityMenu,
			Handler:    checkAvailability,
			Info: &schema.ToolInfo{
				Name: ToolCheckAvailability,
				Desc: "Check whether a product exists, its price and whether it is available today.",
				ParamsOneOf: params(map[string]*schema.ParameterInfo{
					"product_name": {Type: schema.String, Desc: "Product to check", Required: true},
				}),
			},
		},
		{
			Capability: contractx.CapabilityCheckout,
			Handler:    checkoutSummary,
			Info: &schema.ToolInfo{
				Name: ToolGetCheckoutSummary,
				Desc: "Read the order, delivery and payment details and what is still missing before the order can be placed.",
			},
		},
		{
			Capability:  contractx.CapabilityCheckout,
			Handler:     createOrder,
			MutatesCart: true,
			Info: &schema.ToolInfo{
				Name: ToolCreateOrder,
				Desc: "Place the order. Only call after the customer explicitly confirmed the summary.",
			},
		},
		{
			Capability: contractx.CapabilityLogistics,
			Handler:    setDeliveryType,
			Info: &schema.ToolInfo{
				Name: ToolSetDeliveryType,
				Desc: "Record whether the customer picks up or wants delivery.",
				ParamsOneOf: params(map[string]*schema.ParameterInfo{
					"delivery_type": {Type: schema.String, Desc: "pickup or delivery", Enum: []string{"pickup", "delivery"}, Required: true},
				}),
			},
		},
		{
			Capability: contractx.CapabilityLogistics,
			Handler:    validateAddress,
			Info: &schema.ToolInfo{
				Name: ToolValidateAddress,
				Desc: "Validate and record the delivery address.",
				ParamsOneOf: params(map[string]*schema.ParameterInfo{
					"address": {Type: schema.String, Desc: "Full delivery address", Required: true},
				}),
			},
		},
		{
			Capability: contractx.CapabilityLogistics,
			Handler:    setPaymentMethod,
			Info: &schema.ToolInfo{
				Name: ToolSetPaymentMethod,
				Desc: "Record how the customer will pay.",
				ParamsOneOf: params(map[string]*schema.ParameterInfo{
					"payment_method": {Type: schema.String, Desc: "cash, card, transfer or qr", Enum: []string{"cash", "card", "transfer", "qr"}, Required: true},
				}),
			},
		},
		{
			Capability: contractx.CapabilitySupport,
			Handler:    searchFAQ,
			Info: &schema.ToolInfo{
				Name: ToolSearchFAQ,
				Desc: "Search store FAQ answers (hours, delivery area, payment, dietary options).",
				ParamsOneOf: params(map[string]*schema.ParameterInfo{
					"query": {Type: schema.String, Desc: "Customer question", Required: true},
				}),
			},
		},
		{
			Capability: contractx.CapabilitySupport,
			Handler:    requestHumanHandoff,
			Info: &schema.ToolInfo{
				Name: ToolRequestHumanHandoff,
				Desc: "Hand the conversation to a human agent.",
				ParamsOneOf: params(map[string]*schema.ParameterInfo{
					"reason": {Type: schema.String, Desc: "Why a human is needed", Required: true},
				}),
			},
		},
	}
}

// InfosFor returns the tool schemas a capability may bind to its model.
func InfosFor(capability contractx.Capability) []*schema.ToolInfo {
	var out []*schema.ToolInfo
	for _, d := range Definitions() {
		if d.Capability == capability {
			out = append(out, d.Info)
		}
	}
	return out
}

// NamesFor returns the tool names owned by capability.
func NamesFor(capability contractx.Capability) []string {
	var out []string
	for _, d := range Definitions() {
		if d.Capability == capability {
			out = append(out, d.Info.Name)
		}
	}
	return out
}
