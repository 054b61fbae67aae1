package statemachine

import (
	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

// Rule moves a conversation from any state in From to To when Condition holds.
type Rule struct {
	Name      string
	From      []statex.ConversationState
	To        statex.ConversationState
	Priority  int
	Condition func(ConversationContext) bool
}

func (r Rule) applies(ctx ConversationContext) bool {
	for _, from := range r.From {
		if from == ctx.CurrentState {
			return r.Condition == nil || r.Condition(ctx)
		}
	}
	return false
}

// Heuristic is a fallback used when no rule matches, keyed on the tools that ran.
type Heuristic struct {
	Name    string
	Resolve func(ConversationContext) (statex.ConversationState, bool)
}

var nonTerminal = func() []statex.ConversationState {
	out := make([]statex.ConversationState, 0, len(statex.AllStates))
	for _, s := range statex.AllStates {
		if !s.IsTerminal() {
			out = append(out, s)
		}
	}
	return out
}()

func states(s ...statex.ConversationState) []statex.ConversationState { return s }

func lastIs(ctx ConversationContext, caps ...contractx.Capability) bool {
	for _, c := range caps {
		if ctx.LastCapabilityCalled == c {
			return true
		}
	}
	return false
}

// DefaultRules is the rule table, highest priority first.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:     "order_created",
			From:     nonTerminal,
			To:       statex.StateOrderPlaced,
			Priority: 100,
			Condition: func(ctx ConversationContext) bool {
				return ctx.Succeeded("create_order")
			},
		},
		{
			Name:     "abandoned",
			From:     nonTerminal,
			To:       statex.StateAbandoned,
			Priority: 95,
			Condition: func(ctx ConversationContext) bool {
				return ctx.Metadata.Bool(statex.MetaAbandoned)
			},
		},
		{
			Name:     "support_requested",
			From:     nonTerminal,
			To:       statex.StateAskingSupport,
			Priority: 90,
			Condition: func(ctx ConversationContext) bool {
				return ctx.Succeeded("request_human_handoff") || lastIs(ctx, contractx.CapabilitySupport)
			},
		},
		{
			Name:     "checkout_ready_to_confirm",
			From:     states(statex.StateBuildingOrder, statex.StateReadyToCheckout, statex.StateCollectingAddress, statex.StateCollectingPayment),
			To:       statex.StateConfirmingOrder,
			Priority: 80,
			Condition: func(ctx ConversationContext) bool {
				return lastIs(ctx, contractx.CapabilityCheckout) && !ctx.CartEmpty() &&
					ctx.DeliveryResolved() && ctx.HasPaymentMethod
			},
		},
		{
			Name:     "checkout_needs_payment",
			From:     states(statex.StateBuildingOrder, statex.StateReadyToCheckout, statex.StateCollectingAddress),
			To:       statex.StateCollectingPayment,
			Priority: 75,
			Condition: func(ctx ConversationContext) bool {
				return lastIs(ctx, contractx.CapabilityCheckout, contractx.CapabilityLogistics) && !ctx.CartEmpty() &&
					ctx.DeliveryResolved() && !ctx.HasPaymentMethod
			},
		},
		{
			Name:     "checkout_needs_address",
			From:     states(statex.StateBuildingOrder, statex.StateReadyToCheckout),
			To:       statex.StateCollectingAddress,
			Priority: 70,
			Condition: func(ctx ConversationContext) bool {
				return lastIs(ctx, contractx.CapabilityCheckout) && !ctx.CartEmpty() && !ctx.DeliveryResolved()
			},
		},
		{
			Name:     "payment_collected",
			From:     states(statex.StateCollectingPayment),
			To:       statex.StateConfirmingOrder,
			Priority: 65,
			Condition: func(ctx ConversationContext) bool {
				return ctx.HasPaymentMethod && ctx.DeliveryResolved() && !ctx.CartEmpty()
			},
		},
		{
			Name:     "menu_shown",
			From:     states(statex.StateGreeting, statex.StateDiscovery),
			To:       statex.StateBrowsingMenu,
			Priority: 60,
			Condition: func(ctx ConversationContext) bool {
				return lastIs(ctx, contractx.CapabilityMenu) && ctx.CartEmpty()
			},
		},
		{
			Name:     "order_reviewed",
			From:     states(statex.StateBuildingOrder),
			To:       statex.StateReadyToCheckout,
			Priority: 55,
			Condition: func(ctx ConversationContext) bool {
				return ctx.Succeeded("get_order_summary") && !ctx.CartEmpty()
			},
		},
		{
			Name: "cart_started",
			From: states(statex.StateGreeting, statex.StateDiscovery, statex.StateBrowsingMenu,
				statex.StateSelectingProducts, statex.StateAskingSupport),
			To:       statex.StateBuildingOrder,
			Priority: 50,
			Condition: func(ctx ConversationContext) bool {
				return !ctx.CartEmpty()
			},
		},
		{
			Name:     "product_checked",
			From:     states(statex.StateBrowsingMenu),
			To:       statex.StateSelectingProducts,
			Priority: 45,
			Condition: func(ctx ConversationContext) bool {
				return ctx.Succeeded("check_product_availability") && ctx.CartEmpty() &&
					lastIs(ctx, contractx.CapabilitySales)
			},
		},
		{
			Name:     "cart_emptied",
			From:     states(statex.StateBuildingOrder, statex.StateReadyToCheckout),
			To:       statex.StateBrowsingMenu,
			Priority: 40,
			Condition: func(ctx ConversationContext) bool {
				return ctx.CartEmpty()
			},
		},
		{
			Name:     "greeted",
			From:     states(statex.StateGreeting),
			To:       statex.StateDiscovery,
			Priority: 30,
			Condition: func(ctx ConversationContext) bool {
				return lastIs(ctx, contractx.CapabilityGreeting)
			},
		},
	}
}

// DefaultHeuristics is the fallback list, checked in order.
func DefaultHeuristics() []Heuristic {
	return []Heuristic{
		{
			Name: "add_item_to_order",
			Resolve: func(ctx ConversationContext) (statex.ConversationState, bool) {
				return statex.StateBuildingOrder, ctx.Succeeded("add_item_to_order")
			},
		},
		{
			Name: "create_order",
			Resolve: func(ctx ConversationContext) (statex.ConversationState, bool) {
				return statex.StateOrderPlaced, ctx.Succeeded("create_order")
			},
		},
		{
			Name: "validate_delivery_address",
			Resolve: func(ctx ConversationContext) (statex.ConversationState, bool) {
				return statex.StateCollectingPayment, ctx.AddressMarkedValid()
			},
		},
		{
			Name: "check_product_availability",
			Resolve: func(ctx ConversationContext) (statex.ConversationState, bool) {
				if !ctx.Succeeded("check_product_availability") {
					return "", false
				}
				if ctx.CartEmpty() {
					return statex.StateBrowsingMenu, true
				}
				return statex.StateBuildingOrder, true
			},
		},
		{
			Name: "send_menu_link",
			Resolve: func(ctx ConversationContext) (statex.ConversationState, bool) {
				return statex.StateBrowsingMenu, ctx.Succeeded("send_menu_link")
			},
		},
	}
}
