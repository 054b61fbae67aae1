package plan

import (
	"fmt"
	"maps"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

// PlanContext is the conversation view the planner decides on.
type PlanContext struct {
	State     statex.ConversationState
	CartCount int
	Metadata  statex.Metadata
}

func (pc PlanContext) greeted() bool {
	return pc.Metadata.Bool(statex.MetaGreeted) || (pc.State != "" && pc.State != statex.StateGreeting)
}

type builder struct {
	pc    PlanContext
	steps []contractx.ExecutionStep
}

func (b *builder) add(c contractx.Capability, action string, params map[string]any, parallel bool, deps ...string) string {
	id := fmt.Sprintf("step_%d", len(b.steps)+1)
	b.steps = append(b.steps, contractx.ExecutionStep{
		StepID:           id,
		Capability:       c,
		Action:           action,
		Parameters:       params,
		Dependencies:     deps,
		CanRunInParallel: parallel,
	})
	return id
}

func (b *builder) has(c contractx.Capability, action string) bool {
	for _, s := range b.steps {
		if s.Capability == c && s.Action == action {
			return true
		}
	}
	return false
}

func (b *builder) ids() []string {
	out := make([]string, 0, len(b.steps))
	for _, s := range b.steps {
		out = append(out, s.StepID)
	}
	return out
}

// Build maps intents, consumed in ascending priority, onto an acyclic step list.
// An empty or unplannable intent list yields the contextual fallback step.
func Build(intents []contractx.Intent, pc PlanContext) []contractx.ExecutionStep {
	b := &builder{pc: pc}
	for _, in := range contractx.SortIntents(intents) {
		b.plan(in)
	}
	if len(b.steps) == 0 {
		b.fallback()
	}
	return b.steps
}

func (b *builder) plan(in contractx.Intent) {
	data := in.ExtractedData
	switch in.Type {
	case contractx.IntentGreeting:
		switch {
		case !b.pc.greeted():
			if !b.has(contractx.CapabilityMenu, contractx.ActionGreetAndShowMenu) {
				b.add(contractx.CapabilityMenu, contractx.ActionGreetAndShowMenu, nil, false)
			}
		case !b.has(contractx.CapabilityGreeting, contractx.ActionConverse):
			b.add(contractx.CapabilityGreeting, contractx.ActionConverse, pick(data, contractx.DataCustomerName), false)
		}

	case contractx.IntentMenu:
		if !b.has(contractx.CapabilityMenu, contractx.ActionShowMenu) {
			b.add(contractx.CapabilityMenu, contractx.ActionShowMenu, pick(data, contractx.DataCategory, contractx.DataProductName), true)
		}

	case contractx.IntentOrder:
		b.add(contractx.CapabilitySales, contractx.ActionProcessOrder, maps.Clone(data), false)

	case contractx.IntentLogistics:
		deliveryType, _ := data[contractx.DataDeliveryType].(string)
		address, _ := data[contractx.DataAddress].(string)
		if deliveryType == "" && address != "" {
			deliveryType = statex.DeliveryDelivery
		}
		var params map[string]any
		if deliveryType != "" {
			params = map[string]any{contractx.DataDeliveryType: deliveryType}
		}
		deliveryStep := b.add(contractx.CapabilityLogistics, contractx.ActionSetDeliveryType, params, true)
		if address != "" {
			b.add(contractx.CapabilityLogistics, contractx.ActionSetAddress,
				map[string]any{contractx.DataAddress: address}, false, deliveryStep)
		}

	case contractx.IntentPayment:
		b.add(contractx.CapabilityLogistics, contractx.ActionSetPayment, pick(data, contractx.DataPaymentMethod), true)

	case contractx.IntentCheckout:
		if b.pc.CartCount == 0 {
			b.add(contractx.CapabilitySales, contractx.ActionHandleEmptyCart, nil, false)
			return
		}
		b.add(contractx.CapabilityCheckout, contractx.ActionFinalizeOrder, nil, false, b.ids()...)

	case contractx.IntentSupport:
		params := pick(data, contractx.DataQuestion)
		b.add(contractx.CapabilitySupport, contractx.ActionAnswerQuestion, params, true)

	default:
		b.fallback()
	}
}

// fallback greets a new conversation, shows the menu to an empty cart, or asks sales to clarify.
func (b *builder) fallback() {
	switch {
	case !b.pc.greeted():
		if !b.has(contractx.CapabilityMenu, contractx.ActionGreetAndShowMenu) {
			b.add(contractx.CapabilityMenu, contractx.ActionGreetAndShowMenu, nil, false)
		}
	case b.pc.CartCount == 0:
		if !b.has(contractx.CapabilityMenu, contractx.ActionShowMenu) {
			b.add(contractx.CapabilityMenu, contractx.ActionShowMenu, nil, true)
		}
	default:
		if !b.has(contractx.CapabilitySales, contractx.ActionClarify) {
			b.add(contractx.CapabilitySales, contractx.ActionClarify, nil, false)
		}
	}
}

func pick(data map[string]any, keys ...string) map[string]any {
	var out map[string]any
	for _, k := range keys {
		v, ok := data[k]
		if !ok || v == nil {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(keys))
		}
		out[k] = v
	}
	return out
}
