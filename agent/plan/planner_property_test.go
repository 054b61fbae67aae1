//go:build property
// +build property

package plan

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

func genIntents() gopter.Gen {
	types := make([]any, 0, len(contractx.AllIntentTypes))
	for _, t := range contractx.AllIntentTypes {
		types = append(types, t)
	}
	one := gopter.CombineGens(
		gen.OneConstOf(types...),
		gen.IntRange(0, 5),
		gen.Bool(),
	).Map(func(v []any) contractx.Intent {
		in := contractx.Intent{Type: v[0].(contractx.IntentType), Priority: v[1].(int), Confidence: 0.8}
		if v[2].(bool) {
			in.ExtractedData = map[string]any{
				contractx.DataDeliveryType: "delivery",
				contractx.DataAddress:      "12 Sukhumvit Road",
			}
		}
		return in
	})
	return gen.SliceOf(one).SuchThat(func(v []contractx.Intent) bool { return len(v) > 0 })
}

func genPlanContext() gopter.Gen {
	states := make([]any, 0, len(statex.AllStates))
	for _, s := range statex.AllStates {
		states = append(states, s)
	}
	return gopter.CombineGens(
		gen.OneConstOf(states...),
		gen.IntRange(0, 3),
		gen.Bool(),
	).Map(func(v []any) PlanContext {
		return PlanContext{
			State:     v[0].(statex.ConversationState),
			CartCount: v[1].(int),
			Metadata:  statex.Metadata{statex.MetaGreeted: v[2].(bool)},
		}
	})
}

// TestPlanIsNonEmptyAndAcyclic checks every non-empty intent list plans at least one step
// and the dependency graph always sorts.
func TestPlanIsNonEmptyAndAcyclic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	properties.Property("plan has steps and no cycle", prop.ForAll(
		func(intents []contractx.Intent, pc PlanContext) bool {
			steps := Build(intents, pc)
			return len(steps) > 0 && Validate(steps) == nil
		},
		genIntents(), genPlanContext(),
	))

	properties.Property("empty cart never plans a checkout step", prop.ForAll(
		func(intents []contractx.Intent, pc PlanContext) bool {
			pc.CartCount = 0
			for _, s := range Build(intents, pc) {
				if s.Capability == contractx.CapabilityCheckout {
					return false
				}
			}
			return true
		},
		genIntents(), genPlanContext(),
	))

	properties.TestingRun(t)
}
