package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	"github.com/tanpawarit/chative-commerce/agent/plan"
	"github.com/tanpawarit/chative-commerce/agent/response"
	"github.com/tanpawarit/chative-commerce/agent/statemachine"
)

func ExecutePlan(ctx context.Context, in *GraphState, exec *plan.Executor) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	res, err := exec.Execute(ctx, in.Steps, plan.Input{
		UserMessage: in.Message,
		History:     in.History,
		Context:     in.Context,
	})
	if err != nil {
		return nil, fmt.Errorf("execute plan: %w", err)
	}

	in.Outputs = res.Outputs
	in.ToolResults = res.ToolResults
	in.Context = res.Context
	in.LastCapability = res.LastCapability
	return in, nil
}

// AdvanceState evaluates the state machine once over everything the turn did.
func AdvanceState(ctx context.Context, in *GraphState, machine *statemachine.Machine) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	decision := machine.Evaluate(statemachine.NewContext(in.Context, in.LastCapability, in.ToolResults))
	in.Decisions = append(in.Decisions, decision)
	if decision.Changed() {
		log.Ctx(ctx).Info().
			Str("conversation_id", in.ConversationID).
			Str("state_from", string(decision.From)).
			Str("state_to", string(decision.To)).
			Str("rule", decision.Rule).
			Msg("state transition")
		in.Context.State = decision.To
	}
	return in, nil
}

func RunAgentLoop(ctx context.Context, in *GraphState, loop *plan.Loop) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	res, err := loop.Run(ctx, plan.LoopInput{
		Input: plan.Input{
			UserMessage: in.Message,
			History:     in.History,
			Context:     in.Context,
		},
		Plan: in.Steps,
	})
	if err != nil {
		return nil, fmt.Errorf("run agent loop: %w", err)
	}

	in.Outputs = res.Outputs
	in.ToolResults = res.ToolResults
	in.Context = res.Context
	in.Decisions = append(in.Decisions, res.Decisions...)
	if n := len(res.Outputs); n > 0 {
		in.LastCapability = res.Outputs[n-1].Capability
	}
	in.Draft = res.Reply
	in.Summary = response.Summarize(in.Outputs)
	if res.CapReached {
		in.Summary += " | iteration cap reached"
	}
	return in, nil
}
