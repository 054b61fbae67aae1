package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	"github.com/tanpawarit/chative-commerce/agent/plan"
)

func BuildPlan(ctx context.Context, in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	steps := plan.Build(in.Intents, plan.PlanContext{
		State:     in.Context.State,
		CartCount: in.Context.Cart.Count(),
		Metadata:  in.Context.Metadata,
	})
	if err := plan.Validate(steps); err != nil {
		return nil, fmt.Errorf("build plan: %w", err)
	}

	logger := log.Ctx(ctx).Debug().Str("conversation_id", in.ConversationID).Int("steps", len(steps))
	for _, s := range steps {
		logger = logger.Str(s.StepID, string(s.Capability)+"."+s.Action)
	}
	logger.Msg("execution plan built")

	in.Steps = steps
	return in, nil
}
