package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	"github.com/tanpawarit/chative-commerce/agent/plan"
	"github.com/tanpawarit/chative-commerce/agent/response"
)

func CombineResponse(ctx context.Context, in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	combined := response.Combine(in.Outputs)
	draft := response.Sanitize(combined.Text)
	if draft == "" {
		draft = response.Sanitize(plan.DescribeResults(combined.ToolResults))
	}
	if draft == "" {
		draft = response.SafeReply
	}

	in.Draft = draft
	in.Summary = combined.Summary
	return in, nil
}

// HandoffReply answers conversations that already reached ORDER_PLACED or ABANDONED.
func HandoffReply(ctx context.Context, in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	in.Reply = response.HandoffReply
	in.Summary = "conversation closed (" + string(in.Context.State) + ")"
	return in, nil
}
