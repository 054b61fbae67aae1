package orchestratornode

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
)

func FinalizeReply(ctx context.Context, in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if strings.TrimSpace(in.Reply) == "" {
		return GraphOutput{}, fmt.Errorf("%w: reply is empty", contractx.ErrValidation)
	}

	log.Ctx(ctx).Info().
		Str("conversation_id", in.ConversationID).
		Str("state", string(in.Context.State)).
		Int("steps", len(in.Outputs)).
		Str("summary", in.Summary).
		Msg("turn complete")

	return GraphOutput{
		Reply:   in.Reply,
		Summary: in.Summary,
		State:   in.Context.State,
		Issues:  in.Issues,
	}, nil
}
