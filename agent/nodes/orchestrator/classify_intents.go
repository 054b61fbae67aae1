package orchestratornode

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
)

// ClassifyIntents never fails the turn: errors and timeouts degrade to a single UNCLEAR intent.
func ClassifyIntents(
	ctx context.Context,
	in *GraphState,
	classifier contractx.Classifier,
	timeout time.Duration,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if classifier == nil {
		in.Intents = []contractx.Intent{contractx.UnclearIntent()}
		return in, nil
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	intents, err := classifier.Classify(callCtx, contractx.ClassifierRequest{
		UserMessage:  in.Message,
		History:      in.History,
		CurrentState: in.Context.State,
		CartCount:    in.Context.Cart.Count(),
	})
	if err != nil || len(intents) == 0 {
		log.Ctx(ctx).Warn().Err(err).Str("conversation_id", in.ConversationID).Msg("classification failed, using unclear intent")
		intents = []contractx.Intent{contractx.UnclearIntent()}
	}

	in.Intents = contractx.SortIntents(intents)
	return in, nil
}
