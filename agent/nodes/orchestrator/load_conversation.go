package orchestratornode

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

// LoadConversation reads the conversation, starting a fresh one at GREETING when the id is unknown.
func LoadConversation(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	conv, err := store.GetConversation(ctx, in.ConversationID)
	switch {
	case errors.Is(err, statex.ErrConversationNotFound):
		conv = statex.NewConversation(in.ConversationID, in.Now)
		log.Ctx(ctx).Debug().Str("conversation_id", in.ConversationID).Msg("starting new conversation")
	case err != nil:
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	conv.EnsureMetadata()

	in.Conversation = conv.Clone()
	in.Context = contractx.NewContextualData(conv)
	if len(in.InboundMetadata) > 0 {
		in.Context.Metadata = in.Context.Metadata.Merge(in.InboundMetadata)
	}
	in.Terminal = conv.State.IsTerminal()
	return in, nil
}

// LoadHistory fills the recent history from the store unless the caller already supplied it.
func LoadHistory(ctx context.Context, in *GraphState, store statex.Store, window int) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if len(in.History) > 0 {
		if window > 0 && len(in.History) > window {
			in.History = in.History[len(in.History)-window:]
		}
		return in, nil
	}

	history, err := store.GetRecentHistory(ctx, in.ConversationID, window)
	if err != nil {
		// History only improves classification; a turn can run without it.
		log.Ctx(ctx).Warn().Err(err).Str("conversation_id", in.ConversationID).Msg("load history failed")
		return in, nil
	}
	in.History = history
	return in, nil
}
