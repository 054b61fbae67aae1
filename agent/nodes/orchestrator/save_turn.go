package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

// SaveTurn persists the new state with the turn's metadata changes and appends both messages to history.
func SaveTurn(ctx context.Context, in *GraphState, store statex.Store) (*GraphState, error) {
	if in == nil || in.Conversation == nil {
		return nil, fmt.Errorf("%w: graph conversation is nil", contractx.ErrValidation)
	}

	if !in.Terminal {
		meta := in.Context.Metadata.Clone()
		meta[statex.MetaGreeted] = true
		if in.LastCapability != "" {
			meta[statex.MetaLastCapability] = string(in.LastCapability)
		}
		patch := meta.Diff(in.Conversation.Metadata)
		if err := store.AtomicUpdateState(ctx, in.ConversationID, in.Context.State, patch); err != nil {
			return nil, fmt.Errorf("save conversation state: %w", err)
		}
	}

	if err := store.AppendMessages(ctx, in.ConversationID,
		statex.Message{Role: statex.RoleCustomer, Content: in.Message, CreatedAt: in.Now},
		statex.Message{Role: statex.RoleAssistant, Content: in.Reply, CreatedAt: in.Now},
	); err != nil {
		// The state is already saved; losing history only hurts later classification.
		log.Ctx(ctx).Warn().Err(err).Str("conversation_id", in.ConversationID).Msg("append history failed")
	}
	return in, nil
}
