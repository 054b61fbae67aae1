package orchestratornode

import (
	"errors"
	"strings"
	"time"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	"github.com/tanpawarit/chative-commerce/agent/response"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
	"github.com/tanpawarit/chative-commerce/agent/statemachine"
)

var (
	ErrInvalidMessage      = errors.New("message is empty")
	ErrInvalidConversation = errors.New("conversation id is empty")
)

type GraphInput struct {
	ConversationID string
	Message        string
	RecentHistory  []statex.Message
	Metadata       statex.Metadata
}

type GraphOutput struct {
	Reply   string
	Summary string
	State   statex.ConversationState
	Issues  []response.Issue
}

// GraphState is threaded through every node of one turn.
type GraphState struct {
	ConversationID string
	Message        string
	Now            time.Time

	Conversation *statex.Conversation
	History      []statex.Message
	// Context is the working copy; Conversation keeps what was loaded.
	Context contractx.ContextualData
	// InboundMetadata is caller-supplied metadata merged over the stored one.
	InboundMetadata statex.Metadata
	Terminal        bool

	Intents        []contractx.Intent
	Steps          []contractx.ExecutionStep
	Outputs        []contractx.StepOutput
	ToolResults    []contractx.ToolResult
	LastCapability contractx.Capability
	Decisions      []statemachine.Decision

	Draft   string
	Reply   string
	Summary string
	Issues  []response.Issue
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	conversationID := strings.TrimSpace(in.ConversationID)
	if conversationID == "" {
		return nil, ErrInvalidConversation
	}

	text := strings.TrimSpace(in.Message)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	now := time.Now().UTC()
	if nowFn != nil {
		now = nowFn().UTC()
	}

	return &GraphState{
		ConversationID:  conversationID,
		Message:         text,
		Now:             now,
		History:         append([]statex.Message(nil), in.RecentHistory...),
		InboundMetadata: in.Metadata.Clone(),
	}, nil
}
