package response

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

var ErrEmptyReply = errors.New("humanizer returned an empty reply")

const defaultHumanizerTimeout = 15 * time.Second

// Draft is the raw material of the closing pass.
type Draft struct {
	UserMessage string                   `json:"user_message"`
	Draft       string                   `json:"draft"`
	ToolResults []contractx.ToolResult   `json:"tool_results,omitempty"`
	State       statex.ConversationState `json:"state"`
	Feedback    []string                 `json:"feedback,omitempty"`
}

// Humanizer merges raw capability output into one customer-facing message.
type Humanizer struct {
	gen     contractx.TextGenerator
	prompt  string
	timeout time.Duration
}

type HumanizerOption func(*Humanizer)

func WithHumanizerTimeout(d time.Duration) HumanizerOption {
	return func(h *Humanizer) {
		if d > 0 {
			h.timeout = d
		}
	}
}

func NewHumanizer(gen contractx.TextGenerator, systemPrompt string, opts ...HumanizerOption) (*Humanizer, error) {
	if gen == nil {
		return nil, fmt.Errorf("%w: text generator is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(systemPrompt) == "" {
		return nil, fmt.Errorf("%w: humanizer", contractx.ErrPromptMissing)
	}
	h := &Humanizer{gen: gen, prompt: systemPrompt, timeout: defaultHumanizerTimeout}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Humanizer) Humanize(ctx context.Context, d Draft) (string, error) {
	input, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("%w: marshal humanizer payload: %v", contractx.ErrValidation, err)
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	out, err := h.gen.Generate(ctx, h.prompt, string(input))
	if err != nil {
		return "", fmt.Errorf("%w: humanizer: %v", contractx.ErrModelInvoke, err)
	}
	reply := Sanitize(out)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}
