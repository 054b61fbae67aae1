package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

// DefaultHistoryWindow is how many recent messages the models see.
const DefaultHistoryWindow = 10

type classifierImpl struct {
	runner compose.Runnable[map[string]any, classifierLLMOutput]
	window int
}

type classifierLLMOutput struct {
	Intents []intentLLMOutput `json:"intents"`
}

type intentLLMOutput struct {
	Type          string         `json:"type"`
	Confidence    float64        `json:"confidence"`
	Priority      int            `json:"priority"`
	ExtractedData map[string]any `json:"extracted_data,omitempty"`
}

func newClassifier(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string, window int) (*classifierImpl, error) {
	runner, err := compileClassifierGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile classifier graph: %v", contractx.ErrModelInvoke, err)
	}
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	return &classifierImpl{runner: runner, window: window}, nil
}

// Classify never fails: any model, parse or schema problem degrades to a single UNCLEAR intent.
func (c *classifierImpl) Classify(ctx context.Context, req contractx.ClassifierRequest) ([]contractx.Intent, error) {
	intents, err := c.classify(ctx, req)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("intent classification failed, using unclear fallback")
		return []contractx.Intent{contractx.UnclearIntent()}, nil
	}
	return intents, nil
}

func (c *classifierImpl) classify(ctx context.Context, req contractx.ClassifierRequest) ([]contractx.Intent, error) {
	if strings.TrimSpace(req.UserMessage) == "" {
		return nil, fmt.Errorf("%w: user message is required", contractx.ErrValidation)
	}

	payload := map[string]any{
		"user_message":  req.UserMessage,
		"history":       summarizeHistory(req.History, c.window),
		"current_state": req.CurrentState,
		"cart_count":    req.CartCount,
	}
	inputBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal classifier payload: %v", contractx.ErrValidation, err)
	}

	out, err := c.runner.Invoke(ctx, map[string]any{
		"input": string(inputBytes),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: classifier invoke: %v", contractx.ErrModelInvoke, err)
	}

	return normalizeIntents(out)
}

// normalizeIntents drops unknown types, clamps confidence and backfills missing priorities
// from the model's ordering.
func normalizeIntents(out classifierLLMOutput) ([]contractx.Intent, error) {
	intents := make([]contractx.Intent, 0, len(out.Intents))
	for i, raw := range out.Intents {
		t := contractx.IntentType(strings.ToUpper(strings.TrimSpace(raw.Type)))
		if !t.Valid() {
			continue
		}
		priority := raw.Priority
		if priority <= 0 {
			priority = i + 1
		}
		conf := raw.Confidence
		if math.IsNaN(conf) {
			conf = 0
		}
		intents = append(intents, contractx.Intent{
			Type:          t,
			Confidence:    math.Max(0, math.Min(1, conf)),
			ExtractedData: raw.ExtractedData,
			Priority:      priority,
		})
	}
	if len(intents) == 0 {
		return nil, fmt.Errorf("%w: classifier returned no usable intent", contractx.ErrSchemaViolation)
	}
	return contractx.SortIntents(intents), nil
}

func summarizeHistory(history []statex.Message, window int) []map[string]string {
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	out := make([]map[string]string, 0, len(history))
	for _, m := range history {
		out = append(out, map[string]string{"role": m.Role, "content": m.Content})
	}
	return out
}
