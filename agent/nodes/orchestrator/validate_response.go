package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	"github.com/tanpawarit/chative-commerce/agent/response"
)

// Rewriter regenerates a reply that failed validation.
type Rewriter interface {
	Humanize(ctx context.Context, d response.Draft) (string, error)
}

// ValidateResponse blocks replies with validation errors. One rewrite is attempted with the
// validator feedback; if that still fails the safe fallback is sent. Warnings are only logged.
func ValidateResponse(
	ctx context.Context,
	in *GraphState,
	validator *response.Validator,
	rewriter Rewriter,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	logger := log.Ctx(ctx).With().Str("conversation_id", in.ConversationID).Logger()

	check := func(text string) response.Report {
		report := validator.Validate(response.ValidationInput{
			Text:        text,
			State:       in.Context.State,
			ToolResults: in.ToolResults,
			Metadata:    in.Conversation.Metadata,
		})
		for _, issue := range report.Warnings() {
			logger.Warn().Str("issue", issue.Code).Msg(issue.Message)
		}
		return report
	}

	reply := in.Draft
	report := check(reply)
	in.Issues = report.Issues
	if !report.HasErrors() {
		in.Reply = reply
		return in, nil
	}

	for _, issue := range report.Errors() {
		logger.Warn().Str("issue", issue.Code).Msg("reply blocked: " + issue.Message)
	}

	if rewriter != nil {
		rewritten, err := rewriter.Humanize(ctx, response.Draft{
			UserMessage: in.Message,
			Draft:       reply,
			ToolResults: in.ToolResults,
			State:       in.Context.State,
			Feedback:    report.Feedback(),
		})
		if err == nil {
			second := check(rewritten)
			in.Issues = append(in.Issues, second.Issues...)
			if !second.HasErrors() {
				in.Reply = rewritten
				return in, nil
			}
		} else {
			logger.Warn().Err(err).Msg("reply rewrite failed")
		}
	}

	in.Reply = response.SafeReply
	return in, nil
}
