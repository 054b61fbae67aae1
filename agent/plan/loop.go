package plan

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	"github.com/tanpawarit/chative-commerce/agent/response"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
	"github.com/tanpawarit/chative-commerce/agent/statemachine"
)

const DefaultMaxIterations = 3

// Finisher is the closing natural-language pass over the loop's raw output.
type Finisher interface {
	Humanize(ctx context.Context, d response.Draft) (string, error)
}

// LoopInput carries the turn's plan. The loop starts at the first step and hands off to the
// remaining ones, so parameters extracted by the classifier reach their capability.
type LoopInput struct {
	Input
	Plan []contractx.ExecutionStep
}

type LoopResult struct {
	Reply       string
	Outputs     []contractx.StepOutput
	ToolResults []contractx.ToolResult
	Context     contractx.ContextualData
	Decisions   []statemachine.Decision
	Iterations  int
	CapReached  bool
}

// Loop re-invokes capabilities one at a time, re-evaluating state between iterations.
type Loop struct {
	exec     *Executor
	machine  *statemachine.Machine
	finisher Finisher
	maxIter  int
}

type LoopOption func(*Loop)

func WithMaxIterations(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.maxIter = n
		}
	}
}

func WithMachine(m *statemachine.Machine) LoopOption {
	return func(l *Loop) {
		if m != nil {
			l.machine = m
		}
	}
}

func WithFinisher(f Finisher) LoopOption {
	return func(l *Loop) {
		l.finisher = f
	}
}

func NewLoop(exec *Executor, opts ...LoopOption) (*Loop, error) {
	if exec == nil {
		return nil, fmt.Errorf("%w: executor is required", contractx.ErrValidation)
	}
	l := &Loop{
		exec:    exec,
		machine: statemachine.New(),
		maxIter: DefaultMaxIterations,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

func (l *Loop) MaxIterations() int {
	return l.maxIter
}

// Run stops on a terminal state, when no hand-off is suggested, or at the iteration cap.
// The reply is never empty.
func (l *Loop) Run(ctx context.Context, in LoopInput) (LoopResult, error) {
	data := in.Context.Clone()
	if data.Metadata == nil {
		data.Metadata = statex.Metadata{}
	}
	res := LoopResult{}
	logger := log.Ctx(ctx).With().Str("conversation_id", data.ConversationID).Logger()

	var pending []contractx.ExecutionStep
	for _, s := range in.Plan {
		if s.Capability.Valid() {
			pending = append(pending, s)
		}
	}
	step := contractx.ExecutionStep{Capability: contractx.CapabilitySales, Action: contractx.ActionClarify}
	if len(pending) > 0 {
		step, pending = pending[0], pending[1:]
	}

	for i := 1; i <= l.maxIter; i++ {
		if err := ctx.Err(); err != nil {
			res.Context = data
			res.Reply = l.finish(ctx, in, &res)
			return res, err
		}

		step.StepID = fmt.Sprintf("iter_%d", i)
		step.Dependencies = nil
		out := l.exec.runStep(ctx, step, in.Input, &data)
		res.Iterations = i
		res.Outputs = append(res.Outputs, out)
		res.ToolResults = append(res.ToolResults, out.ToolResults...)

		decision := l.machine.Evaluate(statemachine.NewContext(data, step.Capability, out.ToolResults))
		res.Decisions = append(res.Decisions, decision)
		if decision.Changed() {
			logger.Debug().
				Str("state_from", string(decision.From)).
				Str("state_to", string(decision.To)).
				Str("rule", decision.Rule).
				Msg("loop state transition")
			data.State = decision.To
		}

		if data.State.IsTerminal() || out.Failed {
			break
		}
		next, ok := nextStep(out, decision, step.Capability, &pending)
		if !ok {
			break
		}
		if i == l.maxIter {
			res.CapReached = true
			logger.Warn().Int("iterations", i).Str("handoff", string(next.Capability)).Msg("agent loop hit iteration cap")
			break
		}
		step = next
	}

	res.Context = data
	res.Reply = l.finish(ctx, in, &res)
	return res, nil
}

// finish runs the closing pass over the last capability's content and every tool result.
func (l *Loop) finish(ctx context.Context, in LoopInput, res *LoopResult) string {
	draft := lastContent(res.Outputs)
	if draft == "" {
		draft = DescribeResults(res.ToolResults)
	}

	if l.finisher != nil && (draft != "" || len(res.ToolResults) > 0) {
		reply, err := l.finisher.Humanize(ctx, response.Draft{
			UserMessage: in.UserMessage,
			Draft:       draft,
			ToolResults: res.ToolResults,
			State:       res.Context.State,
		})
		if err == nil && strings.TrimSpace(reply) != "" {
			return reply
		}
		log.Ctx(ctx).Warn().Err(err).Str("conversation_id", res.Context.ConversationID).Msg("humanizer pass failed, using raw content")
	}

	if reply := response.Sanitize(draft); reply != "" {
		return reply
	}
	return response.LoopFallbackReply
}

// nextStep picks the hand-off target: an explicit signal, then the capability owning a new state,
// then the next planned step. A target with a planned step reuses it, parameters included.
func nextStep(
	out contractx.StepOutput,
	decision statemachine.Decision,
	current contractx.Capability,
	pending *[]contractx.ExecutionStep,
) (contractx.ExecutionStep, bool) {
	target := out.HandoffTo
	if target == "" && decision.Changed() {
		target = capabilityFor(decision.To)
	}
	if target != "" && target != current {
		if s, ok := takePlanned(pending, target); ok {
			return s, true
		}
		return contractx.ExecutionStep{Capability: target, Action: contractx.ActionConverse}, true
	}
	if len(*pending) == 0 {
		return contractx.ExecutionStep{}, false
	}
	s := (*pending)[0]
	*pending = (*pending)[1:]
	return s, true
}

func takePlanned(pending *[]contractx.ExecutionStep, c contractx.Capability) (contractx.ExecutionStep, bool) {
	for i, s := range *pending {
		if s.Capability == c {
			*pending = append((*pending)[:i:i], (*pending)[i+1:]...)
			return s, true
		}
	}
	return contractx.ExecutionStep{}, false
}

func lastContent(outputs []contractx.StepOutput) string {
	for i := len(outputs) - 1; i >= 0; i-- {
		if c := strings.TrimSpace(outputs[i].Content); c != "" {
			return c
		}
	}
	return ""
}

// capabilityFor names the capability that owns a state, for implicit hand-offs.
func capabilityFor(s statex.ConversationState) contractx.Capability {
	switch s {
	case statex.StateBrowsingMenu:
		return contractx.CapabilityMenu
	case statex.StateSelectingProducts, statex.StateBuildingOrder:
		return contractx.CapabilitySales
	case statex.StateReadyToCheckout, statex.StateCollectingAddress, statex.StateCollectingPayment, statex.StateConfirmingOrder:
		return contractx.CapabilityCheckout
	case statex.StateAskingSupport:
		return contractx.CapabilitySupport
	case statex.StateDiscovery:
		return contractx.CapabilityMenu
	}
	return ""
}
