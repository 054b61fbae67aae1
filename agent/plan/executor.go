package plan

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

// readOnly capabilities only look things up, so their parallel steps may fan out.
var readOnly = map[contractx.Capability]bool{
	contractx.CapabilityMenu:    true,
	contractx.CapabilitySupport: true,
}

// Input is the per-turn material every step sees.
type Input struct {
	UserMessage string
	History     []statex.Message
	Context     contractx.ContextualData
}

// Result holds every step's output in plan order plus the context after all mutations.
type Result struct {
	Outputs        []contractx.StepOutput
	ToolResults    []contractx.ToolResult
	Context        contractx.ContextualData
	LastCapability contractx.Capability
}

type Executor struct {
	registry    contractx.Registry
	tools       contractx.ToolGateway
	tracer      trace.Tracer
	maxParallel int
}

type ExecutorOption func(*Executor)

// WithMaxParallel caps concurrent read-only steps within one wave.
func WithMaxParallel(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxParallel = n
		}
	}
}

func NewExecutor(registry contractx.Registry, tools contractx.ToolGateway, opts ...ExecutorOption) (*Executor, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: registry is required", contractx.ErrValidation)
	}
	if tools == nil {
		return nil, fmt.Errorf("%w: tool gateway is required", contractx.ErrValidation)
	}
	e := &Executor{
		registry:    registry,
		tools:       tools,
		tracer:      otel.Tracer("chative-commerce/plan"),
		maxParallel: 4,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

type stepStatus int

const (
	statusPending stepStatus = iota
	statusDone
	statusFailed
	statusSkipped
)

// Execute runs steps in dependency order. A degraded step still counts as a produced result;
// a step whose dependency was skipped or does not exist is skipped and logged. Only context
// cancellation aborts the turn.
func (e *Executor) Execute(ctx context.Context, steps []contractx.ExecutionStep, in Input) (Result, error) {
	data := in.Context.Clone()
	if data.Metadata == nil {
		data.Metadata = statex.Metadata{}
	}

	index := make(map[string]int, len(steps))
	for i, s := range steps {
		if _, dup := index[s.StepID]; !dup {
			index[s.StepID] = i
		}
	}
	status := make([]stepStatus, len(steps))
	outputs := make([]*contractx.StepOutput, len(steps))
	var last contractx.Capability

	for {
		if err := ctx.Err(); err != nil {
			return e.result(outputs, data, last), err
		}

		var ready []int
		changed := false
		for i, s := range steps {
			if status[i] != statusPending {
				continue
			}
			switch blocker, waiting := e.dependencyState(s, i, index, status); {
			case blocker != "":
				status[i] = statusSkipped
				outputs[i] = skippedOutput(s, blocker)
				changed = true
				log.Ctx(ctx).Warn().
					Str("conversation_id", data.ConversationID).
					Str("step_id", s.StepID).
					Str("capability", string(s.Capability)).
					Str("dependency", blocker).
					Msg("step skipped, dependency not satisfied")
			case !waiting:
				ready = append(ready, i)
			}
		}

		if len(ready) == 0 {
			if changed {
				continue
			}
			break
		}

		var sequential, parallel []int
		for _, i := range ready {
			if steps[i].CanRunInParallel && readOnly[steps[i].Capability] {
				parallel = append(parallel, i)
			} else {
				sequential = append(sequential, i)
			}
		}
		if len(parallel) == 1 {
			sequential = append(sequential, parallel...)
			slices.Sort(sequential)
			parallel = nil
		}

		for _, i := range sequential {
			out := e.runStep(ctx, steps[i], in, &data)
			outputs[i] = &out
			status[i] = statusOf(out)
			last = steps[i].Capability
		}

		if len(parallel) > 0 {
			wave := e.runParallel(ctx, steps, parallel, in, data)
			for k, i := range parallel {
				out := wave[k]
				for _, r := range out.ToolResults {
					data.Apply(r)
				}
				outputs[i] = &out
				status[i] = statusOf(out)
				last = steps[i].Capability
			}
		}
	}

	// Anything still pending sits on a cycle.
	for i, s := range steps {
		if status[i] == statusPending {
			status[i] = statusSkipped
			outputs[i] = skippedOutput(s, "cycle")
			log.Ctx(ctx).Warn().
				Str("conversation_id", data.ConversationID).
				Str("step_id", s.StepID).
				Msg("step skipped, dependency cycle")
		}
	}

	return e.result(outputs, data, last), nil
}

// dependencyState returns the first unsatisfiable dependency, or whether the step still waits.
func (e *Executor) dependencyState(s contractx.ExecutionStep, self int, index map[string]int, status []stepStatus) (string, bool) {
	waiting := false
	for _, dep := range s.Dependencies {
		j, ok := index[dep]
		if !ok || j == self {
			return dep, false
		}
		switch status[j] {
		case statusSkipped:
			return dep, false
		case statusPending:
			waiting = true
		}
	}
	return "", waiting
}

func (e *Executor) runParallel(ctx context.Context, steps []contractx.ExecutionStep, idx []int, in Input, data contractx.ContextualData) []contractx.StepOutput {
	wave := make([]contractx.StepOutput, len(idx))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxParallel)
	for k, i := range idx {
		local := data.Clone()
		g.Go(func() error {
			wave[k] = e.runStep(gctx, steps[i], in, &local)
			return nil
		})
	}
	_ = g.Wait()
	return wave
}

func (e *Executor) result(outputs []*contractx.StepOutput, data contractx.ContextualData, last contractx.Capability) Result {
	res := Result{Context: data, LastCapability: last}
	for _, out := range outputs {
		if out == nil {
			continue
		}
		res.Outputs = append(res.Outputs, *out)
		res.ToolResults = append(res.ToolResults, out.ToolResults...)
	}
	return res
}

// runStep drives one capability through act, tools and finalize. data is updated in place
// by every tool result. Panics and module errors degrade this step only.
func (e *Executor) runStep(ctx context.Context, step contractx.ExecutionStep, in Input, data *contractx.ContextualData) (out contractx.StepOutput) {
	out = contractx.StepOutput{StepID: step.StepID, Capability: step.Capability, Action: step.Action}

	ctx, span := e.tracer.Start(ctx, "plan.step", trace.WithAttributes(
		attribute.String("conversation_id", data.ConversationID),
		attribute.String("step_id", step.StepID),
		attribute.String("capability", string(step.Capability)),
		attribute.String("action", step.Action),
	))
	defer span.End()

	logger := log.Ctx(ctx).With().
		Str("conversation_id", data.ConversationID).
		Str("step_id", step.StepID).
		Str("capability", string(step.Capability)).
		Logger()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("step panicked")
			span.SetStatus(codes.Error, "panic")
			out.Failed = true
			out.Err = fmt.Sprintf("panic: %v", rec)
		}
	}()

	module, ok := e.registry.Module(step.Capability)
	if !ok {
		out.Failed = true
		out.Err = "no module for capability " + string(step.Capability)
		logger.Error().Msg("capability module not registered")
		span.SetStatus(codes.Error, out.Err)
		return out
	}

	req := contractx.CapabilityRequest{
		UserMessage: in.UserMessage,
		History:     in.History,
		Action:      step.Action,
		Parameters:  step.Parameters,
		Context:     data.Clone(),
	}
	resp, err := module.Run(ctx, req)
	if err != nil {
		logger.Warn().Err(err).Msg("capability act pass failed")
		span.SetStatus(codes.Error, err.Error())
		out.Failed = true
		out.Err = err.Error()
		return out
	}
	out.HandoffTo = resp.HandoffTo
	if len(resp.ToolRequests) == 0 {
		out.Content = resp.Content
		return out
	}

	results, err := e.tools.Execute(ctx, contractx.ToolScope{
		ConversationID: data.ConversationID,
		Capability:     step.Capability,
		Context:        data,
	}, resp.ToolRequests)
	out.ToolResults = results
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		out.Failed = true
		out.Err = err.Error()
		return out
	}
	for _, r := range results {
		if !r.Success {
			logger.Warn().Str("tool", r.Tool).Str("error_code", r.ErrorCode).Msg(r.Message)
		}
	}

	req.Context = data.Clone()
	req.ToolResults = results
	fin, err := module.Run(ctx, req)
	if err != nil {
		// Tools already committed, so the step still counts; describe what happened.
		logger.Warn().Err(err).Msg("capability finalize pass failed, using tool messages")
		out.Content = DescribeResults(results)
		return out
	}
	out.Content = fin.Content
	if fin.HandoffTo != "" {
		out.HandoffTo = fin.HandoffTo
	}
	return out
}

func statusOf(out contractx.StepOutput) stepStatus {
	if out.Failed {
		return statusFailed
	}
	return statusDone
}

func skippedOutput(s contractx.ExecutionStep, blocker string) *contractx.StepOutput {
	return &contractx.StepOutput{
		StepID:     s.StepID,
		Capability: s.Capability,
		Action:     s.Action,
		Skipped:    true,
		Err:        "dependency not satisfied: " + blocker,
	}
}

// DescribeResults turns tool messages into plain sentences when no model text is available.
func DescribeResults(results []contractx.ToolResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		msg := strings.TrimSpace(r.Message)
		if msg == "" {
			continue
		}
		if !r.Success {
			msg = "Sorry, " + msg
		}
		r0, size := utf8.DecodeRuneInString(msg)
		msg = string(unicode.ToUpper(r0)) + msg[size:]
		if !strings.HasSuffix(msg, ".") && !strings.HasSuffix(msg, "!") && !strings.HasSuffix(msg, "?") {
			msg += "."
		}
		parts = append(parts, msg)
	}
	return strings.Join(parts, " ")
}
