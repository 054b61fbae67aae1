package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	nodex "github.com/tanpawarit/chative-commerce/agent/nodes/orchestrator"
	"github.com/tanpawarit/chative-commerce/agent/plan"
	"github.com/tanpawarit/chative-commerce/agent/response"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
	"github.com/tanpawarit/chative-commerce/agent/statemachine"
	"github.com/tanpawarit/chative-commerce/agent/turnlock"
	logx "github.com/tanpawarit/chative-commerce/pkg/logger"
)

var (
	ErrInvalidMessage      = nodex.ErrInvalidMessage
	ErrInvalidConversation = nodex.ErrInvalidConversation
)

type Mode string

const (
	ModePlan Mode = "plan"
	ModeLoop Mode = "loop"
)

type Config struct {
	Mode              string        `envconfig:"MODE" default:"plan"`
	MaxLoopIterations int           `envconfig:"MAX_LOOP_ITERATIONS" split_words:"true" default:"3"`
	HistoryWindow     int           `envconfig:"HISTORY_WINDOW" split_words:"true" default:"10"`
	ClassifierTimeout time.Duration `envconfig:"CLASSIFIER_TIMEOUT" split_words:"true" default:"20s"`
	LockWait          time.Duration `envconfig:"LOCK_WAIT" split_words:"true" default:"10s"`
}

func (c Config) mode() (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(c.Mode))); m {
	case "", ModePlan:
		return ModePlan, nil
	case ModeLoop:
		return ModeLoop, nil
	default:
		return "", fmt.Errorf("%w: unknown orchestrator mode %q", contractx.ErrValidation, c.Mode)
	}
}

// Turn is one inbound customer message. RecentHistory and Metadata are optional overrides.
type Turn struct {
	ConversationID string
	Message        string
	RecentHistory  []statex.Message
	Metadata       statex.Metadata
}

// TurnResult always carries a customer-safe Reply. Err is for the caller's logs and status codes.
type TurnResult struct {
	Reply   string
	Summary string
	State   statex.ConversationState
	Issues  []response.Issue
	Err     error
}

type Orchestrator struct {
	store     statex.Store
	registry  contractx.Registry
	tools     contractx.ToolGateway
	humanizer nodex.Rewriter
	locker    turnlock.Locker
	machine   *statemachine.Machine
	validator *response.Validator
	tracer    trace.Tracer

	executor *plan.Executor
	loop     *plan.Loop

	mode        Mode
	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	cfg Config
	now func() time.Time
}

type Option func(*Orchestrator)

// WithHumanizer enables the closing pass of the agent loop and the rewrite of blocked replies.
func WithHumanizer(h nodex.Rewriter) Option {
	return func(o *Orchestrator) {
		o.humanizer = h
	}
}

func WithLocker(l turnlock.Locker) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.locker = l
		}
	}
}

func WithMachine(m *statemachine.Machine) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.machine = m
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func New(
	store statex.Store,
	registry contractx.Registry,
	tools contractx.ToolGateway,
	cfg Config,
	opts ...Option,
) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("state store is required")
	}
	if registry == nil {
		return nil, errors.New("capability registry is required")
	}
	if tools == nil {
		return nil, errors.New("tool gateway is required")
	}

	mode, err := cfg.mode()
	if err != nil {
		return nil, err
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 10
	}
	if cfg.MaxLoopIterations <= 0 {
		cfg.MaxLoopIterations = plan.DefaultMaxIterations
	}

	o := &Orchestrator{
		store:     store,
		registry:  registry,
		tools:     tools,
		locker:    turnlock.NewLocalLocker(cfg.LockWait),
		machine:   statemachine.New(),
		validator: response.NewValidator(),
		tracer:    otel.Tracer("github.com/tanpawarit/chative-commerce/agent/agents/orchestrator"),
		mode:      mode,
		cfg:       cfg,
		now:       time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	o.executor, err = plan.NewExecutor(registry, tools)
	if err != nil {
		return nil, err
	}
	loopOpts := []plan.LoopOption{
		plan.WithMaxIterations(cfg.MaxLoopIterations),
		plan.WithMachine(o.machine),
	}
	if o.humanizer != nil {
		loopOpts = append(loopOpts, plan.WithFinisher(o.humanizer))
	}
	o.loop, err = plan.NewLoop(o.executor, loopOpts...)
	if err != nil {
		return nil, err
	}

	if mode == ModeLoop {
		o.graphRunner, err = o.compileLoopGraph(context.Background())
	} else {
		o.graphRunner, err = o.compilePlanGraph(context.Background())
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

func (o *Orchestrator) Mode() Mode {
	return o.mode
}

// HandleTurn runs one turn end to end. Turns on the same conversation are serialized; a turn that
// cannot get the conversation within the lock wait fails with ErrConversationBusy.
func (o *Orchestrator) HandleTurn(ctx context.Context, turn Turn) (res TurnResult) {
	conversationID := strings.TrimSpace(turn.ConversationID)
	ctx = logx.WithConversation(ctx, conversationID, "mode", string(o.mode))
	logger := log.Ctx(ctx)

	ctx, span := o.tracer.Start(ctx, "orchestrator.turn", trace.WithAttributes(
		attribute.String("conversation_id", conversationID),
		attribute.String("mode", string(o.mode)),
	))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().Interface("panic", rec).Msg("turn panicked")
			span.SetStatus(codes.Error, "panic")
			res = TurnResult{Reply: response.ApologyReply, Err: fmt.Errorf("turn panicked: %v", rec)}
		}
	}()

	fail := func(err error) TurnResult {
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Msg("turn failed")
		return TurnResult{Reply: response.ApologyReply, Err: err}
	}

	if conversationID == "" {
		return fail(ErrInvalidConversation)
	}
	release, err := o.locker.Acquire(ctx, conversationID)
	if err != nil {
		return fail(err)
	}
	defer release()

	out, err := o.graphRunner.Invoke(ctx, nodex.GraphInput{
		ConversationID: conversationID,
		Message:        turn.Message,
		RecentHistory:  turn.RecentHistory,
		Metadata:       turn.Metadata,
	})
	if err != nil {
		return fail(err)
	}

	span.SetAttributes(attribute.String("state", string(out.State)))
	return TurnResult{
		Reply:   out.Reply,
		Summary: out.Summary,
		State:   out.State,
		Issues:  out.Issues,
	}
}

// HandleMessage is HandleTurn for callers that only have an id and a text.
func (o *Orchestrator) HandleMessage(ctx context.Context, conversationID string, text string) (string, error) {
	res := o.HandleTurn(ctx, Turn{ConversationID: conversationID, Message: text})
	return res.Reply, res.Err
}

// MarkAbandoned flags an inactive conversation and lets the state machine close it.
func (o *Orchestrator) MarkAbandoned(ctx context.Context, conversationID string) (statex.ConversationState, error) {
	id := strings.TrimSpace(conversationID)
	if id == "" {
		return "", ErrInvalidConversation
	}
	release, err := o.locker.Acquire(ctx, id)
	if err != nil {
		return "", err
	}
	defer release()

	conv, err := o.store.GetConversation(ctx, id)
	if err != nil {
		return "", fmt.Errorf("load conversation: %w", err)
	}
	if conv.State.IsTerminal() {
		return conv.State, nil
	}

	data := contractx.NewContextualData(conv)
	data.Metadata[statex.MetaAbandoned] = true
	decision := o.machine.Evaluate(statemachine.NewContext(data, "", nil))

	if err := o.store.AtomicUpdateState(ctx, id, decision.To, statex.Metadata{statex.MetaAbandoned: true}); err != nil {
		return "", fmt.Errorf("save abandoned state: %w", err)
	}
	log.Ctx(ctx).Info().
		Str("conversation_id", id).
		Str("state_from", string(decision.From)).
		Str("state_to", string(decision.To)).
		Msg("conversation abandoned")
	return decision.To, nil
}
