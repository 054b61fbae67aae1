package tool

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tanpawarit/chative-commerce/agent/catalog"
	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

// Env is the shared state handed to every handler.
type Env struct {
	Store     statex.Store
	Catalog   *catalog.Catalog
	Addresses AddressValidator
	Scope     contractx.ToolScope
	Now       func() time.Time
	NewID     func() string
}

// Context is the turn's working data. Never nil inside a handler.
func (e *Env) Context() *contractx.ContextualData {
	return e.Scope.Context
}

// Handler runs one tool call. Failures are reported in the result, not as errors.
type Handler func(ctx context.Context, env *Env, args map[string]any) contractx.ToolResult

// Gateway dispatches tool calls through the static definition table.
type Gateway struct {
	store     statex.Store
	catalog   *catalog.Catalog
	addresses AddressValidator
	table     map[string]Definition
	now       func() time.Time
	newID     func() string
	tracer    trace.Tracer
}

type Option func(*Gateway)

func WithAddressValidator(v AddressValidator) Option {
	return func(g *Gateway) {
		if v != nil {
			g.addresses = v
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(g *Gateway) {
		if newID != nil {
			g.newID = newID
		}
	}
}

func NewGateway(store statex.Store, cat *catalog.Catalog, opts ...Option) (*Gateway, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store is required", contractx.ErrValidation)
	}
	if cat == nil {
		return nil, fmt.Errorf("%w: catalog is required", contractx.ErrValidation)
	}

	g := &Gateway{
		store:     store,
		catalog:   cat,
		addresses: HeuristicAddressValidator{},
		table:     make(map[string]Definition),
		now:       time.Now,
		newID:     uuid.NewString,
		tracer:    otel.Tracer("chative-commerce/tool"),
	}
	for _, d := range Definitions() {
		if _, dup := g.table[d.Info.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate tool %s", contractx.ErrValidation, d.Info.Name)
		}
		g.table[d.Info.Name] = d
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// Execute runs reqs in order. Each result is applied to scope.Context before the next call,
// so later calls observe the latest cart and metadata. Only context cancellation returns an error.
func (g *Gateway) Execute(ctx context.Context, scope contractx.ToolScope, reqs []contractx.ToolRequest) ([]contractx.ToolResult, error) {
	if scope.Context == nil {
		scope.Context = &contractx.ContextualData{ConversationID: scope.ConversationID, Metadata: statex.Metadata{}}
	}
	if scope.ConversationID == "" {
		scope.ConversationID = scope.Context.ConversationID
	}

	results := make([]contractx.ToolResult, 0, len(reqs))
	for _, req := range reqs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result := g.executeOne(ctx, scope, req)
		scope.Context.Apply(result)
		results = append(results, result)
	}
	return results, nil
}

func (g *Gateway) executeOne(ctx context.Context, scope contractx.ToolScope, req contractx.ToolRequest) (result contractx.ToolResult) {
	ctx, span := g.tracer.Start(ctx, "tool."+req.Tool, trace.WithAttributes(
		attribute.String("conversation_id", scope.ConversationID),
		attribute.String("capability", string(scope.Capability)),
		attribute.String("tool", req.Tool),
	))
	logger := log.Ctx(ctx).With().
		Str("conversation_id", scope.ConversationID).
		Str("capability", string(scope.Capability)).
		Str("tool", req.Tool).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("tool handler panicked")
			result = contractx.FailedResult(req.Tool, contractx.CodeInternal, "the tool failed unexpectedly")
		}
		span.SetAttributes(attribute.Bool("success", result.Success))
		if !result.Success {
			span.SetStatus(codes.Error, result.ErrorCode)
			logger.Warn().Str("error_code", result.ErrorCode).Str("message", result.Message).Msg("tool failed")
		} else {
			logger.Debug().Msg("tool succeeded")
		}
		span.End()
	}()

	def, ok := g.table[req.Tool]
	if !ok {
		return contractx.FailedResult(req.Tool, contractx.CodeUnknownTool,
			fmt.Sprintf("%v: %s", contractx.ErrUnknownTool, req.Tool))
	}
	if def.Capability != scope.Capability {
		return contractx.FailedResult(req.Tool, contractx.CodeToolNotAllowed,
			fmt.Sprintf("%v: %s belongs to %s", contractx.ErrToolNotAllowed, req.Tool, def.Capability))
	}

	env := &Env{
		Store:     g.store,
		Catalog:   g.catalog,
		Addresses: g.addresses,
		Scope:     scope,
		Now:       g.now,
		NewID:     g.newID,
	}
	args := req.Args
	if args == nil {
		args = map[string]any{}
	}
	result = def.Handler(ctx, env, args)
	result.Tool = req.Tool
	return result
}
