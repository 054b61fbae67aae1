package statemachine

import (
	"cmp"
	"slices"

	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

type Source string

const (
	SourceRule      Source = "rule"
	SourceHeuristic Source = "heuristic"
	SourceTerminal  Source = "terminal"
	SourceNone      Source = "none"
)

// Decision explains one evaluation.
type Decision struct {
	From   statex.ConversationState `json:"from"`
	To     statex.ConversationState `json:"to"`
	Rule   string                   `json:"rule,omitempty"`
	Source Source                   `json:"source"`
}

func (d Decision) Changed() bool {
	return d.From != d.To
}

// Machine is a pure function from ConversationContext to the next state.
type Machine struct {
	rules      []Rule
	heuristics []Heuristic
}

type Option func(*Machine)

func WithRules(rules ...Rule) Option {
	return func(m *Machine) {
		m.rules = rules
	}
}

func WithHeuristics(h ...Heuristic) Option {
	return func(m *Machine) {
		m.heuristics = h
	}
}

func New(opts ...Option) *Machine {
	m := &Machine{
		rules:      DefaultRules(),
		heuristics: DefaultHeuristics(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	m.rules = slices.Clone(m.rules)
	slices.SortStableFunc(m.rules, func(a, b Rule) int {
		return cmp.Compare(b.Priority, a.Priority)
	})
	return m
}

// Evaluate runs the rule table, highest priority first, then the heuristic list.
// Terminal states never move.
func (m *Machine) Evaluate(ctx ConversationContext) Decision {
	d := Decision{From: ctx.CurrentState, To: ctx.CurrentState, Source: SourceNone}
	if ctx.CurrentState.IsTerminal() {
		d.Source = SourceTerminal
		return d
	}

	for _, rule := range m.rules {
		if rule.applies(ctx) {
			d.To = rule.To
			d.Rule = rule.Name
			d.Source = SourceRule
			return d
		}
	}

	for _, h := range m.heuristics {
		if next, ok := h.Resolve(ctx); ok && next.Valid() {
			d.To = next
			d.Rule = h.Name
			d.Source = SourceHeuristic
			return d
		}
	}
	return d
}

var defaultMachine = New()

// EvaluateStateTransition evaluates ctx against the default rule table.
func EvaluateStateTransition(ctx ConversationContext) statex.ConversationState {
	return defaultMachine.Evaluate(ctx).To
}
