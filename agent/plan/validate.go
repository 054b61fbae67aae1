package plan

import (
	"errors"
	"fmt"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
)

var (
	ErrDuplicateStep     = errors.New("duplicate step id")
	ErrUnknownDependency = errors.New("unknown step dependency")
	ErrCycle             = errors.New("plan has a dependency cycle")
)

// TopologicalOrder returns step ids in an order where every dependency precedes its dependents.
// Ties keep plan order.
func TopologicalOrder(steps []contractx.ExecutionStep) ([]string, error) {
	index := make(map[string]int, len(steps))
	for i, s := range steps {
		if _, dup := index[s.StepID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateStep, s.StepID)
		}
		index[s.StepID] = i
	}

	indegree := make([]int, len(steps))
	dependents := make([][]int, len(steps))
	for i, s := range steps {
		for _, dep := range s.Dependencies {
			j, ok := index[dep]
			if !ok {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrUnknownDependency, s.StepID, dep)
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	order := make([]string, 0, len(steps))
	done := make([]bool, len(steps))
	for len(order) < len(steps) {
		progressed := false
		for i := range steps {
			if done[i] || indegree[i] > 0 {
				continue
			}
			done[i] = true
			progressed = true
			order = append(order, steps[i].StepID)
			for _, d := range dependents[i] {
				indegree[d]--
			}
		}
		if !progressed {
			return nil, ErrCycle
		}
	}
	return order, nil
}

// Validate reports whether steps form a well-formed acyclic plan.
func Validate(steps []contractx.ExecutionStep) error {
	_, err := TopologicalOrder(steps)
	return err
}
