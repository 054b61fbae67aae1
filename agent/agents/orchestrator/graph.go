package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	nodex "github.com/tanpawarit/chative-commerce/agent/nodes/orchestrator"
)

const (
	nodeValidateRequest  = "validate_request"
	nodeLoadConversation = "load_conversation"
	nodeLoadHistory      = "load_history"
	nodeHandoffReply     = "handoff_reply"
	nodeClassifyIntents  = "classify_intents"
	nodeBuildPlan        = "build_plan"
	nodeExecutePlan      = "execute_plan"
	nodeAdvanceState     = "advance_state"
	nodeCombineResponse  = "combine_response"
	nodeRunAgentLoop     = "run_agent_loop"
	nodeValidateResponse = "validate_response"
	nodeSaveTurn         = "save_turn"
	nodeFinalizeReply    = "finalize_reply"
)

type turnGraph = compose.Graph[nodex.GraphInput, nodex.GraphOutput]

type stateStep = func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error)

func addStateNode(graph *turnGraph, name string, fn stateStep) error {
	if err := graph.AddLambdaNode(name, compose.InvokableLambda(fn)); err != nil {
		return fmt.Errorf("add node %s: %w", name, err)
	}
	return nil
}

// addSharedNodes registers the nodes both modes use: request intake, terminal hand-off,
// classification, planning, validation and persistence.
func (o *Orchestrator) addSharedNodes(graph *turnGraph) error {
	if err := graph.AddLambdaNode(nodeValidateRequest,
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return fmt.Errorf("add node %s: %w", nodeValidateRequest, err)
	}

	steps := []struct {
		name string
		fn   stateStep
	}{
		{nodeLoadConversation, func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadConversation(ctx, in, o.store)
		}},
		{nodeLoadHistory, func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadHistory(ctx, in, o.store, o.cfg.HistoryWindow)
		}},
		{nodeHandoffReply, nodex.HandoffReply},
		{nodeClassifyIntents, func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ClassifyIntents(ctx, in, o.registry.Classifier(), o.cfg.ClassifierTimeout)
		}},
		{nodeBuildPlan, nodex.BuildPlan},
		{nodeValidateResponse, func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ValidateResponse(ctx, in, o.validator, o.humanizer)
		}},
		{nodeSaveTurn, func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.SaveTurn(ctx, in, o.store)
		}},
	}
	for _, s := range steps {
		if err := addStateNode(graph, s.name, s.fn); err != nil {
			return err
		}
	}

	if err := graph.AddLambdaNode(nodeFinalizeReply,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(ctx, in)
		}),
	); err != nil {
		return fmt.Errorf("add node %s: %w", nodeFinalizeReply, err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			if in == nil {
				return "", fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
			}
			if in.Terminal {
				return nodeHandoffReply, nil
			}
			return nodeClassifyIntents, nil
		},
		map[string]bool{
			nodeHandoffReply:    true,
			nodeClassifyIntents: true,
		},
	)
	if err := graph.AddBranch(nodeLoadHistory, branch); err != nil {
		return fmt.Errorf("add terminal branch: %w", err)
	}
	return nil
}

func addEdges(graph *turnGraph, edges [][2]string) error {
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

var sharedEdges = [][2]string{
	{compose.START, nodeValidateRequest},
	{nodeValidateRequest, nodeLoadConversation},
	{nodeLoadConversation, nodeLoadHistory},
	{nodeClassifyIntents, nodeBuildPlan},
	{nodeHandoffReply, nodeSaveTurn},
	{nodeValidateResponse, nodeSaveTurn},
	{nodeSaveTurn, nodeFinalizeReply},
	{nodeFinalizeReply, compose.END},
}

// compilePlanGraph: classify, plan, execute the DAG, advance state once, combine, validate.
func (o *Orchestrator) compilePlanGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()
	if err := o.addSharedNodes(graph); err != nil {
		return nil, err
	}

	if err := addStateNode(graph, nodeExecutePlan, func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
		return nodex.ExecutePlan(ctx, in, o.executor)
	}); err != nil {
		return nil, err
	}
	if err := addStateNode(graph, nodeAdvanceState, func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
		return nodex.AdvanceState(ctx, in, o.machine)
	}); err != nil {
		return nil, err
	}
	if err := addStateNode(graph, nodeCombineResponse, nodex.CombineResponse); err != nil {
		return nil, err
	}

	edges := append([][2]string{
		{nodeBuildPlan, nodeExecutePlan},
		{nodeExecutePlan, nodeAdvanceState},
		{nodeAdvanceState, nodeCombineResponse},
		{nodeCombineResponse, nodeValidateResponse},
	}, sharedEdges...)
	if err := addEdges(graph, edges); err != nil {
		return nil, err
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.plan_turn"))
	if err != nil {
		return nil, fmt.Errorf("compile plan turn graph: %w", err)
	}
	return runner, nil
}

// compileLoopGraph: classify, plan for the entry step, then hand over to the bounded agent loop.
func (o *Orchestrator) compileLoopGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()
	if err := o.addSharedNodes(graph); err != nil {
		return nil, err
	}

	if err := addStateNode(graph, nodeRunAgentLoop, func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
		return nodex.RunAgentLoop(ctx, in, o.loop)
	}); err != nil {
		return nil, err
	}

	edges := append([][2]string{
		{nodeBuildPlan, nodeRunAgentLoop},
		{nodeRunAgentLoop, nodeValidateResponse},
	}, sharedEdges...)
	if err := addEdges(graph, edges); err != nil {
		return nil, err
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.loop_turn"))
	if err != nil {
		return nil, fmt.Errorf("compile loop turn graph: %w", err)
	}
	return runner, nil
}
