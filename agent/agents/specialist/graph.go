package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
)

const (
	passAct      = "act_pass"
	passFinalize = "finalize_pass"
)

// chatTemplate renders {input} under a fixed system prompt.
func chatTemplate(systemPrompt string) einoprompt.ChatTemplate {
	return einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{input}"),
	)
}

func compileClassifierGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[map[string]any, classifierLLMOutput], error) {
	runner, err := compileStructuredChain[classifierLLMOutput](ctx, chatModel, systemPrompt, "classifier.model_chain")
	if err != nil {
		return nil, fmt.Errorf("compile classifier chain: %w", err)
	}
	return runner, nil
}

func compileFinalizeGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	capability contractx.Capability,
) (compose.Runnable[map[string]any, moduleLLMOutput], error) {
	runner, err := compileStructuredChain[moduleLLMOutput](ctx, chatModel, systemPrompt, "module.finalize_chain."+string(capability))
	if err != nil {
		return nil, fmt.Errorf("compile finalize chain: %w", err)
	}
	return runner, nil
}

// compileToolPlanningGraph returns the raw model message so tool calls survive.
func compileToolPlanningGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	capability contractx.Capability,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	runner, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(chatTemplate(systemPrompt)).
		AppendChatModel(chatModel).
		Compile(ctx, compose.WithGraphName("module.act_chain."+string(capability)))
	if err != nil {
		return nil, fmt.Errorf("compile act chain: %w", err)
	}
	return runner, nil
}

// compileStructuredChain is prompt -> model -> JSON parse into T.
func compileStructuredChain[T any](
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	name string,
) (compose.Runnable[map[string]any, T], error) {
	parser := schema.NewMessageJSONParser[T](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})
	return compose.NewChain[map[string]any, T]().
		AppendChatTemplate(chatTemplate(systemPrompt)).
		AppendChatModel(chatModel).
		AppendLambda(compose.MessageParser(parser)).
		Compile(ctx, compose.WithGraphName(name))
}

type moduleFlow = func(context.Context, contractx.CapabilityRequest) (contractx.CapabilityResponse, error)

// compileModuleRuntimeGraph picks the pass straight from START: requests carrying tool results,
// and modules without tools, go to finalize; everything else goes to act.
func compileModuleRuntimeGraph(
	ctx context.Context,
	capability contractx.Capability,
	hasTools bool,
	actFlow moduleFlow,
	finalizeFlow moduleFlow,
) (compose.Runnable[contractx.CapabilityRequest, contractx.CapabilityResponse], error) {
	graph := compose.NewGraph[contractx.CapabilityRequest, contractx.CapabilityResponse]()

	passes := map[string]moduleFlow{passAct: actFlow, passFinalize: finalizeFlow}
	for name, flow := range passes {
		if err := graph.AddLambdaNode(name, compose.InvokableLambda(flow)); err != nil {
			return nil, fmt.Errorf("add %s node: %w", name, err)
		}
		if err := graph.AddEdge(name, compose.END); err != nil {
			return nil, fmt.Errorf("add %s->end edge: %w", name, err)
		}
	}

	pick := compose.NewGraphBranch(
		func(ctx context.Context, req contractx.CapabilityRequest) (string, error) {
			if req.Context.ConversationID == "" {
				return "", fmt.Errorf("%w: conversation id is required", contractx.ErrValidation)
			}
			if req.Finalizing() || !hasTools {
				return passFinalize, nil
			}
			return passAct, nil
		},
		map[string]bool{passAct: true, passFinalize: true},
	)
	if err := graph.AddBranch(compose.START, pick); err != nil {
		return nil, fmt.Errorf("add pass branch: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("module.runtime_graph."+string(capability)))
	if err != nil {
		return nil, fmt.Errorf("compile module runtime graph: %w", err)
	}
	return runner, nil
}
