package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	"github.com/tanpawarit/chative-commerce/agent/tool"
)

// llmModule is a capability backed by a chat model with the capability's tool set bound.
type llmModule struct {
	capability     contractx.Capability
	window         int
	finalizeRunner compose.Runnable[map[string]any, moduleLLMOutput]
	toolRunner     compose.Runnable[map[string]any, *schema.Message]
	runtimeRunner  compose.Runnable[contractx.CapabilityRequest, contractx.CapabilityResponse]
}

type moduleLLMOutput struct {
	Message   string `json:"message"`
	HandoffTo string `json:"handoff_to,omitempty"`
}

func newLLMModule(
	ctx context.Context,
	capability contractx.Capability,
	chatModel einomodel.ToolCallingChatModel,
	systemPrompt string,
	window int,
) (*llmModule, error) {
	finalizeRunner, err := compileFinalizeGraph(ctx, chatModel, systemPrompt, capability)
	if err != nil {
		return nil, fmt.Errorf("%w: compile finalize graph for capability=%s: %v", contractx.ErrModelInvoke, capability, err)
	}

	m := &llmModule{
		capability:     capability,
		window:         window,
		finalizeRunner: finalizeRunner,
	}

	tools := tool.InfosFor(capability)
	if len(tools) > 0 {
		toolModel, err := chatModel.WithTools(tools)
		if err != nil {
			return nil, fmt.Errorf("%w: bind tools for capability=%s: %v", contractx.ErrModelInvoke, capability, err)
		}
		toolRunner, err := compileToolPlanningGraph(ctx, toolModel, systemPrompt, capability)
		if err != nil {
			return nil, fmt.Errorf("%w: compile tool planning graph: %v", contractx.ErrModelInvoke, err)
		}
		m.toolRunner = toolRunner
	}

	runtimeRunner, err := compileModuleRuntimeGraph(ctx, capability, m.toolRunner != nil, m.runAct, m.runFinalize)
	if err != nil {
		return nil, fmt.Errorf("%w: compile module runtime graph: %v", contractx.ErrModelInvoke, err)
	}
	m.runtimeRunner = runtimeRunner

	return m, nil
}

func (m *llmModule) Capability() contractx.Capability {
	return m.capability
}

func (m *llmModule) Run(ctx context.Context, req contractx.CapabilityRequest) (contractx.CapabilityResponse, error) {
	return m.runtimeRunner.Invoke(ctx, req)
}

func (m *llmModule) runAct(ctx context.Context, req contractx.CapabilityRequest) (contractx.CapabilityResponse, error) {
	input, err := m.payload("act", req)
	if err != nil {
		return contractx.CapabilityResponse{}, err
	}

	msg, err := m.toolRunner.Invoke(ctx, map[string]any{
		"input": input,
	})
	if err != nil {
		return contractx.CapabilityResponse{}, fmt.Errorf("%w: %s act invoke: %v", contractx.ErrModelInvoke, m.capability, err)
	}
	if msg == nil {
		return contractx.CapabilityResponse{}, fmt.Errorf("%w: empty act response", contractx.ErrSchemaViolation)
	}

	toolRequests, err := toToolRequests(msg.ToolCalls)
	if err != nil {
		return contractx.CapabilityResponse{}, err
	}
	if len(toolRequests) > 0 {
		return contractx.CapabilityResponse{ToolRequests: toolRequests}, nil
	}

	content := strings.TrimSpace(msg.Content)
	if content == "" {
		return contractx.CapabilityResponse{}, fmt.Errorf("%w: act pass returned neither tools nor text", contractx.ErrSchemaViolation)
	}
	return contractx.CapabilityResponse{Content: content}, nil
}

func (m *llmModule) runFinalize(ctx context.Context, req contractx.CapabilityRequest) (contractx.CapabilityResponse, error) {
	input, err := m.payload("finalize", req)
	if err != nil {
		return contractx.CapabilityResponse{}, err
	}

	out, err := m.finalizeRunner.Invoke(ctx, map[string]any{
		"input": input,
	})
	if err != nil {
		return contractx.CapabilityResponse{}, fmt.Errorf("%w: %s finalize invoke: %v", contractx.ErrModelInvoke, m.capability, err)
	}

	message := strings.TrimSpace(out.Message)
	if message == "" {
		return contractx.CapabilityResponse{}, fmt.Errorf("%w: %s message is empty", contractx.ErrSchemaViolation, m.capability)
	}

	resp := contractx.CapabilityResponse{Content: message}
	if handoff, ok := contractx.ParseCapability(out.HandoffTo); ok && handoff != m.capability {
		resp.HandoffTo = handoff
	}
	return resp, nil
}

func (m *llmModule) payload(mode string, req contractx.CapabilityRequest) (string, error) {
	payload := map[string]any{
		"mode":         mode,
		"action":       req.Action,
		"parameters":   req.Parameters,
		"user_message": req.UserMessage,
		"history":      summarizeHistory(req.History, m.window),
		"context":      summarizeContext(req.Context),
		"tool_results": req.ToolResults,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: marshal %s payload: %v", contractx.ErrValidation, mode, err)
	}
	return string(raw), nil
}

func toToolRequests(calls []schema.ToolCall) ([]contractx.ToolRequest, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	reqs := make([]contractx.ToolRequest, 0, len(calls))
	for _, call := range calls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}

		args := map[string]any{}
		rawArgs := strings.TrimSpace(call.Function.Arguments)
		if rawArgs != "" {
			if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
				return nil, fmt.Errorf("%w: invalid tool args for tool=%s: %v", contractx.ErrSchemaViolation, name, err)
			}
		}

		reqs = append(reqs, contractx.ToolRequest{
			Tool: name,
			Args: args,
		})
	}
	return reqs, nil
}

func summarizeContext(data contractx.ContextualData) map[string]any {
	items := make([]map[string]any, 0, len(data.Cart))
	for _, it := range data.Cart {
		item := map[string]any{
			"product_name": it.ProductName,
			"quantity":     it.Quantity,
			"unit_price":   it.UnitPrice,
		}
		if it.Notes != "" {
			item["notes"] = it.Notes
		}
		items = append(items, item)
	}
	totals := data.Totals()
	return map[string]any{
		"state":      data.State,
		"cart":       items,
		"cart_total": totals.Total,
		"cart_count": totals.Count,
		"metadata":   data.Metadata,
	}
}
