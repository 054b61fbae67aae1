package specialist

import (
	"context"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	llmx "github.com/tanpawarit/chative-commerce/agent/llm"
	promptx "github.com/tanpawarit/chative-commerce/agent/prompt"
	openrouterx "github.com/tanpawarit/chative-commerce/pkg/openrouter"
)

type registryImpl struct {
	classifier contractx.Classifier
	modules    map[contractx.Capability]contractx.CapabilityModule
}

func (r *registryImpl) Classifier() contractx.Classifier {
	return r.classifier
}

func (r *registryImpl) Module(c contractx.Capability) (contractx.CapabilityModule, bool) {
	m, ok := r.modules[c]
	return m, ok
}

// ModelProvider returns the chat model serving one role.
type ModelProvider func(ctx context.Context, role llmx.Role) (einomodel.ToolCallingChatModel, error)

// OpenRouterModels builds one OpenRouter chat model per role from cfg.
func OpenRouterModels(cfg llmx.Config) ModelProvider {
	return func(ctx context.Context, role llmx.Role) (einomodel.ToolCallingChatModel, error) {
		return openrouterx.NewChatModel(ctx, cfg.OpenRouterFor(role))
	}
}

func NewRegistry(ctx context.Context, cfg llmx.Config, window int) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewRegistryWithModels(ctx, OpenRouterModels(cfg), window)
}

// NewRegistryWithModels wires the classifier and every capability module. LOGISTICS is
// deterministic and gets no model.
func NewRegistryWithModels(ctx context.Context, models ModelProvider, window int) (contractx.Registry, error) {
	if models == nil {
		return nil, fmt.Errorf("%w: model provider is required", contractx.ErrValidation)
	}
	prompts := promptx.LoadPromptSet()

	classifierModel, err := models(ctx, llmx.RoleClassifier)
	if err != nil {
		return nil, fmt.Errorf("%w: create classifier model: %v", contractx.ErrModelInvoke, err)
	}
	classifier, err := newClassifier(ctx, classifierModel, prompts.Classifier, window)
	if err != nil {
		return nil, err
	}

	reg := &registryImpl{
		classifier: classifier,
		modules:    make(map[contractx.Capability]contractx.CapabilityModule, len(contractx.AllCapabilities)),
	}

	for _, c := range contractx.AllCapabilities {
		role, ok := llmx.RoleFor(c)
		if !ok {
			continue
		}
		chatModel, err := models(ctx, role)
		if err != nil {
			return nil, fmt.Errorf("%w: create %s model: %v", contractx.ErrModelInvoke, role, err)
		}
		systemPrompt, err := prompts.For(c)
		if err != nil {
			return nil, err
		}
		m, err := newLLMModule(ctx, c, chatModel, systemPrompt, window)
		if err != nil {
			return nil, err
		}
		reg.modules[c] = m
	}
	reg.modules[contractx.CapabilityLogistics] = newLogisticsModule()

	return reg, nil
}
