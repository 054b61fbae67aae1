package contract

import "context"

type Classifier interface {
	Classify(ctx context.Context, req ClassifierRequest) ([]Intent, error)
}

// CapabilityModule handles one category of customer intent.
// A request without ToolResults is the act pass; with ToolResults it is the finalize pass.
type CapabilityModule interface {
	Capability() Capability
	Run(ctx context.Context, req CapabilityRequest) (CapabilityResponse, error)
}

type Registry interface {
	Classifier() Classifier
	Module(c Capability) (CapabilityModule, bool)
}

// ToolGateway executes tool calls for one capability, applying each result to scope.Context
// before the next call runs.
type ToolGateway interface {
	Execute(ctx context.Context, scope ToolScope, reqs []ToolRequest) ([]ToolResult, error)
}

// TextGenerator is a plain prompt-in/text-out completion, used by the humanizer pass.
type TextGenerator interface {
	Generate(ctx context.Context, system, input string) (string, error)
}
