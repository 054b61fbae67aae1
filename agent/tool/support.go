package tool

import (
	"context"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

func searchFAQ(_ context.Context, env *Env, args map[string]any) contractx.ToolResult {
	query, err := stringArg(args, "query", true)
	if err != nil {
		return invalidArg(ToolSearchFAQ, err)
	}
	matches := env.Catalog.SearchFAQ(query, 3)
	msg := "found a matching answer"
	if len(matches) == 0 {
		msg = "no matching answer in the FAQ"
	}
	return contractx.ToolResult{
		Success: true,
		Message: msg,
		Data:    map[string]any{"matches": matches},
	}
}

func requestHumanHandoff(_ context.Context, _ *Env, args map[string]any) contractx.ToolResult {
	reason, err := stringArg(args, "reason", true)
	if err != nil {
		return invalidArg(ToolRequestHumanHandoff, err)
	}
	return contractx.ToolResult{
		Success:       true,
		Message:       "a team member will take over",
		Data:          map[string]any{"reason": reason},
		MetadataPatch: statex.Metadata{statex.MetaHandoffRequested: true},
	}
}
