package response

import (
	"fmt"
	"slices"
	"strings"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	"github.com/tanpawarit/chative-commerce/agent/tool"
)

const summarySeparator = " | "

// Combined is one turn's merged reply. Summary is for logs and never shown to the customer.
type Combined struct {
	Text        string                 `json:"text"`
	ToolResults []contractx.ToolResult `json:"tool_results,omitempty"`
	Summary     string                 `json:"summary"`
}

// Combine joins non-empty step contents in arrival order. A single output passes through untouched.
func Combine(outputs []contractx.StepOutput) Combined {
	texts := make([]string, 0, len(outputs))
	var results []contractx.ToolResult
	for _, out := range outputs {
		if c := strings.TrimSpace(out.Content); c != "" {
			texts = append(texts, c)
		}
		results = append(results, out.ToolResults...)
	}

	text := ""
	switch len(texts) {
	case 0:
	case 1:
		text = texts[0]
	default:
		text = strings.Join(texts, "\n\n")
	}

	return Combined{
		Text:        text,
		ToolResults: results,
		Summary:     Summarize(outputs),
	}
}

// Summarize renders a short execution summary such as "item added | delivery: pickup | payment: cash".
func Summarize(outputs []contractx.StepOutput) string {
	var parts []string
	add := func(s string) {
		if s != "" && !slices.Contains(parts, s) {
			parts = append(parts, s)
		}
	}
	for _, out := range outputs {
		switch {
		case out.Skipped:
			add(out.StepID + " skipped")
			continue
		case out.Failed:
			add(fmt.Sprintf("%s %s failed", strings.ToLower(string(out.Capability)), out.Action))
		}
		for _, r := range out.ToolResults {
			add(describeResult(r))
		}
	}
	if len(parts) == 0 {
		return "no actions"
	}
	return strings.Join(parts, summarySeparator)
}

func describeResult(r contractx.ToolResult) string {
	if !r.Success {
		if r.ErrorCode != "" {
			return fmt.Sprintf("%s failed (%s)", r.Tool, r.ErrorCode)
		}
		return r.Tool + " failed"
	}
	switch r.Tool {
	case tool.ToolAddItem:
		return "item added"
	case tool.ToolRemoveItem:
		return "item removed"
	case tool.ToolUpdateQuantity:
		return "quantity updated"
	case tool.ToolClearOrder:
		return "order cleared"
	case tool.ToolGetOrderSummary:
		return "order summarized"
	case tool.ToolSuggestAddon:
		return "addon suggested"
	case tool.ToolGetMenu:
		return "menu shown"
	case tool.ToolSendMenuLink:
		return "menu link sent"
	case tool.ToolCheckAvailability:
		return "availability checked"
	case tool.ToolGetCheckoutSummary:
		return "checkout reviewed"
	case tool.ToolCreateOrder:
		return "order created"
	case tool.ToolSetDeliveryType:
		return "delivery: " + dataString(r.Data, "delivery_type")
	case tool.ToolValidateAddress:
		return "address validated"
	case tool.ToolSetPaymentMethod:
		return "payment: " + dataString(r.Data, "payment_method")
	case tool.ToolSearchFAQ:
		return "faq answered"
	case tool.ToolRequestHumanHandoff:
		return "handoff requested"
	}
	return r.Tool
}

func dataString(data any, key string) string {
	m, ok := data.(map[string]any)
	if !ok {
		return "?"
	}
	s, ok := m[key].(string)
	if !ok || s == "" {
		return "?"
	}
	return s
}
