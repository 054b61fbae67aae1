package specialist

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
	"github.com/tanpawarit/chative-commerce/agent/tool"
)

// logisticsModule resolves delivery, address and payment straight from extracted data.
// It never calls a model.
type logisticsModule struct{}

func newLogisticsModule() *logisticsModule {
	return &logisticsModule{}
}

func (logisticsModule) Capability() contractx.Capability {
	return contractx.CapabilityLogistics
}

func (l logisticsModule) Run(_ context.Context, req contractx.CapabilityRequest) (contractx.CapabilityResponse, error) {
	if req.Context.ConversationID == "" {
		return contractx.CapabilityResponse{}, fmt.Errorf("%w: conversation id is required", contractx.ErrValidation)
	}
	if req.Finalizing() {
		return contractx.CapabilityResponse{Content: l.finalize(req)}, nil
	}

	reqs := logisticsToolRequests(req.Parameters)
	if len(reqs) == 0 {
		return contractx.CapabilityResponse{Content: nextLogisticsQuestion(req.Context.Metadata, req.Action)}, nil
	}
	return contractx.CapabilityResponse{ToolRequests: reqs}, nil
}

func logisticsToolRequests(params map[string]any) []contractx.ToolRequest {
	var reqs []contractx.ToolRequest
	if v := paramString(params, contractx.DataDeliveryType); v != "" {
		reqs = append(reqs, contractx.ToolRequest{Tool: tool.ToolSetDeliveryType, Args: map[string]any{"delivery_type": v}})
	}
	if v := paramString(params, contractx.DataAddress); v != "" {
		reqs = append(reqs, contractx.ToolRequest{Tool: tool.ToolValidateAddress, Args: map[string]any{"address": v}})
	}
	if v := paramString(params, contractx.DataPaymentMethod); v != "" {
		reqs = append(reqs, contractx.ToolRequest{Tool: tool.ToolSetPaymentMethod, Args: map[string]any{"payment_method": v}})
	}
	return reqs
}

func (logisticsModule) finalize(req contractx.CapabilityRequest) string {
	parts := make([]string, 0, len(req.ToolResults)+1)
	for _, r := range req.ToolResults {
		parts = append(parts, describeLogisticsResult(r))
	}
	if q := nextLogisticsQuestion(req.Context.Metadata, ""); q != "" {
		parts = append(parts, q)
	}
	return strings.Join(parts, " ")
}

func describeLogisticsResult(r contractx.ToolResult) string {
	if !r.Success {
		switch r.ErrorCode {
		case contractx.CodeInvalidAddress:
			msg := "I couldn't use that address"
			if r.Message != "" {
				msg += " (" + r.Message + ")"
			}
			return msg + "."
		case contractx.CodeInvalidArgument:
			return "Sorry, I didn't catch that option."
		default:
			return "Sorry, I couldn't save that detail right now."
		}
	}
	switch r.Tool {
	case tool.ToolSetDeliveryType:
		if data, ok := r.Data.(map[string]any); ok && data["delivery_type"] == statex.DeliveryPickup {
			return "Got it, you'll pick up your order."
		}
		return "Got it, we'll deliver your order."
	case tool.ToolValidateAddress:
		return "Your delivery address is confirmed."
	case tool.ToolSetPaymentMethod:
		if data, ok := r.Data.(map[string]any); ok {
			return fmt.Sprintf("You'll pay by %v.", data["payment_method"])
		}
		return "Payment method saved."
	}
	return r.Message
}

// nextLogisticsQuestion asks for the first unknown detail: delivery type, then address, then payment.
func nextLogisticsQuestion(meta statex.Metadata, action string) string {
	deliveryType := meta.String(statex.MetaDeliveryType)
	switch {
	case deliveryType == "":
		return "Would you like pickup or delivery?"
	case deliveryType == statex.DeliveryDelivery && !meta.Bool(statex.MetaAddressValidated):
		return "What address should we deliver to?"
	case meta.String(statex.MetaPaymentMethod) == "":
		return "How would you like to pay: cash, card, transfer or QR?"
	}
	if action != "" {
		return "Your delivery and payment details are all set."
	}
	return ""
}

func paramString(params map[string]any, key string) string {
	if params == nil {
		return ""
	}
	s, _ := params[key].(string)
	return strings.TrimSpace(s)
}
