package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

var deliveryAliases = map[string]string{
	"pickup":    statex.DeliveryPickup,
	"pick up":   statex.DeliveryPickup,
	"pick-up":   statex.DeliveryPickup,
	"collect":   statex.DeliveryPickup,
	"takeaway":  statex.DeliveryPickup,
	"take away": statex.DeliveryPickup,
	"delivery":  statex.DeliveryDelivery,
	"deliver":   statex.DeliveryDelivery,
	"delivered": statex.DeliveryDelivery,
}

var paymentAliases = map[string]string{
	"cash":          "cash",
	"cod":           "cash",
	"card":          "card",
	"credit card":   "card",
	"debit card":    "card",
	"credit":        "card",
	"transfer":      "transfer",
	"bank transfer": "transfer",
	"bank":          "transfer",
	"qr":            "qr",
	"qr code":       "qr",
	"promptpay":     "qr",
}

// NormalizeDeliveryType maps customer wording onto pickup or delivery.
func NormalizeDeliveryType(raw string) (string, bool) {
	v, ok := deliveryAliases[statex.IdentityKey(raw)]
	return v, ok
}

// NormalizePaymentMethod maps customer wording onto cash, card, transfer or qr.
func NormalizePaymentMethod(raw string) (string, bool) {
	v, ok := paymentAliases[statex.IdentityKey(raw)]
	return v, ok
}

func setDeliveryType(_ context.Context, env *Env, args map[string]any) contractx.ToolResult {
	raw, err := stringArg(args, "delivery_type", true)
	if err != nil {
		return invalidArg(ToolSetDeliveryType, err)
	}
	deliveryType, ok := NormalizeDeliveryType(raw)
	if !ok {
		return contractx.FailedResult(ToolSetDeliveryType, contractx.CodeInvalidArgument,
			fmt.Sprintf("unknown delivery type %q, expected pickup or delivery", raw))
	}

	patch := statex.Metadata{statex.MetaDeliveryType: deliveryType}
	needsAddress := deliveryType == statex.DeliveryDelivery && !env.Context().Metadata.Bool(statex.MetaAddressValidated)
	return contractx.ToolResult{
		Success:       true,
		Message:       "delivery type set to " + deliveryType,
		Data:          map[string]any{"delivery_type": deliveryType, "needs_address": needsAddress},
		MetadataPatch: patch,
	}
}

func validateAddress(ctx context.Context, env *Env, args map[string]any) contractx.ToolResult {
	address, err := stringArg(args, "address", true)
	if err != nil {
		return invalidArg(ToolValidateAddress, err)
	}

	verdict, err := env.Addresses.Validate(ctx, address)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("conversation_id", env.Scope.ConversationID).Msg("address validation unavailable")
		return contractx.FailedResult(ToolValidateAddress, contractx.CodeStoreError, "the address could not be checked right now")
	}
	if !verdict.Valid {
		return contractx.ToolResult{
			Success:       false,
			ErrorCode:     contractx.CodeInvalidAddress,
			Message:       verdict.Reason,
			Data:          map[string]any{"address": address, "valid": false},
			MetadataPatch: statex.Metadata{statex.MetaAddressValidated: false},
		}
	}

	normalized := strings.TrimSpace(verdict.Normalized)
	if normalized == "" {
		normalized = address
	}
	return contractx.ToolResult{
		Success: true,
		Message: "address confirmed",
		Data:    map[string]any{"address": normalized, "valid": true},
		MetadataPatch: statex.Metadata{
			statex.MetaDeliveryType:     statex.DeliveryDelivery,
			statex.MetaDeliveryAddress:  normalized,
			statex.MetaAddressValidated: true,
		},
	}
}

func setPaymentMethod(_ context.Context, env *Env, args map[string]any) contractx.ToolResult {
	raw, err := stringArg(args, "payment_method", true)
	if err != nil {
		return invalidArg(ToolSetPaymentMethod, err)
	}
	method, ok := NormalizePaymentMethod(raw)
	if !ok {
		return contractx.FailedResult(ToolSetPaymentMethod, contractx.CodeInvalidArgument,
			fmt.Sprintf("unsupported payment method %q, expected cash, card, transfer or qr", raw))
	}
	return contractx.ToolResult{
		Success:       true,
		Message:       "payment method set to " + method,
		Data:          map[string]any{"payment_method": method},
		MetadataPatch: statex.Metadata{statex.MetaPaymentMethod: method},
	}
}
