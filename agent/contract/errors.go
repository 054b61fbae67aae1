package contract

import "errors"

var (
	ErrModelInvoke      = errors.New("model invoke failed")
	ErrSchemaViolation  = errors.New("model response violates schema")
	ErrPromptMissing    = errors.New("required prompt is missing")
	ErrValidation       = errors.New("validation failed")
	ErrUnknownTool      = errors.New("unknown tool")
	ErrToolNotAllowed   = errors.New("tool not allowed for capability")
	ErrConversationBusy = errors.New("conversation has a turn in flight")
)

// Tool error codes surfaced in ToolResult.ErrorCode.
const (
	CodeUnknownTool        = "UNKNOWN_TOOL"
	CodeToolNotAllowed     = "TOOL_NOT_ALLOWED"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeProductNotFound    = "PRODUCT_NOT_FOUND"
	CodeProductUnavailable = "PRODUCT_UNAVAILABLE"
	CodeItemNotInCart      = "ITEM_NOT_IN_CART"
	CodeEmptyCart          = "EMPTY_CART"
	CodeMissingDelivery    = "MISSING_DELIVERY"
	CodeMissingPayment     = "MISSING_PAYMENT"
	CodeInvalidAddress     = "INVALID_ADDRESS"
	CodeStoreError         = "STORE_ERROR"
	CodeUpsellLimit        = "UPSELL_LIMIT"
	CodeInternal           = "INTERNAL"
)
