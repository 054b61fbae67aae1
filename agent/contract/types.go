package contract

import (
	"slices"
	"strings"

	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

type Capability string

const (
	CapabilitySales     Capability = "SALES"
	CapabilityCheckout  Capability = "CHECKOUT"
	CapabilityMenu      Capability = "MENU"
	CapabilitySupport   Capability = "SUPPORT"
	CapabilityLogistics Capability = "LOGISTICS"
	CapabilityGreeting  Capability = "GREETING"
)

var AllCapabilities = []Capability{
	CapabilitySales,
	CapabilityCheckout,
	CapabilityMenu,
	CapabilitySupport,
	CapabilityLogistics,
	CapabilityGreeting,
}

func (c Capability) Valid() bool {
	return slices.Contains(AllCapabilities, c)
}

// ParseCapability accepts any casing, e.g. a model's "checkout".
func ParseCapability(raw string) (Capability, bool) {
	c := Capability(strings.ToUpper(strings.TrimSpace(raw)))
	return c, c.Valid()
}

type IntentType string

const (
	IntentGreeting  IntentType = "GREETING"
	IntentMenu      IntentType = "MENU"
	IntentOrder     IntentType = "ORDER"
	IntentLogistics IntentType = "LOGISTICS"
	IntentPayment   IntentType = "PAYMENT"
	IntentCheckout  IntentType = "CHECKOUT"
	IntentSupport   IntentType = "SUPPORT"
	IntentUnclear   IntentType = "UNCLEAR"
)

var AllIntentTypes = []IntentType{
	IntentGreeting,
	IntentMenu,
	IntentOrder,
	IntentLogistics,
	IntentPayment,
	IntentCheckout,
	IntentSupport,
	IntentUnclear,
}

func (t IntentType) Valid() bool {
	return slices.Contains(AllIntentTypes, t)
}

// Intent is one classified customer goal. Priority 1 is the most urgent.
type Intent struct {
	Type          IntentType     `json:"type"`
	Confidence    float64        `json:"confidence"`
	ExtractedData map[string]any `json:"extracted_data,omitempty"`
	Priority      int            `json:"priority"`
}

func UnclearIntent() Intent {
	return Intent{Type: IntentUnclear, Confidence: 0.5, Priority: 1}
}

// SortIntents orders intents by ascending priority, keeping classifier order for ties.
func SortIntents(intents []Intent) []Intent {
	out := slices.Clone(intents)
	slices.SortStableFunc(out, func(a, b Intent) int {
		return a.Priority - b.Priority
	})
	return out
}

// Well-known extracted data keys.
const (
	DataItems         = "items"
	DataProductName   = "product_name"
	DataQuantity      = "quantity"
	DataNotes         = "notes"
	DataDeliveryType  = "delivery_type"
	DataAddress       = "address"
	DataPaymentMethod = "payment_method"
	DataCategory      = "category"
	DataQuestion      = "question"
	DataCustomerName  = "customer_name"
)

// Planner actions.
const (
	ActionGreetAndShowMenu = "greet_and_show_menu"
	ActionShowMenu         = "show_menu"
	ActionProcessOrder     = "process_order"
	ActionSetDeliveryType  = "set_delivery_type"
	ActionSetAddress       = "set_address"
	ActionSetPayment       = "set_payment_method"
	ActionHandleEmptyCart  = "handle_empty_cart"
	ActionFinalizeOrder    = "finalize_order"
	ActionAnswerQuestion   = "answer_question"
	ActionClarify          = "clarify"
	ActionConverse         = "converse"
)

// ExecutionStep is one node of a turn's execution plan.
type ExecutionStep struct {
	StepID           string         `json:"step_id"`
	Capability       Capability     `json:"capability"`
	Action           string         `json:"action"`
	Parameters       map[string]any `json:"parameters,omitempty"`
	Dependencies     []string       `json:"dependencies,omitempty"`
	CanRunInParallel bool           `json:"can_run_in_parallel"`
}

type ToolRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// CartSnapshot is the cart as persisted right after a cart-mutating tool.
type CartSnapshot struct {
	Items statex.Cart `json:"items"`
	Total float64     `json:"total"`
	Count int         `json:"count"`
}

type ToolResult struct {
	Tool          string          `json:"tool"`
	Success       bool            `json:"success"`
	Data          any             `json:"data,omitempty"`
	Message       string          `json:"message,omitempty"`
	ErrorCode     string          `json:"error_code,omitempty"`
	MetadataPatch statex.Metadata `json:"metadata_patch,omitempty"`
	Cart          *CartSnapshot   `json:"cart,omitempty"`
}

func FailedResult(tool, code, message string) ToolResult {
	return ToolResult{Tool: tool, Success: false, ErrorCode: code, Message: message}
}

// ContextualData is the turn's working view of the conversation, threaded through every step.
type ContextualData struct {
	ConversationID string                   `json:"conversation_id"`
	State          statex.ConversationState `json:"state"`
	Cart           statex.Cart              `json:"cart"`
	Metadata       statex.Metadata          `json:"metadata"`
}

func NewContextualData(conv *statex.Conversation) ContextualData {
	if conv == nil {
		return ContextualData{Metadata: statex.Metadata{}}
	}
	return ContextualData{
		ConversationID: conv.ID,
		State:          conv.State,
		Cart:           slices.Clone(conv.Cart),
		Metadata:       conv.Metadata.Clone(),
	}
}

func (c ContextualData) Clone() ContextualData {
	c.Cart = slices.Clone(c.Cart)
	c.Metadata = c.Metadata.Clone()
	return c
}

func (c ContextualData) Totals() statex.CartTotals {
	return statex.CartTotals{Total: c.Cart.Total(), Count: c.Cart.Count()}
}

// Apply folds a tool result's cart snapshot and metadata patch into the context.
func (c *ContextualData) Apply(r ToolResult) {
	if r.Cart != nil {
		c.Cart = slices.Clone(r.Cart.Items)
	}
	if len(r.MetadataPatch) > 0 {
		c.Metadata = c.Metadata.Merge(r.MetadataPatch)
	}
}

type ClassifierRequest struct {
	UserMessage  string                   `json:"user_message"`
	History      []statex.Message         `json:"history,omitempty"`
	CurrentState statex.ConversationState `json:"current_state"`
	CartCount    int                      `json:"cart_count"`
}

type CapabilityRequest struct {
	UserMessage string           `json:"user_message"`
	History     []statex.Message `json:"history,omitempty"`
	Action      string           `json:"action"`
	Parameters  map[string]any   `json:"parameters,omitempty"`
	Context     ContextualData   `json:"context"`
	ToolResults []ToolResult     `json:"tool_results,omitempty"`
}

func (r CapabilityRequest) Finalizing() bool {
	return len(r.ToolResults) > 0
}

type CapabilityResponse struct {
	Content      string        `json:"message"`
	ToolRequests []ToolRequest `json:"tool_requests,omitempty"`
	HandoffTo    Capability    `json:"handoff_to,omitempty"`
}

type ToolScope struct {
	ConversationID string
	Capability     Capability
	Context        *ContextualData
}

// StepOutput is what one executed (or skipped) plan step contributed to the turn.
type StepOutput struct {
	StepID      string       `json:"step_id"`
	Capability  Capability   `json:"capability"`
	Action      string       `json:"action"`
	Content     string       `json:"content,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
	HandoffTo   Capability   `json:"handoff_to,omitempty"`
	Skipped     bool         `json:"skipped,omitempty"`
	Failed      bool         `json:"failed,omitempty"`
	Err         string       `json:"error,omitempty"`
}
