package response

import (
	"regexp"
	"strings"
	"unicode/utf8"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
	statex "github.com/tanpawarit/chative-commerce/agent/state"
	"github.com/tanpawarit/chative-commerce/agent/tool"
)

type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Issue codes.
const (
	IssueRoleConfusion   = "role_confusion"
	IssueUnbackedPrice   = "unbacked_price"
	IssueMissingConfirm  = "missing_confirmation"
	IssueRepeatedRequest = "repeated_request"
	IssueTooLong         = "too_long"
	IssueUpsellNagging   = "upsell_nagging"
)

const (
	MaxReplyLength    = 500
	MaxUpsellAttempts = statex.MaxUpsellAttempts
)

type Issue struct {
	Code     string   `json:"code"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Report is the outcome of one validation run. Errors block the reply; warnings are only logged.
type Report struct {
	Issues []Issue `json:"issues,omitempty"`
}

func (r Report) HasErrors() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

func (r Report) Errors() []Issue {
	return r.filter(SeverityError)
}

func (r Report) Warnings() []Issue {
	return r.filter(SeverityWarning)
}

func (r Report) filter(s Severity) []Issue {
	var out []Issue
	for _, i := range r.Issues {
		if i.Severity == s {
			out = append(out, i)
		}
	}
	return out
}

// Feedback lists the blocking problems as plain sentences for a rewrite pass.
func (r Report) Feedback() []string {
	var out []string
	for _, i := range r.Errors() {
		out = append(out, i.Message)
	}
	return out
}

// ValidationInput is what a reply is checked against.
type ValidationInput struct {
	Text        string
	State       statex.ConversationState
	ToolResults []contractx.ToolResult
	Metadata    statex.Metadata
}

type check func(in ValidationInput) *Issue

// Validator runs a fixed checklist over generated replies.
type Validator struct {
	checks []check
}

func NewValidator() *Validator {
	return &Validator{checks: []check{
		checkRoleConfusion,
		checkUnbackedPrice,
		checkConfirmation,
		checkRepeatedRequest,
		checkLength,
		checkUpsell,
	}}
}

func (v *Validator) Validate(in ValidationInput) Report {
	var report Report
	for _, c := range v.checks {
		if issue := c(in); issue != nil {
			report.Issues = append(report.Issues, *issue)
		}
	}
	return report
}

var (
	roleConfusionPattern = regexp.MustCompile(`(?i)\b(i'll have|i will have|i'd like to order|i want to order|send me|can i get|give me|i'll take|i will take)\b`)
	pricePattern         = regexp.MustCompile(`(?i)(฿\s?\d|\$\s?\d|\d\s?฿|\d+(?:[.,]\d{1,2})?\s?(?:thb|baht|dollars?)\b)`)
	confirmPattern       = regexp.MustCompile(`(?i)(confirm|place (?:the|your) order|go ahead|is (?:that|this|everything) correct|shall i)`)
	askNamePattern       = regexp.MustCompile(`(?i)(what(?:'s| is) your name|may i (?:have|know|ask) your name|can i (?:have|get) your name)`)
	askAddressPattern    = regexp.MustCompile(`(?i)(what(?:'s| is) your (?:delivery )?address|where should we deliver|what address|your (?:delivery )?address\?)`)
	upsellPattern        = regexp.MustCompile(`(?i)(would you like to add|want to add|add (?:a|an|some) .{0,30}\?|how about (?:adding|a|an|some)|goes great with|pair (?:it|them) with)`)
)

func normalizeQuotes(s string) string {
	return strings.NewReplacer("’", "'", "‘", "'").Replace(s)
}

func checkRoleConfusion(in ValidationInput) *Issue {
	if !roleConfusionPattern.MatchString(normalizeQuotes(in.Text)) {
		return nil
	}
	return &Issue{
		Code:     IssueRoleConfusion,
		Severity: SeverityError,
		Message:  "the reply speaks as the customer instead of the assistant",
	}
}

var pricingTools = map[string]bool{
	tool.ToolAddItem:            true,
	tool.ToolUpdateQuantity:     true,
	tool.ToolRemoveItem:         true,
	tool.ToolGetOrderSummary:    true,
	tool.ToolSuggestAddon:       true,
	tool.ToolGetMenu:            true,
	tool.ToolCheckAvailability:  true,
	tool.ToolGetCheckoutSummary: true,
	tool.ToolCreateOrder:        true,
}

func checkUnbackedPrice(in ValidationInput) *Issue {
	if !pricePattern.MatchString(in.Text) {
		return nil
	}
	for _, r := range in.ToolResults {
		if r.Success && (pricingTools[r.Tool] || r.Cart != nil) {
			return nil
		}
	}
	return &Issue{
		Code:     IssueUnbackedPrice,
		Severity: SeverityWarning,
		Message:  "the reply mentions a price but no tool produced pricing data this turn",
	}
}

func checkConfirmation(in ValidationInput) *Issue {
	if in.State != statex.StateConfirmingOrder {
		return nil
	}
	for _, r := range in.ToolResults {
		if r.Tool == tool.ToolCreateOrder {
			return nil
		}
	}
	if confirmPattern.MatchString(normalizeQuotes(in.Text)) {
		return nil
	}
	return &Issue{
		Code:     IssueMissingConfirm,
		Severity: SeverityWarning,
		Message:  "the order is awaiting confirmation but the reply does not ask for it",
	}
}

func checkRepeatedRequest(in ValidationInput) *Issue {
	text := normalizeQuotes(in.Text)
	switch {
	case in.Metadata.String(statex.MetaCustomerName) != "" && askNamePattern.MatchString(text):
		return &Issue{
			Code:     IssueRepeatedRequest,
			Severity: SeverityWarning,
			Message:  "the reply asks for the customer's name again",
		}
	case in.Metadata.Bool(statex.MetaAddressValidated) && askAddressPattern.MatchString(text):
		return &Issue{
			Code:     IssueRepeatedRequest,
			Severity: SeverityWarning,
			Message:  "the reply asks for an address that is already validated",
		}
	}
	return nil
}

func checkLength(in ValidationInput) *Issue {
	if utf8.RuneCountInString(in.Text) <= MaxReplyLength {
		return nil
	}
	return &Issue{
		Code:     IssueTooLong,
		Severity: SeverityWarning,
		Message:  "the reply is longer than 500 characters",
	}
}

func checkUpsell(in ValidationInput) *Issue {
	if in.Metadata.Int(statex.MetaUpsellAttempts) <= MaxUpsellAttempts {
		return nil
	}
	offered := upsellPattern.MatchString(in.Text)
	for _, r := range in.ToolResults {
		if r.Tool == tool.ToolSuggestAddon && r.Success {
			offered = true
		}
	}
	if !offered {
		return nil
	}
	return &Issue{
		Code:     IssueUpsellNagging,
		Severity: SeverityError,
		Message:  "the reply offers another add-on after the upsell limit was reached",
	}
}
