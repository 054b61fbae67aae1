package prompt

import (
	_ "embed"
	"fmt"
	"strings"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
)

var (
	//go:embed template/classifier.txt
	classifierRaw string

	//go:embed template/sales.txt
	salesRaw string

	//go:embed template/checkout.txt
	checkoutRaw string

	//go:embed template/menu.txt
	menuRaw string

	//go:embed template/support.txt
	supportRaw string

	//go:embed template/greeting.txt
	greetingRaw string

	//go:embed template/humanizer.txt
	humanizerRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Classifier string
	Sales      string
	Checkout   string
	Menu       string
	Support    string
	Greeting   string
	Humanizer  string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Classifier: strings.TrimSpace(classifierRaw),
		Sales:      strings.TrimSpace(salesRaw),
		Checkout:   strings.TrimSpace(checkoutRaw),
		Menu:       strings.TrimSpace(menuRaw),
		Support:    strings.TrimSpace(supportRaw),
		Greeting:   strings.TrimSpace(greetingRaw),
		Humanizer:  strings.TrimSpace(humanizerRaw),
	}
}

// For returns the system prompt of an LLM-backed capability.
func (p PromptSet) For(c contractx.Capability) (string, error) {
	var out string
	switch c {
	case contractx.CapabilitySales:
		out = p.Sales
	case contractx.CapabilityCheckout:
		out = p.Checkout
	case contractx.CapabilityMenu:
		out = p.Menu
	case contractx.CapabilitySupport:
		out = p.Support
	case contractx.CapabilityGreeting:
		out = p.Greeting
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: capability=%s", contractx.ErrPromptMissing, c)
	}
	return out, nil
}
