package prompt

import (
	"errors"
	"strings"
	"testing"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
)

func TestLoadPromptSetHasEveryPrompt(t *testing.T) {
	t.Parallel()

	set := LoadPromptSet()
	for name, p := range map[string]string{
		"classifier": set.Classifier,
		"sales":      set.Sales,
		"checkout":   set.Checkout,
		"menu":       set.Menu,
		"support":    set.Support,
		"greeting":   set.Greeting,
		"humanizer":  set.Humanizer,
	} {
		if p == "" {
			t.Fatalf("%s prompt is empty", name)
		}
		// Prompts are rendered as FString templates, so braces would be read as variables.
		if strings.ContainsAny(p, "{}") {
			t.Fatalf("%s prompt contains template braces", name)
		}
	}
}

func TestPromptSetFor(t *testing.T) {
	t.Parallel()

	set := LoadPromptSet()
	if _, err := set.For(contractx.CapabilityCheckout); err != nil {
		t.Fatalf("For(CHECKOUT) error = %v", err)
	}
	if _, err := set.For(contractx.CapabilityLogistics); !errors.Is(err, contractx.ErrPromptMissing) {
		t.Fatalf("For(LOGISTICS) error = %v, want ErrPromptMissing", err)
	}
}
