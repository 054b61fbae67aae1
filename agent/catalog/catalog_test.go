package catalog

import (
	"errors"
	"testing"

	statex "github.com/tanpawarit/chative-commerce/agent/state"
)

func mustDefault(t *testing.T) *Catalog {
	t.Helper()
	c, err := Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	return c
}

func TestLookupByNameAliasAndPlural(t *testing.T) {
	t.Parallel()

	c := mustDefault(t)
	cases := map[string]string{
		"classic burger":   "Classic Burger",
		"  BURGER ":        "Classic Burger",
		"burgers":          "Classic Burger",
		"fries":            "French Fries",
		"Cokes":            "Cola",
		"margherita pizza": "Margherita Pizza",
	}
	for input, want := range cases {
		got, err := c.Lookup(input)
		if err != nil {
			t.Fatalf("Lookup(%q) error = %v", input, err)
		}
		if got.Name != want {
			t.Fatalf("Lookup(%q) = %q, want %q", input, got.Name, want)
		}
	}

	if _, err := c.Lookup("sushi"); !errors.Is(err, ErrProductNotFound) {
		t.Fatalf("Lookup(sushi) error = %v, want ErrProductNotFound", err)
	}
}

func TestAvailabilityDefaultsToInStock(t *testing.T) {
	t.Parallel()

	c := mustDefault(t)
	truffle, _ := c.Lookup("truffle pizza")
	if truffle.InStock() {
		t.Fatalf("truffle pizza should be sold out")
	}
	cola, _ := c.Lookup("cola")
	if !cola.InStock() {
		t.Fatalf("cola should default to in stock")
	}
}

func TestByCategory(t *testing.T) {
	t.Parallel()

	c := mustDefault(t)
	if got := len(c.ByCategory("Drinks")); got != 2 {
		t.Fatalf("ByCategory(Drinks) = %d products, want 2", got)
	}
	if got := len(c.ByCategory("")); got != len(c.Products) {
		t.Fatalf("ByCategory(\"\") = %d, want all %d", got, len(c.Products))
	}
	if got := c.Categories(); len(got) != 4 || got[0] != "burgers" {
		t.Fatalf("Categories() = %v", got)
	}
}

func TestSearchFAQ(t *testing.T) {
	t.Parallel()

	c := mustDefault(t)
	got := c.SearchFAQ("What time do you open?", 1)
	if len(got) != 1 || got[0].Question != "What are your opening hours?" {
		t.Fatalf("SearchFAQ() = %+v", got)
	}
	if got := c.SearchFAQ("tell me a joke", 3); len(got) != 0 {
		t.Fatalf("SearchFAQ() = %+v, want no hits", got)
	}
}

func TestAddonSuggestionsSkipCartItems(t *testing.T) {
	t.Parallel()

	c := mustDefault(t)
	cart := statex.Cart{{ProductName: "Classic Burger", Quantity: 1, UnitPrice: 159}, {ProductName: "Cola", Quantity: 1, UnitPrice: 35}}
	got := c.AddonSuggestions(cart)
	if len(got) != 1 || got[0].Name != "French Fries" {
		t.Fatalf("AddonSuggestions() = %+v, want only French Fries", got)
	}
}

func TestParseRejectsDuplicates(t *testing.T) {
	t.Parallel()

	raw := []byte("products:\n  - name: Cola\n    price: 1\n  - name: cola\n    price: 2\n")
	if _, err := Parse(raw); !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("Parse() error = %v, want ErrInvalidCatalog", err)
	}
}
