package tool

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"
)

type AddressVerdict struct {
	Valid      bool
	Normalized string
	Reason     string
}

// AddressValidator checks a delivery address, e.g. against a geocoding service.
type AddressValidator interface {
	Validate(ctx context.Context, address string) (AddressVerdict, error)
}

// HeuristicAddressValidator accepts addresses that look complete: long enough,
// at least two words and a house or postal number.
type HeuristicAddressValidator struct{}

func (HeuristicAddressValidator) Validate(_ context.Context, address string) (AddressVerdict, error) {
	normalized := strings.Join(strings.Fields(address), " ")
	switch {
	case utf8.RuneCountInString(normalized) < 10:
		return AddressVerdict{Reason: "the address is too short"}, nil
	case len(strings.Fields(normalized)) < 2:
		return AddressVerdict{Reason: "the address needs a street name"}, nil
	case strings.IndexFunc(normalized, unicode.IsDigit) < 0:
		return AddressVerdict{Reason: "the address needs a house or postal number"}, nil
	}
	return AddressVerdict{Valid: true, Normalized: normalized}, nil
}
