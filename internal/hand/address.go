package hand

import (
	"fmt"
	"strings"
)

// Address identifies one hand: a transport scheme plus a transport-specific
// name, written "scheme://name". A bare name defaults to the sim scheme.
type Address struct {
	Scheme string
	Name   string
}

// String renders the canonical "scheme://name" form.
func (a Address) String() string {
	return a.Scheme + "://" + a.Name
}

// SchemeSim is the in-tree simulated transport.
const SchemeSim = "sim"

// ParseAddress parses and normalizes a device address. The scheme is
// lowercased; the name keeps its case but must be non-empty and free of
// whitespace.
func ParseAddress(address string) (Address, error) {
	raw := strings.TrimSpace(address)
	if raw == "" {
		return Address{}, fmt.Errorf("device address is not set")
	}

	scheme := SchemeSim
	name := raw
	if idx := strings.Index(raw, "://"); idx >= 0 {
		scheme = strings.ToLower(raw[:idx])
		name = raw[idx+3:]
	}

	if scheme == "" {
		return Address{}, fmt.Errorf("invalid device address %q: empty scheme", address)
	}
	if name == "" {
		return Address{}, fmt.Errorf("invalid device address %q: empty device name", address)
	}
	if strings.ContainsAny(name, " \t\n") {
		return Address{}, fmt.Errorf("invalid device address %q: device name contains whitespace", address)
	}

	return Address{Scheme: scheme, Name: name}, nil
}

// ValidateAddresses validates one or more address strings and returns their
// canonical forms, or an error naming the first offender.
func ValidateAddresses(addresses ...string) ([]string, error) {
	if len(addresses) == 0 {
		return nil, fmt.Errorf("at least one device address is required")
	}

	result := make([]string, 0, len(addresses))
	for i, address := range addresses {
		addr, err := ParseAddress(address)
		if err != nil {
			return nil, fmt.Errorf("address at index %d: %w", i, err)
		}
		result = append(result, addr.String())
	}
	return result, nil
}
