// Package handfactory maps device addresses to controllers. It is the single
// seam between address strings and transports: callers hand it "sim://left"
// and get a hand.Controller back without knowing which driver serves it.
package handfactory

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/myolink/internal/hand"
	"github.com/srg/myolink/internal/hand/sim"
)

// ControllerFactory builds a controller for a parsed address.
// This is a variable so that it can be overridden in tests.
var ControllerFactory = func(addr hand.Address, logger *logrus.Logger) (hand.Controller, error) {
	switch addr.Scheme {
	case hand.SchemeSim:
		return sim.Shared(addr.Name, nil, logger), nil
	default:
		return nil, fmt.Errorf("unsupported device scheme %q in address %q", addr.Scheme, addr)
	}
}

// CreateController parses an address and builds its controller.
func CreateController(address string, logger *logrus.Logger) (hand.Controller, error) {
	if logger == nil {
		logger = logrus.New()
	}
	addr, err := hand.ParseAddress(address)
	if err != nil {
		return nil, err
	}
	return ControllerFactory(addr, logger)
}

// NewDiscoverer returns the discoverer for a scheme, or nil when the scheme
// cannot enumerate devices.
var NewDiscoverer = func(scheme string, logger *logrus.Logger) hand.Discoverer {
	switch scheme {
	case hand.SchemeSim:
		return sim.NewDiscoverer(logger)
	default:
		return nil
	}
}
