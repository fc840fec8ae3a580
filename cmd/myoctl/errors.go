package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/myolink/internal/hand"
	"github.com/srg/myolink/internal/lua"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the device connection was unexpectedly lost
	// during operation. This is distinct from hand.ErrNotConnected, which
	// indicates an attempt to use a device that was never connected or was
	// already disconnected.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError renders an error for the terminal. Known failure classes get
// a short, actionable message; everything else prints unchanged.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrConnectionLost):
		return "connection to the device was lost; check the hand and try again"
	case errors.Is(err, hand.ErrNotConnected):
		return fmt.Sprintf("device is not connected: %s", err)
	case errors.Is(err, hand.ErrAlreadyConnected):
		return fmt.Sprintf("device is already connected: %s", err)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("operation timed out: %s", err)
	}

	// Pressure/argument validation failures are already phrased for humans
	var verr *hand.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}

	// Script failures carry their own source/line context
	var lerr *lua.LuaError
	if errors.As(err, &lerr) {
		return fmt.Sprintf("gesture script failed: %s", lerr.Error())
	}

	return err.Error()
}
