// Package choreo runs gesture scripts against a hand device. Play owns the
// whole lifecycle: connect a session, bind the myo Lua API, preload the
// gesture helper library, execute the script, disconnect.
package choreo

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	myolink "github.com/srg/myolink"
	"github.com/srg/myolink/internal/lua"
	"github.com/srg/myolink/session"
)

// DefaultDrainTimeout is how long Play waits for trailing script output
// after the script itself has finished.
const DefaultDrainTimeout = 50 * time.Millisecond

// PlayOptions contains all the configuration for running a gesture script
type PlayOptions struct {
	Address        string            // Device address (e.g. sim://left)
	ConnectTimeout time.Duration     // Device connection timeout (0 = session default)
	Args           map[string]string // Values exposed to the script via the arg[] table
	Stdout         io.Writer         // Script output (nil = discard)
	Stderr         io.Writer         // Script error output (nil = discard)
	DrainTimeout   time.Duration     // Output drain window after the script ends (0 = default)
	Logger         *logrus.Logger    // Logger instance
}

// ProgressCallback is called when the play phase changes
type ProgressCallback func(phase string)

// Play connects to the device, runs the gesture script against it, and
// disconnects. It blocks until the script completes, fails, or ctx is
// canceled. Scripts see the device as the myo table and the helper library
// as require("gestures").
func Play(ctx context.Context, script string, opts *PlayOptions, progressCallback ProgressCallback) error {
	// Validate options
	if opts == nil {
		return fmt.Errorf("failed to play gesture: options are required")
	}
	if opts.Address == "" {
		return fmt.Errorf("failed to play gesture: device address is required")
	}
	if strings.TrimSpace(script) == "" {
		return fmt.Errorf("failed to play gesture: script is empty")
	}

	// Set defaults
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}
	connectTimeout := opts.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = session.DefaultConnectTimeout
	}
	drainTimeout := opts.DrainTimeout
	if drainTimeout == 0 {
		drainTimeout = DefaultDrainTimeout
	}

	playCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	progressCallback("Connecting")

	sess := session.New(opts.Address,
		session.WithLogger(logger),
		session.WithConnectTimeout(connectTimeout))

	if err := sess.Connect(playCtx); err != nil {
		progressCallback("Failed")
		return fmt.Errorf("failed to connect to device %s: %w", opts.Address, err)
	}

	progressCallback("Connected")

	api := lua.NewAPI(sess, logger)

	// Disconnect before closing the engine: tearing down the device cancels
	// subscription pumps that would otherwise still call into the Lua state.
	defer func() {
		if err := sess.Disconnect(); err != nil {
			logger.WithError(err).Warn("Failed to disconnect after gesture")
		}
		api.Close()
	}()

	api.Engine.PreloadLuaLibrary(myolink.GestureLibScript, "gestures", "gestures.lua")

	progressCallback("Running gesture")

	return lua.ExecuteScriptWithOutput(playCtx, api, logger, script, opts.Args, opts.Stdout, opts.Stderr, drainTimeout)
}
