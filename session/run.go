package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// ProgressCallback is called when the run phase changes
type ProgressCallback func(phase string)

// RunOptions defines options for a managed session run
type RunOptions struct {
	ConnectTimeout time.Duration
}

// RunCallback processes a connected session and produces output of type R
type RunCallback[R any] func(*Session) (R, error)

// Run connects a session to a device, executes the callback against it, and
// disconnects afterwards. The session lifecycle (connection and disconnection)
// is managed automatically. The callback receives the connected session and
// can return any result type R along with an error.
// Optional progressCallback can be provided for connection progress updates.
func Run[R any](ctx context.Context, address string, opts *RunOptions, logger *logrus.Logger, progressCallback ProgressCallback, callback RunCallback[R]) (R, error) {
	var zero R
	if opts == nil {
		opts = &RunOptions{ConnectTimeout: DefaultConnectTimeout}
	}
	if logger == nil {
		logger = logrus.New()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	progressCallback("Connecting")

	sess := New(address, WithLogger(logger), WithConnectTimeout(opts.ConnectTimeout))

	if err := sess.Connect(ctx); err != nil {
		progressCallback("Failed")
		return zero, err
	}

	progressCallback("Connected")

	// Ensure the session is disconnected after the callback completes
	defer func(sess *Session) {
		err := sess.Disconnect()
		if err != nil {
			logger.WithError(err).Error("failed to disconnect session")
		}
	}(sess)

	progressCallback("Processing results")

	return callback(sess)
}
