// Package session exposes a blocking facade over the asynchronous hand
// controllers. Each public method submits exactly one controller operation to
// a single owner goroutine, blocks the caller until it completes, and returns
// its result or failure unchanged. The session adds no retry, caching or
// scheduling policy of its own.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/myolink/internal/groutine"
	"github.com/srg/myolink/internal/hand"
	"github.com/srg/myolink/internal/handfactory"
)

// DefaultConnectTimeout bounds Connect when the caller's context carries no
// deadline of its own.
const DefaultConnectTimeout = 30 * time.Second

// freshPollInterval is how often GetPressuresFresh re-reads telemetry while
// waiting for a frame newer than the call instant.
const freshPollInterval = hand.DefaultUpdateInterval

// Option configures a Session.
type Option func(*options)

type options struct {
	logger         *logrus.Logger
	connectTimeout time.Duration
}

// WithLogger sets the logger used by the session and its controller.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithConnectTimeout bounds the device connection phase of Connect.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.connectTimeout = d }
}

// operation is one unit of work for the owner goroutine.
type operation struct {
	run  func(ctx context.Context) error
	done chan error
}

// Session is the synchronous client of one hand. It owns a controller and an
// owner goroutine; no two controller operations run concurrently through one
// session. A Session is safe for concurrent use: callers block in submission
// order.
type Session struct {
	address string
	opts    options
	logger  *logrus.Logger

	mu        sync.Mutex
	ctrl      hand.Controller
	info      hand.Info
	connected bool
	closing   bool

	reqCh       chan *operation
	inflight    sync.WaitGroup
	ownerCtx    context.Context
	ownerCancel context.CancelFunc
	ownerWg     sync.WaitGroup
}

// New creates a session for a device address. The device is not touched
// until Connect.
func New(address string, opts ...Option) *Session {
	o := options{
		connectTimeout: DefaultConnectTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
		o.logger.SetLevel(logrus.PanicLevel)
	}
	return &Session{
		address: address,
		opts:    o,
		logger:  o.logger,
	}
}

// Address returns the device address the session was created for.
func (s *Session) Address() string { return s.address }

// Connect builds the controller for the session's address, connects it,
// fetches device info and starts the owner goroutine. Connecting an already
// connected session fails with hand.ErrAlreadyConnected.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return hand.ErrAlreadyConnected
	}
	if s.closing {
		// A concurrent Disconnect is still draining the previous owner
		// goroutine; reconnecting now would hand it a fresh request channel
		// and waitgroup mid-teardown.
		return fmt.Errorf("%w: previous disconnect still in progress", hand.ErrDisconnecting)
	}

	ctrl, err := handfactory.CreateController(s.address, s.logger)
	if err != nil {
		return err
	}

	connectCtx := ctx
	if s.opts.connectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, s.opts.connectTimeout)
		defer cancel()
	}

	s.logger.WithField("address", s.address).Info("Connecting session...")

	if err := ctrl.Connect(connectCtx, &hand.ConnectOptions{ConnectTimeout: s.opts.connectTimeout}); err != nil {
		return err
	}

	info, err := ctrl.Info(connectCtx)
	if err != nil {
		if derr := ctrl.Disconnect(); derr != nil {
			s.logger.WithError(derr).Warn("Failed to disconnect after info query failure")
		}
		return err
	}

	s.ctrl = ctrl
	s.info = info
	s.reqCh = make(chan *operation)
	s.ownerCtx, s.ownerCancel = context.WithCancel(context.Background())

	groutine.GoWG(s.ownerCtx, "session-owner-"+s.address, &s.ownerWg, s.runOwner)

	s.connected = true
	s.logger.WithFields(logrus.Fields{
		"address": s.address,
		"model":   info.Model,
		"muscles": info.MuscleCount(),
	}).Info("Session connected")
	return nil
}

// runOwner executes submitted operations one at a time until the request
// channel is closed by Disconnect.
func (s *Session) runOwner(ctx context.Context) {
	for op := range s.reqCh {
		op.done <- op.run(ctx)
	}
}

// submit hands fn to the owner goroutine and blocks until it completes.
// Errors from fn are returned to the caller verbatim.
func (s *Session) submit(fn func(ctx context.Context, ctrl hand.Controller) error) error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return hand.ErrNotConnected
	}
	// Snapshot both under the mutex: a Disconnect/Connect cycle racing this
	// call swaps reqCh, and the inflight count must refer to the same
	// generation Disconnect will wait on.
	ctrl := s.ctrl
	reqCh := s.reqCh
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	op := &operation{
		run:  func(ctx context.Context) error { return fn(ctx, ctrl) },
		done: make(chan error, 1),
	}
	reqCh <- op
	return <-op.done
}

// Disconnect drains pending operations, stops the owner goroutine and
// disconnects the controller. Disconnecting a session that never connected
// (or is already disconnected) is a no-op.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		s.logger.Debug("Session already disconnected")
		return nil
	}

	s.logger.WithField("address", s.address).Info("Disconnecting session...")

	s.connected = false
	s.closing = true
	ctrl := s.ctrl
	cancel := s.ownerCancel
	reqCh := s.reqCh
	s.ctrl = nil
	s.ownerCancel = nil
	s.mu.Unlock()

	// New submissions are refused from here on; wait for the ones already
	// past the gate, then retire the owner goroutine.
	s.inflight.Wait()
	close(reqCh)
	s.ownerWg.Wait()
	if cancel != nil {
		cancel()
	}

	err := ctrl.Disconnect()

	s.mu.Lock()
	s.closing = false
	s.mu.Unlock()

	if err != nil {
		s.logger.WithError(err).Warn("Session disconnected with errors")
	} else {
		s.logger.WithField("address", s.address).Info("Session disconnected")
	}
	return err
}

// IsConnected reports whether the session currently holds a connected
// controller.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// MuscleCount returns the muscle count cached at connect time, or 0 when the
// session has never connected.
func (s *Session) MuscleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.MuscleCount()
}

// MuscleOrder returns the device's canonical muscle order cached at connect
// time.
func (s *Session) MuscleOrder() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.info.MuscleNames...)
}

// Info queries the device for its current info.
func (s *Session) Info() (hand.Info, error) {
	var out hand.Info
	err := s.submit(func(ctx context.Context, ctrl hand.Controller) error {
		info, err := ctrl.Info(ctx)
		if err != nil {
			return err
		}
		out = info
		return nil
	})
	return out, err
}

// SetPressures commands target pressures, one normalized value per muscle in
// the device's muscle order. Validation (length against muscle count, value
// range) is the controller's business; its verdict is returned unchanged.
func (s *Session) SetPressures(values []float64) error {
	return s.submit(func(ctx context.Context, ctrl hand.Controller) error {
		return ctrl.SetPressures(ctx, values)
	})
}

// GetPressures returns the most recent pressure readback, one normalized
// value per muscle.
func (s *Session) GetPressures() ([]float64, error) {
	var out []float64
	err := s.submit(func(ctx context.Context, ctrl hand.Controller) error {
		tele, err := ctrl.Telemetry(ctx)
		if err != nil {
			return err
		}
		out = tele.Pressures
		return nil
	})
	return out, err
}

// GetPressuresFresh waits for a telemetry frame newer than the call instant
// and returns its pressures. A timeout of 0 waits indefinitely; otherwise
// exceeding it fails with hand.ErrTimeout.
func (s *Session) GetPressuresFresh(timeout time.Duration) ([]float64, error) {
	var out []float64
	start := time.Now().UnixMicro()
	err := s.submit(func(ctx context.Context, ctrl hand.Controller) error {
		var deadline time.Time
		if timeout > 0 {
			deadline = time.Now().Add(timeout)
		}
		for {
			tele, err := ctrl.Telemetry(ctx)
			if err != nil {
				return err
			}
			if tele.TsUs > start {
				out = tele.Pressures
				return nil
			}
			if timeout > 0 && time.Now().After(deadline) {
				return fmt.Errorf("%w: no telemetry frame within %s", hand.ErrTimeout, timeout)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(freshPollInterval):
			}
		}
	})
	return out, err
}

// GetTelemetry returns the most recent full telemetry frame.
func (s *Session) GetTelemetry() (hand.Telemetry, error) {
	var out hand.Telemetry
	err := s.submit(func(ctx context.Context, ctrl hand.Controller) error {
		tele, err := ctrl.Telemetry(ctx)
		if err != nil {
			return err
		}
		out = tele
		return nil
	})
	return out, err
}

// GetIMU returns the most recent sample from each inertial unit.
func (s *Session) GetIMU() ([]hand.IMUSample, error) {
	var out []hand.IMUSample
	err := s.submit(func(ctx context.Context, ctrl hand.Controller) error {
		samples, err := ctrl.IMU(ctx)
		if err != nil {
			return err
		}
		out = samples
		return nil
	})
	return out, err
}

// GetMagnetics returns the most recent raw sample from each joint sensor.
func (s *Session) GetMagnetics() ([]hand.MagneticSample, error) {
	var out []hand.MagneticSample
	err := s.submit(func(ctx context.Context, ctrl hand.Controller) error {
		samples, err := ctrl.Magnetics(ctx)
		if err != nil {
			return err
		}
		out = samples
		return nil
	})
	return out, err
}

// LooseAll vents every muscle by commanding zero pressure across the board.
func (s *Session) LooseAll() error {
	zeros := make([]float64, s.MuscleCount())
	return s.submit(func(ctx context.Context, ctrl hand.Controller) error {
		return ctrl.SetPressures(ctx, zeros)
	})
}

// Subscribe starts a telemetry stream on the underlying controller. The
// callback runs on the controller's pump goroutine, not on the session
// owner.
func (s *Session) Subscribe(opts []*hand.SubscribeOptions, mode hand.StreamMode, maxRate time.Duration, callback func(*hand.Record)) error {
	return s.submit(func(ctx context.Context, ctrl hand.Controller) error {
		return ctrl.Subscribe(opts, mode, maxRate, callback)
	})
}

// Do runs an arbitrary controller operation on the owner goroutine. It is
// the escape hatch for operations the blocking surface does not cover;
// fn blocks every other session call until it returns.
func (s *Session) Do(fn func(ctx context.Context, ctrl hand.Controller) error) error {
	return s.submit(fn)
}
