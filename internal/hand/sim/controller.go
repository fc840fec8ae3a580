package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/myolink/internal/groutine"
	"github.com/srg/myolink/internal/hand"
	"github.com/srg/myolink/internal/muscledb"
	"github.com/srg/myolink/internal/timeutil"
)

// Controller is a simulated hand: commanded pressures approach their targets
// with first-order dynamics, and a pump goroutine publishes pressure, IMU and
// magnetic telemetry at the configured rate.
//
// It implements hand.Controller and hand.Discoverer-adjacent registry lookup
// via the package registry (see Shared).
type Controller struct {
	name   string
	cfg    *Config
	logger *logrus.Logger
	clock  timeutil.Clock

	connMutex   sync.RWMutex
	isConnected bool

	// stateMu guards the dynamic state below; the pump holds it only long
	// enough to step the model and snapshot values.
	stateMu       sync.Mutex
	model         *muscledb.Model
	current       []float64
	targets       []float64
	flexion       []float64
	lastTelemetry hand.Telemetry
	lastIMU       []hand.IMUSample
	lastMagnetics []hand.MagneticSample
	rng           *rand.Rand
	startNs       int64

	streams map[hand.Kind]*hand.Stream
	subMgr  *hand.SubscriptionManager

	ctx    context.Context
	cancel context.CancelFunc
	pumpWg sync.WaitGroup
}

// New creates an unconnected simulated hand. Most callers want Shared, which
// reuses one instance per name so separate sessions observe the same device.
func New(name string, cfg *Config, logger *logrus.Logger) *Controller {
	if logger == nil {
		logger = logrus.New()
	}
	return &Controller{
		name:   name,
		cfg:    withDefaults(cfg),
		logger: logger,
		clock:  timeutil.RealClock{},
	}
}

// Name returns the registry name of this hand.
func (c *Controller) Name() string { return c.name }

// Address returns the canonical sim address of this hand.
func (c *Controller) Address() string {
	return hand.Address{Scheme: hand.SchemeSim, Name: c.name}.String()
}

// Connect brings the simulated device up: resolves the model, initializes
// muscle state and telemetry streams, and starts the pump.
func (c *Controller) Connect(ctx context.Context, opts *hand.ConnectOptions) error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if c.isConnected {
		return hand.ErrAlreadyConnected
	}

	model := muscledb.Lookup(c.cfg.Model)
	if model == nil {
		return fmt.Errorf("unknown hand model %q", c.cfg.Model)
	}

	c.logger.WithFields(logrus.Fields{
		"name":    c.name,
		"model":   model.Name,
		"muscles": len(model.Muscles),
	}).Info("Connecting to simulated hand...")

	c.stateMu.Lock()
	// Muscle state survives reconnects: the physical hand holds whatever
	// pressure it was left with when the link dropped, so the sim does too.
	if c.model != model || len(c.current) != len(model.Muscles) {
		c.current = make([]float64, len(model.Muscles))
		c.targets = make([]float64, len(model.Muscles))
		c.flexion = make([]float64, len(model.Joints))
	}
	c.model = model
	c.lastIMU = make([]hand.IMUSample, model.IMUs)
	c.lastMagnetics = make([]hand.MagneticSample, len(model.Joints))
	seed := c.cfg.Seed
	if seed == 0 {
		seed = c.clock.Now().UnixNano()
	}
	c.rng = rand.New(rand.NewSource(seed))
	c.startNs = c.clock.Now().UnixNano()
	c.stateMu.Unlock()

	if c.streams == nil {
		c.streams = map[hand.Kind]*hand.Stream{
			hand.KindPressure: hand.NewStream(hand.KindPressure, c.cfg.StreamBuffer),
			hand.KindIMU:      hand.NewStream(hand.KindIMU, c.cfg.StreamBuffer),
			hand.KindMagnetic: hand.NewStream(hand.KindMagnetic, c.cfg.StreamBuffer),
		}
	} else {
		// Reconnecting - recreate update channels closed on disconnect
		for kind, stream := range c.streams {
			if err := stream.Reset(c.cfg.StreamBuffer); err != nil {
				c.logger.WithFields(logrus.Fields{
					"stream": kind,
					"error":  err,
				}).Warn("Failed to reset stream during reconnection")
			}
		}
	}

	c.subMgr = hand.NewSubscriptionManager(c.logger)

	// The pump outlives the connect call, so its context derives from
	// Background rather than the caller's (usually deadline-bound) ctx.
	c.ctx, c.cancel = context.WithCancel(context.Background())

	// Seed the latest snapshots so reads made before the first pump tick
	// see a coherent state.
	c.step(0)

	groutine.GoWG(c.ctx, "sim-pump-"+c.name, &c.pumpWg, c.pump)

	c.isConnected = true
	c.logger.WithField("name", c.name).Info("Simulated hand connected")
	return nil
}

// Disconnect stops the pump and tears down streams. Pressures are not
// vented; the hand holds its state across reconnects. Idempotent.
func (c *Controller) Disconnect() error {
	// Acquire and snapshot state, cancel subs under lock
	c.connMutex.Lock()
	if !c.isConnected {
		c.connMutex.Unlock()
		c.logger.Info("Already disconnected")
		return nil
	}

	c.logger.WithField("name", c.name).Info("Disconnecting simulated hand...")

	cancel := c.cancel
	subMgr := c.subMgr

	// Snapshot streams to drain channels outside the lock
	streamsCopy := make(map[hand.Kind]*hand.Stream, len(c.streams))
	for k, v := range c.streams {
		streamsCopy[k] = v
	}

	c.cancel = nil
	c.isConnected = false
	c.connMutex.Unlock()

	// Stop the pump and all subscription pumps
	if cancel != nil {
		cancel()
	}
	c.pumpWg.Wait()

	if subMgr != nil {
		subMgr.CancelAll()
		subMgr.Wait()
	}

	// Drain and close per-stream update channels
	for _, stream := range streamsCopy {
		stream.DrainAndRelease()
		stream.Close()
	}

	c.logger.WithField("name", c.name).Info("Simulated hand disconnected")
	return nil
}

// IsConnected reports the connection state.
func (c *Controller) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.isConnected
}

// Info reports identity and calibration of the simulated device.
func (c *Controller) Info(ctx context.Context) (hand.Info, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	if !c.isConnected {
		return hand.Info{}, hand.ErrNotConnected
	}

	return hand.Info{
		Name:        c.name,
		Model:       c.model.Name,
		Firmware:    c.cfg.Firmware,
		Serial:      fmt.Sprintf("SIM-%s-%s", c.model.Name, c.name),
		MuscleNames: append([]string(nil), c.model.Muscles...),
		JointNames:  append([]string(nil), c.model.Joints...),
		IMUCount:    c.model.IMUs,
	}, nil
}

// SetPressures commands new pressure targets. Length must match the muscle
// count and every value must lie in [0,1]; violations are rejected the way
// the real firmware rejects them.
func (c *Controller) SetPressures(ctx context.Context, values []float64) error {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	if !c.isConnected {
		return hand.ErrNotConnected
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	if len(values) != len(c.targets) {
		return hand.NewPressureCountError(len(values), len(c.targets))
	}
	for i, v := range values {
		if v < 0 || v > 1 {
			return &hand.ValidationError{
				Field: "pressures",
				Msg:   fmt.Sprintf("value %g at index %d out of range <0,1>", v, i),
			}
		}
	}

	copy(c.targets, values)
	return nil
}

// Telemetry returns the most recent pressure frame.
func (c *Controller) Telemetry(ctx context.Context) (hand.Telemetry, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	if !c.isConnected {
		return hand.Telemetry{}, hand.ErrNotConnected
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	t := c.lastTelemetry
	t.Pressures = append([]float64(nil), t.Pressures...)
	return t, nil
}

// IMU returns the most recent inertial samples.
func (c *Controller) IMU(ctx context.Context) ([]hand.IMUSample, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	if !c.isConnected {
		return nil, hand.ErrNotConnected
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return append([]hand.IMUSample(nil), c.lastIMU...), nil
}

// Magnetics returns the most recent raw joint sensor samples.
func (c *Controller) Magnetics(ctx context.Context) ([]hand.MagneticSample, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	if !c.isConnected {
		return nil, hand.ErrNotConnected
	}

	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return append([]hand.MagneticSample(nil), c.lastMagnetics...), nil
}

// Subscribe starts a telemetry stream pump delivering records to callback.
func (c *Controller) Subscribe(opts []*hand.SubscribeOptions, mode hand.StreamMode, maxRate time.Duration, callback func(*hand.Record)) error {
	c.logger.WithFields(logrus.Fields{
		"streams": len(opts),
		"mode":    mode,
	}).Debug("Subscribe called")

	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if !c.isConnected {
		return hand.ErrNotConnected
	}

	streams, err := hand.ValidateSubscription(opts, callback, c.streams)
	if err != nil {
		return err
	}

	sub := &hand.Subscription{
		Streams:  streams,
		Mode:     mode,
		MaxRate:  maxRate,
		Callback: callback,
	}
	sub.Bind(c.ctx)

	// Capture the manager: a reconnect swaps c.subMgr and the pump must
	// report Done to the manager that started it.
	mgr := c.subMgr
	mgr.Add(sub, func(s *hand.Subscription) {
		hand.RunPump(s, c.logger, mgr.Done)
	})

	return nil
}
