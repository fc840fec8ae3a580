package hand

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// ----------------------------
// Configuration Constants
// ----------------------------

const (
	// DefaultStreamBuffer is the default buffer size for telemetry streams
	DefaultStreamBuffer = 128

	// DefaultUpdateInterval is the default polling interval for StreamEveryUpdate mode
	DefaultUpdateInterval = 5 * time.Millisecond

	// DefaultBatchedInterval is the default rate limiting interval for batched/aggregated modes
	DefaultBatchedInterval = 100 * time.Millisecond
)

// StreamMode defines how subscription data is delivered
type StreamMode int

const (
	StreamEveryUpdate StreamMode = iota
	StreamBatched
	StreamAggregated
)

// SubscribeOptions selects the telemetry kinds a subscription listens to.
// An empty Kinds slice means every stream the device publishes.
type SubscribeOptions struct {
	Kinds []Kind
}

// Record represents a subscription notification record
type Record struct {
	TsUs        int64
	Seq         uint64
	Values      map[Kind][]float64   // Single value per stream (EveryUpdate/Aggregated modes)
	BatchValues map[Kind][][]float64 // Multiple values per stream (Batched mode)
	Flags       uint32
}

func newRecord(mode StreamMode) *Record {
	r := &Record{
		TsUs: time.Now().UnixMicro(),
	}
	if mode == StreamBatched {
		r.BatchValues = make(map[Kind][][]float64)
	} else {
		r.Values = make(map[Kind][]float64)
	}
	return r
}

// Subscription is one active telemetry stream consumer.
type Subscription struct {
	Streams  []*Stream
	Mode     StreamMode
	MaxRate  time.Duration
	Callback func(*Record)

	ctx    context.Context
	cancel context.CancelFunc
}

// Bind attaches the subscription to a parent context; the pump stops when
// either the parent is cancelled or Cancel is called.
func (s *Subscription) Bind(parent context.Context) {
	s.ctx, s.cancel = context.WithCancel(parent)
}

// Cancel stops the subscription pump.
func (s *Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// ----------------------------
// Subscription Manager
// ----------------------------

// SubscriptionManager manages the lifecycle of telemetry subscriptions
type SubscriptionManager struct {
	subscriptions []*Subscription
	wg            sync.WaitGroup
	mu            sync.Mutex
	logger        *logrus.Logger
}

// NewSubscriptionManager creates a new subscription manager
func NewSubscriptionManager(logger *logrus.Logger) *SubscriptionManager {
	return &SubscriptionManager{
		subscriptions: make([]*Subscription, 0),
		logger:        logger,
	}
}

// Add adds a subscription to the manager and starts its goroutine
func (m *SubscriptionManager) Add(sub *Subscription, runner func(*Subscription)) {
	m.mu.Lock()
	m.subscriptions = append(m.subscriptions, sub)
	m.mu.Unlock()

	m.wg.Add(1)
	go runner(sub)
}

// CancelAll cancels all active subscriptions and clears the list
func (m *SubscriptionManager) CancelAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subscriptions {
		if sub.cancel != nil {
			sub.cancel()
		}
	}
	m.subscriptions = nil
}

// Wait waits for all subscription goroutines to complete
func (m *SubscriptionManager) Wait() {
	if m.logger != nil {
		m.logger.Debug("Waiting for subscription goroutines to complete...")
	}
	m.wg.Wait()
	if m.logger != nil {
		m.logger.Debug("All subscription goroutines completed")
	}
}

// Done decrements the wait group counter (called by subscription goroutines)
func (m *SubscriptionManager) Done() {
	m.wg.Done()
}

// ValidateSubscription checks options and callback and resolves the streams a
// subscription will consume. Validation collects every problem before failing
// so callers see the full picture at once.
func ValidateSubscription(opts []*SubscribeOptions, callback func(*Record), available map[Kind]*Stream) ([]*Stream, error) {
	if callback == nil {
		return nil, fmt.Errorf("no callback specified in subscription")
	}
	if len(opts) == 0 {
		return nil, fmt.Errorf("no streams specified in subscription")
	}

	var missing []string
	seen := make(map[Kind]bool)
	var streams []*Stream

	for _, opt := range opts {
		kinds := opt.Kinds
		if len(kinds) == 0 {
			// Empty selection subscribes to everything available
			for kind := range available {
				kinds = append(kinds, kind)
			}
		}
		for _, kind := range kinds {
			if seen[kind] {
				continue
			}
			seen[kind] = true
			stream, ok := available[kind]
			if !ok {
				missing = append(missing, string(kind))
				continue
			}
			streams = append(streams, stream)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("validation failed - missing streams: %v", missing)
	}
	if len(streams) == 0 {
		return nil, fmt.Errorf("no streams available for subscription")
	}
	return streams, nil
}

// RunPump drains the subscription's streams and delivers records to the
// callback until the subscription context is cancelled. It owns the pooled
// frames it receives and releases every one of them.
//
// Modes:
//   - StreamEveryUpdate: one record per frame, polled at DefaultUpdateInterval.
//   - StreamBatched: all frames accumulated since the last tick, one record
//     per MaxRate interval.
//   - StreamAggregated: latest frame per stream per MaxRate interval; streams
//     with no pending frame mark the record with FlagMissing.
func RunPump(sub *Subscription, logger *logrus.Logger, done func()) {
	defer done()

	// Recover from panics in subscription callback to prevent crash
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.WithField("panic", r).Error("Subscription callback panicked")
			}
		}
	}()

	if logger != nil {
		logger.WithField("mode", sub.Mode).Debug("Subscription pump started")
		defer logger.Debug("Subscription pump exiting")
	}

	var ticker *time.Ticker
	if sub.Mode == StreamBatched || sub.Mode == StreamAggregated {
		if sub.MaxRate <= 0 {
			sub.MaxRate = DefaultBatchedInterval
		}
		ticker = time.NewTicker(sub.MaxRate)
	} else {
		ticker = time.NewTicker(DefaultUpdateInterval)
	}
	defer ticker.Stop()

	for {
		select {
		case <-sub.ctx.Done():
			return
		case <-ticker.C:
			switch sub.Mode {
			case StreamBatched:
				record := newRecord(StreamBatched)
				for _, stream := range sub.Streams {
					// Drain all available updates for this stream
					for {
						select {
						case f := <-stream.Updates():
							if f == nil {
								return
							}
							values := make([]float64, len(f.Values))
							copy(values, f.Values)
							record.BatchValues[stream.Kind()] = append(record.BatchValues[stream.Kind()], values)
							if f.Flags != 0 {
								record.Flags |= f.Flags
							}
							record.TsUs = f.TsUs
							ReleaseFrame(f)
						default:
							goto nextStream
						}
					}
				nextStream:
				}
				// Only invoke callback when there's actual data to report
				if len(record.BatchValues) > 0 {
					sub.Callback(record)
				}

			case StreamAggregated:
				record := newRecord(StreamAggregated)
				for _, stream := range sub.Streams {
					select {
					case f := <-stream.Updates():
						if f == nil {
							return
						}
						values := make([]float64, len(f.Values))
						copy(values, f.Values)
						record.Values[stream.Kind()] = values
						if f.Flags != 0 {
							record.Flags |= f.Flags
						}
						record.TsUs = f.TsUs
						ReleaseFrame(f)
					default:
						record.Flags |= FlagMissing
					}
				}
				// Skip empty aggregation ticks so consumers never see a record
				// with no values
				if len(record.Values) > 0 {
					sub.Callback(record)
				}

			default: // StreamEveryUpdate
				for _, stream := range sub.Streams {
					select {
					case <-sub.ctx.Done():
						return
					case f := <-stream.Updates():
						if f == nil {
							return
						}
						record := newRecord(StreamEveryUpdate)
						values := make([]float64, len(f.Values))
						copy(values, f.Values)
						record.Values[stream.Kind()] = values
						record.TsUs = f.TsUs
						record.Seq = f.Seq
						if f.Flags != 0 {
							record.Flags |= f.Flags
						}
						sub.Callback(record)
						ReleaseFrame(f)
					default:
						// No data available, continue to next stream
					}
				}
			}
		}
	}
}
