package hand

import (
	"sync"
	"sync/atomic"
	"time"
)

// ----------------------------
// Stream kinds
// ----------------------------

// Kind identifies one telemetry stream of a hand. Each kind carries a flat
// float64 payload whose layout is fixed per kind (see Decode helpers); keeping
// frames flat lets them share one pooled representation regardless of kind.
type Kind string

const (
	KindPressure Kind = "pressure"
	KindIMU      Kind = "imu"
	KindMagnetic Kind = "magnetic"
	KindStatus   Kind = "status"
)

// floats per sample for the structured kinds
const (
	imuSampleFloats      = 10 // quat[4] + gyro[3] + accel[3]
	magneticSampleFloats = 13 // 4 pixels x 3 axes + temp
)

// ----------------------------
// Flags
// ----------------------------
const (
	FlagDropped uint32 = 1 << iota
	FlagMissing
)

// ----------------------------
// Frame with Pooling
// ----------------------------

// Frame represents one telemetry update on a stream.
// IMPORTANT: Frame objects are pooled and reused. The Values slice is only
// valid until the frame is released back to the pool. Subscribers MUST copy
// Values immediately if they need to retain it beyond the callback invocation.
type Frame struct {
	TsUs   int64
	Seq    uint64
	Kind   Kind
	Values []float64
	Flags  uint32
}

var framePool = sync.Pool{
	New: func() interface{} { return &Frame{Values: make([]float64, 0, 64)} },
}

var globalFrameSeq uint64

// NewFrame builds a pooled frame holding a copy of values.
func NewFrame(kind Kind, values []float64) *Frame {
	f := framePool.Get().(*Frame)
	f.TsUs = time.Now().UnixMicro()
	f.Seq = atomic.AddUint64(&globalFrameSeq, 1)
	f.Kind = kind
	f.Flags = 0
	if cap(f.Values) < len(values) {
		f.Values = make([]float64, len(values))
	}
	f.Values = f.Values[:len(values)]
	copy(f.Values, values)
	return f
}

// ReleaseFrame returns a frame to the pool.
func ReleaseFrame(f *Frame) {
	f.TsUs = 0
	f.Seq = 0
	f.Kind = ""
	f.Flags = 0

	// Prevent keeping large buffers in the pool
	const maxPooledValues = 512
	if cap(f.Values) > maxPooledValues {
		f.Values = make([]float64, 0, 64)
	} else {
		f.Values = f.Values[:0]
	}

	framePool.Put(f)
}

// ----------------------------
// Stream
// ----------------------------

// Stream is the buffered update queue for one telemetry kind. Producers
// enqueue frames with drop-oldest semantics so a slow consumer never blocks
// the device pump; consumers drain via the updates channel.
type Stream struct {
	kind    Kind
	latest  []float64
	updates chan *Frame
	closed  atomic.Bool
	mu      sync.RWMutex
	subs    []func(*Frame)
}

// NewStream creates a stream for kind with the given channel buffer.
func NewStream(kind Kind, buffer int) *Stream {
	return &Stream{
		kind:    kind,
		updates: make(chan *Frame, buffer),
	}
}

func (s *Stream) Kind() Kind { return s.kind }

// Updates exposes the frame channel for subscription pumps.
func (s *Stream) Updates() <-chan *Frame { return s.updates }

// EnqueueFrame queues a frame, dropping the oldest pending frame when full.
func (s *Stream) EnqueueFrame(f *Frame) {
	// Check if channel is closed before attempting to send
	// This prevents panic from send on closed channel if pump ticks fire after shutdown
	if s.closed.Load() {
		ReleaseFrame(f)
		return
	}

	select {
	case s.updates <- f:
	default:
		// Channel full, drop the oldest. The receive must not block either:
		// a subscription pump may have drained the queue between the failed
		// send and now, and nothing would ever unblock the producer.
		select {
		case old := <-s.updates:
			// nil means the channel closed under us; nothing to release
			if old != nil {
				old.Flags |= FlagDropped
				ReleaseFrame(old)
			}
		default:
		}
		// Recheck closed before the retry (could have closed while we were
		// dropping)
		if s.closed.Load() {
			ReleaseFrame(f)
			return
		}
		select {
		case s.updates <- f:
		default:
			// A racing producer refilled the slot; drop the new frame
			ReleaseFrame(f)
		}
	}
}

// Publish stores the latest value snapshot, queues a pooled frame and fans
// out to direct subscribers. This is the single entry point device pumps use.
func (s *Stream) Publish(values []float64) {
	f := NewFrame(s.kind, values)

	s.SetLatest(values)
	s.EnqueueFrame(f)
	s.notifySubscribers(f)
}

// Subscribe registers a callback invoked for every published frame.
// IMPORTANT: Frame objects are pooled and reused. The callback MUST copy
// f.Values immediately if it needs the data beyond the callback invocation.
func (s *Stream) Subscribe(fn func(*Frame)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, fn)
}

func (s *Stream) notifySubscribers(f *Frame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, fn := range s.subs {
		fn(f)
	}
}

// Latest returns a copy of the most recently published values, or nil if
// nothing has been published yet.
func (s *Stream) Latest() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil
	}
	out := make([]float64, len(s.latest))
	copy(out, s.latest)
	return out
}

// SetLatest replaces the latest value snapshot.
func (s *Stream) SetLatest(values []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cap(s.latest) < len(values) {
		s.latest = make([]float64, len(values))
	}
	s.latest = s.latest[:len(values)]
	copy(s.latest, values)
}

// Close safely closes the updates channel (once only, thread-safe)
func (s *Stream) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.updates)
	}
}

// Reset recreates the updates channel (for reconnection).
// MUST only be called after Close() has been called.
func (s *Stream) Reset(buffer int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed.Load() {
		return &ValidationError{Field: "stream", Msg: "cannot reset updates channel: channel is still open"}
	}

	s.updates = make(chan *Frame, buffer)
	s.closed.Store(false)
	return nil
}

// DrainAndRelease drains all pending frames from a stream and releases them
// to the pool. Used during disconnect teardown.
func (s *Stream) DrainAndRelease() {
	for {
		select {
		case f := <-s.updates:
			if f == nil {
				return
			}
			ReleaseFrame(f)
		default:
			return
		}
	}
}

// ----------------------------
// Kind payload codecs
// ----------------------------

// EncodeIMU flattens IMU samples into a frame payload.
func EncodeIMU(samples []IMUSample) []float64 {
	out := make([]float64, 0, len(samples)*imuSampleFloats)
	for _, s := range samples {
		out = append(out, s.Quat[:]...)
		out = append(out, s.Gyro[:]...)
		out = append(out, s.Accel[:]...)
	}
	return out
}

// DecodeIMU rebuilds IMU samples from a flat payload. Trailing partial
// samples are dropped.
func DecodeIMU(values []float64) []IMUSample {
	n := len(values) / imuSampleFloats
	out := make([]IMUSample, n)
	for i := 0; i < n; i++ {
		v := values[i*imuSampleFloats:]
		copy(out[i].Quat[:], v[0:4])
		copy(out[i].Gyro[:], v[4:7])
		copy(out[i].Accel[:], v[7:10])
	}
	return out
}

// EncodeMagnetics flattens joint sensor samples into a frame payload.
func EncodeMagnetics(samples []MagneticSample) []float64 {
	out := make([]float64, 0, len(samples)*magneticSampleFloats)
	for _, s := range samples {
		for p := 0; p < 4; p++ {
			out = append(out, s.Pixels[p][:]...)
		}
		out = append(out, s.Temp)
	}
	return out
}

// DecodeMagnetics rebuilds joint sensor samples from a flat payload.
func DecodeMagnetics(values []float64) []MagneticSample {
	n := len(values) / magneticSampleFloats
	out := make([]MagneticSample, n)
	for i := 0; i < n; i++ {
		v := values[i*magneticSampleFloats:]
		for p := 0; p < 4; p++ {
			copy(out[i].Pixels[p][:], v[p*3:p*3+3])
		}
		out[i].Temp = v[12]
	}
	return out
}
