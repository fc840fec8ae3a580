// Package estimator turns raw joint Hall-sensor samples into joint
// angles. Raw digits are converted to teslas with temperature-compensated
// sensitivities, pixels are reordered into the calibration frame,
// outliers are clipped against a sliding population window, an IIR stage
// smooths the result, and per-joint RBF interpolators map the filtered
// field vectors to angle pairs in degrees.
package estimator

import (
	"errors"
	"fmt"

	"github.com/srg/myolink/internal/hand"
)

// ErrWarmingUp is returned by Angles until the outlier window has seen a
// full population of frames.
var ErrWarmingUp = errors.New("estimator warming up")

// Config tunes the estimation pipeline. Zero filter knobs are invalid;
// start from DefaultConfig.
type Config struct {
	Decode DecodeConfig

	OutlierWindow int     // population size of the clip window
	OutlierSigma  float64 // clip band half-width, in standard deviations
	IIRWeight     float64 // weight of the newest sample, 0..1

	DisableOutlierFilter bool
	DisableIIR           bool
}

// DefaultConfig returns the tuning used on the production rigs.
func DefaultConfig() Config {
	return Config{
		Decode:        DefaultDecodeConfig(),
		OutlierWindow: 10,
		OutlierSigma:  3.0,
		IIRWeight:     0.3,
	}
}

// JointAngles is one joint's estimate, in degrees.
type JointAngles struct {
	Joint     int    // index in the device's joint order
	Name      string // joint name from the device model
	Flexion   float64
	Abduction float64
}

// Estimator maintains the filter state and the per-joint interpolators.
// Feed telemetry frames through Update and read estimates with Angles.
// Not safe for concurrent use.
type Estimator struct {
	cfg     Config
	decoder *Decoder
	joints  []string
	interp  map[int]*Interpolator

	clip *outlierClip
	iir  *iirSmooth

	fields []float64 // last filtered flat field vector, FieldComponents per joint
	temps  []float64 // last die temperatures, °C
	ready  bool
}

// New builds an estimator for a device with the given joints (in sensor
// order, from the device model). Joints present in the mapping get an
// interpolator; the rest are skipped in the output.
func New(cfg Config, mapping *Mapping, joints []string) (*Estimator, error) {
	if len(joints) == 0 {
		return nil, errors.New("no joints")
	}
	if cfg.IIRWeight < 0 || cfg.IIRWeight > 1 {
		return nil, fmt.Errorf("IIR weight %v outside 0..1", cfg.IIRWeight)
	}
	if !cfg.DisableOutlierFilter && cfg.OutlierWindow < 1 {
		return nil, fmt.Errorf("outlier window %d must be positive", cfg.OutlierWindow)
	}
	if mapping == nil || len(mapping.Joints) == 0 {
		return nil, errors.New("empty calibration mapping")
	}

	interp := make(map[int]*Interpolator, len(mapping.Joints))
	for joint, points := range mapping.Joints {
		if joint < 0 || joint >= len(joints) {
			return nil, fmt.Errorf("mapping references joint %d, device has %d", joint, len(joints))
		}
		pts := make([][]float64, len(points))
		angles := make([][2]float64, len(points))
		for i, p := range points {
			if len(p.Field) != FieldComponents {
				return nil, fmt.Errorf("joint %s point %d: field has %d components, want %d",
					joints[joint], i, len(p.Field), FieldComponents)
			}
			pts[i] = p.Field
			angles[i] = p.Angles
		}
		ip, err := NewInterpolator(pts, angles)
		if err != nil {
			return nil, fmt.Errorf("joint %s: %w", joints[joint], err)
		}
		interp[joint] = ip
	}

	e := &Estimator{
		cfg:     cfg,
		decoder: NewDecoder(cfg.Decode),
		joints:  append([]string(nil), joints...),
		interp:  interp,
		temps:   make([]float64, len(joints)),
	}
	if !cfg.DisableOutlierFilter {
		e.clip = newOutlierClip(cfg.OutlierWindow, cfg.OutlierSigma)
	}
	if !cfg.DisableIIR {
		e.iir = newIIRSmooth(cfg.IIRWeight)
	}
	return e, nil
}

// Joints returns the joint names the estimator was built for.
func (e *Estimator) Joints() []string {
	return append([]string(nil), e.joints...)
}

// CalibratedJoints reports how many joints have an interpolator.
func (e *Estimator) CalibratedJoints() int {
	return len(e.interp)
}

// Update feeds one telemetry frame of raw sensor samples, one per joint.
// It reports false while the outlier window is still warming up; once it
// reports true, Angles returns estimates for the frame.
func (e *Estimator) Update(samples []hand.MagneticSample) (bool, error) {
	if len(samples) != len(e.joints) {
		return false, fmt.Errorf("got %d sensor samples, device has %d joints", len(samples), len(e.joints))
	}

	flat := make([]float64, 0, len(samples)*FieldComponents)
	for i, s := range samples {
		f, celsius := e.decoder.Sample(s)
		e.temps[i] = celsius
		flat = append(flat, f.Flat()...)
	}

	if e.clip != nil {
		clipped, warm := e.clip.push(flat)
		if !warm {
			return false, nil
		}
		flat = clipped
	}
	if e.iir != nil {
		if !e.iir.seeded() && e.clip != nil {
			e.iir.seed(e.clip.mean())
		}
		flat = e.iir.push(flat)
	}

	e.fields = flat
	e.ready = true
	return true, nil
}

// Angles evaluates the per-joint interpolators against the current
// filtered field estimate. Joints without calibration are omitted.
func (e *Estimator) Angles() ([]JointAngles, error) {
	if !e.ready {
		return nil, ErrWarmingUp
	}
	out := make([]JointAngles, 0, len(e.interp))
	for idx, name := range e.joints {
		ip, ok := e.interp[idx]
		if !ok {
			continue
		}
		a, err := ip.At(e.fields[idx*FieldComponents : (idx+1)*FieldComponents])
		if err != nil {
			return nil, fmt.Errorf("joint %s: %w", name, err)
		}
		out = append(out, JointAngles{Joint: idx, Name: name, Flexion: a[0], Abduction: a[1]})
	}
	return out, nil
}

// Temperatures returns the last decoded die temperature per joint, in
// degrees Celsius.
func (e *Estimator) Temperatures() []float64 {
	return append([]float64(nil), e.temps...)
}
