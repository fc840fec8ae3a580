package estimator

import (
	"github.com/srg/myolink/internal/hand"
)

// FH3D04 Hall sensor characteristics. The sensitivity polynomials below
// were fitted at this reference acquisition configuration; samples taken
// with other gain/decimation/supply settings are rescaled to it first.
const (
	// Nominal axis sensitivities, mV/mT.
	SensitivityXY = 54.0
	SensitivityZ  = 94.0

	// TempDigitToCelsius converts offset-corrected temperature digits
	// to degrees Celsius.
	TempDigitToCelsius = 0.072484471

	// Reference acquisition configuration.
	BaseGainXY = 128
	BaseGainZ  = 64
	BaseDecLen = 512
	BaseSupply = 2.6 // volts
)

// FieldComponents is the flattened size of one decoded sensor field:
// four pixels, three axes each.
const FieldComponents = 12

// boardPixelOrder rearranges the wire order of the four pixels into the
// layout the calibration mappings are recorded in.
var boardPixelOrder = [4]int{3, 2, 0, 1}

// DecodeConfig describes the acquisition settings the hand firmware runs
// the joint sensors with.
type DecodeConfig struct {
	TempOffset float64 // raw temperature digits at 25 °C
	DecLen     float64 // decimation length
	GainXY     float64 // analog gain, X and Y axes
	GainZ      float64 // analog gain, Z axis
	Supply     float64 // supply voltage, volts
}

// DefaultDecodeConfig matches the stock firmware configuration.
func DefaultDecodeConfig() DecodeConfig {
	return DecodeConfig{
		TempOffset: 4000,
		DecLen:     BaseDecLen,
		GainXY:     1024,
		GainZ:      512,
		Supply:     BaseSupply,
	}
}

// Field is the decoded magnetic field of one joint sensor in the device
// frame: four pixels, three axes each, in teslas.
type Field [4][3]float64

// Flat returns the field as a flat vector, pixel-major.
func (f Field) Flat() []float64 {
	out := make([]float64, 0, FieldComponents)
	for p := range f {
		out = append(out, f[p][:]...)
	}
	return out
}

// Decoder converts raw sensor digits into temperature-compensated field
// vectors.
type Decoder struct {
	cfg DecodeConfig

	tempFactor  float64 // rescales temperature digits to the reference decimation
	gainRatioXY float64
	gainRatioZ  float64
}

// NewDecoder precomputes the rescaling factors for the given acquisition
// configuration.
func NewDecoder(cfg DecodeConfig) *Decoder {
	return &Decoder{
		cfg:         cfg,
		tempFactor:  BaseDecLen / cfg.DecLen,
		gainRatioXY: 1 / (cfg.GainXY / BaseGainXY * cfg.DecLen / BaseDecLen * cfg.Supply / BaseSupply),
		gainRatioZ:  1 / (cfg.GainZ / BaseGainZ * cfg.DecLen / BaseDecLen * cfg.Supply / BaseSupply),
	}
}

// Temperature converts raw temperature digits to degrees Celsius. The
// second return value is the offset-corrected reading the sensitivity
// polynomials take as input.
func (d *Decoder) Temperature(raw float64) (celsius, corrected float64) {
	corrected = (raw - d.cfg.TempOffset) * d.tempFactor
	celsius = corrected*TempDigitToCelsius + 25.0
	return celsius, corrected
}

// Pixel converts one pixel's raw digits to teslas, compensated for the
// configured gains and the corrected die temperature.
func (d *Decoder) Pixel(x, y, z, corrected float64) [3]float64 {
	sxy := sensXY(corrected)
	return [3]float64{
		x * d.gainRatioXY * sxy,
		y * d.gainRatioXY * sxy,
		z * d.gainRatioZ * sensZ(corrected),
	}
}

// Sample decodes one raw sensor sample into the device frame: pixels are
// converted to teslas, reordered to the calibration layout, and the axes
// rotated (the die sits with Y and Z swapped and all axes inverted). The
// second return value is the die temperature in degrees Celsius.
func (d *Decoder) Sample(s hand.MagneticSample) (Field, float64) {
	celsius, corrected := d.Temperature(s.Temp)
	var f Field
	for i, src := range boardPixelOrder {
		p := d.Pixel(s.Pixels[src][0], s.Pixels[src][1], s.Pixels[src][2], corrected)
		f[i] = [3]float64{-p[0], -p[2], -p[1]}
	}
	return f, celsius
}

// sensXY and sensZ are cubic fits of per-axis sensitivity against the
// corrected temperature reading.
func sensXY(t float64) float64 {
	return 2.4864e-14*t*t*t + 5.4240e-10*t*t + 4.1604e-6*t + 0.010687
}

func sensZ(t float64) float64 {
	return 2.6029e-14*t*t*t + 5.6780e-10*t*t - 4.3553e-6*t + 0.011187
}
