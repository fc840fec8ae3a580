package estimator

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// outlierClip bounds each component of incoming vectors to mean ± sigma·σ
// of a sliding population window. Until the window fills it only
// accumulates; the clipped output is fed back into the window so a
// sustained spike cannot drag the population with it.
type outlierClip struct {
	population int
	sigma      float64
	window     [][]float64
}

func newOutlierClip(population int, sigma float64) *outlierClip {
	return &outlierClip{
		population: population,
		sigma:      sigma,
		window:     make([][]float64, 0, population),
	}
}

// push feeds one sample. It reports false while the window is still
// warming up; once warm it returns the clipped vector.
func (o *outlierClip) push(sample []float64) ([]float64, bool) {
	if len(o.window) < o.population {
		o.window = append(o.window, append([]float64(nil), sample...))
		return nil, false
	}
	clipped := make([]float64, len(sample))
	col := make([]float64, len(o.window))
	for i := range sample {
		for j, w := range o.window {
			col[j] = w[i]
		}
		mean := stat.Mean(col, nil)
		band := o.sigma * stat.PopStdDev(col, nil)
		clipped[i] = math.Max(mean-band, math.Min(mean+band, sample[i]))
	}
	o.window = append(o.window[1:], clipped)
	return clipped, true
}

// mean returns the per-component mean of the current window contents.
func (o *outlierClip) mean() []float64 {
	if len(o.window) == 0 {
		return nil
	}
	out := make([]float64, len(o.window[0]))
	col := make([]float64, len(o.window))
	for i := range out {
		for j, w := range o.window {
			col[j] = w[i]
		}
		out[i] = stat.Mean(col, nil)
	}
	return out
}

// iirSmooth is a first-order low-pass: out = w·sample + (1−w)·state.
type iirSmooth struct {
	weight float64
	state  []float64
}

func newIIRSmooth(weight float64) *iirSmooth {
	return &iirSmooth{weight: weight}
}

func (f *iirSmooth) seeded() bool {
	return f.state != nil
}

// seed primes the filter state, typically with the clip window's mean.
func (f *iirSmooth) seed(state []float64) {
	f.state = append([]float64(nil), state...)
}

// push smooths one sample. An unseeded filter adopts the first sample as
// its state, which makes the first output the sample itself.
func (f *iirSmooth) push(sample []float64) []float64 {
	if f.state == nil {
		f.state = append([]float64(nil), sample...)
		return append([]float64(nil), sample...)
	}
	out := make([]float64, len(sample))
	for i := range sample {
		out[i] = f.weight*sample[i] + (1-f.weight)*f.state[i]
	}
	f.state = out
	return out
}
