package estimator

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Interpolator maps a field vector to a pair of joint angles using radial
// basis functions with a linear kernel (φ(r) = −r) and a constant tail,
// fitted to calibration points. The fit passes through the calibration
// points exactly and extrapolates flat far from them.
type Interpolator struct {
	points  *mat.Dense // N×dims calibration field vectors
	weights *mat.Dense // (N+1)×2 kernel weights plus the constant row
}

// NewInterpolator solves the RBF system
//
//	[Φ 1; 1ᵀ 0]·[w; c] = [angles; 0],  Φij = −‖pi − pj‖
//
// for the given calibration points.
func NewInterpolator(points [][]float64, angles [][2]float64) (*Interpolator, error) {
	n := len(points)
	if n == 0 {
		return nil, errors.New("no calibration points")
	}
	if len(angles) != n {
		return nil, fmt.Errorf("%d calibration points but %d angle pairs", n, len(angles))
	}
	dims := len(points[0])
	if dims == 0 {
		return nil, errors.New("empty calibration point")
	}
	for i, p := range points {
		if len(p) != dims {
			return nil, fmt.Errorf("calibration point %d has %d components, want %d", i, len(p), dims)
		}
	}

	pts := mat.NewDense(n, dims, nil)
	for i, p := range points {
		pts.SetRow(i, p)
	}

	lhs := mat.NewDense(n+1, n+1, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := -floats.Distance(points[i], points[j], 2)
			lhs.Set(i, j, v)
			lhs.Set(j, i, v)
		}
		lhs.Set(i, n, 1)
		lhs.Set(n, i, 1)
	}

	rhs := mat.NewDense(n+1, 2, nil)
	for i, a := range angles {
		rhs.Set(i, 0, a[0])
		rhs.Set(i, 1, a[1])
	}

	var w mat.Dense
	if err := w.Solve(lhs, rhs); err != nil {
		return nil, fmt.Errorf("calibration system is singular (duplicate points?): %w", err)
	}
	return &Interpolator{points: pts, weights: &w}, nil
}

// Dims returns the dimensionality of the calibration points.
func (ip *Interpolator) Dims() int {
	_, dims := ip.points.Dims()
	return dims
}

// At evaluates the fitted surface at one field vector.
func (ip *Interpolator) At(field []float64) ([2]float64, error) {
	n, dims := ip.points.Dims()
	if len(field) != dims {
		return [2]float64{}, fmt.Errorf("field vector has %d components, want %d", len(field), dims)
	}
	var out [2]float64
	for i := 0; i < n; i++ {
		phi := -floats.Distance(ip.points.RawRowView(i), field, 2)
		out[0] += ip.weights.At(i, 0) * phi
		out[1] += ip.weights.At(i, 1) * phi
	}
	out[0] += ip.weights.At(n, 0)
	out[1] += ip.weights.At(n, 1)
	return out, nil
}
