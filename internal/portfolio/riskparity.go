package portfolio

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// RiskParity returns the long-only weights, summing to one, for which every
// asset contributes the same share of portfolio variance.
//
// The solve runs cyclical coordinate descent on
//
//	f(y) = ½ y'Σy − (1/n) Σ ln y_i
//
// whose minimizer, normalized to unit sum, is the equal risk contribution
// portfolio. Each coordinate update is the positive root of
// σ_ii y_i² + c_i y_i − 1/n = 0 with c_i = Σ_{j≠i} σ_ij y_j.
func RiskParity(cov *mat.SymDense, opts SolverOptions) ([]float64, error) {
	n := cov.SymmetricDim()
	if n == 0 {
		return nil, fmt.Errorf("%w: empty covariance", ErrEmptyInput)
	}
	if n == 1 {
		return []float64{1}, nil
	}
	opts = opts.withDefaults()

	var chol mat.Cholesky
	if !chol.Factorize(cov) {
		return nil, fmt.Errorf("%w: cholesky factorization failed", ErrNonPositiveDefiniteCovariance)
	}

	budget := 1 / float64(n)
	y := make([]float64, n)
	for i := range y {
		y[i] = 1 / math.Sqrt(cov.At(i, i))
	}

	w := make([]float64, n)
	for sweep := 0; sweep < opts.MaxIterations; sweep++ {
		for i := 0; i < n; i++ {
			c := 0.0
			for j := 0; j < n; j++ {
				if j != i {
					c += cov.At(i, j) * y[j]
				}
			}
			s := cov.At(i, i)
			y[i] = (-c + math.Sqrt(c*c+4*s*budget)) / (2 * s)
		}

		sum := 0.0
		for _, v := range y {
			sum += v
		}
		for i := range w {
			w[i] = y[i] / sum
		}
		if equalContributions(w, cov, opts.Tolerance) {
			return w, nil
		}
	}
	return nil, fmt.Errorf("%w: risk parity did not reach tolerance %g in %d sweeps",
		ErrConvergenceFailure, opts.Tolerance, opts.MaxIterations)
}

// equalContributions reports whether every risk contribution is within
// tol·σ² of the equal share σ²/n.
func equalContributions(w []float64, cov mat.Symmetric, tol float64) bool {
	contrib, variance := RiskContributions(w, cov)
	share := variance / float64(len(w))
	for _, rc := range contrib {
		if math.Abs(rc-share) > tol*variance {
			return false
		}
	}
	return true
}
