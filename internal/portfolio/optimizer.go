package portfolio

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// SolverOptions bound the iterative solvers.
type SolverOptions struct {
	// Tolerance is the relative convergence tolerance.
	Tolerance float64 `json:"tolerance" yaml:"tolerance"`
	// MaxIterations caps active-set iterations per frontier point and
	// coordinate-descent sweeps in the risk-parity solve.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
	// Ridge scales the diagonal loading applied to a singular covariance.
	Ridge float64 `json:"ridge" yaml:"ridge"`
	// Workers limits concurrent frontier solves; 0 means GOMAXPROCS.
	Workers int `json:"workers" yaml:"workers"`
}

// DefaultSolverOptions returns the solver settings used when none are given.
func DefaultSolverOptions() SolverOptions {
	return SolverOptions{
		Tolerance:     1e-8,
		MaxIterations: 10000,
		Ridge:         1e-10,
	}
}

func (o SolverOptions) withDefaults() SolverOptions {
	d := DefaultSolverOptions()
	if o.Tolerance <= 0 {
		o.Tolerance = d.Tolerance
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = d.MaxIterations
	}
	if o.Ridge <= 0 {
		o.Ridge = d.Ridge
	}
	return o
}

// weightFloor is the size below which a solved weight is treated as zero.
const weightFloor = 1e-9

// rankTol is the relative singular value cut-off for constraint rank.
const rankTol = 1e-10

// regularize returns cov if it is positive definite, otherwise cov with a
// small diagonal load. It fails with ErrDegenerateInput when neither can be
// factorized.
func regularize(cov *mat.SymDense, ridge float64) (*mat.SymDense, bool, error) {
	var chol mat.Cholesky
	if chol.Factorize(cov) {
		return cov, false, nil
	}

	n := cov.SymmetricDim()
	scale := mat.Trace(cov) / float64(n)
	if !(scale > 0) || math.IsInf(scale, 0) {
		scale = 1
	}
	loaded := mat.NewSymDense(n, nil)
	loaded.CopySym(cov)
	for i := 0; i < n; i++ {
		loaded.SetSym(i, i, cov.At(i, i)+ridge*scale)
	}
	if !chol.Factorize(loaded) {
		return nil, false, fmt.Errorf("%w: covariance is singular even after diagonal loading", ErrDegenerateInput)
	}
	return loaded, true, nil
}

// longOnlyQP minimizes ½x'Gx subject to Ax = b and x >= 0 with a primal
// active-set method. G must be positive definite. Steps are taken in the
// null space of the equality rows restricted to the free variables.
type longOnlyQP struct {
	g       *mat.SymDense
	a       *mat.Dense
	tol     float64
	maxIter int
}

// solve starts from a feasible x0 and returns the optimal weights.
//
// A step whose full-length objective decrease is below tol²·trace(G)/n is
// treated as zero; on a ridge-loaded G that is where rounding noise lives.
// A released bound that blocks again before x has moved is marked stalled
// and not released again until a step makes progress.
func (q *longOnlyQP) solve(x0 []float64) ([]float64, error) {
	n := len(x0)
	x := append([]float64(nil), x0...)
	active := make([]bool, n)
	for i, v := range x {
		if v <= 0 {
			x[i] = 0
			active[i] = true
		}
	}

	scale := mat.Trace(q.g) / float64(n)
	if !(scale > 0) || math.IsInf(scale, 0) {
		scale = 1
	}
	flat := q.tol * q.tol * scale

	stalled := make([]bool, n)
	released := -1
	grad := mat.NewVecDense(n, nil)
	for iter := 0; iter < q.maxIter; iter++ {
		grad.MulVec(q.g, mat.NewVecDense(n, x))

		var free []int
		for i := range x {
			if !active[i] {
				free = append(free, i)
			}
		}
		if len(free) == 0 {
			return nil, fmt.Errorf("%w: every weight is bound at zero", ErrDegenerateInput)
		}

		step, err := q.eqpStep(free, grad)
		if err != nil {
			return nil, err
		}

		xNorm := 0.0
		pNorm := 0.0
		for k, i := range free {
			xNorm = math.Max(xNorm, math.Abs(x[i]))
			pNorm = math.Max(pNorm, math.Abs(step.p[k]))
		}

		if pNorm <= q.tol*(1+xNorm) || step.decrease() <= flat {
			release, ok := q.releasable(active, stalled, grad, step)
			if !ok {
				return x, nil
			}
			active[release] = false
			released = release
			continue
		}

		alpha := 1.0
		blocking := -1
		for k, i := range free {
			if step.p[k] < 0 {
				if r := -x[i] / step.p[k]; r < alpha {
					alpha = r
					blocking = i
				}
			}
		}
		for k, i := range free {
			x[i] = math.Max(0, x[i]+alpha*step.p[k])
		}
		if blocking >= 0 {
			x[blocking] = 0
			active[blocking] = true
		}

		switch {
		case alpha > 0:
			clear(stalled)
		case released >= 0:
			stalled[released] = true
		}
		released = -1
	}
	return nil, fmt.Errorf("%w: active-set solve exceeded %d iterations", ErrConvergenceFailure, q.maxIter)
}

// eqpResult is the equality-constrained step over the free variables plus
// the SVD factors of the free constraint block, reused for multipliers.
type eqpResult struct {
	p    []float64
	free []int
	s    []float64
	rank int
	u, v mat.Dense
	h    *mat.SymDense
}

// decrease is the objective reduction of a full step, ½p'H_F p.
func (r *eqpResult) decrease() float64 {
	p := mat.NewVecDense(len(r.p), r.p)
	var hp mat.VecDense
	hp.MulVec(r.h, p)
	return 0.5 * mat.Dot(p, &hp)
}

func (q *longOnlyQP) eqpStep(free []int, grad *mat.VecDense) (*eqpResult, error) {
	m, _ := q.a.Dims()
	f := len(free)

	aF := mat.NewDense(m, f, nil)
	gF := mat.NewVecDense(f, nil)
	hF := mat.NewSymDense(f, nil)
	for k, i := range free {
		for r := 0; r < m; r++ {
			aF.Set(r, k, q.a.At(r, i))
		}
		gF.SetVec(k, grad.AtVec(i))
		for l := k; l < f; l++ {
			hF.SetSym(k, l, q.g.At(i, free[l]))
		}
	}

	res := &eqpResult{p: make([]float64, f), free: free, h: hF}
	var svd mat.SVD
	if !svd.Factorize(aF, mat.SVDFull) {
		return nil, fmt.Errorf("%w: constraint factorization failed", ErrDegenerateInput)
	}
	res.s = svd.Values(nil)
	svd.UTo(&res.u)
	svd.VTo(&res.v)
	for _, sv := range res.s {
		if sv > rankTol*math.Max(1, res.s[0]) {
			res.rank++
		}
	}

	dim := f - res.rank
	if dim == 0 {
		return res, nil
	}

	z := res.v.Slice(0, f, res.rank, f)
	var zh, h mat.Dense
	zh.Mul(z.T(), hF)
	h.Mul(&zh, z)
	reduced := mat.NewSymDense(dim, nil)
	for i := 0; i < dim; i++ {
		for j := i; j < dim; j++ {
			reduced.SetSym(i, j, (h.At(i, j)+h.At(j, i))/2)
		}
	}

	var rhs mat.VecDense
	rhs.MulVec(z.T(), gF)
	rhs.ScaleVec(-1, &rhs)

	var chol mat.Cholesky
	if !chol.Factorize(reduced) {
		return nil, fmt.Errorf("%w: reduced hessian is not positive definite", ErrDegenerateInput)
	}
	var coef mat.VecDense
	if err := chol.SolveVecTo(&coef, &rhs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateInput, err)
	}
	var p mat.VecDense
	p.MulVec(z, &coef)
	for k := range res.p {
		res.p[k] = p.AtVec(k)
	}
	return res, nil
}

// releasable computes the bound multipliers at a stationary point of the
// current working set and returns the bound with the most negative one,
// skipping stalled bounds.
func (q *longOnlyQP) releasable(active, stalled []bool, grad *mat.VecDense, step *eqpResult) (int, bool) {
	m, _ := q.a.Dims()

	// Minimum-norm λ solving A_F'λ = g_F.
	lambda := make([]float64, m)
	for k := 0; k < step.rank; k++ {
		c := 0.0
		for l, i := range step.free {
			c += step.v.At(l, k) * grad.AtVec(i)
		}
		c /= step.s[k]
		for r := 0; r < m; r++ {
			lambda[r] += c * step.u.At(r, k)
		}
	}

	gMax := 0.0
	for i := 0; i < grad.Len(); i++ {
		gMax = math.Max(gMax, math.Abs(grad.AtVec(i)))
	}
	threshold := -q.tol * (1 + gMax)

	release := -1
	worst := threshold
	for i, isActive := range active {
		if !isActive || stalled[i] {
			continue
		}
		nu := grad.AtVec(i)
		for r := 0; r < m; r++ {
			nu -= lambda[r] * q.a.At(r, i)
		}
		if nu < worst {
			worst = nu
			release = i
		}
	}
	return release, release >= 0
}

// cleanWeights clamps tiny and negative weights to zero and renormalizes so
// the weights sum to one.
func cleanWeights(w []float64) []float64 {
	out := make([]float64, len(w))
	sum := 0.0
	for i, v := range w {
		if v > weightFloor {
			out[i] = v
			sum += v
		}
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
