package optimize

import (
	"context"
	"fmt"
	"math"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

// surrogateBound caps targets fed to the surrogate so failed candidates
// scored -Inf do not poison the kernel regression
const surrogateBound = 1e6

// ============================================================================
// BAYESIAN OPTIMIZER
// ============================================================================

type bayesianOptimizer struct {
	cfg Config
}

type proposal struct {
	params backtest.ParameterSet
	ei     float64
	mean   float64
	std    float64
}

func (o *bayesianOptimizer) Kind() Kind { return KindBayesian }

// Optimize fits a Gaussian process to every observation and evaluates the
// random candidate with the highest expected improvement. The surrogate is
// fitted on unit-cube coordinates. Fitting and proposing are sequential.
func (o *bayesianOptimizer) Optimize(ctx context.Context, strategy *backtest.Strategy, evaluate EvaluateFunc) (*Result, error) {
	r, err := newRun(KindBayesian, strategy, evaluate, o.cfg)
	if err != nil {
		return nil, err
	}
	bc := o.cfg.Bayesian

	initial := make([]backtest.ParameterSet, bc.InitialPoints)
	for i := range initial {
		initial[i] = r.space.random(r.rng)
	}
	observed, err := r.evaluateAll(ctx, initial)
	if err != nil {
		return nil, r.fail(err)
	}

	x := make([][]float64, 0, bc.InitialPoints+bc.Iterations)
	y := make([]float64, 0, bc.InitialPoints+bc.Iterations)
	for _, c := range observed {
		x = append(x, r.space.unit(c.Parameters))
		y = append(y, surrogateTarget(c.Fitness))
	}

	gp := NewGaussianProcess(bc.LengthScale, bc.Noise)

	var history History
	for i := 0; i < bc.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return nil, r.fail(err)
		}
		if err := gp.Fit(x, y); err != nil {
			return nil, r.fail(fmt.Errorf("fit surrogate at iteration %d: %w", i, err))
		}

		next := o.propose(r, gp, surrogateTarget(r.bestFitness()))

		c, err := r.evaluateOne(ctx, next.params)
		if err != nil {
			return nil, r.fail(err)
		}

		x = append(x, r.space.unit(c.Parameters))
		y = append(y, surrogateTarget(c.Fitness))

		history.Acquisitions = append(history.Acquisitions, Acquisition{
			Iteration:           i,
			Parameters:          c.Parameters.Clone(),
			ExpectedImprovement: next.ei,
			Mean:                next.mean,
			StdDev:              next.std,
			ActualFitness:       c.Fitness,
		})
		history.Convergence = append(history.Convergence, r.bestFitness())
		r.iterationDone(i+1, bc.Iterations)
	}

	return r.finish(history)
}

// propose maximizes expected improvement over a uniform random sample
func (o *bayesianOptimizer) propose(r *run, gp *GaussianProcess, best float64) proposal {
	var chosen proposal
	chosen.ei = math.Inf(-1)

	for i := 0; i < o.cfg.Bayesian.Candidates; i++ {
		params := r.space.random(r.rng)
		mean, std := gp.Predict(r.space.unit(params))
		ei := ExpectedImprovement(mean, std, best, o.cfg.Bayesian.Exploration)

		if chosen.params == nil || ei > chosen.ei {
			chosen = proposal{params: params, ei: ei, mean: mean, std: std}
		}
	}
	return chosen
}

// ExpectedImprovement returns (μ−f*−ξ)·Φ(z) + σ·φ(z) with z = (μ−f*−ξ)/σ,
// or 0 when σ is zero. Tail rounding is clamped at 0.
func ExpectedImprovement(mean, std, best, xi float64) float64 {
	if std <= 0 {
		return 0
	}
	improvement := mean - best - xi
	z := improvement / std
	return math.Max(0, improvement*NormalCDF(z)+std*NormalPDF(z))
}

// NormalCDF is the standard normal cumulative distribution function
func NormalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// NormalPDF is the standard normal density
func NormalPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

func surrogateTarget(fitness float64) float64 {
	return math.Max(-surrogateBound, math.Min(surrogateBound, fitness))
}
