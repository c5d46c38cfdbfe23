package optimize

import (
	"context"
	"math"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

// ============================================================================
// SIMULATED ANNEALING OPTIMIZER
// ============================================================================

type annealingOptimizer struct {
	cfg Config
}

func (o *annealingOptimizer) Kind() Kind { return KindSimulatedAnnealing }

// Optimize runs a single accept/reject chain.
// The temperature decays geometrically and the chain stops once it drops
// below the floor or the iteration budget is spent. The chain is sequential.
func (o *annealingOptimizer) Optimize(ctx context.Context, strategy *backtest.Strategy, evaluate EvaluateFunc) (*Result, error) {
	r, err := newRun(KindSimulatedAnnealing, strategy, evaluate, o.cfg)
	if err != nil {
		return nil, err
	}
	ac := o.cfg.Annealing

	current, err := r.evaluateOne(ctx, r.space.random(r.rng))
	if err != nil {
		return nil, r.fail(err)
	}

	var history History
	temperature := ac.InitialTemperature

	for i := 0; i < ac.Iterations && temperature >= ac.MinTemperature; i++ {
		neighbor, err := r.evaluateOne(ctx, o.neighbor(r, current.Parameters))
		if err != nil {
			return nil, r.fail(err)
		}

		delta := neighbor.Fitness - current.Fitness
		if delta > 0 || r.rng.Float64() < math.Exp(delta/temperature) {
			current = neighbor
		}

		temperature *= ac.CoolingRate

		history.Temperatures = append(history.Temperatures, temperature)
		history.Fitness = append(history.Fitness, current.Fitness)
		history.Convergence = append(history.Convergence, r.bestFitness())
		r.iterationDone(i+1, ac.Iterations)
	}

	return r.finish(history)
}

// neighbor perturbs one random parameter by up to ±scale/2 of its range
func (o *annealingOptimizer) neighbor(r *run, current backtest.ParameterSet) backtest.ParameterSet {
	next := current.Clone()
	param := r.strategy.Parameters[r.rng.Intn(len(r.strategy.Parameters))]

	change := (r.rng.Float64() - 0.5) * param.Range() * o.cfg.Annealing.NeighborScale
	next[param.Name] = param.Clamp(next[param.Name] + change)
	return next
}
