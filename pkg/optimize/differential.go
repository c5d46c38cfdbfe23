package optimize

import (
	"context"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

// ============================================================================
// DIFFERENTIAL EVOLUTION OPTIMIZER
// ============================================================================

type differentialOptimizer struct {
	cfg Config
}

func (o *differentialOptimizer) Kind() Kind { return KindDifferentialEvolution }

// Optimize evolves a population with mutant a + F·(b−c), binomial crossover
// against the target and greedy replacement
func (o *differentialOptimizer) Optimize(ctx context.Context, strategy *backtest.Strategy, evaluate EvaluateFunc) (*Result, error) {
	r, err := newRun(KindDifferentialEvolution, strategy, evaluate, o.cfg)
	if err != nil {
		return nil, err
	}
	dc := o.cfg.Differential

	initial := make([]backtest.ParameterSet, dc.Population)
	for i := range initial {
		initial[i] = r.space.random(r.rng)
	}
	population, err := r.evaluateAll(ctx, initial)
	if err != nil {
		return nil, r.fail(err)
	}

	var history History
	for gen := 0; gen < dc.Generations; gen++ {
		trials := make([]backtest.ParameterSet, dc.Population)
		for i := range trials {
			trials[i] = o.trial(r, population, i)
		}

		evaluated, err := r.evaluateAll(ctx, trials)
		if err != nil {
			return nil, r.fail(err)
		}

		for i, trial := range evaluated {
			if trial.Fitness > population[i].Fitness {
				population[i] = trial
			}
		}

		history.Generations = append(history.Generations, generationStats(gen, population))
		history.Convergence = append(history.Convergence, r.bestFitness())
		r.iterationDone(gen+1, dc.Generations)
	}

	return r.finish(history)
}

// trial builds the crossover of target i with a mutant of three other members.
// At least one parameter always comes from the mutant.
func (o *differentialOptimizer) trial(r *run, population []Candidate, target int) backtest.ParameterSet {
	a, b, c := pickThree(r, len(population), target)
	params := r.strategy.Parameters
	forced := r.rng.Intn(len(params))

	trial := make(backtest.ParameterSet, len(params))
	for j, p := range params {
		if j == forced || r.rng.Float64() < o.cfg.Differential.CrossoverRate {
			mutant := population[a].Parameters[p.Name] +
				o.cfg.Differential.MutationFactor*(population[b].Parameters[p.Name]-population[c].Parameters[p.Name])
			trial[p.Name] = p.Clamp(mutant)
		} else {
			trial[p.Name] = population[target].Parameters[p.Name]
		}
	}
	return trial
}

// pickThree draws three distinct indices different from exclude
func pickThree(r *run, n, exclude int) (int, int, int) {
	picked := make([]int, 0, 3)
	for len(picked) < 3 {
		idx := r.rng.Intn(n)
		if idx == exclude || containsInt(picked, idx) {
			continue
		}
		picked = append(picked, idx)
	}
	return picked[0], picked[1], picked[2]
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
