package optimize

import (
	"context"
	"math"
	"math/rand"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

// ============================================================================
// ANT COLONY OPTIMIZER
// ============================================================================

type antColonyOptimizer struct {
	cfg Config
}

func (o *antColonyOptimizer) Kind() Kind { return KindAntColony }

// Optimize discretizes each parameter into bins carrying pheromone.
// Ants of one iteration are evaluated together; evaporation then deposit
// runs sequentially after all of them have finished.
func (o *antColonyOptimizer) Optimize(ctx context.Context, strategy *backtest.Strategy, evaluate EvaluateFunc) (*Result, error) {
	r, err := newRun(KindAntColony, strategy, evaluate, o.cfg)
	if err != nil {
		return nil, err
	}
	ac := o.cfg.AntColony

	trails := make(map[string][]float64, len(strategy.Parameters))
	for _, p := range strategy.Parameters {
		trail := make([]float64, ac.Steps)
		for i := range trail {
			trail[i] = 1.0 / float64(ac.Steps)
		}
		trails[p.Name] = trail
	}

	var history History
	for iter := 0; iter < ac.Iterations; iter++ {
		ants := make([]backtest.ParameterSet, ac.Ants)
		bins := make([][]int, ac.Ants)

		for a := range ants {
			ants[a] = make(backtest.ParameterSet, len(strategy.Parameters))
			bins[a] = make([]int, len(strategy.Parameters))
			for j, p := range strategy.Parameters {
				bin := selectBin(r.rng, trails[p.Name], ac.Alpha)
				bins[a][j] = bin
				ants[a][p.Name] = binValue(p, bin, ac.Steps)
			}
		}

		evaluated, err := r.evaluateAll(ctx, ants)
		if err != nil {
			return nil, r.fail(err)
		}

		// Evaporate
		for _, trail := range trails {
			for i := range trail {
				trail[i] *= 1 - ac.EvaporationRate
			}
		}

		// Deposit
		for a, c := range evaluated {
			deposit := math.Max(c.Fitness, 0)
			for j, p := range strategy.Parameters {
				trails[p.Name][bins[a][j]] += deposit
			}
		}

		history.Pheromones = append(history.Pheromones, snapshotTrails(iter, trails))
		history.Convergence = append(history.Convergence, r.bestFitness())
		r.iterationDone(iter+1, ac.Iterations)
	}

	return r.finish(history)
}

// selectBin samples a bin with probability proportional to pheromone^alpha.
// Degenerate weights fall back to a uniform choice.
func selectBin(rng *rand.Rand, trail []float64, alpha float64) int {
	if len(trail) == 1 {
		return 0
	}

	weights := make([]float64, len(trail))
	total := 0.0
	for i, p := range trail {
		weights[i] = math.Pow(p, alpha)
		total += weights[i]
	}
	if !(total > 0) || math.IsInf(total, 0) {
		return rng.Intn(len(trail))
	}

	target := rng.Float64() * total
	cumulative := 0.0
	for i, w := range weights {
		cumulative += w
		if target < cumulative {
			return i
		}
	}
	return len(trail) - 1
}

// binValue maps a bin index back to a continuous value.
// A single bin always maps to the minimum.
func binValue(p backtest.StrategyParameter, bin, steps int) float64 {
	if steps <= 1 {
		return p.Min
	}
	return p.Clamp(p.Min + float64(bin)/float64(steps-1)*p.Range())
}

func snapshotTrails(iteration int, trails map[string][]float64) PheromoneSnapshot {
	snap := PheromoneSnapshot{Iteration: iteration, Trails: make(map[string][]float64, len(trails))}
	for name, trail := range trails {
		snap.Trails[name] = append([]float64(nil), trail...)
	}
	return snap
}
