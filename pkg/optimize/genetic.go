package optimize

import (
	"context"
	"sort"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

// ============================================================================
// GENETIC ALGORITHM OPTIMIZER
// ============================================================================

type geneticOptimizer struct {
	cfg Config
}

func (o *geneticOptimizer) Kind() Kind { return KindGenetic }

// Optimize performs genetic algorithm optimization.
// Elites are carried over without re-evaluation; only offspring are evaluated.
func (o *geneticOptimizer) Optimize(ctx context.Context, strategy *backtest.Strategy, evaluate EvaluateFunc) (*Result, error) {
	r, err := newRun(KindGenetic, strategy, evaluate, o.cfg)
	if err != nil {
		return nil, err
	}
	gc := o.cfg.Genetic

	r.log.Info().
		Int("population", gc.Population).
		Int("generations", gc.Generations).
		Float64("mutation_rate", gc.MutationRate).
		Msg("Initializing population")

	initial := make([]backtest.ParameterSet, gc.Population)
	for i := range initial {
		initial[i] = r.space.random(r.rng)
	}
	population, err := r.evaluateAll(ctx, initial)
	if err != nil {
		return nil, r.fail(err)
	}

	eliteCount := int(float64(gc.Population) * gc.EliteRatio)

	var history History
	for gen := 0; gen < gc.Generations; gen++ {
		// Sort by fitness
		sort.SliceStable(population, func(i, j int) bool {
			return population[i].Fitness > population[j].Fitness
		})

		next := make([]Candidate, 0, gc.Population)

		// Keep elite
		next = append(next, population[:eliteCount]...)

		// Crossover and mutation
		offspring := make([]backtest.ParameterSet, 0, gc.Population-eliteCount)
		for len(next)+len(offspring) < gc.Population {
			parent1 := o.selectParent(r, population)
			parent2 := o.selectParent(r, population)

			child := o.crossover(r, parent1.Parameters, parent2.Parameters)
			offspring = append(offspring, o.mutate(r, child))
		}

		evaluated, err := r.evaluateAll(ctx, offspring)
		if err != nil {
			return nil, r.fail(err)
		}
		population = append(next, evaluated...)

		stats := generationStats(gen, population)
		history.Generations = append(history.Generations, stats)
		history.Convergence = append(history.Convergence, r.bestFitness())

		r.log.Debug().
			Int("generation", gen+1).
			Float64("best_score", stats.Best).
			Float64("worst_score", stats.Worst).
			Float64("avg_score", stats.Average).
			Msg("Generation complete")

		r.iterationDone(gen+1, gc.Generations)
	}

	return r.finish(history)
}

// selectParent selects a parent using tournament selection
func (o *geneticOptimizer) selectParent(r *run, population []Candidate) Candidate {
	best := population[r.rng.Intn(len(population))]

	for i := 1; i < o.cfg.Genetic.TournamentSize; i++ {
		contestant := population[r.rng.Intn(len(population))]
		if contestant.Fitness > best.Fitness {
			best = contestant
		}
	}

	return best
}

// crossover performs uniform crossover
func (o *geneticOptimizer) crossover(r *run, parent1, parent2 backtest.ParameterSet) backtest.ParameterSet {
	child := make(backtest.ParameterSet, len(r.strategy.Parameters))

	for _, param := range r.strategy.Parameters {
		if r.rng.Float64() < 0.5 {
			child[param.Name] = parent1[param.Name]
		} else {
			child[param.Name] = parent2[param.Name]
		}
	}

	return child
}

// mutate redraws each parameter uniformly within its bounds with the mutation probability
func (o *geneticOptimizer) mutate(r *run, individual backtest.ParameterSet) backtest.ParameterSet {
	for _, param := range r.strategy.Parameters {
		if r.rng.Float64() < o.cfg.Genetic.MutationRate {
			individual[param.Name] = param.Min + r.rng.Float64()*param.Range()
		}
	}
	return r.space.clamp(individual)
}
