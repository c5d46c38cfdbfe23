package optimize

import (
	"context"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

// ============================================================================
// PARTICLE SWARM OPTIMIZER
// ============================================================================

type swarmOptimizer struct {
	cfg Config
}

type particle struct {
	position    backtest.ParameterSet
	velocity    backtest.ParameterSet
	best        backtest.ParameterSet
	bestFitness float64
	fitness     float64
}

func (o *swarmOptimizer) Kind() Kind { return KindParticleSwarm }

// Optimize moves a swarm through the bounds using
// v = w·v + c1·r1·(pBest−x) + c2·r2·(gBest−x), x += v, then clamps x.
// All particles of an iteration see the same global best and are evaluated together.
func (o *swarmOptimizer) Optimize(ctx context.Context, strategy *backtest.Strategy, evaluate EvaluateFunc) (*Result, error) {
	r, err := newRun(KindParticleSwarm, strategy, evaluate, o.cfg)
	if err != nil {
		return nil, err
	}
	sc := o.cfg.Swarm

	particles := make([]*particle, sc.Particles)
	for i := range particles {
		velocity := make(backtest.ParameterSet, len(strategy.Parameters))
		for _, p := range strategy.Parameters {
			velocity[p.Name] = p.Range() * (r.rng.Float64() - 0.5) * 0.1
		}
		particles[i] = &particle{position: r.space.random(r.rng), velocity: velocity}
	}

	evaluated, err := r.evaluateAll(ctx, positions(particles))
	if err != nil {
		return nil, r.fail(err)
	}
	for i, p := range particles {
		p.fitness = evaluated[i].Fitness
		p.best = p.position.Clone()
		p.bestFitness = p.fitness
	}

	var history History
	for iter := 0; iter < sc.Iterations; iter++ {
		global := r.currentBest().Parameters

		for _, p := range particles {
			for _, param := range strategy.Parameters {
				name := param.Name
				r1, r2 := r.rng.Float64(), r.rng.Float64()

				p.velocity[name] = sc.Inertia*p.velocity[name] +
					sc.Cognitive*r1*(p.best[name]-p.position[name]) +
					sc.Social*r2*(global[name]-p.position[name])

				p.position[name] = param.Clamp(p.position[name] + p.velocity[name])
			}
		}

		evaluated, err := r.evaluateAll(ctx, positions(particles))
		if err != nil {
			return nil, r.fail(err)
		}

		for i, p := range particles {
			p.fitness = evaluated[i].Fitness
			if p.fitness > p.bestFitness {
				p.bestFitness = p.fitness
				p.best = p.position.Clone()
			}
		}

		history.Convergence = append(history.Convergence, r.bestFitness())
		history.Swarm = append(history.Swarm, snapshotSwarm(iter, particles))
		r.iterationDone(iter+1, sc.Iterations)
	}

	return r.finish(history)
}

func positions(particles []*particle) []backtest.ParameterSet {
	sets := make([]backtest.ParameterSet, len(particles))
	for i, p := range particles {
		sets[i] = p.position
	}
	return sets
}

func snapshotSwarm(iteration int, particles []*particle) SwarmSnapshot {
	snap := SwarmSnapshot{Iteration: iteration, Particles: make([]ParticleState, len(particles))}
	for i, p := range particles {
		snap.Particles[i] = ParticleState{
			Position: p.position.Clone(),
			Velocity: p.velocity.Clone(),
			Fitness:  p.fitness,
		}
	}
	return snap
}
