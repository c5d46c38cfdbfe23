// Package optimize implements black-box optimizers over a strategy's parameter bounds
package optimize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

// EvaluateFunc runs a backtest for one parameter set.
// It is the only external dependency of every optimizer and may block.
type EvaluateFunc func(ctx context.Context, params backtest.ParameterSet) (*backtest.BacktestResult, error)

// ============================================================================
// OPTIMIZER KINDS
// ============================================================================

// Kind identifies an optimization algorithm
type Kind string

const (
	KindBayesian              Kind = "bayesian"
	KindParticleSwarm         Kind = "particle_swarm"
	KindSimulatedAnnealing    Kind = "simulated_annealing"
	KindAntColony             Kind = "ant_colony"
	KindDifferentialEvolution Kind = "differential_evolution"
	KindGenetic               Kind = "genetic"
	KindGridSearch            Kind = "grid_search"
)

// Kinds returns every supported algorithm
func Kinds() []Kind {
	return []Kind{
		KindBayesian,
		KindParticleSwarm,
		KindSimulatedAnnealing,
		KindAntColony,
		KindDifferentialEvolution,
		KindGenetic,
		KindGridSearch,
	}
}

// ParseKind converts a name such as "particle_swarm" or "particle-swarm" to a Kind
func ParseKind(s string) (Kind, error) {
	normalized := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, k := range Kinds() {
		if k == normalized {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

func (k Kind) String() string {
	return string(k)
}

// Optimizer searches a strategy's parameter space for the best fitness
type Optimizer interface {
	Kind() Kind
	Optimize(ctx context.Context, strategy *backtest.Strategy, evaluate EvaluateFunc) (*Result, error)
}

// New creates an optimizer of the given kind.
// Unset hyperparameters fall back to their defaults.
func New(kind Kind, cfg Config) (Optimizer, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch kind {
	case KindBayesian:
		return &bayesianOptimizer{cfg: cfg}, nil
	case KindParticleSwarm:
		return &swarmOptimizer{cfg: cfg}, nil
	case KindSimulatedAnnealing:
		return &annealingOptimizer{cfg: cfg}, nil
	case KindAntColony:
		return &antColonyOptimizer{cfg: cfg}, nil
	case KindDifferentialEvolution:
		return &differentialOptimizer{cfg: cfg}, nil
	case KindGenetic:
		return &geneticOptimizer{cfg: cfg}, nil
	case KindGridSearch:
		return &gridOptimizer{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
}

// Run creates an optimizer and runs it once
func Run(ctx context.Context, kind Kind, cfg Config, strategy *backtest.Strategy, evaluate EvaluateFunc) (*Result, error) {
	opt, err := New(kind, cfg)
	if err != nil {
		return nil, err
	}
	return opt.Optimize(ctx, strategy, evaluate)
}

// ============================================================================
// RESULTS
// ============================================================================

// Result is the outcome of an optimization run
type Result struct {
	Method         Kind                     `json:"method" yaml:"method"`
	BestParameters backtest.ParameterSet    `json:"best_parameters" yaml:"best_parameters"`
	BestFitness    float64                  `json:"best_fitness" yaml:"best_fitness"`
	BestResult     *backtest.BacktestResult `json:"best_result,omitempty" yaml:"best_result,omitempty"`
	Evaluations    int                      `json:"evaluations" yaml:"evaluations"`
	Iterations     int                      `json:"iterations" yaml:"iterations"`
	Seed           int64                    `json:"seed" yaml:"seed"`
	Duration       time.Duration            `json:"duration" yaml:"duration"`
	History        History                  `json:"history" yaml:"history"`
}

// Candidate is an evaluated parameter set
type Candidate struct {
	Parameters backtest.ParameterSet    `json:"parameters" yaml:"parameters"`
	Fitness    float64                  `json:"fitness" yaml:"fitness"`
	Result     *backtest.BacktestResult `json:"-" yaml:"-"`
}

// History is the algorithm-specific trace of a run.
// Only the fields relevant to the algorithm are populated.
type History struct {
	// Best fitness after each iteration or generation
	Convergence []float64 `json:"convergence,omitempty" yaml:"convergence,omitempty"`

	// Particle swarm
	Swarm []SwarmSnapshot `json:"swarm,omitempty" yaml:"swarm,omitempty"`

	// Simulated annealing
	Temperatures []float64 `json:"temperatures,omitempty" yaml:"temperatures,omitempty"`
	Fitness      []float64 `json:"fitness,omitempty" yaml:"fitness,omitempty"`

	// Ant colony
	Pheromones []PheromoneSnapshot `json:"pheromones,omitempty" yaml:"pheromones,omitempty"`

	// Bayesian
	Acquisitions []Acquisition `json:"acquisitions,omitempty" yaml:"acquisitions,omitempty"`

	// Differential evolution and genetic
	Generations []GenerationStats `json:"generations,omitempty" yaml:"generations,omitempty"`

	// Grid search
	TopResults []Candidate `json:"top_results,omitempty" yaml:"top_results,omitempty"`
}

// ParticleState is one particle at the end of an iteration
type ParticleState struct {
	Position backtest.ParameterSet `json:"position" yaml:"position"`
	Velocity backtest.ParameterSet `json:"velocity" yaml:"velocity"`
	Fitness  float64               `json:"fitness" yaml:"fitness"`
}

// SwarmSnapshot is the full swarm state after an iteration
type SwarmSnapshot struct {
	Iteration int             `json:"iteration" yaml:"iteration"`
	Particles []ParticleState `json:"particles" yaml:"particles"`
}

// PheromoneSnapshot holds every trail after evaporation and deposit
type PheromoneSnapshot struct {
	Iteration int                  `json:"iteration" yaml:"iteration"`
	Trails    map[string][]float64 `json:"trails" yaml:"trails"`
}

// Acquisition records one Bayesian proposal
type Acquisition struct {
	Iteration           int                   `json:"iteration" yaml:"iteration"`
	Parameters          backtest.ParameterSet `json:"parameters" yaml:"parameters"`
	ExpectedImprovement float64               `json:"expected_improvement" yaml:"expected_improvement"`
	Mean                float64               `json:"mean" yaml:"mean"`
	StdDev              float64               `json:"std_dev" yaml:"std_dev"`
	ActualFitness       float64               `json:"actual_fitness" yaml:"actual_fitness"`
}

// GenerationStats summarizes a population
type GenerationStats struct {
	Generation int     `json:"generation" yaml:"generation"`
	Best       float64 `json:"best" yaml:"best"`
	Worst      float64 `json:"worst" yaml:"worst"`
	Average    float64 `json:"average" yaml:"average"`
}

// ProgressEvent is emitted after each iteration or generation
type ProgressEvent struct {
	Method      Kind    `json:"method"`
	Iteration   int     `json:"iteration"`
	Total       int     `json:"total"`
	Evaluations int     `json:"evaluations"`
	BestFitness float64 `json:"best_fitness"`
}
