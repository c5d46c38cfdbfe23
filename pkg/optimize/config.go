package optimize

import (
	"errors"
	"fmt"
	"math"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

// ============================================================================
// CONFIGURATION
// ============================================================================

// Config holds the settings shared by every optimizer plus per-algorithm hyperparameters.
// Zero values are replaced by defaults in New.
type Config struct {
	// Seed drives every random choice; 0 uses a time-based seed
	Seed int64 `mapstructure:"seed" yaml:"seed"`

	// Parallelism bounds concurrent evaluations within one iteration
	Parallelism int `mapstructure:"parallelism" yaml:"parallelism"`

	// Objective scores a backtest result; nil uses backtest.DefaultFitness
	Objective backtest.ObjectiveFunction `mapstructure:"-" yaml:"-"`

	// Progress is called after each iteration or generation
	Progress func(ProgressEvent) `mapstructure:"-" yaml:"-"`

	Swarm        SwarmConfig        `mapstructure:"particle_swarm" yaml:"particle_swarm"`
	Annealing    AnnealingConfig    `mapstructure:"simulated_annealing" yaml:"simulated_annealing"`
	AntColony    AntColonyConfig    `mapstructure:"ant_colony" yaml:"ant_colony"`
	Bayesian     BayesianConfig     `mapstructure:"bayesian" yaml:"bayesian"`
	Differential DifferentialConfig `mapstructure:"differential_evolution" yaml:"differential_evolution"`
	Genetic      GeneticConfig      `mapstructure:"genetic" yaml:"genetic"`
	Grid         GridConfig         `mapstructure:"grid_search" yaml:"grid_search"`
}

// SwarmConfig configures particle swarm optimization
type SwarmConfig struct {
	Particles  int     `mapstructure:"particles" yaml:"particles"`
	Iterations int     `mapstructure:"iterations" yaml:"iterations"`
	Inertia    float64 `mapstructure:"inertia" yaml:"inertia"`
	Cognitive  float64 `mapstructure:"cognitive" yaml:"cognitive"`
	Social     float64 `mapstructure:"social" yaml:"social"`
}

// AnnealingConfig configures simulated annealing
type AnnealingConfig struct {
	InitialTemperature float64 `mapstructure:"initial_temperature" yaml:"initial_temperature"`
	CoolingRate        float64 `mapstructure:"cooling_rate" yaml:"cooling_rate"`
	Iterations         int     `mapstructure:"iterations" yaml:"iterations"`
	MinTemperature     float64 `mapstructure:"min_temperature" yaml:"min_temperature"`
	// NeighborScale is the width of the perturbation window as a fraction of the range
	NeighborScale float64 `mapstructure:"neighbor_scale" yaml:"neighbor_scale"`
}

// AntColonyConfig configures ant colony optimization
type AntColonyConfig struct {
	Ants            int     `mapstructure:"ants" yaml:"ants"`
	Iterations      int     `mapstructure:"iterations" yaml:"iterations"`
	EvaporationRate float64 `mapstructure:"evaporation_rate" yaml:"evaporation_rate"`
	Alpha           float64 `mapstructure:"alpha" yaml:"alpha"`
	Steps           int     `mapstructure:"discretization_steps" yaml:"discretization_steps"`
}

// BayesianConfig configures Bayesian optimization
type BayesianConfig struct {
	InitialPoints int     `mapstructure:"initial_points" yaml:"initial_points"`
	Iterations    int     `mapstructure:"iterations" yaml:"iterations"`
	Exploration   float64 `mapstructure:"exploration" yaml:"exploration"`
	Candidates    int     `mapstructure:"candidates" yaml:"candidates"`
	LengthScale   float64 `mapstructure:"length_scale" yaml:"length_scale"`
	Noise         float64 `mapstructure:"noise" yaml:"noise"`
}

// DifferentialConfig configures differential evolution
type DifferentialConfig struct {
	Population     int     `mapstructure:"population" yaml:"population"`
	MutationFactor float64 `mapstructure:"mutation_factor" yaml:"mutation_factor"`
	CrossoverRate  float64 `mapstructure:"crossover_rate" yaml:"crossover_rate"`
	Generations    int     `mapstructure:"generations" yaml:"generations"`
}

// GeneticConfig configures the genetic algorithm
type GeneticConfig struct {
	Population     int     `mapstructure:"population" yaml:"population"`
	MutationRate   float64 `mapstructure:"mutation_rate" yaml:"mutation_rate"`
	Generations    int     `mapstructure:"generations" yaml:"generations"`
	EliteRatio     float64 `mapstructure:"elite_ratio" yaml:"elite_ratio"`
	TournamentSize int     `mapstructure:"tournament_size" yaml:"tournament_size"`
}

// GridConfig configures grid search
type GridConfig struct {
	// MaxCombinations caps the number of evaluated lattice points
	MaxCombinations int `mapstructure:"max_combinations" yaml:"max_combinations"`
	// DefaultSteps is the number of points for parameters without a step
	DefaultSteps int `mapstructure:"default_steps" yaml:"default_steps"`
}

// DefaultConfig returns the default hyperparameters of every algorithm
func DefaultConfig() Config {
	return Config{
		Parallelism: 4,
		Objective:   backtest.DefaultFitness,
		Swarm: SwarmConfig{
			Particles:  30,
			Iterations: 50,
			Inertia:    0.729,
			Cognitive:  1.49445,
			Social:     1.49445,
		},
		Annealing: AnnealingConfig{
			InitialTemperature: 100,
			CoolingRate:        0.95,
			Iterations:         1000,
			MinTemperature:     0.1,
			NeighborScale:      0.1,
		},
		AntColony: AntColonyConfig{
			Ants:            30,
			Iterations:      50,
			EvaporationRate: 0.1,
			Alpha:           1,
			Steps:           100,
		},
		Bayesian: BayesianConfig{
			InitialPoints: 5,
			Iterations:    50,
			Exploration:   0.1,
			Candidates:    1000,
			LengthScale:   1,
			Noise:         1e-6,
		},
		Differential: DifferentialConfig{
			Population:     50,
			MutationFactor: 0.8,
			CrossoverRate:  0.7,
			Generations:    30,
		},
		Genetic: GeneticConfig{
			Population:     50,
			MutationRate:   0.1,
			Generations:    20,
			EliteRatio:     0.1,
			TournamentSize: 3,
		},
		Grid: GridConfig{
			MaxCombinations: 10000,
			DefaultSteps:    10,
		},
	}
}

// WithIterations sets the iteration or generation budget of every algorithm
func (c Config) WithIterations(n int) Config {
	c.Swarm.Iterations = n
	c.Annealing.Iterations = n
	c.AntColony.Iterations = n
	c.Bayesian.Iterations = n
	c.Differential.Generations = n
	c.Genetic.Generations = n
	c.Grid.MaxCombinations = n
	return c
}

// WithSeed returns a copy using the given seed
func (c Config) WithSeed(seed int64) Config {
	c.Seed = seed
	return c
}

// withDefaults fills unset hyperparameters. A zero-valued algorithm section
// takes every default; otherwise only fields that must be positive are filled,
// so explicit zeros such as EliteRatio or Exploration are kept.
func (c Config) withDefaults() Config {
	d := DefaultConfig()

	setInt(&c.Parallelism, d.Parallelism)
	if c.Objective == nil {
		c.Objective = d.Objective
	}

	if c.Swarm == (SwarmConfig{}) {
		c.Swarm = d.Swarm
	}
	setInt(&c.Swarm.Particles, d.Swarm.Particles)

	if c.Annealing == (AnnealingConfig{}) {
		c.Annealing = d.Annealing
	}
	setFloat(&c.Annealing.InitialTemperature, d.Annealing.InitialTemperature)
	setFloat(&c.Annealing.CoolingRate, d.Annealing.CoolingRate)
	setFloat(&c.Annealing.NeighborScale, d.Annealing.NeighborScale)

	if c.AntColony == (AntColonyConfig{}) {
		c.AntColony = d.AntColony
	}
	setInt(&c.AntColony.Ants, d.AntColony.Ants)
	setFloat(&c.AntColony.EvaporationRate, d.AntColony.EvaporationRate)
	setInt(&c.AntColony.Steps, d.AntColony.Steps)

	if c.Bayesian == (BayesianConfig{}) {
		c.Bayesian = d.Bayesian
	}
	setInt(&c.Bayesian.InitialPoints, d.Bayesian.InitialPoints)
	setInt(&c.Bayesian.Candidates, d.Bayesian.Candidates)
	setFloat(&c.Bayesian.LengthScale, d.Bayesian.LengthScale)

	if c.Differential == (DifferentialConfig{}) {
		c.Differential = d.Differential
	}
	setInt(&c.Differential.Population, d.Differential.Population)
	setFloat(&c.Differential.CrossoverRate, d.Differential.CrossoverRate)

	if c.Genetic == (GeneticConfig{}) {
		c.Genetic = d.Genetic
	}
	setInt(&c.Genetic.Population, d.Genetic.Population)
	setInt(&c.Genetic.TournamentSize, d.Genetic.TournamentSize)

	setInt(&c.Grid.MaxCombinations, d.Grid.MaxCombinations)
	setInt(&c.Grid.DefaultSteps, d.Grid.DefaultSteps)

	return c
}

// Validate rejects hyperparameters no algorithm can run with
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.Parallelism > 0, "parallelism must be positive, got %d", c.Parallelism)

	check(c.Swarm.Particles > 0, "particle_swarm.particles must be positive")
	check(c.Swarm.Iterations >= 0, "particle_swarm.iterations must not be negative")

	check(c.Annealing.InitialTemperature > 0, "simulated_annealing.initial_temperature must be positive")
	check(c.Annealing.CoolingRate > 0 && c.Annealing.CoolingRate < 1, "simulated_annealing.cooling_rate must be in (0, 1), got %v", c.Annealing.CoolingRate)
	check(c.Annealing.Iterations >= 0, "simulated_annealing.iterations must not be negative")
	check(c.Annealing.NeighborScale > 0 && c.Annealing.NeighborScale <= 1, "simulated_annealing.neighbor_scale must be in (0, 1]")

	check(c.AntColony.Ants > 0, "ant_colony.ants must be positive")
	check(c.AntColony.Iterations >= 0, "ant_colony.iterations must not be negative")
	check(c.AntColony.EvaporationRate > 0 && c.AntColony.EvaporationRate <= 1, "ant_colony.evaporation_rate must be in (0, 1], got %v", c.AntColony.EvaporationRate)
	check(c.AntColony.Steps > 0, "ant_colony.discretization_steps must be positive")
	check(!math.IsNaN(c.AntColony.Alpha), "ant_colony.alpha must be a number")

	check(c.Bayesian.InitialPoints > 0, "bayesian.initial_points must be positive")
	check(c.Bayesian.Iterations >= 0, "bayesian.iterations must not be negative")
	check(c.Bayesian.Candidates > 0, "bayesian.candidates must be positive")
	check(c.Bayesian.LengthScale > 0, "bayesian.length_scale must be positive")
	check(c.Bayesian.Noise >= 0, "bayesian.noise must not be negative")

	check(c.Differential.Population >= 4, "differential_evolution.population must be at least 4, got %d", c.Differential.Population)
	check(c.Differential.CrossoverRate > 0 && c.Differential.CrossoverRate <= 1, "differential_evolution.crossover_rate must be in (0, 1]")
	check(c.Differential.Generations >= 0, "differential_evolution.generations must not be negative")

	check(c.Genetic.Population >= 2, "genetic.population must be at least 2, got %d", c.Genetic.Population)
	check(c.Genetic.MutationRate >= 0 && c.Genetic.MutationRate <= 1, "genetic.mutation_rate must be in [0, 1]")
	check(c.Genetic.EliteRatio >= 0 && c.Genetic.EliteRatio < 1, "genetic.elite_ratio must be in [0, 1)")
	check(c.Genetic.TournamentSize > 0, "genetic.tournament_size must be positive")
	check(c.Genetic.Generations >= 0, "genetic.generations must not be negative")

	check(c.Grid.MaxCombinations > 0, "grid_search.max_combinations must be positive")
	check(c.Grid.DefaultSteps > 0, "grid_search.default_steps must be positive")

	return errors.Join(errs...)
}

func setInt(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}

func setFloat(v *float64, def float64) {
	if *v == 0 {
		*v = def
	}
}
