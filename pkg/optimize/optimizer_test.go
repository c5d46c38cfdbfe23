package optimize

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

// ============================================================================
// TEST HELPERS
// ============================================================================

func testStrategy() *backtest.Strategy {
	return &backtest.Strategy{
		ID:   "sma-cross",
		Name: "SMA Crossover",
		Parameters: []backtest.StrategyParameter{
			{Name: "fast_period", Value: 10, Min: 2, Max: 50, Step: 4},
			{Name: "slow_period", Value: 50, Min: 10, Max: 200, Step: 10},
			{Name: "threshold", Value: 0.01, Min: 0, Max: 0.05, Step: 0.01},
		},
	}
}

// recorder is a deterministic quadratic objective that records every call
type recorder struct {
	strategy *backtest.Strategy
	target   []float64
	delay    time.Duration

	mu       sync.Mutex
	seen     []backtest.ParameterSet
	inflight atomic.Int32
	peak     atomic.Int32
}

func newRecorder(s *backtest.Strategy) *recorder {
	return &recorder{strategy: s, target: []float64{12, 80, 0.02}}
}

func (rec *recorder) evaluate(ctx context.Context, ps backtest.ParameterSet) (*backtest.BacktestResult, error) {
	n := rec.inflight.Add(1)
	defer rec.inflight.Add(-1)
	for {
		peak := rec.peak.Load()
		if n <= peak || rec.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	rec.mu.Lock()
	rec.seen = append(rec.seen, ps.Clone())
	rec.mu.Unlock()

	if rec.delay > 0 {
		select {
		case <-time.After(rec.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	score := 0.0
	for i, p := range rec.strategy.Parameters {
		d := (ps[p.Name] - rec.target[i]) / p.Range()
		score -= d * d
	}

	return &backtest.BacktestResult{ProfitFactor: 2 + score, WinRate: 0.5, MaxDrawdown: 0.1}, nil
}

func (rec *recorder) calls() []backtest.ParameterSet {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]backtest.ParameterSet(nil), rec.seen...)
}

func smallConfig(seed int64) Config {
	cfg := DefaultConfig().WithIterations(5).WithSeed(seed)
	cfg.Swarm.Particles = 8
	cfg.Annealing.Iterations = 40
	cfg.AntColony.Ants = 8
	cfg.AntColony.Steps = 20
	cfg.Bayesian.InitialPoints = 3
	cfg.Bayesian.Candidates = 100
	cfg.Differential.Population = 8
	cfg.Genetic.Population = 10
	cfg.Grid.MaxCombinations = 60
	return cfg
}

func assertInBounds(t *testing.T, s *backtest.Strategy, ps backtest.ParameterSet, msgAndArgs ...interface{}) {
	t.Helper()
	for _, p := range s.Parameters {
		v, ok := ps[p.Name]
		require.True(t, ok, msgAndArgs...)
		assert.GreaterOrEqual(t, v, p.Min, msgAndArgs...)
		assert.LessOrEqual(t, v, p.Max, msgAndArgs...)
	}
}

// ============================================================================
// COMMON CONTRACT TESTS
// ============================================================================

func TestAllOptimizersRespectBounds(t *testing.T) {
	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			s := testStrategy()
			rec := newRecorder(s)

			result, err := Run(context.Background(), kind, smallConfig(42), s, rec.evaluate)
			require.NoError(t, err)
			require.NotNil(t, result)

			assert.Equal(t, kind, result.Method)
			assert.Equal(t, int64(42), result.Seed)
			assertInBounds(t, s, result.BestParameters, "best parameters")
			assert.Equal(t, len(rec.calls()), result.Evaluations)

			for i, ps := range rec.calls() {
				assertInBounds(t, s, ps, "evaluation %d", i)
			}
			for _, snap := range result.History.Swarm {
				for _, p := range snap.Particles {
					assertInBounds(t, s, p.Position, "swarm iteration %d", snap.Iteration)
				}
			}
			for _, a := range result.History.Acquisitions {
				assertInBounds(t, s, a.Parameters, "acquisition %d", a.Iteration)
			}
			for _, c := range result.History.TopResults {
				assertInBounds(t, s, c.Parameters, "grid result")
			}

			// The global best never regresses
			for i := 1; i < len(result.History.Convergence); i++ {
				assert.GreaterOrEqual(t, result.History.Convergence[i], result.History.Convergence[i-1])
			}
		})
	}
}

func TestOptimizersDeterministicWithSeed(t *testing.T) {
	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			s := testStrategy()

			first, err := Run(context.Background(), kind, smallConfig(7), s, newRecorder(s).evaluate)
			require.NoError(t, err)
			second, err := Run(context.Background(), kind, smallConfig(7), s, newRecorder(s).evaluate)
			require.NoError(t, err)

			assert.Equal(t, first.BestParameters, second.BestParameters)
			assert.Equal(t, first.BestFitness, second.BestFitness)
			assert.Equal(t, first.Evaluations, second.Evaluations)
			assert.Equal(t, first.History.Convergence, second.History.Convergence)
		})
	}
}

func TestEvaluationErrorAbortsRun(t *testing.T) {
	errBackend := errors.New("backend unavailable")

	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			s := testStrategy()
			var calls atomic.Int32
			evaluate := func(ctx context.Context, ps backtest.ParameterSet) (*backtest.BacktestResult, error) {
				if calls.Add(1) > 2 {
					return nil, errBackend
				}
				return &backtest.BacktestResult{ProfitFactor: 1}, nil
			}

			cfg := smallConfig(1)
			cfg.Parallelism = 1

			result, err := Run(context.Background(), kind, cfg, s, evaluate)
			require.Error(t, err)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, errBackend)

			var evalErr *EvaluationError
			require.ErrorAs(t, err, &evalErr)
			assert.Equal(t, kind, evalErr.Method)
			assertInBounds(t, s, evalErr.Parameters)
		})
	}
}

func TestNilResultIsAnError(t *testing.T) {
	s := testStrategy()
	evaluate := func(ctx context.Context, ps backtest.ParameterSet) (*backtest.BacktestResult, error) {
		return nil, nil
	}

	_, err := Run(context.Background(), KindGenetic, smallConfig(1), s, evaluate)
	assert.ErrorIs(t, err, ErrNilResult)
}

func TestInvalidStrategyFailsFast(t *testing.T) {
	s := testStrategy()
	s.Parameters[0].Max = s.Parameters[0].Min

	var called atomic.Bool
	evaluate := func(ctx context.Context, ps backtest.ParameterSet) (*backtest.BacktestResult, error) {
		called.Store(true)
		return &backtest.BacktestResult{}, nil
	}

	for _, kind := range Kinds() {
		_, err := Run(context.Background(), kind, smallConfig(1), s, evaluate)
		assert.ErrorIs(t, err, backtest.ErrInvalidBounds, string(kind))

		var pe *backtest.ParameterError
		assert.ErrorAs(t, err, &pe)
	}
	assert.False(t, called.Load(), "no evaluation before validation")

	_, err := Run(context.Background(), KindBayesian, smallConfig(1), &backtest.Strategy{Name: "empty"}, evaluate)
	assert.ErrorIs(t, err, backtest.ErrNoParameters)
}

func TestContextCancellationAbortsRun(t *testing.T) {
	s := testStrategy()
	rec := newRecorder(s)
	rec.delay = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cfg := smallConfig(3).WithIterations(1000)
	cfg.Progress = func(e ProgressEvent) {
		if e.Iteration == 2 {
			cancel()
		}
	}

	_, err := Run(ctx, KindParticleSwarm, cfg, s, rec.evaluate)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParallelismIsBounded(t *testing.T) {
	s := testStrategy()
	rec := newRecorder(s)
	rec.delay = 2 * time.Millisecond

	cfg := smallConfig(5)
	cfg.Parallelism = 3
	cfg.Genetic.Population = 24

	_, err := Run(context.Background(), KindGenetic, cfg, s, rec.evaluate)
	require.NoError(t, err)
	assert.LessOrEqual(t, rec.peak.Load(), int32(3))
	assert.GreaterOrEqual(t, rec.peak.Load(), int32(1))
}

func TestProgressHook(t *testing.T) {
	s := testStrategy()
	var events []ProgressEvent

	cfg := smallConfig(11)
	cfg.Progress = func(e ProgressEvent) { events = append(events, e) }

	result, err := Run(context.Background(), KindDifferentialEvolution, cfg, s, newRecorder(s).evaluate)
	require.NoError(t, err)

	require.Len(t, events, 5)
	for i, e := range events {
		assert.Equal(t, KindDifferentialEvolution, e.Method)
		assert.Equal(t, i+1, e.Iteration)
		assert.Equal(t, 5, e.Total)
	}
	assert.Equal(t, result.BestFitness, events[len(events)-1].BestFitness)
	assert.Equal(t, result.Evaluations, events[len(events)-1].Evaluations)
}

func TestCustomObjective(t *testing.T) {
	s := testStrategy()
	cfg := smallConfig(2)
	cfg.Objective = func(r *backtest.BacktestResult) float64 { return -r.ProfitFactor }

	result, err := Run(context.Background(), KindGridSearch, cfg, s, newRecorder(s).evaluate)
	require.NoError(t, err)
	assert.Equal(t, -result.BestResult.ProfitFactor, result.BestFitness)
}

// ============================================================================
// DISPATCH AND CONFIGURATION TESTS
// ============================================================================

func TestParseKind(t *testing.T) {
	tests := []struct {
		input    string
		expected Kind
		wantErr  bool
	}{
		{"bayesian", KindBayesian, false},
		{"Particle-Swarm", KindParticleSwarm, false},
		{" simulated_annealing ", KindSimulatedAnnealing, false},
		{"ant_colony", KindAntColony, false},
		{"differential-evolution", KindDifferentialEvolution, false},
		{"genetic", KindGenetic, false},
		{"grid_search", KindGridSearch, false},
		{"hill_climbing", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			kind, err := ParseKind(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownKind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, kind)
		})
	}
}

func TestNewDispatchesEveryKind(t *testing.T) {
	for _, kind := range Kinds() {
		opt, err := New(kind, Config{})
		require.NoError(t, err)
		assert.Equal(t, kind, opt.Kind())
	}

	_, err := New(Kind("nope"), Config{})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestConfigKeepsExplicitZeros(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Genetic.EliteRatio = 0
	cfg.Genetic.MutationRate = 0
	cfg.Bayesian.Exploration = 0
	cfg.Bayesian.Noise = 0
	cfg.AntColony.Alpha = 0
	cfg.Swarm.Iterations = 0

	got := cfg.withDefaults()
	assert.Zero(t, got.Genetic.EliteRatio)
	assert.Zero(t, got.Genetic.MutationRate)
	assert.Zero(t, got.Bayesian.Exploration)
	assert.Zero(t, got.Bayesian.Noise)
	assert.Zero(t, got.AntColony.Alpha)
	assert.Zero(t, got.Swarm.Iterations)
	require.NoError(t, got.Validate())

	// Required positives are still filled in a partially set section
	cfg.Genetic.Population = 0
	assert.Equal(t, 50, cfg.withDefaults().Genetic.Population)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, 4, cfg.Parallelism)
	assert.NotNil(t, cfg.Objective)
	assert.Equal(t, 30, cfg.Swarm.Particles)
	assert.Equal(t, 0.729, cfg.Swarm.Inertia)
	assert.Equal(t, 1.49445, cfg.Swarm.Cognitive)
	assert.Equal(t, 100.0, cfg.Annealing.InitialTemperature)
	assert.Equal(t, 0.95, cfg.Annealing.CoolingRate)
	assert.Equal(t, 1000, cfg.Annealing.Iterations)
	assert.Equal(t, 100, cfg.AntColony.Steps)
	assert.Equal(t, 0.1, cfg.AntColony.EvaporationRate)
	assert.Equal(t, 5, cfg.Bayesian.InitialPoints)
	assert.Equal(t, 1000, cfg.Bayesian.Candidates)
	assert.Equal(t, 1e-6, cfg.Bayesian.Noise)
	assert.Equal(t, 0.8, cfg.Differential.MutationFactor)
	assert.Equal(t, 0.7, cfg.Differential.CrossoverRate)
	assert.Equal(t, 30, cfg.Differential.Generations)
	assert.Equal(t, 50, cfg.Genetic.Population)
	assert.Equal(t, 20, cfg.Genetic.Generations)
	assert.Equal(t, 0.1, cfg.Genetic.EliteRatio)

	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Annealing.CoolingRate = 1.5
	cfg.Differential.Population = 3
	cfg.AntColony.EvaporationRate = -0.1

	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "cooling_rate")
	assert.Contains(t, err.Error(), "differential_evolution.population")
	assert.Contains(t, err.Error(), "evaporation_rate")

	_, err = New(KindSimulatedAnnealing, cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestWithIterations(t *testing.T) {
	cfg := DefaultConfig().WithIterations(7)

	assert.Equal(t, 7, cfg.Swarm.Iterations)
	assert.Equal(t, 7, cfg.Annealing.Iterations)
	assert.Equal(t, 7, cfg.AntColony.Iterations)
	assert.Equal(t, 7, cfg.Bayesian.Iterations)
	assert.Equal(t, 7, cfg.Differential.Generations)
	assert.Equal(t, 7, cfg.Genetic.Generations)
	assert.Equal(t, 7, cfg.Grid.MaxCombinations)
}
