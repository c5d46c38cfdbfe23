package optimize

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/stratlab/internal/metrics"
	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

// ============================================================================
// RUN STATE
// ============================================================================

// run is the per-invocation state shared by every algorithm.
// The rng is only used from the goroutine driving the run.
type run struct {
	method    Kind
	strategy  *backtest.Strategy
	space     space
	evaluate  EvaluateFunc
	objective backtest.ObjectiveFunction
	progress  func(ProgressEvent)
	limit     int
	seed      int64
	rng       *rand.Rand
	started   time.Time
	log       zerolog.Logger

	evaluations atomic.Int64
	iterations  int

	mu      sync.Mutex
	best    Candidate
	hasBest bool
}

// newRun validates the strategy and seeds the random source
func newRun(method Kind, strategy *backtest.Strategy, evaluate EvaluateFunc, cfg Config) (*run, error) {
	if err := strategy.Validate(); err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	r := &run{
		method:    method,
		strategy:  strategy,
		space:     newSpace(strategy),
		evaluate:  evaluate,
		objective: cfg.Objective,
		progress:  cfg.Progress,
		limit:     cfg.Parallelism,
		seed:      seed,
		rng:       rand.New(rand.NewSource(seed)), // #nosec G404 -- Non-cryptographic use: optimizers need reproducible randomness
		started:   time.Now(),
		log:       log.With().Str("component", "optimizer").Str("method", string(method)).Str("strategy", strategy.Name).Logger(),
	}

	r.log.Info().
		Int("parameters", len(strategy.Parameters)).
		Int("parallel", r.limit).
		Int64("seed", seed).
		Msg("Starting optimization")

	return r, nil
}

// evaluateOne scores a single candidate and folds it into the global best
func (r *run) evaluateOne(ctx context.Context, ps backtest.ParameterSet) (Candidate, error) {
	c, err := r.score(ctx, ps)
	if err != nil {
		return Candidate{}, err
	}
	r.observe(c)
	return c, nil
}

// evaluateAll scores a batch with bounded parallelism.
// Results are written by index and folded into the global best in batch order.
func (r *run) evaluateAll(ctx context.Context, batch []backtest.ParameterSet) ([]Candidate, error) {
	out := make([]Candidate, len(batch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)

	for i, ps := range batch {
		g.Go(func() error {
			c, err := r.score(gctx, ps)
			if err != nil {
				return err
			}
			out[i] = c
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, c := range out {
		r.observe(c)
	}
	return out, nil
}

// score runs the evaluation function for one candidate
func (r *run) score(ctx context.Context, ps backtest.ParameterSet) (Candidate, error) {
	if err := ctx.Err(); err != nil {
		return Candidate{}, err
	}
	if err := backtest.ValidateParameters(r.strategy, ps); err != nil {
		return Candidate{}, err
	}

	params := ps.Clone()
	start := time.Now()
	result, err := r.evaluate(ctx, params.Clone())
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0
	r.evaluations.Add(1)

	if err == nil && result == nil {
		err = ErrNilResult
	}
	metrics.RecordEvaluation(string(r.method), elapsed, err)
	if err != nil {
		return Candidate{}, &EvaluationError{Method: r.method, Parameters: params, Err: err}
	}

	fitness := r.objective(result)
	if math.IsNaN(fitness) {
		fitness = math.Inf(-1)
	}

	return Candidate{Parameters: params, Fitness: fitness, Result: result}, nil
}

// observe updates the global best under the run mutex
func (r *run) observe(c Candidate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hasBest && !(c.Fitness > r.best.Fitness) {
		return false
	}
	r.best = c
	r.hasBest = true
	return true
}

// currentBest returns the best candidate seen so far
func (r *run) currentBest() Candidate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.best
}

// bestFitness returns the best fitness, or -Inf before any evaluation
func (r *run) bestFitness() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.hasBest {
		return math.Inf(-1)
	}
	return r.best.Fitness
}

// iterationDone reports progress after an iteration or generation
func (r *run) iterationDone(iteration, total int) {
	r.iterations = iteration
	best := r.bestFitness()
	evaluations := int(r.evaluations.Load())

	metrics.RecordIteration(string(r.method))

	r.log.Debug().
		Int("iteration", iteration).
		Int("total", total).
		Int("evaluations", evaluations).
		Float64("best_fitness", best).
		Msg("Iteration complete")

	if r.progress != nil {
		r.progress(ProgressEvent{
			Method:      r.method,
			Iteration:   iteration,
			Total:       total,
			Evaluations: evaluations,
			BestFitness: best,
		})
	}
}

// fail records a failed run and returns err unchanged
func (r *run) fail(err error) error {
	duration := time.Since(r.started)
	metrics.RecordOptimizationRun(string(r.method), duration.Seconds(), 0, err)

	r.log.Error().
		Err(err).
		Int64("evaluations", r.evaluations.Load()).
		Dur("duration", duration).
		Msg("Optimization aborted")

	return err
}

// finish validates the best candidate and assembles the result
func (r *run) finish(history History) (*Result, error) {
	r.mu.Lock()
	best, hasBest := r.best, r.hasBest
	r.mu.Unlock()

	if !hasBest {
		return nil, r.fail(ErrNoEvaluations)
	}
	if err := backtest.ValidateParameters(r.strategy, best.Parameters); err != nil {
		return nil, r.fail(err)
	}

	result := &Result{
		Method:         r.method,
		BestParameters: best.Parameters.Clone(),
		BestFitness:    best.Fitness,
		BestResult:     best.Result,
		Evaluations:    int(r.evaluations.Load()),
		Iterations:     r.iterations,
		Seed:           r.seed,
		Duration:       time.Since(r.started),
		History:        history,
	}

	metrics.RecordOptimizationRun(string(r.method), result.Duration.Seconds(), result.BestFitness, nil)

	r.log.Info().
		Int("total_evaluations", result.Evaluations).
		Float64("best_fitness", result.BestFitness).
		Dur("duration", result.Duration).
		Msg("Optimization complete")

	return result, nil
}

// generationStats summarizes the fitness of a population
func generationStats(generation int, population []Candidate) GenerationStats {
	stats := GenerationStats{Generation: generation}
	if len(population) == 0 {
		return stats
	}

	stats.Best = math.Inf(-1)
	stats.Worst = math.Inf(1)
	total := 0.0
	for _, c := range population {
		stats.Best = math.Max(stats.Best, c.Fitness)
		stats.Worst = math.Min(stats.Worst, c.Fitness)
		total += c.Fitness
	}
	stats.Average = total / float64(len(population))
	return stats
}

func parameterSets(candidates []Candidate) []backtest.ParameterSet {
	sets := make([]backtest.ParameterSet, len(candidates))
	for i, c := range candidates {
		sets[i] = c.Parameters
	}
	return sets
}
