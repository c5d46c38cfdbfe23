package optimize

import (
	"context"
	"math"
	"sort"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

// topResults is the number of best candidates kept in the grid history
const topResults = 10

// ============================================================================
// GRID SEARCH OPTIMIZER
// ============================================================================

type gridOptimizer struct {
	cfg Config
}

func (o *gridOptimizer) Kind() Kind { return KindGridSearch }

// Optimize evaluates the step lattice of every parameter.
// When the lattice exceeds MaxCombinations an evenly strided subset is used.
func (o *gridOptimizer) Optimize(ctx context.Context, strategy *backtest.Strategy, evaluate EvaluateFunc) (*Result, error) {
	r, err := newRun(KindGridSearch, strategy, evaluate, o.cfg)
	if err != nil {
		return nil, err
	}
	gc := o.cfg.Grid

	axes := make([][]float64, len(strategy.Parameters))
	for i, p := range strategy.Parameters {
		axes[i] = o.axis(p)
	}

	total := latticeSize(axes)
	count := total
	if count > gc.MaxCombinations {
		count = gc.MaxCombinations
		r.log.Warn().
			Int("combinations", total).
			Int("max_combinations", gc.MaxCombinations).
			Msg("Grid too large, sampling a strided subset")
	}

	r.log.Info().
		Int("combinations", count).
		Msg("Generated parameter combinations")

	// Evaluate in chunks so progress is reported while the grid runs
	chunk := max(o.cfg.Parallelism*10, 1)
	chunks := (count + chunk - 1) / chunk

	var history History
	var all []Candidate

	for start, n := 0, 0; start < count; start, n = start+chunk, n+1 {
		end := min(start+chunk, count)

		batch := make([]backtest.ParameterSet, 0, end-start)
		for k := start; k < end; k++ {
			idx := k
			if count < total {
				idx = int(float64(k) * float64(total) / float64(count))
			}
			batch = append(batch, combination(strategy, axes, idx))
		}

		evaluated, err := r.evaluateAll(ctx, batch)
		if err != nil {
			return nil, r.fail(err)
		}
		all = append(all, evaluated...)

		history.Convergence = append(history.Convergence, r.bestFitness())
		r.iterationDone(n+1, chunks)
	}

	// Sort results by score (descending)
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Fitness > all[j].Fitness
	})
	history.TopResults = all[:min(topResults, len(all))]

	return r.finish(history)
}

// axis lists the lattice values of one parameter, always including min and max.
// A step too fine for MaxCombinations is replaced by that many evenly spaced points.
func (o *gridOptimizer) axis(p backtest.StrategyParameter) []float64 {
	step := p.Step
	if !(step > 0) {
		return evenlySpaced(p, o.cfg.Grid.DefaultSteps)
	}

	limit := max(o.cfg.Grid.MaxCombinations, 2)
	intervals := math.Floor(p.Range()/step + 1e-9)
	if math.IsNaN(intervals) || intervals >= float64(limit) {
		return evenlySpaced(p, limit)
	}

	n := int(intervals) + 1
	values := make([]float64, 0, n+1)
	for k := 0; k < n; k++ {
		values = append(values, p.Clamp(p.Min+float64(k)*step))
	}
	if last := values[len(values)-1]; last < p.Max {
		values = append(values, p.Max)
	}
	return values
}

// evenlySpaced returns n points from min to max inclusive
func evenlySpaced(p backtest.StrategyParameter, n int) []float64 {
	if n <= 1 {
		return []float64{p.Min}
	}
	values := make([]float64, n)
	for k := 0; k < n-1; k++ {
		values[k] = p.Clamp(p.Min + float64(k)*p.Range()/float64(n-1))
	}
	values[n-1] = p.Max
	return values
}

// latticeSize multiplies the axis lengths, saturating at MaxInt
func latticeSize(axes [][]float64) int {
	size := 1
	for _, axis := range axes {
		if size > math.MaxInt/len(axis) {
			return math.MaxInt
		}
		size *= len(axis)
	}
	return size
}

// combination decodes a mixed-radix index into a parameter set
func combination(strategy *backtest.Strategy, axes [][]float64, idx int) backtest.ParameterSet {
	ps := make(backtest.ParameterSet, len(axes))
	for i := len(axes) - 1; i >= 0; i-- {
		n := len(axes[i])
		ps[strategy.Parameters[i].Name] = axes[i][idx%n]
		idx /= n
	}
	return ps
}
