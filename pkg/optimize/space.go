package optimize

import (
	"math/rand"

	"github.com/ajitpratap0/stratlab/pkg/backtest"
)

// space is the bounded search domain of a strategy
type space struct {
	params []backtest.StrategyParameter
}

func newSpace(s *backtest.Strategy) space {
	return space{params: s.Parameters}
}

// random draws a uniform point inside the bounds
func (sp space) random(rng *rand.Rand) backtest.ParameterSet {
	ps := make(backtest.ParameterSet, len(sp.params))
	for _, p := range sp.params {
		ps[p.Name] = p.Clamp(p.Min + rng.Float64()*p.Range())
	}
	return ps
}

// clamp restricts every value to its bounds in place
func (sp space) clamp(ps backtest.ParameterSet) backtest.ParameterSet {
	for _, p := range sp.params {
		ps[p.Name] = p.Clamp(ps[p.Name])
	}
	return ps
}

// unit maps a point to the unit hypercube in parameter order
func (sp space) unit(ps backtest.ParameterSet) []float64 {
	vec := make([]float64, len(sp.params))
	for i, p := range sp.params {
		vec[i] = (ps[p.Name] - p.Min) / p.Range()
	}
	return vec
}

// contains reports whether every value lies inside its bounds
func (sp space) contains(ps backtest.ParameterSet) bool {
	for _, p := range sp.params {
		v, ok := ps[p.Name]
		if !ok || !p.Contains(v) {
			return false
		}
	}
	return true
}
