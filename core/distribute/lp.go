package distribute

import (
	"errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/kilianp07/microgrid/core/model"
)

// ErrInfeasible indicates the exact split had no feasible solution.
var ErrInfeasible = errors.New("distribute: exact split infeasible")

// solveExactSplit runs the simplex algorithm to place exactly target power
// (unsigned) across the candidates, maximising the weighted preference
// subject to per-component capacity constraints.
func solveExactSplit(weights, caps []float64, target float64) ([]float64, error) {
	c := make([]float64, len(weights))
	for i, w := range weights {
		c[i] = -w
	}

	g := mat.NewDense(len(caps), len(caps), nil)
	h := make([]float64, len(caps))
	for i, cap := range caps {
		g.Set(i, i, 1)
		h[i] = cap
	}

	a := mat.NewDense(1, len(caps), nil)
	for i := range caps {
		a.Set(0, i, 1)
	}
	b := []float64{target}

	cStd, aStd, bStd := lp.Convert(c, g, h, a, b)
	_, sol, err := lp.Simplex(cStd, aStd, bStd, 1e-7, nil)
	return sol, err
}

// lpSolve points to the solver so tests can simulate failures.
var lpSolve = solveExactSplit

// allocateExact attempts an exact split of target over the candidates. It
// returns ErrInfeasible when the target exceeds total capacity and the
// solver error when the simplex fails, in which case the caller falls back
// to the proportional allocation.
func allocateExact(list []candidate, target float64) (map[model.ComponentID]float64, error) {
	var total float64
	weights := make([]float64, len(list))
	caps := make([]float64, len(list))
	for i, c := range list {
		weights[i] = c.weight
		caps[i] = c.capacity
		total += c.capacity
	}
	sign := 1.0
	magnitude := target
	if target < 0 {
		sign = -1
		magnitude = -target
	}
	if magnitude > total {
		return nil, ErrInfeasible
	}
	sol, err := lpSolve(weights, caps, magnitude)
	if err != nil {
		return nil, err
	}
	assignments := make(map[model.ComponentID]float64, len(list))
	for i, c := range list {
		power := sol[i]
		if power < 0 {
			power = 0
		}
		if power > caps[i] {
			power = caps[i]
		}
		assignments[c.id] = sign * power
	}
	return assignments, nil
}
