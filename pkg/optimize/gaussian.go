package optimize

import (
	"fmt"
	"math"
)

// pivotTolerance is the smallest pivot accepted during inversion
const pivotTolerance = 1e-12

// GaussianProcess is a zero-mean regression surrogate with an RBF kernel.
// Hyperparameters are fixed; Fit only stores data and inverts the kernel matrix.
//
// Inversion uses Gauss-Jordan elimination with partial pivoting, which is
// fragile for ill-conditioned or large kernel matrices.
type GaussianProcess struct {
	lengthScale float64
	noise       float64

	x    [][]float64
	y    []float64
	kInv [][]float64
}

// NewGaussianProcess creates a surrogate.
// A non-positive length scale uses 1; a negative noise term uses 1e-6.
func NewGaussianProcess(lengthScale, noise float64) *GaussianProcess {
	if !(lengthScale > 0) {
		lengthScale = 1
	}
	if !(noise >= 0) {
		noise = 1e-6
	}
	return &GaussianProcess{lengthScale: lengthScale, noise: noise}
}

// Kernel returns exp(-‖a-b‖² / 2ℓ²)
func (gp *GaussianProcess) Kernel(a, b []float64) float64 {
	sq := 0.0
	for i := range a {
		d := a[i] - b[i]
		sq += d * d
	}
	return math.Exp(-sq / (2 * gp.lengthScale * gp.lengthScale))
}

// Fit stores the training data and precomputes the inverse kernel matrix.
// On error the previous model is left untouched.
func (gp *GaussianProcess) Fit(x [][]float64, y []float64) error {
	if len(x) != len(y) {
		return fmt.Errorf("gaussian process: %d inputs but %d targets", len(x), len(y))
	}

	n := len(x)
	k := make([][]float64, n)
	for i := range k {
		k[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			v := gp.Kernel(x[i], x[j])
			k[i][j] = v
			k[j][i] = v
		}
		k[i][i] += gp.noise
	}

	kInv, err := invert(k)
	if err != nil {
		return err
	}

	gp.x = copyMatrix(x)
	gp.y = append([]float64(nil), y...)
	gp.kInv = kInv
	return nil
}

// Len returns the number of training points
func (gp *GaussianProcess) Len() int {
	return len(gp.x)
}

// Predict returns the posterior mean and standard deviation at x.
// An empty model returns the prior (0, 1).
func (gp *GaussianProcess) Predict(x []float64) (mean, std float64) {
	n := len(gp.x)
	if n == 0 {
		return 0, 1
	}

	k := make([]float64, n)
	for i, xi := range gp.x {
		k[i] = gp.Kernel(x, xi)
	}

	for i := 0; i < n; i++ {
		mean += k[i] * gp.y[i]
	}

	quad := 0.0
	for i := 0; i < n; i++ {
		row := 0.0
		for j := 0; j < n; j++ {
			row += gp.kInv[i][j] * k[j]
		}
		quad += k[i] * row
	}

	variance := gp.Kernel(x, x) - quad
	return mean, math.Sqrt(math.Max(0, variance))
}

// invert computes the inverse of a square matrix by Gauss-Jordan elimination
// with partial pivoting. The input is not modified.
func invert(m [][]float64) ([][]float64, error) {
	n := len(m)
	aug := make([][]float64, n)
	for i := range m {
		aug[i] = make([]float64, 2*n)
		copy(aug[i], m[i])
		aug[i][n+i] = 1
	}

	for col := 0; col < n; col++ {
		pivot := col
		for row := col + 1; row < n; row++ {
			if math.Abs(aug[row][col]) > math.Abs(aug[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(aug[pivot][col]) < pivotTolerance || math.IsNaN(aug[pivot][col]) {
			return nil, fmt.Errorf("%w: pivot %d is %g", ErrSingularMatrix, col, aug[pivot][col])
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		p := aug[col][col]
		for j := col; j < 2*n; j++ {
			aug[col][j] /= p
		}

		for row := 0; row < n; row++ {
			if row == col {
				continue
			}
			factor := aug[row][col]
			if factor == 0 {
				continue
			}
			for j := col; j < 2*n; j++ {
				aug[row][j] -= factor * aug[col][j]
			}
		}
	}

	inv := make([][]float64, n)
	for i := range aug {
		inv[i] = aug[i][n:]
	}
	return inv, nil
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
