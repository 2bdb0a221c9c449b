package prosody

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	stdEpsilon           = 1e-8
	normEpsilon          = 1e-12
	constantRowTolerance = 1e-10
	costEpsilon          = 1e-12
)

// zNormalize scales every coefficient row to zero mean and unit population
// variance. A constant row, up to rounding, becomes all zeros.
func zNormalize(f Features) Features {
	out := make(Features, len(f))
	for k, row := range f {
		mean, std := stat.PopMeanStdDev(row, nil)
		norm := make([]float64, len(row))
		out[k] = norm
		if std <= constantRowTolerance*(1+math.Abs(mean)) {
			continue
		}
		for n, v := range row {
			norm[n] = (v - mean) / (std + stdEpsilon)
		}
	}
	return out
}

// unitFrames returns an N×K matrix whose rows are the frames of f scaled to
// unit length. Any zero-length frame makes cosine distance undefined.
func unitFrames(f Features) (*mat.Dense, error) {
	n, k := f.Frames(), f.Coefficients()
	u := mat.NewDense(n, k, nil)
	for i := 0; i < n; i++ {
		frame := f.Frame(i)
		norm := floats.Norm(frame, 2)
		if !(norm > normEpsilon) || math.IsInf(norm, 0) {
			return nil, errZeroNorm
		}
		floats.Scale(1/norm, frame)
		u.SetRow(i, frame)
	}
	return u, nil
}

// align runs DTW over z-normalized frames with cosine distance and returns
// exp(-D/pathLen) clamped to [0,1]. Both inputs need at least one frame.
func align(user, ref Features) (float64, error) {
	a, err := unitFrames(zNormalize(user))
	if err != nil {
		return 0, err
	}
	b, err := unitFrames(zNormalize(ref))
	if err != nil {
		return 0, err
	}

	// Cosine similarity of every frame pair in one product.
	var sim mat.Dense
	sim.Mul(a, b.T())
	n, m := sim.Dims()
	acc := accumulate(&sim)

	steps := pathLength(acc, n, m)
	if steps == 0 {
		return 0, errEmptyPath
	}
	dist := acc[n*m-1] / float64(steps)
	if math.IsNaN(dist) || math.IsInf(dist, 0) {
		return 0, errNonFinite
	}
	return clamp01(math.Exp(-dist)), nil
}

// accumulate fills the row-major cumulative cost matrix for the n×m frame
// similarities in sim, with cost = 1 - similarity. Costs within costEpsilon
// of zero count as zero, so a frame matched against itself adds nothing.
func accumulate(sim *mat.Dense) []float64 {
	n, m := sim.Dims()
	cost := func(i, j int) float64 {
		c := 1 - sim.At(i, j)
		if c < costEpsilon {
			return 0
		}
		return c
	}

	acc := make([]float64, n*m)
	acc[0] = cost(0, 0)
	for i := 1; i < n; i++ {
		acc[i*m] = acc[(i-1)*m] + cost(i, 0)
	}
	for j := 1; j < m; j++ {
		acc[j] = acc[j-1] + cost(0, j)
	}
	for i := 1; i < n; i++ {
		for j := 1; j < m; j++ {
			best := min(acc[(i-1)*m+j-1], acc[(i-1)*m+j], acc[i*m+j-1])
			acc[i*m+j] = cost(i, j) + best
		}
	}
	return acc
}

// pathLength backtracks the optimal warping path from the last cell to the
// origin and returns the number of cells on it. Ties prefer the diagonal.
func pathLength(acc []float64, n, m int) int {
	if n == 0 || m == 0 {
		return 0
	}
	i, j := n-1, m-1
	steps := 1
	for i > 0 || j > 0 {
		switch {
		case i == 0:
			j--
		case j == 0:
			i--
		default:
			diag := acc[(i-1)*m+j-1]
			up := acc[(i-1)*m+j]
			left := acc[i*m+j-1]
			switch {
			case diag <= up && diag <= left:
				i--
				j--
			case up <= left:
				i--
			default:
				j--
			}
		}
		steps++
	}
	return steps
}

// globalMeanCosine compares the temporal means of two matrices and maps
// cosine similarity from [-1,1] onto [0,1]. It is always finite.
func globalMeanCosine(user, ref Features) float64 {
	a, b := user.Mean(), ref.Mean()
	if len(a) != len(b) {
		k := min(len(a), len(b))
		a, b = a[:k], b[:k]
	}
	cos := floats.Dot(a, b) / (floats.Norm(a, 2)*floats.Norm(b, 2) + stdEpsilon)
	v := (cos + 1) / 2
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return neutralSimilarity
	}
	return clamp01(v)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
