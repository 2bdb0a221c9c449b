package prosody

import (
	"errors"
	"fmt"
)

// ErrCompute marks a numerical failure during alignment. It never escapes
// Compare; the evaluator falls back to global-mean cosine instead.
var ErrCompute = errors.New("prosody compute failed")

var (
	errZeroNorm  = fmt.Errorf("%w: zero-norm frame", ErrCompute)
	errNonFinite = fmt.Errorf("%w: non-finite distance", ErrCompute)
	errEmptyPath = fmt.Errorf("%w: empty alignment path", ErrCompute)
)
