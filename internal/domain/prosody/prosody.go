// Package prosody scores how closely the intonation and rhythm of a reading
// follow a reference recording.
//
// Both signals are reduced to MFCC matrices. When each has at least two
// frames they are aligned with dynamic time warping over z-normalized frames
// and the mean path cost is mapped through exp(-d). Otherwise, or when the
// alignment hits a numerical failure, the evaluator falls back to the cosine
// similarity of the global feature means. Compare never fails.
package prosody

import (
	"errors"
)

// MinFrames is the smallest frame count per signal that is aligned with DTW.
const MinFrames = 2

// neutralSimilarity is returned when even the fallback cannot produce a
// finite value; it equals the fallback for orthogonal means.
const neutralSimilarity = 0.5

// Method tells which branch produced a similarity.
type Method int

const (
	// MethodAligned means the DTW path was used.
	MethodAligned Method = iota
	// MethodFallback means the global-mean cosine was used.
	MethodFallback
)

func (m Method) String() string {
	switch m {
	case MethodAligned:
		return "aligned"
	case MethodFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// Fallback reasons.
const (
	ReasonInsufficientFrames = "insufficient_frames"
	ReasonZeroNorm           = "zero_norm_frame"
	ReasonNonFinite          = "non_finite"
	ReasonEmptyPath          = "empty_path"
)

// Result is the outcome of a prosody comparison.
type Result struct {
	Similarity float64
	Method     Method
	// Reason is set for MethodFallback.
	Reason string
}

// state is a step of the comparison.
type state int

const (
	stateAlign state = iota
	stateGlobalMean
)

// next decides the branch for a pair of feature matrices.
func next(user, ref Features) state {
	if user.Frames() < MinFrames || ref.Frames() < MinFrames {
		return stateGlobalMean
	}
	return stateAlign
}

// Evaluator compares recordings. It is safe for concurrent use.
type Evaluator struct {
	extractor *Extractor
}

// New creates an Evaluator with an Extractor built from opts.
func New(opts ...ExtractorOption) *Evaluator {
	return &Evaluator{extractor: NewExtractor(opts...)}
}

// Extractor returns the feature extractor shared by both sides of a comparison.
func (e *Evaluator) Extractor() *Extractor { return e.extractor }

// Compare extracts features from both signals and compares them.
func (e *Evaluator) Compare(user, ref []float32) Result {
	return CompareFeatures(e.extractor.Extract(user), e.extractor.Extract(ref))
}

// CompareFeatures compares precomputed matrices. The result is always finite
// and within [0,1].
func CompareFeatures(user, ref Features) Result {
	switch next(user, ref) {
	case stateAlign:
		sim, err := align(user, ref)
		if err == nil {
			return Result{Similarity: sim, Method: MethodAligned}
		}
		return fallback(user, ref, reasonFor(err))
	default:
		return fallback(user, ref, ReasonInsufficientFrames)
	}
}

func fallback(user, ref Features, reason string) Result {
	return Result{
		Similarity: globalMeanCosine(user, ref),
		Method:     MethodFallback,
		Reason:     reason,
	}
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, errZeroNorm):
		return ReasonZeroNorm
	case errors.Is(err, errEmptyPath):
		return ReasonEmptyPath
	default:
		return ReasonNonFinite
	}
}

var defaultEvaluator = New()

// Compare compares two 16 kHz signals with the default framing.
func Compare(user, ref []float32) Result {
	return defaultEvaluator.Compare(user, ref)
}
