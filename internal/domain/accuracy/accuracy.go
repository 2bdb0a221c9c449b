// Package accuracy scores how literally a transcript matches the expected text.
//
// The score is 1 - WER, floored at zero, where WER is the word-level edit
// distance between the case-folded reference and hypothesis divided by the
// reference word count.
package accuracy

import (
	"strings"
	"unicode"
)

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithPunctuationStripping trims leading and trailing punctuation from every
// token before comparison, so "mat." matches "mat".
func WithPunctuationStripping() Option {
	return func(e *Evaluator) { e.stripPunct = true }
}

// Evaluator computes accuracy scores. The zero value compares raw
// whitespace-separated tokens after case folding.
type Evaluator struct {
	stripPunct bool
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute returns max(0, 1-WER) for hypothesis against expected.
func (e *Evaluator) Compute(expected, hypothesis string) float64 {
	ref := e.Words(expected)
	hyp := e.Words(hypothesis)
	if len(ref) == 0 {
		if len(hyp) == 0 {
			return 1
		}
		return 0
	}
	score := 1 - WER(ref, hyp)
	if score < 0 {
		return 0
	}
	return score
}

// Words normalizes text into comparison tokens.
func (e *Evaluator) Words(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	if !e.stripPunct {
		return fields
	}
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, unicode.IsPunct)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Compute scores hypothesis against expected with default settings.
func Compute(expected, hypothesis string) float64 {
	return (&Evaluator{}).Compute(expected, hypothesis)
}

// Words lower-cases s and splits it on whitespace.
func Words(s string) []string {
	return (&Evaluator{}).Words(s)
}

// WER returns the word error rate of hyp against ref. ref must be non-empty.
func WER(ref, hyp []string) float64 {
	return float64(editDistance(ref, hyp)) / float64(len(ref))
}

// editDistance is the Levenshtein distance over words, with unit costs for
// substitution, insertion and deletion. Two rolling rows.
func editDistance(ref, hyp []string) int {
	prev := make([]int, len(hyp)+1)
	cur := make([]int, len(hyp)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ref); i++ {
		cur[0] = i
		for j := 1; j <= len(hyp); j++ {
			sub := prev[j-1]
			if ref[i-1] != hyp[j-1] {
				sub++
			}
			cur[j] = min(sub, prev[j]+1, cur[j-1]+1)
		}
		prev, cur = cur, prev
	}
	return prev[len(hyp)]
}
