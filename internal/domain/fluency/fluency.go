// Package fluency scores reading pace and pausing from word timestamps.
package fluency

import (
	"math"
	"sort"

	"github.com/okian/readaloud/internal/domain/model"
)

// Model constants.
const (
	rateWeight  = 0.7
	pauseWeight = 0.3

	// minSpan floors the utterance span so a single instantaneous word
	// does not divide by zero.
	minSpan = 1e-3

	// PauseThreshold is the inter-word gap, in seconds, counted as a long pause.
	PauseThreshold = 0.30

	pauseDecay = 6.0

	rateFloorWPM     = 40
	rateIdealLowWPM  = 80
	rateIdealHighWPM = 180
	rateCeilingWPM   = 300
)

// Compute returns 0.7*rate_score + 0.3*pause_score in [0,1]. An empty
// timing list scores 0.
func Compute(timings []model.WordTiming, expectedWordCount int) float64 {
	if len(timings) == 0 {
		return 0
	}
	words := Normalize(timings)

	rate := RateScore(wpm(words))
	pause := PauseScore(CountPauses(words), expectedWordCount)

	return clamp01(rateWeight*rate + pauseWeight*pause)
}

// SpeechRate returns words per minute over the utterance span, 0 when empty.
func SpeechRate(timings []model.WordTiming) float64 {
	if len(timings) == 0 {
		return 0
	}
	return wpm(Normalize(timings))
}

// Normalize returns a copy of timings ordered by start time with every end
// clipped to be no earlier than its start. Engines occasionally emit
// overlapping or out-of-order words.
func Normalize(timings []model.WordTiming) []model.WordTiming {
	out := make([]model.WordTiming, len(timings))
	copy(out, timings)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	for i := range out {
		if out[i].End < out[i].Start {
			out[i].End = out[i].Start
		}
	}
	return out
}

// IsMonotonic reports whether timings are already ordered with End >= Start.
func IsMonotonic(timings []model.WordTiming) bool {
	for i, w := range timings {
		if w.End < w.Start {
			return false
		}
		if i > 0 && w.Start < timings[i-1].Start {
			return false
		}
	}
	return true
}

// RateScore maps words per minute to [0,1]: 0 up to 40, rising linearly to 1
// at 80, flat to 180, falling linearly to 0 at 300.
func RateScore(wpm float64) float64 {
	switch {
	case wpm <= rateFloorWPM:
		return 0
	case wpm < rateIdealLowWPM:
		return (wpm - rateFloorWPM) / (rateIdealLowWPM - rateFloorWPM)
	case wpm <= rateIdealHighWPM:
		return 1
	case wpm < rateCeilingWPM:
		return 1 - (wpm-rateIdealHighWPM)/(rateCeilingWPM-rateIdealHighWPM)
	default:
		return 0
	}
}

// PauseScore is exp(-6 * pauses/expected), or 1 when expected is not positive.
func PauseScore(pauses, expectedWordCount int) float64 {
	if expectedWordCount <= 0 {
		return 1
	}
	rate := float64(pauses) / float64(expectedWordCount)
	return math.Exp(-pauseDecay * rate)
}

// CountPauses counts gaps between consecutive words longer than PauseThreshold.
func CountPauses(timings []model.WordTiming) int {
	n := 0
	for i := 1; i < len(timings); i++ {
		gap := math.Max(0, timings[i].Start-timings[i-1].End)
		if gap > PauseThreshold {
			n++
		}
	}
	return n
}

func wpm(timings []model.WordTiming) float64 {
	span := timings[len(timings)-1].End - timings[0].Start
	span = math.Max(span, minSpan)
	return float64(len(timings)) * 60 / span
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
