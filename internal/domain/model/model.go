// Package model contains domain models passed between layers.
package model

import "strings"

// WordTiming is one recognized word with its start and end offsets in seconds.
type WordTiming struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration returns End-Start, never negative.
func (w WordTiming) Duration() float64 {
	if w.End < w.Start {
		return 0
	}
	return w.End - w.Start
}

// Transcript is the output of the transcription stage for one utterance.
type Transcript struct {
	Text  string
	Words []WordTiming
}

// Details carries the diagnostic part of a score breakdown.
type Details struct {
	Transcript    string       `json:"transcript"`
	WordTimings   []WordTiming `json:"word_timings"`
	SpeechRateWPM float64      `json:"speech_rate_wpm"`
}

// Breakdown is the complete result of scoring one reading.
// Sub-scores are in [0,1]; Final is in [0,100].
type Breakdown struct {
	Accuracy      float64 `json:"accuracy"`
	Fluency       float64 `json:"fluency"`
	Prosody       float64 `json:"prosody"`
	Final         float64 `json:"final"`
	ProsodyMethod string  `json:"prosody_method"`
	ProsodyReason string  `json:"prosody_reason,omitempty"`
	Details       Details `json:"details"`
}

// Words splits text on whitespace.
func Words(text string) []string {
	return strings.Fields(text)
}
