package stt

import "time"

// Transcript represents a speech-to-text result from an STT provider.
// Both interim and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or interim transcript.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64

	// Words contains per-word detail when available. Nil for providers that
	// don't support word-level output.
	Words []WordDetail

	// Duration is the length of the recognised utterance.
	Duration time.Duration
}

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}
