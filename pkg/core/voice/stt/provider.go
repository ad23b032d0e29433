// Package stt provides streaming speech-to-text.
package stt

import (
	"context"
	"time"
)

// Provider opens live transcription sessions.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// NewStreamingSTT opens a session. Audio is pushed with SendAudio and
	// transcripts arrive on Transcripts.
	NewStreamingSTT(ctx context.Context, opts TranscribeOptions) (*StreamingSTT, error)
}

// TranscribeOptions configures a session.
type TranscribeOptions struct {
	Model          string        // Provider model, e.g. "nova-2"
	Language       string        // BCP-47 code (default: "en-US")
	Encoding       string        // Audio encoding (default: "linear16")
	SampleRate     int           // Hz
	Endpointing    time.Duration // Silence that closes an utterance
	InterimResults bool          // Also emit non-final hypotheses
}

// BrowserOptions suits 16 kHz microphone audio.
func BrowserOptions() TranscribeOptions {
	return TranscribeOptions{
		Model:       "nova-2",
		Language:    "en-US",
		Encoding:    "linear16",
		SampleRate:  16000,
		Endpointing: 300 * time.Millisecond,
	}
}

// PhoneOptions suits 8 kHz telephone audio decoded to linear PCM.
func PhoneOptions() TranscribeOptions {
	return TranscribeOptions{
		Model:       "nova-2-phonecall",
		Language:    "en-US",
		Encoding:    "linear16",
		SampleRate:  8000,
		Endpointing: 200 * time.Millisecond,
	}
}

// TranscriptDelta is a streaming transcript update.
type TranscriptDelta struct {
	Text    string // Transcript for the utterance
	IsFinal bool   // True once the utterance is closed
}
