// Package tts provides text-to-speech.
package tts

import (
	"context"
	"fmt"
	"sync"
)

// Provider is the interface for text-to-speech services.
type Provider interface {
	// Name returns the provider identifier.
	Name() string

	// Synthesize renders text to a complete audio file.
	Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error)

	// SynthesizeStream renders text and streams the audio as it arrives.
	SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error)
}

// SynthesizeOptions configures synthesis.
type SynthesizeOptions struct {
	Voice      string // Voice identifier, e.g. "en-US-natalie"
	Style      string // Speaking style, e.g. "Conversational"
	Rate       int    // -50..50
	Pitch      int    // -50..50
	Model      string // Streaming model (default: "FALCON")
	Format     string // "MP3" or "WAV"
	SampleRate int    // Hz
}

// PhoneOptions is the fixed voice used on telephone calls.
func PhoneOptions() SynthesizeOptions {
	return SynthesizeOptions{
		Voice:      "en-US-natalie",
		Style:      "Conversational",
		Rate:       5,
		Format:     "WAV",
		SampleRate: 8000,
	}
}

// Synthesis is the result of synthesis.
type Synthesis struct {
	Audio  []byte // Audio data
	Format string // Audio format
}

// StatusError is a non-2xx response from a speech service.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tts: status %d: %s", e.Status, e.Body)
}

// StatusCode returns the HTTP status.
func (e *StatusError) StatusCode() int { return e.Status }

// SynthesisStream provides streaming audio output.
type SynthesisStream struct {
	chunks    chan []byte
	err       error
	done      chan struct{}
	closeOnce sync.Once
}

// NewSynthesisStream creates a new synthesis stream.
func NewSynthesisStream() *SynthesisStream {
	return &SynthesisStream{
		chunks: make(chan []byte, 100),
		done:   make(chan struct{}),
	}
}

// Chunks returns the channel of audio chunks.
func (s *SynthesisStream) Chunks() <-chan []byte {
	return s.chunks
}

// Err returns the terminal error once the producer has finished.
func (s *SynthesisStream) Err() error {
	<-s.done
	return s.err
}

// Close stops the producer early.
func (s *SynthesisStream) Close() error {
	s.closeOnce.Do(func() { close(s.done) })
	return nil
}

// SetError sets the stream error.
func (s *SynthesisStream) SetError(err error) {
	s.err = err
}

// Send sends a chunk to the stream. Returns false if stream is closed.
func (s *SynthesisStream) Send(chunk []byte) bool {
	select {
	case s.chunks <- chunk:
		return true
	case <-s.done:
		return false
	}
}

// FinishSending closes the chunks channel and marks the stream done.
func (s *SynthesisStream) FinishSending() {
	close(s.chunks)
	s.Close()
}

// Collect drains the stream into one buffer.
func (s *SynthesisStream) Collect() ([]byte, error) {
	var out []byte
	for chunk := range s.chunks {
		out = append(out, chunk...)
	}
	return out, s.Err()
}
