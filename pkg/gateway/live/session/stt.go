package session

import (
	"context"
	"fmt"

	"github.com/sanchita-suni/Calyx/pkg/core/voice/stt"
)

// STTSession is one live transcription stream.
type STTSession interface {
	SendAudio([]byte) error
	Transcripts() <-chan stt.TranscriptDelta
	Close() error
}

// STTProvider opens transcription streams.
type STTProvider interface {
	NewSession(ctx context.Context, opts stt.TranscribeOptions) (STTSession, error)
}

// STTProviderAdapter exposes an stt.Provider as an STTProvider.
type STTProviderAdapter struct {
	Provider stt.Provider
}

func (a STTProviderAdapter) NewSession(ctx context.Context, opts stt.TranscribeOptions) (STTSession, error) {
	if a.Provider == nil {
		return nil, fmt.Errorf("stt provider is nil")
	}
	s, err := a.Provider.NewStreamingSTT(ctx, opts)
	if err != nil {
		return nil, err
	}
	return sttSessionAdapter{inner: s}, nil
}

type sttSessionAdapter struct {
	inner *stt.StreamingSTT
}

func (a sttSessionAdapter) SendAudio(data []byte) error {
	if a.inner == nil {
		return fmt.Errorf("stt session is nil")
	}
	return a.inner.SendAudio(data)
}

func (a sttSessionAdapter) Transcripts() <-chan stt.TranscriptDelta {
	if a.inner == nil {
		ch := make(chan stt.TranscriptDelta)
		close(ch)
		return ch
	}
	return a.inner.Transcripts()
}

func (a sttSessionAdapter) Close() error {
	if a.inner == nil {
		return nil
	}
	return a.inner.Close()
}
